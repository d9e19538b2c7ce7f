package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"telecare/domain"
	apperrors "telecare/errors"
)

func TestTokens_Generate_And_Validate(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("test_secret_for_unit_tests_only", time.Hour)

	identity := domain.Identity{
		UserID:      "doc-42",
		Role:        domain.RoleDoctor,
		DisplayName: "Dr. Mensah",
	}

	signed, err := tokens.Generate(identity)
	req.NoError(err)
	req.NotEmpty(signed)

	parsed, err := tokens.Validate(signed)
	req.NoError(err)
	req.Equal(identity, parsed)
}

func TestTokens_Validate_Rejects_Expired(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("test_secret_for_unit_tests_only", -time.Minute)

	signed, err := tokens.Generate(domain.Identity{UserID: "pat-1", Role: domain.RolePatient})
	req.NoError(err)

	_, err = tokens.Validate(signed)
	req.ErrorIs(err, apperrors.ErrInvalidToken)
}

func TestTokens_Validate_Rejects_Wrong_Secret(t *testing.T) {
	req := require.New(t)
	minter := NewTokens("secret_a_secret_a_secret_a", time.Hour)
	verifier := NewTokens("secret_b_secret_b_secret_b", time.Hour)

	signed, err := minter.Generate(domain.Identity{UserID: "pat-1", Role: domain.RolePatient})
	req.NoError(err)

	_, err = verifier.Validate(signed)
	req.ErrorIs(err, apperrors.ErrInvalidToken)
}

func TestTokens_Validate_Rejects_Unknown_Role(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("test_secret_for_unit_tests_only", time.Hour)

	signed, err := tokens.Generate(domain.Identity{UserID: "x", Role: "admin"})
	req.NoError(err)

	_, err = tokens.Validate(signed)
	req.ErrorIs(err, apperrors.ErrInvalidToken)
}

func TestTokens_Validate_Rejects_Garbage(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("test_secret_for_unit_tests_only", time.Hour)

	_, err := tokens.Validate("not.a.token")
	req.ErrorIs(err, apperrors.ErrInvalidToken)
}
