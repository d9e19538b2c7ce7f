// Package auth verifies the signed identity tokens presented by realtime
// connections. The core trusts claims after signature verification; it never
// re-validates them against a user database.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"telecare/domain"
	apperrors "telecare/errors"
)

const issuer = "telecare"

// Claims is the identity payload carried by a connection token.
type Claims struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies identity tokens with a shared HS256 secret.
// The secret is injected from configuration, never hardcoded.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Generate mints a signed token for an identity. Used by the auth
// collaborator in production and by the probe CLI and tests here.
func (t *Tokens) Generate(identity domain.Identity) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      identity.UserID,
		Role:        string(identity.Role),
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate parses and verifies a token string and returns the identity it
// asserts. Every failure mode collapses to ErrInvalidToken: the gateway
// fails closed and the client must re-authenticate.
func (t *Tokens) Validate(tokenString string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Identity{}, apperrors.ErrInvalidToken
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}

	return domain.Identity{
		UserID:      claims.UserID,
		Role:        role,
		DisplayName: claims.DisplayName,
	}, nil
}
