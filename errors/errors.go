package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidToken     = fmt.Errorf("invalid or expired token")
	ErrRecipientOffline = fmt.Errorf("recipient is offline")
	ErrUnknownMessage   = fmt.Errorf("unknown message id")
	ErrNotRecipient     = fmt.Errorf("reader is not the message recipient")
	ErrUnknownCall      = fmt.Errorf("unknown call id")
	ErrNotCallee        = fmt.Errorf("user is not the callee of this call")
	ErrNotParticipant   = fmt.Errorf("user is not a party of this call")
	ErrInvalidCallState = fmt.Errorf("invalid call state")
	ErrInvalidPayload   = fmt.Errorf("invalid payload")
	ErrRoleNotAllowed   = fmt.Errorf("role is not allowed to perform this operation")
)

// CodeOf maps a service error to the stable wire code carried by error
// events. Unmatched errors are reported as internal without leaking the
// underlying error chain.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, ErrInvalidToken):
		return "unauthenticated"
	case errors.Is(err, ErrNotRecipient), errors.Is(err, ErrNotCallee),
		errors.Is(err, ErrNotParticipant), errors.Is(err, ErrRoleNotAllowed):
		return "unauthorized"
	case errors.Is(err, ErrRecipientOffline):
		return "recipient_offline"
	case errors.Is(err, ErrUnknownMessage), errors.Is(err, ErrUnknownCall):
		return "not_found"
	case errors.Is(err, ErrInvalidCallState):
		return "invalid_call_state"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	default:
		return "internal"
	}
}
