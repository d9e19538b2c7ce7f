// Package server exposes the realtime core over WebSocket plus a small REST
// surface for history, search, and backend-originated notifications.
package server

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"telecare/domain"
	"telecare/domain/event"
)

// Envelope frames every message in both directions. Type discriminates the
// payload; Data holds the type-specific body.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Inbound message types accepted from clients.
const (
	TypeSendMessage   = "send-message"
	TypeMarkRead      = "mark-read"
	TypeTyping        = "typing"
	TypeJoinRoom      = "join-room"
	TypeListOnline    = "list-online"
	TypeCallInitiate  = "call-initiate"
	TypeCallAnswer    = "call-answer"
	TypeCallCandidate = "call-candidate"
	TypeCallReject    = "call-reject"
	TypeCallEnd       = "call-end"
)

type sendMessagePayload struct {
	RecipientID  string               `json:"recipient_id" validate:"required"`
	Content      string               `json:"content" validate:"required_without=Prescription,max=4096"`
	Kind         string               `json:"kind" validate:"omitempty,oneof=text image file prescription"`
	Prescription *domain.Prescription `json:"prescription,omitempty"`
	Attachments  []domain.Attachment  `json:"attachments,omitempty" validate:"max=10"`
}

type markReadPayload struct {
	MessageID string `json:"message_id" validate:"required,uuid4"`
}

type typingPayload struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	IsTyping    bool   `json:"is_typing"`
}

type joinRoomPayload struct {
	PeerID string `json:"peer_id" validate:"required"`
}

type callInitiatePayload struct {
	CalleeID string          `json:"callee_id" validate:"required"`
	Kind     string          `json:"kind" validate:"required,oneof=audio video"`
	Offer    json.RawMessage `json:"offer" validate:"required"`
}

type callAnswerPayload struct {
	CallID string          `json:"call_id" validate:"required,uuid4"`
	Answer json.RawMessage `json:"answer" validate:"required"`
}

type callCandidatePayload struct {
	CallID    string          `json:"call_id" validate:"required,uuid4"`
	Candidate json.RawMessage `json:"candidate" validate:"required"`
}

type callRefPayload struct {
	CallID string `json:"call_id" validate:"required,uuid4"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodePayload unmarshals and validates one inbound payload.
func decodePayload[T any](data json.RawMessage) (T, error) {
	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, err
	}
	if err := validate.Struct(payload); err != nil {
		return payload, err
	}
	return payload, nil
}

// envelope wraps an outbound event for the wire.
func envelope(e event.Event) (Envelope, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:      e.Name(),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}
