// Package event defines the closed set of realtime events this core emits.
// Every client-facing payload is one of these structs; the relay never
// forwards untyped blobs.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"telecare/domain"
)

// Event is implemented by every outbound realtime event.
// Name is the wire discriminator placed in the envelope "type" field.
type Event interface {
	Name() string
}

type PresenceOnline struct {
	User domain.PresenceEntry `json:"user"`
}

func (PresenceOnline) Name() string { return "presence-online" }

type PresenceOffline struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

func (PresenceOffline) Name() string { return "presence-offline" }

// OnlineUsers answers a list-online request with a presence snapshot.
type OnlineUsers struct {
	Users []domain.PresenceEntry `json:"users"`
}

func (OnlineUsers) Name() string { return "online-users" }

type NewMessage struct {
	Message domain.Message `json:"message"`
}

func (NewMessage) Name() string { return "new-message" }

// MessageSent acknowledges a send to its author. Queued is true when the
// recipient was offline and the message was persisted without live delivery.
type MessageSent struct {
	Message domain.Message `json:"message"`
	Queued  bool           `json:"queued"`
}

func (MessageSent) Name() string { return "message-sent" }

type MessageDelivered struct {
	MessageID   uuid.UUID `json:"message_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func (MessageDelivered) Name() string { return "message-delivered" }

type MessageRead struct {
	MessageID uuid.UUID `json:"message_id"`
	ReaderID  string    `json:"reader_id"`
	ReadAt    time.Time `json:"read_at"`
}

func (MessageRead) Name() string { return "message-read" }

// Typing is ephemeral: relayed when the recipient is online, never stored.
type Typing struct {
	FromID   string `json:"from_id"`
	IsTyping bool   `json:"is_typing"`
}

func (Typing) Name() string { return "typing" }

// CallIncoming carries the caller's offer to the callee. The signaling
// payloads are opaque to this core and forwarded verbatim.
type CallIncoming struct {
	CallID uuid.UUID       `json:"call_id"`
	Caller domain.Identity `json:"caller"`
	Kind   domain.CallKind `json:"kind"`
	Offer  json.RawMessage `json:"offer"`
}

func (CallIncoming) Name() string { return "call-incoming" }

type CallAnswer struct {
	CallID uuid.UUID       `json:"call_id"`
	Answer json.RawMessage `json:"answer"`
}

func (CallAnswer) Name() string { return "call-answer" }

type CallCandidate struct {
	CallID    uuid.UUID       `json:"call_id"`
	FromID    string          `json:"from_id"`
	Candidate json.RawMessage `json:"candidate"`
}

func (CallCandidate) Name() string { return "call-candidate" }

type CallRejected struct {
	CallID uuid.UUID `json:"call_id"`
}

func (CallRejected) Name() string { return "call-reject" }

type CallEnded struct {
	CallID uuid.UUID `json:"call_id"`
	ByID   string    `json:"by_id"`
}

func (CallEnded) Name() string { return "call-end" }

type CallFailed struct {
	CallID uuid.UUID `json:"call_id"`
	Reason string    `json:"reason"`
}

func (CallFailed) Name() string { return "call-failed" }

type CallTimeout struct {
	CallID uuid.UUID `json:"call_id"`
}

func (CallTimeout) Name() string { return "call-timeout" }

// AppointmentUpdate relays an appointment-status change produced elsewhere.
type AppointmentUpdate struct {
	Payload json.RawMessage `json:"payload"`
}

func (AppointmentUpdate) Name() string { return "appointment-update" }

// PrescriptionNotice is the extra notification emitted alongside a
// prescription message so clients can surface it distinctly.
type PrescriptionNotice struct {
	MessageID    uuid.UUID            `json:"message_id"`
	SenderID     string               `json:"sender_id"`
	Prescription *domain.Prescription `json:"prescription"`
}

func (PrescriptionNotice) Name() string { return "prescription-notice" }

// Error reports a per-operation failure back to the originating connection.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Error) Name() string { return "error" }
