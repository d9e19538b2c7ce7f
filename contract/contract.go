//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"time"

	"github.com/google/uuid"

	"telecare/domain"
	"telecare/domain/event"
)

// EventSink is the delivery end of one live connection. Consume returns an
// error when the event could not be handed to the connection, so callers can
// fall back to queued-only semantics.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

type IMessageRepository interface {
	StoreMessage(msg domain.Message) error
	GetMessage(id uuid.UUID) (domain.Message, error)
	MarkStatus(id uuid.UUID, status domain.MessageStatus, at time.Time) (domain.Message, error)
	History(userA, userB string, cursor *string) ([]domain.Message, *string, error)
	UnreadCount(userID string) (int, error)
	Search(ctx context.Context, userID, query string, limit int) ([]domain.Message, error)
}

// IPresenceRegistry owns the userID -> live connection mapping.
// Register replaces any previous entry for the same user and returns the
// evicted sink so the caller can shut that connection down.
type IPresenceRegistry interface {
	Register(identity domain.Identity, sink EventSink) (evicted EventSink)
	Unregister(userID string, sink EventSink) bool
	Lookup(userID string) (EventSink, domain.Identity, bool)
	Snapshot() []domain.PresenceEntry
	Fanout(ctx context.Context, e event.Event, exceptUserID string)
	Size() int
}

// IRoomManager scopes broadcasts to logical rooms (chat pairs, role groups).
// Membership is rebuilt by clients after reconnect; nothing is persisted.
type IRoomManager interface {
	Join(roomKey, userID string)
	Leave(roomKey, userID string)
	LeaveAll(userID string)
	Broadcast(ctx context.Context, roomKey string, e event.Event, exceptUserID string)
	Members(roomKey string) []string
}
