// Package services implements the operations behind the realtime protocol:
// message relay and persistence, call signaling, and notification fan-out.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"telecare/contract"
	"telecare/domain"
	"telecare/domain/event"
	apperrors "telecare/errors"
)

// SendCommand is a message sending intent from an authenticated connection.
type SendCommand struct {
	RecipientID  string
	Content      string
	Kind         domain.MessageKind
	Prescription *domain.Prescription
	Attachments  []domain.Attachment
}

type IChatService interface {
	Send(ctx context.Context, sender domain.Identity, cmd SendCommand) (domain.Message, bool, error)
	MarkRead(ctx context.Context, reader domain.Identity, messageID uuid.UUID) error
	Typing(ctx context.Context, from domain.Identity, recipientID string, isTyping bool)
	History(userA, userB string, cursor *string) ([]domain.Message, *string, error)
	UnreadCount(userID string) (int, error)
	Search(ctx context.Context, userID, query string, limit int) ([]domain.Message, error)
}

type ChatService struct {
	log      *slog.Logger
	repo     contract.IMessageRepository
	registry contract.IPresenceRegistry
	rooms    contract.IRoomManager
}

func NewChatService(
	log *slog.Logger,
	repo contract.IMessageRepository,
	registry contract.IPresenceRegistry,
	rooms contract.IRoomManager,
) *ChatService {
	return &ChatService{log: log, repo: repo, registry: registry, rooms: rooms}
}

// Send persists the message durably, then attempts live delivery when the
// recipient is present. The returned bool reports live delivery; false with
// a nil error is the queued branch, not a failure. A persistence error fails
// the whole send: nothing was delivered and the sender must retry.
func (s *ChatService) Send(ctx context.Context, sender domain.Identity, cmd SendCommand) (domain.Message, bool, error) {
	kind := cmd.Kind
	if kind == "" {
		kind = domain.KindText
	}

	msg := domain.Message{
		ID:           uuid.New(),
		SenderID:     sender.UserID,
		RecipientID:  cmd.RecipientID,
		SenderRole:   sender.Role,
		Kind:         kind,
		Content:      cmd.Content,
		Prescription: cmd.Prescription,
		Attachments:  cmd.Attachments,
		Status:       domain.StatusSent,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.StoreMessage(msg); err != nil {
		return domain.Message{}, false, fmt.Errorf("persist message: %w", err)
	}

	sink, _, online := s.registry.Lookup(cmd.RecipientID)
	if !online {
		return msg, false, nil
	}

	deliveredAt := time.Now().UTC()
	live := msg
	live.Status = domain.StatusDelivered
	live.DeliveredAt = &deliveredAt

	if err := sink.Consume(ctx, event.NewMessage{Message: live}); err != nil {
		s.log.Warn("live delivery failed, message stays queued",
			"message_id", msg.ID,
			"recipient_id", cmd.RecipientID,
			"error", err)
		return msg, false, nil
	}

	if kind == domain.KindPrescription {
		_ = sink.Consume(ctx, event.PrescriptionNotice{
			MessageID:    msg.ID,
			SenderID:     sender.UserID,
			Prescription: cmd.Prescription,
		})
	}

	updated, err := s.repo.MarkStatus(msg.ID, domain.StatusDelivered, deliveredAt)
	if err != nil {
		// The recipient has the payload; the durable status lags behind.
		s.log.Error("mark delivered failed", "message_id", msg.ID, "error", err)
		return live, true, nil
	}
	return updated, true, nil
}

// MarkRead validates that the reader is the message's recipient, records the
// transition, and sends a read receipt to the sender if currently online.
// Re-reading an already-read message is a harmless no-op.
func (s *ChatService) MarkRead(ctx context.Context, reader domain.Identity, messageID uuid.UUID) error {
	msg, err := s.repo.GetMessage(messageID)
	if err != nil {
		return err
	}
	if msg.RecipientID != reader.UserID {
		return apperrors.ErrNotRecipient
	}
	if msg.Status == domain.StatusRead {
		return nil
	}

	readAt := time.Now().UTC()
	if _, err := s.repo.MarkStatus(messageID, domain.StatusRead, readAt); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	if sink, _, ok := s.registry.Lookup(msg.SenderID); ok {
		_ = sink.Consume(ctx, event.MessageRead{
			MessageID: messageID,
			ReaderID:  reader.UserID,
			ReadAt:    readAt,
		})
	}
	return nil
}

// Typing relays an ephemeral indicator through the chat-pair room, so it
// only reaches a recipient who joined the conversation. Nothing is persisted
// and the relay never expires typing state itself; emitting isTyping=false
// is the sender's responsibility.
func (s *ChatService) Typing(ctx context.Context, from domain.Identity, recipientID string, isTyping bool) {
	roomKey := domain.ChatRoomKey(from.UserID, recipientID)
	s.rooms.Broadcast(ctx, roomKey, event.Typing{FromID: from.UserID, IsTyping: isTyping}, from.UserID)
}

func (s *ChatService) History(userA, userB string, cursor *string) ([]domain.Message, *string, error) {
	return s.repo.History(userA, userB, cursor)
}

func (s *ChatService) UnreadCount(userID string) (int, error) {
	return s.repo.UnreadCount(userID)
}

func (s *ChatService) Search(ctx context.Context, userID, query string, limit int) ([]domain.Message, error) {
	return s.repo.Search(ctx, userID, query, limit)
}
