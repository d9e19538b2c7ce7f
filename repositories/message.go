// Package repositories persists messages in BadgerDB and mirrors their
// content into a Bluge index for full-text search.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"telecare/domain"
	apperrors "telecare/errors"
)

const (
	msgPrefix    = "msg:"
	msgIDPrefix  = "msgid:"
	unreadPrefix = "unread:"

	// 19 nines sorts after any zero-padded UnixNano suffix.
	maxTimestampPad = "9999999999999999999"
)

type MessageRepository struct {
	db           *badger.DB
	index        *bluge.Writer
	log          *slog.Logger
	historyLimit int
}

func NewMessageRepository(db *badger.DB, index *bluge.Writer, log *slog.Logger, historyLimit int) *MessageRepository {
	return &MessageRepository{db: db, index: index, log: log, historyLimit: historyLimit}
}

// pairSegment is the order-independent conversation scope of a key.
func pairSegment(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%s:%s", userA, userB)
}

// primaryKey is formatted as "msg:{low}:{high}:{timestamp_padded}:{uuid}" to:
//  1. Scope a conversation to a single prefix regardless of direction.
//  2. Ensure chronological sorting using 19-digit zero padding.
//  3. Prevent collisions if two messages share the same nanosecond.
func primaryKey(msg domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s",
		msgPrefix,
		pairSegment(msg.SenderID, msg.RecipientID),
		msg.CreatedAt.UnixNano(),
		msg.ID,
	))
}

func idKey(id uuid.UUID) []byte {
	return []byte(msgIDPrefix + id.String())
}

func unreadKey(userID string) []byte {
	return []byte(unreadPrefix + userID)
}

// StoreMessage persists a message durably and maintains the id lookup index
// and the recipient's unread counter in the same transaction. The message
// content is additionally indexed for full-text search; indexing failures
// are logged and do not fail the durable write.
func (m *MessageRepository) StoreMessage(msg domain.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	key := primaryKey(msg)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		if err := txn.Set(idKey(msg.ID), key); err != nil {
			return err
		}
		return bumpUnread(txn, msg.RecipientID, 1)
	})
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}

	if err := m.indexMessage(msg); err != nil {
		m.log.Warn("search indexing failed", "message_id", msg.ID, "error", err)
	}
	return nil
}

func (m *MessageRepository) indexMessage(msg domain.Message) error {
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewTextField("content", msg.Content)).
		AddField(bluge.NewKeywordField("participant", msg.SenderID)).
		AddField(bluge.NewKeywordField("participant", msg.RecipientID)).
		AddField(bluge.NewDateTimeField("created_at", msg.CreatedAt))
	return m.index.Update(doc.ID(), doc)
}

// GetMessage resolves a message by id through the secondary index.
func (m *MessageRepository) GetMessage(id uuid.UUID) (domain.Message, error) {
	var msg domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		found, err := getMessageTxn(txn, id)
		if err != nil {
			return err
		}
		msg = found
		return nil
	})
	return msg, err
}

func getMessageTxn(txn *badger.Txn, id uuid.UUID) (domain.Message, error) {
	item, err := txn.Get(idKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, apperrors.ErrUnknownMessage
	}
	if err != nil {
		return domain.Message{}, err
	}

	var key []byte
	if err := item.Value(func(v []byte) error {
		key = append([]byte(nil), v...)
		return nil
	}); err != nil {
		return domain.Message{}, err
	}

	record, err := txn.Get(key)
	if err != nil {
		return domain.Message{}, err
	}

	var msg domain.Message
	return msg, record.Value(func(v []byte) error {
		return json.Unmarshal(v, &msg)
	})
}

// MarkStatus applies a delivery/read transition in a single transaction and
// returns the updated record. Re-applying an already-reached status is a
// no-op, which keeps at-least-once event delivery harmless.
func (m *MessageRepository) MarkStatus(id uuid.UUID, status domain.MessageStatus, at time.Time) (domain.Message, error) {
	var updated domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		msg, err := getMessageTxn(txn, id)
		if err != nil {
			return err
		}

		switch status {
		case domain.StatusDelivered:
			if msg.Status == domain.StatusSent {
				msg.Status = domain.StatusDelivered
				msg.DeliveredAt = &at
			}
		case domain.StatusRead:
			if msg.Status != domain.StatusRead {
				if err := bumpUnread(txn, msg.RecipientID, -1); err != nil {
					return err
				}
				msg.Status = domain.StatusRead
				msg.ReadAt = &at
			}
		default:
			msg.Status = status
		}

		value, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		updated = msg
		return txn.Set(primaryKey(msg), value)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return updated, nil
}

// History retrieves messages between two users, newest first, using a
// reverse prefix scan. Thanks to the padded timestamp in the key, messages
// are naturally sorted by time; the returned cursor resumes the scan on the
// next page.
func (m *MessageRepository) History(userA, userB string, cursor *string) ([]domain.Message, *string, error) {
	var raw [][]byte
	var lastKey string

	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := msgPrefix + pairSegment(userA, userB) + ":"
		prefix := []byte(prefixStr)

		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		if cursor == nil {
			seekKey = append(prefix, []byte(maxTimestampPad)...)
		} else {
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		// A cursor points at the last returned key; skip it.
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.historyLimit > 0 && len(raw) == m.historyLimit {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			if err := item.Value(func(v []byte) error {
				raw = append(raw, append([]byte(nil), v...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, b := range raw {
		var msg domain.Message
		if err := json.Unmarshal(b, &msg); err != nil {
			return nil, nil, err
		}
		messages = append(messages, msg)
	}

	// A short page means the scan is exhausted; no cursor to resume from.
	if m.historyLimit <= 0 || len(messages) < m.historyLimit {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// UnreadCount reads the maintained counter; a missing key means zero.
func (m *MessageRepository) UnreadCount(userID string) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(unreadKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			parsed, err := strconv.Atoi(string(v))
			if err != nil {
				return fmt.Errorf("corrupt unread counter for %s: %w", userID, err)
			}
			count = parsed
			return nil
		})
	})
	return count, err
}

// Search runs a full-text query over message content, restricted to
// conversations the user participates in.
func (m *MessageRepository) Search(ctx context.Context, userID, query string, limit int) ([]domain.Message, error) {
	reader, err := m.index.Reader()
	if err != nil {
		return nil, fmt.Errorf("open search reader: %w", err)
	}
	defer reader.Close()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField("content")).
		AddMust(bluge.NewTermQuery(userID).SetField("participant"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var ids []uuid.UUID
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, fmt.Errorf("search iteration: %w", err)
		}
		if match == nil {
			break
		}
		if err := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					ids = append(ids, id)
				}
			}
			return true
		}); err != nil {
			return nil, err
		}
	}

	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := m.GetMessage(id)
		if err != nil {
			// The index can briefly run ahead of or behind the store.
			m.log.Debug("search hit without stored message", "message_id", id)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func bumpUnread(txn *badger.Txn, userID string, delta int) error {
	count := 0
	item, err := txn.Get(unreadKey(userID))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return err
	default:
		if err := item.Value(func(v []byte) error {
			parsed, parseErr := strconv.Atoi(string(v))
			if parseErr != nil {
				return fmt.Errorf("corrupt unread counter for %s: %w", userID, parseErr)
			}
			count = parsed
			return nil
		}); err != nil {
			return err
		}
	}

	count += delta
	if count < 0 {
		count = 0
	}
	return txn.Set(unreadKey(userID), []byte(strconv.Itoa(count)))
}
