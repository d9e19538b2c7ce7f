package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"telecare/domain"
	apperrors "telecare/errors"
)

func newTestRepository(t *testing.T, historyLimit int) *MessageRepository {
	t.Helper()
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })

	return NewMessageRepository(db, writer, slog.Default(), historyLimit)
}

func testMessage(sender, recipient, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:          uuid.New(),
		SenderID:    sender,
		RecipientID: recipient,
		SenderRole:  domain.RolePatient,
		Kind:        domain.KindText,
		Content:     content,
		Status:      domain.StatusSent,
		CreatedAt:   at,
	}
}

func Test_Store_And_History_Newest_First(t *testing.T) {
	req := require.New(t)
	repo := newTestRepository(t, 50)

	at := time.Now().UTC()
	first := testMessage("patient-1", "doctor-1", "hello doctor", at)
	second := testMessage("doctor-1", "patient-1", "hello, how can I help?", at.Add(time.Minute))
	third := testMessage("patient-1", "doctor-1", "I have a headache", at.Add(2*time.Minute))

	for _, msg := range []domain.Message{first, second, third} {
		req.NoError(repo.StoreMessage(msg))
	}

	fetched, _, err := repo.History("doctor-1", "patient-1", nil)
	req.NoError(err)
	req.Len(fetched, 3)
	req.Equal(third, fetched[0])
	req.Equal(second, fetched[1])
	req.Equal(first, fetched[2])
}

func Test_History_Cursor_Pagination(t *testing.T) {
	req := require.New(t)
	repo := newTestRepository(t, 2)

	at := time.Now().UTC()
	var all []domain.Message
	for i := 0; i < 5; i++ {
		msg := testMessage("patient-1", "doctor-1", "msg", at.Add(time.Duration(i)*time.Second))
		req.NoError(repo.StoreMessage(msg))
		all = append(all, msg)
	}

	page1, cursor, err := repo.History("patient-1", "doctor-1", nil)
	req.NoError(err)
	req.Len(page1, 2)
	req.Equal(all[4].ID, page1[0].ID)
	req.Equal(all[3].ID, page1[1].ID)

	page2, cursor, err := repo.History("patient-1", "doctor-1", cursor)
	req.NoError(err)
	req.Len(page2, 2)
	req.Equal(all[2].ID, page2[0].ID)
	req.Equal(all[1].ID, page2[1].ID)

	page3, _, err := repo.History("patient-1", "doctor-1", cursor)
	req.NoError(err)
	req.Len(page3, 1)
	req.Equal(all[0].ID, page3[0].ID)
}

func Test_History_Is_Direction_Independent(t *testing.T) {
	req := require.New(t)
	repo := newTestRepository(t, 50)

	msg := testMessage("patient-1", "doctor-1", "hello", time.Now().UTC())
	req.NoError(repo.StoreMessage(msg))

	forward, _, err := repo.History("patient-1", "doctor-1", nil)
	req.NoError(err)
	backward, _, err := repo.History("doctor-1", "patient-1", nil)
	req.NoError(err)
	req.Equal(forward, backward)
}

func Test_GetMessage_Unknown_ID(t *testing.T) {
	req := require.New(t)
	repo := newTestRepository(t, 50)

	_, err := repo.GetMessage(uuid.New())
	req.ErrorIs(err, apperrors.ErrUnknownMessage)
}

func Test_MarkStatus_Delivered_Then_Read(t *testing.T) {
	req := require.New(t)
	repo := newTestRepository(t, 50)

	msg := testMessage("patient-1", "doctor-1", "hello", time.Now().UTC())
	req.NoError(repo.StoreMessage(msg))

	count, err := repo.UnreadCount("doctor-1")
	req.NoError(err)
	req.Equal(1, count)

	deliveredAt := time.Now().UTC()
	updated, err := repo.MarkStatus(msg.ID, domain.StatusDelivered, deliveredAt)
	req.NoError(err)
	req.Equal(domain.StatusDelivered, updated.Status)
	req.NotNil(updated.DeliveredAt)

	// Delivery does not clear the unread counter, reading does.
	count, err = repo.UnreadCount("doctor-1")
	req.NoError(err)
	req.Equal(1, count)

	readAt := time.Now().UTC()
	updated, err = repo.MarkStatus(msg.ID, domain.StatusRead, readAt)
	req.NoError(err)
	req.Equal(domain.StatusRead, updated.Status)
	req.NotNil(updated.ReadAt)

	count, err = repo.UnreadCount("doctor-1")
	req.NoError(err)
	req.Equal(0, count)
}

func Test_MarkStatus_Read_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repo := newTestRepository(t, 50)

	msg := testMessage("patient-1", "doctor-1", "hello", time.Now().UTC())
	req.NoError(repo.StoreMessage(msg))

	readAt := time.Now().UTC()
	first, err := repo.MarkStatus(msg.ID, domain.StatusRead, readAt)
	req.NoError(err)

	second, err := repo.MarkStatus(msg.ID, domain.StatusRead, readAt.Add(time.Minute))
	req.NoError(err)
	req.Equal(first.ReadAt, second.ReadAt)

	count, err := repo.UnreadCount("doctor-1")
	req.NoError(err)
	req.Equal(0, count)
}

func Test_Search_Restricted_To_Participants(t *testing.T) {
	req := require.New(t)
	repo := newTestRepository(t, 50)

	at := time.Now().UTC()
	mine := testMessage("patient-1", "doctor-1", "blood pressure readings attached", at)
	other := testMessage("patient-2", "doctor-2", "blood pressure feels fine", at)
	req.NoError(repo.StoreMessage(mine))
	req.NoError(repo.StoreMessage(other))

	results, err := repo.Search(context.Background(), "doctor-1", "pressure", 10)
	req.NoError(err)
	req.Len(results, 1)
	req.Equal(mine.ID, results[0].ID)

	none, err := repo.Search(context.Background(), "doctor-1", "antibiotics", 10)
	req.NoError(err)
	req.Empty(none)
}
