package dialogue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockTranscript(t *testing.T) (sqlmock.Sqlmock, *TranscriptStore) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewTranscriptStore(db)
}

func TestEnsureConversationReturnsExisting(t *testing.T) {
	mock, store := newMockTranscript(t)
	existing := uuid.New()

	mock.ExpectQuery("SELECT id FROM conversations").
		WithArgs("+5511999990000").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(existing))

	got, err := store.EnsureConversation(context.Background(), "+5511999990000")
	require.NoError(t, err)
	assert.Equal(t, existing, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureConversationCreatesWhenMissing(t *testing.T) {
	mock, store := newMockTranscript(t)

	mock.ExpectQuery("SELECT id FROM conversations").
		WithArgs("+5511999990000").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO conversations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := store.EnsureConversation(context.Background(), "+5511999990000")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got, "expected a new conversation id")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMessageBumpsCounters(t *testing.T) {
	mock, store := newMockTranscript(t)
	conversationID := uuid.New()

	mock.ExpectQuery("SELECT id FROM conversations").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(conversationID))
	mock.ExpectExec("INSERT INTO conversation_messages").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE conversations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.AppendMessage(context.Background(), "+5511999990000", TranscriptMessage{
		Role:    "user",
		Content: "I'd like to book an appointment",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNilTranscriptStoreIsNoOp(t *testing.T) {
	var store *TranscriptStore
	ctx := context.Background()

	_, err := store.EnsureConversation(ctx, "x")
	assert.NoError(t, err)
	assert.NoError(t, store.AppendMessage(ctx, "x", TranscriptMessage{Role: "user", Content: "hi"}))

	msgs, err := store.RecentMessages(ctx, "x", 10)
	assert.NoError(t, err)
	assert.Nil(t, msgs)
}

func TestRecentMessagesChronologicalOrder(t *testing.T) {
	mock, store := newMockTranscript(t)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	// Query returns newest first; the store must flip to chronological.
	mock.ExpectQuery("SELECT m.role, m.content, m.created_at").
		WillReturnRows(sqlmock.NewRows([]string{"role", "content", "created_at"}).
			AddRow("assistant", "second", base.Add(time.Minute)).
			AddRow("user", "first", base))

	msgs, err := store.RecentMessages(context.Background(), "+5511999990000", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
}
