package dialogue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TranscriptStore persists conversations and their messages to PostgreSQL
// for long-term history. All methods are nil-safe so a deployment without a
// transcript database degrades to no-ops rather than failed turns.
type TranscriptStore struct {
	db *sql.DB
}

// NewTranscriptStore creates a transcript store. Returns nil when db is nil.
func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	if db == nil {
		return nil
	}
	return &TranscriptStore{db: db}
}

// ConversationRecord is one subject's conversation row.
type ConversationRecord struct {
	ID                  uuid.UUID
	SubjectID           string
	Status              string
	MessageCount        int
	UserMessageCount    int
	AssistantMsgCount   int
	StartedAt           time.Time
	LastMessageAt       *time.Time
}

// TranscriptMessage is one turn's worth of text in either direction.
type TranscriptMessage struct {
	Role      string // "user" or "assistant"
	Content   string
	Timestamp time.Time
}

// EnsureConversation creates the conversation row for a subject if it does
// not exist and returns its id.
func (s *TranscriptStore) EnsureConversation(ctx context.Context, subjectID string) (uuid.UUID, error) {
	if s == nil || s.db == nil {
		return uuid.Nil, nil
	}

	var existingID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE subject_id = $1`,
		subjectID,
	).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("dialogue: check existing conversation: %w", err)
	}

	newID := uuid.New()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, subject_id, status,
			message_count, user_message_count, assistant_message_count,
			started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, newID, subjectID, "active", 0, 0, 0, now, now, now)
	if err != nil {
		// Another handler may have created it between the check and the
		// insert; re-read in that case.
		if strings.Contains(err.Error(), "duplicate key") {
			return s.EnsureConversation(ctx, subjectID)
		}
		return uuid.Nil, fmt.Errorf("dialogue: create conversation: %w", err)
	}
	return newID, nil
}

// AppendMessage persists one message and bumps the conversation counters.
func (s *TranscriptStore) AppendMessage(ctx context.Context, subjectID string, msg TranscriptMessage) error {
	if s == nil || s.db == nil {
		return nil
	}

	conversationID, err := s.EnsureConversation(ctx, subjectID)
	if err != nil {
		return err
	}

	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), conversationID, msg.Role, msg.Content, timestamp)
	if err != nil {
		return fmt.Errorf("dialogue: insert message: %w", err)
	}

	counterColumn := "assistant_message_count"
	if msg.Role == "user" {
		counterColumn = "user_message_count"
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE conversations
		SET message_count = message_count + 1,
		    %s = %s + 1,
		    last_message_at = $1,
		    updated_at = $1
		WHERE id = $2
	`, counterColumn, counterColumn), timestamp, conversationID)
	if err != nil {
		return fmt.Errorf("dialogue: update counters: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit messages for a subject, oldest first.
func (s *TranscriptStore) RecentMessages(ctx context.Context, subjectID string, limit int) ([]TranscriptMessage, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.role, m.content, m.created_at
		FROM conversation_messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.subject_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2
	`, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("dialogue: query messages: %w", err)
	}
	defer rows.Close()

	var messages []TranscriptMessage
	for rows.Next() {
		var msg TranscriptMessage
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("dialogue: scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Flip to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
