// Package loopguard wraps every assistant turn with repetition detection. It
// is the conversation's last line of defense against the assistant being
// perceived as stuck: repeated replies get substituted, persistent loops get
// escalated to a human operator.
package loopguard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// State tracks repetition per conversation.
type State struct {
	ConversationID         string    `json:"conversation_id"`
	LastResponse           string    `json:"last_response"`
	ConsecutiveRepeatCount int       `json:"consecutive_repeat_count"`
	CumulativeLoopCount    int       `json:"cumulative_loop_count"`
	Escalated              bool      `json:"escalated"`
	EscalationReason       string    `json:"escalation_reason,omitempty"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// StateStore persists loop state in Redis. Unlike sessions, loop state has no
// TTL: it is cleared only when an operator marks the conversation resolved.
type StateStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewStateStore creates a loop state store.
func NewStateStore(client *redis.Client) *StateStore {
	if client == nil {
		panic("loopguard: redis client cannot be nil")
	}
	return &StateStore{
		redis:  client,
		tracer: otel.Tracer("clinic.internal.loopguard"),
	}
}

func stateKey(conversationID string) string {
	return fmt.Sprintf("loopstate:%s", conversationID)
}

// Load fetches loop state, returning a zero-counter state when absent.
func (s *StateStore) Load(ctx context.Context, conversationID string) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "loopguard.load_state")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return &State{ConversationID: conversationID}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("loopguard: failed to load state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("loopguard: failed to decode state: %w", err)
	}
	return &state, nil
}

// Save persists loop state.
func (s *StateStore) Save(ctx context.Context, state *State) error {
	if state == nil {
		return errors.New("loopguard: state cannot be nil")
	}
	ctx, span := s.tracer.Start(ctx, "loopguard.save_state")
	defer span.End()

	state.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("loopguard: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(state.ConversationID), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("loopguard: failed to persist state: %w", err)
	}
	return nil
}

// Resolve clears the loop state for a conversation. Called by the operator
// interface once a stuck conversation has been handled.
func (s *StateStore) Resolve(ctx context.Context, conversationID string) error {
	ctx, span := s.tracer.Start(ctx, "loopguard.resolve")
	defer span.End()

	if err := s.redis.Del(ctx, stateKey(conversationID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("loopguard: failed to resolve state: %w", err)
	}
	return nil
}
