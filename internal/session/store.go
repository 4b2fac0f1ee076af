package session

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

const defaultSessionTTL = 72 * time.Hour

// ErrVersionConflict indicates the stored session changed between load and
// save. The caller should reload and retry the turn.
var ErrVersionConflict = errors.New("session: version conflict")

// Store persists sessions in Redis with optimistic versioning.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewStore creates a session store. A non-positive ttl falls back to the
// default retention window.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Store{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("clinic.internal.session"),
	}
}

func sessionKey(subjectID string) string {
	return fmt.Sprintf("session:%s", subjectID)
}

// Load fetches the session for a subject. Returns nil when none exists.
// Loads have no side effects.
func (s *Store) Load(ctx context.Context, subjectID string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.load")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(subjectID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode: %w", err)
	}
	return &sess, nil
}

// Save persists the session iff the stored version still matches the version
// the caller loaded. On success the in-memory session's version is bumped.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return errors.New("session: session cannot be nil")
	}
	ctx, span := s.tracer.Start(ctx, "session.save")
	defer span.End()

	key := sessionKey(sess.SubjectID)
	expected := sess.Version

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
			if expected != 0 {
				return ErrVersionConflict
			}
		case err != nil:
			return fmt.Errorf("session: failed to read current: %w", err)
		default:
			var current Session
			if err := json.Unmarshal(data, &current); err != nil {
				return fmt.Errorf("session: failed to decode current: %w", err)
			}
			if current.Version != expected {
				return ErrVersionConflict
			}
		}

		next := *sess
		next.Version = expected + 1
		next.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("session: failed to marshal: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return ErrVersionConflict
		}
		return err
	}, key)

	if err != nil {
		span.RecordError(err)
		return err
	}

	sess.Version = expected + 1
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes the session for a subject.
func (s *Store) Delete(ctx context.Context, subjectID string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(subjectID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to delete: %w", err)
	}
	return nil
}

// maxMutateRetries bounds how often a turn is replayed on write conflicts.
const maxMutateRetries = 3

// Mutate runs a load-mutate-save cycle, retrying from a fresh load when a
// concurrent turn won the write race. The mutator receives a fresh session
// when none exists yet.
func (s *Store) Mutate(ctx context.Context, subjectID string, fn func(*Session) error) (*Session, error) {
	var lastErr error
	for attempt := 0; attempt < maxMutateRetries; attempt++ {
		sess, err := s.Load(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			sess = New(subjectID)
		}
		if err := fn(sess); err != nil {
			return nil, err
		}
		if err := s.Save(ctx, sess); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return sess, nil
	}
	return nil, fmt.Errorf("session: mutate retries exhausted: %w", lastErr)
}
