package dialogue

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/attenda/clinic-assistant/internal/loopguard"
	"github.com/attenda/clinic-assistant/internal/observability/metrics"
	"github.com/attenda/clinic-assistant/internal/session"
	"github.com/attenda/clinic-assistant/pkg/logging"
)

// TurnResult is the outcome of one inbound message.
type TurnResult struct {
	Reply     string
	Escalated bool
}

// TurnService runs the full pipeline for one inbound chat message: session
// load, escalation short-circuit, state machine, loop guard, transcript
// append, session save.
type TurnService struct {
	sessions   *session.Store
	machine    *Machine
	guard      *loopguard.Guard
	transcript *TranscriptStore
	metrics    *metrics.ConversationMetrics
	logger     *logging.Logger
}

// NewTurnService wires the turn pipeline. The transcript store and metrics
// may be nil; both degrade to no-ops.
func NewTurnService(sessions *session.Store, machine *Machine, guard *loopguard.Guard, transcript *TranscriptStore, m *metrics.ConversationMetrics, logger *logging.Logger) *TurnService {
	if sessions == nil || machine == nil || guard == nil {
		panic("dialogue: sessions, machine and guard required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TurnService{
		sessions:   sessions,
		machine:    machine,
		guard:      guard,
		transcript: transcript,
		metrics:    m,
		logger:     logger.Component("turn_service"),
	}
}

// HandleTurn processes one inbound message and returns the outbound reply.
func (s *TurnService) HandleTurn(ctx context.Context, subjectID, text string) (TurnResult, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "dialogue.HandleTurn",
		trace.WithAttributes(attribute.String("subject.id", subjectID)),
	)
	defer span.End()

	// An escalated conversation is silenced before the state machine runs,
	// so no dialogue side effects can fire while an operator owns it.
	escalated, err := s.guard.Escalated(ctx, subjectID)
	if err != nil {
		span.RecordError(err)
		return TurnResult{}, fmt.Errorf("dialogue: check escalation: %w", err)
	}
	if escalated {
		s.appendTranscript(ctx, subjectID, "user", text)
		s.appendTranscript(ctx, subjectID, "assistant", loopguard.HandoffMessage)
		s.metrics.ObserveTurn("escalated", "short_circuit", time.Since(start).Seconds())
		return TurnResult{Reply: loopguard.HandoffMessage, Escalated: true}, nil
	}

	s.appendTranscript(ctx, subjectID, "user", text)

	var reply string
	var step session.Step
	sess, err := s.sessions.Mutate(ctx, subjectID, func(sess *session.Session) error {
		var herr error
		reply, herr = s.machine.HandleMessage(ctx, sess, text)
		step = sess.Step
		return herr
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveTurn(string(step), "error", time.Since(start).Seconds())
		return TurnResult{}, fmt.Errorf("dialogue: handle turn: %w", err)
	}

	// Terminal steps tear the session down; the next message starts fresh.
	if sess.Step == session.StepCompleted || sess.Step == session.StepCancelled {
		if derr := s.sessions.Delete(ctx, subjectID); derr != nil {
			s.logger.Warn("session teardown failed", "subject_id", subjectID, "error", derr)
		}
	}

	verdict, err := s.guard.Check(ctx, subjectID, reply)
	if err != nil {
		span.RecordError(err)
		return TurnResult{}, fmt.Errorf("dialogue: loop guard: %w", err)
	}
	if verdict.Escalated {
		s.metrics.ObserveEscalation()
	}

	s.appendTranscript(ctx, subjectID, "assistant", verdict.Response)
	s.metrics.ObserveTurn(string(step), "ok", time.Since(start).Seconds())

	return TurnResult{Reply: verdict.Response, Escalated: verdict.Escalated}, nil
}

// appendTranscript is best-effort: a transcript outage must not fail a turn.
func (s *TurnService) appendTranscript(ctx context.Context, subjectID, role, content string) {
	if err := s.transcript.AppendMessage(ctx, subjectID, TranscriptMessage{Role: role, Content: content}); err != nil {
		s.logger.Warn("transcript append failed", "subject_id", subjectID, "role", role, "error", err)
	}
}
