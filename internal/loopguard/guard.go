package loopguard

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/attenda/clinic-assistant/pkg/logging"
)

const (
	defaultRepetitionThreshold = 3
	defaultEscalationThreshold = 3

	// HandoffMessage is the fixed reply returned once a conversation has been
	// escalated to a human operator.
	HandoffMessage = "I'm connecting you with a member of our team who can help you directly. Someone will be in touch shortly."
)

// Category classifies a reply so substitutions stay on-topic.
type Category string

const (
	CategoryGreeting      Category = "greeting"
	CategoryAppointment   Category = "appointment"
	CategoryClarification Category = "clarification"
	CategoryError         Category = "error"
)

// substitutionPools holds alternative phrasings per category. The guard picks
// one at random when the assistant repeats itself.
var substitutionPools = map[Category][]string{
	CategoryGreeting: {
		"Hi again! How can I help you today?",
		"Hello! What can I do for you?",
		"Welcome back! Is there something I can help you with?",
	},
	CategoryAppointment: {
		"Let's try your booking another way. Could you tell me what you'd like to schedule?",
		"I want to get your appointment sorted. Could you rephrase what you're looking for?",
		"Let me help with that appointment. Which day works best for you?",
	},
	CategoryClarification: {
		"Sorry, I didn't quite catch that. Could you say it differently?",
		"I may have misunderstood. Could you rephrase that for me?",
		"Let's try again. Could you put that another way?",
	},
	CategoryError: {
		"Something went wrong on my end. Could you try that once more?",
		"Apologies, I hit a snag. Please try again in a moment.",
		"That didn't work as expected. Mind trying again?",
	},
}

// categoryKeywords maps keyword fragments to categories, checked in order.
var categoryKeywords = []struct {
	keyword  string
	category Category
}{
	{"hello", CategoryGreeting},
	{"hi ", CategoryGreeting},
	{"welcome", CategoryGreeting},
	{"appointment", CategoryAppointment},
	{"booking", CategoryAppointment},
	{"schedule", CategoryAppointment},
	{"slot", CategoryAppointment},
	{"sorry", CategoryError},
	{"wrong", CategoryError},
	{"error", CategoryError},
	{"try again", CategoryError},
}

// classifyResponse infers the substitution category from the original reply.
func classifyResponse(response string) Category {
	lower := strings.ToLower(response)
	for _, kw := range categoryKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.category
		}
	}
	return CategoryClarification
}

// EscalationNotifier alerts an operator when a conversation escalates.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, conversationID, reason string) error
}

// Result is the guard's verdict on a proposed reply.
type Result struct {
	// Response is the reply to send, possibly substituted or replaced by the
	// hand-off message.
	Response string
	// Escalated signals the conversation must be handed to a human.
	Escalated bool
}

// Guard applies repetition detection and escalation decisioning to every
// outbound assistant reply.
type Guard struct {
	store               *StateStore
	repetitionThreshold int
	escalationThreshold int
	pick                func(n int) int
	notifier            EscalationNotifier
	logger              *logging.Logger
}

// Option customizes guard behavior.
type Option func(*Guard)

// WithThresholds overrides the repetition and escalation thresholds.
func WithThresholds(repetition, escalation int) Option {
	return func(g *Guard) {
		if repetition > 0 {
			g.repetitionThreshold = repetition
		}
		if escalation > 0 {
			g.escalationThreshold = escalation
		}
	}
}

// WithPicker injects the random selection function, letting tests force a
// deterministic substitution choice.
func WithPicker(pick func(n int) int) Option {
	return func(g *Guard) {
		if pick != nil {
			g.pick = pick
		}
	}
}

// WithNotifier wires an operator notifier invoked on escalation.
func WithNotifier(n EscalationNotifier) Option {
	return func(g *Guard) {
		g.notifier = n
	}
}

// New creates a loop guard backed by the given state store.
func New(store *StateStore, logger *logging.Logger, opts ...Option) *Guard {
	if store == nil {
		panic("loopguard: state store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	g := &Guard{
		store:               store,
		repetitionThreshold: defaultRepetitionThreshold,
		escalationThreshold: defaultEscalationThreshold,
		pick:                rand.Intn,
		logger:              logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Escalated reports whether a conversation has been handed off to an
// operator. Callers use this to skip dialogue handling entirely, since an
// escalated conversation must not trigger side effects either.
func (g *Guard) Escalated(ctx context.Context, conversationID string) (bool, error) {
	state, err := g.store.Load(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return state.Escalated, nil
}

// Check evaluates a proposed reply for a conversation. The state update and
// the decision happen in one pass: counters always reflect the original
// proposed reply, never the substitution.
func (g *Guard) Check(ctx context.Context, conversationID, proposed string) (Result, error) {
	state, err := g.store.Load(ctx, conversationID)
	if err != nil {
		return Result{}, err
	}

	// Escalated conversations stay silenced until an operator resolves them.
	if state.Escalated {
		return Result{Response: HandoffMessage, Escalated: true}, nil
	}

	if proposed == state.LastResponse && state.LastResponse != "" {
		// CumulativeLoopCount counts every reply that belongs to a repeated
		// run. When the first repeat is detected, the run's opening reply
		// joins the loop retroactively.
		if state.ConsecutiveRepeatCount == 1 {
			state.CumulativeLoopCount++
		}
		state.ConsecutiveRepeatCount++
		state.CumulativeLoopCount++
	} else {
		state.ConsecutiveRepeatCount = 1
	}
	state.LastResponse = proposed

	if state.CumulativeLoopCount >= g.escalationThreshold {
		state.Escalated = true
		state.EscalationReason = fmt.Sprintf("cumulative loop count reached %d", state.CumulativeLoopCount)
		if err := g.store.Save(ctx, state); err != nil {
			return Result{}, err
		}
		g.logger.Warn("conversation escalated",
			"conversation_id", conversationID,
			"cumulative_loops", state.CumulativeLoopCount,
		)
		if g.notifier != nil {
			if nerr := g.notifier.NotifyEscalation(ctx, conversationID, state.EscalationReason); nerr != nil {
				g.logger.Error("escalation notify failed", "conversation_id", conversationID, "error", nerr)
			}
		}
		return Result{Response: HandoffMessage, Escalated: true}, nil
	}

	if err := g.store.Save(ctx, state); err != nil {
		return Result{}, err
	}

	if state.ConsecutiveRepeatCount >= g.repetitionThreshold {
		substituted := g.substitute(proposed)
		g.logger.Info("repeated reply substituted",
			"conversation_id", conversationID,
			"consecutive_repeats", state.ConsecutiveRepeatCount,
		)
		return Result{Response: substituted}, nil
	}

	return Result{Response: proposed}, nil
}

// substitute picks a category-matched alternative that differs from the
// original reply.
func (g *Guard) substitute(original string) string {
	pool := substitutionPools[classifyResponse(original)]
	candidates := make([]string, 0, len(pool))
	for _, alt := range pool {
		if alt != original {
			candidates = append(candidates, alt)
		}
	}
	if len(candidates) == 0 {
		return original
	}
	return candidates[g.pick(len(candidates))]
}
