package loopguard

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/attenda/clinic-assistant/pkg/logging"
)

func newTestGuard(t *testing.T, opts ...Option) (*Guard, *StateStore) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mr.Close)
	store := NewStateStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	opts = append([]Option{WithPicker(func(int) int { return 0 })}, opts...)
	return New(store, logging.Default(), opts...), store
}

func TestDistinctRepliesPassThrough(t *testing.T) {
	guard, store := newTestGuard(t)
	ctx := context.Background()

	for _, reply := range []string{"Hello!", "Which day?", "Got it, thanks."} {
		res, err := guard.Check(ctx, "conv-1", reply)
		if err != nil {
			t.Fatal(err)
		}
		if res.Escalated || res.Response != reply {
			t.Fatalf("distinct reply altered: %+v", res)
		}
	}

	state, err := store.Load(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if state.ConsecutiveRepeatCount != 1 || state.CumulativeLoopCount != 0 {
		t.Fatalf("counters = %d/%d, want 1/0", state.ConsecutiveRepeatCount, state.CumulativeLoopCount)
	}
}

func TestEscalationOnThirdIdenticalReply(t *testing.T) {
	guard, _ := newTestGuard(t, WithThresholds(3, 3))
	ctx := context.Background()
	const reply = "Could you repeat that?"

	first, err := guard.Check(ctx, "conv-2", reply)
	if err != nil {
		t.Fatal(err)
	}
	if first.Escalated || first.Response != reply {
		t.Fatalf("first call altered: %+v", first)
	}

	second, err := guard.Check(ctx, "conv-2", reply)
	if err != nil {
		t.Fatal(err)
	}
	if second.Escalated {
		t.Fatalf("second call escalated early: %+v", second)
	}

	third, err := guard.Check(ctx, "conv-2", reply)
	if err != nil {
		t.Fatal(err)
	}
	if !third.Escalated {
		t.Fatal("third identical reply must escalate with escalationThreshold=3")
	}
	if third.Response != HandoffMessage {
		t.Fatalf("Response = %q, want hand-off message", third.Response)
	}
}

func TestSubstitutionBeforeEscalation(t *testing.T) {
	guard, _ := newTestGuard(t, WithThresholds(3, 5))
	ctx := context.Background()
	const reply = "Sorry, I didn't understand."

	var last Result
	for i := 0; i < 3; i++ {
		var err error
		last, err = guard.Check(ctx, "conv-3", reply)
		if err != nil {
			t.Fatal(err)
		}
	}
	if last.Escalated {
		t.Fatal("should substitute, not escalate, below the escalation threshold")
	}
	if last.Response == reply {
		t.Fatal("third identical reply must be substituted with repetitionThreshold=3")
	}
}

func TestEscalatedConversationShortCircuits(t *testing.T) {
	guard, store := newTestGuard(t)
	ctx := context.Background()
	const reply = "Please hold."

	for i := 0; i < 3; i++ {
		if _, err := guard.Check(ctx, "conv-4", reply); err != nil {
			t.Fatal(err)
		}
	}

	// Even a brand-new reply is silenced once escalated.
	res, err := guard.Check(ctx, "conv-4", "Completely different reply")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Escalated || res.Response != HandoffMessage {
		t.Fatalf("escalated conversation answered: %+v", res)
	}

	// Operator resolution clears the circuit breaker.
	if err := store.Resolve(ctx, "conv-4"); err != nil {
		t.Fatal(err)
	}
	res, err = guard.Check(ctx, "conv-4", "Back to normal")
	if err != nil {
		t.Fatal(err)
	}
	if res.Escalated || res.Response != "Back to normal" {
		t.Fatalf("resolved conversation still guarded: %+v", res)
	}
}

func TestCumulativeCountSurvivesNonRepeats(t *testing.T) {
	guard, store := newTestGuard(t, WithThresholds(2, 10))
	ctx := context.Background()

	// A two-reply run, a distinct reply, then another two-reply run: four
	// replies total belong to loops.
	sequence := []string{"A", "A", "B", "C", "C"}
	for _, reply := range sequence {
		if _, err := guard.Check(ctx, "conv-5", reply); err != nil {
			t.Fatal(err)
		}
	}

	state, err := store.Load(ctx, "conv-5")
	if err != nil {
		t.Fatal(err)
	}
	if state.CumulativeLoopCount != 4 {
		t.Fatalf("CumulativeLoopCount = %d, want 4", state.CumulativeLoopCount)
	}
	if state.ConsecutiveRepeatCount != 2 {
		t.Fatalf("ConsecutiveRepeatCount = %d, want 2", state.ConsecutiveRepeatCount)
	}
}

type recordingNotifier struct {
	conversationID string
	reason         string
	calls          int
}

func (r *recordingNotifier) NotifyEscalation(_ context.Context, conversationID, reason string) error {
	r.calls++
	r.conversationID = conversationID
	r.reason = reason
	return nil
}

func TestEscalationNotifiesOperator(t *testing.T) {
	notifier := &recordingNotifier{}
	guard, _ := newTestGuard(t, WithNotifier(notifier))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := guard.Check(ctx, "conv-6", "same thing"); err != nil {
			t.Fatal(err)
		}
	}
	if notifier.calls != 1 {
		t.Fatalf("notifier calls = %d, want 1", notifier.calls)
	}
	if notifier.conversationID != "conv-6" || notifier.reason == "" {
		t.Fatalf("notifier payload: %+v", notifier)
	}

	// Short-circuited turns do not renotify.
	if _, err := guard.Check(ctx, "conv-6", "anything"); err != nil {
		t.Fatal(err)
	}
	if notifier.calls != 1 {
		t.Fatalf("notifier calls = %d after short-circuit, want 1", notifier.calls)
	}
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		response string
		want     Category
	}{
		{"Hello! Welcome to the clinic.", CategoryGreeting},
		{"Your appointment is almost booked.", CategoryAppointment},
		{"Sorry, something went wrong.", CategoryError},
		{"Could you tell me more?", CategoryClarification},
	}
	for _, tt := range tests {
		if got := classifyResponse(tt.response); got != tt.want {
			t.Errorf("classifyResponse(%q) = %s, want %s", tt.response, got, tt.want)
		}
	}
}

func TestSubstituteNeverReturnsOriginal(t *testing.T) {
	guard, _ := newTestGuard(t)
	for category, pool := range substitutionPools {
		for _, phrase := range pool {
			if got := guard.substitute(phrase); got == phrase {
				t.Errorf("substitute returned the original for %s pool", category)
			}
		}
	}
}
