package crisis

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mindcare/realtime/pkg/model"
)

type fakeClassifier struct {
	decision Decision
	err      error
	delay    time.Duration
}

func (f *fakeClassifier) Score(ctx context.Context, msg *model.Message) (Decision, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		}
	}
	return f.decision, f.err
}

type fakeDispatcher struct {
	delay time.Duration

	mu     sync.Mutex
	alerts []Alert
}

func (f *fakeDispatcher) Escalate(ctx context.Context, alert Alert) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func (f *fakeDispatcher) first() Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alerts[0]
}

func testMessage() *model.Message {
	return &model.Message{RoomID: "r1", SenderID: "alice", Content: "hello"}
}

func TestInterceptProceed(t *testing.T) {
	req := require.New(t)
	dispatcher := &fakeDispatcher{}
	hook := NewHook(&fakeClassifier{}, dispatcher, time.Second, slog.Default())

	res := hook.Intercept(context.Background(), testMessage())
	req.Equal(Proceed, res.Outcome)
	req.Zero(dispatcher.count())
}

func TestInterceptFlaggedEscalatesExactlyOnce(t *testing.T) {
	req := require.New(t)
	dispatcher := &fakeDispatcher{}
	classifier := &fakeClassifier{decision: Decision{Flagged: true, Confidence: 0.97, Category: "self_harm"}}
	hook := NewHook(classifier, dispatcher, time.Second, slog.Default())

	res := hook.Intercept(context.Background(), testMessage())
	req.Equal(ProceedAndAlert, res.Outcome)
	req.Eventually(func() bool { return dispatcher.count() == 1 }, time.Second, 5*time.Millisecond)
	alert := dispatcher.first()
	req.Equal("critical", alert.Level)
	req.Equal("self_harm", alert.Category)
	req.Equal("alice", alert.UserID)
}

func TestEscalationRunsOffTheMessagePath(t *testing.T) {
	req := require.New(t)
	dispatcher := &fakeDispatcher{delay: 300 * time.Millisecond}
	classifier := &fakeClassifier{decision: Decision{Flagged: true, Confidence: 0.9, Category: "self_harm"}}
	hook := NewHook(classifier, dispatcher, time.Second, slog.Default())

	start := time.Now()
	res := hook.Intercept(context.Background(), testMessage())
	req.Equal(ProceedAndAlert, res.Outcome)
	// A slow escalation channel must not stall delivery.
	req.Less(time.Since(start), 200*time.Millisecond)

	// The alert still lands.
	req.Eventually(func() bool { return dispatcher.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	req.Equal("high", dispatcher.first().Level)
}

func TestInterceptBlockHolds(t *testing.T) {
	req := require.New(t)
	dispatcher := &fakeDispatcher{}
	classifier := &fakeClassifier{decision: Decision{Block: true, Category: "policy_violation"}}
	hook := NewHook(classifier, dispatcher, time.Second, slog.Default())

	res := hook.Intercept(context.Background(), testMessage())
	req.Equal(Hold, res.Outcome)
	req.Equal("policy_violation", res.HoldReason)
	req.Zero(dispatcher.count())
}

func TestInterceptTimeoutFailsOpen(t *testing.T) {
	req := require.New(t)
	dispatcher := &fakeDispatcher{}
	classifier := &fakeClassifier{delay: time.Second, decision: Decision{Flagged: true, Confidence: 0.99}}
	hook := NewHook(classifier, dispatcher, 20*time.Millisecond, slog.Default())

	res := hook.Intercept(context.Background(), testMessage())
	req.Equal(Proceed, res.Outcome)

	// The outage itself is escalated, not the message.
	req.Eventually(func() bool { return dispatcher.count() == 1 }, time.Second, 5*time.Millisecond)
	req.Equal("classifier_timeout", dispatcher.first().Category)
}

func TestInterceptClassifierErrorFailsOpen(t *testing.T) {
	req := require.New(t)
	dispatcher := &fakeDispatcher{}
	classifier := &fakeClassifier{err: context.DeadlineExceeded}
	hook := NewHook(classifier, dispatcher, time.Second, slog.Default())

	res := hook.Intercept(context.Background(), testMessage())
	req.Equal(Proceed, res.Outcome)
}

func TestRiskLevels(t *testing.T) {
	req := require.New(t)
	req.Equal("critical", riskLevel(0.96))
	req.Equal("high", riskLevel(0.9))
	req.Equal("medium", riskLevel(0.8))
	req.Equal("low", riskLevel(0.65))
}

func TestExcerptCapped(t *testing.T) {
	req := require.New(t)
	long := strings.Repeat("é", 600)
	req.Equal(500, len([]rune(excerpt(long))))
	req.Equal("short", excerpt("short"))
}
