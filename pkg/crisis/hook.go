// Package crisis wires the safety classifier into the message path. The
// classifier itself is an external collaborator; only its invocation
// contract lives here. The hook runs synchronously before fanout under a
// fixed budget and fails open on timeout: availability of peer support
// communication takes priority over blocking on an unavailable classifier.
package crisis

import (
	"context"
	"log/slog"
	"time"

	"github.com/mindcare/realtime/pkg/model"
)

// Decision is the classifier's verdict on one message.
type Decision struct {
	Flagged      bool
	Block        bool // content must not reach other participants
	Confidence   float64
	Category     string
	MatchedTerms []string
}

// Classifier scores a single message for crisis risk.
type Classifier interface {
	Score(ctx context.Context, msg *model.Message) (Decision, error)
}

// Alert is the escalation payload sent to the crisis response channel,
// never delivered as if it were a normal room message.
type Alert struct {
	RoomID     string    `json:"room_id"`
	UserID     string    `json:"user_id"`
	Level      string    `json:"level"`
	Category   string    `json:"category"`
	Confidence float64   `json:"confidence"`
	Excerpt    string    `json:"excerpt"`
	At         time.Time `json:"at"`
}

// Dispatcher delivers alerts to the escalation channel.
type Dispatcher interface {
	Escalate(ctx context.Context, alert Alert) error
}

type Outcome int

const (
	Proceed Outcome = iota
	ProceedAndAlert
	Hold
)

type Result struct {
	Outcome    Outcome
	HoldReason string
}

// Risk thresholds for escalation levels.
const (
	levelLow      = 0.6
	levelMedium   = 0.75
	levelHigh     = 0.85
	levelCritical = 0.95
)

func riskLevel(confidence float64) string {
	switch {
	case confidence >= levelCritical:
		return "critical"
	case confidence >= levelHigh:
		return "high"
	case confidence >= levelMedium:
		return "medium"
	default:
		return "low"
	}
}

const excerptLimit = 500

type Hook struct {
	classifier Classifier
	dispatcher Dispatcher
	budget     time.Duration
	log        *slog.Logger
}

func NewHook(classifier Classifier, dispatcher Dispatcher, budget time.Duration, log *slog.Logger) *Hook {
	return &Hook{classifier: classifier, dispatcher: dispatcher, budget: budget, log: log}
}

// Intercept scores the message within the budget. On timeout or classifier
// failure the message proceeds to normal delivery and a classifier_timeout
// notice goes to the escalation channel so the outage is never silent.
// A flagged decision yields exactly one escalation; a blocking decision
// holds the message from other participants.
func (h *Hook) Intercept(ctx context.Context, msg *model.Message) Result {
	if h == nil || h.classifier == nil {
		return Result{Outcome: Proceed}
	}

	scoreCtx, cancel := context.WithTimeout(ctx, h.budget)
	defer cancel()

	type scored struct {
		decision Decision
		err      error
	}
	ch := make(chan scored, 1)
	go func() {
		d, err := h.classifier.Score(scoreCtx, msg)
		ch <- scored{d, err}
	}()

	select {
	case <-scoreCtx.Done():
		return h.failOpenOnTimeout(msg)
	case s := <-ch:
		if s.err != nil {
			if scoreCtx.Err() != nil {
				return h.failOpenOnTimeout(msg)
			}
			h.log.Error("crisis classifier failed, failing open", "room_id", msg.RoomID, "err", s.err)
			return Result{Outcome: Proceed}
		}
		if s.decision.Block {
			return Result{Outcome: Hold, HoldReason: s.decision.Category}
		}
		if !s.decision.Flagged {
			return Result{Outcome: Proceed}
		}
		h.escalate(Alert{
			RoomID:     msg.RoomID,
			UserID:     msg.SenderID,
			Level:      riskLevel(s.decision.Confidence),
			Category:   s.decision.Category,
			Confidence: s.decision.Confidence,
			Excerpt:    excerpt(msg.Content),
			At:         time.Now(),
		})
		return Result{Outcome: ProceedAndAlert}
	}
}

func (h *Hook) failOpenOnTimeout(msg *model.Message) Result {
	h.log.Warn("crisis classifier did not return within budget, failing open",
		"room_id", msg.RoomID, "budget", h.budget)
	h.escalate(Alert{
		RoomID:   msg.RoomID,
		UserID:   msg.SenderID,
		Level:    "operational",
		Category: "classifier_timeout",
		At:       time.Now(),
	})
	return Result{Outcome: Proceed}
}

// escalate hands the alert to the dispatcher off the message path: fanout
// must not wait on the escalation channel. Failures are logged, never
// silently dropped.
func (h *Hook) escalate(alert Alert) {
	if h.dispatcher == nil {
		h.log.Error("no alert dispatcher configured, escalation dropped", "room_id", alert.RoomID)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.dispatcher.Escalate(ctx, alert); err != nil {
			h.log.Error("failed to escalate crisis alert", "room_id", alert.RoomID, "err", err)
		}
	}()
}

func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLimit {
		return content
	}
	return string(runes[:excerptLimit])
}
