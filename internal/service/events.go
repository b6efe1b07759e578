package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/acadex/acadex-api/internal/models"
)

const evaluationCompletedSubject = "acadex.evaluations.completed"

// evaluationCompletedEvent is the wire shape published after a grading run.
type evaluationCompletedEvent struct {
	AssignmentID uint      `json:"assignment_id"`
	UserID       uint      `json:"user_id"`
	Category     string    `json:"category"`
	Submissions  int       `json:"submissions"`
	CompletedAt  time.Time `json:"completed_at"`
}

// EventPublisher emits evaluation lifecycle events over NATS. A nil
// connection disables publishing; grading never depends on the broker.
type EventPublisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
	now    func() time.Time
}

// NewEventPublisher constructs the publisher. conn may be nil.
func NewEventPublisher(conn *nats.Conn, logger zerolog.Logger) *EventPublisher {
	return &EventPublisher{
		conn:   conn,
		logger: logger.With().Str("component", "event_publisher").Logger(),
		now:    time.Now,
	}
}

// EvaluationCompleted publishes the completion event. Failures are logged
// and swallowed; the result is already persisted.
func (p *EventPublisher) EvaluationCompleted(_ context.Context, assignment models.Assignment) {
	if p == nil || p.conn == nil {
		return
	}

	payload, err := json.Marshal(evaluationCompletedEvent{
		AssignmentID: assignment.ID,
		UserID:       assignment.UserID,
		Category:     assignment.Category,
		Submissions:  len(assignment.Results),
		CompletedAt:  p.now(),
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("event marshal failed")
		return
	}

	if err := p.conn.Publish(evaluationCompletedSubject, payload); err != nil {
		p.logger.Warn().Err(err).Str("subject", evaluationCompletedSubject).Msg("event publish failed")
	}
}
