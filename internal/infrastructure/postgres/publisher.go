package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/poundofcure/go-intake/internal/infrastructure/redpanda"
	"github.com/poundofcure/go-intake/internal/session"
)

// EventPublisher stages lifecycle events in the outbox table. The relay
// moves them to the broker, so a broker outage never blocks a turn.
type EventPublisher struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewEventPublisher creates an outbox-backed publisher
func NewEventPublisher(pool *pgxpool.Pool, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{pool: pool, logger: logger}
}

// Publish writes the event to the outbox, keyed by session ID so each
// session's events stay ordered on the topic. Identity events are staged a
// second time on the audit trail, in the same transaction.
func (p *EventPublisher) Publish(ctx context.Context, event *session.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, topic := range EventTopics(event.EventType) {
		entry := &OutboxEntry{
			AggregateID:   event.AggregateID,
			AggregateType: event.AggregateType,
			EventType:     string(event.EventType),
			Payload:       payload,
			KafkaTopic:    topic,
			KafkaKey:      event.AggregateID,
		}
		if err := WriteEntry(ctx, tx, entry); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit outbox tx: %w", err)
	}

	p.logger.Debug("event staged in outbox",
		zap.String("event_type", string(event.EventType)),
		zap.String("session_id", event.AggregateID))
	return nil
}

// EventTopics returns the topics an event is staged on. Everything goes to
// the lifecycle stream; identity verification outcomes are additionally
// kept on the longer-retention audit trail.
func EventTopics(eventType session.EventType) []string {
	switch eventType {
	case session.EventIdentityVerified, session.EventVerificationLocked:
		return []string{redpanda.TopicIntakeEvents, redpanda.TopicAuditTrail}
	default:
		return []string{redpanda.TopicIntakeEvents}
	}
}
