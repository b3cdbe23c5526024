package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Lifecycle event subjects consumed by downstream services (notifications,
// analytics, the admin dashboard feed).
const (
	SubjectItemSubmitted   = "item.submitted"
	SubjectItemApproved    = "item.approved"
	SubjectItemRejected    = "item.rejected"
	SubjectItemListed      = "item.listed"
	SubjectItemRepriced    = "item.repriced"
	SubjectItemSold        = "item.sold"
	SubjectItemRemoved     = "item.removed"
	SubjectItemNeedsUnlist = "item.needs_manual_unlist"
)

type MessagePublisher interface {
	Publish(ctx context.Context, subject string, message interface{}) error
	PublishRaw(ctx context.Context, subject string, data []byte) error
}

// Envelope wraps every published event with an id and timestamp so consumers
// can deduplicate at-least-once deliveries.
type Envelope struct {
	EventID    string      `json:"event_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

type natsPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(conn *nats.Conn) (MessagePublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection cannot be nil")
	}
	return &natsPublisher{conn: conn}, nil
}

func (p *natsPublisher) Publish(ctx context.Context, subject string, message interface{}) error {
	envelope := Envelope{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Payload:    message,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal message to JSON for subject %s: %w", subject, err)
	}
	return p.PublishRaw(ctx, subject, data)
}

func (p *natsPublisher) PublishRaw(ctx context.Context, subject string, data []byte) error {
	if p.conn == nil {
		return fmt.Errorf("NATS connection is not initialized")
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish message to NATS subject %s: %w", subject, err)
	}
	return nil
}
