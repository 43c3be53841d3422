package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/grantdelgado/unveil-sub008/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Subjects. Downstream consumers (realtime UI invalidation, analytics) listen
// on these and re-fetch affected aggregates; the core never holds a live
// subscription of its own.
const (
	// Guest events
	GuestCreated     = "guest.created"
	GuestUpdated     = "guest.updated"
	GuestRSVPUpdated = "guest.rsvp.updated"
	GuestRemoved     = "guest.removed"
	GuestLinked      = "guest.linked"

	// Messaging events
	MessageSent              = "message.sent"
	ScheduledMessageCreated  = "message.schedule.created"
	ScheduledMessageUpdated  = "message.schedule.updated"
	ScheduledMessageCanceled = "message.schedule.canceled"
	ScheduledMessageFailed   = "message.schedule.failed"

	// Delivery events
	DeliveryStatusChanged = "delivery.status.changed"
)

// Event payloads
type GuestEvent struct {
	GuestID    uuid.UUID `json:"guest_id"`
	EventID    uuid.UUID `json:"event_id"`
	RSVPStatus string    `json:"rsvp_status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type MessageSentEvent struct {
	MessageID      uuid.UUID  `json:"message_id"`
	EventID        uuid.UUID  `json:"event_id"`
	ScheduledID    *uuid.UUID `json:"scheduled_id,omitempty"`
	MessageType    string     `json:"message_type"`
	RecipientCount int        `json:"recipient_count"`
	SentCount      int        `json:"sent_count"`
	SkippedCount   int        `json:"skipped_count"`
	FailedCount    int        `json:"failed_count"`
	SentAt         time.Time  `json:"sent_at"`
}

type ScheduledMessageEvent struct {
	ScheduledID    uuid.UUID `json:"scheduled_id"`
	EventID        uuid.UUID `json:"event_id"`
	Status         string    `json:"status"`
	SendAt         time.Time `json:"send_at"`
	RecipientCount int       `json:"recipient_count"`
	Version        int       `json:"version"`
}

type DeliveryStatusEvent struct {
	DeliveryID uuid.UUID `json:"delivery_id"`
	MessageID  uuid.UUID `json:"message_id"`
	GuestID    uuid.UUID `json:"guest_id"`
	Status     string    `json:"status"`
	UpdatedAt  time.Time `json:"updated_at"`
}
