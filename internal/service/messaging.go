package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/internal/repo/postgres"
	"github.com/grantdelgado/unveil-sub008/pkg/config"
	"github.com/grantdelgado/unveil-sub008/pkg/events"
	"github.com/grantdelgado/unveil-sub008/pkg/logger"
)

// Messenger handles the immediate-send path and message history. It shares
// the resolver, coercion and dispatcher with the scheduled path so both
// compute identical effective types and SMS text.
type Messenger struct {
	messages   postgres.MessageRepository
	deliveries postgres.DeliveryRepository
	eventsRepo postgres.EventRepository
	resolver   *Resolver
	dispatcher *Dispatcher
	bus        events.Publisher
	cfg        config.MessagingConfig

	now func() time.Time
}

func NewMessenger(
	messages postgres.MessageRepository,
	deliveries postgres.DeliveryRepository,
	eventsRepo postgres.EventRepository,
	resolver *Resolver,
	dispatcher *Dispatcher,
	bus events.Publisher,
	cfg config.MessagingConfig,
) *Messenger {
	return &Messenger{
		messages:   messages,
		deliveries: deliveries,
		eventsRepo: eventsRepo,
		resolver:   resolver,
		dispatcher: dispatcher,
		bus:        bus,
		cfg:        cfg,
		now:        time.Now,
	}
}

type SendRequest struct {
	Content     string                 `json:"content"`
	MessageType domain.MessageType     `json:"message_type"`
	Filter      domain.RecipientFilter `json:"filter"`
	SendViaSMS  bool                   `json:"send_via_sms"`
	SendViaPush bool                   `json:"send_via_push"`
}

// Send composes and delivers a message right now. The recipient set is
// resolved at send time, the type is coerced against it, and the fan-out
// runs through the same dispatcher as scheduled sends.
func (m *Messenger) Send(ctx context.Context, caller domain.Caller, eventID uuid.UUID, req SendRequest) (*domain.Message, *domain.DispatchResult, error) {
	event, err := m.hostEvent(ctx, caller, eventID)
	if err != nil {
		return nil, nil, err
	}

	if err := validateContent(req.Content, m.cfg); err != nil {
		return nil, nil, err
	}
	if err := validateMessageType(req.MessageType); err != nil {
		return nil, nil, err
	}
	if err := validateFilter(req.Filter); err != nil {
		return nil, nil, err
	}
	if !req.SendViaSMS && !req.SendViaPush {
		return nil, nil, domain.Invalid("channels", "at least one delivery channel is required")
	}

	res, err := m.resolver.Resolve(ctx, eventID, req.Filter, EvalSend)
	if err != nil {
		return nil, nil, err
	}
	effective := CoerceMessageType(req.MessageType, res.RecipientIDs(), res.EligibleIDs, req.Filter.Tags)

	msg, err := m.messages.Create(ctx, &domain.Message{
		EventID:      eventID,
		SenderUserID: caller.UserID,
		Content:      req.Content,
		MessageType:  effective,
		Filter:       req.Filter,
		RecipientIDs: res.RecipientIDs(),
		SentAt:       m.now().UTC(),
	})
	if err != nil {
		return nil, nil, err
	}

	result, err := m.dispatcher.Deliver(ctx, DeliverRequest{
		Message:    msg,
		Event:      event,
		Recipients: res.Recipients,
		Skipped:    res.Skipped,
		ViaSMS:     req.SendViaSMS,
		ViaPush:    req.SendViaPush,
	})
	if err != nil {
		return nil, nil, err
	}

	m.publishSent(ctx, msg, result)
	return msg, result, nil
}

func (m *Messenger) ListMessages(ctx context.Context, caller domain.Caller, eventID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	if _, err := m.hostEvent(ctx, caller, eventID); err != nil {
		return nil, err
	}
	return m.messages.ListByEvent(ctx, eventID, limit, offset)
}

func (m *Messenger) ListDeliveries(ctx context.Context, caller domain.Caller, messageID uuid.UUID) ([]domain.DeliveryRecord, error) {
	msg, err := m.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, domain.NotFound("message")
	}
	if _, err := m.hostEvent(ctx, caller, msg.EventID); err != nil {
		return nil, domain.NotFound("message")
	}
	return m.deliveries.ListByMessage(ctx, messageID)
}

// ApplyDeliveryCallback records the carrier's delivery-status webhook.
func (m *Messenger) ApplyDeliveryCallback(ctx context.Context, providerID string, status domain.DeliveryStatus, errorMessage string) error {
	record, err := m.deliveries.UpdateStatusByProviderID(ctx, providerID, status, errorMessage)
	if err != nil {
		return err
	}
	if record == nil {
		// Unknown or already-final reference; callbacks are at-least-once.
		return nil
	}

	if m.bus != nil {
		err := m.bus.Publish(ctx, events.DeliveryStatusChanged, events.DeliveryStatusEvent{
			DeliveryID: record.ID,
			MessageID:  record.MessageID,
			GuestID:    record.GuestID,
			Status:     string(record.Status),
			UpdatedAt:  record.UpdatedAt,
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to publish delivery status event", "delivery_id", record.ID, "error", err)
		}
	}
	return nil
}

func (m *Messenger) hostEvent(ctx context.Context, caller domain.Caller, eventID uuid.UUID) (*domain.Event, error) {
	event, err := m.eventsRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil || !event.IsHost(caller.UserID) {
		return nil, domain.NotFound("event")
	}
	return event, nil
}

func (m *Messenger) publishSent(ctx context.Context, msg *domain.Message, result *domain.DispatchResult) {
	if m.bus == nil {
		return
	}
	err := m.bus.Publish(ctx, events.MessageSent, events.MessageSentEvent{
		MessageID:      msg.ID,
		EventID:        msg.EventID,
		MessageType:    string(msg.MessageType),
		RecipientCount: len(msg.RecipientIDs),
		SentCount:      result.Sent,
		SkippedCount:   result.Skipped,
		FailedCount:    result.Failed,
		SentAt:         msg.SentAt,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish message sent event", "message_id", msg.ID, "error", err)
	}
}
