package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/internal/mailer"
	"github.com/grantdelgado/unveil-sub008/internal/repo/postgres"
	"github.com/grantdelgado/unveil-sub008/pkg/config"
	"github.com/grantdelgado/unveil-sub008/pkg/events"
	"github.com/grantdelgado/unveil-sub008/pkg/logger"
)

// Scheduler owns the scheduled-message lifecycle: create, edit inside the
// legal window, cancel, and the cron-triggered dispatch at fire time.
//
// Dispatch is safe under at-least-once invocation: the scheduled -> terminal
// transition is a compare-and-swap at the persistence layer, so a duplicate
// trigger observes the terminal state and delivers nothing.
type Scheduler struct {
	scheduled  postgres.ScheduledMessageRepository
	messages   postgres.MessageRepository
	eventsRepo postgres.EventRepository
	users      postgres.UserRepository
	resolver   *Resolver
	dispatcher *Dispatcher
	bus        events.Publisher
	mail       mailer.Service
	cfg        config.MessagingConfig

	// now is swappable for boundary tests.
	now func() time.Time
}

func NewScheduler(
	scheduled postgres.ScheduledMessageRepository,
	messages postgres.MessageRepository,
	eventsRepo postgres.EventRepository,
	users postgres.UserRepository,
	resolver *Resolver,
	dispatcher *Dispatcher,
	bus events.Publisher,
	mail mailer.Service,
	cfg config.MessagingConfig,
) *Scheduler {
	return &Scheduler{
		scheduled:  scheduled,
		messages:   messages,
		eventsRepo: eventsRepo,
		users:      users,
		resolver:   resolver,
		dispatcher: dispatcher,
		bus:        bus,
		mail:       mail,
		cfg:        cfg,
		now:        time.Now,
	}
}

type CreateScheduleRequest struct {
	Content     string                 `json:"content"`
	MessageType domain.MessageType     `json:"message_type"`
	Filter      domain.RecipientFilter `json:"filter"`
	SendAt      time.Time              `json:"send_at"`
	SendViaSMS  bool                   `json:"send_via_sms"`
	SendViaPush bool                   `json:"send_via_push"`
}

// Create schedules a message. The fire time must be at least the configured
// minimum lead ahead of now; the snapshot recipient count and effective type
// are computed from an authoring-time resolution.
func (s *Scheduler) Create(ctx context.Context, caller domain.Caller, eventID uuid.UUID, req CreateScheduleRequest) (*domain.ScheduledMessage, error) {
	if _, err := s.hostEvent(ctx, caller, eventID); err != nil {
		return nil, err
	}

	if err := validateContent(req.Content, s.cfg); err != nil {
		return nil, err
	}
	if err := validateMessageType(req.MessageType); err != nil {
		return nil, err
	}
	if err := validateFilter(req.Filter); err != nil {
		return nil, err
	}
	if !req.SendViaSMS && !req.SendViaPush {
		return nil, domain.Invalid("channels", "at least one delivery channel is required")
	}
	if req.SendAt.Sub(s.now()) < s.cfg.MinLeadTime {
		return nil, domain.Invalid("send_at", "send time must be at least "+s.cfg.MinLeadTime.String()+" from now")
	}

	res, err := s.resolver.Resolve(ctx, eventID, req.Filter, EvalAuthoring)
	if err != nil {
		return nil, err
	}
	effective := CoerceMessageType(req.MessageType, res.RecipientIDs(), res.EligibleIDs, req.Filter.Tags)

	created, err := s.scheduled.Create(ctx, &domain.ScheduledMessage{
		EventID:         eventID,
		SenderUserID:    caller.UserID,
		Content:         req.Content,
		MessageType:     effective,
		Filter:          req.Filter,
		TargetAllGuests: req.Filter.Type == domain.FilterAll,
		SendAt:          req.SendAt.UTC(),
		RecipientCount:  len(res.Recipients),
		SendViaSMS:      req.SendViaSMS,
		SendViaPush:     req.SendViaPush,
	})
	if err != nil {
		return nil, err
	}

	s.publishScheduleEvent(ctx, events.ScheduledMessageCreated, created)
	logger.InfoContext(ctx, "Scheduled message created",
		"scheduled_id", created.ID, "event_id", eventID, "send_at", created.SendAt, "recipients", created.RecipientCount)
	return created, nil
}

// Modify edits a scheduled message in place. Permitted only while the
// message is still scheduled and outside the freeze window; inside the
// window the host must cancel and recreate. Switching to immediate send is
// not an edit; that flow does not exist here.
func (s *Scheduler) Modify(ctx context.Context, caller domain.Caller, id uuid.UUID, patch domain.ScheduledMessagePatch) (*domain.ScheduledMessage, error) {
	m, err := s.hostMessage(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if m.Status != domain.ScheduleScheduled {
		return nil, &domain.InvalidStateError{Op: "modify", Status: string(m.Status)}
	}
	if remaining := m.SendAt.Sub(s.now()); remaining <= s.cfg.FreezeWindow {
		return nil, &domain.FreezeWindowError{Remaining: remaining, Window: s.cfg.FreezeWindow}
	}

	next := *m
	if patch.Content != nil {
		if err := validateContent(*patch.Content, s.cfg); err != nil {
			return nil, err
		}
		next.Content = *patch.Content
	}
	declared := next.MessageType
	if patch.MessageType != nil {
		if err := validateMessageType(*patch.MessageType); err != nil {
			return nil, err
		}
		declared = *patch.MessageType
	}
	if patch.Filter != nil {
		if err := validateFilter(*patch.Filter); err != nil {
			return nil, err
		}
		next.Filter = *patch.Filter
		next.TargetAllGuests = patch.Filter.Type == domain.FilterAll
	}
	if patch.SendAt != nil {
		if patch.SendAt.Sub(s.now()) < s.cfg.MinLeadTime {
			return nil, domain.Invalid("send_at", "send time must be at least "+s.cfg.MinLeadTime.String()+" from now")
		}
		next.SendAt = patch.SendAt.UTC()
	}
	if patch.SendViaSMS != nil {
		next.SendViaSMS = *patch.SendViaSMS
	}
	if patch.SendViaPush != nil {
		next.SendViaPush = *patch.SendViaPush
	}
	if !next.SendViaSMS && !next.SendViaPush {
		return nil, domain.Invalid("channels", "at least one delivery channel is required")
	}

	// The filter or roster may have changed; refresh the snapshot count and
	// re-run coercion against the new recipient set.
	res, err := s.resolver.Resolve(ctx, m.EventID, next.Filter, EvalAuthoring)
	if err != nil {
		return nil, err
	}
	next.MessageType = CoerceMessageType(declared, res.RecipientIDs(), res.EligibleIDs, next.Filter.Tags)
	next.RecipientCount = len(res.Recipients)

	updated, err := s.scheduled.Update(ctx, &next, m.Version)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Version moved underneath us: a concurrent edit, cancel or dispatch.
		return nil, &domain.ConflictError{Reason: "message was changed concurrently, reload and retry"}
	}

	s.publishScheduleEvent(ctx, events.ScheduledMessageUpdated, updated)
	return updated, nil
}

func (s *Scheduler) ListByEvent(ctx context.Context, caller domain.Caller, eventID uuid.UUID, limit, offset int) ([]domain.ScheduledMessage, error) {
	if _, err := s.hostEvent(ctx, caller, eventID); err != nil {
		return nil, err
	}
	return s.scheduled.ListByEvent(ctx, eventID, limit, offset)
}

// Cancel moves a scheduled message to cancelled. Cancelling an
// already-cancelled message is a no-op success so UI double-submits stay
// harmless; cancelling a sent or failed message surfaces the terminal state.
func (s *Scheduler) Cancel(ctx context.Context, caller domain.Caller, id uuid.UUID) error {
	m, err := s.hostMessage(ctx, caller, id)
	if err != nil {
		return err
	}

	if m.Status == domain.ScheduleCancelled {
		return nil
	}
	if m.Status.Terminal() {
		return &domain.InvalidStateError{Op: "cancel", Status: string(m.Status)}
	}

	ok, err := s.scheduled.CancelIfScheduled(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race; report what actually happened.
		current, err := s.scheduled.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current == nil || current.Status == domain.ScheduleCancelled {
			return nil
		}
		return &domain.InvalidStateError{Op: "cancel", Status: string(current.Status)}
	}

	m.Status = domain.ScheduleCancelled
	s.publishScheduleEvent(ctx, events.ScheduledMessageCanceled, m)
	return nil
}

// Dispatch fires one due message. It is invoked by the external time trigger
// and must tolerate duplicate and concurrent invocations: only the caller
// that wins the status compare-and-swap delivers.
//
// A nil result with nil error means the message had already reached a
// terminal state and nothing was sent.
func (s *Scheduler) Dispatch(ctx context.Context, id uuid.UUID) (*domain.DispatchResult, error) {
	m, err := s.scheduled.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.NotFound("scheduled message")
	}
	if m.Status.Terminal() {
		return nil, nil
	}

	event, err := s.eventsRepo.GetByID(ctx, m.EventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		s.failDispatch(ctx, m, "event no longer exists")
		return nil, domain.NotFound("event")
	}

	// Live re-resolution: announcement and channel audiences reflect the
	// roster as of fire time, explicit selections stay frozen minus opt-outs.
	res, err := s.resolver.Resolve(ctx, m.EventID, m.Filter, EvalSend)
	if err != nil {
		s.failDispatch(ctx, m, err.Error())
		return nil, err
	}
	effective := CoerceMessageType(m.MessageType, res.RecipientIDs(), res.EligibleIDs, m.Filter.Tags)

	sentAt := s.now().UTC()
	claimed, err := s.scheduled.ClaimSent(ctx, id, m.Version, sentAt)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Another dispatcher, an edit, or a cancellation got there first.
		current, err := s.scheduled.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current != nil && current.Status.Terminal() {
			return nil, nil
		}
		return nil, &domain.ConflictError{Reason: "scheduled message changed during dispatch"}
	}

	msg, err := s.messages.Create(ctx, &domain.Message{
		EventID:      m.EventID,
		SenderUserID: m.SenderUserID,
		ScheduledID:  &m.ID,
		Content:      m.Content,
		MessageType:  effective,
		Filter:       m.Filter,
		RecipientIDs: res.RecipientIDs(),
		SentAt:       sentAt,
	})
	if err != nil {
		return nil, err
	}

	result, err := s.dispatcher.Deliver(ctx, DeliverRequest{
		Message:    msg,
		Event:      event,
		Recipients: res.Recipients,
		Skipped:    res.Skipped,
		ViaSMS:     m.SendViaSMS,
		ViaPush:    m.SendViaPush,
	})
	if err != nil {
		return nil, err
	}

	s.publishSent(ctx, msg, m, result)
	s.notifyHost(ctx, event, result, "")
	return result, nil
}

// DispatchDue fires every message whose time has come. Called by the cron
// trigger; per-message failures are logged and do not stop the sweep.
func (s *Scheduler) DispatchDue(ctx context.Context, limit int) (processed int, err error) {
	due, err := s.scheduled.ListDue(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, err
	}

	for _, m := range due {
		if _, err := s.Dispatch(ctx, m.ID); err != nil {
			logger.ErrorContext(ctx, "Scheduled dispatch failed", "scheduled_id", m.ID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (s *Scheduler) failDispatch(ctx context.Context, m *domain.ScheduledMessage, reason string) {
	ok, err := s.scheduled.MarkFailed(ctx, m.ID, reason)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to mark scheduled message failed", "scheduled_id", m.ID, "error", err)
		return
	}
	if ok {
		m.Status = domain.ScheduleFailed
		s.publishScheduleEvent(ctx, events.ScheduledMessageFailed, m)
		if event, eerr := s.eventsRepo.GetByID(ctx, m.EventID); eerr == nil && event != nil {
			s.notifyHost(ctx, event, nil, reason)
		}
	}
}

func (s *Scheduler) hostEvent(ctx context.Context, caller domain.Caller, eventID uuid.UUID) (*domain.Event, error) {
	event, err := s.eventsRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	// A foreign event is reported as missing, never as forbidden.
	if event == nil || !event.IsHost(caller.UserID) {
		return nil, domain.NotFound("event")
	}
	return event, nil
}

func (s *Scheduler) hostMessage(ctx context.Context, caller domain.Caller, id uuid.UUID) (*domain.ScheduledMessage, error) {
	m, err := s.scheduled.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, domain.NotFound("scheduled message")
	}
	if _, err := s.hostEvent(ctx, caller, m.EventID); err != nil {
		return nil, domain.NotFound("scheduled message")
	}
	return m, nil
}

func (s *Scheduler) publishScheduleEvent(ctx context.Context, subject string, m *domain.ScheduledMessage) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(ctx, subject, events.ScheduledMessageEvent{
		ScheduledID:    m.ID,
		EventID:        m.EventID,
		Status:         string(m.Status),
		SendAt:         m.SendAt,
		RecipientCount: m.RecipientCount,
		Version:        m.Version,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish schedule event", "subject", subject, "error", err)
	}
}

func (s *Scheduler) publishSent(ctx context.Context, msg *domain.Message, m *domain.ScheduledMessage, result *domain.DispatchResult) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(ctx, events.MessageSent, events.MessageSentEvent{
		MessageID:      msg.ID,
		EventID:        msg.EventID,
		ScheduledID:    &m.ID,
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

func (s *Scheduler) notifyHost(ctx context.Context, event *domain.Event, result *domain.DispatchResult, failureReason string) {
	if s.mail == nil {
		return
	}
	host, err := s.users.FindByID(ctx, event.HostUserID)
	if err != nil || host == nil || host.Email == "" {
		return
	}

	sent, skipped, failed := 0, 0, 0
	if result != nil {
		sent, skipped, failed = result.Sent, result.Skipped, result.Failed
	}
	if err := s.mail.SendDispatchDigest(host.Email, host.FullName, event.Title, sent, skipped, failed, failureReason); err != nil {
		logger.WarnContext(ctx, "Failed to send dispatch digest", "event_id", event.ID, "error", err)
	}
}
