package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/pkg/events"
)

type schedulerFixture struct {
	scheduler  *Scheduler
	scheduled  *fakeScheduledRepo
	messages   *fakeMessageRepo
	deliveries *fakeDeliveryRepo
	guests     *fakeGuestRepo
	sender     *fakeSender
	bus        *fakeBus
	mail       *fakeMailer

	event  *domain.Event
	host   domain.Caller
	roster []*domain.Guest
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	hostID := uuid.New()
	event := &domain.Event{ID: uuid.New(), HostUserID: hostID, Title: "Sara & Tom", SMSTag: "SaraTom"}
	roster := testRoster(event.ID)

	eventsRepo := newFakeEventRepo(event)
	guests := newFakeGuestRepo(roster...)
	scheduled := newFakeScheduledRepo()
	messages := newFakeMessageRepo()
	deliveries := newFakeDeliveryRepo()
	sender := newFakeSender()
	bus := &fakeBus{}
	mail := &fakeMailer{}
	users := newFakeUserRepo(&domain.User{ID: hostID, Phone: "+15551110000", Email: "host@example.com"})

	cfg := testMessagingConfig()
	resolver := NewResolver(eventsRepo, guests)
	dispatcher := NewDispatcher(deliveries, guests, sender, nil, cfg)

	return &schedulerFixture{
		scheduler:  NewScheduler(scheduled, messages, eventsRepo, users, resolver, dispatcher, bus, mail, cfg),
		scheduled:  scheduled,
		messages:   messages,
		deliveries: deliveries,
		guests:     guests,
		sender:     sender,
		bus:        bus,
		mail:       mail,
		event:      event,
		host:       domain.Caller{UserID: hostID, Phone: "+15551110000"},
		roster:     roster,
	}
}

func (f *schedulerFixture) createScheduled(t *testing.T, sendAt time.Time) *domain.ScheduledMessage {
	t.Helper()
	m, err := f.scheduler.Create(context.Background(), f.host, f.event.ID, CreateScheduleRequest{
		Content:     "Ceremony starts at 4pm sharp.",
		MessageType: domain.MessageAnnouncement,
		Filter:      domain.RecipientFilter{Type: domain.FilterAll},
		SendAt:      sendAt,
		SendViaSMS:  true,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return m
}

func TestSchedulerCreateEnforcesMinimumLead(t *testing.T) {
	f := newSchedulerFixture(t)
	now := time.Now()
	f.scheduler.now = func() time.Time { return now }

	_, err := f.scheduler.Create(context.Background(), f.host, f.event.ID, CreateScheduleRequest{
		Content:     "Too soon",
		MessageType: domain.MessageAnnouncement,
		Filter:      domain.RecipientFilter{Type: domain.FilterAll},
		SendAt:      now.Add(2 * time.Minute), // lead is 3 minutes
		SendViaSMS:  true,
	})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "send_at" {
		t.Fatalf("expected send_at validation error, got %v", err)
	}

	if m := f.createScheduled(t, now.Add(3*time.Minute)); m.Status != domain.ScheduleScheduled {
		t.Errorf("expected scheduled status at exactly the minimum lead, got %s", m.Status)
	}
}

func TestSchedulerCreateRequiresHost(t *testing.T) {
	f := newSchedulerFixture(t)

	_, err := f.scheduler.Create(context.Background(), domain.Caller{UserID: uuid.New()}, f.event.ID, CreateScheduleRequest{
		Content:     "hi",
		MessageType: domain.MessageDirect,
		Filter:      domain.RecipientFilter{Type: domain.FilterAll},
		SendAt:      time.Now().Add(time.Hour),
		SendViaSMS:  true,
	})
	// A non-host sees "not found", never "forbidden".
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for non-host caller, got %v", err)
	}
}

func TestSchedulerCreateCoercesType(t *testing.T) {
	f := newSchedulerFixture(t)
	now := time.Now()
	f.scheduler.now = func() time.Time { return now }

	// Direct to every eligible guest is an announcement in effect.
	eligible := []uuid.UUID{f.roster[0].ID, f.roster[1].ID}
	m, err := f.scheduler.Create(context.Background(), f.host, f.event.ID, CreateScheduleRequest{
		Content:     "See you all there!",
		MessageType: domain.MessageDirect,
		Filter:      domain.RecipientFilter{Type: domain.FilterExplicit, GuestIDs: eligible},
		SendAt:      now.Add(time.Hour),
		SendViaSMS:  true,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if m.MessageType != domain.MessageAnnouncement {
		t.Errorf("expected coercion to announcement, got %s", m.MessageType)
	}
	if m.RecipientCount != 2 {
		t.Errorf("expected snapshot count 2, got %d", m.RecipientCount)
	}
}

func TestSchedulerModifyFreezeWindow(t *testing.T) {
	f := newSchedulerFixture(t)
	now := time.Now()
	f.scheduler.now = func() time.Time { return now }

	sendAt := now.Add(time.Hour)
	m := f.createScheduled(t, sendAt)
	newContent := "Updated: ceremony moved to 5pm."

	// Outside the window edits go through and bump the version.
	updated, err := f.scheduler.Modify(context.Background(), f.host, m.ID, domain.ScheduledMessagePatch{Content: &newContent})
	if err != nil {
		t.Fatalf("Modify() error: %v", err)
	}
	if updated.Content != newContent || updated.Version != m.Version+1 {
		t.Errorf("expected edited content at version %d, got %q at version %d", m.Version+1, updated.Content, updated.Version)
	}
	if updated.ModificationCount != 1 {
		t.Errorf("expected modification count 1, got %d", updated.ModificationCount)
	}

	// Exactly at the window boundary the edit is rejected.
	f.scheduler.now = func() time.Time { return sendAt.Add(-f.scheduler.cfg.FreezeWindow) }
	_, err = f.scheduler.Modify(context.Background(), f.host, m.ID, domain.ScheduledMessagePatch{Content: &newContent})
	var fw *domain.FreezeWindowError
	if !errors.As(err, &fw) {
		t.Fatalf("expected FreezeWindowError at the boundary, got %v", err)
	}
	if fw.Remaining != f.scheduler.cfg.FreezeWindow {
		t.Errorf("expected remaining %s, got %s", f.scheduler.cfg.FreezeWindow, fw.Remaining)
	}

	// One tick before the boundary the edit is still allowed.
	f.scheduler.now = func() time.Time { return sendAt.Add(-f.scheduler.cfg.FreezeWindow - time.Second) }
	if _, err := f.scheduler.Modify(context.Background(), f.host, m.ID, domain.ScheduledMessagePatch{Content: &newContent}); err != nil {
		t.Fatalf("expected edit just outside the window to succeed, got %v", err)
	}
}

func TestSchedulerModifyRejectsTerminalStates(t *testing.T) {
	f := newSchedulerFixture(t)
	m := f.createScheduled(t, time.Now().Add(time.Hour))

	if _, err := f.scheduled.ClaimSent(context.Background(), m.ID, m.Version, time.Now()); err != nil {
		t.Fatal(err)
	}

	content := "too late"
	_, err := f.scheduler.Modify(context.Background(), f.host, m.ID, domain.ScheduledMessagePatch{Content: &content})
	var ise *domain.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError for a sent message, got %v", err)
	}
}

func TestSchedulerCancelIsIdempotent(t *testing.T) {
	f := newSchedulerFixture(t)
	m := f.createScheduled(t, time.Now().Add(time.Hour))
	ctx := context.Background()

	if err := f.scheduler.Cancel(ctx, f.host, m.ID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	// A second cancel observes the cancelled state and still succeeds.
	if err := f.scheduler.Cancel(ctx, f.host, m.ID); err != nil {
		t.Fatalf("repeat Cancel() error: %v", err)
	}

	current, _ := f.scheduled.GetByID(ctx, m.ID)
	if current.Status != domain.ScheduleCancelled {
		t.Errorf("expected cancelled, got %s", current.Status)
	}
}

func TestSchedulerCancelSentMessageFails(t *testing.T) {
	f := newSchedulerFixture(t)
	m := f.createScheduled(t, time.Now().Add(time.Hour))
	ctx := context.Background()

	if _, err := f.scheduler.Dispatch(ctx, m.ID); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	err := f.scheduler.Cancel(ctx, f.host, m.ID)
	var ise *domain.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InvalidStateError cancelling a sent message, got %v", err)
	}
}

func TestSchedulerDispatchDeliversOnce(t *testing.T) {
	f := newSchedulerFixture(t)
	m := f.createScheduled(t, time.Now().Add(time.Hour))
	ctx := context.Background()

	result, err := f.scheduler.Dispatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	// Roster has 2 eligible, reachable guests.
	if result.Sent != 2 || result.Failed != 0 {
		t.Fatalf("expected 2 sent, got %+v", result)
	}
	if f.sender.sentCount() != 2 {
		t.Errorf("expected 2 carrier sends, got %d", f.sender.sentCount())
	}
	if len(f.messages.created) != 1 {
		t.Fatalf("expected 1 message record, got %d", len(f.messages.created))
	}
	if f.messages.created[0].ScheduledID == nil || *f.messages.created[0].ScheduledID != m.ID {
		t.Error("message record must reference the scheduled message")
	}
	if !f.bus.published(events.MessageSent) {
		t.Error("expected a message sent event")
	}

	// The duplicate trigger is a no-op: terminal state, nothing sent.
	again, err := f.scheduler.Dispatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("duplicate Dispatch() error: %v", err)
	}
	if again != nil {
		t.Errorf("expected nil result on duplicate dispatch, got %+v", again)
	}
	if f.sender.sentCount() != 2 {
		t.Errorf("duplicate dispatch sent extra messages: %d total", f.sender.sentCount())
	}
}

// Concurrent triggers race for the status claim; exactly one wins and the
// recipient receives exactly one copy.
func TestSchedulerDispatchExactlyOnceUnderConcurrency(t *testing.T) {
	f := newSchedulerFixture(t)
	m := f.createScheduled(t, time.Now().Add(time.Hour))
	ctx := context.Background()

	const racers = 8
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.scheduler.Dispatch(ctx, m.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		var conflict *domain.ConflictError
		if err != nil && !errors.As(err, &conflict) {
			t.Fatalf("unexpected dispatch error: %v", err)
		}
	}

	if f.sender.sentCount() != 2 {
		t.Errorf("expected exactly 2 carrier sends across all racers, got %d", f.sender.sentCount())
	}
	if len(f.messages.created) != 1 {
		t.Errorf("expected exactly 1 message record, got %d", len(f.messages.created))
	}
}

func TestSchedulerDispatchAfterCancelSendsNothing(t *testing.T) {
	f := newSchedulerFixture(t)
	m := f.createScheduled(t, time.Now().Add(time.Hour))
	ctx := context.Background()

	if err := f.scheduler.Cancel(ctx, f.host, m.ID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	result, err := f.scheduler.Dispatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if result != nil || f.sender.sentCount() != 0 {
		t.Errorf("cancelled message must not deliver: result=%+v sends=%d", result, f.sender.sentCount())
	}
}

// Opt-outs landing after scheduling are honored at fire time: the live
// re-resolution drops them from an all-guests audience.
func TestSchedulerDispatchResolvesRosterLive(t *testing.T) {
	f := newSchedulerFixture(t)
	m := f.createScheduled(t, time.Now().Add(time.Hour))
	ctx := context.Background()

	optOut := true
	if _, err := f.guests.Update(ctx, f.roster[0].ID, domain.GuestPatch{SMSOptOut: &optOut}); err != nil {
		t.Fatal(err)
	}

	result, err := f.scheduler.Dispatch(ctx, m.ID)
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if result.Sent != 1 {
		t.Errorf("expected 1 send after the late opt-out, got %d", result.Sent)
	}
	for _, body := range f.sender.bodiesTo(*f.roster[0].Phone) {
		t.Errorf("opted-out guest received: %q", body)
	}
}

func TestSchedulerDispatchDueSweepsAndCountsDigest(t *testing.T) {
	f := newSchedulerFixture(t)
	now := time.Now()
	f.scheduler.now = func() time.Time { return now }

	f.createScheduled(t, now.Add(3*time.Minute))
	f.createScheduled(t, now.Add(4*time.Minute))

	f.scheduler.now = func() time.Time { return now.Add(10 * time.Minute) }
	processed, err := f.scheduler.DispatchDue(context.Background(), 50)
	if err != nil {
		t.Fatalf("DispatchDue() error: %v", err)
	}
	if processed != 2 {
		t.Errorf("expected 2 processed, got %d", processed)
	}
	if f.mail.digests != 2 {
		t.Errorf("expected a host digest per dispatch, got %d", f.mail.digests)
	}
}

// The immediate path and the scheduled path must produce identical effective
// types and identical SMS text for the same inputs.
func TestSendPathsAgree(t *testing.T) {
	ctx := context.Background()
	content := "Shuttle leaves the hotel at 3:15pm."

	runScheduled := func() (domain.MessageType, []string) {
		f := newSchedulerFixture(t)
		m, err := f.scheduler.Create(ctx, f.host, f.event.ID, CreateScheduleRequest{
			Content:     content,
			MessageType: domain.MessageAnnouncement,
			Filter:      domain.RecipientFilter{Type: domain.FilterAll},
			SendAt:      time.Now().Add(time.Hour),
			SendViaSMS:  true,
		})
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if _, err := f.scheduler.Dispatch(ctx, m.ID); err != nil {
			t.Fatalf("Dispatch() error: %v", err)
		}
		return f.messages.created[0].MessageType, f.sender.bodiesTo("+15550000001")
	}

	runImmediate := func() (domain.MessageType, []string) {
		f := newSchedulerFixture(t)
		cfg := testMessagingConfig()
		eventsRepo := newFakeEventRepo(f.event)
		guests := newFakeGuestRepo(testRoster(f.event.ID)...)
		sender := newFakeSender()
		messages := newFakeMessageRepo()
		dispatcher := NewDispatcher(newFakeDeliveryRepo(), guests, sender, nil, cfg)
		messenger := NewMessenger(messages, newFakeDeliveryRepo(), eventsRepo, NewResolver(eventsRepo, guests), dispatcher, &fakeBus{}, cfg)

		msg, _, err := messenger.Send(ctx, f.host, f.event.ID, SendRequest{
			Content:     content,
			MessageType: domain.MessageAnnouncement,
			Filter:      domain.RecipientFilter{Type: domain.FilterAll},
			SendViaSMS:  true,
		})
		if err != nil {
			t.Fatalf("Send() error: %v", err)
		}
		return msg.MessageType, sender.bodiesTo("+15550000001")
	}

	schedType, schedBodies := runScheduled()
	immType, immBodies := runImmediate()

	if schedType != immType {
		t.Errorf("effective type diverged: scheduled=%s immediate=%s", schedType, immType)
	}
	if len(schedBodies) != 1 || len(immBodies) != 1 {
		t.Fatalf("expected 1 send to the guest on each path, got %d and %d", len(schedBodies), len(immBodies))
	}
	if schedBodies[0] != immBodies[0] {
		t.Errorf("SMS text diverged:\nscheduled: %q\nimmediate: %q", schedBodies[0], immBodies[0])
	}
}
