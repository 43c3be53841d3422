package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/internal/smsprovider"
	"github.com/grantdelgado/unveil-sub008/pkg/config"
)

func testMessagingConfig() config.MessagingConfig {
	return config.MessagingConfig{
		MinLeadTime:    3 * time.Minute,
		FreezeWindow:   time.Minute,
		MaxBodyLength:  1000,
		PoolSize:       4,
		BatchPause:     0,
		ErrorSampleCap: 10,
		Brand:          "Unveil",
	}
}

func strPtr(s string) *string { return &s }

// --- events ---

type fakeEventRepo struct {
	events map[uuid.UUID]*domain.Event
}

func newFakeEventRepo(events ...*domain.Event) *fakeEventRepo {
	r := &fakeEventRepo{events: map[uuid.UUID]*domain.Event{}}
	for _, e := range events {
		r.events[e.ID] = e
	}
	return r
}

func (r *fakeEventRepo) Create(ctx context.Context, hostUserID uuid.UUID, title, smsTag, location string, eventDate *time.Time) (*domain.Event, error) {
	e := &domain.Event{ID: uuid.New(), HostUserID: hostUserID, Title: title, SMSTag: smsTag, Location: location, EventDate: eventDate}
	r.events[e.ID] = e
	return e, nil
}

func (r *fakeEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	e, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *fakeEventRepo) ListByHost(ctx context.Context, hostUserID uuid.UUID) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range r.events {
		if e.HostUserID == hostUserID {
			out = append(out, *e)
		}
	}
	return out, nil
}

// --- guests ---

type fakeGuestRepo struct {
	mu     sync.Mutex
	guests map[uuid.UUID]*domain.Guest

	a2pMarked []uuid.UUID
}

func newFakeGuestRepo(guests ...*domain.Guest) *fakeGuestRepo {
	r := &fakeGuestRepo{guests: map[uuid.UUID]*domain.Guest{}}
	for _, g := range guests {
		r.guests[g.ID] = g
	}
	return r
}

func (r *fakeGuestRepo) CreateBatch(ctx context.Context, eventID uuid.UUID, imports []domain.GuestImport) ([]domain.Guest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Guest, 0, len(imports))
	for _, in := range imports {
		g := &domain.Guest{
			ID:         uuid.New(),
			EventID:    eventID,
			GuestName:  in.GuestName,
			Tags:       in.Tags,
			RSVPStatus: domain.RSVPPending,
		}
		if in.Phone != "" {
			g.Phone = strPtr(in.Phone)
		}
		r.guests[g.ID] = g
		out = append(out, *g)
	}
	return out, nil
}

func (r *fakeGuestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Guest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guests[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (r *fakeGuestRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Guest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Guest
	for _, g := range r.guests {
		if g.EventID == eventID && g.RemovedAt == nil {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (r *fakeGuestRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Guest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Guest
	for _, id := range ids {
		if g, ok := r.guests[id]; ok {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (r *fakeGuestRepo) Update(ctx context.Context, id uuid.UUID, patch domain.GuestPatch) (*domain.Guest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guests[id]
	if !ok || g.RemovedAt != nil {
		return nil, nil
	}
	if patch.GuestName != nil {
		g.GuestName = *patch.GuestName
	}
	if patch.PreferredName != nil {
		g.PreferredName = *patch.PreferredName
	}
	if patch.Phone != nil {
		g.Phone = patch.Phone
	}
	if patch.Tags != nil {
		g.Tags = *patch.Tags
	}
	if patch.RSVPStatus != nil {
		g.RSVPStatus = *patch.RSVPStatus
	}
	if patch.SMSOptOut != nil {
		g.SMSOptOut = *patch.SMSOptOut
	}
	cp := *g
	return &cp, nil
}

func (r *fakeGuestRepo) SoftRemove(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.guests[id]
	if !ok || g.RemovedAt != nil {
		return false, nil
	}
	now := time.Now()
	g.RemovedAt = &now
	return true, nil
}

func (r *fakeGuestRepo) LinkUserByPhone(ctx context.Context, phone string, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var linked []uuid.UUID
	for _, g := range r.guests {
		if g.Phone != nil && *g.Phone == phone && g.UserID == nil && g.RemovedAt == nil {
			uid := userID
			g.UserID = &uid
			linked = append(linked, g.ID)
		}
	}
	return linked, nil
}

func (r *fakeGuestRepo) FindLinkConflict(ctx context.Context, phone string, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.guests {
		if g.Phone != nil && *g.Phone == phone && g.UserID != nil && *g.UserID != userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeGuestRepo) MarkA2PNoticeSent(ctx context.Context, guestIDs []uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range guestIDs {
		if g, ok := r.guests[id]; ok && g.A2PNoticeSentAt == nil {
			t := at
			g.A2PNoticeSentAt = &t
			r.a2pMarked = append(r.a2pMarked, id)
		}
	}
	return nil
}

func (r *fakeGuestRepo) OptOutByPhone(ctx context.Context, phone string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, g := range r.guests {
		if g.Phone != nil && *g.Phone == phone && g.RemovedAt == nil {
			g.SMSOptOut = true
			n++
		}
	}
	return n, nil
}

func (r *fakeGuestRepo) Counts(ctx context.Context, eventID uuid.UUID) (*domain.GuestCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &domain.GuestCounts{}
	for _, g := range r.guests {
		if g.EventID != eventID || g.RemovedAt != nil {
			continue
		}
		c.Total++
		switch g.RSVPStatus {
		case domain.RSVPAttending:
			c.Attending++
		case domain.RSVPDeclined:
			c.Declined++
		case domain.RSVPMaybe:
			c.Maybe++
		case domain.RSVPPending:
			c.Pending++
		}
		if g.SMSOptOut {
			c.OptedOut++
		}
	}
	return c, nil
}

// --- scheduled messages ---

// fakeScheduledRepo mirrors the compare-and-swap guarantees of the real
// repository so concurrency tests exercise the same claim semantics.
type fakeScheduledRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*domain.ScheduledMessage
}

func newFakeScheduledRepo(messages ...*domain.ScheduledMessage) *fakeScheduledRepo {
	r := &fakeScheduledRepo{messages: map[uuid.UUID]*domain.ScheduledMessage{}}
	for _, m := range messages {
		r.messages[m.ID] = m
	}
	return r
}

func (r *fakeScheduledRepo) Create(ctx context.Context, m *domain.ScheduledMessage) (*domain.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	cp.ID = uuid.New()
	cp.Status = domain.ScheduleScheduled
	cp.Version = 1
	cp.CreatedAt = time.Now()
	r.messages[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeScheduledRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *fakeScheduledRepo) ListByEvent(ctx context.Context, eventID uuid.UUID, limit, offset int) ([]domain.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ScheduledMessage
	for _, m := range r.messages {
		if m.EventID == eventID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeScheduledRepo) Update(ctx context.Context, m *domain.ScheduledMessage, expectedVersion int) (*domain.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.messages[m.ID]
	if !ok || cur.Status != domain.ScheduleScheduled || cur.Version != expectedVersion {
		return nil, nil
	}
	next := *m
	next.Version = cur.Version + 1
	next.ModificationCount = cur.ModificationCount + 1
	now := time.Now()
	next.ModifiedAt = &now
	r.messages[m.ID] = &next
	cp := next
	return &cp, nil
}

func (r *fakeScheduledRepo) CancelIfScheduled(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.Status != domain.ScheduleScheduled {
		return false, nil
	}
	m.Status = domain.ScheduleCancelled
	return true, nil
}

func (r *fakeScheduledRepo) ClaimSent(ctx context.Context, id uuid.UUID, expectedVersion int, sentAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.Status != domain.ScheduleScheduled || m.Version != expectedVersion {
		return false, nil
	}
	m.Status = domain.ScheduleSent
	t := sentAt
	m.SentAt = &t
	return true, nil
}

func (r *fakeScheduledRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.Status != domain.ScheduleScheduled {
		return false, nil
	}
	m.Status = domain.ScheduleFailed
	m.FailureReason = reason
	return true, nil
}

func (r *fakeScheduledRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ScheduledMessage
	for _, m := range r.messages {
		if m.Status == domain.ScheduleScheduled && !m.SendAt.After(now) {
			out = append(out, *m)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// --- messages ---

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*domain.Message
	created  []*domain.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: map[uuid.UUID]*domain.Message{}}
}

func (r *fakeMessageRepo) Create(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	r.messages[cp.ID] = &cp
	r.created = append(r.created, &cp)
	out := cp
	return &out, nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) ListByEvent(ctx context.Context, eventID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.messages {
		if m.EventID == eventID {
			out = append(out, *m)
		}
	}
	return out, nil
}

// --- deliveries ---

type fakeDeliveryRepo struct {
	mu      sync.Mutex
	records []*domain.DeliveryRecord
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{}
}

func (r *fakeDeliveryRepo) Create(ctx context.Context, d *domain.DeliveryRecord) (*domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.MessageID == d.MessageID && existing.GuestID == d.GuestID {
			return nil, nil
		}
	}
	cp := *d
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	r.records = append(r.records, &cp)
	out := cp
	return &out, nil
}

func (r *fakeDeliveryRepo) UpdateStatusByProviderID(ctx context.Context, providerID string, status domain.DeliveryStatus, errorMessage string) (*domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ProviderID != nil && *rec.ProviderID == providerID && rec.Status == domain.DeliveryPending {
			rec.Status = status
			rec.ErrorMessage = errorMessage
			rec.UpdatedAt = time.Now()
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeDeliveryRepo) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DeliveryRecord
	for _, rec := range r.records {
		if rec.MessageID == messageID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeDeliveryRepo) CountByMessage(ctx context.Context, messageID uuid.UUID) (delivered, pending, failed int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.MessageID != messageID {
			continue
		}
		switch rec.Status {
		case domain.DeliveryDelivered:
			delivered++
		case domain.DeliveryPending:
			pending++
		case domain.DeliveryFailed:
			failed++
		}
	}
	return delivered, pending, failed, nil
}

// --- users ---

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[uuid.UUID]*domain.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) FindOrCreateByPhone(ctx context.Context, phone string) (*domain.User, error) {
	if u, _ := r.FindByPhone(ctx, phone); u != nil {
		return u, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &domain.User{ID: uuid.New(), Phone: phone}
	r.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, fullName, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	u.FullName = fullName
	u.Email = email
	cp := *u
	return &cp, nil
}

// --- SMS sender ---

type sentSMS struct {
	To   string
	Body string
}

// fakeSender records every outbound SMS. Phones listed in failFor are
// rejected to simulate per-recipient carrier failures.
type fakeSender struct {
	mu      sync.Mutex
	sent    []sentSMS
	failFor map[string]bool
	nextID  int
}

func newFakeSender() *fakeSender {
	return &fakeSender{failFor: map[string]bool{}}
}

func (s *fakeSender) Send(ctx context.Context, to, body string) (*smsprovider.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[to] {
		return nil, &domain.DeliveryError{Phone: to, Reason: "carrier rejected"}
	}
	s.sent = append(s.sent, sentSMS{To: to, Body: body})
	s.nextID++
	return &smsprovider.SendResult{ProviderID: uuid.New().String(), Status: "queued"}, nil
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSender) bodiesTo(phone string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.sent {
		if m.To == phone {
			out = append(out, m.Body)
		}
	}
	return out
}

// --- event bus ---

type fakeBus struct {
	mu       sync.Mutex
	subjects []string
}

func (b *fakeBus) Publish(ctx context.Context, subject string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	return nil
}

func (b *fakeBus) Close() error { return nil }

func (b *fakeBus) published(subject string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// --- mailer ---

type fakeMailer struct {
	mu      sync.Mutex
	digests int
}

func (m *fakeMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	return "", nil
}

func (m *fakeMailer) SendDispatchDigest(toEmail, toName, eventTitle string, sent, skipped, failed int, failureReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digests++
	return nil
}
