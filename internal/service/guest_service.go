package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/internal/repo/postgres"
	"github.com/grantdelgado/unveil-sub008/pkg/events"
	"github.com/grantdelgado/unveil-sub008/pkg/logger"
)

// GuestService owns the roster: import, edits, RSVP, opt-out, soft remove.
type GuestService struct {
	guests     postgres.GuestRepository
	eventsRepo postgres.EventRepository
	bus        events.Publisher
}

func NewGuestService(guests postgres.GuestRepository, eventsRepo postgres.EventRepository, bus events.Publisher) *GuestService {
	return &GuestService{guests: guests, eventsRepo: eventsRepo, bus: bus}
}

// Import creates guests in bulk. Phone numbers are normalized to E.164; a
// number that cannot be normalized rejects the whole batch so the host can
// fix the import file instead of discovering holes later.
func (s *GuestService) Import(ctx context.Context, caller domain.Caller, eventID uuid.UUID, imports []domain.GuestImport) ([]domain.Guest, error) {
	if _, err := s.hostEvent(ctx, caller, eventID); err != nil {
		return nil, err
	}
	if len(imports) == 0 {
		return nil, domain.Invalid("guests", "at least one guest is required")
	}

	for i := range imports {
		if imports[i].GuestName == "" && imports[i].PreferredName == "" {
			return nil, domain.Invalid("guest_name", "guest name is required")
		}
		if imports[i].Phone != "" {
			normalized := domain.NormalizePhone(imports[i].Phone)
			if normalized == "" {
				return nil, domain.Invalid("phone", "invalid phone number: "+imports[i].Phone)
			}
			imports[i].Phone = normalized
		}
	}

	created, err := s.guests.CreateBatch(ctx, eventID, imports)
	if err != nil {
		return nil, err
	}

	for _, g := range created {
		s.publishGuest(ctx, events.GuestCreated, &g, "")
	}
	logger.InfoContext(ctx, "Guests imported", "event_id", eventID, "count", len(created))
	return created, nil
}

func (s *GuestService) List(ctx context.Context, caller domain.Caller, eventID uuid.UUID) ([]domain.Guest, error) {
	if _, err := s.hostEvent(ctx, caller, eventID); err != nil {
		return nil, err
	}
	return s.guests.ListByEvent(ctx, eventID)
}

func (s *GuestService) Counts(ctx context.Context, caller domain.Caller, eventID uuid.UUID) (*domain.GuestCounts, error) {
	if _, err := s.hostEvent(ctx, caller, eventID); err != nil {
		return nil, err
	}
	return s.guests.Counts(ctx, eventID)
}

// Update applies a host edit or a guest's own RSVP/opt-out change. Hosts may
// edit any guest of their event; a non-host caller may only touch guest rows
// linked to their own account.
func (s *GuestService) Update(ctx context.Context, caller domain.Caller, eventID, guestID uuid.UUID, patch domain.GuestPatch) (*domain.Guest, error) {
	guest, err := s.guests.GetByID(ctx, guestID)
	if err != nil {
		return nil, err
	}
	if guest == nil || guest.EventID != eventID {
		return nil, domain.NotFound("guest")
	}

	event, err := s.eventsRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, domain.NotFound("guest")
	}
	isSelf := guest.UserID != nil && *guest.UserID == caller.UserID
	if !event.IsHost(caller.UserID) && !isSelf {
		return nil, domain.NotFound("guest")
	}

	if patch.Phone != nil && *patch.Phone != "" {
		normalized := domain.NormalizePhone(*patch.Phone)
		if normalized == "" {
			return nil, domain.Invalid("phone", "invalid phone number")
		}
		patch.Phone = &normalized
	}
	if patch.RSVPStatus != nil {
		if _, ok := domain.ParseRSVPStatus(string(*patch.RSVPStatus)); !ok {
			return nil, domain.Invalid("rsvp_status", "unknown RSVP status")
		}
	}

	updated, err := s.guests.Update(ctx, guestID, patch)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.NotFound("guest")
	}

	if patch.RSVPStatus != nil && *patch.RSVPStatus != guest.RSVPStatus {
		s.publishGuest(ctx, events.GuestRSVPUpdated, updated, string(updated.RSVPStatus))
	} else {
		s.publishGuest(ctx, events.GuestUpdated, updated, "")
	}
	return updated, nil
}

// Remove soft-deletes a guest. Rows referenced by delivery history must
// survive, so nothing is ever hard-deleted here.
func (s *GuestService) Remove(ctx context.Context, caller domain.Caller, eventID, guestID uuid.UUID) error {
	if _, err := s.hostEvent(ctx, caller, eventID); err != nil {
		return err
	}

	guest, err := s.guests.GetByID(ctx, guestID)
	if err != nil {
		return err
	}
	if guest == nil || guest.EventID != eventID {
		return domain.NotFound("guest")
	}

	ok, err := s.guests.SoftRemove(ctx, guestID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFound("guest")
	}

	s.publishGuest(ctx, events.GuestRemoved, guest, "")
	return nil
}

// OptOutByPhone flips the opt-out flag on every guest row carrying the
// phone, across all events. Driven by the carrier's inbound STOP webhook.
func (s *GuestService) OptOutByPhone(ctx context.Context, rawPhone string) (int64, error) {
	phone := domain.NormalizePhone(rawPhone)
	if phone == "" {
		return 0, domain.Invalid("phone", "invalid phone number")
	}

	affected, err := s.guests.OptOutByPhone(ctx, phone)
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		logger.InfoContext(ctx, "Guest opted out via STOP", "phone_rows", affected)
	}
	return affected, nil
}

func (s *GuestService) hostEvent(ctx context.Context, caller domain.Caller, eventID uuid.UUID) (*domain.Event, error) {
	event, err := s.eventsRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil || !event.IsHost(caller.UserID) {
		return nil, domain.NotFound("event")
	}
	return event, nil
}

func (s *GuestService) publishGuest(ctx context.Context, subject string, g *domain.Guest, rsvp string) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(ctx, subject, events.GuestEvent{
		GuestID:    g.ID,
		EventID:    g.EventID,
		RSVPStatus: rsvp,
		OccurredAt: g.UpdatedAt,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish guest event", "subject", subject, "error", err)
	}
}
