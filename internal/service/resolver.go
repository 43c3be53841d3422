package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/internal/repo/postgres"
)

// EvalTime distinguishes the two instants a recipient filter is evaluated:
// at authoring (snapshot counts, UI preview) and at send.
type EvalTime int

const (
	EvalAuthoring EvalTime = iota
	EvalSend
)

// Resolution is the concrete outcome of evaluating a filter against the
// current roster.
type Resolution struct {
	// Recipients are the guests eligible for delivery.
	Recipients []domain.Guest
	// Skipped are explicit selections excluded at send time (opt-outs and
	// removed guests). They stay visible to the host as skipped, never
	// silently dropped.
	Skipped []domain.Guest
	// EligibleIDs is the full messaging-eligible roster for the event,
	// needed by type coercion.
	EligibleIDs []uuid.UUID
}

func (r *Resolution) RecipientIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(r.Recipients))
	for i, g := range r.Recipients {
		ids[i] = g.ID
	}
	return ids
}

// Resolver computes the guest set a message targets. It is a pure read over
// the roster; guests and messages are never mutated here.
//
// The roster is mutable out-of-band (RSVP changes, tag edits, opt-outs), so
// `all` and `tags` filters are recomputed live at send time while
// explicit selections stay frozen to the authored id list.
type Resolver struct {
	events postgres.EventRepository
	guests postgres.GuestRepository
}

func NewResolver(events postgres.EventRepository, guests postgres.GuestRepository) *Resolver {
	return &Resolver{events: events, guests: guests}
}

func (r *Resolver) Resolve(ctx context.Context, eventID uuid.UUID, filter domain.RecipientFilter, at EvalTime) (*Resolution, error) {
	event, err := r.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, domain.NotFound("event")
	}

	roster, err := r.guests.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	res := &Resolution{}
	byID := make(map[uuid.UUID]domain.Guest, len(roster))
	for _, g := range roster {
		byID[g.ID] = g
		if g.Eligible() {
			res.EligibleIDs = append(res.EligibleIDs, g.ID)
		}
	}

	switch filter.Type {
	case domain.FilterAll:
		for _, g := range roster {
			if g.Eligible() {
				res.Recipients = append(res.Recipients, g)
			}
		}

	case domain.FilterTags:
		// Tags may change between scheduling and firing, so this variant is
		// always evaluated against the current roster.
		for _, g := range roster {
			if g.Eligible() && g.HasAnyTag(filter.Tags) {
				res.Recipients = append(res.Recipients, g)
			}
		}

	case domain.FilterExplicit:
		for _, id := range filter.GuestIDs {
			g, ok := byID[id]
			if !ok {
				// Removed or foreign id; at send time report it as skipped.
				if at == EvalSend {
					res.Skipped = append(res.Skipped, domain.Guest{ID: id, EventID: eventID})
				}
				continue
			}
			if at == EvalSend && (g.SMSOptOut || g.RemovedAt != nil) {
				res.Skipped = append(res.Skipped, g)
				continue
			}
			res.Recipients = append(res.Recipients, g)
		}

	default:
		return nil, domain.Invalid("filter.type", "unknown recipient filter type")
	}

	// An empty recipient set is a valid zero-recipient outcome, not an error.
	return res, nil
}
