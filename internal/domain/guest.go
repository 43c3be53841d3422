package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type RSVPStatus string

const (
	RSVPAttending RSVPStatus = "attending"
	RSVPDeclined  RSVPStatus = "declined"
	RSVPMaybe     RSVPStatus = "maybe"
	RSVPPending   RSVPStatus = "pending"
)

func ParseRSVPStatus(s string) (RSVPStatus, bool) {
	switch RSVPStatus(s) {
	case RSVPAttending, RSVPDeclined, RSVPMaybe, RSVPPending:
		return RSVPStatus(s), true
	default:
		return "", false
	}
}

// Guest is one invitee of an event. Guests referenced by delivery history are
// never hard-deleted; RemovedAt marks a soft remove.
type Guest struct {
	ID              uuid.UUID  `json:"id"`
	EventID         uuid.UUID  `json:"event_id"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	GuestName       string     `json:"guest_name"`
	PreferredName   string     `json:"preferred_name,omitempty"` // host-set display override
	UserFullName    string     `json:"-"`                        // joined from the linked account
	Phone           *string    `json:"phone,omitempty"`          // E.164
	SMSOptOut       bool       `json:"sms_opt_out"`
	A2PNoticeSentAt *time.Time `json:"a2p_notice_sent_at,omitempty"`
	Tags            []string   `json:"tags"`
	RSVPStatus      RSVPStatus `json:"rsvp_status"`
	RemovedAt       *time.Time `json:"removed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DisplayName resolves the guest's name through the priority chain:
// preferred name, linked account full name, raw guest name, "Unnamed Guest".
func (g *Guest) DisplayName() string {
	if s := strings.TrimSpace(g.PreferredName); s != "" {
		return s
	}
	if s := strings.TrimSpace(g.UserFullName); s != "" {
		return s
	}
	if s := strings.TrimSpace(g.GuestName); s != "" {
		return s
	}
	return "Unnamed Guest"
}

// Eligible reports whether the guest belongs to the messaging-eligible roster:
// present, not declined, not opted out of SMS.
func (g *Guest) Eligible() bool {
	return g.RemovedAt == nil && g.RSVPStatus != RSVPDeclined && !g.SMSOptOut
}

// Reachable reports whether the guest can actually receive an SMS.
func (g *Guest) Reachable() bool {
	return g.Phone != nil && *g.Phone != "" && !g.SMSOptOut
}

// HasAnyTag reports whether the guest's tag set intersects the given list
// (inclusive OR).
func (g *Guest) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range g.Tags {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// GuestImport is the input for creating one guest during import/invite.
type GuestImport struct {
	GuestName     string   `json:"guest_name"`
	PreferredName string   `json:"preferred_name,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// GuestPatch is a partial update; nil fields are left unchanged.
type GuestPatch struct {
	GuestName     *string     `json:"guest_name,omitempty"`
	PreferredName *string     `json:"preferred_name,omitempty"`
	Phone         *string     `json:"phone,omitempty"`
	Tags          *[]string   `json:"tags,omitempty"`
	RSVPStatus    *RSVPStatus `json:"rsvp_status,omitempty"`
	SMSOptOut     *bool       `json:"sms_opt_out,omitempty"`
}

// GuestCounts is the per-event roster aggregate.
type GuestCounts struct {
	Total     int `json:"total"`
	Attending int `json:"attending"`
	Declined  int `json:"declined"`
	Maybe     int `json:"maybe"`
	Pending   int `json:"pending"`
	OptedOut  int `json:"opted_out"`
}
