package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is one wedding (or similar occasion) coordinated through the app.
type Event struct {
	ID         uuid.UUID `json:"id"`
	HostUserID uuid.UUID `json:"host_user_id"`
	Title      string    `json:"title"`
	SMSTag     string    `json:"sms_tag"` // short tag prefixed to every outbound SMS
	EventDate  *time.Time `json:"event_date,omitempty"`
	Location   string    `json:"location,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsHost reports whether the given user hosts this event.
func (e *Event) IsHost(userID uuid.UUID) bool {
	return e.HostUserID == userID
}

// Caller is the explicit identity of whoever invoked an operation. Core
// operations take it as a parameter instead of reading ambient session state.
type Caller struct {
	UserID uuid.UUID
	Phone  string
}

// User is an authenticated account, optionally linked to guest rows by phone.
type User struct {
	ID        uuid.UUID `json:"id"`
	Phone     string    `json:"phone"`
	FullName  string    `json:"full_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
