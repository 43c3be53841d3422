package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageDirect       MessageType = "direct"
	MessageAnnouncement MessageType = "announcement"
	MessageChannel      MessageType = "channel"
)

func ParseMessageType(s string) (MessageType, bool) {
	switch MessageType(s) {
	case MessageDirect, MessageAnnouncement, MessageChannel:
		return MessageType(s), true
	default:
		return "", false
	}
}

type FilterType string

const (
	FilterAll      FilterType = "all"
	FilterExplicit FilterType = "explicit_selection"
	FilterTags     FilterType = "tags"
)

func ParseFilterType(s string) (FilterType, bool) {
	switch FilterType(s) {
	case FilterAll, FilterExplicit, FilterTags:
		return FilterType(s), true
	default:
		return "", false
	}
}

// RecipientFilter declares who a message targets. It is embedded in messages
// as a value object, persisted as JSONB.
type RecipientFilter struct {
	Type     FilterType  `json:"type"`
	GuestIDs []uuid.UUID `json:"guest_ids,omitempty"` // explicit_selection
	Tags     []string    `json:"tags,omitempty"`      // tags
}

// Message is an already-sent message; immutable once dispatched.
type Message struct {
	ID           uuid.UUID       `json:"id"`
	EventID      uuid.UUID       `json:"event_id"`
	SenderUserID uuid.UUID       `json:"sender_user_id"`
	ScheduledID  *uuid.UUID      `json:"scheduled_id,omitempty"`
	Content      string          `json:"content"`
	MessageType  MessageType     `json:"message_type"` // effective type after coercion
	Filter       RecipientFilter `json:"filter"`
	RecipientIDs []uuid.UUID     `json:"recipient_ids"`
	SentAt       time.Time       `json:"sent_at"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ScheduledStatus string

const (
	ScheduleScheduled ScheduledStatus = "scheduled"
	ScheduleSent      ScheduledStatus = "sent"
	ScheduleCancelled ScheduledStatus = "cancelled"
	ScheduleFailed    ScheduledStatus = "failed"
)

// Terminal reports whether the status is final. Transitions are
// one-directional: scheduled is the sole non-terminal state.
func (s ScheduledStatus) Terminal() bool {
	return s == ScheduleSent || s == ScheduleCancelled || s == ScheduleFailed
}

// ScheduledMessage is a message waiting for its fire time.
type ScheduledMessage struct {
	ID                uuid.UUID       `json:"id"`
	EventID           uuid.UUID       `json:"event_id"`
	SenderUserID      uuid.UUID       `json:"sender_user_id"`
	Content           string          `json:"content"`
	MessageType       MessageType     `json:"message_type"`
	Filter            RecipientFilter `json:"filter"`
	TargetAllGuests   bool            `json:"target_all_guests"`
	SendAt            time.Time       `json:"send_at"` // UTC
	Status            ScheduledStatus `json:"status"`
	Version           int             `json:"version"`
	ModificationCount int             `json:"modification_count"`
	ModifiedAt        *time.Time      `json:"modified_at,omitempty"`
	RecipientCount    int             `json:"recipient_count"` // snapshot at create/last edit
	SendViaSMS        bool            `json:"send_via_sms"`
	SendViaPush       bool            `json:"send_via_push"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// CanModify reports whether an edit is allowed at the given instant. Edits
// are blocked once the remaining lead is at or inside the freeze window.
func (m *ScheduledMessage) CanModify(now time.Time, freezeWindow time.Duration) bool {
	if m.Status != ScheduleScheduled {
		return false
	}
	return m.SendAt.Sub(now) > freezeWindow
}

// ScheduledMessagePatch is a partial edit; nil fields are left unchanged.
type ScheduledMessagePatch struct {
	Content     *string          `json:"content,omitempty"`
	MessageType *MessageType     `json:"message_type,omitempty"`
	Filter      *RecipientFilter `json:"filter,omitempty"`
	SendAt      *time.Time       `json:"send_at,omitempty"`
	SendViaSMS  *bool            `json:"send_via_sms,omitempty"`
	SendViaPush *bool            `json:"send_via_push,omitempty"`
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryRecord tracks one (message, guest) delivery. Created at dispatch
// time; the only mutation is the pending -> delivered/failed transition.
type DeliveryRecord struct {
	ID           uuid.UUID      `json:"id"`
	MessageID    uuid.UUID      `json:"message_id"`
	GuestID      uuid.UUID      `json:"guest_id"`
	Phone        string         `json:"phone,omitempty"`
	Status       DeliveryStatus `json:"status"`
	ProviderID   *string        `json:"provider_id,omitempty"` // carrier message reference
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DispatchResult aggregates one fan-out. Error reasons are a bounded sample;
// full detail lives in the delivery records.
type DispatchResult struct {
	MessageID uuid.UUID `json:"message_id"`
	Sent      int       `json:"sent"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Errors    []string  `json:"errors,omitempty"`
}
