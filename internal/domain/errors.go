package domain

import (
	"fmt"
	"time"
)

// ValidationError marks malformed input. Never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidStateError marks an operation attempted against an entity not in the
// required status.
type InvalidStateError struct {
	Op     string
	Status string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: message is %s", e.Op, e.Status)
}

// FreezeWindowError marks an edit attempted too close to fire time. Remaining
// carries how much lead is left so callers can explain the rejection.
type FreezeWindowError struct {
	Remaining time.Duration
	Window    time.Duration
}

func (e *FreezeWindowError) Error() string {
	return fmt.Sprintf("editing is locked within %s of send time (%s remaining)", e.Window, e.Remaining.Truncate(time.Second))
}

// NotFoundError covers both missing rows and authorization failures; the two
// are indistinguishable to callers so existence never leaks.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// ConflictError marks a uniqueness or claim conflict (e.g. a guest row
// already linked to another account).
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// DeliveryError is a per-recipient carrier failure. It is recorded and
// aggregated, never propagated as a whole-dispatch failure.
type DeliveryError struct {
	Phone  string
	Reason string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %s", e.Phone, e.Reason)
}
