// Package events carries booking lifecycle events over a RabbitMQ topic
// exchange.
package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	RKBookingConfirmed = "booking.confirmed"
	RKBookingCancelled = "booking.cancelled"
	RKSlotCreated      = "slot.created"
	RKSlotDeleted      = "slot.deleted"
)

// AllKeys is the binding set used by consumers that want every event.
var AllKeys = []string{RKBookingConfirmed, RKBookingCancelled, RKSlotCreated, RKSlotDeleted}

// Event is the single payload shape for every routing key. Fields that do
// not apply to a given key are left empty.
type Event struct {
	ID              uuid.UUID  `json:"id"`
	Type            string     `json:"type"`
	OccurredAt      time.Time  `json:"occurred_at"`
	BookingID       *uuid.UUID `json:"booking_id,omitempty"`
	SlotID          uuid.UUID  `json:"slot_id"`
	UserID          *uuid.UUID `json:"user_id,omitempty"`
	UserEmail       string     `json:"user_email,omitempty"`
	UserName        string     `json:"user_name,omitempty"`
	SlotTitle       string     `json:"slot_title,omitempty"`
	SlotDate        string     `json:"slot_date,omitempty"`
	StartTime       string     `json:"start_time,omitempty"`
	EndTime         string     `json:"end_time,omitempty"`
	BookingsRemoved int64      `json:"bookings_removed,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(key string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       key,
		OccurredAt: time.Now().UTC(),
	}
}
