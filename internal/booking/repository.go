package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound = errors.New("slot not found")
	ErrNotFound     = errors.New("no confirmed booking found")
)

// Repository is the data gateway the service works against. Not-found
// results use the sentinels above; any other error is treated as an
// opaque storage failure.
type Repository interface {
	// Slots
	ListSlots(ctx context.Context, from, to *time.Time) ([]Slot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	InsertSlot(ctx context.Context, s NewSlot) (*Slot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	// Occupancy and duplicate checks
	ListConfirmedBookings(ctx context.Context, slotIDs []uuid.UUID) ([]Booking, error)
	ListConfirmedBookingsForUser(ctx context.Context, userID uuid.UUID, slotIDs []uuid.UUID) ([]Booking, error)

	// Listings
	ListUserConfirmedBookings(ctx context.Context, userID uuid.UUID) ([]Booking, error)
	ListSlotBookings(ctx context.Context, slotID uuid.UUID) ([]Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)

	// Mutations. Both cancel calls only move confirmed rows to cancelled
	// and return ErrNotFound when nothing matched.
	InsertBooking(ctx context.Context, b NewBooking) (*Booking, error)
	CancelBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	CancelBookingForUser(ctx context.Context, slotID, userID uuid.UUID) (*Booking, error)
	DeleteBookingsBySlot(ctx context.Context, slotID uuid.UUID) (int64, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
