package booking

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Identity is the authenticated actor of a call. It is always passed in
// explicitly; nil means nobody is signed in.
type Identity struct {
	ID    uuid.UUID
	Email string
	Name  string
	Role  Role
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// Slot is a bookable window on a calendar day. Date carries only the day;
// StartTime and EndTime are wall clock "HH:MM".
type Slot struct {
	ID          uuid.UUID
	Date        time.Time
	StartTime   string
	EndTime     string
	Title       string
	MaxBookings int
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
}

// DateString formats the slot day as YYYY-MM-DD.
func (s Slot) DateString() string {
	return s.Date.Format(DateLayout)
}

type Booking struct {
	ID        uuid.UUID
	SlotID    uuid.UUID
	UserID    uuid.UUID
	UserEmail string
	UserName  string
	Status    BookingStatus
	CreatedAt time.Time

	// Slot is only set by listings that join the slot row.
	Slot *Slot
}

// NewSlot is a validated slot ready to insert.
type NewSlot struct {
	Date        time.Time
	StartTime   string
	EndTime     string
	Title       string
	MaxBookings int
	CreatedBy   uuid.UUID
}

// NewBooking carries the fields written on insert; status is always
// confirmed.
type NewBooking struct {
	SlotID    uuid.UUID
	UserID    uuid.UUID
	UserEmail string
	UserName  string
}

// SlotInput is the raw admin request for a new slot.
type SlotInput struct {
	Date        string
	StartTime   string
	EndTime     string
	Title       string
	MaxBookings int
}

// SlotAvailability is a slot as seen by one requester.
type SlotAvailability struct {
	Slot
	Occupancy  int
	Remaining  int
	Full       bool
	Bookable   bool
	BookedByMe bool
}

// UserBooking is a confirmed booking of the requester with its slot.
type UserBooking struct {
	Booking
	Past bool
}

// DeleteResult reports how far a slot deletion got.
type DeleteResult struct {
	SlotID          uuid.UUID
	BookingsRemoved int64
	SlotDeleted     bool
}

// SlotRange bounds a slot listing by calendar day, inclusive. Zero values
// leave that side open.
type SlotRange struct {
	From time.Time
	To   time.Time
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	SlotID    *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
