package booking

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotInPast    = errors.New("slot date is in the past")
	ErrSlotFull      = errors.New("slot is full")
	ErrAlreadyBooked = errors.New("requester already holds a confirmed booking for this slot")
)

// ComputeOccupancy counts confirmed bookings per slot of interest. Slots
// without bookings are absent from the result.
func ComputeOccupancy(slotIDs []uuid.UUID, confirmed []Booking) map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int)
	if len(slotIDs) == 0 {
		return counts
	}

	wanted := make(map[uuid.UUID]struct{}, len(slotIDs))
	for _, id := range slotIDs {
		wanted[id] = struct{}{}
	}

	for _, b := range confirmed {
		if b.Status != StatusConfirmed {
			continue
		}
		if _, ok := wanted[b.SlotID]; !ok {
			continue
		}
		counts[b.SlotID]++
	}
	return counts
}

// IsBookable reports whether the slot day is today or later. Only the
// calendar day of today counts.
func IsBookable(slot Slot, today time.Time) bool {
	return !calendarDay(slot.Date).Before(calendarDay(today))
}

// CanBook decides whether a new confirmed booking may be admitted. Checks
// run in order: past date, duplicate, capacity.
func CanBook(slot Slot, occupancy int, alreadyBooked bool, today time.Time) error {
	if !IsBookable(slot, today) {
		return ErrSlotInPast
	}
	if alreadyBooked {
		return ErrAlreadyBooked
	}
	if occupancy >= slot.MaxBookings {
		return ErrSlotFull
	}
	return nil
}

// calendarDay drops the time of day, keeping the day as seen in t's own
// location.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
