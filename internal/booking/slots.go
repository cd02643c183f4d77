package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/schedly/internal/events"
)

const clockLayout = "15:04"

var (
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrSlotOrphaned means the slot's bookings were removed but the slot
	// row itself could not be deleted. No booking references it anymore.
	ErrSlotOrphaned = errors.New("slot bookings removed but slot deletion failed")
)

// CreateSlot validates and stores a new slot. Admin only.
func (s *Service) CreateSlot(ctx context.Context, requester *Identity, in SlotInput) (*Slot, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}

	ns, err := validateSlot(in)
	if err != nil {
		return nil, err
	}
	ns.CreatedBy = requester.ID

	slot, err := s.repo.InsertSlot(ctx, ns)
	if err != nil {
		return nil, wrapStorage("insert slot", err)
	}

	s.record(ctx, events.RKSlotCreated, slotEvent(events.RKSlotCreated, *slot))
	return slot, nil
}

// DeleteSlot removes every booking of the slot and then the slot. The
// slot lock is held across both steps so no booking can slip in between.
func (s *Service) DeleteSlot(ctx context.Context, requester *Identity, slotID uuid.UUID) (DeleteResult, error) {
	res := DeleteResult{SlotID: slotID}
	if err := requireAdmin(requester); err != nil {
		return res, err
	}

	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return res, wrapStorage("load slot", err)
	}

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		removed, err := s.repo.DeleteBookingsBySlot(lockCtx, slotID)
		if err != nil {
			return wrapStorage("delete slot bookings", err)
		}
		res.BookingsRemoved = removed

		if err := s.repo.DeleteSlot(lockCtx, slotID); err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return err
			}
			return fmt.Errorf("%w: %w: %w", ErrSlotOrphaned, ErrStorage, err)
		}
		res.SlotDeleted = true
		return nil
	})
	if err != nil {
		return res, lockErr(err)
	}

	ev := slotEvent(events.RKSlotDeleted, *slot)
	ev.BookingsRemoved = res.BookingsRemoved
	s.record(ctx, events.RKSlotDeleted, ev)

	return res, nil
}

// ListAllSlots is the admin listing; past days are included.
func (s *Service) ListAllSlots(ctx context.Context, requester *Identity, r SlotRange) ([]SlotAvailability, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	return s.listSlots(ctx, requester, r)
}

// ListSlotBookings returns every booking of a slot, in both statuses.
func (s *Service) ListSlotBookings(ctx context.Context, requester *Identity, slotID uuid.UUID) ([]Booking, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetSlot(ctx, slotID); err != nil {
		return nil, wrapStorage("load slot", err)
	}

	bookings, err := s.repo.ListSlotBookings(ctx, slotID)
	if err != nil {
		return nil, wrapStorage("list slot bookings", err)
	}
	return bookings, nil
}

func requireAdmin(requester *Identity) error {
	if requester == nil {
		return ErrUnauthenticated
	}
	if !requester.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// validateSlot checks the admin input. Start and end are not compared.
func validateSlot(in SlotInput) (NewSlot, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return NewSlot{}, fmt.Errorf("%w: title is required", ErrInvalidSlot)
	}
	if in.MaxBookings < 1 {
		return NewSlot{}, fmt.Errorf("%w: max_bookings must be at least 1", ErrInvalidSlot)
	}

	date, err := time.Parse(DateLayout, strings.TrimSpace(in.Date))
	if err != nil {
		return NewSlot{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidSlot)
	}

	start, err := normalizeClock(in.StartTime)
	if err != nil {
		return NewSlot{}, fmt.Errorf("%w: start_time must be HH:MM", ErrInvalidSlot)
	}
	end, err := normalizeClock(in.EndTime)
	if err != nil {
		return NewSlot{}, fmt.Errorf("%w: end_time must be HH:MM", ErrInvalidSlot)
	}

	return NewSlot{
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		Title:       title,
		MaxBookings: in.MaxBookings,
	}, nil
}

// normalizeClock accepts "9:00", "09:00" or "09:00:00" and returns "09:00".
func normalizeClock(v string) (string, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{clockLayout, "15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(clockLayout), nil
		}
	}
	return "", fmt.Errorf("parse clock %q", v)
}
