package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/schedly/internal/events"
	redisclient "github.com/hackgods/schedly/internal/redis"
)

const DateLayout = "2006-01-02"

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("not allowed for this identity")
	ErrStorage         = errors.New("storage error")
	ErrSlotBusy        = errors.New("slot is currently being booked, please retry")
)

// Publisher is the outbound side of the event stream.
type Publisher interface {
	Publish(ctx context.Context, key string, ev events.Event) error
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	pub    Publisher
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, pub Publisher) *Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Service{
		repo:   repo,
		locker: locker,
		pub:    pub,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for "today".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RequestBooking admits a confirmed booking for the requester on a slot.
// Occupancy and the requester's existing booking are re-read under the
// per-slot lock, so two requests going through this service cannot both
// pass the capacity check.
func (s *Service) RequestBooking(ctx context.Context, slotID uuid.UUID, requester *Identity) (*Booking, error) {
	if requester == nil {
		return nil, ErrUnauthenticated
	}

	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, wrapStorage("load slot", err)
	}
	if !IsBookable(*slot, s.now()) {
		return nil, ErrSlotInPast
	}

	var created *Booking

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		ids := []uuid.UUID{slotID}

		confirmed, err := s.repo.ListConfirmedBookings(lockCtx, ids)
		if err != nil {
			return wrapStorage("read occupancy", err)
		}
		mine, err := s.repo.ListConfirmedBookingsForUser(lockCtx, requester.ID, ids)
		if err != nil {
			return wrapStorage("read existing booking", err)
		}

		occupancy := ComputeOccupancy(ids, confirmed)[slotID]
		if err := CanBook(*slot, occupancy, len(mine) > 0, s.now()); err != nil {
			return err
		}

		b, err := s.repo.InsertBooking(lockCtx, NewBooking{
			SlotID:    slotID,
			UserID:    requester.ID,
			UserEmail: requester.Email,
			UserName:  requester.Name,
		})
		if err != nil {
			return wrapStorage("insert booking", err)
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, lockErr(err)
	}

	created.Slot = slot
	s.record(ctx, events.RKBookingConfirmed, bookingEvent(events.RKBookingConfirmed, *created, slot))

	return created, nil
}

// CancelBooking cancels the requester's confirmed booking on a slot. A
// second call finds nothing and reports ErrNotFound. Bookings on past
// slots are history and cannot be cancelled.
func (s *Service) CancelBooking(ctx context.Context, slotID uuid.UUID, requester *Identity) (*Booking, error) {
	if requester == nil {
		return nil, ErrUnauthenticated
	}

	slot, err := s.repo.GetSlot(ctx, slotID)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapStorage("load slot", err)
	}
	if !IsBookable(*slot, s.now()) {
		return nil, ErrSlotInPast
	}

	b, err := s.repo.CancelBookingForUser(ctx, slotID, requester.ID)
	if err != nil {
		return nil, wrapStorage("cancel booking", err)
	}

	s.recordCancel(ctx, b, slot)
	return b, nil
}

// CancelBookingByID cancels one booking by id. Only its owner or an admin
// may do so.
func (s *Service) CancelBookingByID(ctx context.Context, bookingID uuid.UUID, requester *Identity) (*Booking, error) {
	if requester == nil {
		return nil, ErrUnauthenticated
	}

	existing, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, wrapStorage("load booking", err)
	}
	if existing.UserID != requester.ID && !requester.IsAdmin() {
		return nil, ErrForbidden
	}
	if existing.Status != StatusConfirmed {
		return nil, ErrNotFound
	}

	slot, err := s.repo.GetSlot(ctx, existing.SlotID)
	if err != nil {
		return nil, wrapStorage("load slot", err)
	}
	if !IsBookable(*slot, s.now()) {
		return nil, ErrSlotInPast
	}

	b, err := s.repo.CancelBookingByID(ctx, bookingID)
	if err != nil {
		return nil, wrapStorage("cancel booking", err)
	}

	s.recordCancel(ctx, b, slot)
	return b, nil
}

// ListSlots returns slots in the range with per-requester availability,
// ordered by date then start time. Non-admins never see days before today.
func (s *Service) ListSlots(ctx context.Context, requester *Identity, r SlotRange) ([]SlotAvailability, error) {
	if requester == nil {
		return nil, ErrUnauthenticated
	}

	today := calendarDay(s.now())
	if !requester.IsAdmin() && (r.From.IsZero() || calendarDay(r.From).Before(today)) {
		r.From = today
	}
	return s.listSlots(ctx, requester, r)
}

// GetSlot returns one slot with the requester's view of its availability.
func (s *Service) GetSlot(ctx context.Context, requester *Identity, slotID uuid.UUID) (*SlotAvailability, error) {
	if requester == nil {
		return nil, ErrUnauthenticated
	}

	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, wrapStorage("load slot", err)
	}

	views, err := s.availability(ctx, requester, []Slot{*slot})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListMyBookings returns the requester's confirmed bookings, newest first.
func (s *Service) ListMyBookings(ctx context.Context, requester *Identity) ([]UserBooking, error) {
	if requester == nil {
		return nil, ErrUnauthenticated
	}

	bookings, err := s.repo.ListUserConfirmedBookings(ctx, requester.ID)
	if err != nil {
		return nil, wrapStorage("list bookings", err)
	}

	today := s.now()
	out := make([]UserBooking, 0, len(bookings))
	for _, b := range bookings {
		ub := UserBooking{Booking: b}
		if b.Slot != nil {
			ub.Past = !IsBookable(*b.Slot, today)
		}
		out = append(out, ub)
	}
	return out, nil
}

func (s *Service) listSlots(ctx context.Context, requester *Identity, r SlotRange) ([]SlotAvailability, error) {
	var from, to *time.Time
	if !r.From.IsZero() {
		d := calendarDay(r.From)
		from = &d
	}
	if !r.To.IsZero() {
		d := calendarDay(r.To)
		to = &d
	}
	if from != nil && to != nil && to.Before(*from) {
		return []SlotAvailability{}, nil
	}

	slots, err := s.repo.ListSlots(ctx, from, to)
	if err != nil {
		return nil, wrapStorage("list slots", err)
	}
	return s.availability(ctx, requester, slots)
}

func (s *Service) availability(ctx context.Context, requester *Identity, slots []Slot) ([]SlotAvailability, error) {
	out := make([]SlotAvailability, 0, len(slots))
	if len(slots) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, 0, len(slots))
	for _, sl := range slots {
		ids = append(ids, sl.ID)
	}

	confirmed, err := s.repo.ListConfirmedBookings(ctx, ids)
	if err != nil {
		return nil, wrapStorage("read occupancy", err)
	}
	mine, err := s.repo.ListConfirmedBookingsForUser(ctx, requester.ID, ids)
	if err != nil {
		return nil, wrapStorage("read requester bookings", err)
	}

	occupancy := ComputeOccupancy(ids, confirmed)
	booked := make(map[uuid.UUID]bool, len(mine))
	for _, b := range mine {
		booked[b.SlotID] = true
	}

	today := s.now()
	for _, sl := range slots {
		n := occupancy[sl.ID]
		remaining := sl.MaxBookings - n
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, SlotAvailability{
			Slot:       sl,
			Occupancy:  n,
			Remaining:  remaining,
			Full:       n >= sl.MaxBookings,
			Bookable:   IsBookable(sl, today),
			BookedByMe: booked[sl.ID],
		})
	}
	return out, nil
}

func (s *Service) recordCancel(ctx context.Context, b *Booking, slot *Slot) {
	b.Slot = slot
	s.record(ctx, events.RKBookingCancelled, bookingEvent(events.RKBookingCancelled, *b, slot))
}

// record writes the audit row and publishes the event. Both are best
// effort: the mutation has already happened.
func (s *Service) record(ctx context.Context, key string, ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", key, err)
		data = nil
	}

	slotID := ev.SlotID
	entry := EventLog{
		EventType: key,
		BookingID: ev.BookingID,
		SlotID:    &slotID,
		Payload:   data,
		CreatedAt: ev.OccurredAt,
	}
	if err := s.repo.InsertEvent(ctx, entry); err != nil {
		log.Printf("failed to insert event log %s for slot %s: %v", key, slotID, err)
	}

	if err := s.pub.Publish(ctx, key, ev); err != nil {
		log.Printf("failed to publish event %s id=%s: %v", key, ev.ID, err)
	}
}

func bookingEvent(key string, b Booking, slot *Slot) events.Event {
	ev := events.New(key)
	bookingID, userID := b.ID, b.UserID
	ev.BookingID = &bookingID
	ev.UserID = &userID
	ev.SlotID = b.SlotID
	ev.UserEmail = b.UserEmail
	ev.UserName = b.UserName
	if slot != nil {
		fillSlot(&ev, *slot)
	}
	return ev
}

func slotEvent(key string, slot Slot) events.Event {
	ev := events.New(key)
	ev.SlotID = slot.ID
	fillSlot(&ev, slot)
	return ev
}

func fillSlot(ev *events.Event, slot Slot) {
	ev.SlotTitle = slot.Title
	ev.SlotDate = slot.DateString()
	ev.StartTime = slot.StartTime
	ev.EndTime = slot.EndTime
}

// wrapStorage tags gateway failures with ErrStorage. Sentinel results the
// gateway is allowed to return pass through untouched.
func wrapStorage(op string, err error) error {
	if isDomainErr(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// lockErr classifies what came out of a slot critical section.
func lockErr(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBusy
	}
	if isDomainErr(err) {
		return err
	}
	return fmt.Errorf("slot lock: %w: %w", ErrStorage, err)
}

func isDomainErr(err error) bool {
	for _, target := range []error{
		ErrSlotNotFound, ErrNotFound, ErrAlreadyBooked, ErrSlotFull, ErrSlotInPast,
		ErrStorage, ErrSlotOrphaned, ErrForbidden, ErrUnauthenticated, ErrInvalidSlot,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
