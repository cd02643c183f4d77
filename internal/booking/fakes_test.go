package booking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/hackgods/schedly/internal/events"
	redisclient "github.com/hackgods/schedly/internal/redis"
)

var errBoom = errors.New("connection reset by peer")

var slotTitles = []string{"Yoga", "Pilates", "Spin", "Boxing", "Mobility"}

// memRepo is an in-memory Repository. The fail map injects an error into
// the named method.
type memRepo struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]Slot
	bookings []Booking
	events   []EventLog
	fail     map[string]error
}

func newMemRepo() *memRepo {
	return &memRepo{
		slots: make(map[uuid.UUID]Slot),
		fail:  make(map[string]error),
	}
}

func (m *memRepo) failOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[method] = err
}

func (m *memRepo) addSlot(date string, max int) Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Slot{
		ID:          uuid.New(),
		Date:        day(date),
		StartTime:   "09:00",
		EndTime:     "10:00",
		Title:       slotTitles[gofakeit.Number(0, len(slotTitles)-1)],
		MaxBookings: max,
		CreatedAt:   time.Now(),
	}
	m.slots[s.ID] = s
	return s
}

func (m *memRepo) confirmedCount(slotID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bookings {
		if b.SlotID == slotID && b.Status == StatusConfirmed {
			n++
		}
	}
	return n
}

func (m *memRepo) bookingsFor(slotID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bookings {
		if b.SlotID == slotID {
			n++
		}
	}
	return n
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

// removeSlot drops the slot row without touching bookings, as a concurrent
// admin delete would.
func (m *memRepo) removeSlot(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, id)
}

func (m *memRepo) statusOf(id uuid.UUID) BookingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ID == id {
			return b.Status
		}
	}
	return ""
}

func (m *memRepo) check(method string) error {
	return m.fail[method]
}

func (m *memRepo) ListSlots(_ context.Context, from, to *time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListSlots"); err != nil {
		return nil, err
	}
	out := []Slot{}
	for _, s := range m.slots {
		if from != nil && s.Date.Before(*from) {
			continue
		}
		if to != nil && s.Date.After(*to) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m *memRepo) GetSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetSlot"); err != nil {
		return nil, err
	}
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (m *memRepo) InsertSlot(_ context.Context, ns NewSlot) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("InsertSlot"); err != nil {
		return nil, err
	}
	s := Slot{
		ID:          uuid.New(),
		Date:        ns.Date,
		StartTime:   ns.StartTime,
		EndTime:     ns.EndTime,
		Title:       ns.Title,
		MaxBookings: ns.MaxBookings,
		CreatedBy:   ns.CreatedBy,
		CreatedAt:   time.Now(),
	}
	m.slots[s.ID] = s
	return &s, nil
}

func (m *memRepo) DeleteSlot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("DeleteSlot"); err != nil {
		return err
	}
	if _, ok := m.slots[id]; !ok {
		return ErrSlotNotFound
	}
	for _, b := range m.bookings {
		if b.SlotID == id {
			return errors.New("violates foreign key constraint")
		}
	}
	delete(m.slots, id)
	return nil
}

func (m *memRepo) ListConfirmedBookings(_ context.Context, slotIDs []uuid.UUID) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListConfirmedBookings"); err != nil {
		return nil, err
	}
	return m.filter(func(b Booking) bool {
		return b.Status == StatusConfirmed && contains(slotIDs, b.SlotID)
	}), nil
}

func (m *memRepo) ListConfirmedBookingsForUser(_ context.Context, userID uuid.UUID, slotIDs []uuid.UUID) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListConfirmedBookingsForUser"); err != nil {
		return nil, err
	}
	return m.filter(func(b Booking) bool {
		return b.Status == StatusConfirmed && b.UserID == userID && contains(slotIDs, b.SlotID)
	}), nil
}

func (m *memRepo) ListUserConfirmedBookings(_ context.Context, userID uuid.UUID) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListUserConfirmedBookings"); err != nil {
		return nil, err
	}
	out := m.filter(func(b Booking) bool {
		return b.Status == StatusConfirmed && b.UserID == userID
	})
	for i := range out {
		if s, ok := m.slots[out[i].SlotID]; ok {
			out[i].Slot = &s
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memRepo) ListSlotBookings(_ context.Context, slotID uuid.UUID) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListSlotBookings"); err != nil {
		return nil, err
	}
	return m.filter(func(b Booking) bool { return b.SlotID == slotID }), nil
}

func (m *memRepo) GetBooking(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetBooking"); err != nil {
		return nil, err
	}
	for _, b := range m.bookings {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) InsertBooking(_ context.Context, nb NewBooking) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("InsertBooking"); err != nil {
		return nil, err
	}
	if _, ok := m.slots[nb.SlotID]; !ok {
		return nil, ErrSlotNotFound
	}
	b := Booking{
		ID:        uuid.New(),
		SlotID:    nb.SlotID,
		UserID:    nb.UserID,
		UserEmail: nb.UserEmail,
		UserName:  nb.UserName,
		Status:    StatusConfirmed,
		CreatedAt: time.Now().Add(time.Duration(len(m.bookings)) * time.Millisecond),
	}
	m.bookings = append(m.bookings, b)
	return &b, nil
}

func (m *memRepo) CancelBookingByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("CancelBookingByID"); err != nil {
		return nil, err
	}
	for i := range m.bookings {
		if m.bookings[i].ID == id && m.bookings[i].Status == StatusConfirmed {
			m.bookings[i].Status = StatusCancelled
			b := m.bookings[i]
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) CancelBookingForUser(_ context.Context, slotID, userID uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("CancelBookingForUser"); err != nil {
		return nil, err
	}
	for i := range m.bookings {
		b := &m.bookings[i]
		if b.SlotID == slotID && b.UserID == userID && b.Status == StatusConfirmed {
			b.Status = StatusCancelled
			out := *b
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) DeleteBookingsBySlot(_ context.Context, slotID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("DeleteBookingsBySlot"); err != nil {
		return 0, err
	}
	kept := m.bookings[:0]
	var removed int64
	for _, b := range m.bookings {
		if b.SlotID == slotID {
			removed++
			continue
		}
		kept = append(kept, b)
	}
	m.bookings = kept
	return removed, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("InsertEvent"); err != nil {
		return err
	}
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepo) filter(keep func(Booking) bool) []Booking {
	out := []Booking{}
	for _, b := range m.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// memLocker serializes per slot with in-process mutexes. busy makes every
// acquisition fail as if another holder had the key. onAcquire runs once
// the lock is held, before the critical section.
type memLocker struct {
	mu        sync.Mutex
	slots     map[uuid.UUID]*sync.Mutex
	busy      bool
	calls     int
	onAcquire func(slotID uuid.UUID)
}

func newMemLocker() *memLocker {
	return &memLocker{slots: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *memLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.calls++
	if l.busy {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	m, ok := l.slots[slotID]
	if !ok {
		m = &sync.Mutex{}
		l.slots[slotID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	if l.onAcquire != nil {
		l.onAcquire(slotID)
	}
	return fn(ctx)
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	evs  []events.Event
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.evs = append(p.evs, ev)
	return p.err
}

func (p *recordingPublisher) last() (string, events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", events.Event{}
	}
	return p.keys[len(p.keys)-1], p.evs[len(p.evs)-1]
}

func newUser() *Identity {
	return &Identity{
		ID:    uuid.New(),
		Email: gofakeit.Email(),
		Name:  gofakeit.Name(),
		Role:  RoleUser,
	}
}

func newAdmin() *Identity {
	id := newUser()
	id.Role = RoleAdmin
	return id
}
