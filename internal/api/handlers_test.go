package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/schedly/internal/auth"
	"github.com/hackgods/schedly/internal/booking"
)

var (
	testUser  = &booking.Identity{ID: uuid.New(), Email: "ana@example.com", Name: "Ana", Role: booking.RoleUser}
	testAdmin = &booking.Identity{ID: uuid.New(), Email: "ops@example.com", Name: "Ops", Role: booking.RoleAdmin}
)

type stubAuth struct {
	signUpErr error
	signedOut string
	authErr   error
}

func (s *stubAuth) SignUp(_ context.Context, email, password, fullName string) (*auth.Session, error) {
	if s.signUpErr != nil {
		return nil, s.signUpErr
	}
	who := &booking.Identity{ID: uuid.New(), Email: email, Name: fullName, Role: booking.RoleUser}
	return &auth.Session{Identity: who, Token: "new-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubAuth) SignIn(_ context.Context, email, password string) (*auth.Session, error) {
	if password != "secret1" {
		return nil, auth.ErrInvalidCredentials
	}
	return &auth.Session{Identity: testUser, Token: "user-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubAuth) SignOut(_ context.Context, token string) error {
	s.signedOut = token
	return nil
}

func (s *stubAuth) Authenticate(_ context.Context, token string) (*booking.Identity, error) {
	if s.authErr != nil {
		return nil, s.authErr
	}
	switch token {
	case "user-token":
		return testUser, nil
	case "admin-token":
		return testAdmin, nil
	}
	return nil, auth.ErrInvalidToken
}

func (s *stubAuth) Me(_ context.Context, who *booking.Identity) (*auth.User, error) {
	return &auth.User{ID: who.ID, Email: who.Email, FullName: who.Name, Role: who.Role}, nil
}

// stubBookings answers every call with err when set, otherwise with canned
// values. It records the last requester and range it saw.
type stubBookings struct {
	err       error
	requester *booking.Identity
	rng       booking.SlotRange
	slot      booking.Slot
	deleteRes booking.DeleteResult
}

func newStubBookings() *stubBookings {
	return &stubBookings{slot: booking.Slot{
		ID:          uuid.New(),
		Date:        time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		StartTime:   "09:00",
		EndTime:     "10:00",
		Title:       "Yoga",
		MaxBookings: 2,
	}}
}

func (s *stubBookings) booking(slotID uuid.UUID, who *booking.Identity, status booking.BookingStatus) *booking.Booking {
	return &booking.Booking{ID: uuid.New(), SlotID: slotID, UserID: who.ID, UserEmail: who.Email, Status: status, Slot: &s.slot}
}

func (s *stubBookings) RequestBooking(_ context.Context, slotID uuid.UUID, who *booking.Identity) (*booking.Booking, error) {
	s.requester = who
	if s.err != nil {
		return nil, s.err
	}
	return s.booking(slotID, who, booking.StatusConfirmed), nil
}

func (s *stubBookings) CancelBooking(_ context.Context, slotID uuid.UUID, who *booking.Identity) (*booking.Booking, error) {
	s.requester = who
	if s.err != nil {
		return nil, s.err
	}
	return s.booking(slotID, who, booking.StatusCancelled), nil
}

func (s *stubBookings) CancelBookingByID(_ context.Context, id uuid.UUID, who *booking.Identity) (*booking.Booking, error) {
	s.requester = who
	if s.err != nil {
		return nil, s.err
	}
	b := s.booking(s.slot.ID, who, booking.StatusCancelled)
	b.ID = id
	return b, nil
}

func (s *stubBookings) ListSlots(_ context.Context, who *booking.Identity, r booking.SlotRange) ([]booking.SlotAvailability, error) {
	s.requester, s.rng = who, r
	if s.err != nil {
		return nil, s.err
	}
	return []booking.SlotAvailability{{Slot: s.slot, Occupancy: 2, Remaining: 0, Full: true, Bookable: true}}, nil
}

func (s *stubBookings) GetSlot(_ context.Context, who *booking.Identity, id uuid.UUID) (*booking.SlotAvailability, error) {
	s.requester = who
	if s.err != nil {
		return nil, s.err
	}
	return &booking.SlotAvailability{Slot: s.slot, Occupancy: 1, Remaining: 1, Bookable: true, BookedByMe: true}, nil
}

func (s *stubBookings) ListMyBookings(_ context.Context, who *booking.Identity) ([]booking.UserBooking, error) {
	s.requester = who
	if s.err != nil {
		return nil, s.err
	}
	return []booking.UserBooking{{Booking: *s.booking(s.slot.ID, who, booking.StatusConfirmed), Past: true}}, nil
}

func (s *stubBookings) CreateSlot(_ context.Context, who *booking.Identity, in booking.SlotInput) (*booking.Slot, error) {
	s.requester = who
	if s.err != nil {
		return nil, s.err
	}
	created := s.slot
	created.Title = in.Title
	created.MaxBookings = in.MaxBookings
	return &created, nil
}

func (s *stubBookings) DeleteSlot(_ context.Context, who *booking.Identity, id uuid.UUID) (booking.DeleteResult, error) {
	s.requester = who
	return s.deleteRes, s.err
}

func (s *stubBookings) ListAllSlots(ctx context.Context, who *booking.Identity, r booking.SlotRange) ([]booking.SlotAvailability, error) {
	return s.ListSlots(ctx, who, r)
}

func (s *stubBookings) ListSlotBookings(_ context.Context, who *booking.Identity, id uuid.UUID) ([]booking.Booking, error) {
	s.requester = who
	if s.err != nil {
		return nil, s.err
	}
	return []booking.Booking{*s.booking(id, testUser, booking.StatusCancelled)}, nil
}

func newTestRouter(b *stubBookings, a *stubAuth) http.Handler {
	return NewRouter(RouterConfig{Bookings: b, Auth: a})
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return e
}

func TestBookingErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{booking.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{booking.ErrForbidden, http.StatusForbidden, "forbidden"},
		{booking.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
		{booking.ErrNotFound, http.StatusNotFound, "booking_not_found"},
		{booking.ErrSlotInPast, http.StatusConflict, "slot_in_past"},
		{booking.ErrAlreadyBooked, http.StatusConflict, "already_booked"},
		{booking.ErrSlotFull, http.StatusConflict, "slot_full"},
		{booking.ErrSlotBusy, http.StatusConflict, "slot_busy"},
		{fmt.Errorf("%w: title is required", booking.ErrInvalidSlot), http.StatusBadRequest, "invalid_slot"},
		{fmt.Errorf("%w: %w: boom", booking.ErrSlotOrphaned, booking.ErrStorage), http.StatusInternalServerError, "slot_orphaned"},
		{fmt.Errorf("insert booking: %w: boom", booking.ErrStorage), http.StatusInternalServerError, "storage_error"},
		{errors.New("weird"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			b := newStubBookings()
			b.err = tc.err
			h := newTestRouter(b, &stubAuth{})

			rec := do(t, h, http.MethodPost, "/slots/"+b.slot.ID.String()+"/bookings", "user-token", "")
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if e := decodeError(t, rec); e.Error != tc.code {
				t.Errorf("code = %q, want %q", e.Error, tc.code)
			}
		})
	}
}

func TestStorageDetailsAreNotLeaked(t *testing.T) {
	b := newStubBookings()
	b.err = fmt.Errorf("list slots: %w: password authentication failed for user app", booking.ErrStorage)
	h := newTestRouter(b, &stubAuth{})

	rec := do(t, h, http.MethodGet, "/slots", "user-token", "")
	if e := decodeError(t, rec); strings.Contains(e.Details, "password") {
		t.Errorf("details leaked: %q", e.Details)
	}
}

func TestRequestBookingPassesIdentity(t *testing.T) {
	b := newStubBookings()
	h := newTestRouter(b, &stubAuth{})

	rec := do(t, h, http.MethodPost, "/slots/"+b.slot.ID.String()+"/bookings", "user-token", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if b.requester != testUser {
		t.Errorf("requester = %+v", b.requester)
	}

	var resp BookingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "confirmed" || resp.SlotID != b.slot.ID || resp.Slot == nil || resp.Slot.Date != "2026-10-20" {
		t.Errorf("response = %+v", resp)
	}
}

func TestAuthRequired(t *testing.T) {
	b := newStubBookings()
	h := newTestRouter(b, &stubAuth{})

	rec := do(t, h, http.MethodGet, "/slots", "", "")
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec).Error != "unauthenticated" {
		t.Errorf("no token: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/slots", "forged", "")
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec).Error != "invalid_token" {
		t.Errorf("bad token: %d %s", rec.Code, rec.Body.String())
	}

	if b.requester != nil {
		t.Error("service reached without identity")
	}
}

func TestAuthBackendFailure(t *testing.T) {
	h := newTestRouter(newStubBookings(), &stubAuth{authErr: errors.New("redis down")})

	rec := do(t, h, http.MethodGet, "/bookings/me", "user-token", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	b := newStubBookings()
	h := newTestRouter(b, &stubAuth{})

	body := `{"date":"2026-10-20","start_time":"09:00","end_time":"10:00","title":"Spin","max_bookings":8}`
	rec := do(t, h, http.MethodPost, "/admin/slots", "user-token", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("user: status = %d, want 403", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/admin/slots", "admin-token", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin: status = %d: %s", rec.Code, rec.Body.String())
	}
	var slot SlotResponse
	if err := json.NewDecoder(rec.Body).Decode(&slot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if slot.Title != "Spin" || slot.MaxBookings != 8 {
		t.Errorf("slot = %+v", slot)
	}
}

func TestDeleteSlot(t *testing.T) {
	b := newStubBookings()
	b.deleteRes = booking.DeleteResult{SlotID: b.slot.ID, BookingsRemoved: 3, SlotDeleted: true}
	h := newTestRouter(b, &stubAuth{})

	rec := do(t, h, http.MethodDelete, "/admin/slots/"+b.slot.ID.String(), "admin-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp DeleteSlotResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.BookingsRemoved != 3 || !resp.SlotDeleted {
		t.Errorf("response = %+v", resp)
	}

	b.deleteRes = booking.DeleteResult{SlotID: b.slot.ID, BookingsRemoved: 2}
	b.err = fmt.Errorf("%w: %w: boom", booking.ErrSlotOrphaned, booking.ErrStorage)
	rec = do(t, h, http.MethodDelete, "/admin/slots/"+b.slot.ID.String(), "admin-token", "")
	e := decodeError(t, rec)
	if rec.Code != http.StatusInternalServerError || e.Error != "slot_orphaned" || !strings.Contains(e.Details, "2 bookings") {
		t.Errorf("orphaned: %d %+v", rec.Code, e)
	}
}

func TestListSlotsParsesRange(t *testing.T) {
	b := newStubBookings()
	h := newTestRouter(b, &stubAuth{})

	rec := do(t, h, http.MethodGet, "/slots?from=2026-10-01&to=2026-10-31", "user-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if b.rng.From.Format(booking.DateLayout) != "2026-10-01" || b.rng.To.Format(booking.DateLayout) != "2026-10-31" {
		t.Errorf("range = %+v", b.rng)
	}

	var slots []SlotAvailabilityResponse
	if err := json.NewDecoder(rec.Body).Decode(&slots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(slots) != 1 || !slots[0].Full || slots[0].Title != "Yoga" {
		t.Errorf("slots = %+v", slots)
	}

	rec = do(t, h, http.MethodGet, "/slots?from=10/01/2026", "user-token", "")
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Error != "invalid_date" {
		t.Errorf("bad date: %d", rec.Code)
	}
}

func TestBadIDs(t *testing.T) {
	h := newTestRouter(newStubBookings(), &stubAuth{})

	for _, path := range []string{"/slots/nope", "/slots/nope/bookings"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "bookings") {
			method = http.MethodPost
		}
		rec := do(t, h, method, path, "user-token", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s %s: status = %d", method, path, rec.Code)
		}
	}
}

func TestMyBookingsAndCancel(t *testing.T) {
	b := newStubBookings()
	h := newTestRouter(b, &stubAuth{})

	rec := do(t, h, http.MethodGet, "/bookings/me", "user-token", "")
	var mine []MyBookingResponse
	if err := json.NewDecoder(rec.Body).Decode(&mine); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(mine) != 1 || !mine[0].Past || mine[0].Slot == nil {
		t.Errorf("bookings = %+v", mine)
	}

	id := uuid.New()
	rec = do(t, h, http.MethodPost, "/bookings/"+id.String()+"/cancel", "user-token", "")
	var cancelled BookingResponse
	if err := json.NewDecoder(rec.Body).Decode(&cancelled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || cancelled.ID != id || cancelled.Status != "cancelled" {
		t.Errorf("cancel = %d %+v", rec.Code, cancelled)
	}

	rec = do(t, h, http.MethodDelete, "/slots/"+b.slot.ID.String()+"/bookings/me", "user-token", "")
	if rec.Code != http.StatusOK {
		t.Errorf("cancel by slot: status = %d", rec.Code)
	}
}

func TestAuthEndpoints(t *testing.T) {
	a := &stubAuth{}
	h := newTestRouter(newStubBookings(), a)

	rec := do(t, h, http.MethodPost, "/auth/signup", "", `{"email":"new@example.com","password":"secret1","full_name":"New"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: status = %d", rec.Code)
	}
	var sess SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.Token != "new-token" || sess.User.Email != "new@example.com" || sess.User.Role != "user" {
		t.Errorf("session = %+v", sess)
	}

	rec = do(t, h, http.MethodPost, "/auth/signin", "", `{"email":"ana@example.com","password":"nope"}`)
	if rec.Code != http.StatusUnauthorized || decodeError(t, rec).Error != "invalid_credentials" {
		t.Errorf("bad signin: %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/auth/signin", "", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/me", "user-token", "")
	var me UserResponse
	if err := json.NewDecoder(rec.Body).Decode(&me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.ID != testUser.ID {
		t.Errorf("me = %+v", me)
	}

	rec = do(t, h, http.MethodPost, "/auth/signout", "user-token", "")
	if rec.Code != http.StatusNoContent || a.signedOut != "user-token" {
		t.Errorf("signout: %d token=%q", rec.Code, a.signedOut)
	}
}

func TestSignUpErrorMapping(t *testing.T) {
	cases := map[error]int{
		auth.ErrWeakPassword: http.StatusBadRequest,
		auth.ErrInvalidEmail: http.StatusBadRequest,
		auth.ErrEmailTaken:   http.StatusConflict,
		errors.New("boom"):   http.StatusInternalServerError,
	}
	for err, status := range cases {
		h := newTestRouter(newStubBookings(), &stubAuth{signUpErr: err})
		rec := do(t, h, http.MethodPost, "/auth/signup", "", `{"email":"x@example.com","password":"secret1"}`)
		if rec.Code != status {
			t.Errorf("%v: status = %d, want %d", err, rec.Code, status)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestRouter(newStubBookings(), &stubAuth{})

	req := httptest.NewRequest(http.MethodGet, "/slots", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}

	rec = do(t, h, http.MethodGet, "/slots", "", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id not generated")
	}
}
