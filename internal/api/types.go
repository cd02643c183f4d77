package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/schedly/internal/auth"
	"github.com/hackgods/schedly/internal/booking"
)

const maxBodyBytes = 1 << 20

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateSlotRequest struct {
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Title       string `json:"title"`
	MaxBookings int    `json:"max_bookings"`
}

type IdentityResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name,omitempty"`
	Role  string    `json:"role"`
}

type SessionResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      IdentityResponse `json:"user"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	Date        string    `json:"date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Title       string    `json:"title"`
	MaxBookings int       `json:"max_bookings"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type SlotAvailabilityResponse struct {
	SlotResponse
	Occupancy  int  `json:"occupancy"`
	Remaining  int  `json:"remaining"`
	Full       bool `json:"full"`
	Bookable   bool `json:"bookable"`
	BookedByMe bool `json:"booked_by_me"`
}

type BookingResponse struct {
	ID        uuid.UUID     `json:"id"`
	SlotID    uuid.UUID     `json:"slot_id"`
	UserID    uuid.UUID     `json:"user_id"`
	UserEmail string        `json:"user_email"`
	UserName  string        `json:"user_name,omitempty"`
	Status    string        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	Slot      *SlotResponse `json:"slot,omitempty"`
}

type MyBookingResponse struct {
	BookingResponse
	Past bool `json:"past"`
}

type DeleteSlotResponse struct {
	SlotID          uuid.UUID `json:"slot_id"`
	BookingsRemoved int64     `json:"bookings_removed"`
	SlotDeleted     bool      `json:"slot_deleted"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toIdentityResponse(who *booking.Identity) IdentityResponse {
	return IdentityResponse{ID: who.ID, Email: who.Email, Name: who.Name, Role: string(who.Role)}
}

func toSessionResponse(s *auth.Session) SessionResponse {
	return SessionResponse{Token: s.Token, ExpiresAt: s.ExpiresAt, User: toIdentityResponse(s.Identity)}
}

func toUserResponse(u *auth.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func toSlotResponse(s booking.Slot) SlotResponse {
	return SlotResponse{
		ID:          s.ID,
		Date:        s.DateString(),
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Title:       s.Title,
		MaxBookings: s.MaxBookings,
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt,
	}
}

func toAvailabilityResponses(in []booking.SlotAvailability) []SlotAvailabilityResponse {
	out := make([]SlotAvailabilityResponse, 0, len(in))
	for _, a := range in {
		out = append(out, toAvailabilityResponse(a))
	}
	return out
}

func toAvailabilityResponse(a booking.SlotAvailability) SlotAvailabilityResponse {
	return SlotAvailabilityResponse{
		SlotResponse: toSlotResponse(a.Slot),
		Occupancy:    a.Occupancy,
		Remaining:    a.Remaining,
		Full:         a.Full,
		Bookable:     a.Bookable,
		BookedByMe:   a.BookedByMe,
	}
}

func toBookingResponse(b booking.Booking) BookingResponse {
	resp := BookingResponse{
		ID:        b.ID,
		SlotID:    b.SlotID,
		UserID:    b.UserID,
		UserEmail: b.UserEmail,
		UserName:  b.UserName,
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt,
	}
	if b.Slot != nil {
		s := toSlotResponse(*b.Slot)
		resp.Slot = &s
	}
	return resp
}

func toBookingResponses(in []booking.Booking) []BookingResponse {
	out := make([]BookingResponse, 0, len(in))
	for _, b := range in {
		out = append(out, toBookingResponse(b))
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response failed status=%d: %v", status, err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
