package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/schedly/internal/auth"
	"github.com/hackgods/schedly/internal/booking"
)

// Auth

func signUpHandler(svc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignUpRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		sess, err := svc.SignUp(r.Context(), req.Email, req.Password, req.FullName)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSessionResponse(sess))
	}
}

func signInHandler(svc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignInRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		sess, err := svc.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toSessionResponse(sess))
	}
}

func signOutHandler(svc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.SignOut(r.Context(), tokenFrom(r.Context())); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func meHandler(svc AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := svc.Me(r.Context(), IdentityFrom(r.Context()))
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(u))
	}
}

// Slots and bookings

func listSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rng, ok := parseRange(w, r)
		if !ok {
			return
		}

		slots, err := svc.ListSlots(r.Context(), IdentityFrom(r.Context()), rng)
		if err != nil {
			handleBookingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponses(slots))
	}
}

func getSlotHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "invalid_slot_id")
		if !ok {
			return
		}

		slot, err := svc.GetSlot(r.Context(), IdentityFrom(r.Context()), id)
		if err != nil {
			handleBookingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(*slot))
	}
}

func requestBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := uuidParam(w, r, "invalid_slot_id")
		if !ok {
			return
		}

		b, err := svc.RequestBooking(r.Context(), slotID, IdentityFrom(r.Context()))
		if err != nil {
			handleBookingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBookingResponse(*b))
	}
}

func cancelSlotBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, ok := uuidParam(w, r, "invalid_slot_id")
		if !ok {
			return
		}

		b, err := svc.CancelBooking(r.Context(), slotID, IdentityFrom(r.Context()))
		if err != nil {
			handleBookingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(*b))
	}
}

func listMyBookingsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookings, err := svc.ListMyBookings(r.Context(), IdentityFrom(r.Context()))
		if err != nil {
			handleBookingError(w, r, err)
			return
		}

		resp := make([]MyBookingResponse, 0, len(bookings))
		for _, b := range bookings {
			resp = append(resp, MyBookingResponse{BookingResponse: toBookingResponse(b.Booking), Past: b.Past})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "invalid_booking_id")
		if !ok {
			return
		}

		b, err := svc.CancelBookingByID(r.Context(), id, IdentityFrom(r.Context()))
		if err != nil {
			handleBookingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(*b))
	}
}

// Admin

func listAllSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rng, ok := parseRange(w, r)
		if !ok {
			return
		}

		slots, err := svc.ListAllSlots(r.Context(), IdentityFrom(r.Context()), rng)
		if err != nil {
			handleBookingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponses(slots))
	}
}

func createSlotHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		slot, err := svc.CreateSlot(r.Context(), IdentityFrom(r.Context()), booking.SlotInput{
			Date:        req.Date,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			Title:       req.Title,
			MaxBookings: req.MaxBookings,
		})
		if err != nil {
			handleBookingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
	}
}

func deleteSlotHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "invalid_slot_id")
		if !ok {
			return
		}

		res, err := svc.DeleteSlot(r.Context(), IdentityFrom(r.Context()), id)
		if err != nil {
			if errors.Is(err, booking.ErrSlotOrphaned) {
				log.Printf("slot orphaned slot_id=%s bookings_removed=%d request_id=%s: %v",
					id, res.BookingsRemoved, GetRequestID(r.Context()), err)
				writeError(w, http.StatusInternalServerError, "slot_orphaned",
					fmt.Sprintf("removed %d bookings but the slot itself could not be deleted", res.BookingsRemoved))
				return
			}
			handleBookingError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, DeleteSlotResponse{
			SlotID:          res.SlotID,
			BookingsRemoved: res.BookingsRemoved,
			SlotDeleted:     res.SlotDeleted,
		})
	}
}

func listSlotBookingsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "invalid_slot_id")
		if !ok {
			return
		}

		bookings, err := svc.ListSlotBookings(r.Context(), IdentityFrom(r.Context()), id)
		if err != nil {
			handleBookingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponses(bookings))
	}
}

// Helpers

func uuidParam(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseRange(w http.ResponseWriter, r *http.Request) (booking.SlotRange, bool) {
	var rng booking.SlotRange
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{
		{"from", &rng.From},
		{"to", &rng.To},
	} {
		v := r.URL.Query().Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(booking.DateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", p.name+" must be YYYY-MM-DD")
			return rng, false
		}
		*p.dst = t
	}
	return rng, true
}

func handleBookingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotInPast):
		writeError(w, http.StatusConflict, "slot_in_past", err.Error())
	case errors.Is(err, booking.ErrAlreadyBooked):
		writeError(w, http.StatusConflict, "already_booked", err.Error())
	case errors.Is(err, booking.ErrSlotFull):
		writeError(w, http.StatusConflict, "slot_full", err.Error())
	case errors.Is(err, booking.ErrSlotBusy):
		writeError(w, http.StatusConflict, "slot_busy", err.Error())
	case errors.Is(err, booking.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
	case errors.Is(err, booking.ErrSlotOrphaned):
		log.Printf("slot orphaned request_id=%s: %v", GetRequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "slot_orphaned", "slot bookings removed but slot deletion failed")
	case errors.Is(err, booking.ErrStorage):
		log.Printf("storage error request_id=%s: %v", GetRequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "storage_error", "the booking store is unavailable")
	default:
		log.Printf("internal error request_id=%s: %v", GetRequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "invalid_email", err.Error())
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "weak_password", err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
	case errors.Is(err, booking.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	default:
		log.Printf("auth error request_id=%s: %v", GetRequestID(r.Context()), err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}
