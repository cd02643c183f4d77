package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/schedly/internal/auth"
	"github.com/hackgods/schedly/internal/booking"
)

type BookingService interface {
	RequestBooking(ctx context.Context, slotID uuid.UUID, requester *booking.Identity) (*booking.Booking, error)
	CancelBooking(ctx context.Context, slotID uuid.UUID, requester *booking.Identity) (*booking.Booking, error)
	CancelBookingByID(ctx context.Context, bookingID uuid.UUID, requester *booking.Identity) (*booking.Booking, error)
	ListSlots(ctx context.Context, requester *booking.Identity, r booking.SlotRange) ([]booking.SlotAvailability, error)
	GetSlot(ctx context.Context, requester *booking.Identity, slotID uuid.UUID) (*booking.SlotAvailability, error)
	ListMyBookings(ctx context.Context, requester *booking.Identity) ([]booking.UserBooking, error)

	CreateSlot(ctx context.Context, requester *booking.Identity, in booking.SlotInput) (*booking.Slot, error)
	DeleteSlot(ctx context.Context, requester *booking.Identity, slotID uuid.UUID) (booking.DeleteResult, error)
	ListAllSlots(ctx context.Context, requester *booking.Identity, r booking.SlotRange) ([]booking.SlotAvailability, error)
	ListSlotBookings(ctx context.Context, requester *booking.Identity, slotID uuid.UUID) ([]booking.Booking, error)
}

type AuthService interface {
	SignUp(ctx context.Context, email, password, fullName string) (*auth.Session, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*booking.Identity, error)
	Me(ctx context.Context, who *booking.Identity) (*auth.User, error)
}

type RouterConfig struct {
	Bookings BookingService
	Auth     AuthService
	Health   *HealthHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	// Auth
	r.Post("/auth/signup", signUpHandler(cfg.Auth))
	r.Post("/auth/signin", signInHandler(cfg.Auth))

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(cfg.Auth))

		r.Post("/auth/signout", signOutHandler(cfg.Auth))
		r.Get("/me", meHandler(cfg.Auth))

		// Slots and bookings
		r.Get("/slots", listSlotsHandler(cfg.Bookings))
		r.Get("/slots/{id}", getSlotHandler(cfg.Bookings))
		r.Post("/slots/{id}/bookings", requestBookingHandler(cfg.Bookings))
		r.Delete("/slots/{id}/bookings/me", cancelSlotBookingHandler(cfg.Bookings))
		r.Get("/bookings/me", listMyBookingsHandler(cfg.Bookings))
		r.Post("/bookings/{id}/cancel", cancelBookingHandler(cfg.Bookings))

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/slots", listAllSlotsHandler(cfg.Bookings))
			r.Post("/slots", createSlotHandler(cfg.Bookings))
			r.Delete("/slots/{id}", deleteSlotHandler(cfg.Bookings))
			r.Get("/slots/{id}/bookings", listSlotBookingsHandler(cfg.Bookings))
		})
	})

	return r
}
