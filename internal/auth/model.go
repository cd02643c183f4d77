package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/schedly/internal/booking"
)

type User struct {
	ID           uuid.UUID
	Email        string
	FullName     string
	Role         booking.Role
	PasswordHash string
	CreatedAt    time.Time
}

// Identity strips the user down to what the booking core needs.
func (u User) Identity() *booking.Identity {
	return &booking.Identity{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.FullName,
		Role:  u.Role,
	}
}

// Session is what sign up and sign in hand back to the client.
type Session struct {
	Identity  *booking.Identity
	Token     string
	ExpiresAt time.Time
}
