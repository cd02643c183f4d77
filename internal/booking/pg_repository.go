package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const slotColumns = `id, date, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
		title, max_bookings, created_by, created_at`

const bookingColumns = `id, slot_id, user_id, user_email, user_name, status, created_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.Title,
		&s.MaxBookings,
		&s.CreatedBy,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var name *string

	err := row.Scan(
		&b.ID,
		&b.SlotID,
		&b.UserID,
		&b.UserEmail,
		&name,
		&b.Status,
		&b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if name != nil {
		b.UserName = *name
	}
	return &b, nil
}

// scanBookingWithSlot reads a booking row joined with its slot.
func scanBookingWithSlot(row pgx.Row) (*Booking, error) {
	var b Booking
	var s Slot
	var name *string

	err := row.Scan(
		&b.ID,
		&b.SlotID,
		&b.UserID,
		&b.UserEmail,
		&name,
		&b.Status,
		&b.CreatedAt,
		&s.ID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.Title,
		&s.MaxBookings,
		&s.CreatedBy,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if name != nil {
		b.UserName = *name
	}
	b.Slot = &s
	return &b, nil
}

func collectBookings(rows pgx.Rows, scan func(pgx.Row) (*Booking, error)) ([]Booking, error) {
	defer rows.Close()

	result := []Booking{}
	for rows.Next() {
		b, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Slots

func (r *PgRepository) ListSlots(ctx context.Context, from, to *time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE ($1::date IS NULL OR date >= $1::date)
		  AND ($2::date IS NULL OR date <= $2::date)
		ORDER BY date, start_time, created_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) InsertSlot(ctx context.Context, s NewSlot) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO slots (id, date, start_time, end_time, title, max_bookings, created_by, created_at)
		VALUES ($1, $2::date, $3::text::time, $4::text::time, $5, $6, $7, now())
		RETURNING `+slotColumns,
		uuid.New(), s.Date, s.StartTime, s.EndTime, s.Title, s.MaxBookings, s.CreatedBy)
	return scanSlot(row)
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// Occupancy and duplicate checks

func (r *PgRepository) ListConfirmedBookings(ctx context.Context, slotIDs []uuid.UUID) ([]Booking, error) {
	if len(slotIDs) == 0 {
		return []Booking{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE slot_id = ANY($1::uuid[])
		  AND status = 'confirmed'
	`, slotIDs)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows, scanBooking)
}

func (r *PgRepository) ListConfirmedBookingsForUser(ctx context.Context, userID uuid.UUID, slotIDs []uuid.UUID) ([]Booking, error) {
	if len(slotIDs) == 0 {
		return []Booking{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE user_id = $1
		  AND slot_id = ANY($2::uuid[])
		  AND status = 'confirmed'
	`, userID, slotIDs)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows, scanBooking)
}

// Listings

func (r *PgRepository) ListUserConfirmedBookings(ctx context.Context, userID uuid.UUID) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.slot_id, b.user_id, b.user_email, b.user_name, b.status, b.created_at,
		       s.id, s.date, to_char(s.start_time, 'HH24:MI'), to_char(s.end_time, 'HH24:MI'),
		       s.title, s.max_bookings, s.created_by, s.created_at
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.user_id = $1
		  AND b.status = 'confirmed'
		ORDER BY b.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows, scanBookingWithSlot)
}

func (r *PgRepository) ListSlotBookings(ctx context.Context, slotID uuid.UUID) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE slot_id = $1
		ORDER BY created_at
	`, slotID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows, scanBooking)
}

func (r *PgRepository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

// Mutations

func (r *PgRepository) InsertBooking(ctx context.Context, nb NewBooking) (*Booking, error) {
	var name *string
	if nb.UserName != "" {
		name = &nb.UserName
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, slot_id, user_id, user_email, user_name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'confirmed', now())
		RETURNING `+bookingColumns,
		uuid.New(), nb.SlotID, nb.UserID, nb.UserEmail, name)

	b, err := scanBooking(row)
	if err != nil {
		return nil, classifyInsertErr(err)
	}
	return b, nil
}

// classifyInsertErr maps constraint violations on bookings to domain
// errors. The partial unique index guards one confirmed booking per user
// and slot; the foreign key fails when the slot is gone.
func classifyInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrAlreadyBooked
		case pgForeignKeyViolation:
			return ErrSlotNotFound
		}
	}
	return err
}

func (r *PgRepository) CancelBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled'
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING `+bookingColumns,
		id)
	return scanBooking(row)
}

func (r *PgRepository) CancelBookingForUser(ctx context.Context, slotID, userID uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled'
		WHERE slot_id = $1
		  AND user_id = $2
		  AND status = 'confirmed'
		RETURNING `+bookingColumns,
		slotID, userID)
	return scanBooking(row)
}

func (r *PgRepository) DeleteBookingsBySlot(ctx context.Context, slotID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bookings WHERE slot_id = $1`, slotID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, slot_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.BookingID, ev.SlotID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
