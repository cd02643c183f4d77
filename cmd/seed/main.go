package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/schedly/internal/db"
)

// Every seeded account shares this password so the simulator can sign in.
const defaultPassword = "password123"

var slotTitles = []string{
	"Morning Yoga",
	"Pilates",
	"Spin Class",
	"Boxing Basics",
	"Mobility",
	"HIIT",
	"Swim Technique",
	"Strength 101",
}

var slotTimes = [][2]string{
	{"07:00", "08:00"},
	{"09:00", "10:00"},
	{"12:30", "13:15"},
	{"17:30", "18:30"},
	{"19:00", "20:00"},
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	_ = godotenv.Load()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 4)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(0)

	password := getEnv("SEED_PASSWORD", defaultPassword)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	adminEmail := strings.ToLower(getEnv("SEED_ADMIN_EMAIL", "admin@schedly.local"))
	adminID, err := seedAdmin(context.Background(), pool, adminEmail, string(hash))
	if err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	if err := seedUsers(context.Background(), pool, getInt("SEED_USERS", 200), string(hash)); err != nil {
		log.Fatalf("seed users: %v", err)
	}
	if err := seedSlots(context.Background(), pool, adminID, getInt("SEED_DAYS", 14)); err != nil {
		log.Fatalf("seed slots: %v", err)
	}

	log.Printf("seed complete admin=%s password=%s", adminEmail, password)
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, email, hash string) (uuid.UUID, error) {
	var id uuid.UUID
	err := pool.QueryRow(ctx, `
		INSERT INTO users (id, email, full_name, role, password_hash, created_at)
		VALUES ($1, $2, 'Schedly Admin', 'admin', $3, now())
		ON CONFLICT (email) DO UPDATE SET role = 'admin'
		RETURNING id
	`, uuid.New(), email, hash).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	log.Printf("admin ready email=%s id=%s", email, id)
	return id, nil
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, count int, hash string) error {
	log.Printf("seeding %d users", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			// index suffix keeps emails unique across runs of the generator
			email := strings.ToLower(fmt.Sprintf("%s.%d@%s", gofakeit.Username(), i, gofakeit.DomainName()))

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, email, full_name, role, password_hash, created_at)
				VALUES ($1, $2, $3, 'user', $4, now())
				ON CONFLICT (email) DO NOTHING
			`, uuid.New(), email, gofakeit.Name(), hash)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("users seeded: %d/%d", end, count)
	}

	return nil
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, adminID uuid.UUID, days int) error {
	log.Printf("seeding slots for %d days", days)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	today := time.Now()
	total := 0
	for d := 0; d < days; d++ {
		date := today.AddDate(0, 0, d).Format("2006-01-02")

		for _, window := range slotTimes {
			if gofakeit.Bool() {
				continue
			}
			title := slotTitles[gofakeit.Number(0, len(slotTitles)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO slots (id, date, start_time, end_time, title, max_bookings, created_by, created_at)
				VALUES ($1, $2::date, $3::time, $4::time, $5, $6, $7, now())
			`, uuid.New(), date, window[0], window[1], title, gofakeit.Number(1, 12), adminID)
			if err != nil {
				return err
			}
			total++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("slots seeded: %d", total)
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
