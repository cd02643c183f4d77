package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hackgods/schedly/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Users       int
	BookRatio   float64
	CancelRatio float64
	ReadRatio   float64
	SlotLimit   int
	PostgresDSN string
}

// simUser is a signed-up account driving requests.
type simUser struct {
	Email string
	Token string
}

type DataPool struct {
	Users []simUser
	Slots []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	n := len(latencies)
	return sum / time.Duration(n), latencies[n*50/100], latencies[min(n*95/100, n-1)], latencies[n-1]
}

type Metrics struct {
	Book       OperationMetrics
	Cancel     OperationMetrics
	ListSlots  OperationMetrics
	MyBookings OperationMetrics

	// conflict breakdown for bookings, keyed by error code
	codes sync.Map
}

func (m *Metrics) countCode(code string) {
	v, _ := m.codes.LoadOrStore(code, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d users=%d book=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.Users, cfg.BookRatio, cfg.CancelRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	dataPool, err := sim.prepare(ctx, pgPool)
	if err != nil {
		log.Fatalf("prepare data: %v", err)
	}
	sim.pool = dataPool
	log.Printf("loaded: %d users, %d slots", len(dataPool.Users), len(dataPool.Slots))

	sim.Run()
	sim.PrintReport()

	violations, err := verifyCapacity(context.Background(), pgPool)
	if err != nil {
		log.Fatalf("verify capacity: %v", err)
	}
	if violations > 0 {
		log.Printf("capacity check FAILED: %d slots over capacity or double booked", violations)
		os.Exit(1)
	}
	log.Println("capacity check passed: no slot exceeds max_bookings, no duplicate confirmed bookings")
}

func loadConfig() SimConfig {
	_ = godotenv.Load()

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		Users:       getInt("SIM_USERS", 50),
		BookRatio:   getFloat("SIM_BOOK_RATIO", 0.5),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.2),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.3),
		SlotLimit:   getInt("SIM_SLOT_LIMIT", 20),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}

	// Normalize ratios
	total := cfg.BookRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Users <= 0 {
		return fmt.Errorf("SIM_USERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// prepare signs up fresh accounts through the API and picks a small set of
// upcoming slots so that workers contend on them.
func (s *Simulator) prepare(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM slots
		WHERE date >= current_date
		ORDER BY max_bookings, date, start_time
		LIMIT $1
	`, s.config.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Slots = append(dp.Slots, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no upcoming slots, run cmd/seed first")
	}

	run := uuid.NewString()[:8]
	for i := 0; i < s.config.Users; i++ {
		email := fmt.Sprintf("sim-%s-%d@example.com", run, i)
		var sess struct {
			Token string `json:"token"`
		}
		status, err := s.call(ctx, http.MethodPost, "/auth/signup", "", map[string]string{
			"email":     email,
			"password":  "simulate-pass",
			"full_name": gofakeit.Name(),
		}, &sess)
		if err != nil {
			return nil, fmt.Errorf("sign up %s: %w", email, err)
		}
		if status != http.StatusCreated || sess.Token == "" {
			return nil, fmt.Errorf("sign up %s: status %d", email, status)
		}
		dp.Users = append(dp.Users, simUser{Email: email, Token: sess.Token})
	}

	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		user := s.pool.Users[rng.Intn(len(s.pool.Users))]
		slotID := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

		r := rng.Float64()
		switch {
		case r < s.config.BookRatio:
			s.doBook(ctx, user, slotID)
		case r < s.config.BookRatio+s.config.CancelRatio:
			s.doCancel(ctx, user, slotID)
		case rng.Intn(2) == 0:
			s.doRead(ctx, user, "/slots", &s.metrics.ListSlots)
		default:
			s.doRead(ctx, user, "/bookings/me", &s.metrics.MyBookings)
		}
	}
}

func (s *Simulator) doBook(ctx context.Context, user simUser, slotID uuid.UUID) {
	start := time.Now()
	var errBody struct {
		Error string `json:"error"`
	}
	status, err := s.call(ctx, http.MethodPost, "/slots/"+slotID.String()+"/bookings", user.Token, nil, &errBody)
	if ctx.Err() != nil {
		return
	}

	if err == nil && status != http.StatusCreated && errBody.Error != "" {
		s.metrics.countCode(errBody.Error)
	}
	s.metrics.Book.Record(time.Since(start), err == nil && status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, user simUser, slotID uuid.UUID) {
	start := time.Now()
	status, err := s.call(ctx, http.MethodDelete, "/slots/"+slotID.String()+"/bookings/me", user.Token, nil, nil)
	if ctx.Err() != nil {
		return
	}
	// 404 just means this user held nothing on the slot
	s.metrics.Cancel.Record(time.Since(start), err == nil && status == http.StatusOK, status == http.StatusNotFound)
}

func (s *Simulator) doRead(ctx context.Context, user simUser, path string, om *OperationMetrics) {
	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, path, user.Token, nil, nil)
	if ctx.Err() != nil {
		return
	}
	om.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

// call sends a JSON request and decodes the JSON reply into out when given.
func (s *Simulator) call(ctx context.Context, method, path, token string, in, out any) (int, error) {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}

// verifyCapacity checks the stored state after the run.
func verifyCapacity(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var over, dupes int

	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT s.id
			FROM slots s
			JOIN bookings b ON b.slot_id = s.id AND b.status = 'confirmed'
			GROUP BY s.id, s.max_bookings
			HAVING count(*) > s.max_bookings
		) over_capacity
	`).Scan(&over)
	if err != nil {
		return 0, fmt.Errorf("count over capacity: %w", err)
	}

	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT slot_id, user_id
			FROM bookings
			WHERE status = 'confirmed'
			GROUP BY slot_id, user_id
			HAVING count(*) > 1
		) duplicates
	`).Scan(&dupes)
	if err != nil {
		return 0, fmt.Errorf("count duplicates: %w", err)
	}

	return over + dupes, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d  Users: %d  Slots: %d\n", s.config.Workers, len(s.pool.Users), len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("List slots", &s.metrics.ListSlots)
	printOperationReport("My bookings", &s.metrics.MyBookings)

	fmt.Println("Booking rejections:")
	s.metrics.codes.Range(func(k, v any) bool {
		fmt.Printf("  %s: %d\n", k, atomic.LoadInt64(v.(*int64)))
		return true
	})
	fmt.Println()
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
