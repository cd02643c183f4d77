package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/hackgods/schedly/internal/config"
	"github.com/hackgods/schedly/internal/events"
)

const reconnectDelay = 5 * time.Second

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("notify-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.RabbitMQURL == "" {
		log.Fatal("RABBITMQ_URL is required")
	}

	log.Printf("running notify worker in env=%s queue=%s log=%s", cfg.Env, cfg.NotifyQueue, cfg.NotifyLogPath)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := openSink(cfg.NotifyLogPath)
	if err != nil {
		log.Fatalf("open notification log: %v", err)
	}
	defer sink.Close()

	consumerCfg := events.ConsumerConfig{
		URL:      cfg.RabbitMQURL,
		Exchange: cfg.EventsExchange,
		Queue:    cfg.NotifyQueue,
		Keys:     events.AllKeys,
		Tag:      "notify-worker",
	}

	for {
		if err := consumeOnce(rootCtx, consumerCfg, sink.Handle); err != nil {
			log.Printf("consumer stopped: %v", err)
		}

		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping notify worker")
			return
		case <-time.After(reconnectDelay):
			log.Println("reconnecting to rabbitmq")
		}
	}
}

func consumeOnce(ctx context.Context, cfg events.ConsumerConfig, h events.Handler) error {
	c, err := events.NewConsumer(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Printf("error closing consumer: %v", err)
		}
	}()

	log.Printf("consuming queue=%s exchange=%s", cfg.Queue, cfg.Exchange)
	return c.Run(ctx, h)
}

// fileSink appends one rendered line per event.
type fileSink struct {
	mu sync.Mutex
	f  *os.File
}

func openSink(path string) (*fileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileSink{f: f}, nil
}

func (s *fileSink) Handle(_ context.Context, key string, ev events.Event) error {
	line := events.Render(key, ev)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.f, "%s | %s\n", ev.OccurredAt.Format(time.RFC3339), line); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	log.Printf("notification sent key=%s event_id=%s", key, ev.ID)
	return nil
}

func (s *fileSink) Close() error {
	return s.f.Close()
}
