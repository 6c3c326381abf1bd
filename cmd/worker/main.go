package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classattend/internal/config"
	"classattend/internal/docstore"
	"classattend/internal/netinfo"
	"classattend/internal/queue"
	"classattend/internal/session"
	"classattend/internal/timetable"
)

// Worker tails scan events for the audit log and periodically sweeps
// malformed session documents out of the store.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	var store docstore.Store
	if cfg.StoreBackend == "memory" {
		// A memory store in the worker sees none of the API's writes; only
		// useful when both run in one process. Warn and continue.
		log.Println("warning: memory store backend in a standalone worker")
		store = docstore.NewMemory()
	} else {
		pg, err := docstore.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("store connect failed: %v", err)
		}
		defer pg.Close()
		store = pg
	}

	var events queue.Queue
	if cfg.QueueBackend == "memory" {
		events = queue.NewInMemory(64)
	} else {
		events = queue.NewRedisQueue(queue.NewRedisClient(cfg.RedisAddr), "classattend:scans")
	}

	net := netinfo.New(cfg.NetInfoURL, cfg.NetInfoIP)
	resolver := timetable.NewResolver(store)
	sessions := session.NewManager(store, resolver, net)

	go runSweeper(ctx, sessions, cfg.SweepInterval)

	messages, err := events.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for scan events...")
	for evt := range messages {
		log.Printf("scan: %s attended %q at %s from %s",
			evt.Name, evt.Subject, evt.Timestamp.Format(time.RFC3339), evt.IP)
	}

	log.Println("worker stopped")
}

// runSweeper removes malformed sessions on a fixed interval until ctx ends.
func runSweeper(ctx context.Context, sessions *session.Manager, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sessions.SweepInvalid(ctx)
			if err != nil {
				log.Printf("sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("sweep removed %d invalid session(s)", removed)
			}
		}
	}
}
