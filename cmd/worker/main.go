package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"classcheckin/internal/attendance"
	"classcheckin/internal/config"
	"classcheckin/internal/directory"
	"classcheckin/internal/queue"
	"classcheckin/internal/store"
	"classcheckin/internal/worker"
)

// Worker consumes session events from Redis and caches final summaries.
func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if cfg.StoreBackend != "postgres" || cfg.QueueBackend != "redis" {
		log.Fatal("worker needs STORE_BACKEND=postgres and QUEUE_BACKEND=redis; with memory backends the API runs the worker in-process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable yet, will keep retrying", cfg.RedisAddr)
	}

	courses := directory.NewService(directory.NewPostgresRepository(db.Client), nil)
	sessions := attendance.NewService(
		attendance.NewPostgresRepository(db.Client),
		courses,
		attendance.WithGracePolicy(attendance.GracePolicy{Fraction: cfg.GraceFraction, Window: cfg.GraceWindow}),
		attendance.WithSummaryCache(attendance.NewRedisSummaryCache(redisClient.Client, cfg.SummaryTTL)),
	)
	defer sessions.Close()

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	if err := worker.Run(ctx, q, sessions); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}
