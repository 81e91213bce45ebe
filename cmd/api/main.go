package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"classcheckin/internal/api"
	"classcheckin/internal/attendance"
	"classcheckin/internal/auth"
	"classcheckin/internal/cloudinary"
	"classcheckin/internal/config"
	"classcheckin/internal/directory"
	"classcheckin/internal/httpmiddleware"
	"classcheckin/internal/queue"
	"classcheckin/internal/share"
	"classcheckin/internal/store"
	"classcheckin/internal/worker"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

type repositories struct {
	users    auth.UserRepository
	courses  directory.Repository
	sessions attendance.Repository
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := map[string]api.HealthCheck{}

	var repos repositories
	switch cfg.StoreBackend {
	case "memory":
		log.Println("using in-memory storage; data is lost on restart")
		repos = repositories{
			users:    auth.NewMemoryRepository(),
			courses:  directory.NewMemoryRepository(),
			sessions: attendance.NewMemoryRepository(),
		}
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connect failed: %w", err)
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
		}
		health["db"] = db.Healthy
		repos = repositories{
			users:    auth.NewRepository(db.Client),
			courses:  directory.NewPostgresRepository(db.Client),
			sessions: attendance.NewPostgresRepository(db.Client),
		}
	}

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" || cfg.RateLimitBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		health["redis"] = redisClient.Healthy
	}

	opts := []attendance.Option{
		attendance.WithGracePolicy(attendance.GracePolicy{Fraction: cfg.GraceFraction, Window: cfg.GraceWindow}),
	}
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}
	opts = append(opts, attendance.WithEvents(q))
	if redisClient != nil {
		opts = append(opts, attendance.WithSummaryCache(attendance.NewRedisSummaryCache(redisClient.Client, cfg.SummaryTTL)))
	}

	provider := auth.NewProvider(repos.users, auth.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL))
	if err := provider.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	courses := directory.NewService(repos.courses, repos.users)
	sessions := attendance.NewService(repos.sessions, courses, opts...)
	defer sessions.Close()

	if err := sessions.Resume(ctx); err != nil {
		log.Printf("warning: resume active sessions: %v", err)
	}
	go sessions.RunSweeper(ctx, cfg.SweepInterval)

	if cfg.QueueBackend == "memory" {
		go func() {
			if err := worker.Run(ctx, q, sessions); err != nil {
				log.Printf("in-process worker: %v", err)
			}
		}()
	}

	var uploader share.Uploader
	if cfg.Cloudinary.Enabled() {
		c := cfg.Cloudinary
		uploader = cloudinary.New(c.CloudName, c.APIKey, c.APISecret, c.Folder)
		log.Println("Cloudinary configured:", c.CloudName)
	} else {
		log.Println("Cloudinary not configured; QR codes are served inline only")
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisFixedWindow(redisClient.Client, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	r := api.NewRouter(api.Deps{
		Sessions:       sessions,
		Courses:        courses,
		Auth:           provider,
		Share:          share.NewRenderer(cfg.CheckinBaseURL, cfg.QRSize, uploader),
		Limiter:        limiter,
		Health:         health,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
