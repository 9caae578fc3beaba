package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/student-api/backend/internal/clock"
	"github.com/student-api/backend/internal/config"
	"github.com/student-api/backend/internal/db"
	"github.com/student-api/backend/internal/events"
	"github.com/student-api/backend/internal/handler"
	"github.com/student-api/backend/internal/ratelimit"
	"github.com/student-api/backend/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	clk := clock.Real()

	tokens, err := service.NewTokenService(cfg.Auth, clk)
	if err != nil {
		return err
	}

	repo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		redisClient *redis.Client
		publisher   message.Publisher
		throttle    handler.Throttle
	)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		publisher, err = events.NewRedisStreamPublisher(redisClient)
		if err != nil {
			return err
		}

		limit, window, _ := cfg.RateLimit.Parse()
		throttle = handler.Throttle{
			Limiter: ratelimit.NewLimiter(redisClient, ratelimit.DefaultKeyPrefix, clk),
			Limit:   limit,
			Window:  window,
			Clock:   clk,
		}
		logger.Info("redis enabled", "login_rate_limit", limit, "login_rate_window", window.String())
	} else {
		publisher = events.NewInMemoryPubSub()
	}

	eventPub := events.NewPublisher(publisher, events.DefaultTopic)
	defer eventPub.Close()

	router := gin.Default()
	err = handler.RegisterRoutes(router, handler.Routes{
		Auth:           service.NewAuthService(repo, tokens, clk, eventPub, logger),
		Students:       service.NewStudentService(repo, logger),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		Throttle:       throttle,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (service.StudentRepository, func(), error) {
	seed, err := db.SeedStudents(service.HashPassword)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Store.Driver != config.StorePostgres {
		return db.NewMemory(seed...), func() {}, nil
	}

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	pg := db.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	if err := pg.Seed(ctx, seed); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to seed students: %w", err)
	}
	logger.Info("postgres store ready")
	return pg, pool.Close, nil
}
