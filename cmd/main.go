package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"codecollab/backend/internal/api/handler"
	"codecollab/backend/internal/chathub"
	"codecollab/backend/internal/config"
	"codecollab/backend/internal/executor"
	"codecollab/backend/internal/localization"
	"codecollab/backend/internal/logging"
	"codecollab/backend/internal/presence"
	"codecollab/backend/internal/ratelimit"
	"codecollab/backend/internal/signaling"
	"codecollab/backend/internal/storage"
	"codecollab/backend/internal/workspace"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// setupRateLimiter connects to Redis when configured. A nil limiter means
// execution is not throttled.
func setupRateLimiter(cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, *redis.Client) {
	if !cfg.RateLimitEnabled() {
		logger.Info("rate limiting disabled")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The middleware fails open, so keep going.
		logger.Warn("redis unreachable, rate limiter will let requests through", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	limiter := ratelimit.NewSlidingWindowLimiter(rdb, ratelimit.Config{
		RequestsPerWindow: cfg.RateLimitRequests,
		WindowSize:        cfg.RateLimitWindow,
	}, "codecollab:ratelimit:ip:")
	return limiter, rdb
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting codecollab backend", zap.String("addr", cfg.HTTPAddr))

	// 1. Storage
	db, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("failed to open snippet store", zap.Error(err))
	}
	store := storage.NewStorageService(db)

	limiter, rdb := setupRateLimiter(cfg, logger)

	loc, err := localization.NewDefault()
	if err != nil {
		logger.Fatal("failed to load translations", zap.Error(err))
	}

	// 2. Execution
	workspaces, err := workspace.NewManager(cfg.WorkspaceDir, logger.Named("workspace"))
	if err != nil {
		logger.Fatal("failed to prepare workspace directory", zap.Error(err))
	}
	exec := executor.NewService(workspaces, executor.Options{
		Timeout:       cfg.ExecTimeout,
		MaxOutput:     cfg.MaxOutputBytes,
		MaxConcurrent: cfg.MaxConcurrentExecutions,
	}, logger.Named("executor"))

	// 3. Real-time hub
	router := chathub.NewRouter(logger.Named("router"))
	registry := presence.NewRegistry(router, presence.Options{PairIdleTTL: cfg.PairSessionIdleTTL}, logger.Named("presence"))
	relay := signaling.NewRelay(router, signaling.Options{BroadcastFallback: cfg.BroadcastSignaling}, logger.Named("signaling"))
	hub := chathub.NewManagerService(router, registry, relay, config.PairSweepInterval, logger.Named("hub"))

	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	// 4. HTTP
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	h := handler.NewHandler(hub, exec, store, loc, cfg.PublicBaseURL, logger.Named("http"))
	h.Register(r, limiter)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Executions may take up to the timeout plus compile time.
		WriteTimeout:   cfg.ExecTimeout + 30*time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.Shutdown(ctx)
			},
			"hub": func(ctx context.Context) error {
				stopHub()
				select {
				case <-hub.Done():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			"storage": func(ctx context.Context) error {
				return store.Close()
			},
			"redis": func(ctx context.Context) error {
				if rdb == nil {
					return nil
				}
				return rdb.Close()
			},
		},
	)

	exitCode := <-wait
	logger.Info("shutdown complete", zap.Int("exit_code", exitCode))
	_ = logger.Sync()
	os.Exit(exitCode)
}
