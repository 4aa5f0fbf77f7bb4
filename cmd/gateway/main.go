package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/promptguard/gateway/internal/audit"
	"github.com/promptguard/gateway/internal/auth"
	"github.com/promptguard/gateway/internal/cache"
	"github.com/promptguard/gateway/internal/config"
	"github.com/promptguard/gateway/internal/detector"
	"github.com/promptguard/gateway/internal/gateway"
	"github.com/promptguard/gateway/internal/llm"
	"github.com/promptguard/gateway/internal/policy"
	"github.com/promptguard/gateway/internal/prescreen"
	"github.com/promptguard/gateway/internal/ratelimit"
	"github.com/promptguard/gateway/internal/session"
	"github.com/promptguard/gateway/internal/telemetry"
	"github.com/promptguard/gateway/internal/threat"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger = buildLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	// Connect to PostgreSQL: API keys and the analysis audit log.
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (gateway will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis: verdict cache, rate limits, quotas, key cache.
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (cache and rate limits fall open)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics()

	// Analysis pipeline: detector client, verdict cache, per-client sessions.
	runner := session.NewRunner(
		detector.NewClient(cfg.Detector.BaseURL, cfg.Detector.APIKey, cfg.Detector.Timeout),
		threat.NewClassifier(threat.DefaultRules()),
		buildResultCache(cfg, rdb),
		cfg.Limits.MaxPromptChars,
	)
	loader.OnReload(func() {
		c := loader.Config()
		*runner = *session.NewRunner(
			detector.NewClient(c.Detector.BaseURL, c.Detector.APIKey, c.Detector.Timeout),
			threat.NewClassifier(threat.DefaultRules()),
			buildResultCache(c, rdb),
			c.Limits.MaxPromptChars,
		)
		logger.Info("analysis pipeline reloaded")
	})

	sessions := session.NewRegistry(cfg.Session.MaxIdle)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sessions.Run(sweepCtx, cfg.Session.SweepInterval)

	chain := prescreen.NewChain(prescreen.SecretsCheck{}, prescreen.PIICheck{})

	// Deployment policy gate. The gate fails closed, so a load failure
	// means approved verdicts are denied until policies arrive.
	evaluator := policy.NewEvaluator(func() config.PolicyConfig {
		return loader.Config().Policy
	})
	if evaluator.Enabled() {
		if err := evaluator.Load(); err != nil {
			logger.Error("failed to load deployment policies, approved verdicts will be denied", "error", err)
		}
	}
	loader.OnReload(func() {
		if !evaluator.Enabled() {
			return
		}
		if err := evaluator.Load(); err != nil {
			logger.Error("failed to reload deployment policies", "error", err)
		}
	})

	// Upstream providers for the approved-prompt forward path.
	providerRegistry := llm.BuildFromConfig(loader.Providers())
	loader.OnReload(func() {
		providerRegistry.ReplaceAll(llm.BuildFromConfig(loader.Providers()))
		logger.Info("provider registry reloaded")
	})
	forward := llm.NewRouter(
		providerRegistry,
		llm.NewHealthTracker(cfg.Forward.CircuitBreaker.FailureThreshold, cfg.Forward.CircuitBreaker.RecoveryProbeInterval),
		append([]string{cfg.Forward.Default}, cfg.Forward.Fallbacks...),
		metrics,
	)

	limiter := ratelimit.NewLimiter(rdb)
	quota := ratelimit.NewQuotaTracker(rdb)
	keyStore := auth.NewCachedKeyStore(dbPool, rdb)
	auditStore := audit.NewStore(dbPool)

	handler := gateway.NewHandler(loader.Config, runner, sessions, chain, evaluator, forward, auditStore, metrics, version)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes
	r.Get("/api/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore))
		r.Use(ratelimit.Middleware(limiter, quota, metrics))
		r.Post("/api/analyze", handler.Analyze)
		r.Post("/api/analyze/risk", handler.AnalyzeRisk)
		r.Post("/api/analyze/batch", handler.AnalyzeBatch)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func buildLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func buildResultCache(cfg *config.Config, rdb *redis.Client) session.ResultCache {
	if !cfg.Cache.Enabled {
		return nil
	}
	return cache.New(rdb, cfg.Cache.TTL, cfg.Cache.MaxEntries)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
