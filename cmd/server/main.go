package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/aggregation"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/api"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/cache"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/clock"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/config"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/estimator"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/leaderboard"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/logging"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/metrics"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real{}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		logger.Info("connected to PostgreSQL")
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Cache for results and estimators ---
	var c cache.Cache
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		c = cache.NewRedisCache(rdb, cfg.CachePrefix)
		logger.Info("Redis cache enabled")
	} else {
		c = cache.NewMemoryCache(clk)
	}

	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	workers := pond.NewPool(cfg.WorkerPoolSize)
	defer workers.StopAndWait()

	// --- Estimators and aggregation ---
	configEst := estimator.NewConfigEstimator(st, c, logger.Named("estimator"))
	thresholdEst := estimator.NewWinThresholdEstimator(st, c, logger.Named("estimator"))
	limitsEst := estimator.NewGameLimitsEstimator(st, workers, logger.Named("estimator"))

	fallback := aggregation.NewFallback(st, thresholdEst, workers, logger.Named("aggregation"))
	probeCtx, cancelProbe := context.WithTimeout(ctx, 5*time.Second)
	strategy := aggregation.Select(probeCtx, st, fallback, cfg.NativeAggregation, logger.Named("aggregation"))
	cancelProbe()

	engine := leaderboard.New(leaderboard.Deps{
		Strategy:   strategy,
		Store:      st,
		Cache:      c,
		Config:     configEst,
		GameLimits: limitsEst,
		Clock:      clk,
		Logger:     logger.Named("leaderboard"),
	})

	if cfg.WarmSchedule != "" {
		warmer := estimator.NewWarmer(configEst, thresholdEst, logger.Named("warmer"))
		if err := warmer.Start(ctx, cfg.WarmSchedule); err != nil {
			logger.Fatal("invalid warm schedule", zap.String("schedule", cfg.WarmSchedule), zap.Error(err))
		}
		defer warmer.Stop()
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"leaderboard","aggregation_primary":"` + strategy.Name() + `"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	handler := api.NewHandler(engine, logger.Named("api"))
	r.Route("/api/v1", handler.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("leaderboard listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down leaderboard...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
