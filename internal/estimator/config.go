// Package estimator derives query limits and thresholds from the live data
// distribution instead of hard-coded business constants. Failures never
// propagate: every estimator answers with fixed fallback values so the
// leaderboard stays available when auxiliary statistics cannot be computed.
package estimator

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/cache"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/metrics"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/store"
)

const (
	// ConfigTTL bounds how long derived query defaults are reused.
	ConfigTTL = 5 * time.Minute

	configCacheKey = "estimator:query-defaults"
)

// FallbackConfig is served when counts cannot be read or the dataset is empty.
var FallbackConfig = model.DynamicConfig{
	DefaultPageSize:        10,
	MaxQueryLimit:          1000,
	MinGamesThreshold:      1,
	PlayerStatesQueryLimit: 200,
}

// ConfigEstimator derives page sizes and query limits from dataset cardinality.
type ConfigEstimator struct {
	store  store.Store
	cache  cache.Cache
	logger *zap.Logger
}

// NewConfigEstimator creates a ConfigEstimator. c holds the derived value
// between refreshes.
func NewConfigEstimator(st store.Store, c cache.Cache, logger *zap.Logger) *ConfigEstimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigEstimator{store: st, cache: c, logger: logger}
}

// QueryDefaults returns the cached DynamicConfig or recomputes it.
func (e *ConfigEstimator) QueryDefaults(ctx context.Context) model.DynamicConfig {
	var cfg model.DynamicConfig
	if cached(ctx, e.cache, configCacheKey, &cfg, e.logger) {
		return cfg
	}

	cfg, err := e.compute(ctx)
	if err != nil {
		e.logger.Warn("query defaults estimation failed, using fallback", zap.Error(err))
		metrics.EstimatorFallbacks.WithLabelValues("config").Inc()
		cfg = FallbackConfig
	}
	remember(ctx, e.cache, configCacheKey, cfg, ConfigTTL, e.logger)
	return cfg
}

func (e *ConfigEstimator) compute(ctx context.Context) (model.DynamicConfig, error) {
	players, err := e.store.CountPlayers(ctx)
	if err != nil {
		return model.DynamicConfig{}, err
	}
	if players == 0 {
		e.logger.Debug("no player snapshots yet, using fallback query defaults")
		return FallbackConfig, nil
	}
	games, err := e.store.CountGames(ctx)
	if err != nil {
		return model.DynamicConfig{}, err
	}
	return DeriveConfig(players, games), nil
}

// DeriveConfig maps player and game counts to query limits.
func DeriveConfig(playerCount, gameCount int) model.DynamicConfig {
	pageSize := 10
	switch {
	case playerCount > 2000:
		pageSize = 25
	case playerCount > 500:
		pageSize = 20
	case playerCount > 100:
		pageSize = 15
	}

	minGames := 1
	if gameCount > 50 {
		minGames = 2
	}

	return model.DynamicConfig{
		DefaultPageSize:        pageSize,
		MaxQueryLimit:          clamp(playerCount, 500, 2000),
		MinGamesThreshold:      minGames,
		PlayerStatesQueryLimit: clamp(playerCount/20, 200, 1000),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// cached decodes the value under key into dst. Cache errors read as misses.
func cached(ctx context.Context, c cache.Cache, key string, dst any, logger *zap.Logger) bool {
	payload, ok, err := c.Get(ctx, key)
	if err != nil {
		logger.Debug("estimator cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	return json.Unmarshal(payload, dst) == nil
}

func remember(ctx context.Context, c cache.Cache, key string, v any, ttl time.Duration, logger *zap.Logger) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.Set(ctx, key, payload, ttl); err != nil {
		logger.Debug("estimator cache write failed", zap.String("key", key), zap.Error(err))
	}
}
