package estimator

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/cache"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/metrics"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/store"
)

const (
	// ThresholdTTL is longer than ConfigTTL: the sample is more expensive
	// and the distribution moves slowly.
	ThresholdTTL = 10 * time.Minute

	// ThresholdSampleSize is the number of recent snapshots sampled.
	ThresholdSampleSize = 500

	MinWinThreshold     = 1500.0
	MaxWinThreshold     = 10000.0
	DefaultWinThreshold = 2000.0

	thresholdPercentile = 0.75
	thresholdCacheKey   = "estimator:win-threshold"
)

// WinThresholdEstimator derives the cash level above which the richest player
// of an unresolved game is presumed to have won it.
type WinThresholdEstimator struct {
	store  store.Store
	cache  cache.Cache
	logger *zap.Logger
}

// NewWinThresholdEstimator creates a WinThresholdEstimator.
func NewWinThresholdEstimator(st store.Store, c cache.Cache, logger *zap.Logger) *WinThresholdEstimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WinThresholdEstimator{store: st, cache: c, logger: logger}
}

// WinThreshold returns the cached threshold or recomputes it from a sample of
// recent snapshots. Store failures yield DefaultWinThreshold uncached.
func (e *WinThresholdEstimator) WinThreshold(ctx context.Context) float64 {
	var v float64
	if cached(ctx, e.cache, thresholdCacheKey, &v, e.logger) {
		return v
	}

	sample, err := e.store.RecentSnapshots(ctx, ThresholdSampleSize)
	if err != nil {
		e.logger.Warn("win threshold sample failed, using default", zap.Error(err))
		metrics.EstimatorFallbacks.WithLabelValues("win_threshold").Inc()
		return DefaultWinThreshold
	}

	cash := make([]float64, 0, len(sample))
	for _, s := range sample {
		cash = append(cash, float64(s.Cash))
	}
	v = Percentile75Threshold(cash)
	metrics.WinThreshold.Set(v)
	remember(ctx, e.cache, thresholdCacheKey, v, ThresholdTTL, e.logger)
	return v
}

// Percentile75Threshold returns the 75th percentile of the positive values,
// clamped to [MinWinThreshold, MaxWinThreshold]; DefaultWinThreshold when
// there are none.
func Percentile75Threshold(values []float64) float64 {
	positive := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 && !math.IsInf(v, 0) {
			positive = append(positive, v)
		}
	}
	if len(positive) == 0 {
		return DefaultWinThreshold
	}
	sort.Float64s(positive)

	idx := int(math.Ceil(thresholdPercentile*float64(len(positive)))) - 1
	if idx < 0 {
		idx = 0
	}
	return math.Min(math.Max(positive[idx], MinWinThreshold), MaxWinThreshold)
}
