package estimator

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Warmer refreshes estimator caches on a schedule so request paths rarely
// pay for a recompute.
type Warmer struct {
	config    *ConfigEstimator
	threshold *WinThresholdEstimator
	logger    *zap.Logger
	cron      *cron.Cron
}

// NewWarmer creates a Warmer over the cached estimators.
func NewWarmer(config *ConfigEstimator, threshold *WinThresholdEstimator, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{config: config, threshold: threshold, logger: logger}
}

// Warm runs every estimator once.
func (w *Warmer) Warm(ctx context.Context) {
	cfg := w.config.QueryDefaults(ctx)
	threshold := w.threshold.WinThreshold(ctx)
	w.logger.Debug("estimators warmed",
		zap.Int("default_page_size", cfg.DefaultPageSize),
		zap.Int("min_games", cfg.MinGamesThreshold),
		zap.Float64("win_threshold", threshold),
	)
}

// Start warms once and then on spec (standard cron syntax or @every).
func (w *Warmer) Start(ctx context.Context, spec string) error {
	w.cron = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := w.cron.AddFunc(spec, func() {
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		w.Warm(rctx)
	})
	if err != nil {
		return err
	}
	w.Warm(ctx)
	w.cron.Start()
	w.logger.Info("estimator warmer started", zap.String("schedule", spec))
	return nil
}

// Stop halts the schedule and waits for a running warm-up.
func (w *Warmer) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}
