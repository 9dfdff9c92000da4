// Package aggregation turns persisted snapshot rows into per-wallet
// leaderboard aggregates. Two strategies share one contract: Native pushes
// grouping and ranking to the store in a single query, Fallback pulls raw rows
// and aggregates in process. For the same data both yield the same wallets and
// the same played/won counts.
package aggregation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/metrics"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/store"
)

// Query is a resolved aggregation request.
type Query struct {
	Since     *time.Time // nil = all time
	MinGames  int
	RankingBy model.RankingBy
	Limit     int
	Offset    int
}

// Result holds unranked aggregates. When Paged is true Rows is already the
// requested page; otherwise Rows is every matching wallet and the caller
// slices after ranking. Total always counts every matching wallet. Source
// names the strategy that produced the rows.
type Result struct {
	Rows   []model.PlayerAggregate
	Total  int
	Paged  bool
	Source string
}

// Strategy aggregates leaderboard rows.
type Strategy interface {
	Name() string
	Aggregate(ctx context.Context, q Query) (Result, error)
}

// Native delegates grouping, ordering and paging to the store.
type Native struct {
	agg store.NativeAggregator
}

// NewNative creates a Native strategy over a store that supports aggregation.
func NewNative(agg store.NativeAggregator) *Native {
	return &Native{agg: agg}
}

func (n *Native) Name() string { return "native" }

func (n *Native) Aggregate(ctx context.Context, q Query) (Result, error) {
	start := time.Now()
	rows, total, err := n.agg.AggregateLeaderboard(ctx, store.AggregateQuery{
		Since:     q.Since,
		MinGames:  q.MinGames,
		RankingBy: q.RankingBy,
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
	metrics.AggregationDuration.WithLabelValues(n.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return Result{}, err
	}
	return Result{Rows: rows, Total: total, Paged: true, Source: n.Name()}, nil
}

// Resilient runs Primary and answers with Secondary when Primary fails.
// The failure is logged as a warning, never returned. Name reports the
// configured primary; Result.Source reports who answered.
type Resilient struct {
	Primary   Strategy
	Secondary Strategy
	Logger    *zap.Logger
}

func (r *Resilient) Name() string { return r.Primary.Name() }

func (r *Resilient) Aggregate(ctx context.Context, q Query) (Result, error) {
	res, err := r.Primary.Aggregate(ctx, q)
	if err == nil {
		return res, nil
	}
	metrics.NativeFallbacks.Inc()
	if r.Logger != nil {
		r.Logger.Warn("aggregation failed, falling back",
			zap.String("primary", r.Primary.Name()),
			zap.String("secondary", r.Secondary.Name()),
			zap.Error(err),
		)
	}
	return r.Secondary.Aggregate(ctx, q)
}

// Select probes the store once and returns the strategy to use for the
// lifetime of the engine: Native with Fallback behind it when enabled and the
// store supports and answers aggregation, Fallback alone otherwise.
func Select(ctx context.Context, st store.Store, fallback *Fallback, nativeEnabled bool, logger *zap.Logger) Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !nativeEnabled {
		logger.Info("native aggregation disabled, using in-process aggregation")
		return fallback
	}
	agg, ok := st.(store.NativeAggregator)
	if !ok {
		logger.Info("store cannot aggregate natively, using in-process aggregation")
		return fallback
	}
	if err := agg.Ping(ctx); err != nil {
		logger.Warn("store unreachable at startup, using in-process aggregation", zap.Error(err))
		return fallback
	}
	logger.Info("native aggregation enabled")
	return &Resilient{Primary: NewNative(agg), Secondary: fallback, Logger: logger}
}
