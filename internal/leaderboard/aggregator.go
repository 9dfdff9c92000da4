// Package leaderboard orchestrates leaderboard requests:
//
//	ValidateFilters → ResolveDefaults → CacheLookup → hit: return
//	                                                → miss: Aggregate → Rank → Paginate → Store → return
//
// The orchestration performs no retries; lower-level failures surface as
// *DatabaseError and retrying belongs to the caller.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/aggregation"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/cache"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/clock"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/metrics"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/ranking"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/store"
)

const (
	// MaxLimit is the hard cap on page size.
	MaxLimit = 50
	// DefaultLimit applies when a request omits limit.
	DefaultLimit = 10
	// MaxPage keeps (page-1)*limit representable for every allowed limit.
	MaxPage = math.MaxInt / MaxLimit

	cachePrefix = "leaderboard:v1:"
)

// ConfigSource supplies dynamic query defaults.
type ConfigSource interface {
	QueryDefaults(ctx context.Context) model.DynamicConfig
}

// GameLimitsSource supplies estimated per-game limits.
type GameLimitsSource interface {
	Estimate(ctx context.Context) model.GameLimits
}

// Deps wires an Aggregator.
type Deps struct {
	Strategy   aggregation.Strategy
	Store      store.Store
	Cache      cache.Cache
	Config     ConfigSource
	GameLimits GameLimitsSource
	Clock      clock.Clock
	Logger     *zap.Logger
}

// Aggregator serves ranked, paginated leaderboards and player analytics.
type Aggregator struct {
	strategy   aggregation.Strategy
	store      store.Store
	cache      cache.Cache
	config     ConfigSource
	gameLimits GameLimitsSource
	clock      clock.Clock
	validate   *validator.Validate
	logger     *zap.Logger
}

// New creates an Aggregator.
func New(d Deps) *Aggregator {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Aggregator{
		strategy:   d.Strategy,
		store:      d.Store,
		cache:      d.Cache,
		config:     d.Config,
		gameLimits: d.GameLimits,
		clock:      d.Clock,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     d.Logger,
	}
}

// resolved is a fully defaulted request; its JSON form is the cache key.
type resolved struct {
	TimeRange  model.TimeRange `json:"timeRange"`
	MinGames   int             `json:"minGames"`
	GameStatus string          `json:"gameStatus,omitempty"`
	RankingBy  model.RankingBy `json:"rankingBy"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
}

func (r resolved) offset() int {
	return model.Pagination{Page: r.Page, Limit: r.Limit}.Offset()
}

// CacheKey returns the result cache key of a resolved request.
func (r resolved) CacheKey() string {
	data, _ := json.Marshal(r)
	return cachePrefix + string(data)
}

// ResultTTL returns how long a result for timeRange stays cached.
func ResultTTL(tr model.TimeRange) time.Duration {
	switch tr {
	case model.TimeRangeDay:
		return 30 * time.Second
	case model.TimeRangeWeek:
		return 60 * time.Second
	case model.TimeRangeMonth:
		return 120 * time.Second
	default:
		return 300 * time.Second
	}
}

// Leaderboard returns one ranked page.
func (a *Aggregator) Leaderboard(ctx context.Context, f model.Filters, p model.Pagination) (*model.PaginatedResult, error) {
	payload, err := a.LeaderboardJSON(ctx, f, p)
	if err != nil {
		return nil, err
	}
	var res model.PaginatedResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("leaderboard: decode cached payload: %w", err)
	}
	return &res, nil
}

// LeaderboardJSON returns one ranked page as its cached JSON payload. Within
// the TTL identical requests return identical bytes without aggregating.
func (a *Aggregator) LeaderboardJSON(ctx context.Context, f model.Filters, p model.Pagination) ([]byte, error) {
	if err := a.validateRequest(f, p); err != nil {
		return nil, err
	}
	req := a.resolve(ctx, f, p)
	key := req.CacheKey()

	payload, hit, err := a.cache.Get(ctx, key)
	if err != nil {
		return nil, dbError("GetLeaderboard", "result_cache", err)
	}
	if hit {
		metrics.LeaderboardRequests.WithLabelValues(string(req.RankingBy), "hit").Inc()
		return payload, nil
	}
	metrics.LeaderboardRequests.WithLabelValues(string(req.RankingBy), "miss").Inc()

	result, err := a.compute(ctx, req)
	if err != nil {
		return nil, err
	}
	payload, err = json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: encode result: %w", err)
	}
	if err := a.cache.Set(ctx, key, payload, ResultTTL(req.TimeRange)); err != nil {
		return nil, dbError("GetLeaderboard", "result_cache", err)
	}
	return payload, nil
}

func (a *Aggregator) compute(ctx context.Context, req resolved) (*model.PaginatedResult, error) {
	res, err := a.strategy.Aggregate(ctx, aggregation.Query{
		Since:     req.TimeRange.Cutoff(a.clock.Now()),
		MinGames:  req.MinGames,
		RankingBy: req.RankingBy,
		Limit:     req.Limit,
		Offset:    req.offset(),
	})
	if err != nil {
		return nil, dbError("GetLeaderboard", "player_snapshots", err)
	}

	rows := res.Rows
	ranking.Sort(rows, req.RankingBy)
	if !res.Paged {
		rows = ranking.Page(rows, req.offset(), req.Limit)
	}

	a.logger.Debug("leaderboard computed",
		zap.String("strategy", res.Source),
		zap.String("ranking_by", string(req.RankingBy)),
		zap.String("time_range", string(req.TimeRange)),
		zap.Int("min_games", req.MinGames),
		zap.Int("page", req.Page),
		zap.Int("total", res.Total),
	)
	return &model.PaginatedResult{
		Data:  ranking.Assign(rows, req.offset()),
		Total: res.Total,
		Page:  req.Page,
		Limit: req.Limit,
	}, nil
}

func (a *Aggregator) validateRequest(f model.Filters, p model.Pagination) error {
	for _, v := range []any{f, p} {
		if err := a.validate.Struct(v); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
				fe := fieldErrs[0]
				reason := "must satisfy " + fe.Tag()
				if fe.Param() != "" {
					reason += "=" + fe.Param()
				}
				return &ValidationError{Field: fe.Field(), Value: fe.Value(), Reason: reason}
			}
			return &ValidationError{Field: "request", Reason: err.Error()}
		}
	}
	if p.Page > MaxPage {
		return &ValidationError{Field: "Page", Value: p.Page, Reason: fmt.Sprintf("must be at most %d", MaxPage)}
	}
	return nil
}

func (a *Aggregator) resolve(ctx context.Context, f model.Filters, p model.Pagination) resolved {
	cfg := a.config.QueryDefaults(ctx)

	r := resolved{
		TimeRange:  f.TimeRange,
		MinGames:   cfg.MinGamesThreshold,
		GameStatus: f.GameStatus,
		RankingBy:  f.RankingBy,
		Page:       p.Page,
		Limit:      p.Limit,
	}
	if r.TimeRange == "" {
		r.TimeRange = model.TimeRangeAll
	}
	if r.RankingBy == "" {
		r.RankingBy = model.RankingCombined
	}
	if f.MinGames != nil {
		r.MinGames = *f.MinGames
	}
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit < 1 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	return r
}
