package leaderboard_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/aggregation"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/cache"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/clock"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/estimator"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/leaderboard"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/store"
)

var t0 = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }
func intp(n int) *int { return &n }

// countingStrategy counts aggregations reaching the wrapped strategy.
type countingStrategy struct {
	aggregation.Strategy
	calls atomic.Int32
}

func (c *countingStrategy) Aggregate(ctx context.Context, q aggregation.Query) (aggregation.Result, error) {
	c.calls.Add(1)
	return c.Strategy.Aggregate(ctx, q)
}

type brokenStrategy struct{ name string }

func (b brokenStrategy) Name() string { return b.name }

func (b brokenStrategy) Aggregate(context.Context, aggregation.Query) (aggregation.Result, error) {
	return aggregation.Result{}, errors.New(b.name + ": connection reset")
}

type env struct {
	store    *store.MemoryStore
	clock    *clock.Fake
	cache    *cache.MemoryCache
	strategy *countingStrategy
	agg      *leaderboard.Aggregator
}

// newEnv wires an Aggregator over an in-memory store. native selects the
// store-side strategy (with fallback behind it) instead of the fallback alone.
func newEnv(t *testing.T, native bool) *env {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ms := store.NewMemoryStore()
	clk := clock.NewFake(t0)
	c := cache.NewMemoryCache(clk)
	pool := pond.NewPool(4)
	t.Cleanup(pool.StopAndWait)

	fb := aggregation.NewFallback(ms, estimator.NewWinThresholdEstimator(ms, c, logger), pool, logger)
	counting := &countingStrategy{Strategy: aggregation.Select(context.Background(), ms, fb, native, logger)}

	agg := leaderboard.New(leaderboard.Deps{
		Strategy:   counting,
		Store:      ms,
		Cache:      c,
		Config:     estimator.NewConfigEstimator(ms, c, logger),
		GameLimits: estimator.NewGameLimitsEstimator(ms, pool, logger),
		Clock:      clk,
		Logger:     logger,
	})
	return &env{store: ms, clock: clk, cache: c, strategy: counting, agg: agg}
}

// seedScenarioA: three wallets play five finished games; W1 wins three, all claimed.
func (e *env) seedScenarioA() {
	winners := []string{"W1", "W1", "W1", "W2", "W3"}
	for i, winner := range winners {
		game := fmt.Sprintf("g%d", i+1)
		at := t0.Add(-time.Duration(i+1) * time.Hour)
		for _, w := range []string{"W1", "W2", "W3"} {
			e.store.PutSnapshot(model.PlayerSnapshot{Wallet: w, GameID: game, Cash: 1500, PropertyCount: 2, UpdatedAt: at})
		}
		e.store.PutFinishedGame(model.FinishedGame{
			GameID:    game,
			Winner:    strp(winner),
			PrizePool: decimal.NewFromInt(1_000_000_000),
			Claimed:   true,
			CreatedAt: at,
		})
	}
}

// seedWallets adds n wallets with distinct activity so every mode orders them.
func (e *env) seedWallets(n int) {
	for i := 0; i < n; i++ {
		wallet := fmt.Sprintf("P%03d", i)
		for g := 0; g <= i%7; g++ {
			e.store.PutSnapshot(model.PlayerSnapshot{
				Wallet:    wallet,
				GameID:    fmt.Sprintf("game-%d", g),
				Cash:      int64(100 * (i + 1)),
				UpdatedAt: t0.Add(-time.Duration(g) * time.Hour),
			})
		}
	}
}

func TestLeaderboard_ScenarioA(t *testing.T) {
	for _, native := range []bool{true, false} {
		t.Run(fmt.Sprintf("native=%v", native), func(t *testing.T) {
			e := newEnv(t, native)
			e.seedScenarioA()

			res, err := e.agg.Leaderboard(context.Background(),
				model.Filters{MinGames: intp(1), RankingBy: model.RankingMostWins},
				model.Pagination{Page: 1, Limit: 10})
			require.NoError(t, err)

			require.Len(t, res.Data, 3)
			top := res.Data[0]
			assert.Equal(t, "W1", top.WalletAddress)
			assert.Equal(t, 1, top.Rank)
			assert.Equal(t, 3, top.TotalGamesWon)
			assert.Equal(t, 5, top.TotalGamesPlayed)
			assert.Equal(t, 60.0, top.WinRate)
			assert.True(t, top.TotalEarnings.Equal(decimal.NewFromInt(3)), top.TotalEarnings.String())
			// W2 and W3 tie on every key: wallet order decides.
			assert.Equal(t, "W2", res.Data[1].WalletAddress)
			assert.Equal(t, "W3", res.Data[2].WalletAddress)
			assert.Equal(t, 3, res.Total)
		})
	}
}

func TestLeaderboard_ScenarioD_SecondPage(t *testing.T) {
	for _, native := range []bool{true, false} {
		t.Run(fmt.Sprintf("native=%v", native), func(t *testing.T) {
			e := newEnv(t, native)
			e.seedWallets(25)

			res, err := e.agg.Leaderboard(context.Background(),
				model.Filters{MinGames: intp(0)},
				model.Pagination{Page: 2, Limit: 10})
			require.NoError(t, err)

			assert.Equal(t, 25, res.Total)
			assert.Equal(t, 2, res.Page)
			assert.Equal(t, 10, res.Limit)
			require.Len(t, res.Data, 10)
			for i, entry := range res.Data {
				assert.Equal(t, 11+i, entry.Rank)
			}

			last, err := e.agg.Leaderboard(context.Background(),
				model.Filters{MinGames: intp(0)},
				model.Pagination{Page: 3, Limit: 10})
			require.NoError(t, err)
			require.Len(t, last.Data, 5)
			assert.Equal(t, 21, last.Data[0].Rank)
			assert.Equal(t, 25, last.Data[4].Rank)
		})
	}
}

func TestLeaderboard_PathsRankIdentically(t *testing.T) {
	native, fallback := newEnv(t, true), newEnv(t, false)
	native.seedWallets(30)
	fallback.seedWallets(30)
	ctx := context.Background()

	for _, mode := range []model.RankingBy{model.RankingMostWins, model.RankingHighestEarnings, model.RankingMostActive, model.RankingCombined} {
		f := model.Filters{RankingBy: mode, MinGames: intp(2)}
		p := model.Pagination{Page: 2, Limit: 7}
		a, err := native.agg.Leaderboard(ctx, f, p)
		require.NoError(t, err)
		b, err := fallback.agg.Leaderboard(ctx, f, p)
		require.NoError(t, err)

		assert.Equal(t, a.Total, b.Total, mode)
		require.Equal(t, len(a.Data), len(b.Data), mode)
		for i := range a.Data {
			assert.Equal(t, a.Data[i].WalletAddress, b.Data[i].WalletAddress, "%s rank %d", mode, a.Data[i].Rank)
			assert.Equal(t, a.Data[i].Rank, b.Data[i].Rank)
			assert.GreaterOrEqual(t, a.Data[i].TotalGamesPlayed, 2)
		}
	}
}

func TestLeaderboard_CachedResultIsIdempotent(t *testing.T) {
	e := newEnv(t, true)
	e.seedScenarioA()
	ctx := context.Background()
	f := model.Filters{TimeRange: model.TimeRangeDay, RankingBy: model.RankingCombined}
	p := model.Pagination{Page: 1, Limit: 5}

	first, err := e.agg.LeaderboardJSON(ctx, f, p)
	require.NoError(t, err)

	// New data is invisible until the TTL passes.
	e.store.PutSnapshot(model.PlayerSnapshot{Wallet: "W9", GameID: "g9", Cash: 1, UpdatedAt: t0})
	second, err := e.agg.LeaderboardJSON(ctx, f, p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), e.strategy.calls.Load())

	e.clock.Advance(leaderboard.ResultTTL(model.TimeRangeDay))
	third, err := e.agg.LeaderboardJSON(ctx, f, p)
	require.NoError(t, err)
	assert.Equal(t, int32(2), e.strategy.calls.Load())
	assert.NotEqual(t, first, third)

	var res model.PaginatedResult
	require.NoError(t, json.Unmarshal(third, &res))
	assert.Equal(t, 4, res.Total)
}

func TestLeaderboard_DefaultsResolveToSameCacheEntry(t *testing.T) {
	e := newEnv(t, false)
	e.seedScenarioA()
	ctx := context.Background()

	implicit, err := e.agg.LeaderboardJSON(ctx, model.Filters{}, model.Pagination{})
	require.NoError(t, err)
	explicit, err := e.agg.LeaderboardJSON(ctx,
		model.Filters{TimeRange: model.TimeRangeAll, RankingBy: model.RankingCombined, MinGames: intp(1)},
		model.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, implicit, explicit)
	assert.Equal(t, int32(1), e.strategy.calls.Load())
}

func TestLeaderboard_LimitIsCapped(t *testing.T) {
	e := newEnv(t, true)
	e.seedWallets(60)

	res, err := e.agg.Leaderboard(context.Background(), model.Filters{MinGames: intp(0)}, model.Pagination{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, leaderboard.MaxLimit, res.Limit)
	assert.Len(t, res.Data, leaderboard.MaxLimit)
	assert.Equal(t, 60, res.Total)
}

func TestLeaderboard_LastRepresentablePage(t *testing.T) {
	for _, native := range []bool{true, false} {
		t.Run(fmt.Sprintf("native=%v", native), func(t *testing.T) {
			e := newEnv(t, native)
			e.seedWallets(5)

			res, err := e.agg.Leaderboard(context.Background(),
				model.Filters{MinGames: intp(0)},
				model.Pagination{Page: leaderboard.MaxPage, Limit: leaderboard.MaxLimit})
			require.NoError(t, err)
			assert.Equal(t, 5, res.Total)
			assert.Empty(t, res.Data)
			assert.Equal(t, leaderboard.MaxPage, res.Page)
		})
	}
}

func TestLeaderboard_DefaultLimitIgnoresDatasetSize(t *testing.T) {
	e := newEnv(t, true)
	e.seedWallets(60)
	ctx := context.Background()

	require.Greater(t, e.agg.QueryDefaults(ctx).DefaultPageSize, leaderboard.DefaultLimit)

	res, err := e.agg.Leaderboard(ctx, model.Filters{MinGames: intp(0)}, model.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, leaderboard.DefaultLimit, res.Limit)
	assert.Len(t, res.Data, leaderboard.DefaultLimit)
}

func TestLeaderboard_TimeRangeWindowsByClock(t *testing.T) {
	for _, native := range []bool{true, false} {
		t.Run(fmt.Sprintf("native=%v", native), func(t *testing.T) {
			e := newEnv(t, native)
			twoDaysAgo := t0.Add(-48 * time.Hour)
			e.store.PutSnapshot(model.PlayerSnapshot{Wallet: "W1", GameID: "old", Cash: 3000, UpdatedAt: twoDaysAgo})
			e.store.PutSnapshot(model.PlayerSnapshot{Wallet: "W1", GameID: "new", Cash: 100, UpdatedAt: t0})
			e.store.PutFinishedGame(model.FinishedGame{GameID: "old", Winner: strp("W1"), CreatedAt: twoDaysAgo})
			ctx := context.Background()

			all, err := e.agg.Leaderboard(ctx, model.Filters{TimeRange: model.TimeRangeAll, MinGames: intp(0)}, model.Pagination{})
			require.NoError(t, err)
			require.Len(t, all.Data, 1)
			assert.Equal(t, 2, all.Data[0].TotalGamesPlayed)
			assert.Equal(t, 1, all.Data[0].TotalGamesWon)

			day, err := e.agg.Leaderboard(ctx, model.Filters{TimeRange: model.TimeRangeDay, MinGames: intp(0)}, model.Pagination{})
			require.NoError(t, err)
			require.Len(t, day.Data, 1)
			assert.Equal(t, 1, day.Data[0].TotalGamesPlayed)
			assert.Equal(t, 0, day.Data[0].TotalGamesWon)
			assert.Equal(t, 100.0, day.Data[0].HighestCashBalance)

			// Moving the clock a further two days empties the window.
			e.clock.Advance(48 * time.Hour)
			later, err := e.agg.Leaderboard(ctx, model.Filters{TimeRange: model.TimeRangeWeek, MinGames: intp(0)}, model.Pagination{})
			require.NoError(t, err)
			require.Len(t, later.Data, 1)
			assert.Equal(t, 2, later.Data[0].TotalGamesPlayed)

			e.clock.Advance(8 * 24 * time.Hour)
			gone, err := e.agg.Leaderboard(ctx, model.Filters{TimeRange: model.TimeRangeWeek, MinGames: intp(0)}, model.Pagination{})
			require.NoError(t, err)
			assert.Empty(t, gone.Data)
		})
	}
}

func TestLeaderboard_EmptyDataset(t *testing.T) {
	e := newEnv(t, true)

	res, err := e.agg.Leaderboard(context.Background(), model.Filters{}, model.Pagination{})
	require.NoError(t, err)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
	assert.Equal(t, 0, res.Total)
	assert.Equal(t, leaderboard.DefaultLimit, res.Limit)
}

func TestLeaderboard_ValidationErrors(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	tests := []struct {
		name  string
		f     model.Filters
		p     model.Pagination
		field string
	}{
		{"time range", model.Filters{TimeRange: "year"}, model.Pagination{}, "TimeRange"},
		{"ranking", model.Filters{RankingBy: "richest"}, model.Pagination{}, "RankingBy"},
		{"negative min games", model.Filters{MinGames: intp(-1)}, model.Pagination{}, "MinGames"},
		{"negative page", model.Filters{}, model.Pagination{Page: -1}, "Page"},
		{"negative limit", model.Filters{}, model.Pagination{Limit: -5}, "Limit"},
		{"page offset overflows", model.Filters{}, model.Pagination{Page: leaderboard.MaxPage + 1, Limit: 10}, "Page"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.agg.Leaderboard(ctx, tt.f, tt.p)
			require.Error(t, err)
			assert.True(t, leaderboard.IsValidation(err))
			assert.False(t, leaderboard.IsDatabase(err))

			var verr *leaderboard.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Equal(t, int32(0), e.strategy.calls.Load())
}

func TestLeaderboard_DatabaseErrorWhenBothPathsFail(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ms := store.NewMemoryStore()
	c := cache.NewMemoryCache(clock.NewFake(t0))
	agg := leaderboard.New(leaderboard.Deps{
		Strategy: &aggregation.Resilient{
			Primary:   brokenStrategy{"native"},
			Secondary: brokenStrategy{"fallback"},
			Logger:    logger,
		},
		Store:  ms,
		Cache:  c,
		Config: estimator.NewConfigEstimator(ms, c, logger),
		Clock:  clock.NewFake(t0),
		Logger: logger,
	})

	_, err := agg.Leaderboard(context.Background(), model.Filters{}, model.Pagination{})
	require.Error(t, err)
	assert.True(t, leaderboard.IsDatabase(err))

	var dbErr *leaderboard.DatabaseError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, "GetLeaderboard", dbErr.Op)
	assert.Contains(t, dbErr.Err.Error(), "fallback")
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("READONLY")
}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("READONLY")
}

func TestLeaderboard_CacheFailureIsDatabaseError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ms := store.NewMemoryStore()
	agg := leaderboard.New(leaderboard.Deps{
		Strategy: aggregation.NewNative(ms),
		Store:    ms,
		Cache:    brokenCache{},
		Config:   estimator.NewConfigEstimator(ms, brokenCache{}, logger),
		Logger:   logger,
	})

	_, err := agg.Leaderboard(context.Background(), model.Filters{}, model.Pagination{})
	var dbErr *leaderboard.DatabaseError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, "result_cache", dbErr.Entity)
}

func TestResultTTL(t *testing.T) {
	assert.Equal(t, 30*time.Second, leaderboard.ResultTTL(model.TimeRangeDay))
	assert.Equal(t, 60*time.Second, leaderboard.ResultTTL(model.TimeRangeWeek))
	assert.Equal(t, 120*time.Second, leaderboard.ResultTTL(model.TimeRangeMonth))
	assert.Equal(t, 300*time.Second, leaderboard.ResultTTL(model.TimeRangeAll))
}
