package leaderboard

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/aggregation"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
)

// TopGames is the popular in-progress games view.
type TopGames struct {
	Games  []model.PopularGame `json:"games"`
	Limits model.GameLimits    `json:"limits"`
}

// QueryDefaults exposes the dynamic query limits used to resolve requests.
func (a *Aggregator) QueryDefaults(ctx context.Context) model.DynamicConfig {
	return a.config.QueryDefaults(ctx)
}

// PlayerStats aggregates one wallet over its most recent snapshots. Wins are
// taken from recorded winners only; the cash heuristic needs every player of
// a game and is not applied to a single-wallet sample.
func (a *Aggregator) PlayerStats(ctx context.Context, wallet string) (*model.PlayerAggregate, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, &ValidationError{Field: "wallet", Value: wallet, Reason: "must not be empty"}
	}
	cfg := a.config.QueryDefaults(ctx)

	snaps, err := a.store.SnapshotsByWallet(ctx, wallet, cfg.PlayerStatesQueryLimit)
	if err != nil {
		return nil, dbError("GetPlayerStats", "player_snapshots", err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, wallet)
	}

	ids := make([]string, 0, len(snaps))
	seen := make(map[string]struct{}, len(snaps))
	for _, s := range snaps {
		if _, ok := seen[s.GameID]; !ok {
			seen[s.GameID] = struct{}{}
			ids = append(ids, s.GameID)
		}
	}
	played, err := a.store.FinishedGamesByIDs(ctx, ids)
	if err != nil {
		return nil, dbError("GetPlayerStats", "finished_games", err)
	}
	won, err := a.store.FinishedGamesWonBy(ctx, wallet)
	if err != nil {
		return nil, dbError("GetPlayerStats", "finished_games", err)
	}

	// Wins outside the snapshot sample still carry prize pools.
	games := played
	for _, g := range won {
		if _, ok := seen[g.GameID]; !ok {
			games = append(games, g)
		}
	}

	rows := aggregation.Build(snaps, games, math.Inf(1))
	if len(rows) != 1 {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, wallet)
	}
	stats := rows[0]
	a.logger.Debug("player stats computed",
		zap.String("wallet", wallet),
		zap.Int("snapshots", len(snaps)),
		zap.Int("played", stats.TotalGamesPlayed),
		zap.Int("won", stats.TotalGamesWon),
	)
	return &stats, nil
}

// TopGames returns in-progress games whose participant count reaches the
// estimated popularity threshold. limit <= 0 uses the default page size; the
// result never exceeds the dynamic max query limit.
func (a *Aggregator) TopGames(ctx context.Context, limit int) (*TopGames, error) {
	if limit < 0 {
		return nil, &ValidationError{Field: "limit", Value: limit, Reason: "must not be negative"}
	}
	cfg := a.config.QueryDefaults(ctx)
	if limit == 0 {
		limit = cfg.DefaultPageSize
	}
	if limit > cfg.MaxQueryLimit {
		limit = cfg.MaxQueryLimit
	}

	limits := a.gameLimits.Estimate(ctx)
	games, err := a.store.PopularGames(ctx, limits.PopularityThreshold, limit)
	if err != nil {
		return nil, dbError("GetTopGames", "games", err)
	}
	if games == nil {
		games = []model.PopularGame{}
	}
	return &TopGames{Games: games, Limits: limits}, nil
}
