// Package store defines the read-only persistence interface of the leaderboard
// engine. Rows are owned by the external ingestion pipeline; nothing here writes.
// Implementations include PostgreSQL (source of truth) and in-memory (for
// development and tests).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
)

// ErrUnavailable is returned by stores that cannot currently serve reads.
var ErrUnavailable = errors.New("store: unavailable")

// Store is the read interface over persisted game-account snapshots.
type Store interface {
	// --- Counts ---

	// CountPlayers returns the number of player snapshot rows.
	CountPlayers(ctx context.Context) (int, error)

	// CountGames returns the number of game rows.
	CountGames(ctx context.Context) (int, error)

	// --- Samples ---

	// RecentSnapshots returns up to limit snapshots, most recently updated first.
	RecentSnapshots(ctx context.Context, limit int) ([]model.PlayerSnapshot, error)

	// RecentFinishedGames returns up to limit finished games, newest first.
	RecentFinishedGames(ctx context.Context, limit int) ([]model.FinishedGame, error)

	// RecentActiveGames returns up to limit in-progress games, newest first.
	RecentActiveGames(ctx context.Context, limit int) ([]model.Game, error)

	// --- Per-entity reads ---

	// CountGameParticipants returns the number of distinct wallets with a
	// snapshot in the game.
	CountGameParticipants(ctx context.Context, gameID string) (int, error)

	// SnapshotsByWallet returns up to limit snapshots of one wallet, newest first.
	SnapshotsByWallet(ctx context.Context, wallet string, limit int) ([]model.PlayerSnapshot, error)

	// FinishedGamesByIDs returns the finished rows of the given games.
	FinishedGamesByIDs(ctx context.Context, gameIDs []string) ([]model.FinishedGame, error)

	// FinishedGamesWonBy returns finished games whose recorded winner is wallet.
	FinishedGamesWonBy(ctx context.Context, wallet string) ([]model.FinishedGame, error)

	// PopularGames returns in-progress games with at least minPlayers
	// participants, most participants first.
	PopularGames(ctx context.Context, minPlayers, limit int) ([]model.PopularGame, error)
}

// AggregateQuery parameterizes a store-side leaderboard aggregation.
type AggregateQuery struct {
	Since     *time.Time // nil = no window
	MinGames  int
	RankingBy model.RankingBy
	Limit     int
	Offset    int
}

// NativeAggregator is implemented by stores that can group and rank
// leaderboard rows themselves in a single query.
type NativeAggregator interface {
	// AggregateLeaderboard returns one page of ordered aggregates plus the
	// total number of wallets matching the query.
	AggregateLeaderboard(ctx context.Context, q AggregateQuery) ([]model.PlayerAggregate, int, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
