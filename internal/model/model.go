// Package model defines the core domain types shared across the leaderboard engine.
// Prize pools and earnings use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlayerSnapshot is one observation of a player inside one game, written by
// the ingestion pipeline. Keyed by (wallet, game). Read-only to this engine.
type PlayerSnapshot struct {
	Wallet        string    `json:"wallet" db:"wallet"`
	GameID        string    `json:"game_id" db:"game_id"`
	Cash          int64     `json:"cash" db:"cash"`
	PropertyCount int       `json:"property_count" db:"property_count"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// FinishedGame summarizes a completed game. Winner is nil when the ingestion
// pipeline did not record one.
type FinishedGame struct {
	GameID    string          `json:"game_id" db:"game_id"`
	Winner    *string         `json:"winner,omitempty" db:"winner"`
	PrizePool decimal.Decimal `json:"prize_pool" db:"prize_pool"` // base units
	Claimed   bool            `json:"claimed" db:"claimed"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	StartedAt *time.Time      `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
}

// Duration returns the game length in minutes, or false when either
// timestamp is missing or the interval is negative.
func (g FinishedGame) Duration() (float64, bool) {
	if g.StartedAt == nil || g.EndedAt == nil {
		return 0, false
	}
	d := g.EndedAt.Sub(*g.StartedAt)
	if d < 0 {
		return 0, false
	}
	return d.Minutes(), true
}

// Game statuses as written by ingestion.
const (
	GameStatusWaiting    = "waiting"
	GameStatusInProgress = "in_progress"
	GameStatusFinished   = "finished"
)

// Game is the lifecycle row of a single game account.
type Game struct {
	ID        string    `json:"id" db:"id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PopularGame is an in-progress game with its distinct participant count.
type PopularGame struct {
	Game
	Players int `json:"players"`
}

// PlayerAggregate is the per-wallet leaderboard row, recomputed per request.
type PlayerAggregate struct {
	WalletAddress        string          `json:"walletAddress"`
	TotalGamesPlayed     int             `json:"totalGamesPlayed"`
	TotalGamesWon        int             `json:"totalGamesWon"`
	TotalGamesLost       int             `json:"totalGamesLost"`
	WinRate              float64         `json:"winRate"` // 0-100, 2dp
	AverageCashBalance   float64         `json:"averageCashBalance"`
	HighestCashBalance   float64         `json:"highestCashBalance"`
	TotalPropertiesOwned int             `json:"totalPropertiesOwned"`
	AverageGameDuration  *float64        `json:"averageGameDuration,omitempty"` // minutes
	LastActiveDate       time.Time       `json:"lastActiveDate"`
	LeaderboardScore     float64         `json:"leaderboardScore"`
	TotalEarnings        decimal.Decimal `json:"totalEarnings"`     // display units, 4dp
	UnclaimedEarnings    decimal.Decimal `json:"unclaimedEarnings"` // display units, 4dp
}

// LeaderboardEntry is a ranked PlayerAggregate.
type LeaderboardEntry struct {
	PlayerAggregate
	Rank int `json:"rank"`
}

// PaginatedResult is the outbound page of leaderboard entries.
type PaginatedResult struct {
	Data  []LeaderboardEntry `json:"data"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// DynamicConfig holds query limits derived from the live dataset.
type DynamicConfig struct {
	DefaultPageSize        int `json:"defaultPageSize"`
	MaxQueryLimit          int `json:"maxQueryLimit"`
	MinGamesThreshold      int `json:"minGamesThreshold"`
	PlayerStatesQueryLimit int `json:"playerStatesQueryLimit"`
}

// GameLimits holds per-game caps estimated from recent active games.
type GameLimits struct {
	MaxPlayersPerGame       int     `json:"maxPlayersPerGame"`
	PopularityThreshold     int     `json:"popularityThreshold"`
	AvgPlayersPerActiveGame float64 `json:"avgPlayersPerActiveGame"`
}
