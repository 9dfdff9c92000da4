package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// TimeRange selects the aggregation window.
type TimeRange string

const (
	TimeRangeDay   TimeRange = "day"
	TimeRangeWeek  TimeRange = "week"
	TimeRangeMonth TimeRange = "month"
	TimeRangeAll   TimeRange = "all"
)

// Cutoff returns the lower bound of the window relative to now, or nil for
// TimeRangeAll and unknown values.
func (r TimeRange) Cutoff(now time.Time) *time.Time {
	var days int
	switch r {
	case TimeRangeDay:
		days = 1
	case TimeRangeWeek:
		days = 7
	case TimeRangeMonth:
		days = 30
	default:
		return nil
	}
	t := now.Add(-time.Duration(days) * 24 * time.Hour)
	return &t
}

// RankingBy selects the primary sort key of a leaderboard.
type RankingBy string

const (
	RankingMostWins        RankingBy = "mostWins"
	RankingHighestEarnings RankingBy = "highestEarnings"
	RankingMostActive      RankingBy = "mostActive"
	RankingCombined        RankingBy = "combined"
)

// Filters narrows a leaderboard request. Zero values mean "use the default".
type Filters struct {
	TimeRange  TimeRange `json:"timeRange,omitempty" validate:"omitempty,oneof=day week month all"`
	MinGames   *int      `json:"minGames,omitempty" validate:"omitempty,min=0"`
	GameStatus string    `json:"gameStatus,omitempty" validate:"omitempty,max=32"`
	RankingBy  RankingBy `json:"rankingBy,omitempty" validate:"omitempty,oneof=mostWins highestEarnings mostActive combined"`
}

// Pagination selects a 1-based page.
type Pagination struct {
	Page  int `json:"page,omitempty" validate:"min=0"`
	Limit int `json:"limit,omitempty" validate:"min=0"`
}

// Offset returns the zero-based index of the first row on the page.
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Scoring and unit constants.
const (
	PlayedWeight = 0.6
	WonWeight    = 0.4

	// LamportsPerUnit converts native token base units to display units.
	LamportsPerUnit = 1_000_000_000
	DisplayDecimals = 4
)

// ToDisplayUnits converts a base-unit amount into display units rounded to
// DisplayDecimals places.
func ToDisplayUnits(base decimal.Decimal) decimal.Decimal {
	return base.Div(decimal.NewFromInt(LamportsPerUnit)).Round(DisplayDecimals)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// WinRate returns won/played as a 0-100 percentage with 2dp, 0 when played is 0.
func WinRate(won, played int) float64 {
	if played <= 0 {
		return 0
	}
	return Round2(float64(won) / float64(played) * 100)
}

// Score returns the weighted leaderboard score with 2dp.
func Score(played, won int) float64 {
	return Round2(PlayedWeight*float64(played) + WonWeight*float64(won))
}

// Lost returns max(played-won, 0).
func Lost(played, won int) int {
	if played > won {
		return played - won
	}
	return 0
}
