// Package ranking orders aggregated leaderboard rows and assigns ranks.
//
// Every mode sorts descending on its primary key, then walks a fixed list of
// numeric tie-breaks, and finally compares wallet addresses ascending so the
// order is total and identical across runs and aggregation paths.
package ranking

import (
	"sort"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
)

// key extracts one comparable value from a row.
type key func(a, b *model.PlayerAggregate) int

func desc(x, y float64) int {
	switch {
	case x > y:
		return -1
	case x < y:
		return 1
	}
	return 0
}

var (
	byWins     key = func(a, b *model.PlayerAggregate) int { return desc(float64(a.TotalGamesWon), float64(b.TotalGamesWon)) }
	byPlayed   key = func(a, b *model.PlayerAggregate) int { return desc(float64(a.TotalGamesPlayed), float64(b.TotalGamesPlayed)) }
	byWinRate  key = func(a, b *model.PlayerAggregate) int { return desc(a.WinRate, b.WinRate) }
	byScore    key = func(a, b *model.PlayerAggregate) int { return desc(a.LeaderboardScore, b.LeaderboardScore) }
	byEarnings key = func(a, b *model.PlayerAggregate) int { return -a.TotalEarnings.Cmp(b.TotalEarnings) }
)

// keys lists the numeric comparison chain per mode.
var keys = map[model.RankingBy][]key{
	model.RankingMostWins:        {byWins, byWinRate, byPlayed},
	model.RankingHighestEarnings: {byEarnings, byWinRate, byPlayed},
	model.RankingMostActive:      {byPlayed, byWinRate, byWins},
	model.RankingCombined:        {byScore, byWinRate, byPlayed},
}

// Valid reports whether mode is a known ranking mode.
func Valid(mode model.RankingBy) bool {
	_, ok := keys[mode]
	return ok
}

// Compare orders a before b (negative), after b (positive) or equal (zero)
// under mode. Unknown modes rank as RankingCombined.
func Compare(mode model.RankingBy, a, b *model.PlayerAggregate) int {
	chain, ok := keys[mode]
	if !ok {
		chain = keys[model.RankingCombined]
	}
	for _, k := range chain {
		if c := k(a, b); c != 0 {
			return c
		}
	}
	switch {
	case a.WalletAddress < b.WalletAddress:
		return -1
	case a.WalletAddress > b.WalletAddress:
		return 1
	}
	return 0
}

// Sort orders rows in place under mode.
func Sort(rows []model.PlayerAggregate, mode model.RankingBy) {
	sort.SliceStable(rows, func(i, j int) bool {
		return Compare(mode, &rows[i], &rows[j]) < 0
	})
}

// Page returns the rows in [offset, offset+limit), clamped to the slice.
func Page(rows []model.PlayerAggregate, offset, limit int) []model.PlayerAggregate {
	if offset >= len(rows) || limit <= 0 {
		return nil
	}
	if offset < 0 {
		offset = 0
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

// Assign ranks already-ordered rows starting at offset+1.
func Assign(rows []model.PlayerAggregate, offset int) []model.LeaderboardEntry {
	entries := make([]model.LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = model.LeaderboardEntry{PlayerAggregate: r, Rank: offset + i + 1}
	}
	return entries
}
