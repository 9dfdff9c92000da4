package store_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/store"
)

func TestOrderByClause(t *testing.T) {
	tests := []struct {
		mode    model.RankingBy
		primary string
	}{
		{model.RankingMostWins, "games_won DESC"},
		{model.RankingHighestEarnings, "claimed_sort DESC"},
		{model.RankingMostActive, "games_played DESC"},
		{model.RankingCombined, "score DESC"},
		{"unknown", "score DESC"},
	}
	for _, tt := range tests {
		clause := store.OrderByClause(tt.mode)
		assert.True(t, strings.HasPrefix(clause, tt.primary), "%s: %s", tt.mode, clause)
		assert.True(t, strings.HasSuffix(clause, `wallet COLLATE "C" ASC`), "%s: %s", tt.mode, clause)
	}
}

func TestBuildLeaderboardQuery(t *testing.T) {
	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	sql, args := store.BuildLeaderboardQuery(store.AggregateQuery{
		Since:     &since,
		MinGames:  2,
		RankingBy: model.RankingMostWins,
		Limit:     10,
		Offset:    20,
	})

	assert.Contains(t, sql, "COUNT(*) OVER()")
	assert.Contains(t, sql, "ORDER BY games_won DESC")
	assert.Contains(t, sql, "LIMIT $3 OFFSET $4")
	require.Len(t, args, 4)
	assert.Equal(t, since, args[0])
	assert.Equal(t, 2, args[1])
	assert.Equal(t, 10, args[2])
	assert.Equal(t, 20, args[3])
}

func TestBuildLeaderboardQuery_AllTime(t *testing.T) {
	_, args := store.BuildLeaderboardQuery(store.AggregateQuery{RankingBy: model.RankingCombined, Limit: 10})
	assert.Nil(t, args[0])

	sql, countArgs := store.BuildLeaderboardCountQuery(store.AggregateQuery{MinGames: 1})
	assert.Contains(t, sql, "SELECT COUNT(*) FROM combined")
	assert.NotContains(t, sql, "LIMIT")
	assert.Len(t, countArgs, 2)
}
