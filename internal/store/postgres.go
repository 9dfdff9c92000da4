package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
)

// PostgresStore implements Store and NativeAggregator over the tables written
// by the ingestion pipeline:
//
//	player_snapshots(wallet, game_id, cash, property_count, updated_at)  PK (wallet, game_id)
//	finished_games(game_id, winner, prize_pool NUMERIC, claimed, created_at, started_at, ended_at)
//	games(id, status, created_at)
//
// Prize pools are NUMERIC and read as text into decimal for exact precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CountPlayers(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM player_snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountGames(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM games`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count games: %w", err)
	}
	return n, nil
}

const snapshotColumns = `wallet, game_id, cash, property_count, updated_at`

const finishedColumns = `game_id, winner, prize_pool::TEXT, claimed, created_at, started_at, ended_at`

func (s *PostgresStore) RecentSnapshots(ctx context.Context, limit int) ([]model.PlayerSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotColumns+`
		 FROM player_snapshots
		 ORDER BY updated_at DESC, wallet, game_id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func (s *PostgresStore) RecentFinishedGames(ctx context.Context, limit int) ([]model.FinishedGame, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+finishedColumns+`
		 FROM finished_games
		 ORDER BY created_at DESC, game_id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent finished games: %w", err)
	}
	defer rows.Close()

	return scanFinished(rows)
}

func (s *PostgresStore) RecentActiveGames(ctx context.Context, limit int) ([]model.Game, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, created_at
		 FROM games
		 WHERE status = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`, model.GameStatusInProgress, limit)
	if err != nil {
		return nil, fmt.Errorf("recent active games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		var g model.Game
		if err := rows.Scan(&g.ID, &g.Status, &g.CreatedAt); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (s *PostgresStore) CountGameParticipants(ctx context.Context, gameID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT wallet) FROM player_snapshots WHERE game_id = $1`, gameID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count participants of game %s: %w", gameID, err)
	}
	return n, nil
}

func (s *PostgresStore) SnapshotsByWallet(ctx context.Context, wallet string, limit int) ([]model.PlayerSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotColumns+`
		 FROM player_snapshots
		 WHERE wallet = $1
		 ORDER BY updated_at DESC, game_id
		 LIMIT $2`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshots of wallet %s: %w", wallet, err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func (s *PostgresStore) FinishedGamesByIDs(ctx context.Context, gameIDs []string) ([]model.FinishedGame, error) {
	if len(gameIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+finishedColumns+`
		 FROM finished_games
		 WHERE game_id = ANY($1)
		 ORDER BY created_at DESC, game_id`, gameIDs)
	if err != nil {
		return nil, fmt.Errorf("finished games by id: %w", err)
	}
	defer rows.Close()

	return scanFinished(rows)
}

func (s *PostgresStore) FinishedGamesWonBy(ctx context.Context, wallet string) ([]model.FinishedGame, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+finishedColumns+`
		 FROM finished_games
		 WHERE winner = $1
		 ORDER BY created_at DESC, game_id`, wallet)
	if err != nil {
		return nil, fmt.Errorf("finished games won by %s: %w", wallet, err)
	}
	defer rows.Close()

	return scanFinished(rows)
}

func (s *PostgresStore) PopularGames(ctx context.Context, minPlayers, limit int) ([]model.PopularGame, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT g.id, g.status, g.created_at, COUNT(DISTINCT ps.wallet) AS players
		 FROM games g
		 JOIN player_snapshots ps ON ps.game_id = g.id
		 WHERE g.status = $1
		 GROUP BY g.id, g.status, g.created_at
		 HAVING COUNT(DISTINCT ps.wallet) >= $2
		 ORDER BY players DESC, g.created_at DESC, g.id
		 LIMIT $3`, model.GameStatusInProgress, minPlayers, limit)
	if err != nil {
		return nil, fmt.Errorf("popular games: %w", err)
	}
	defer rows.Close()

	var games []model.PopularGame
	for rows.Next() {
		var g model.PopularGame
		if err := rows.Scan(&g.ID, &g.Status, &g.CreatedAt, &g.Players); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// AggregateLeaderboard runs the composed leaderboard query. The total is taken
// from COUNT(*) OVER() on the page; a page past the end falls back to a plain
// count of the matching set.
func (s *PostgresStore) AggregateLeaderboard(ctx context.Context, q AggregateQuery) ([]model.PlayerAggregate, int, error) {
	sql, args := BuildLeaderboardQuery(q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("aggregate leaderboard: %w", err)
	}
	defer rows.Close()

	var (
		out   []model.PlayerAggregate
		total int
	)
	for rows.Next() {
		var (
			a                   model.PlayerAggregate
			earnings, unclaimed string
			avgDuration         *float64
		)
		if err := rows.Scan(
			&a.WalletAddress, &a.TotalGamesPlayed, &a.TotalGamesWon,
			&a.AverageCashBalance, &a.HighestCashBalance, &a.TotalPropertiesOwned,
			&a.LastActiveDate, &avgDuration,
			&earnings, &unclaimed,
			&a.WinRate, &a.LeaderboardScore, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("aggregate leaderboard scan: %w", err)
		}
		claimedBase, _ := decimal.NewFromString(earnings)
		unclaimedBase, _ := decimal.NewFromString(unclaimed)
		a.TotalEarnings = model.ToDisplayUnits(claimedBase)
		a.UnclaimedEarnings = model.ToDisplayUnits(unclaimedBase)
		a.AverageCashBalance = model.Round2(a.AverageCashBalance)
		if avgDuration != nil {
			d := model.Round2(*avgDuration)
			a.AverageGameDuration = &d
		}
		a.TotalGamesLost = model.Lost(a.TotalGamesPlayed, a.TotalGamesWon)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("aggregate leaderboard rows: %w", err)
	}

	if len(out) == 0 && q.Offset > 0 {
		countSQL, countArgs := BuildLeaderboardCountQuery(q)
		if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("aggregate leaderboard count: %w", err)
		}
	}
	return out, total, nil
}

// leaderboardCTE groups snapshots by wallet ($1 window), finished games by
// recorded winner ($1 window), joins durations of finished games the wallet
// played, and filters by $2 minimum games.
const leaderboardCTE = `
WITH windowed_snapshots AS (
	SELECT wallet, game_id, cash, property_count, updated_at
	FROM player_snapshots
	WHERE $1::TIMESTAMPTZ IS NULL OR updated_at >= $1
),
windowed_games AS (
	SELECT game_id, winner, prize_pool, claimed, started_at, ended_at
	FROM finished_games
	WHERE $1::TIMESTAMPTZ IS NULL OR created_at >= $1
),
player_stats AS (
	SELECT wallet,
	       COUNT(DISTINCT game_id)  AS games_played,
	       AVG(cash)::FLOAT8        AS avg_cash,
	       MAX(cash)::FLOAT8        AS max_cash,
	       SUM(property_count)::INT AS properties,
	       MAX(updated_at)          AS last_active
	FROM windowed_snapshots
	GROUP BY wallet
),
win_stats AS (
	SELECT winner AS wallet,
	       COUNT(*) AS games_won,
	       COALESCE(SUM(prize_pool) FILTER (WHERE claimed), 0)     AS claimed_prize,
	       COALESCE(SUM(prize_pool) FILTER (WHERE NOT claimed), 0) AS unclaimed_prize
	FROM windowed_games
	WHERE winner IS NOT NULL
	GROUP BY winner
),
durations AS (
	SELECT p.wallet,
	       AVG(EXTRACT(EPOCH FROM (g.ended_at - g.started_at)) / 60.0)::FLOAT8 AS avg_minutes
	FROM (SELECT DISTINCT wallet, game_id FROM windowed_snapshots) p
	JOIN windowed_games g ON g.game_id = p.game_id
	WHERE g.started_at IS NOT NULL AND g.ended_at IS NOT NULL AND g.ended_at >= g.started_at
	GROUP BY p.wallet
),
combined AS (
	SELECT p.wallet,
	       p.games_played::INT                 AS games_played,
	       COALESCE(w.games_won, 0)::INT       AS games_won,
	       p.avg_cash,
	       p.max_cash,
	       p.properties,
	       p.last_active,
	       d.avg_minutes,
	       COALESCE(w.claimed_prize, 0)::TEXT   AS claimed_prize,
	       COALESCE(w.unclaimed_prize, 0)::TEXT AS unclaimed_prize,
	       ROUND(COALESCE(w.games_won, 0) * 100.0 / NULLIF(p.games_played, 0), 2)::FLOAT8 AS win_rate,
	       ROUND(0.6 * p.games_played + 0.4 * COALESCE(w.games_won, 0), 2)::FLOAT8        AS score,
	       ROUND(COALESCE(w.claimed_prize, 0) / 1000000000.0, 4) AS claimed_sort
	FROM player_stats p
	LEFT JOIN win_stats w ON w.wallet = p.wallet
	LEFT JOIN durations d ON d.wallet = p.wallet
	WHERE p.games_played >= $2
)`

// orderBy mirrors ranking.Compare for every mode: numeric keys descending,
// wallet ascending last. COLLATE "C" keeps the wallet order bytewise like Go.
var orderBy = map[model.RankingBy]string{
	model.RankingMostWins:        `games_won DESC, win_rate DESC, games_played DESC, wallet COLLATE "C" ASC`,
	model.RankingHighestEarnings: `claimed_sort DESC, win_rate DESC, games_played DESC, wallet COLLATE "C" ASC`,
	model.RankingMostActive:      `games_played DESC, win_rate DESC, games_won DESC, wallet COLLATE "C" ASC`,
	model.RankingCombined:        `score DESC, win_rate DESC, games_played DESC, wallet COLLATE "C" ASC`,
}

// OrderByClause returns the ORDER BY expression for mode; unknown modes rank
// as combined.
func OrderByClause(mode model.RankingBy) string {
	if clause, ok := orderBy[mode]; ok {
		return clause
	}
	return orderBy[model.RankingCombined]
}

// BuildLeaderboardQuery composes the single leaderboard statement and its
// arguments ($1 since, $2 min games, $3 limit, $4 offset).
func BuildLeaderboardQuery(q AggregateQuery) (string, []any) {
	sql := leaderboardCTE + `
SELECT wallet, games_played, games_won, avg_cash, max_cash, properties,
       last_active, avg_minutes, claimed_prize, unclaimed_prize,
       COALESCE(win_rate, 0), score, COUNT(*) OVER() AS total
FROM combined
ORDER BY ` + OrderByClause(q.RankingBy) + `
LIMIT $3 OFFSET $4`
	return sql, []any{sinceArg(q.Since), q.MinGames, q.Limit, q.Offset}
}

// BuildLeaderboardCountQuery counts the wallets matching q.
func BuildLeaderboardCountQuery(q AggregateQuery) (string, []any) {
	return leaderboardCTE + `
SELECT COUNT(*) FROM combined`, []any{sinceArg(q.Since), q.MinGames}
}

func sinceArg(since *time.Time) any {
	if since == nil {
		return nil
	}
	return *since
}

func scanSnapshots(rows pgx.Rows) ([]model.PlayerSnapshot, error) {
	var snaps []model.PlayerSnapshot
	for rows.Next() {
		var p model.PlayerSnapshot
		if err := rows.Scan(&p.Wallet, &p.GameID, &p.Cash, &p.PropertyCount, &p.UpdatedAt); err != nil {
			return nil, err
		}
		snaps = append(snaps, p)
	}
	return snaps, rows.Err()
}

func scanFinished(rows pgx.Rows) ([]model.FinishedGame, error) {
	var games []model.FinishedGame
	for rows.Next() {
		var g model.FinishedGame
		var prize string
		if err := rows.Scan(&g.GameID, &g.Winner, &prize, &g.Claimed,
			&g.CreatedAt, &g.StartedAt, &g.EndedAt); err != nil {
			return nil, err
		}
		g.PrizePool, _ = decimal.NewFromString(prize)
		games = append(games, g)
	}
	return games, rows.Err()
}
