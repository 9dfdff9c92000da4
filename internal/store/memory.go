package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/ranking"
)

// MemoryStore implements Store and NativeAggregator with in-memory slices.
// Used for testing and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[snapshotKey]model.PlayerSnapshot
	finished  map[string]model.FinishedGame
	games     map[string]model.Game
}

type snapshotKey struct{ wallet, game string }

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[snapshotKey]model.PlayerSnapshot),
		finished:  make(map[string]model.FinishedGame),
		games:     make(map[string]model.Game),
	}
}

// --- Seeding (stands in for the ingestion pipeline) ---

// PutSnapshot upserts a snapshot keyed by (wallet, game).
func (s *MemoryStore) PutSnapshot(snap model.PlayerSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey{snap.Wallet, snap.GameID}] = snap
}

// PutFinishedGame upserts a finished-game row.
func (s *MemoryStore) PutFinishedGame(g model.FinishedGame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[g.GameID] = g
}

// PutGame upserts a game lifecycle row.
func (s *MemoryStore) PutGame(g model.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = g
}

// --- Store ---

func (s *MemoryStore) CountPlayers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots), nil
}

func (s *MemoryStore) CountGames(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games), nil
}

func (s *MemoryStore) RecentSnapshots(_ context.Context, limit int) ([]model.PlayerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PlayerSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	sortSnapshots(out)
	return truncate(out, limit), nil
}

func (s *MemoryStore) RecentFinishedGames(_ context.Context, limit int) ([]model.FinishedGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.FinishedGame, 0, len(s.finished))
	for _, g := range s.finished {
		out = append(out, g)
	}
	sortFinished(out)
	return truncate(out, limit), nil
}

func (s *MemoryStore) RecentActiveGames(_ context.Context, limit int) ([]model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Game
	for _, g := range s.games {
		if g.Status == model.GameStatusInProgress {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, limit), nil
}

func (s *MemoryStore) CountGameParticipants(_ context.Context, gameID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.participantsLocked(gameID), nil
}

func (s *MemoryStore) participantsLocked(gameID string) int {
	n := 0
	for k := range s.snapshots {
		if k.game == gameID {
			n++
		}
	}
	return n
}

func (s *MemoryStore) SnapshotsByWallet(_ context.Context, wallet string, limit int) ([]model.PlayerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PlayerSnapshot
	for k, snap := range s.snapshots {
		if k.wallet == wallet {
			out = append(out, snap)
		}
	}
	sortSnapshots(out)
	return truncate(out, limit), nil
}

func (s *MemoryStore) FinishedGamesByIDs(_ context.Context, gameIDs []string) ([]model.FinishedGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.FinishedGame
	for _, id := range gameIDs {
		if g, ok := s.finished[id]; ok {
			out = append(out, g)
		}
	}
	sortFinished(out)
	return out, nil
}

func (s *MemoryStore) FinishedGamesWonBy(_ context.Context, wallet string) ([]model.FinishedGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.FinishedGame
	for _, g := range s.finished {
		if g.Winner != nil && *g.Winner == wallet {
			out = append(out, g)
		}
	}
	sortFinished(out)
	return out, nil
}

func (s *MemoryStore) PopularGames(_ context.Context, minPlayers, limit int) ([]model.PopularGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.PopularGame
	for _, g := range s.games {
		if g.Status != model.GameStatusInProgress {
			continue
		}
		if n := s.participantsLocked(g.ID); n >= minPlayers {
			out = append(out, model.PopularGame{Game: g, Players: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Players != out[j].Players {
			return out[i].Players > out[j].Players
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return truncate(out, limit), nil
}

// --- NativeAggregator ---

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// AggregateLeaderboard mirrors the PostgreSQL query: snapshots grouped by
// wallet, finished games grouped by recorded winner, left-joined per wallet,
// filtered, ordered and paged.
func (s *MemoryStore) AggregateLeaderboard(_ context.Context, q AggregateQuery) ([]model.PlayerAggregate, int, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return nil, 0, fmt.Errorf("aggregate leaderboard: invalid page limit=%d offset=%d", q.Limit, q.Offset)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type playerStats struct {
		games      map[string]struct{}
		cashSum    float64
		cashMax    int64
		rows       int
		properties int
		last       model.PlayerSnapshot
	}
	type winStats struct {
		won       int
		claimed   decimal.Decimal
		unclaimed decimal.Decimal
	}

	// player_stats
	players := make(map[string]*playerStats)
	for k, snap := range s.snapshots {
		if q.Since != nil && snap.UpdatedAt.Before(*q.Since) {
			continue
		}
		ps, ok := players[k.wallet]
		if !ok {
			ps = &playerStats{games: make(map[string]struct{}), cashMax: snap.Cash, last: snap}
			players[k.wallet] = ps
		}
		ps.games[k.game] = struct{}{}
		ps.cashSum += float64(snap.Cash)
		ps.rows++
		ps.properties += snap.PropertyCount
		if snap.Cash > ps.cashMax {
			ps.cashMax = snap.Cash
		}
		if snap.UpdatedAt.After(ps.last.UpdatedAt) {
			ps.last = snap
		}
	}

	// win_stats and windowed finished games
	wins := make(map[string]*winStats)
	windowed := make(map[string]model.FinishedGame)
	for id, g := range s.finished {
		if q.Since != nil && g.CreatedAt.Before(*q.Since) {
			continue
		}
		windowed[id] = g
		if g.Winner == nil {
			continue
		}
		ws, ok := wins[*g.Winner]
		if !ok {
			ws = &winStats{}
			wins[*g.Winner] = ws
		}
		ws.won++
		if g.Claimed {
			ws.claimed = ws.claimed.Add(g.PrizePool)
		} else {
			ws.unclaimed = ws.unclaimed.Add(g.PrizePool)
		}
	}

	rows := make([]model.PlayerAggregate, 0, len(players))
	for wallet, ps := range players {
		played := len(ps.games)
		if played < q.MinGames {
			continue
		}
		agg := model.PlayerAggregate{
			WalletAddress:        wallet,
			TotalGamesPlayed:     played,
			AverageCashBalance:   model.Round2(ps.cashSum / float64(ps.rows)),
			HighestCashBalance:   float64(ps.cashMax),
			TotalPropertiesOwned: ps.properties,
			LastActiveDate:       ps.last.UpdatedAt,
			TotalEarnings:        decimal.Zero,
			UnclaimedEarnings:    decimal.Zero,
		}
		if ws, ok := wins[wallet]; ok {
			agg.TotalGamesWon = ws.won
			agg.TotalEarnings = model.ToDisplayUnits(ws.claimed)
			agg.UnclaimedEarnings = model.ToDisplayUnits(ws.unclaimed)
		}

		var minutes float64
		var n int
		for game := range ps.games {
			if d, ok := windowed[game].Duration(); ok {
				minutes += d
				n++
			}
		}
		if n > 0 {
			avg := model.Round2(minutes / float64(n))
			agg.AverageGameDuration = &avg
		}

		agg.TotalGamesLost = model.Lost(played, agg.TotalGamesWon)
		agg.WinRate = model.WinRate(agg.TotalGamesWon, played)
		agg.LeaderboardScore = model.Score(played, agg.TotalGamesWon)
		rows = append(rows, agg)
	}

	ranking.Sort(rows, q.RankingBy)
	total := len(rows)
	page := ranking.Page(rows, q.Offset, q.Limit)
	return append([]model.PlayerAggregate(nil), page...), total, nil
}

// --- helpers ---

func sortSnapshots(rows []model.PlayerSnapshot) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].UpdatedAt.Equal(rows[j].UpdatedAt) {
			return rows[i].UpdatedAt.After(rows[j].UpdatedAt)
		}
		if rows[i].Wallet != rows[j].Wallet {
			return rows[i].Wallet < rows[j].Wallet
		}
		return rows[i].GameID < rows[j].GameID
	})
}

func sortFinished(rows []model.FinishedGame) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].GameID < rows[j].GameID
	})
}

func truncate[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
