package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/metrics"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/store"
)

const (
	// SnapshotSampleLimit caps the snapshots pulled by the fallback path.
	SnapshotSampleLimit = 2000
	// FinishedGameSampleLimit caps the finished games pulled by the fallback path.
	FinishedGameSampleLimit = 5000
)

// ThresholdSource supplies the dynamic win cash threshold.
type ThresholdSource interface {
	WinThreshold(ctx context.Context) float64
}

// Fallback aggregates in process from bounded samples of raw rows.
type Fallback struct {
	store     store.Store
	threshold ThresholdSource
	pool      pond.Pool
	logger    *zap.Logger
}

// NewFallback creates the in-process strategy. Independent reads run
// concurrently on pool.
func NewFallback(st store.Store, threshold ThresholdSource, pool pond.Pool, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{store: st, threshold: threshold, pool: pool, logger: logger}
}

func (f *Fallback) Name() string { return "fallback" }

func (f *Fallback) Aggregate(ctx context.Context, q Query) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.AggregationDuration.WithLabelValues(f.Name()).Observe(time.Since(start).Seconds())
	}()

	var (
		snaps     []model.PlayerSnapshot
		games     []model.FinishedGame
		threshold float64
		snapsErr  error
		gamesErr  error
	)

	group := f.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	group.Submit(func() {
		snaps, snapsErr = f.store.RecentSnapshots(groupCtx, SnapshotSampleLimit)
	})
	group.Submit(func() {
		games, gamesErr = f.store.RecentFinishedGames(groupCtx, FinishedGameSampleLimit)
	})
	group.Submit(func() {
		threshold = f.threshold.WinThreshold(groupCtx)
	})
	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		return Result{}, err
	}
	if snapsErr != nil {
		return Result{}, fmt.Errorf("fallback snapshots: %w", snapsErr)
	}
	if gamesErr != nil {
		return Result{}, fmt.Errorf("fallback finished games: %w", gamesErr)
	}

	snaps, games = Window(snaps, games, q.Since)
	all := Build(snaps, games, threshold)

	rows := all[:0]
	for _, a := range all {
		if a.TotalGamesPlayed >= q.MinGames {
			rows = append(rows, a)
		}
	}
	f.logger.Debug("fallback aggregation",
		zap.Int("snapshots", len(snaps)),
		zap.Int("finished_games", len(games)),
		zap.Float64("win_threshold", threshold),
		zap.Int("wallets", len(rows)),
	)
	return Result{Rows: rows, Total: len(rows), Source: f.Name()}, nil
}

// Window drops snapshots updated, and finished games created, before since.
func Window(snaps []model.PlayerSnapshot, games []model.FinishedGame, since *time.Time) ([]model.PlayerSnapshot, []model.FinishedGame) {
	if since == nil {
		return snaps, games
	}
	keptSnaps := make([]model.PlayerSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if !s.UpdatedAt.Before(*since) {
			keptSnaps = append(keptSnaps, s)
		}
	}
	keptGames := make([]model.FinishedGame, 0, len(games))
	for _, g := range games {
		if !g.CreatedAt.Before(*since) {
			keptGames = append(keptGames, g)
		}
	}
	return keptSnaps, keptGames
}

type walletStats struct {
	games      map[string]struct{}
	cashSum    float64
	cashMax    int64
	rows       int
	properties int
	lastActive time.Time
	won        int
	claimed    decimal.Decimal
	unclaimed  decimal.Decimal
}

type gameLeader struct {
	wallet string
	cash   int64
	tied   bool
}

// Build aggregates already-windowed rows per wallet. A finished game counts as
// won by its recorded winner. Only when no winner was recorded does the wallet
// holding the strictly highest snapshot cash in that game win it, and only if
// that cash exceeds threshold. Prize pools are attributed to recorded winners
// only. Wallets without snapshots are not listed.
func Build(snaps []model.PlayerSnapshot, games []model.FinishedGame, threshold float64) []model.PlayerAggregate {
	stats := make(map[string]*walletStats)
	leaders := make(map[string]*gameLeader)
	order := make([]string, 0)

	for _, s := range snaps {
		ws, ok := stats[s.Wallet]
		if !ok {
			ws = &walletStats{games: make(map[string]struct{}), cashMax: s.Cash, lastActive: s.UpdatedAt}
			stats[s.Wallet] = ws
			order = append(order, s.Wallet)
		}
		ws.games[s.GameID] = struct{}{}
		ws.cashSum += float64(s.Cash)
		ws.rows++
		ws.properties += s.PropertyCount
		if s.Cash > ws.cashMax {
			ws.cashMax = s.Cash
		}
		if s.UpdatedAt.After(ws.lastActive) {
			ws.lastActive = s.UpdatedAt
		}

		l, ok := leaders[s.GameID]
		switch {
		case !ok:
			leaders[s.GameID] = &gameLeader{wallet: s.Wallet, cash: s.Cash}
		case s.Cash > l.cash:
			l.wallet, l.cash, l.tied = s.Wallet, s.Cash, false
		case s.Cash == l.cash && s.Wallet != l.wallet:
			l.tied = true
		}
	}

	finished := make(map[string]model.FinishedGame, len(games))
	for _, g := range games {
		finished[g.GameID] = g
		if g.Winner != nil {
			if ws, ok := stats[*g.Winner]; ok {
				ws.won++
				if g.Claimed {
					ws.claimed = ws.claimed.Add(g.PrizePool)
				} else {
					ws.unclaimed = ws.unclaimed.Add(g.PrizePool)
				}
			}
			continue
		}
		l, ok := leaders[g.GameID]
		if ok && !l.tied && float64(l.cash) > threshold {
			stats[l.wallet].won++
		}
	}

	out := make([]model.PlayerAggregate, 0, len(stats))
	for _, wallet := range order {
		ws := stats[wallet]
		played := len(ws.games)
		a := model.PlayerAggregate{
			WalletAddress:        wallet,
			TotalGamesPlayed:     played,
			TotalGamesWon:        ws.won,
			TotalGamesLost:       model.Lost(played, ws.won),
			WinRate:              model.WinRate(ws.won, played),
			AverageCashBalance:   model.Round2(ws.cashSum / float64(ws.rows)),
			HighestCashBalance:   float64(ws.cashMax),
			TotalPropertiesOwned: ws.properties,
			LastActiveDate:       ws.lastActive,
			LeaderboardScore:     model.Score(played, ws.won),
			TotalEarnings:        model.ToDisplayUnits(ws.claimed),
			UnclaimedEarnings:    model.ToDisplayUnits(ws.unclaimed),
		}

		var minutes float64
		var n int
		for game := range ws.games {
			if d, ok := finished[game].Duration(); ok {
				minutes += d
				n++
			}
		}
		if n > 0 {
			avg := model.Round2(minutes / float64(n))
			a.AverageGameDuration = &avg
		}
		out = append(out, a)
	}
	return out
}
