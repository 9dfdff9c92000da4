package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/metrics"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/store"
)

const (
	activeGameSample   = 100
	participantSample  = 20
	minPlayersPerGame  = 6
	minPopularity      = 2
	popularityFraction = 0.6
)

// FallbackGameLimits is served when active games cannot be sampled.
var FallbackGameLimits = model.GameLimits{
	MaxPlayersPerGame:       6,
	PopularityThreshold:     2,
	AvgPlayersPerActiveGame: 3,
}

// GameLimitsEstimator derives per-game player caps and the popularity
// threshold from recent in-progress games. Not cached: only the top-games
// view calls it.
type GameLimitsEstimator struct {
	store  store.Store
	pool   pond.Pool
	logger *zap.Logger
}

// NewGameLimitsEstimator creates a GameLimitsEstimator. Participant counts
// run on pool, which bounds fan-out against the store.
func NewGameLimitsEstimator(st store.Store, pool pond.Pool, logger *zap.Logger) *GameLimitsEstimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GameLimitsEstimator{store: st, pool: pool, logger: logger}
}

// Estimate returns the current game limits, or FallbackGameLimits on failure.
func (e *GameLimitsEstimator) Estimate(ctx context.Context) model.GameLimits {
	limits, err := e.estimate(ctx)
	if err != nil {
		e.logger.Warn("game limits estimation failed, using fallback", zap.Error(err))
		metrics.EstimatorFallbacks.WithLabelValues("game_limits").Inc()
		return FallbackGameLimits
	}
	return limits
}

func (e *GameLimitsEstimator) estimate(ctx context.Context) (model.GameLimits, error) {
	games, err := e.store.RecentActiveGames(ctx, activeGameSample)
	if err != nil {
		return model.GameLimits{}, err
	}
	if len(games) == 0 {
		return model.GameLimits{}, errors.New("estimator: no active games to sample")
	}
	if len(games) > participantSample {
		games = games[:participantSample]
	}

	counts := make([]int, len(games))
	errs := make([]error, len(games))
	group := e.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, g := range games {
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				errs[i] = err
				return
			}
			counts[i], errs[i] = e.store.CountGameParticipants(groupCtx, g.ID)
		})
	}
	if err := group.Wait(); err != nil {
		return model.GameLimits{}, err
	}
	for i, err := range errs {
		if err != nil {
			return model.GameLimits{}, fmt.Errorf("participants of game %s: %w", games[i].ID, err)
		}
	}
	return DeriveGameLimits(counts), nil
}

// DeriveGameLimits maps observed participant counts to game limits.
func DeriveGameLimits(counts []int) model.GameLimits {
	if len(counts) == 0 {
		return FallbackGameLimits
	}
	sum, observedMax := 0, 0
	for _, c := range counts {
		sum += c
		if c > observedMax {
			observedMax = c
		}
	}
	avg := float64(sum) / float64(len(counts))

	maxPlayers := int(math.Max(math.Ceil(avg), float64(observedMax+1)))
	if maxPlayers < minPlayersPerGame {
		maxPlayers = minPlayersPerGame
	}
	popularity := int(math.Floor(avg * popularityFraction))
	if popularity < minPopularity {
		popularity = minPopularity
	}
	return model.GameLimits{
		MaxPlayersPerGame:       maxPlayers,
		PopularityThreshold:     popularity,
		AvgPlayersPerActiveGame: model.Round2(avg),
	}
}
