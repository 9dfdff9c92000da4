// Package api exposes the leaderboard engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/leaderboard"
	"github.com/WeShipHQ/panda-monopoly-sub000/internal/model"
)

// Engine is the subset of *leaderboard.Aggregator the handlers need.
type Engine interface {
	LeaderboardJSON(ctx context.Context, f model.Filters, p model.Pagination) ([]byte, error)
	QueryDefaults(ctx context.Context) model.DynamicConfig
	PlayerStats(ctx context.Context, wallet string) (*model.PlayerAggregate, error)
	TopGames(ctx context.Context, limit int) (*leaderboard.TopGames, error)
}

// Handler serves leaderboard and analytics endpoints.
type Handler struct {
	engine Engine
	logger *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(engine Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger}
}

// Routes mounts the handlers on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/leaderboard", h.Leaderboard)
	r.Get("/leaderboard/defaults", h.QueryDefaults)
	r.Get("/players/{wallet}/stats", h.PlayerStats)
	r.Get("/games/top", h.TopGames)
}

// Leaderboard handles GET /api/v1/leaderboard
//
// Query: timeRange, minGames, gameStatus, rankingBy, page, limit.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filters := model.Filters{
		TimeRange:  model.TimeRange(q.Get("timeRange")),
		GameStatus: q.Get("gameStatus"),
		RankingBy:  model.RankingBy(q.Get("rankingBy")),
	}
	if raw := q.Get("minGames"); raw != "" {
		n, err := cast.ToIntE(raw)
		if err != nil {
			writeError(w, "minGames must be an integer", http.StatusBadRequest)
			return
		}
		filters.MinGames = &n
	}

	var page model.Pagination
	var err error
	if page.Page, err = intParam(q.Get("page")); err != nil {
		writeError(w, "page must be an integer", http.StatusBadRequest)
		return
	}
	if page.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, "limit must be an integer", http.StatusBadRequest)
		return
	}

	payload, err := h.engine.LeaderboardJSON(r.Context(), filters, page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

// QueryDefaults handles GET /api/v1/leaderboard/defaults
func (h *Handler) QueryDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.QueryDefaults(r.Context()))
}

// PlayerStats handles GET /api/v1/players/{wallet}/stats
func (h *Handler) PlayerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.PlayerStats(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, stats)
}

// TopGames handles GET /api/v1/games/top
func (h *Handler) TopGames(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, "limit must be an integer", http.StatusBadRequest)
		return
	}
	top, err := h.engine.TopGames(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, top)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case leaderboard.IsValidation(err):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, leaderboard.ErrPlayerNotFound):
		writeError(w, "player not found", http.StatusNotFound)
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return cast.ToIntE(raw)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
