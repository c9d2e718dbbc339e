package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/websocket"
	"github.com/housekeeper/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnitSource reports scheduled unit status
type UnitSource interface {
	Status() []worker.UnitStatus
}

// PoolSource reports worker pool load
type PoolSource interface {
	Stats() worker.PoolStats
}

// ScoreLoader loads a score with its owner and beatmap
type ScoreLoader interface {
	GetScore(ctx context.Context, id int64) (*domain.Score, error)
}

// ScoreEnqueuer accepts scores for a pipeline
type ScoreEnqueuer interface {
	Enqueue(ctx context.Context, score domain.Score) error
}

// LeaderboardReader looks up ranking entries
type LeaderboardReader interface {
	Get(ctx context.Context, key string, userID int64) (*domain.LeaderboardEntry, error)
}

// Pinger checks a dependency is reachable
type Pinger func(ctx context.Context) error

// Deps are the collaborators the admin API reads from
type Deps struct {
	Units        UnitSource
	Pools        []PoolSource
	Scores       ScoreLoader
	Fresh        ScoreEnqueuer
	Suspects     ScoreEnqueuer
	Leaderboards LeaderboardReader
	Hub          *websocket.Hub
	Checks       map[string]Pinger
	PublicDir    string
}

// Handler provides the admin HTTP API
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	return &Handler{
		deps:   deps,
		logger: logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/ws", h.HandleWebSocket)

	if h.deps.PublicDir != "" {
		fs := http.StripPrefix("/static/framegraphs/", http.FileServer(http.Dir(h.deps.PublicDir)))
		r.Get("/static/framegraphs/*", fs.ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/units", h.ListUnits)
		r.Get("/pools", h.ListPools)
		r.Get("/operators", h.GetOperatorStats)
		r.Post("/scores/{scoreID}/audit", h.AuditScore)
		r.Post("/scores/{scoreID}/sanitize", h.SanitizeScore)
		r.Get("/leaderboards/{mode}/players/{userID}", h.GetLeaderboardEntry)
	})

	return r
}

// requestLogger logs each request through slog
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HandleWebSocket upgrades a staff console onto the operator hub
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.deps.Hub, h.logger, w, r)
}

// GetOperatorStats returns operator console connection counts
func (h *Handler) GetOperatorStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.deps.Hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck pings every dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.deps.Checks))
	ready := true
	for name, ping := range h.deps.Checks {
		if err := ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			status[name] = err.Error()
			ready = false
			continue
		}
		status[name] = "ok"
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{Success: false, Data: status, Error: "not ready"})
		return
	}
	h.writeSuccess(w, status)
}

// ListUnits returns scheduler unit status
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.deps.Units.Status())
}

// ListPools returns worker pool load
func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	stats := make([]worker.PoolStats, 0, len(h.deps.Pools))
	for _, p := range h.deps.Pools {
		stats = append(stats, p.Stats())
	}
	h.writeSuccess(w, stats)
}

// AuditScore queues a stored score for replay analysis
func (h *Handler) AuditScore(w http.ResponseWriter, r *http.Request) {
	score, ok := h.loadScore(w, r)
	if !ok {
		return
	}

	if !score.Mode.Analyzable() {
		h.writeError(w, http.StatusUnprocessableEntity, domain.ErrUnsupportedMode)
		return
	}

	h.enqueue(w, r, h.deps.Suspects, score, "audit")
}

// SanitizeScore queues a stored score for checksum sanitization
func (h *Handler) SanitizeScore(w http.ResponseWriter, r *http.Request) {
	score, ok := h.loadScore(w, r)
	if !ok {
		return
	}

	h.enqueue(w, r, h.deps.Fresh, score, "sanitization")
}

func (h *Handler) loadScore(w http.ResponseWriter, r *http.Request) (*domain.Score, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "scoreID"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return nil, false
	}

	score, err := h.deps.Scores.GetScore(r.Context(), id)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return nil, false
		}
		h.logger.Error("failed to load score", "score_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return nil, false
	}
	return score, true
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, sink ScoreEnqueuer, score *domain.Score, stage string) {
	if sink == nil {
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrQueueUnavailable)
		return
	}

	if err := sink.Enqueue(r.Context(), *score); err != nil {
		if errors.Is(err, domain.ErrQueueClosed) {
			h.writeError(w, http.StatusServiceUnavailable, domain.ErrQueueUnavailable)
			return
		}
		h.logger.Error("failed to enqueue score", "stage", stage, "score_id", score.ID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.logger.Info("score queued", "stage", stage, "score_id", score.ID, "player", score.Player.String())
	h.writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data:    map[string]interface{}{"status": "queued", "stage": stage, "score_id": score.ID},
	})
}

// GetLeaderboardEntry returns a player's ranking value, optionally regional
func (h *Handler) GetLeaderboardEntry(w http.ResponseWriter, r *http.Request) {
	mode, err := strconv.Atoi(chi.URLParam(r, "mode"))
	if err != nil || mode < 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	key := domain.GlobalLeaderboardKey(domain.GameMode(mode))
	if region := strings.ToLower(r.URL.Query().Get("region")); region != "" {
		key = domain.RegionLeaderboardKey(domain.GameMode(mode), region)
	}

	entry, err := h.deps.Leaderboards.Get(r.Context(), key, userID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get leaderboard entry", "key", key, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, entry)
}
