package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/housekeeper/internal/domain"
	"github.com/housekeeper/internal/queue"
	"github.com/housekeeper/internal/redis"
	"github.com/housekeeper/internal/websocket"
	"github.com/housekeeper/internal/worker"
)

type fakeUnits []worker.UnitStatus

func (f fakeUnits) Status() []worker.UnitStatus { return f }

type fakeScores map[int64]domain.Score

func (f fakeScores) GetScore(_ context.Context, id int64) (*domain.Score, error) {
	s, ok := f[id]
	if !ok {
		return nil, domain.ErrScoreNotFound
	}
	return &s, nil
}

type testEnv struct {
	router   http.Handler
	fresh    *queue.ChannelQueue
	suspects *queue.ChannelQueue
	boards   *redis.LeaderboardStore
	checks   map[string]Pinger
	public   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := &testEnv{
		fresh:    queue.NewChannelQueue("fresh", 4),
		suspects: queue.NewChannelQueue("suspect", 4),
		boards:   redis.NewLeaderboardStore(client, "bancho:"),
		checks:   map[string]Pinger{"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() }},
		public:   t.TempDir(),
	}

	pool := worker.NewPool(worker.AnalysisWorker, 2, 8, 0, logger)
	h := NewHandler(Deps{
		Units: fakeUnits{{Name: "ghost_reaper", Kind: worker.KindPeriodic, Passes: 3}},
		Pools: []PoolSource{pool},
		Scores: fakeScores{
			77: {ID: 77, Mode: domain.ModeRelaxOsu, Player: domain.Player{ID: 3, Name: "cookiezi"}},
			78: {ID: 78, Mode: domain.ModeVanillaMania, Player: domain.Player{ID: 3, Name: "cookiezi"}},
		},
		Fresh:        env.fresh,
		Suspects:     env.suspects,
		Leaderboards: env.boards,
		Hub:          websocket.NewHub(logger),
		Checks:       env.checks,
		PublicDir:    env.public,
	}, logger)
	env.router = h.Router()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var resp APIResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, _ = env.do(t, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.checks["postgres"] = func(context.Context) error { return errors.New("connection refused") }
	rec, resp = env.do(t, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
}

func TestAuditScoreQueuesSuspect(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/scores/77/audit")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, resp.Success)

	score, err := env.suspects.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(77), score.ID)
}

func TestAuditScoreErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/scores/abc/audit", http.StatusBadRequest},
		{"/api/v1/scores/0/audit", http.StatusBadRequest},
		{"/api/v1/scores/404/audit", http.StatusNotFound},
		{"/api/v1/scores/78/audit", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPost, tt.path)
			assert.Equal(t, tt.code, rec.Code)
			assert.False(t, resp.Success)
		})
	}

	env.suspects.Close()
	rec, resp := env.do(t, http.MethodPost, "/api/v1/scores/77/audit")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, domain.ErrQueueUnavailable.Error(), resp.Error)
}

func TestSanitizeScoreQueuesFresh(t *testing.T) {
	env := newTestEnv(t)

	// sanitization takes every mode, unlike audits
	rec, resp := env.do(t, http.MethodPost, "/api/v1/scores/78/sanitize")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, resp.Success)

	score, err := env.fresh.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(78), score.ID)
	assert.Zero(t, env.suspects.Len())

	rec, _ = env.do(t, http.MethodPost, "/api/v1/scores/404/sanitize")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.fresh.Close()
	rec, resp = env.do(t, http.MethodPost, "/api/v1/scores/77/sanitize")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, domain.ErrQueueUnavailable.Error(), resp.Error)
}

func TestUnitsAndPools(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/units")
	assert.Equal(t, http.StatusOK, rec.Code)
	units := resp.Data.([]interface{})
	require.Len(t, units, 1)
	assert.Equal(t, "ghost_reaper", units[0].(map[string]interface{})["name"])

	rec, resp = env.do(t, http.MethodGet, "/api/v1/pools")
	assert.Equal(t, http.StatusOK, rec.Code)
	pools := resp.Data.([]interface{})
	require.Len(t, pools, 1)
	assert.Equal(t, "analysis", pools[0].(map[string]interface{})["kind"])
}

func TestLeaderboardEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.boards.Upsert(ctx, domain.GlobalLeaderboardKey(domain.ModeRelaxOsu), 3, 812.5))
	require.NoError(t, env.boards.Upsert(ctx, domain.RegionLeaderboardKey(domain.ModeRelaxOsu, "kr"), 3, 812.5))

	rec, resp := env.do(t, http.MethodGet, "/api/v1/leaderboards/4/players/3")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 812.5, resp.Data.(map[string]interface{})["performance"])

	rec, _ = env.do(t, http.MethodGet, "/api/v1/leaderboards/4/players/3?region=KR")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/leaderboards/0/players/3")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServesFrameGraphs(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.public, "77_ft.png"), []byte("\x89PNG"), 0o644))

	rec, _ := env.do(t, http.MethodGet, "/static/framegraphs/77_ft.png")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\x89PNG", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
