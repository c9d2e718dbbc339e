package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/housekeeper/internal/config"
	"github.com/housekeeper/internal/domain"
)

// maxGraphSize caps the frame-time graph download
const maxGraphSize = 8 << 20

// Client talks to the replay analysis service. The service owns every
// detection algorithm; this side only ships replays and reads verdict inputs.
type Client struct {
	baseURL  string
	http     *http.Client
	maxGraph int64
	logger   *slog.Logger
}

// NewClient creates an analysis client from configuration
func NewClient(cfg *config.AnalysisConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		http:     &http.Client{Timeout: cfg.Timeout},
		maxGraph: maxGraphSize,
		logger:   logger,
	}
}

type decodeResponse struct {
	ReplayID string `json:"replay_id"`
}

type valueResponse struct {
	Value float64 `json:"value"`
}

type valuesResponse struct {
	Values []float64 `json:"values"`
}

type snapsResponse struct {
	Snaps []domain.Snap `json:"snaps"`
}

// Decode uploads raw replay bytes and returns the handle later calls use
func (c *Client) Decode(ctx context.Context, scoreID int64, raw []byte) (*domain.Replay, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/replays", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("building decode request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Score-ID", strconv.FormatInt(scoreID, 10))

	var out decodeResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, fmt.Errorf("decoding replay: %w", err)
	}
	if out.ReplayID == "" {
		return nil, fmt.Errorf("decoding replay: empty replay id")
	}
	return &domain.Replay{ID: out.ReplayID, ScoreID: scoreID}, nil
}

// UnstableRate returns the hit-timing unstable rate of the replay
func (c *Client) UnstableRate(ctx context.Context, replay *domain.Replay) (float64, error) {
	var out valueResponse
	if err := c.get(ctx, replay, "ur", nil, &out); err != nil {
		return 0, fmt.Errorf("unstable rate: %w", err)
	}
	return out.Value, nil
}

// MeanFrameTime returns the mean frame time of the replay in milliseconds
func (c *Client) MeanFrameTime(ctx context.Context, replay *domain.Replay) (float64, error) {
	var out valueResponse
	if err := c.get(ctx, replay, "frametime", nil, &out); err != nil {
		return 0, fmt.Errorf("mean frame time: %w", err)
	}
	return out.Value, nil
}

// FrameTimes returns the per-frame samples; corrected=false keeps the raw
// series without the service's speed-mod adjustment
func (c *Client) FrameTimes(ctx context.Context, replay *domain.Replay, corrected bool) ([]float64, error) {
	q := url.Values{"corrected": {strconv.FormatBool(corrected)}}
	var out valuesResponse
	if err := c.get(ctx, replay, "frametimes", q, &out); err != nil {
		return nil, fmt.Errorf("frame times: %w", err)
	}
	return out.Values, nil
}

// Snaps returns detected cursor snaps
func (c *Client) Snaps(ctx context.Context, replay *domain.Replay) ([]domain.Snap, error) {
	var out snapsResponse
	if err := c.get(ctx, replay, "snaps", nil, &out); err != nil {
		return nil, fmt.Errorf("snaps: %w", err)
	}
	return out.Snaps, nil
}

// FrameTimeGraph returns a PNG plot of the frame-time distribution
func (c *Client) FrameTimeGraph(ctx context.Context, replay *domain.Replay) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.replayURL(replay, "frametime-graph", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("building graph request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("frame time graph: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("frame time graph: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxGraph+1))
	if err != nil {
		return nil, fmt.Errorf("reading frame time graph: %w", err)
	}
	if int64(len(data)) > c.maxGraph {
		return nil, fmt.Errorf("frame time graph exceeds %d bytes", c.maxGraph)
	}
	return data, nil
}

func (c *Client) replayURL(replay *domain.Replay, metric string, q url.Values) string {
	u := fmt.Sprintf("%s/v1/replays/%s/%s", c.baseURL, url.PathEscape(replay.ID), metric)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) get(ctx context.Context, replay *domain.Replay, metric string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.replayURL(replay, metric, q), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("analysis request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("analysis service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
