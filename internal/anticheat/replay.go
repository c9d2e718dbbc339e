package anticheat

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/housekeeper/internal/config"
)

// maxReplaySize caps a replay download
const maxReplaySize = 16 << 20

// HTTPReplayFetcher downloads raw replays from the replay endpoint
type HTTPReplayFetcher struct {
	endpoint string
	http     *http.Client
	maxSize  int64
}

// NewHTTPReplayFetcher creates a fetcher for cfg.ReplayURL
func NewHTTPReplayFetcher(cfg *config.AntiCheatConfig) *HTTPReplayFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // replay host uses a self-signed cert
	}
	return &HTTPReplayFetcher{
		endpoint: cfg.ReplayURL,
		http:     &http.Client{Timeout: cfg.ReplayTimeout, Transport: transport},
		maxSize:  maxReplaySize,
	}
}

// URL returns the public download link of a score's replay
func (f *HTTPReplayFetcher) URL(scoreID int64) string {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return fmt.Sprintf("%s?id=%d", f.endpoint, scoreID)
	}
	q := u.Query()
	q.Set("id", strconv.FormatInt(scoreID, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch downloads the raw replay of scoreID
func (f *HTTPReplayFetcher) Fetch(ctx context.Context, scoreID int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(scoreID), nil)
	if err != nil {
		return nil, fmt.Errorf("building replay request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching replay %d: %w", scoreID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching replay %d: status %d", scoreID, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading replay %d: %w", scoreID, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("fetching replay %d: body exceeds %d bytes", scoreID, f.maxSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetching replay %d: empty body", scoreID)
	}
	return data, nil
}
