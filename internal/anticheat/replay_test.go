package anticheat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/housekeeper/internal/config"
)

func TestReplayFetcherOverSelfSignedTLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "77", r.URL.Query().Get("id"))
		w.Write([]byte("osr-bytes"))
	}))
	defer srv.Close()

	cfg := &config.AntiCheatConfig{
		ReplayURL:          srv.URL + "/get_replay",
		ReplayTimeout:      time.Second,
		InsecureSkipVerify: true,
	}
	f := NewHTTPReplayFetcher(cfg)
	assert.Equal(t, srv.URL+"/get_replay?id=77", f.URL(77))

	data, err := f.Fetch(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, []byte("osr-bytes"), data)

	cfg.InsecureSkipVerify = false
	_, err = NewHTTPReplayFetcher(cfg).Fetch(context.Background(), 77)
	assert.Error(t, err)
}

func TestReplayFetcherRejectsMissingReplay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewHTTPReplayFetcher(&config.AntiCheatConfig{ReplayURL: srv.URL, ReplayTimeout: time.Second})
	_, err := f.Fetch(context.Background(), 5)
	assert.Error(t, err)
}

func TestReplayFetcherRejectsOversizedReplay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	f := NewHTTPReplayFetcher(&config.AntiCheatConfig{ReplayURL: srv.URL, ReplayTimeout: time.Second})

	f.maxSize = 10
	data, err := f.Fetch(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, data, 10)

	f.maxSize = 9
	_, err = f.Fetch(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 9 bytes")
}
