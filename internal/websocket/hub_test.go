package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, logger, w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *gws.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestAnnounceReachesSubscribersOnly(t *testing.T) {
	hub, srv := newTestHub(t)

	staff := dial(t, srv)
	other := dial(t, srv)

	require.NoError(t, staff.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Channel: "#staff"}))
	assert.Equal(t, "subscribed", readMessage(t, staff).Type)
	require.NoError(t, other.WriteJSON(ClientMessage{Type: MessageTypeSubscribe, Channel: "#announce"}))
	assert.Equal(t, "subscribed", readMessage(t, other).Type)

	require.Eventually(t, func() bool { return hub.GetSubscriberCount("#staff") == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, hub.GetTotalConnections())

	hub.Announce("#staff", "Auto rank recalculation started.")

	msg := readMessage(t, staff)
	assert.Equal(t, MessageTypeAnnouncement, msg.Type)
	assert.Equal(t, "#staff", msg.Channel)

	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var a Announcement
	require.NoError(t, json.Unmarshal(raw, &a))
	assert.Equal(t, "Auto rank recalculation started.", a.Text)

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestClientRequestHandling(t *testing.T) {
	_, srv := newTestHub(t)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePing}))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeSubscribe}))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "shout"}))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)
}

func TestAnnounceWithoutSubscribersDoesNotBlock(t *testing.T) {
	hub, _ := newTestHub(t)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Announce("#staff", "line")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("announce blocked")
	}
}
