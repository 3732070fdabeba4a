package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartstore/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dialHub(t *testing.T, hub *Hub, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	return websocket.DefaultDialer.Dial(url, header)
}

func TestHub_BroadcastsNotifications(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	conn, _, err := dialHub(t, hub, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Notify(context.Background(), domain.InsufficientStock("Rice", 2))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got domain.Notification
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, domain.NotificationWarning, got.Kind)
	assert.Equal(t, domain.WarningDurationMs, got.DurationMs)
}

func TestHub_ClientDisconnectIsRemoved(t *testing.T) {
	hub := NewHub(testLogger(), nil)
	conn, _, err := dialHub(t, hub, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub(testLogger(), []string{"https://shop.example.com"})

	_, resp, err := dialHub(t, hub, http.Header{"Origin": []string{"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub(testLogger(), []string{"*"})
	conn, _, err := dialHub(t, hub, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestMulti_FansOut(t *testing.T) {
	var a, b []domain.Notification
	m := Multi{
		SinkFunc(func(_ context.Context, n domain.Notification) { a = append(a, n) }),
		SinkFunc(func(_ context.Context, n domain.Notification) { b = append(b, n) }),
		Discard,
		NewLogSink(testLogger()),
	}

	m.Notify(context.Background(), domain.AddedToCart("Rice"))

	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}
