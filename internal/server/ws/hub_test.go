package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/repolens/repolens/internal/lensmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()

	hub := NewHub(func() *lensmsg.Event {
		return lensmsg.NewSystemEvent("test", true)
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/v1/events", hub.Handler)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/api/v1/events"
	return hub, wsURL
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *lensmsg.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev lensmsg.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	return &ev
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
}

func TestHubGreetsOnConnect(t *testing.T) {
	_, wsURL := newTestHub(t)

	conn := dial(t, wsURL)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ev := readEvent(t, conn)
	assert.Equal(t, lensmsg.KindSystem, ev.Kind)

	sys, ok := ev.Data.(lensmsg.System)
	require.True(t, ok)
	assert.Equal(t, "test", sys.ServerVersion)
	assert.True(t, sys.WatcherActive)
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub, wsURL := newTestHub(t)

	conn1 := dial(t, wsURL)
	defer conn1.Close(websocket.StatusNormalClosure, "done")
	conn2 := dial(t, wsURL)
	defer conn2.Close(websocket.StatusNormalClosure, "done")

	waitClients(t, hub, 2)

	// drain greetings
	readEvent(t, conn1)
	readEvent(t, conn2)

	hub.Broadcast(lensmsg.NewFileChangedEvent("pkg/a.go", "write"))

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		ev := readEvent(t, conn)
		require.Equal(t, lensmsg.KindFileChanged, ev.Kind)
		fc := ev.Data.(lensmsg.FileChanged)
		assert.Equal(t, "pkg/a.go", fc.Path)
		assert.Equal(t, "write", fc.Op)
	}
}

func TestHubRemovesDisconnectedClients(t *testing.T) {
	hub, wsURL := newTestHub(t)

	conn := dial(t, wsURL)
	waitClients(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitClients(t, hub, 0)

	// broadcasting into an empty hub must not panic or block
	hub.Broadcast(lensmsg.NewSettingsChangedEvent())
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub, wsURL := newTestHub(t)

	conn := dial(t, wsURL)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	waitClients(t, hub, 1)

	done := make(chan struct{})
	go func() {
		hub.Shutdown(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("hub shutdown timed out")
	}
	assert.Zero(t, hub.ClientCount())
}
