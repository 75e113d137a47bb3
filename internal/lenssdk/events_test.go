package lenssdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/repolens/repolens/internal/lensmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventsTestServer accepts websocket connections and lets the test script
// what each connection sends.
type eventsTestServer struct {
	srv      *httptest.Server
	conns    atomic.Int32
	onAccept func(connNum int32, conn *websocket.Conn)
}

func newEventsTestServer(t *testing.T, onAccept func(connNum int32, conn *websocket.Conn)) *eventsTestServer {
	t.Helper()
	ts := &eventsTestServer{onAccept: onAccept}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ts.onAccept(ts.conns.Add(1), conn)
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *eventsTestServer) wsURL() string {
	return toWebsocketURL(ts.srv.URL)
}

func sendEvent(conn *websocket.Conn, ev *lensmsg.Event) {
	raw, _ := json.Marshal(ev)
	_ = conn.Write(context.Background(), websocket.MessageText, raw)
}

func newTestEventsAPI(url string) *EventsAPI {
	e := newEventsAPI(url, http.Header{})
	// keep reconnect fast and deterministic in tests
	e.sleep = func(ctx context.Context, d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
			return nil
		}
	}
	return e
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestEventsDeliveryOrderAndReconnect(t *testing.T) {
	ts := newEventsTestServer(t, func(connNum int32, conn *websocket.Conn) {
		switch connNum {
		case 1:
			sendEvent(conn, lensmsg.NewRescanStartedEvent("scan-1"))
			sendEvent(conn, lensmsg.NewRescanCompletedEvent("scan-1", 10, time.Second))
			// drop the connection abnormally to force a reconnect
			_ = conn.CloseNow()
		default:
			sendEvent(conn, lensmsg.NewFileChangedEvent("main.go", "write"))
		}
	})

	e := newTestEventsAPI(ts.wsURL())

	var mu sync.Mutex
	var kinds []lensmsg.Kind
	var states []ConnState

	e.Subscribe(func(ev *lensmsg.Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})
	e.SubscribeState(func(s ConnState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	e.Start()
	defer e.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) >= 3
	}, "three events across a reconnect")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []lensmsg.Kind{
		lensmsg.KindRescanStarted,
		lensmsg.KindRescanCompleted,
		lensmsg.KindFileChanged,
	}, kinds[:3])

	// the FSM must have gone through a closed period between the two opens
	opens, closeds := 0, 0
	for _, s := range states {
		switch s {
		case ConnOpen:
			opens++
		case ConnClosed:
			closeds++
		}
	}
	assert.GreaterOrEqual(t, opens, 2)
	assert.GreaterOrEqual(t, closeds, 1)
}

func TestEventsMalformedFrameDropped(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	ts := newEventsTestServer(t, func(connNum int32, conn *websocket.Conn) {
		_ = conn.Write(context.Background(), websocket.MessageText, []byte(`{"kind":"no-such-kind"}`))
		_ = conn.Write(context.Background(), websocket.MessageText, []byte(`this is not json`))
		sendEvent(conn, lensmsg.NewSettingsChangedEvent())
		<-block
		_ = conn.CloseNow()
	})

	e := newTestEventsAPI(ts.wsURL())

	var mu sync.Mutex
	var kinds []lensmsg.Kind
	e.Subscribe(func(ev *lensmsg.Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})

	e.Start()
	defer e.Stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) >= 1
	}, "valid event after malformed frames")

	mu.Lock()
	defer mu.Unlock()
	// the bad frames were dropped, not delivered and not fatal
	assert.Equal(t, []lensmsg.Kind{lensmsg.KindSettingsChanged}, kinds)
	assert.Equal(t, int32(1), ts.conns.Load())
}

func TestEventsStartIdempotent(t *testing.T) {
	block := make(chan struct{})
	ts := newEventsTestServer(t, func(connNum int32, conn *websocket.Conn) {
		<-block
		_ = conn.CloseNow()
	})
	defer close(block)

	e := newTestEventsAPI(ts.wsURL())
	e.Start()
	e.Start()
	e.Start()
	defer e.Stop()

	waitFor(t, func() bool { return e.State() == ConnOpen }, "connection open")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), ts.conns.Load())
}

func TestEventsStopSuppressesReconnect(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	ts := newEventsTestServer(t, func(connNum int32, conn *websocket.Conn) {
		<-block
		_ = conn.CloseNow()
	})

	e := newTestEventsAPI(ts.wsURL())
	e.Start()
	waitFor(t, func() bool { return e.State() == ConnOpen }, "connection open")

	e.Stop()
	waitFor(t, func() bool { return e.State() == ConnIdle }, "idle after stop")

	before := ts.conns.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, ts.conns.Load())

	// stop twice is fine
	e.Stop()
}

func TestEventsUnsubscribe(t *testing.T) {
	ready := make(chan *websocket.Conn, 1)
	block := make(chan struct{})
	defer close(block)
	ts := newEventsTestServer(t, func(connNum int32, conn *websocket.Conn) {
		ready <- conn
		<-block
		_ = conn.CloseNow()
	})

	e := newTestEventsAPI(ts.wsURL())

	var count atomic.Int32
	unsub := e.Subscribe(func(ev *lensmsg.Event) { count.Add(1) })

	e.Start()
	defer e.Stop()

	conn := <-ready
	sendEvent(conn, lensmsg.NewSettingsChangedEvent())
	waitFor(t, func() bool { return count.Load() == 1 }, "first event")

	unsub()
	sendEvent(conn, lensmsg.NewSettingsChangedEvent())
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), count.Load())
}
