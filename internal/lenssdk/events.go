package lenssdk

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/repolens/repolens/internal/lensmsg"
)

const (
	eventsReconnectDelay    = 500 * time.Millisecond
	eventsMaxReconnectDelay = 8 * time.Second
	eventsMinRetryInterval  = 250 * time.Millisecond
	eventsDialTimeout       = 10 * time.Second
	eventsMaxMessageSize    = 1 * 1024 * 1024 // 1MB
)

// ConnState is the lifecycle state of the event stream connection.
type ConnState int

const (
	// ConnIdle means the client is not running (never started or stopped).
	ConnIdle ConnState = iota
	// ConnConnecting means a dial is in progress.
	ConnConnecting
	// ConnOpen means the connection is established and delivering events.
	ConnOpen
	// ConnClosed means the connection dropped; a reconnect is pending.
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnIdle:
		return "idle"
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	case ConnClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventListener receives every event, in receipt order.
type EventListener func(*lensmsg.Event)

// StateListener receives connection state transitions.
type StateListener func(ConnState)

type dialFunc func(ctx context.Context, url string, header http.Header) (*websocket.Conn, error)

// EventsAPI maintains a single logical subscription feed over a reconnecting
// websocket. Reconnect attempts are serialized with capped exponential
// backoff; backoff resets after a successful open. Events lost while
// disconnected are not replayed.
type EventsAPI struct {
	url    string
	header http.Header

	mu        sync.RWMutex
	state     ConnState
	conn      *websocket.Conn
	cancel    context.CancelFunc
	running   bool
	listeners map[int]EventListener
	stateSubs map[int]StateListener
	nextID    int

	// injectable for tests
	dial  dialFunc
	sleep func(ctx context.Context, d time.Duration) error
}

func newEventsAPI(wsURL string, header http.Header) *EventsAPI {
	return &EventsAPI{
		url:       wsURL,
		header:    header,
		state:     ConnIdle,
		listeners: make(map[int]EventListener),
		stateSubs: make(map[int]StateListener),
		dial:      dialWebsocket,
		sleep:     sleepCtx,
	}
}

// Start opens the connection unless it is already open or connecting.
// Idempotent: a duplicate Start while running is a no-op.
func (e *EventsAPI) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	go e.run(ctx)
}

// Stop closes the connection and suppresses reconnection until the next
// Start. Idempotent.
func (e *EventsAPI) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()

	cancel()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "stop")
	}
}

// State returns the current connection state.
func (e *EventsAPI) State() ConnState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Subscribe registers a listener for every received event and returns its
// unsubscribe func. Listeners are invoked in registration order.
func (e *EventsAPI) Subscribe(fn EventListener) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.listeners[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

// SubscribeState registers a listener for connection state transitions.
func (e *EventsAPI) SubscribeState(fn StateListener) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.stateSubs[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.stateSubs, id)
	}
}

// run is the connection state machine: Connecting -> Open -> Closed -> backoff
// -> Connecting, until the context is cancelled by Stop.
func (e *EventsAPI) run(ctx context.Context) {
	delay := eventsReconnectDelay

	for {
		e.setState(ConnConnecting)

		dialCtx, cancel := context.WithTimeout(ctx, eventsDialTimeout)
		conn, err := e.dial(dialCtx, e.url, e.header)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				e.setState(ConnIdle)
				return
			}
			slog.Warn("events connect failed", "url", e.url, "error", err, "retry_in", delay)
			e.setState(ConnClosed)
			if e.sleep(ctx, delay) != nil {
				e.setState(ConnIdle)
				return
			}
			delay = nextBackoff(delay)
			continue
		}

		conn.SetReadLimit(eventsMaxMessageSize)
		e.mu.Lock()
		e.conn = conn
		e.mu.Unlock()
		e.setState(ConnOpen)
		slog.Info("events connected", "url", e.url)

		// Backoff resets after a successful open.
		delay = eventsReconnectDelay

		e.readEvents(ctx, conn)

		e.mu.Lock()
		e.conn = nil
		e.mu.Unlock()

		if ctx.Err() != nil {
			e.setState(ConnIdle)
			return
		}

		slog.Info("events connection lost, will reconnect", "retry_in", delay)
		e.setState(ConnClosed)
		if e.sleep(ctx, delay) != nil {
			e.setState(ConnIdle)
			return
		}
		delay = nextBackoff(delay)
	}
}

func (e *EventsAPI) setState(s ConnState) {
	e.mu.Lock()
	if e.state == s {
		e.mu.Unlock()
		return
	}
	e.state = s
	subs := make([]StateListener, 0, len(e.stateSubs))
	for _, id := range sortedKeys(e.stateSubs) {
		subs = append(subs, e.stateSubs[id])
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

func (e *EventsAPI) dispatch(ev *lensmsg.Event) {
	e.mu.RLock()
	listeners := make([]EventListener, 0, len(e.listeners))
	for _, id := range sortedKeys(e.listeners) {
		listeners = append(listeners, e.listeners[id])
	}
	e.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// nextBackoff doubles the delay up to the cap and applies jitter, clamped to
// the minimal retry interval so reconnects never thrash.
func nextBackoff(d time.Duration) time.Duration {
	d = min(d*2, eventsMaxReconnectDelay)
	jitter := 0.75 + (rand.Float64() * 0.5)
	d = time.Duration(float64(d) * jitter)
	return max(d, eventsMinRetryInterval)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
