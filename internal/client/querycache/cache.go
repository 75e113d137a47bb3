// Package querycache is the single source of truth mapping a resource key to
// its latest known value and fetch status. It de-duplicates concurrent
// fetches per key, tracks staleness, and publishes change notifications to
// subscribers so views never poll.
package querycache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultMaxRetries   = 2
	defaultRetryDelay   = 250 * time.Millisecond
	defaultFileCapacity = 512
)

// Status is the fetch state of a cached entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is a snapshot of a cached resource. During a refetch the previous
// Value stays visible so views can render stale data instead of a blank.
type Entry struct {
	Status    Status
	Value     any
	Err       error
	FetchedAt time.Time
	Stale     bool
}

// Fetcher loads the current value of a resource from the backend.
type Fetcher func(ctx context.Context) (any, error)

// Subscriber is notified with the key of every entry that changed.
type Subscriber func(key string)

type Option func(*Cache)

// WithRetryPolicy bounds the automatic retries applied before an entry
// surfaces its error.
func WithRetryPolicy(maxRetries int, initialDelay time.Duration) Option {
	return func(c *Cache) {
		c.maxRetries = maxRetries
		c.retryDelay = initialDelay
	}
}

// WithSleep injects the retry-backoff sleep, so tests run without wall time.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Cache) { c.sleep = sleep }
}

// WithFileCapacity bounds how many file: entries are retained.
func WithFileCapacity(n int) Option {
	return func(c *Cache) { c.fileCap = n }
}

// Cache is the per-resource cached state machine. File-detail entries live
// in an LRU so unbounded browsing cannot grow the cache without limit; the
// handful of fixed keys live in a plain map.
type Cache struct {
	mu    sync.RWMutex
	fixed map[string]Entry
	files *lru.Cache[string, Entry]
	gens  map[string]uint64

	flight  singleflight.Group
	subs    map[int]Subscriber
	nextSub int

	maxRetries int
	retryDelay time.Duration
	fileCap    int
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

func New(opts ...Option) *Cache {
	c := &Cache{
		fixed:      make(map[string]Entry),
		gens:       make(map[string]uint64),
		subs:       make(map[int]Subscriber),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		fileCap:    defaultFileCapacity,
		sleep:      sleepCtx,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	files, err := lru.New[string, Entry](c.fileCap)
	if err != nil {
		panic(err) // only fails for capacity <= 0
	}
	c.files = files
	return c
}

// Get returns the current state of a key without fetching.
func (c *Cache) Get(key string) Entry {
	if e, ok := c.lookup(key); ok {
		return e
	}
	return Entry{Status: StatusIdle}
}

// EnsureFresh returns the cached value if it is fresh, otherwise performs
// exactly one fetch for the key. Concurrent callers for the same key attach
// to the in-flight fetch and observe the same resolved value or error.
//
// The fetch runs detached from the caller's cancellation: a consumer going
// away does not abort a fetch another consumer may still want, and a
// completed result is cached either way. Timeouts are the transport's job.
func (c *Cache) EnsureFresh(ctx context.Context, key string, fetcher Fetcher) (any, error) {
	if e, ok := c.lookup(key); ok && e.Status == StatusSuccess && !e.Stale {
		return e.Value, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// an attached caller may arrive after the winner already stored
		if e, ok := c.lookup(key); ok && e.Status == StatusSuccess && !e.Stale {
			return e.Value, nil
		}

		startGen := c.generation(key)
		c.markLoading(key)

		fctx := context.WithoutCancel(ctx)
		var v any
		var err error
		delay := c.retryDelay
		for attempt := 0; ; attempt++ {
			v, err = fetcher(fctx)
			if err == nil || attempt >= c.maxRetries {
				break
			}
			if c.sleep(fctx, delay) != nil {
				break
			}
			delay *= 2
		}

		if err != nil {
			c.storeError(key, err)
			return nil, err
		}
		c.storeValue(key, v, startGen)
		return v, nil
	})
	return v, err
}

// Invalidate marks a tracked key stale. It never fetches; the next
// EnsureFresh does. Untracked keys are a no-op.
func (c *Cache) Invalidate(key string) {
	e, ok := c.lookup(key)
	if !ok {
		return
	}
	c.mu.Lock()
	c.gens[key]++
	c.mu.Unlock()

	e.Stale = true
	c.store(key, e)
	c.notify(key)
}

// InvalidateAll marks every tracked key stale.
func (c *Cache) InvalidateAll() {
	for _, key := range c.Keys() {
		c.Invalidate(key)
	}
}

// SetValue seeds a key directly, e.g. from a write path's response, without
// a round-trip fetch.
func (c *Cache) SetValue(key string, value any) {
	c.store(key, Entry{
		Status:    StatusSuccess,
		Value:     value,
		FetchedAt: c.now(),
	})
	c.notify(key)
}

// Keys returns every key currently tracked.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.fixed))
	for k := range c.fixed {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	return append(keys, c.files.Keys()...)
}

// FileKeys returns the file: keys currently tracked.
func (c *Cache) FileKeys() []string {
	return c.files.Keys()
}

// Subscribe registers a change subscriber and returns its unsubscribe func.
func (c *Cache) Subscribe(fn Subscriber) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Cache) lookup(key string) (Entry, bool) {
	if IsFileKey(key) {
		return c.files.Get(key)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.fixed[key]
	return e, ok
}

func (c *Cache) store(key string, e Entry) {
	if IsFileKey(key) {
		c.files.Add(key, e)
		return
	}
	c.mu.Lock()
	c.fixed[key] = e
	c.mu.Unlock()
}

func (c *Cache) generation(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[key]
}

func (c *Cache) markLoading(key string) {
	e, _ := c.lookup(key)
	e.Status = StatusLoading
	e.Err = nil
	c.store(key, e)
	c.notify(key)
}

func (c *Cache) storeValue(key string, value any, startGen uint64) {
	e := Entry{
		Status:    StatusSuccess,
		Value:     value,
		FetchedAt: c.now(),
	}
	// an invalidation that raced the fetch keeps the entry stale, so the
	// next EnsureFresh fetches again instead of trusting a value that may
	// predate the change
	e.Stale = c.generation(key) != startGen
	c.store(key, e)
	c.notify(key)
}

func (c *Cache) storeError(key string, err error) {
	e, _ := c.lookup(key)
	e.Status = StatusError
	e.Err = err
	c.store(key, e)
	c.notify(key)
}

func (c *Cache) notify(key string) {
	c.mu.RLock()
	subs := make([]Subscriber, 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.RUnlock()

	for _, fn := range subs {
		fn(key)
	}
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
