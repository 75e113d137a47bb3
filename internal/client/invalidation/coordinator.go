// Package invalidation bridges the event stream to the query cache: it maps
// every event kind to the resource keys it makes stale. The mapping is
// deliberately conservative - an extra invalidation costs one redundant
// fetch, a missed one produces a silently stale UI.
package invalidation

import (
	"context"
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/repolens/repolens/internal/client/querycache"
	"github.com/repolens/repolens/internal/lensmsg"
	"github.com/repolens/repolens/internal/lenssdk"
)

// EventSource is the subscription surface of the event stream client.
type EventSource interface {
	Subscribe(lenssdk.EventListener) (unsubscribe func())
	SubscribeState(lenssdk.StateListener) (unsubscribe func())
}

// RefreshFunc refetches a stale key. The coordinator calls it for keys some
// view is currently watching, so on-screen data catches up without waiting
// for user input.
type RefreshFunc func(ctx context.Context, key string)

// Coordinator subscribes to the event feed and turns push notifications
// into cache invalidations. Events are processed in receipt order.
type Coordinator struct {
	cache   *querycache.Cache
	events  EventSource
	refresh RefreshFunc
	watched mapset.Set[string]

	mu           sync.Mutex
	disconnected bool
	unsubs       []func()
}

func New(cache *querycache.Cache, events EventSource, refresh RefreshFunc) *Coordinator {
	return &Coordinator{
		cache:   cache,
		events:  events,
		refresh: refresh,
		watched: mapset.NewSet[string](),
	}
}

// Start attaches the coordinator to the event stream.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.unsubs) > 0 {
		return
	}
	c.unsubs = append(c.unsubs,
		c.events.Subscribe(c.OnEvent),
		c.events.SubscribeState(c.OnState),
	)
}

// Stop detaches from the event stream.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

// Watch marks a key as currently displayed by some view.
func (c *Coordinator) Watch(keys ...string) {
	c.watched.Append(keys...)
}

// Unwatch removes keys from the watched set. Cache entries stay put; the
// data remains available for instant redisplay.
func (c *Coordinator) Unwatch(keys ...string) {
	c.watched.RemoveAll(keys...)
}

// KeysFor returns the resource keys an event invalidates. Total over every
// defined kind; a kind this build does not know is mapped to all held keys
// rather than ignored.
func (c *Coordinator) KeysFor(ev *lensmsg.Event) []string {
	switch ev.Kind {
	case lensmsg.KindSystem:
		return []string{querycache.KeyStatus}
	case lensmsg.KindRescanStarted:
		return []string{querycache.KeyStatus}
	case lensmsg.KindRescanCompleted:
		keys := []string{
			querycache.KeyStatus,
			querycache.KeyTree,
			querycache.KeyClassGraph,
			querycache.KeyLint,
		}
		return append(keys, c.cache.FileKeys()...)
	case lensmsg.KindFileChanged:
		keys := []string{querycache.KeyStatus}
		if fc, ok := ev.Data.(lensmsg.FileChanged); ok && fc.Path != "" {
			keys = append(keys, querycache.FileKey(fc.Path))
		}
		return keys
	case lensmsg.KindSettingsChanged:
		return []string{querycache.KeySettings, querycache.KeyStatus}
	default:
		// never under-invalidate
		slog.Warn("unmapped event kind, invalidating everything", "kind", ev.Kind)
		return c.cache.Keys()
	}
}

// OnEvent invalidates the keys mapped from one event and kicks refreshes
// for the ones currently on screen.
func (c *Coordinator) OnEvent(ev *lensmsg.Event) {
	keys := c.KeysFor(ev)
	slog.Debug("event invalidates", "kind", ev.Kind, "keys", len(keys))
	for _, key := range keys {
		c.cache.Invalidate(key)
	}
	c.refreshWatched(keys)
}

// OnState tracks the connection lifecycle. Reconnection does not replay the
// events missed while disconnected, so a re-established connection means
// everything may be stale: invalidate all held keys, exactly once per drop.
func (c *Coordinator) OnState(s lenssdk.ConnState) {
	switch s {
	case lenssdk.ConnClosed:
		c.mu.Lock()
		c.disconnected = true
		c.mu.Unlock()
	case lenssdk.ConnOpen:
		c.mu.Lock()
		reconnected := c.disconnected
		c.disconnected = false
		c.mu.Unlock()

		if !reconnected {
			return
		}
		slog.Info("events reconnected, invalidating all cached resources")
		keys := c.cache.Keys()
		c.cache.InvalidateAll()
		c.refreshWatched(keys)
	}
}

// refreshWatched refetches the subset of keys some view is displaying. The
// refetch runs off the event-dispatch goroutine so event processing keeps
// its receipt order; EnsureFresh de-duplication collapses bursts targeting
// the same key into a single fetch.
func (c *Coordinator) refreshWatched(keys []string) {
	if c.refresh == nil {
		return
	}
	for _, key := range keys {
		if !c.watched.Contains(key) {
			continue
		}
		go c.refresh(context.Background(), key)
	}
}
