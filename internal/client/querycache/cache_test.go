package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestEnsureFreshDeduplicatesConcurrentFetches(t *testing.T) {
	c := New(WithSleep(noSleep))

	var fetches atomic.Int32
	release := make(chan struct{})
	fetcher := func(ctx context.Context) (any, error) {
		fetches.Add(1)
		<-release
		return "payload", nil
	}

	const callers = 8
	results := make([]any, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.EnsureFresh(context.Background(), KeyTree, fetcher)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	// let all callers pile onto the same in-flight fetch
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fetches.Load())
	for _, v := range results {
		assert.Equal(t, "payload", v)
	}

	e := c.Get(KeyTree)
	assert.Equal(t, StatusSuccess, e.Status)
	assert.False(t, e.Stale)
	assert.False(t, e.FetchedAt.IsZero())
}

func TestEnsureFreshServesCachedValue(t *testing.T) {
	c := New(WithSleep(noSleep))

	var fetches atomic.Int32
	fetcher := func(ctx context.Context) (any, error) {
		fetches.Add(1)
		return "v1", nil
	}

	for i := 0; i < 5; i++ {
		v, err := c.EnsureFresh(context.Background(), KeyStatus, fetcher)
		require.NoError(t, err)
		assert.Equal(t, "v1", v)
	}
	assert.Equal(t, int32(1), fetches.Load())
}

func TestInvalidateDefersFetchToNextEnsure(t *testing.T) {
	c := New(WithSleep(noSleep))

	var fetches atomic.Int32
	fetcher := func(ctx context.Context) (any, error) {
		return int(fetches.Add(1)), nil
	}

	_, err := c.EnsureFresh(context.Background(), KeyStatus, fetcher)
	require.NoError(t, err)
	require.Equal(t, int32(1), fetches.Load())

	c.Invalidate(KeyStatus)

	// invalidation alone must not fetch
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), fetches.Load())
	assert.True(t, c.Get(KeyStatus).Stale)
	// the old value stays visible while stale
	assert.Equal(t, 1, c.Get(KeyStatus).Value)

	v, err := c.EnsureFresh(context.Background(), KeyStatus, fetcher)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(2), fetches.Load())
	assert.False(t, c.Get(KeyStatus).Stale)
}

func TestInvalidateUntrackedKeyIsNoop(t *testing.T) {
	c := New(WithSleep(noSleep))
	c.Invalidate("tree")
	assert.Equal(t, StatusIdle, c.Get("tree").Status)
	assert.Empty(t, c.Keys())
}

func TestRetryPolicyBounded(t *testing.T) {
	c := New(WithSleep(noSleep), WithRetryPolicy(2, time.Millisecond))

	var calls atomic.Int32
	fetcher := func(ctx context.Context) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("flaky")
		}
		return "ok", nil
	}

	v, err := c.EnsureFresh(context.Background(), KeyLint, fetcher)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhaustedSurfaceError(t *testing.T) {
	c := New(WithSleep(noSleep), WithRetryPolicy(2, time.Millisecond))

	boom := errors.New("down")
	var calls atomic.Int32
	fetcher := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, boom
	}

	_, err := c.EnsureFresh(context.Background(), KeyLint, fetcher)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), calls.Load()) // initial try + 2 retries

	e := c.Get(KeyLint)
	assert.Equal(t, StatusError, e.Status)
	require.ErrorIs(t, e.Err, boom)

	// an error entry is refetched on the next ensure
	_, err = c.EnsureFresh(context.Background(), KeyLint, fetcher)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(6), calls.Load())
}

func TestSetValueSeedsWithoutFetch(t *testing.T) {
	c := New(WithSleep(noSleep))

	c.SetValue(KeySettings, "seeded")

	e := c.Get(KeySettings)
	assert.Equal(t, StatusSuccess, e.Status)
	assert.Equal(t, "seeded", e.Value)
	assert.False(t, e.Stale)

	v, err := c.EnsureFresh(context.Background(), KeySettings, func(ctx context.Context) (any, error) {
		t.Fatal("fetcher must not run for a fresh seeded value")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "seeded", v)
}

func TestInvalidateDuringInFlightFetchKeepsEntryStale(t *testing.T) {
	c := New(WithSleep(noSleep))

	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "maybe-outdated", nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.EnsureFresh(context.Background(), KeyTree, fetcher)
	}()

	<-started
	c.Invalidate(KeyTree)
	close(release)
	<-done

	// the fetched value may predate the invalidation signal, so it is
	// stored but stays stale
	e := c.Get(KeyTree)
	assert.Equal(t, StatusSuccess, e.Status)
	assert.Equal(t, "maybe-outdated", e.Value)
	assert.True(t, e.Stale)
}

func TestSubscribersNotified(t *testing.T) {
	c := New(WithSleep(noSleep))

	var mu sync.Mutex
	var changed []string
	unsub := c.Subscribe(func(key string) {
		mu.Lock()
		changed = append(changed, key)
		mu.Unlock()
	})

	_, err := c.EnsureFresh(context.Background(), KeyStatus, func(ctx context.Context) (any, error) {
		return "v", nil
	})
	require.NoError(t, err)
	c.Invalidate(KeyStatus)

	mu.Lock()
	// loading, success, invalidate
	assert.Equal(t, []string{KeyStatus, KeyStatus, KeyStatus}, changed)
	mu.Unlock()

	unsub()
	c.SetValue(KeySettings, "x")
	mu.Lock()
	assert.Len(t, changed, 3)
	mu.Unlock()
}

func TestFileEntriesBounded(t *testing.T) {
	c := New(WithSleep(noSleep), WithFileCapacity(2))

	c.SetValue(FileKey("a.go"), 1)
	c.SetValue(FileKey("b.go"), 2)
	c.SetValue(FileKey("c.go"), 3)

	keys := c.FileKeys()
	assert.Len(t, keys, 2)
	assert.NotContains(t, keys, FileKey("a.go"))
	assert.Equal(t, StatusIdle, c.Get(FileKey("a.go")).Status)
	assert.Equal(t, 3, c.Get(FileKey("c.go")).Value)
}

func TestInvalidateAllMarksEverythingStale(t *testing.T) {
	c := New(WithSleep(noSleep))
	c.SetValue(KeyStatus, 1)
	c.SetValue(KeyTree, 2)
	c.SetValue(FileKey("a.go"), 3)

	c.InvalidateAll()

	for _, key := range c.Keys() {
		assert.True(t, c.Get(key).Stale, "key %s", key)
	}
}

func TestKeyHelpers(t *testing.T) {
	assert.True(t, IsFileKey(FileKey("x/y.go")))
	assert.False(t, IsFileKey(KeyTree))
	assert.Equal(t, "x/y.go", FilePath(FileKey("x/y.go")))
	assert.Equal(t, "", FilePath(KeyTree))
	assert.Len(t, FixedKeys(), 5)
}
