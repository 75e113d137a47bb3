package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/repolens/repolens/internal/client/config"
	"github.com/repolens/repolens/internal/client/querycache"
	"github.com/repolens/repolens/internal/lensmsg"
	"github.com/repolens/repolens/internal/lenssdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mux          *http.ServeMux
	srv          *httptest.Server
	filesIndexed atomic.Int32
	treeCalls    atomic.Int32
	rescans      atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{mux: http.NewServeMux()}
	b.filesIndexed.Store(10)

	b.mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"root_path":"/src/repo","watcher_active":true,"files_indexed":%d,"server_version":"test"}`, b.filesIndexed.Load())
	})
	b.mux.HandleFunc("GET /api/v1/tree", func(w http.ResponseWriter, r *http.Request) {
		b.treeCalls.Add(1)
		// hold the request briefly so concurrent callers overlap
		time.Sleep(30 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"root":{"name":"repo","path":"","dir":true},"files_indexed":%d,"scan_id":"s1","generated_at":"2026-08-01T00:00:00Z"}`, b.filesIndexed.Load())
	})
	b.mux.HandleFunc("POST /api/v1/rescan", func(w http.ResponseWriter, r *http.Request) {
		b.rescans.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"scan_id":"s2","started":true}`)
	})
	b.mux.HandleFunc("PATCH /api/v1/settings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"root_path":"/src/repo","debounce_ms":250,"lint_enabled":true}`)
	})

	b.srv = httptest.NewServer(b.mux)
	t.Cleanup(b.srv.Close)
	return b
}

func newTestApp(t *testing.T, b *fakeBackend) *App {
	t.Helper()
	app, err := New(&config.Config{APIURL: b.srv.URL})
	require.NoError(t, err)
	t.Cleanup(app.Stop)
	return app
}

func TestRescanCompletedEventRefreshesStatus(t *testing.T) {
	b := newFakeBackend(t)
	app := newTestApp(t, b)

	v, err := app.EnsureFresh(context.Background(), querycache.KeyStatus)
	require.NoError(t, err)
	require.Equal(t, 10, *v.(*lenssdk.RepoStatus).FilesIndexed)

	// the backend reindexes and announces completion
	b.filesIndexed.Store(12)
	app.Coordinator().OnEvent(lensmsg.NewRescanCompletedEvent("s2", 12, time.Second))

	require.True(t, app.Cache().Get(querycache.KeyStatus).Stale)

	v, err = app.EnsureFresh(context.Background(), querycache.KeyStatus)
	require.NoError(t, err)
	assert.Equal(t, 12, *v.(*lenssdk.RepoStatus).FilesIndexed)
}

func TestConcurrentViewsShareOneTreeFetch(t *testing.T) {
	b := newFakeBackend(t)
	app := newTestApp(t, b)

	var wg sync.WaitGroup
	results := make([]any, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := app.EnsureFresh(context.Background(), querycache.KeyTree)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), b.treeCalls.Load())
	assert.Same(t, results[0].(*lenssdk.TreeSnapshot), results[1].(*lenssdk.TreeSnapshot))
}

func TestTriggerRescanDoesNotTouchCache(t *testing.T) {
	b := newFakeBackend(t)
	app := newTestApp(t, b)

	_, err := app.EnsureFresh(context.Background(), querycache.KeyStatus)
	require.NoError(t, err)

	ack, err := app.TriggerRescan(context.Background())
	require.NoError(t, err)
	assert.True(t, ack.Started)
	assert.Equal(t, int32(1), b.rescans.Load())

	// only the subsequent stream event (or explicit invalidation) refreshes
	e := app.Cache().Get(querycache.KeyStatus)
	assert.Equal(t, querycache.StatusSuccess, e.Status)
	assert.False(t, e.Stale)
}

func TestUpdateSettingsSeedsCacheAndInvalidatesStatus(t *testing.T) {
	b := newFakeBackend(t)
	app := newTestApp(t, b)

	_, err := app.EnsureFresh(context.Background(), querycache.KeyStatus)
	require.NoError(t, err)

	lint := true
	settings, err := app.UpdateSettings(context.Background(), &lenssdk.SettingsUpdate{LintEnabled: &lint})
	require.NoError(t, err)
	assert.True(t, settings.LintEnabled)

	se := app.Cache().Get(querycache.KeySettings)
	assert.Equal(t, querycache.StatusSuccess, se.Status)
	assert.Same(t, settings, se.Value.(*lenssdk.Settings))

	assert.True(t, app.Cache().Get(querycache.KeyStatus).Stale)
}

func TestFetcherForUnknownKey(t *testing.T) {
	b := newFakeBackend(t)
	app := newTestApp(t, b)

	_, err := app.EnsureFresh(context.Background(), "nope")
	require.Error(t, err)
}
