package lenssdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSDK(t *testing.T, handler http.Handler) *SDK {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sdk, err := New(&Config{APIBaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(sdk.Close)
	return sdk
}

func TestRepoStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"root_path":"/src/repo","watcher_active":true,"files_indexed":42,"server_version":"0.2.0"}`))
	})

	sdk := newTestSDK(t, mux)
	status, err := sdk.Repo.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/src/repo", status.RootPath)
	assert.True(t, status.WatcherActive)
	require.NotNil(t, status.FilesIndexed)
	assert.Equal(t, 42, *status.FilesIndexed)
	assert.Nil(t, status.LastFullScan)
}

func TestRepoFileEscapesPath(t *testing.T) {
	var gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/files/", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"internal/a b.go","lines":10,"size":120,"mod_time":"2026-08-01T00:00:00Z"}`))
	})

	sdk := newTestSDK(t, mux)
	detail, err := sdk.Repo.File(context.Background(), "internal/a b.go")
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/files/internal/a b.go", gotPath)
	assert.Equal(t, 10, detail.Lines)
}

func TestRepoStatusError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":"E_REPO_NOT_SCANNED","error":"no scan has completed yet"}`))
	})

	sdk := newTestSDK(t, mux)
	_, err := sdk.Repo.Status(context.Background())
	require.Error(t, err)

	te, ok := AsTransportError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindStatus, te.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Equal(t, CodeRepoNotScanned, te.Code)
}

func TestRepoStatusDecodeFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"root_path": 17`))
	})

	sdk := newTestSDK(t, mux)
	_, err := sdk.Repo.Status(context.Background())
	require.Error(t, err)

	te, ok := AsTransportError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindDecode, te.Kind)
}

func TestRepoStatusNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sdk, err := New(&Config{APIBaseURL: url, Timeout: time.Second})
	require.NoError(t, err)
	defer sdk.Close()

	_, err = sdk.Repo.Status(context.Background())
	require.Error(t, err)

	te, ok := AsTransportError(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindNetwork, te.Kind)
}

func TestTriggerRescanAck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/rescan", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"scan_id":"scan-1","started":true}`))
	})

	sdk := newTestSDK(t, mux)
	ack, err := sdk.Repo.TriggerRescan(context.Background())
	require.NoError(t, err)
	assert.True(t, ack.Started)
	assert.Equal(t, "scan-1", ack.ScanID)
}

func TestUpdateSettingsPatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/v1/settings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"root_path":"/src/repo","debounce_ms":500,"lint_enabled":false}`))
	})

	sdk := newTestSDK(t, mux)
	enabled := false
	settings, err := sdk.Repo.UpdateSettings(context.Background(), &SettingsUpdate{LintEnabled: &enabled})
	require.NoError(t, err)
	assert.False(t, settings.LintEnabled)
	assert.Equal(t, 500, settings.DebounceMs)
}
