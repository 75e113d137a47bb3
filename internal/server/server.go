// Package server is the RepoLens dev backend: it scans a repository, keeps
// the index current through a filesystem watcher, and serves the analysis
// API plus the websocket event stream the dashboard consumes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/repolens/repolens/internal/lensmsg"
	"github.com/repolens/repolens/internal/lenssdk"
	"github.com/repolens/repolens/internal/server/scanner"
	"github.com/repolens/repolens/internal/server/watch"
	"github.com/repolens/repolens/internal/server/ws"
	"github.com/repolens/repolens/internal/version"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	config   *Config
	settings *SettingsStore
	hub      *ws.Hub
	watcher  *watch.Watcher
	server   *http.Server

	mu           sync.RWMutex
	result       *scanner.Result
	scanInFlight bool
	activeScanID string
}

func New(config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	settings, err := NewSettingsStore(config.SettingsPath, config.RootPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   config,
		settings: settings,
	}
	s.hub = ws.NewHub(func() *lensmsg.Event {
		return lensmsg.NewSystemEvent(version.Version, s.watcher.Active())
	})
	s.watcher = watch.New(config.RootPath, debounceDuration(settings.Get().DebounceMs), s.onChange)
	s.server = &http.Server{
		Addr:    config.Addr,
		Handler: s.setupRoutes(),
	}
	return s, nil
}

// Start runs the backend until ctx is cancelled: hub, watcher, the initial
// scan and the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("repolens server start", "addr", s.config.Addr, "root", s.config.RootPath)
	defer slog.Info("repolens server stop")

	go s.hub.Run(ctx)

	if err := s.watcher.Start(); err != nil {
		slog.Warn("watcher unavailable, live updates disabled", "error", err)
	}

	s.Rescan("startup")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.Stop(context.Background())
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.watcher.Stop()
	s.hub.Shutdown(shutdownCtx)

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Rescan starts a full scan unless one is already running. It returns the
// scan ID and whether this call started it. The scan itself runs async;
// completion is announced on the event stream.
func (s *Server) Rescan(trigger string) (scanID string, started bool) {
	s.mu.Lock()
	if s.scanInFlight {
		id := s.activeScanID
		s.mu.Unlock()
		return id, false
	}
	scanID = uuid.NewString()
	s.scanInFlight = true
	s.activeScanID = scanID
	s.mu.Unlock()

	slog.Info("rescan triggered", "scanId", scanID, "trigger", trigger)
	s.hub.Broadcast(lensmsg.NewRescanStartedEvent(scanID))

	go s.runScan(scanID)
	return scanID, true
}

func (s *Server) runScan(scanID string) {
	settings := s.settings.Get()
	result, err := scanner.Scan(context.Background(), s.config.RootPath, scanner.Options{
		ScanID:      scanID,
		Exclude:     settings.Exclude,
		LintEnabled: settings.LintEnabled,
	})

	s.mu.Lock()
	s.scanInFlight = false
	s.activeScanID = ""
	if err == nil {
		s.result = result
	}
	s.mu.Unlock()

	if err != nil {
		slog.Error("scan failed", "scanId", scanID, "error", err)
		return
	}

	s.hub.Broadcast(lensmsg.NewRescanCompletedEvent(scanID, result.Tree.FilesIndexed, result.Duration))
}

// onChange receives debounced watcher changes: each is announced on the
// stream, and a rescan brings the index back in line. The changed file is
// re-analyzed inline so its detail is already fresh for the next fetch.
func (s *Server) onChange(change watch.Change) {
	slog.Debug("file change", "path", change.Path, "op", change.Op)
	s.hub.Broadcast(lensmsg.NewFileChangedEvent(change.Path, change.Op))

	if change.Op != "remove" && change.Op != "rename" {
		settings := s.settings.Get()
		detail, err := scanner.AnalyzeOne(s.config.RootPath, change.Path, scanner.Options{
			Exclude:     settings.Exclude,
			LintEnabled: settings.LintEnabled,
		})
		if err == nil {
			// copy-on-write: handlers hold the old snapshot without a lock
			s.mu.Lock()
			if s.result != nil {
				files := make(map[string]*lenssdk.FileDetail, len(s.result.Files)+1)
				for k, v := range s.result.Files {
					files[k] = v
				}
				files[change.Path] = detail
				updated := *s.result
				updated.Files = files
				s.result = &updated
			}
			s.mu.Unlock()
		}
	}

	s.Rescan("watcher")
}

func (s *Server) currentResult() *scanner.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

func (s *Server) rescanInFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanInFlight
}

func debounceDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
