// Package client wires the SDK, the query cache and the invalidation
// coordinator into the dashboard application.
package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/repolens/repolens/internal/client/config"
	"github.com/repolens/repolens/internal/client/invalidation"
	"github.com/repolens/repolens/internal/client/querycache"
	"github.com/repolens/repolens/internal/lenssdk"
)

// App owns the tab-lifetime singletons: one SDK (with its event stream
// connection), one query cache, one coordinator.
type App struct {
	config *config.Config
	sdk    *lenssdk.SDK
	cache  *querycache.Cache
	coord  *invalidation.Coordinator
}

func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sdk, err := lenssdk.New(cfg.SDKConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create sdk: %w", err)
	}

	app := &App{
		config: cfg,
		sdk:    sdk,
		cache:  querycache.New(),
	}
	app.coord = invalidation.New(app.cache, sdk.Events, app.refreshKey)
	return app, nil
}

// Start connects the event stream and attaches the invalidation bridge.
// Non-blocking; pair with Stop.
func (a *App) Start() {
	slog.Info("repolens client start", "backend", a.sdk.BaseURL())
	a.coord.Start()
	a.sdk.Events.Start()
}

// Stop tears down the event stream and releases the SDK.
func (a *App) Stop() {
	a.coord.Stop()
	a.sdk.Close()
	slog.Info("repolens client stop")
}

func (a *App) Cache() *querycache.Cache { return a.cache }

func (a *App) Coordinator() *invalidation.Coordinator { return a.coord }

// ConnState exposes the event stream state for the header's connectivity
// indicator.
func (a *App) ConnState() lenssdk.ConnState { return a.sdk.Events.State() }

// SubscribeState forwards connection state transitions, e.g. to the header.
func (a *App) SubscribeState(fn lenssdk.StateListener) func() {
	return a.sdk.Events.SubscribeState(fn)
}

// FetcherFor returns the transport call backing a resource key.
func (a *App) FetcherFor(key string) querycache.Fetcher {
	switch key {
	case querycache.KeyStatus:
		return func(ctx context.Context) (any, error) { return a.sdk.Repo.Status(ctx) }
	case querycache.KeySettings:
		return func(ctx context.Context) (any, error) { return a.sdk.Repo.Settings(ctx) }
	case querycache.KeyTree:
		return func(ctx context.Context) (any, error) { return a.sdk.Repo.Tree(ctx) }
	case querycache.KeyClassGraph:
		return func(ctx context.Context) (any, error) { return a.sdk.Repo.ClassGraph(ctx) }
	case querycache.KeyLint:
		return func(ctx context.Context) (any, error) { return a.sdk.Repo.Lint(ctx) }
	}
	if querycache.IsFileKey(key) {
		path := querycache.FilePath(key)
		return func(ctx context.Context) (any, error) { return a.sdk.Repo.File(ctx, path) }
	}
	return func(ctx context.Context) (any, error) {
		return nil, fmt.Errorf("unknown resource key: %s", key)
	}
}

// EnsureFresh resolves a resource key through the cache.
func (a *App) EnsureFresh(ctx context.Context, key string) (any, error) {
	return a.cache.EnsureFresh(ctx, key, a.FetcherFor(key))
}

func (a *App) refreshKey(ctx context.Context, key string) {
	if _, err := a.EnsureFresh(ctx, key); err != nil {
		slog.Warn("refresh failed", "key", key, "error", err)
	}
}

// UpdateSettings writes settings to the backend, seeds the cache with the
// response and invalidates status, which depends on them.
func (a *App) UpdateSettings(ctx context.Context, update *lenssdk.SettingsUpdate) (*lenssdk.Settings, error) {
	settings, err := a.sdk.Repo.UpdateSettings(ctx, update)
	if err != nil {
		return nil, err
	}
	a.cache.SetValue(querycache.KeySettings, settings)
	a.cache.Invalidate(querycache.KeyStatus)
	return settings, nil
}

// TriggerRescan asks the backend for a rescan. It deliberately does not
// touch the cache: fresh data arrives via the resulting stream events.
func (a *App) TriggerRescan(ctx context.Context) (*lenssdk.RescanAck, error) {
	return a.sdk.Repo.TriggerRescan(ctx)
}
