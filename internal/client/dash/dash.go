// Package dash is the terminal dashboard: a router over the repo views,
// each of which declares the cache keys it reads and renders whatever the
// cache currently holds. Views never fetch on their own; they watch keys
// and repaint on cache change notifications.
package dash

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/repolens/repolens/internal/client/invalidation"
	"github.com/repolens/repolens/internal/client/querycache"
	"github.com/repolens/repolens/internal/lenssdk"
)

// Backend is the slice of the client app the dashboard needs. *client.App
// implements it.
type Backend interface {
	Cache() *querycache.Cache
	Coordinator() *invalidation.Coordinator
	ConnState() lenssdk.ConnState
	SubscribeState(lenssdk.StateListener) (unsubscribe func())
	EnsureFresh(ctx context.Context, key string) (any, error)
	UpdateSettings(ctx context.Context, update *lenssdk.SettingsUpdate) (*lenssdk.Settings, error)
	TriggerRescan(ctx context.Context) (*lenssdk.RescanAck, error)
}

type cacheChangedMsg struct{ key string }

type connStateMsg struct{ state lenssdk.ConnState }

type refreshedMsg struct{}

type actionDoneMsg struct {
	what string
	err  error
}

// Model is the root bubbletea model: header, active view, footer.
type Model struct {
	backend Backend

	route    Route
	filePath string
	cursor   int

	connState lenssdk.ConnState
	notice    string

	spinner spinner.Model
	width   int
	height  int

	changes chan string
	states  chan lenssdk.ConnState
	unsubs  []func()
}

func NewModel(backend Backend, startRoute string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	m := &Model{
		backend:   backend,
		route:     ParseRoute(startRoute),
		connState: backend.ConnState(),
		spinner:   s,
		changes:   make(chan string, 64),
		states:    make(chan lenssdk.ConnState, 8),
	}

	// drop-on-full: a flooded channel only costs a repaint, and the next
	// notification triggers it anyway
	m.unsubs = append(m.unsubs,
		backend.Cache().Subscribe(func(key string) {
			select {
			case m.changes <- key:
			default:
			}
		}),
		backend.SubscribeState(func(s lenssdk.ConnState) {
			select {
			case m.states <- s:
			default:
			}
		}),
	)

	backend.Coordinator().Watch(m.route.resources(m.filePath)...)
	return m
}

// Close detaches the model from the cache and the event stream.
func (m *Model) Close() {
	m.backend.Coordinator().Unwatch(m.route.resources(m.filePath)...)
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitChange(),
		m.waitState(),
		m.refreshCmd(m.route.resources(m.filePath)),
	)
}

// waitChange turns cache change notifications into tea messages.
func (m *Model) waitChange() tea.Cmd {
	return func() tea.Msg {
		return cacheChangedMsg{key: <-m.changes}
	}
}

func (m *Model) waitState() tea.Cmd {
	return func() tea.Msg {
		return connStateMsg{state: <-m.states}
	}
}

// refreshCmd ensures every given key is fresh. Results land in the cache
// and surface through the change subscription; the returned message only
// unblocks the runtime.
func (m *Model) refreshCmd(keys []string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		for _, key := range keys {
			backend.EnsureFresh(context.Background(), key) //nolint:errcheck // entry carries the error
		}
		return refreshedMsg{}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case cacheChangedMsg:
		// the repaint happens by returning; just rearm the wait
		return m, m.waitChange()

	case connStateMsg:
		m.connState = msg.state
		return m, m.waitState()

	case actionDoneMsg:
		if msg.err != nil {
			m.notice = errorStyle.Render(fmt.Sprintf("%s failed: %v", msg.what, msg.err))
		} else {
			m.notice = green.Render(msg.what + " requested")
		}
		return m, nil

	case refreshedMsg:
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.Close()
		return m, tea.Quit

	case "1", "o":
		return m, m.navigate(RouteOverview)
	case "2", "t":
		return m, m.navigate(RouteTree)
	case "3", "f":
		return m, m.navigate(RouteFile)
	case "4", "g":
		return m, m.navigate(RouteGraph)
	case "5", "l":
		return m, m.navigate(RouteLint)
	case "6", "s":
		return m, m.navigate(RouteSettings)

	case "r":
		m.notice = ""
		return m, func() tea.Msg {
			_, err := m.backend.TriggerRescan(context.Background())
			return actionDoneMsg{what: "rescan", err: err}
		}

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.treeFiles())-1 {
			m.cursor++
		}
		return m, nil

	case "enter":
		if m.route == RouteTree {
			files := m.treeFiles()
			if m.cursor < len(files) {
				m.filePath = files[m.cursor]
				return m, m.navigate(RouteFile)
			}
		}
		return m, nil

	case "L":
		if m.route == RouteSettings {
			return m, m.toggleLintCmd()
		}
		return m, nil
	}

	return m, nil
}

// navigate swaps the active view: the old view's keys stop being watched,
// the new view's keys are watched and brought fresh. Cached values render
// immediately either way.
func (m *Model) navigate(to Route) tea.Cmd {
	if to == m.route {
		return nil
	}
	coord := m.backend.Coordinator()
	coord.Unwatch(m.route.resources(m.filePath)...)
	m.route = to
	m.notice = ""
	keys := to.resources(m.filePath)
	coord.Watch(keys...)
	return m.refreshCmd(keys)
}

// toggleLintCmd flips lint_enabled based on the currently cached settings.
func (m *Model) toggleLintCmd() tea.Cmd {
	e := m.backend.Cache().Get(querycache.KeySettings)
	settings, ok := e.Value.(*lenssdk.Settings)
	if !ok {
		return nil
	}
	enabled := !settings.LintEnabled
	return func() tea.Msg {
		_, err := m.backend.UpdateSettings(context.Background(), &lenssdk.SettingsUpdate{
			LintEnabled: &enabled,
		})
		return actionDoneMsg{what: "settings update", err: err}
	}
}

// treeFiles flattens the cached tree snapshot into selectable file paths.
func (m *Model) treeFiles() []string {
	e := m.backend.Cache().Get(querycache.KeyTree)
	snap, ok := e.Value.(*lenssdk.TreeSnapshot)
	if !ok || snap.Root == nil {
		return nil
	}
	var files []string
	var walk func(n *lenssdk.TreeNode)
	walk = func(n *lenssdk.TreeNode) {
		if !n.Dir {
			files = append(files, n.Path)
			return
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(snap.Root)
	return files
}

// Run starts the dashboard and blocks until the user quits.
func Run(backend Backend, startRoute string) error {
	m := NewModel(backend, startRoute)
	defer m.Close()
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}
