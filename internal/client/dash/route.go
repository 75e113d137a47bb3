package dash

import "github.com/repolens/repolens/internal/client/querycache"

// Route identifies a dashboard view.
type Route string

const (
	RouteOverview Route = "overview"
	RouteTree     Route = "tree"
	RouteFile     Route = "file"
	RouteGraph    Route = "graph"
	RouteLint     Route = "lint"
	RouteSettings Route = "settings"
)

// Routes lists every view in display order.
func Routes() []Route {
	return []Route{RouteOverview, RouteTree, RouteFile, RouteGraph, RouteLint, RouteSettings}
}

// ParseRoute resolves a route name. Anything unrecognized lands on the
// overview, never on an error page.
func ParseRoute(s string) Route {
	switch Route(s) {
	case RouteOverview, RouteTree, RouteFile, RouteGraph, RouteLint, RouteSettings:
		return Route(s)
	default:
		return RouteOverview
	}
}

func (r Route) Title() string {
	switch r {
	case RouteOverview:
		return "Overview"
	case RouteTree:
		return "File Tree"
	case RouteFile:
		return "File Detail"
	case RouteGraph:
		return "Class Graph"
	case RouteLint:
		return "Lint"
	case RouteSettings:
		return "Settings"
	default:
		return string(r)
	}
}

// resources returns the cache keys a view reads while mounted. The header
// shows repo status on every route, so status is part of every set. The
// file view's key depends on the selected path.
func (r Route) resources(filePath string) []string {
	switch r {
	case RouteOverview:
		return []string{querycache.KeyStatus, querycache.KeySettings}
	case RouteTree:
		return []string{querycache.KeyStatus, querycache.KeyTree}
	case RouteFile:
		keys := []string{querycache.KeyStatus, querycache.KeyTree}
		if filePath != "" {
			keys = append(keys, querycache.FileKey(filePath))
		}
		return keys
	case RouteGraph:
		return []string{querycache.KeyStatus, querycache.KeyClassGraph}
	case RouteLint:
		return []string{querycache.KeyStatus, querycache.KeyLint}
	case RouteSettings:
		return []string{querycache.KeyStatus, querycache.KeySettings}
	default:
		return []string{querycache.KeyStatus}
	}
}
