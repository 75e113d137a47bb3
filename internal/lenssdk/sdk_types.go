package lenssdk

import (
	"fmt"
	"runtime"
	"time"

	"github.com/repolens/repolens/internal/version"
)

const (
	HeaderUserAgent   = "User-Agent"
	HeaderLensVersion = "X-Lens-Version"
)

var LensUserAgent = fmt.Sprintf("RepoLens/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// RepoStatus is the backend's view of the analyzed repository. Read-only to
// the client; mutated only by re-fetch.
type RepoStatus struct {
	RootPath      string     `json:"root_path"`
	WatcherActive bool       `json:"watcher_active"`
	LastFullScan  *time.Time `json:"last_full_scan,omitempty"`
	FilesIndexed  *int       `json:"files_indexed,omitempty"`
	ScanInFlight  bool       `json:"scan_in_flight"`
	ServerVersion string     `json:"server_version"`
}

// Settings are the backend-configurable analysis options.
type Settings struct {
	RootPath    string   `json:"root_path"`
	Exclude     []string `json:"exclude,omitempty"`
	DebounceMs  int      `json:"debounce_ms"`
	LintEnabled bool     `json:"lint_enabled"`
}

// SettingsUpdate is a partial settings write; nil fields are left unchanged.
type SettingsUpdate struct {
	Exclude     *[]string `json:"exclude,omitempty"`
	DebounceMs  *int      `json:"debounce_ms,omitempty"`
	LintEnabled *bool     `json:"lint_enabled,omitempty"`
}

// TreeNode is one entry of the file tree snapshot. Paths are repo-relative
// with forward slashes.
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Dir      bool        `json:"dir"`
	Size     int64       `json:"size,omitempty"`
	Language string      `json:"language,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

// TreeSnapshot is the full file tree plus the scan it was produced by.
type TreeSnapshot struct {
	Root         *TreeNode `json:"root"`
	FilesIndexed int       `json:"files_indexed"`
	ScanID       string    `json:"scan_id"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// TypeDecl is a named type declared in a source file.
type TypeDecl struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"` // "struct", "interface", "alias", ...
	Methods []string `json:"methods,omitempty"`
}

// FileDetail is the per-file analysis result.
type FileDetail struct {
	Path     string        `json:"path"`
	Language string        `json:"language,omitempty"`
	Size     int64         `json:"size"`
	Lines    int           `json:"lines"`
	ModTime  time.Time     `json:"mod_time"`
	Types    []TypeDecl    `json:"types,omitempty"`
	Findings []LintFinding `json:"findings,omitempty"`
}

// GraphNode is a type in the class graph.
type GraphNode struct {
	ID      string `json:"id"` // "<package>.<name>"
	Name    string `json:"name"`
	Package string `json:"package"`
	Kind    string `json:"kind"`
	File    string `json:"file"`
}

// GraphEdge is a relation between two graph nodes.
type GraphEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"` // "embeds", "references"
}

// ClassGraph is the type relationship graph over the scanned sources.
type ClassGraph struct {
	Nodes       []GraphNode `json:"nodes"`
	Edges       []GraphEdge `json:"edges"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// LintFinding is a single lint result.
type LintFinding struct {
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Rule     string `json:"rule"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // "warning", "info"
}

// LintReport collects all findings of the latest scan.
type LintReport struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Findings    []LintFinding `json:"findings"`
}

// RescanAck acknowledges a rescan trigger. The scan itself completes
// asynchronously; completion is announced on the event stream.
type RescanAck struct {
	ScanID  string `json:"scan_id"`
	Started bool   `json:"started"`
}
