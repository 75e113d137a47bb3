package dash

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/repolens/repolens/internal/client/querycache"
	"github.com/repolens/repolens/internal/lenssdk"
)

func (m *Model) View() string {
	var b strings.Builder
	m.renderHeader(&b)
	b.WriteString("\n")

	switch m.route {
	case RouteOverview:
		m.renderOverview(&b)
	case RouteTree:
		m.renderTree(&b)
	case RouteFile:
		m.renderFile(&b)
	case RouteGraph:
		m.renderGraph(&b)
	case RouteLint:
		m.renderLint(&b)
	case RouteSettings:
		m.renderSettings(&b)
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(m.notice)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("1-6/otfgls views · j/k move · enter open · r rescan · q quit"))
	b.WriteString("\n")
	return b.String()
}

// entry resolves a key and renders the shared loading/error states. The
// returned bool says whether the caller should render the value.
func (m *Model) entry(b *strings.Builder, key string) (querycache.Entry, bool) {
	e := m.backend.Cache().Get(key)
	switch e.Status {
	case querycache.StatusIdle, querycache.StatusLoading:
		if e.Value == nil {
			fmt.Fprintf(b, "%s loading...\n", m.spinner.View())
			return e, false
		}
	case querycache.StatusError:
		if e.Value == nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("failed to load: %v", e.Err)))
			b.WriteString("\n")
			return e, false
		}
		// keep showing the previous value, flag the failed refresh
		b.WriteString(errorStyle.Render(fmt.Sprintf("refresh failed: %v", e.Err)))
		b.WriteString("\n")
	}
	if e.Stale {
		b.WriteString(staleStyle.Render("(refreshing)"))
		b.WriteString("\n")
	}
	return e, true
}

func (m *Model) renderOverview(b *strings.Builder) {
	e, ok := m.entry(b, querycache.KeyStatus)
	if !ok {
		return
	}
	status := e.Value.(*lenssdk.RepoStatus)

	fmt.Fprintf(b, "%s%s\n", gray.Render("Repository   "), green.Render(status.RootPath))
	fmt.Fprintf(b, "%s%s\n", gray.Render("Server       "), lightGray.Render(status.ServerVersion))

	watcher := red.Render("inactive")
	if status.WatcherActive {
		watcher = green.Render("active")
	}
	fmt.Fprintf(b, "%s%s\n", gray.Render("Watcher      "), watcher)

	if status.FilesIndexed != nil {
		fmt.Fprintf(b, "%s%d\n", gray.Render("Files        "), *status.FilesIndexed)
	}
	if status.LastFullScan != nil {
		fmt.Fprintf(b, "%s%s\n", gray.Render("Last scan    "), humanize.Time(*status.LastFullScan))
	} else {
		fmt.Fprintf(b, "%s%s\n", gray.Render("Last scan    "), yellow.Render("never"))
	}
	if status.ScanInFlight {
		fmt.Fprintf(b, "\n%s scan in progress\n", m.spinner.View())
	}
}

func (m *Model) renderTree(b *strings.Builder) {
	e, ok := m.entry(b, querycache.KeyTree)
	if !ok {
		return
	}
	snap := e.Value.(*lenssdk.TreeSnapshot)
	fmt.Fprintf(b, "%s %s\n\n", gray.Render("snapshot"), lightGray.Render(humanize.Time(snap.GeneratedAt)))

	files := m.treeFiles()
	if len(files) == 0 {
		b.WriteString(gray.Render("no files indexed"))
		b.WriteString("\n")
		return
	}
	for i, path := range files {
		if i == m.cursor {
			fmt.Fprintf(b, "%s %s\n", cursorStyle.Render(">"), green.Render(path))
		} else {
			fmt.Fprintf(b, "  %s\n", path)
		}
	}
}

func (m *Model) renderFile(b *strings.Builder) {
	if m.filePath == "" {
		b.WriteString(gray.Render("select a file in the tree view first"))
		b.WriteString("\n")
		return
	}
	e, ok := m.entry(b, querycache.FileKey(m.filePath))
	if !ok {
		return
	}
	detail := e.Value.(*lenssdk.FileDetail)

	fmt.Fprintf(b, "%s%s\n", gray.Render("Path      "), green.Render(detail.Path))
	fmt.Fprintf(b, "%s%s\n", gray.Render("Language  "), detail.Language)
	fmt.Fprintf(b, "%s%s, %d lines\n", gray.Render("Size      "), humanize.Bytes(uint64(detail.Size)), detail.Lines)
	fmt.Fprintf(b, "%s%s\n", gray.Render("Modified  "), humanize.Time(detail.ModTime))

	if len(detail.Types) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Types"))
		b.WriteString("\n")
		for _, t := range detail.Types {
			fmt.Fprintf(b, "  %s %s", cyan.Render(t.Kind), t.Name)
			if len(t.Methods) > 0 {
				fmt.Fprintf(b, " %s", gray.Render("("+strings.Join(t.Methods, ", ")+")"))
			}
			b.WriteString("\n")
		}
	}
	if len(detail.Findings) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Findings"))
		b.WriteString("\n")
		for _, f := range detail.Findings {
			fmt.Fprintf(b, "  %s L%d %s\n", yellow.Render(f.Rule), f.Line, f.Message)
		}
	}
}

func (m *Model) renderGraph(b *strings.Builder) {
	e, ok := m.entry(b, querycache.KeyClassGraph)
	if !ok {
		return
	}
	graph := e.Value.(*lenssdk.ClassGraph)
	fmt.Fprintf(b, "%d types, %d relations\n\n", len(graph.Nodes), len(graph.Edges))

	// adjacency as text; grouped by package for scanability
	byPkg := map[string][]lenssdk.GraphNode{}
	for _, n := range graph.Nodes {
		byPkg[n.Package] = append(byPkg[n.Package], n)
	}
	pkgs := make([]string, 0, len(byPkg))
	for pkg := range byPkg {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)

	out := map[string][]lenssdk.GraphEdge{}
	for _, edge := range graph.Edges {
		out[edge.From] = append(out[edge.From], edge)
	}

	for _, pkg := range pkgs {
		b.WriteString(titleStyle.Render(pkg))
		b.WriteString("\n")
		for _, n := range byPkg[pkg] {
			fmt.Fprintf(b, "  %s %s\n", cyan.Render(n.Kind), n.Name)
			for _, edge := range out[n.ID] {
				fmt.Fprintf(b, "    %s %s\n", gray.Render(edge.Relation), edge.To)
			}
		}
	}
}

func (m *Model) renderLint(b *strings.Builder) {
	e, ok := m.entry(b, querycache.KeyLint)
	if !ok {
		return
	}
	report := e.Value.(*lenssdk.LintReport)
	if len(report.Findings) == 0 {
		b.WriteString(green.Render("no findings"))
		b.WriteString("\n")
		return
	}
	fmt.Fprintf(b, "%d findings, %s\n\n", len(report.Findings), humanize.Time(report.GeneratedAt))
	for _, f := range report.Findings {
		sev := yellow
		if f.Severity == "info" {
			sev = gray
		}
		fmt.Fprintf(b, "%s %s:%d %s\n", sev.Render(f.Rule), f.Path, f.Line, f.Message)
	}
}

func (m *Model) renderSettings(b *strings.Builder) {
	e, ok := m.entry(b, querycache.KeySettings)
	if !ok {
		return
	}
	settings := e.Value.(*lenssdk.Settings)

	fmt.Fprintf(b, "%s%s\n", gray.Render("Root        "), settings.RootPath)
	fmt.Fprintf(b, "%s%d ms\n", gray.Render("Debounce    "), settings.DebounceMs)

	lint := red.Render("off")
	if settings.LintEnabled {
		lint = green.Render("on")
	}
	fmt.Fprintf(b, "%s%s\n", gray.Render("Lint        "), lint)

	if len(settings.Exclude) > 0 {
		fmt.Fprintf(b, "%s%s\n", gray.Render("Exclude     "), strings.Join(settings.Exclude, ", "))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("press L to toggle lint"))
	b.WriteString("\n")
}
