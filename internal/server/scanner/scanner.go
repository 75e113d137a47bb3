// Package scanner walks the repository, indexes every source file and
// derives the tree snapshot, the class graph and the lint report served by
// the backend.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/repolens/repolens/internal/lenssdk"
	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"
)

// directories never worth indexing, gitignore or not
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	".repolens":    true,
}

const maxFileSize = 4 << 20 // files larger than this are indexed but not parsed

// Options control a single scan.
type Options struct {
	// ScanID stamps the snapshot; generated when empty. Callers that
	// announce the scan before it runs pass the ID they announced.
	ScanID      string
	Exclude     []string
	LintEnabled bool
}

// Result is the complete output of one scan.
type Result struct {
	ScanID      string
	Tree        *lenssdk.TreeSnapshot
	Files       map[string]*lenssdk.FileDetail
	Graph       *lenssdk.ClassGraph
	Lint        *lenssdk.LintReport
	CompletedAt time.Time
	Duration    time.Duration
}

// Scan walks root and produces a full index. The walk honors the repo's
// .gitignore plus the configured exclude patterns.
func Scan(ctx context.Context, root string, opts Options) (*Result, error) {
	start := time.Now()
	scanID := opts.ScanID
	if scanID == "" {
		scanID = uuid.NewString()
	}
	slog.Info("scan start", "scanId", scanID, "root", root)

	matcher := loadIgnore(root)

	var paths []string
	rootNode := &lenssdk.TreeNode{Name: filepath.Base(root), Path: "", Dir: true}
	nodes := map[string]*lenssdk.TreeNode{"": rootNode}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skipDirs[d.Name()] || excluded(rel+"/", matcher, opts.Exclude) {
				return fs.SkipDir
			}
			nodes[rel] = &lenssdk.TreeNode{Name: d.Name(), Path: rel, Dir: true}
			return nil
		}
		if !d.Type().IsRegular() || excluded(rel, matcher, opts.Exclude) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil // raced with a delete; skip
		}
		nodes[rel] = &lenssdk.TreeNode{
			Name:     d.Name(),
			Path:     rel,
			Size:     info.Size(),
			Language: languageOf(rel),
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan walk failed: %w", err)
	}

	linkTree(nodes, rootNode)

	files, types, err := analyzeAll(ctx, root, paths, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ScanID: scanID,
		Tree: &lenssdk.TreeSnapshot{
			Root:         rootNode,
			FilesIndexed: len(paths),
			ScanID:       scanID,
			GeneratedAt:  time.Now().UTC(),
		},
		Files:       files,
		Graph:       buildGraph(types),
		Lint:        collectLint(files),
		CompletedAt: time.Now().UTC(),
		Duration:    time.Since(start),
	}

	slog.Info("scan done", "scanId", scanID, "files", len(paths), "took", result.Duration)
	return result, nil
}

// AnalyzeOne re-indexes a single file, e.g. after a watcher notification.
func AnalyzeOne(root, rel string, opts Options) (*lenssdk.FileDetail, error) {
	a, err := analyzeFile(root, rel, opts)
	if err != nil {
		return nil, err
	}
	return a.Detail, nil
}

func loadIgnore(root string) *ignore.GitIgnore {
	matcher, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("gitignore unreadable, ignoring", "error", err)
		}
		return nil
	}
	return matcher
}

func excluded(rel string, matcher *ignore.GitIgnore, patterns []string) bool {
	if matcher != nil && matcher.MatchesPath(rel) {
		return true
	}
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, strings.TrimSuffix(rel, "/")); ok {
			return true
		}
	}
	return false
}

// linkTree attaches every node to its parent, directories first, then by
// name, so snapshots are stable across scans.
func linkTree(nodes map[string]*lenssdk.TreeNode, root *lenssdk.TreeNode) {
	for rel, node := range nodes {
		if rel == "" {
			continue
		}
		parentRel := ""
		if i := strings.LastIndex(rel, "/"); i >= 0 {
			parentRel = rel[:i]
		}
		if parent, ok := nodes[parentRel]; ok {
			parent.Children = append(parent.Children, node)
		}
	}
	var sortChildren func(n *lenssdk.TreeNode)
	sortChildren = func(n *lenssdk.TreeNode) {
		sort.Slice(n.Children, func(i, j int) bool {
			a, b := n.Children[i], n.Children[j]
			if a.Dir != b.Dir {
				return a.Dir
			}
			return a.Name < b.Name
		})
		for _, child := range n.Children {
			sortChildren(child)
		}
	}
	sortChildren(root)
}

func analyzeAll(ctx context.Context, root string, paths []string, opts Options) (map[string]*lenssdk.FileDetail, []typeInfo, error) {
	files := make(map[string]*lenssdk.FileDetail, len(paths))
	var types []typeInfo
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, rel := range paths {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			a, err := analyzeFile(root, rel, opts)
			if err != nil {
				// a file vanishing mid-scan is not a scan failure
				slog.Warn("analyze failed", "path", rel, "error", err)
				return nil
			}
			mu.Lock()
			files[rel] = a.Detail
			types = append(types, a.Types...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("scan analyze failed: %w", err)
	}
	return files, types, nil
}

func collectLint(files map[string]*lenssdk.FileDetail) *lenssdk.LintReport {
	report := &lenssdk.LintReport{
		GeneratedAt: time.Now().UTC(),
		Findings:    []lenssdk.LintFinding{},
	}
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		report.Findings = append(report.Findings, files[path].Findings...)
	}
	return report
}
