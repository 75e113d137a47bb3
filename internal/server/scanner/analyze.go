package scanner

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/repolens/repolens/internal/lenssdk"
)

var languages = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rs":    "rust",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".rb":    "ruby",
	".sh":    "shell",
	".md":    "markdown",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".toml":  "toml",
	".html":  "html",
	".css":   "css",
	".sql":   "sql",
	".proto": "protobuf",
}

func languageOf(rel string) string {
	return languages[strings.ToLower(filepath.Ext(rel))]
}

// typeInfo is the graph-building view of one declared type.
type typeInfo struct {
	Name    string
	Kind    string
	Package string
	File    string
	Methods []string
	Embeds  []string
	Refs    []string
}

// fileAnalysis is the full result of indexing one file.
type fileAnalysis struct {
	Detail *lenssdk.FileDetail
	Types  []typeInfo
}

func analyzeFile(root, rel string, opts Options) (*fileAnalysis, error) {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}

	detail := &lenssdk.FileDetail{
		Path:     rel,
		Language: languageOf(rel),
		Size:     info.Size(),
		ModTime:  info.ModTime().UTC(),
	}
	a := &fileAnalysis{Detail: detail}

	if info.Size() > maxFileSize {
		return a, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	detail.Lines = len(lines)
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		detail.Lines--
	}

	if opts.LintEnabled && detail.Language != "" {
		detail.Findings = lintLines(rel, lines)
	}

	if detail.Language == "go" {
		a.Types = parseGoTypes(rel, data)
		for _, t := range a.Types {
			decl := lenssdk.TypeDecl{Name: t.Name, Kind: t.Kind, Methods: t.Methods}
			detail.Types = append(detail.Types, decl)
		}
	}
	return a, nil
}

const (
	ruleLongLine   = "long-line"
	ruleTrailingWS = "trailing-whitespace"
	ruleTodo       = "todo-marker"

	maxLineLength = 120
)

// lintLines applies the built-in line heuristics. Findings carry 1-based
// line numbers.
func lintLines(rel string, lines []string) []lenssdk.LintFinding {
	var findings []lenssdk.LintFinding
	for i, line := range lines {
		n := i + 1
		if len(line) > maxLineLength {
			findings = append(findings, lenssdk.LintFinding{
				Path: rel, Line: n, Rule: ruleLongLine,
				Message:  fmt.Sprintf("line is %d characters, max %d", len(line), maxLineLength),
				Severity: "warning",
			})
		}
		if trimmed := strings.TrimRight(line, " \t"); trimmed != line {
			findings = append(findings, lenssdk.LintFinding{
				Path: rel, Line: n, Rule: ruleTrailingWS,
				Message:  "trailing whitespace",
				Severity: "info",
			})
		}
		if idx := strings.Index(line, "TODO"); idx >= 0 {
			findings = append(findings, lenssdk.LintFinding{
				Path: rel, Line: n, Rule: ruleTodo,
				Message:  strings.TrimSpace(line[idx:]),
				Severity: "info",
			})
		}
	}
	return findings
}

// parseGoTypes extracts declared types, their methods and the identifiers
// they reference. Parse errors are not findings; a half-written file simply
// contributes no types until it parses again.
func parseGoTypes(rel string, src []byte) []typeInfo {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, rel, src, parser.SkipObjectResolution)
	if err != nil {
		return nil
	}

	pkg := f.Name.Name
	byName := map[string]*typeInfo{}
	var order []string

	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			t := &typeInfo{
				Name:    ts.Name.Name,
				Kind:    typeKind(ts),
				Package: pkg,
				File:    rel,
			}
			collectTypeRefs(ts.Type, t)
			byName[t.Name] = t
			order = append(order, t.Name)
		}
	}

	// attach methods to their receiver's type
	for _, decl := range f.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || len(fd.Recv.List) == 0 {
			continue
		}
		recv := receiverName(fd.Recv.List[0].Type)
		if t, ok := byName[recv]; ok {
			t.Methods = append(t.Methods, fd.Name.Name)
		}
	}

	types := make([]typeInfo, 0, len(order))
	for _, name := range order {
		t := byName[name]
		sort.Strings(t.Methods)
		types = append(types, *t)
	}
	return types
}

func typeKind(ts *ast.TypeSpec) string {
	if ts.Assign.IsValid() {
		return "alias"
	}
	switch ts.Type.(type) {
	case *ast.StructType:
		return "struct"
	case *ast.InterfaceType:
		return "interface"
	case *ast.FuncType:
		return "func"
	case *ast.MapType, *ast.ArrayType, *ast.ChanType:
		return "composite"
	default:
		return "named"
	}
}

// collectTypeRefs fills Embeds (anonymous struct fields, embedded
// interfaces) and Refs (every other named type mentioned).
func collectTypeRefs(expr ast.Expr, t *typeInfo) {
	switch n := expr.(type) {
	case *ast.StructType:
		for _, field := range n.Fields.List {
			name := baseTypeName(field.Type)
			if name == "" {
				continue
			}
			if len(field.Names) == 0 {
				t.Embeds = append(t.Embeds, name)
			} else {
				t.Refs = append(t.Refs, name)
			}
		}
	case *ast.InterfaceType:
		for _, method := range n.Methods.List {
			if len(method.Names) == 0 {
				if name := baseTypeName(method.Type); name != "" {
					t.Embeds = append(t.Embeds, name)
				}
			}
		}
	default:
		if name := baseTypeName(expr); name != "" {
			t.Refs = append(t.Refs, name)
		}
	}
}

// baseTypeName unwraps pointers, slices and maps down to the named type,
// if any.
func baseTypeName(expr ast.Expr) string {
	switch n := expr.(type) {
	case *ast.Ident:
		return n.Name
	case *ast.SelectorExpr:
		if pkg, ok := n.X.(*ast.Ident); ok {
			return pkg.Name + "." + n.Sel.Name
		}
		return n.Sel.Name
	case *ast.StarExpr:
		return baseTypeName(n.X)
	case *ast.ArrayType:
		return baseTypeName(n.Elt)
	case *ast.MapType:
		return baseTypeName(n.Value)
	case *ast.IndexExpr:
		return baseTypeName(n.X)
	}
	return ""
}

func receiverName(expr ast.Expr) string {
	switch n := expr.(type) {
	case *ast.StarExpr:
		return receiverName(n.X)
	case *ast.IndexExpr:
		return receiverName(n.X)
	case *ast.Ident:
		return n.Name
	}
	return ""
}
