package scanner

import (
	"sort"
	"strings"
	"time"

	"github.com/repolens/repolens/internal/lenssdk"
)

// buildGraph assembles the type relationship graph from the per-file type
// info. Edges only target types declared somewhere in the scan; references
// to stdlib or external types are dropped.
func buildGraph(types []typeInfo) *lenssdk.ClassGraph {
	sort.Slice(types, func(i, j int) bool {
		if types[i].Package != types[j].Package {
			return types[i].Package < types[j].Package
		}
		return types[i].Name < types[j].Name
	})

	// a bare name resolves within the same package; qualified names
	// resolve across packages
	declared := map[string]string{}
	for _, t := range types {
		id := t.Package + "." + t.Name
		declared[id] = id
	}

	resolve := func(from typeInfo, ref string) (string, bool) {
		if strings.Contains(ref, ".") {
			id, ok := declared[ref]
			return id, ok
		}
		id, ok := declared[from.Package+"."+ref]
		return id, ok
	}

	graph := &lenssdk.ClassGraph{
		Nodes:       make([]lenssdk.GraphNode, 0, len(types)),
		Edges:       []lenssdk.GraphEdge{},
		GeneratedAt: time.Now().UTC(),
	}

	seenEdges := map[string]bool{}
	addEdge := func(from, to, relation string) {
		if from == to {
			return
		}
		key := from + "\x00" + to + "\x00" + relation
		if seenEdges[key] {
			return
		}
		seenEdges[key] = true
		graph.Edges = append(graph.Edges, lenssdk.GraphEdge{From: from, To: to, Relation: relation})
	}

	for _, t := range types {
		id := t.Package + "." + t.Name
		graph.Nodes = append(graph.Nodes, lenssdk.GraphNode{
			ID:      id,
			Name:    t.Name,
			Package: t.Package,
			Kind:    t.Kind,
			File:    t.File,
		})
		for _, embed := range t.Embeds {
			if to, ok := resolve(t, embed); ok {
				addEdge(id, to, "embeds")
			}
		}
		for _, ref := range t.Refs {
			if to, ok := resolve(t, ref); ok {
				addEdge(id, to, "references")
			}
		}
	}
	return graph
}
