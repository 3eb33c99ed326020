package analysis

import (
	"path"

	"github.com/ritzau/reach-analyzer/pkg/graph"
	"github.com/ritzau/reach-analyzer/pkg/model"
)

// ExportGraph converts a dependency graph and its analysis into the node/edge
// form served by the HTTP API. Missing files appear as nodes of their own,
// linked from each referrer by a "missing" edge.
func ExportGraph(g *graph.DependencyGraph, entries []int64, result *model.AnalysisResult) *model.Graph {
	out := model.NewGraph()

	entrySet := make(map[int64]bool, len(entries))
	for _, id := range entries {
		entrySet[id] = true
	}
	unusedSet := make(map[string]bool, len(result.Unused))
	for _, u := range result.Unused {
		unusedSet[u.Path] = true
	}

	for _, m := range g.Catalog().Modules {
		nodeType := model.NodeModule
		switch {
		case m.Critical:
			nodeType = model.NodeCritical
		case entrySet[m.ID]:
			nodeType = model.NodeEntry
		case unusedSet[m.RelPath]:
			nodeType = model.NodeUnused
		}
		out.AddNode(&model.Node{
			ID:     m.RelPath,
			Label:  m.Name,
			Type:   nodeType,
			Parent: path.Dir(m.RelPath),
			Metadata: map[string]interface{}{
				"ext": m.Ext,
			},
		})
	}

	for _, e := range g.EdgePaths() {
		out.AddEdge(&model.Edge{Source: e[0], Target: e[1], Type: "import"})
	}

	for _, mf := range result.Missing {
		out.AddNode(&model.Node{
			ID:     mf.Path,
			Label:  path.Base(mf.Path),
			Type:   model.NodeMissing,
			Parent: path.Dir(mf.Path),
			Metadata: map[string]interface{}{
				"severity": mf.Severity.String(),
				"rule":     mf.Rule,
			},
		})
		for _, ref := range mf.Referrers {
			out.AddEdge(&model.Edge{
				Source:   ref,
				Target:   mf.Path,
				Type:     "missing",
				Metadata: map[string]interface{}{"literals": mf.Literals},
			})
		}
	}
	return out
}
