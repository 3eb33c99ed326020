package cycles

import (
	"sort"

	"github.com/ritzau/reach-analyzer/pkg/graph"
	"github.com/ritzau/reach-analyzer/pkg/model"
)

// FindImportCycles finds all circular imports in the dependency graph. Files
// within a cycle are sorted, and cycles are ordered by their first file.
func FindImportCycles(g *graph.DependencyGraph) []model.ImportCycle {
	tarjan := NewTarjanSCC(g.Graph())
	sccs := tarjan.FindSCCs()

	catalog := g.Catalog()
	cycles := make([]model.ImportCycle, 0, len(sccs))
	for _, scc := range sccs {
		// Convert node IDs back to file paths
		files := make([]string, 0, len(scc))
		for _, id := range scc {
			if m := catalog.Get(id); m != nil {
				files = append(files, m.RelPath)
			}
		}
		if len(files) < 2 {
			continue
		}
		sort.Strings(files)
		cycles = append(cycles, model.ImportCycle{Files: files})
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].Files[0] < cycles[j].Files[0]
	})
	return cycles
}
