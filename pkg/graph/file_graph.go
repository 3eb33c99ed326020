package graph

import (
	"sort"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/ritzau/reach-analyzer/pkg/model"
)

// DependencyGraph is the module-level import graph. Node IDs are catalog IDs,
// so every node and every edge target is a catalogued module.
type DependencyGraph struct {
	graph   *simple.DirectedGraph
	catalog *model.Catalog
	edges   int
}

// NewDependencyGraph creates a graph with one node per catalogued module and
// no edges
func NewDependencyGraph(catalog *model.Catalog) *DependencyGraph {
	g := &DependencyGraph{
		graph:   simple.NewDirectedGraph(),
		catalog: catalog,
	}
	for _, m := range catalog.Modules {
		g.graph.AddNode(simple.Node(m.ID))
	}
	return g
}

// AddDependency adds an edge from one module to another. Self-loops, repeated
// edges and unknown IDs are ignored; it reports whether an edge was added.
func (g *DependencyGraph) AddDependency(from, to int64) bool {
	if from == to {
		return false
	}
	if g.graph.Node(from) == nil || g.graph.Node(to) == nil {
		return false
	}
	if g.graph.HasEdgeFromTo(from, to) {
		return false
	}
	g.graph.SetEdge(g.graph.NewEdge(g.graph.Node(from), g.graph.Node(to)))
	g.edges++
	return true
}

// Catalog returns the catalog the graph was built over
func (g *DependencyGraph) Catalog() *model.Catalog {
	return g.catalog
}

// Graph returns the underlying directed graph
func (g *DependencyGraph) Graph() *simple.DirectedGraph {
	return g.graph
}

// EdgeCount returns the number of distinct edges
func (g *DependencyGraph) EdgeCount() int {
	return g.edges
}

// Dependencies returns the IDs the given module imports, sorted
func (g *DependencyGraph) Dependencies(id int64) []int64 {
	if g.graph.Node(id) == nil {
		return nil
	}
	return sortedIDs(g.graph.From(id))
}

// Dependents returns the IDs of modules importing the given module, sorted
func (g *DependencyGraph) Dependents(id int64) []int64 {
	if g.graph.Node(id) == nil {
		return nil
	}
	return sortedIDs(g.graph.To(id))
}

// Edges returns all edges as [from, to] pairs in ID order
func (g *DependencyGraph) Edges() [][2]int64 {
	edges := make([][2]int64, 0, g.edges)
	for _, m := range g.catalog.Modules {
		for _, to := range g.Dependencies(m.ID) {
			edges = append(edges, [2]int64{m.ID, to})
		}
	}
	return edges
}

// EdgePaths returns all edges as [from, to] relative paths
func (g *DependencyGraph) EdgePaths() [][2]string {
	ids := g.Edges()
	edges := make([][2]string, len(ids))
	for i, e := range ids {
		edges[i] = [2]string{g.catalog.Get(e[0]).RelPath, g.catalog.Get(e[1]).RelPath}
	}
	return edges
}

func sortedIDs(it gonum.Nodes) []int64 {
	var ids []int64
	if n := it.Len(); n > 0 {
		ids = make([]int64, 0, n)
	}
	for it.Next() {
		ids = append(ids, it.Node().ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
