package cycles

import (
	"sort"

	"gonum.org/v1/gonum/graph"
)

// TarjanSCC finds all strongly connected components using Tarjan's algorithm.
// The traversal keeps its own frame stack, so graph depth is bounded by
// memory rather than the goroutine stack.
type TarjanSCC struct {
	graph   graph.Directed
	index   int
	stack   []int64
	onStack map[int64]bool
	indices map[int64]int
	lowLink map[int64]int
	sccs    [][]int64
}

// frame is one suspended strongConnect call
type frame struct {
	node       int64
	successors []int64
	next       int
}

// NewTarjanSCC creates a new Tarjan SCC finder
func NewTarjanSCC(g graph.Directed) *TarjanSCC {
	return &TarjanSCC{
		graph:   g,
		onStack: make(map[int64]bool),
		indices: make(map[int64]int),
		lowLink: make(map[int64]int),
	}
}

// FindSCCs returns every strongly connected component with more than one
// node. Nodes and successors are visited in ID order, so the result is
// stable for a given graph.
func (t *TarjanSCC) FindSCCs() [][]int64 {
	for _, id := range sortedIDs(t.graph.Nodes()) {
		if _, visited := t.indices[id]; !visited {
			t.strongConnect(id)
		}
	}
	return t.sccs
}

func (t *TarjanSCC) strongConnect(root int64) {
	frames := []*frame{t.visit(root)}

	for len(frames) > 0 {
		f := frames[len(frames)-1]

		if f.next < len(f.successors) {
			succ := f.successors[f.next]
			f.next++

			if _, visited := t.indices[succ]; !visited {
				frames = append(frames, t.visit(succ))
			} else if t.onStack[succ] {
				t.lowLink[f.node] = min(t.lowLink[f.node], t.indices[succ])
			}
			continue
		}

		// All successors done: close the frame
		frames = frames[:len(frames)-1]
		if len(frames) > 0 {
			parent := frames[len(frames)-1].node
			t.lowLink[parent] = min(t.lowLink[parent], t.lowLink[f.node])
		}

		if t.lowLink[f.node] == t.indices[f.node] {
			t.popComponent(f.node)
		}
	}
}

func (t *TarjanSCC) visit(id int64) *frame {
	t.indices[id] = t.index
	t.lowLink[id] = t.index
	t.index++

	t.stack = append(t.stack, id)
	t.onStack[id] = true

	return &frame{node: id, successors: sortedIDs(t.graph.From(id))}
}

func (t *TarjanSCC) popComponent(root int64) {
	var scc []int64
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		scc = append(scc, w)
		if w == root {
			break
		}
	}
	// Only add SCCs with more than one node (cycles)
	if len(scc) > 1 {
		t.sccs = append(t.sccs, scc)
	}
}

func sortedIDs(nodes graph.Nodes) []int64 {
	var ids []int64
	for nodes.Next() {
		ids = append(ids, nodes.Node().ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
