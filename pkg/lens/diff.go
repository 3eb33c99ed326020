package lens

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/ritzau/reach-analyzer/pkg/model"
)

// GraphDiff represents the difference between two graph states
type GraphDiff struct {
	Hash          string        `json:"hash"` // Hash of the new graph
	AddedNodes    []*model.Node `json:"addedNodes"`
	RemovedNodes  []string      `json:"removedNodes"`  // Node IDs
	ModifiedNodes []*model.Node `json:"modifiedNodes"` // Nodes whose type or parent changed
	AddedEdges    []*model.Edge `json:"addedEdges"`
	RemovedEdges  []string      `json:"removedEdges"` // Edge keys (source|target|type)
	FullGraph     bool          `json:"fullGraph"`    // True if this is a full graph, not a diff
}

// Snapshot is an indexed graph state kept for diffing
type Snapshot struct {
	Hash  string
	Nodes map[string]*model.Node
	Edges map[string]*model.Edge
}

// CreateSnapshot indexes a graph and hashes its JSON form
func CreateSnapshot(g *model.Graph) *Snapshot {
	snapshot := &Snapshot{
		Nodes: make(map[string]*model.Node, len(g.Nodes)),
		Edges: make(map[string]*model.Edge, len(g.Edges)),
	}
	for id, node := range g.Nodes {
		snapshot.Nodes[id] = node
	}
	for _, edge := range g.Edges {
		snapshot.Edges[edgeKey(edge)] = edge
	}
	snapshot.Hash = Hash(g)
	return snapshot
}

// Hash fingerprints a graph. encoding/json sorts map keys, so equal graphs
// hash equally.
func Hash(g *model.Graph) string {
	data, err := json.Marshal(g)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// ComputeDiff computes the difference between a snapshot and a new graph.
// Without a snapshot the whole graph is returned as added.
func ComputeDiff(old *Snapshot, g *model.Graph) *GraphDiff {
	diff := &GraphDiff{
		Hash:          Hash(g),
		AddedNodes:    make([]*model.Node, 0),
		RemovedNodes:  make([]string, 0),
		ModifiedNodes: make([]*model.Node, 0),
		AddedEdges:    make([]*model.Edge, 0),
		RemovedEdges:  make([]string, 0),
	}

	if old == nil {
		diff.FullGraph = true
		for _, node := range g.Nodes {
			diff.AddedNodes = append(diff.AddedNodes, node)
		}
		diff.AddedEdges = append(diff.AddedEdges, g.Edges...)
		diff.sort()
		return diff
	}

	newEdges := make(map[string]*model.Edge, len(g.Edges))
	for _, edge := range g.Edges {
		newEdges[edgeKey(edge)] = edge
	}

	for id, node := range g.Nodes {
		if prev, ok := old.Nodes[id]; ok {
			if !nodesEqual(prev, node) {
				diff.ModifiedNodes = append(diff.ModifiedNodes, node)
			}
		} else {
			diff.AddedNodes = append(diff.AddedNodes, node)
		}
	}
	for id := range old.Nodes {
		if _, ok := g.Nodes[id]; !ok {
			diff.RemovedNodes = append(diff.RemovedNodes, id)
		}
	}

	for key, edge := range newEdges {
		if _, ok := old.Edges[key]; !ok {
			diff.AddedEdges = append(diff.AddedEdges, edge)
		}
	}
	for key := range old.Edges {
		if _, ok := newEdges[key]; !ok {
			diff.RemovedEdges = append(diff.RemovedEdges, key)
		}
	}

	diff.sort()
	return diff
}

// Empty reports whether nothing changed
func (d *GraphDiff) Empty() bool {
	return !d.FullGraph &&
		len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 && len(d.ModifiedNodes) == 0 &&
		len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

func (d *GraphDiff) sort() {
	sort.Slice(d.AddedNodes, func(i, j int) bool { return d.AddedNodes[i].ID < d.AddedNodes[j].ID })
	sort.Slice(d.ModifiedNodes, func(i, j int) bool { return d.ModifiedNodes[i].ID < d.ModifiedNodes[j].ID })
	sort.Strings(d.RemovedNodes)
	sort.Slice(d.AddedEdges, func(i, j int) bool { return edgeKey(d.AddedEdges[i]) < edgeKey(d.AddedEdges[j]) })
	sort.Strings(d.RemovedEdges)
}

// edgeKey creates a unique key for an edge
func edgeKey(e *model.Edge) string {
	return fmt.Sprintf("%s|%s|%s", e.Source, e.Target, e.Type)
}

// nodesEqual compares the structural fields of two nodes. Severity changes of
// missing nodes count as modifications.
func nodesEqual(a, b *model.Node) bool {
	return a.ID == b.ID &&
		a.Label == b.Label &&
		a.Type == b.Type &&
		a.Parent == b.Parent &&
		fmt.Sprint(a.Metadata["severity"]) == fmt.Sprint(b.Metadata["severity"])
}
