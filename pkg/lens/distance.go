package lens

import (
	"sort"
	"strings"

	"github.com/ritzau/reach-analyzer/pkg/model"
)

// Unreachable is the distance of a node no selected node connects to
const Unreachable = -1

// distanceQueueNode represents a node in the BFS queue
type distanceQueueNode struct {
	nodeID   string
	distance int
}

// expandDirectories replaces a selected directory (a node Parent such as
// "src/app") with every file directly inside it. Selected files pass through.
func expandDirectories(selected []string, g *model.Graph) []string {
	expanded := make(map[string]bool)

	for _, id := range selected {
		if _, ok := g.Nodes[id]; ok {
			expanded[id] = true
			continue
		}

		dir := strings.TrimSuffix(id, "/")
		for nodeID, node := range g.Nodes {
			if node.Parent == dir {
				expanded[nodeID] = true
			}
		}
	}

	result := make([]string, 0, len(expanded))
	for id := range expanded {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// ComputeDistances calculates the shortest undirected distance from each node
// to the nearest selected node. Nodes that cannot be reached map to
// Unreachable.
func ComputeDistances(g *model.Graph, selected []string) map[string]int {
	distances := make(map[string]int, len(g.Nodes))

	adjacency := buildAdjacencyList(g)

	queue := []distanceQueueNode{}
	for _, id := range expandDirectories(selected, g) {
		distances[id] = 0
		queue = append(queue, distanceQueueNode{nodeID: id, distance: 0})
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, neighbor := range adjacency[current.nodeID] {
			if _, seen := distances[neighbor]; !seen {
				distances[neighbor] = current.distance + 1
				queue = append(queue, distanceQueueNode{nodeID: neighbor, distance: current.distance + 1})
			}
		}
	}

	for id := range g.Nodes {
		if _, ok := distances[id]; !ok {
			distances[id] = Unreachable
		}
	}
	return distances
}

// buildAdjacencyList creates an undirected adjacency list from graph edges
func buildAdjacencyList(g *model.Graph) map[string][]string {
	adjacency := make(map[string][]string)
	for _, edge := range g.Edges {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		adjacency[edge.Target] = append(adjacency[edge.Target], edge.Source)
	}
	return adjacency
}

// Neighborhood returns the subgraph within depth hops of the selected nodes,
// with each node's distance recorded in its metadata. A negative depth keeps
// everything connected to the selection. Nodes and edges are copies.
func Neighborhood(g *model.Graph, selected []string, depth int) *model.Graph {
	distances := ComputeDistances(g, selected)

	within := func(id string) bool {
		d, ok := distances[id]
		if !ok || d == Unreachable {
			return false
		}
		return depth < 0 || d <= depth
	}

	out := model.NewGraph()
	for id, n := range g.Nodes {
		if !within(id) {
			continue
		}
		node := *n
		node.Metadata = make(map[string]interface{}, len(n.Metadata)+1)
		for k, v := range n.Metadata {
			node.Metadata[k] = v
		}
		node.Metadata["distance"] = distances[id]
		out.AddNode(&node)
	}

	for _, e := range g.Edges {
		if !within(e.Source) || !within(e.Target) {
			continue
		}
		edge := *e
		out.AddEdge(&edge)
	}
	sort.Slice(out.Edges, func(i, j int) bool {
		return edgeKey(out.Edges[i]) < edgeKey(out.Edges[j])
	})
	return out
}
