package model

// Node types used in exported graphs
const (
	NodeModule   = "module"
	NodeEntry    = "entry"
	NodeCritical = "critical"
	NodeUnused   = "unused"
	NodeMissing  = "missing"
)

// Graph is the export form of a dependency graph, shaped for the HTTP API
// and the JSON report.
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []*Edge          `json:"edges"`
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make([]*Edge, 0),
	}
}

// Node is a file in the exported graph, keyed by relative path.
type Node struct {
	ID       string                 `json:"id"`
	Label    string                 `json:"label"`
	Type     string                 `json:"type"`             // one of the Node* constants
	Parent   string                 `json:"parent,omitempty"` // containing directory
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Edge is a resolved or dangling import.
type Edge struct {
	Source   string                 `json:"source"`
	Target   string                 `json:"target"`
	Type     string                 `json:"type"` // "import" or "missing"
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AddNode adds a node to the graph. If a node with the same ID exists, it updates it.
func (g *Graph) AddNode(node *Node) {
	if node.Metadata == nil {
		node.Metadata = make(map[string]interface{})
	}
	g.Nodes[node.ID] = node
}

// AddEdge adds an edge to the graph.
func (g *Graph) AddEdge(edge *Edge) {
	if edge.Metadata == nil {
		edge.Metadata = make(map[string]interface{})
	}
	g.Edges = append(g.Edges, edge)
}
