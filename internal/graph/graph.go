// Package graph holds the deduplicated account/transaction graph built
// during traversal.
package graph

import (
	"fmt"
	"sync"
)

// NodeType discriminates graph nodes.
type NodeType string

const (
	NodeAccount     NodeType = "account"
	NodeTransaction NodeType = "transaction"
)

// AccountStatus tracks an account node's fetch lifecycle. The only legal
// transition is pending → loaded.
type AccountStatus string

const (
	StatusPending AccountStatus = "pending"
	StatusLoaded  AccountStatus = "loaded"
)

// Node is either an account (ID = address) or a transaction
// (ID = signature).
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`

	// Account fields.
	Status           AccountStatus `json:"status,omitempty"`
	TransactionCount int           `json:"transactionCount,omitempty"`

	// Transaction fields.
	Success   bool  `json:"success,omitempty"`
	BlockTime int64 `json:"blockTime,omitempty"`
}

// Edge links two nodes. Transfer edges additionally carry an amount and
// an optional mint.
type Edge struct {
	ID       string  `json:"id"`
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Transfer bool    `json:"transfer,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Mint     string  `json:"mint,omitempty"`
}

// EdgeID builds the deterministic composite id guaranteeing idempotent
// insertion regardless of discovery order.
func EdgeID(source, target string) string {
	return source + "-" + target
}

// TransferEdgeID builds the id for a transfer edge; the mint keeps
// transfers of different tokens between the same endpoints distinct.
func TransferEdgeID(source, target, mint string) string {
	id := source + "-" + target + "-transfer"
	if mint != "" {
		id += "-" + mint
	}
	return id
}

// Graph is the node/edge set. All mutation passes through insertion
// guards so each logical entity exists at most once; nodes are never
// deleted during a session.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string]*Edge
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[string]*Edge),
	}
}

// AddAccountNode inserts a pending account node. Returns false when the
// id was already processed (insertion is a no-op then).
func (g *Graph) AddAccountNode(address string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[address]; ok {
		return false
	}
	g.nodes[address] = &Node{
		ID:     address,
		Type:   NodeAccount,
		Status: StatusPending,
	}
	return true
}

// MarkAccountLoaded transitions an account node pending→loaded and
// records its transaction count. Unknown ids are created directly as
// loaded so progress is visible even for empty accounts.
func (g *Graph) MarkAccountLoaded(address string, txCount int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[address]
	if !ok {
		g.nodes[address] = &Node{
			ID:               address,
			Type:             NodeAccount,
			Status:           StatusLoaded,
			TransactionCount: txCount,
		}
		return
	}
	if node.Type != NodeAccount {
		return
	}
	node.Status = StatusLoaded
	node.TransactionCount = txCount
}

// AddTransactionNode inserts a transaction node. Returns false when the
// signature was already processed.
func (g *Graph) AddTransactionNode(signature string, success bool, blockTime int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[signature]; ok {
		return false
	}
	g.nodes[signature] = &Node{
		ID:        signature,
		Type:      NodeTransaction,
		Success:   success,
		BlockTime: blockTime,
	}
	return true
}

// AddEdge inserts a plain participation edge. Returns false when the
// composite id already exists. Both endpoints must be known nodes.
func (g *Graph) AddEdge(source, target string) bool {
	return g.addEdge(&Edge{
		ID:     EdgeID(source, target),
		Source: source,
		Target: target,
	})
}

// AddTransferEdge inserts a transfer edge with amount and mint.
func (g *Graph) AddTransferEdge(source, target string, amount float64, mint string) bool {
	return g.addEdge(&Edge{
		ID:       TransferEdgeID(source, target, mint),
		Source:   source,
		Target:   target,
		Transfer: true,
		Amount:   amount,
		Mint:     mint,
	})
}

func (g *Graph) addEdge(e *Edge) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.edges[e.ID]; ok {
		return false
	}
	if _, ok := g.nodes[e.Source]; !ok {
		return false
	}
	if _, ok := g.nodes[e.Target]; !ok {
		return false
	}
	g.edges[e.ID] = e
	return true
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// HasNode reports whether id exists.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// ConnectedAccounts returns the account nodes adjacent to the given
// transaction node.
func (g *Graph) ConnectedAccounts(signature string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	appendAccount := func(id string) {
		node, ok := g.nodes[id]
		if !ok || node.Type != NodeAccount {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	for _, e := range g.edges {
		if e.Source == signature {
			appendAccount(e.Target)
		}
		if e.Target == signature {
			appendAccount(e.Source)
		}
	}
	return out
}

// Counts returns the node and edge counts.
func (g *Graph) Counts() (nodes, edges int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes), len(g.edges)
}

// Snapshot returns copies of all nodes and edges.
func (g *Graph) Snapshot() ([]Node, []Edge) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, *n)
	}
	edges := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, *e)
	}
	return nodes, edges
}

// Restore replays a snapshotted node/edge set into the graph, e.g. when
// a persisted expansion is reloaded in a fresh session. Existing entries
// win; edges whose endpoints are unknown are skipped.
func (g *Graph) Restore(nodes []Node, edges []Edge) (nodesAdded, edgesAdded int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			continue
		}
		if _, ok := g.nodes[n.ID]; ok {
			continue
		}
		g.nodes[n.ID] = &n
		nodesAdded++
	}
	for i := range edges {
		e := edges[i]
		if e.ID == "" {
			continue
		}
		if _, ok := g.edges[e.ID]; ok {
			continue
		}
		if _, ok := g.nodes[e.Source]; !ok {
			continue
		}
		if _, ok := g.nodes[e.Target]; !ok {
			continue
		}
		g.edges[e.ID] = &e
		edgesAdded++
	}
	return nodesAdded, edgesAdded
}

// AccountStats returns how many account nodes exist and how many of them
// are loaded.
func (g *Graph) AccountStats() (accounts, loaded int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.Type != NodeAccount {
			continue
		}
		accounts++
		if n.Status == StatusLoaded {
			loaded++
		}
	}
	return accounts, loaded
}

// String summarizes the graph for logs.
func (g *Graph) String() string {
	nodes, edges := g.Counts()
	return fmt.Sprintf("graph{nodes=%d edges=%d}", nodes, edges)
}
