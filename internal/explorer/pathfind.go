package explorer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solana-graph-explorer/internal/addr"
	"solana-graph-explorer/internal/domain"
	"solana-graph-explorer/internal/fetch"
	"solana-graph-explorer/internal/graph"
)

// FindWalletPath searches the built graph for a path between two wallets
// and reports the account hops along it. Results, including "no path",
// are cached.
func (e *Engine) FindWalletPath(ctx context.Context, source, target string) (*domain.WalletPath, error) {
	if !addr.IsValid(source) || !addr.IsValid(target) {
		return nil, fetch.ErrInvalidAddress
	}

	if p, ok := e.paths.Get(ctx, source, target); ok {
		e.log.Debug("path served from cache", zap.String("key", p.Key()))
		return p, nil
	}

	hops, found := e.searchPath(source, target)
	p := &domain.WalletPath{
		Source:    source,
		Target:    target,
		Hops:      hops,
		Found:     found,
		Timestamp: time.Now().UnixMilli(),
	}
	e.paths.Put(ctx, p)
	return p, nil
}

// searchPath runs a breadth-first search over the node/edge snapshot.
// Edges are treated as undirected; transaction nodes connect wallets but
// are dropped from the reported hops.
func (e *Engine) searchPath(source, target string) ([]string, bool) {
	nodes, edges := e.graph.Snapshot()

	types := make(map[string]graph.NodeType, len(nodes))
	for _, n := range nodes {
		types[n.ID] = n.Type
	}
	if _, ok := types[source]; !ok {
		return nil, false
	}
	if _, ok := types[target]; !ok {
		return nil, false
	}

	adjacency := make(map[string][]string, len(nodes))
	for _, edge := range edges {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		adjacency[edge.Target] = append(adjacency[edge.Target], edge.Source)
	}

	parent := map[string]string{source: source}
	queue := []string{source}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current == target {
			return accountHops(walkBack(parent, source, target), types), true
		}
		for _, next := range adjacency[current] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = current
			queue = append(queue, next)
		}
	}
	return nil, false
}

// walkBack reconstructs the node path from the BFS parent links.
func walkBack(parent map[string]string, source, target string) []string {
	var reversed []string
	for at := target; ; at = parent[at] {
		reversed = append(reversed, at)
		if at == source {
			break
		}
	}
	path := make([]string, len(reversed))
	for i, n := range reversed {
		path[len(reversed)-1-i] = n
	}
	return path
}

// accountHops filters a node path down to the wallet nodes.
func accountHops(path []string, types map[string]graph.NodeType) []string {
	var hops []string
	for _, id := range path {
		if types[id] == graph.NodeAccount {
			hops = append(hops, id)
		}
	}
	return hops
}
