// Package domain holds the records shared between the explorer engine
// and the storage layer.
package domain

import "fmt"

// WalletPath is a resolved path between two wallets, persisted so a
// re-query within the TTL does not redo the traversal.
type WalletPath struct {
	Source string
	Target string
	// Hops are the account addresses along the path, source first.
	Hops []string
	// Found is false when the search completed without a path; caching
	// negative results avoids re-walking dead ends.
	Found bool
	// Timestamp is Unix milliseconds, used for TTL eviction.
	Timestamp int64
}

// Key returns the canonical cache/storage key for a source/target pair.
func (p *WalletPath) Key() string {
	return PathKey(p.Source, p.Target)
}

// PathKey builds the "{source}-to-{target}" key.
func PathKey(source, target string) string {
	return fmt.Sprintf("%s-to-%s", source, target)
}

// GraphSnapshot captures the materialized graph plus viewport around a
// focused transaction so an expansion can be replayed without refetching.
type GraphSnapshot struct {
	// Signature is the focused transaction.
	Signature string
	// Nodes and Edges are the serialized graph elements (JSON).
	Nodes []byte
	Edges []byte
	// Viewport pan/zoom to restore across redraws.
	Zoom float64
	PanX float64
	PanY float64
	// Timestamp is Unix milliseconds, used for TTL eviction.
	Timestamp int64
}

// TransferRecord is one materialized transfer edge, archived append-only
// for later analysis.
type TransferRecord struct {
	Signature string
	Source    string
	Target    string
	// Mint is empty for native SOL transfers.
	Mint   string
	Amount float64
	Slot   int64
	// Timestamp is Unix milliseconds.
	Timestamp int64
}
