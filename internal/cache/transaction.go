// Package cache holds the expansion caches: raw transaction details,
// resolved wallet paths, and per-signature viewport snapshots.
package cache

import (
	"sync"

	"solana-graph-explorer/internal/solana"
)

// TransactionCache keeps fetched transaction details for the lifetime of
// a session. Details are immutable once fetched, so entries never expire.
type TransactionCache struct {
	mu   sync.RWMutex
	data map[string]*solana.TransactionDetail
}

// NewTransactionCache creates an empty transaction cache.
func NewTransactionCache() *TransactionCache {
	return &TransactionCache{
		data: make(map[string]*solana.TransactionDetail),
	}
}

// Get returns the cached detail for a signature.
func (c *TransactionCache) Get(signature string) (*solana.TransactionDetail, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.data[signature]
	return d, ok
}

// Put stores a fetched detail. Nil details are not cached; a not-found
// transaction may appear later once the RPC node catches up.
func (c *TransactionCache) Put(signature string, d *solana.TransactionDetail) {
	if d == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[signature] = d
}

// Len returns the number of cached transactions.
func (c *TransactionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
