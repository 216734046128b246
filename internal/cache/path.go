package cache

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"solana-graph-explorer/internal/domain"
	"solana-graph-explorer/internal/storage"
)

const (
	// DefaultPathCacheSize bounds the in-memory path tier.
	DefaultPathCacheSize = 1000

	// DefaultPathTTL is how long a resolved path stays valid. New
	// transactions can create shorter paths, so results go stale.
	DefaultPathTTL = 30 * time.Minute
)

// WalletPathCache is a two-tier cache for wallet-to-wallet path results:
// an expiring LRU in front of an optional persistent store. Negative
// results (no path found) are cached like any other.
type WalletPathCache struct {
	lru   *expirable.LRU[string, *domain.WalletPath]
	store storage.WalletPathStore // optional second tier
	ttl   time.Duration
	log   *zap.Logger

	now func() time.Time
}

// NewWalletPathCache creates a path cache. store may be nil, in which
// case only the in-memory tier is used.
func NewWalletPathCache(store storage.WalletPathStore, logger *zap.Logger) *WalletPathCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletPathCache{
		lru:   expirable.NewLRU[string, *domain.WalletPath](DefaultPathCacheSize, nil, DefaultPathTTL),
		store: store,
		ttl:   DefaultPathTTL,
		log:   logger,
		now:   time.Now,
	}
}

// Get returns the cached path between source and target, consulting the
// persistent tier on a memory miss. Store hits within the TTL are
// promoted back into memory.
func (c *WalletPathCache) Get(ctx context.Context, source, target string) (*domain.WalletPath, bool) {
	key := domain.PathKey(source, target)

	if p, ok := c.lru.Get(key); ok {
		return p, true
	}
	if c.store == nil {
		return nil, false
	}

	p, err := c.store.GetByKey(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.log.Warn("path store lookup failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	age := c.now().UnixMilli() - p.Timestamp
	if age > c.ttl.Milliseconds() {
		return nil, false
	}

	c.lru.Add(key, p)
	return p, true
}

// Put stores a path result in both tiers. A duplicate in the persistent
// tier is not an error; the memory tier still gets the fresher copy.
func (c *WalletPathCache) Put(ctx context.Context, p *domain.WalletPath) {
	if p == nil {
		return
	}
	if p.Timestamp == 0 {
		p.Timestamp = c.now().UnixMilli()
	}

	c.lru.Add(p.Key(), p)

	if c.store == nil {
		return
	}
	if err := c.store.Insert(ctx, p); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		c.log.Warn("path store insert failed", zap.String("key", p.Key()), zap.Error(err))
	}
}

// Len returns the number of in-memory entries.
func (c *WalletPathCache) Len() int {
	return c.lru.Len()
}
