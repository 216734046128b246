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
	// DefaultViewportCacheSize bounds the in-memory snapshot tier.
	DefaultViewportCacheSize = 200

	// DefaultViewportTTL is how long an in-memory snapshot is kept.
	DefaultViewportTTL = time.Hour
)

// ViewportCache stores the graph snapshot saved when expansion of a
// transaction completes, so switching back to that transaction restores
// the previous view instead of refetching.
type ViewportCache struct {
	lru   *expirable.LRU[string, *domain.GraphSnapshot]
	store storage.GraphSnapshotStore // optional second tier
	log   *zap.Logger
}

// NewViewportCache creates a viewport cache. store may be nil.
func NewViewportCache(store storage.GraphSnapshotStore, logger *zap.Logger) *ViewportCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewportCache{
		lru:   expirable.NewLRU[string, *domain.GraphSnapshot](DefaultViewportCacheSize, nil, DefaultViewportTTL),
		store: store,
		log:   logger,
	}
}

// Get returns the snapshot for a signature, consulting the persistent
// tier on a memory miss.
func (c *ViewportCache) Get(ctx context.Context, signature string) (*domain.GraphSnapshot, bool) {
	if s, ok := c.lru.Get(signature); ok {
		return s, true
	}
	if c.store == nil {
		return nil, false
	}

	s, err := c.store.GetBySignature(ctx, signature)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.log.Warn("snapshot store lookup failed", zap.String("signature", signature), zap.Error(err))
		}
		return nil, false
	}

	c.lru.Add(signature, s)
	return s, true
}

// Put stores a snapshot in both tiers, replacing any previous snapshot
// for the same signature.
func (c *ViewportCache) Put(ctx context.Context, s *domain.GraphSnapshot) {
	if s == nil || s.Signature == "" {
		return
	}
	if s.Timestamp == 0 {
		s.Timestamp = time.Now().UnixMilli()
	}

	c.lru.Add(s.Signature, s)

	if c.store == nil {
		return
	}
	if err := c.store.Upsert(ctx, s); err != nil {
		c.log.Warn("snapshot store upsert failed", zap.String("signature", s.Signature), zap.Error(err))
	}
}
