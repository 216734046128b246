// Package memory provides in-memory store implementations used in tests
// and in single-process runs without a database.
package memory

import (
	"context"
	"sync"

	"solana-graph-explorer/internal/domain"
	"solana-graph-explorer/internal/storage"
)

// WalletPathStore is an in-memory implementation of storage.WalletPathStore.
type WalletPathStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WalletPath // keyed by "{source}-to-{target}"
}

// NewWalletPathStore creates a new in-memory wallet path store.
func NewWalletPathStore() *WalletPathStore {
	return &WalletPathStore{
		data: make(map[string]*domain.WalletPath),
	}
}

// Insert adds a new path result. Returns ErrDuplicateKey if the pair exists.
func (s *WalletPathStore) Insert(_ context.Context, p *domain.WalletPath) error {
	if p == nil || p.Source == "" || p.Target == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Key()
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	pathCopy := *p
	s.data[key] = &pathCopy
	return nil
}

// GetByKey retrieves a path by key. Returns ErrNotFound if not exists.
func (s *WalletPathStore) GetByKey(_ context.Context, key string) (*domain.WalletPath, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[key]
	if !exists {
		return nil, storage.ErrNotFound
	}

	pathCopy := *p
	return &pathCopy, nil
}

// Verify interface compliance at compile time.
var _ storage.WalletPathStore = (*WalletPathStore)(nil)
