package memory

import (
	"context"
	"sync"

	"solana-graph-explorer/internal/domain"
	"solana-graph-explorer/internal/storage"
)

// GraphSnapshotStore is an in-memory implementation of storage.GraphSnapshotStore.
type GraphSnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.GraphSnapshot // keyed by signature
}

// NewGraphSnapshotStore creates a new in-memory snapshot store.
func NewGraphSnapshotStore() *GraphSnapshotStore {
	return &GraphSnapshotStore{
		data: make(map[string]*domain.GraphSnapshot),
	}
}

// Upsert stores or replaces the snapshot for a signature.
func (s *GraphSnapshotStore) Upsert(_ context.Context, snap *domain.GraphSnapshot) error {
	if snap == nil || snap.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapCopy := *snap
	s.data[snap.Signature] = &snapCopy
	return nil
}

// GetBySignature retrieves the latest snapshot. Returns ErrNotFound if not exists.
func (s *GraphSnapshotStore) GetBySignature(_ context.Context, signature string) (*domain.GraphSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.data[signature]
	if !exists {
		return nil, storage.ErrNotFound
	}

	snapCopy := *snap
	return &snapCopy, nil
}

// Verify interface compliance at compile time.
var _ storage.GraphSnapshotStore = (*GraphSnapshotStore)(nil)
