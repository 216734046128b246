package memory

import (
	"context"
	"sort"
	"sync"

	"solana-graph-explorer/internal/domain"
	"solana-graph-explorer/internal/storage"
)

// TransferArchiveStore is an in-memory implementation of storage.TransferArchiveStore.
type TransferArchiveStore struct {
	mu      sync.RWMutex
	records []*domain.TransferRecord
}

// NewTransferArchiveStore creates a new in-memory transfer archive.
func NewTransferArchiveStore() *TransferArchiveStore {
	return &TransferArchiveStore{}
}

// InsertBulk appends multiple transfer records.
func (s *TransferArchiveStore) InsertBulk(_ context.Context, records []*domain.TransferRecord) error {
	for _, r := range records {
		if r == nil || r.Signature == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		recordCopy := *r
		s.records = append(s.records, &recordCopy)
	}
	return nil
}

// GetByAccount retrieves archived transfers touching an account, ordered by slot ASC.
func (s *TransferArchiveStore) GetByAccount(_ context.Context, account string) ([]*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransferRecord
	for _, r := range s.records {
		if r.Source == account || r.Target == account {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Slot < result[j].Slot
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TransferArchiveStore = (*TransferArchiveStore)(nil)
