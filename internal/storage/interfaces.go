package storage

import (
	"context"

	"solana-graph-explorer/internal/domain"
)

// WalletPathStore persists resolved wallet-to-wallet path searches.
type WalletPathStore interface {
	// Insert adds a new path result. Returns ErrDuplicateKey if the
	// source/target pair was already recorded.
	Insert(ctx context.Context, p *domain.WalletPath) error

	// GetByKey retrieves a path by its "{source}-to-{target}" key.
	// Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, key string) (*domain.WalletPath, error)
}

// GraphSnapshotStore persists per-signature graph view snapshots. Unlike
// the path store, snapshots are overwritten on re-expansion.
type GraphSnapshotStore interface {
	// Upsert stores or replaces the snapshot for a signature.
	Upsert(ctx context.Context, s *domain.GraphSnapshot) error

	// GetBySignature retrieves the latest snapshot for a signature.
	// Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.GraphSnapshot, error)
}

// TransferArchiveStore records every transfer edge discovered during
// traversal, for offline analysis.
type TransferArchiveStore interface {
	// InsertBulk appends multiple transfer records.
	InsertBulk(ctx context.Context, records []*domain.TransferRecord) error

	// GetByAccount retrieves archived transfers touching an account,
	// ordered by slot ASC.
	GetByAccount(ctx context.Context, account string) ([]*domain.TransferRecord, error)
}
