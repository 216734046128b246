package postgres

import (
	"context"
	"fmt"

	"solana-graph-explorer/internal/domain"
	"solana-graph-explorer/internal/storage"
)

// WalletPathStore implements storage.WalletPathStore using PostgreSQL.
type WalletPathStore struct {
	pool *Pool
}

// NewWalletPathStore creates a new WalletPathStore.
func NewWalletPathStore(pool *Pool) *WalletPathStore {
	return &WalletPathStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletPathStore = (*WalletPathStore)(nil)

// Insert adds a new path result. Returns ErrDuplicateKey if the
// source/target pair was already recorded.
func (s *WalletPathStore) Insert(ctx context.Context, p *domain.WalletPath) error {
	if p == nil || p.Source == "" || p.Target == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO wallet_paths (
			path_key, source, target, hops, found, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		p.Key(),
		p.Source,
		p.Target,
		p.Hops,
		p.Found,
		p.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet path: %w", err)
	}
	return nil
}

// GetByKey retrieves a path by its "{source}-to-{target}" key.
// Returns ErrNotFound if not exists.
func (s *WalletPathStore) GetByKey(ctx context.Context, key string) (*domain.WalletPath, error) {
	query := `
		SELECT source, target, hops, found, resolved_at
		FROM wallet_paths
		WHERE path_key = $1
	`

	var p domain.WalletPath
	row := s.pool.QueryRow(ctx, query, key)
	err := row.Scan(&p.Source, &p.Target, &p.Hops, &p.Found, &p.Timestamp)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet path by key: %w", err)
	}
	return &p, nil
}
