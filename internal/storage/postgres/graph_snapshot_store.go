package postgres

import (
	"context"
	"fmt"

	"solana-graph-explorer/internal/domain"
	"solana-graph-explorer/internal/storage"
)

// GraphSnapshotStore implements storage.GraphSnapshotStore using PostgreSQL.
type GraphSnapshotStore struct {
	pool *Pool
}

// NewGraphSnapshotStore creates a new GraphSnapshotStore.
func NewGraphSnapshotStore(pool *Pool) *GraphSnapshotStore {
	return &GraphSnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GraphSnapshotStore = (*GraphSnapshotStore)(nil)

// Upsert stores or replaces the snapshot for a signature.
func (s *GraphSnapshotStore) Upsert(ctx context.Context, snap *domain.GraphSnapshot) error {
	if snap == nil || snap.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO graph_snapshots (
			signature, nodes, edges, zoom, pan_x, pan_y, saved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (signature) DO UPDATE SET
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			zoom = EXCLUDED.zoom,
			pan_x = EXCLUDED.pan_x,
			pan_y = EXCLUDED.pan_y,
			saved_at = EXCLUDED.saved_at
	`

	_, err := s.pool.Exec(ctx, query,
		snap.Signature,
		snap.Nodes,
		snap.Edges,
		snap.Zoom,
		snap.PanX,
		snap.PanY,
		snap.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert graph snapshot: %w", err)
	}
	return nil
}

// GetBySignature retrieves the latest snapshot for a signature.
// Returns ErrNotFound if not exists.
func (s *GraphSnapshotStore) GetBySignature(ctx context.Context, signature string) (*domain.GraphSnapshot, error) {
	query := `
		SELECT signature, nodes, edges, zoom, pan_x, pan_y, saved_at
		FROM graph_snapshots
		WHERE signature = $1
	`

	var snap domain.GraphSnapshot
	row := s.pool.QueryRow(ctx, query, signature)
	err := row.Scan(
		&snap.Signature,
		&snap.Nodes,
		&snap.Edges,
		&snap.Zoom,
		&snap.PanX,
		&snap.PanY,
		&snap.Timestamp,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get graph snapshot: %w", err)
	}
	return &snap, nil
}
