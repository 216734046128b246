package clickhouse

import (
	"context"
	"fmt"

	"solana-graph-explorer/internal/domain"
	"solana-graph-explorer/internal/storage"
)

// TransferArchiveStore implements storage.TransferArchiveStore using ClickHouse.
type TransferArchiveStore struct {
	conn *Conn
}

// NewTransferArchiveStore creates a new TransferArchiveStore.
func NewTransferArchiveStore(conn *Conn) *TransferArchiveStore {
	return &TransferArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransferArchiveStore = (*TransferArchiveStore)(nil)

// InsertBulk appends multiple transfer records. The table uses
// ReplacingMergeTree keyed by (signature, source, target, mint), so
// re-expanding a transaction does not inflate the archive.
func (s *TransferArchiveStore) InsertBulk(ctx context.Context, records []*domain.TransferRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r == nil || r.Signature == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO transfer_archive (
			signature, source, target, mint, amount, slot, block_time
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.Signature, r.Source, r.Target, r.Mint,
			r.Amount, uint64(r.Slot), r.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAccount retrieves archived transfers touching an account, ordered by slot ASC.
func (s *TransferArchiveStore) GetByAccount(ctx context.Context, account string) ([]*domain.TransferRecord, error) {
	query := `
		SELECT signature, source, target, mint, amount, slot, block_time
		FROM transfer_archive FINAL
		WHERE source = ? OR target = ?
		ORDER BY slot ASC
	`

	rows, err := s.conn.Query(ctx, query, account, account)
	if err != nil {
		return nil, fmt.Errorf("get transfers by account: %w", err)
	}
	defer rows.Close()

	var result []*domain.TransferRecord
	for rows.Next() {
		var r domain.TransferRecord
		var slot uint64

		err := rows.Scan(&r.Signature, &r.Source, &r.Target, &r.Mint, &r.Amount, &slot, &r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}

		r.Slot = int64(slot)
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer rows: %w", err)
	}

	return result, nil
}
