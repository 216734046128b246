package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-graph-explorer/internal/domain"
	"solana-graph-explorer/internal/storage"
)

func TestTransferArchiveStore_InsertBulkAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferArchiveStore(conn)
	ctx := context.Background()

	records := []*domain.TransferRecord{
		{Signature: "sig2", Source: "walletA", Target: "walletB", Amount: 1.5, Slot: 200, Timestamp: 1704067260000},
		{Signature: "sig1", Source: "walletC", Target: "walletA", Mint: "mint1", Amount: 100, Slot: 100, Timestamp: 1704067200000},
		{Signature: "sig3", Source: "walletC", Target: "walletD", Amount: 7, Slot: 300, Timestamp: 1704067320000},
	}

	require.NoError(t, store.InsertBulk(ctx, records))

	got, err := store.GetByAccount(ctx, "walletA")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by slot ASC
	assert.Equal(t, "sig1", got[0].Signature)
	assert.Equal(t, "mint1", got[0].Mint)
	assert.Equal(t, "sig2", got[1].Signature)
	assert.Equal(t, 1.5, got[1].Amount)
}

func TestTransferArchiveStore_ReinsertDeduplicates(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferArchiveStore(conn)
	ctx := context.Background()

	record := &domain.TransferRecord{
		Signature: "sig1", Source: "walletA", Target: "walletB",
		Amount: 2, Slot: 100, Timestamp: 1704067200000,
	}

	require.NoError(t, store.InsertBulk(ctx, []*domain.TransferRecord{record}))
	require.NoError(t, store.InsertBulk(ctx, []*domain.TransferRecord{record}))

	// FINAL collapses ReplacingMergeTree duplicates.
	got, err := store.GetByAccount(ctx, "walletA")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTransferArchiveStore_EmptyBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferArchiveStore(conn)

	require.NoError(t, store.InsertBulk(context.Background(), nil))
}

func TestTransferArchiveStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferArchiveStore(conn)

	err := store.InsertBulk(context.Background(), []*domain.TransferRecord{
		{Source: "a", Target: "b"},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
