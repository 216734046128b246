package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"solana-graph-explorer/internal/domain"
	"solana-graph-explorer/internal/storage"
)

func TestWalletPathStore_InsertAndGet(t *testing.T) {
	store := NewWalletPathStore()
	ctx := context.Background()

	p := &domain.WalletPath{
		Source:    "walletA",
		Target:    "walletB",
		Hops:      []string{"walletA", "walletX", "walletB"},
		Found:     true,
		Timestamp: 1704067200,
	}

	if err := store.Insert(ctx, p); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByKey(ctx, domain.PathKey("walletA", "walletB"))
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}

	if !got.Found {
		t.Error("Found mismatch: got false, want true")
	}
	if len(got.Hops) != 3 {
		t.Errorf("Hops length mismatch: got %d, want 3", len(got.Hops))
	}
}

func TestWalletPathStore_DuplicateKey(t *testing.T) {
	store := NewWalletPathStore()
	ctx := context.Background()

	p := &domain.WalletPath{Source: "walletA", Target: "walletB", Found: false}

	if err := store.Insert(ctx, p); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}

	err := store.Insert(ctx, p)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestWalletPathStore_NotFound(t *testing.T) {
	store := NewWalletPathStore()

	_, err := store.GetByKey(context.Background(), "walletA-to-walletB")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWalletPathStore_InvalidInput(t *testing.T) {
	store := NewWalletPathStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(ctx, &domain.WalletPath{Target: "b"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for missing source, got %v", err)
	}
}

func TestWalletPathStore_ReturnsCopy(t *testing.T) {
	store := NewWalletPathStore()
	ctx := context.Background()

	p := &domain.WalletPath{Source: "walletA", Target: "walletB", Found: true}
	if err := store.Insert(ctx, p); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, _ := store.GetByKey(ctx, p.Key())
	got.Found = false

	again, _ := store.GetByKey(ctx, p.Key())
	if !again.Found {
		t.Error("mutation of returned record leaked into store")
	}
}

func TestWalletPathStore_ConcurrentInsert(t *testing.T) {
	store := NewWalletPathStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p := &domain.WalletPath{
				Source: "walletA",
				Target: string(rune('a' + n)),
			}
			_ = store.Insert(ctx, p)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		key := domain.PathKey("walletA", string(rune('a'+i)))
		if _, err := store.GetByKey(ctx, key); err != nil {
			t.Errorf("missing path %s: %v", key, err)
		}
	}
}
