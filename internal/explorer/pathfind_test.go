package explorer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-graph-explorer/internal/fetch"
)

func TestFindWalletPath_DirectHop(t *testing.T) {
	rpc := txScenario()
	engine := newTestEngine(t, &fakePool{client: rpc}, Options{})
	ctx := context.Background()

	_, err := engine.ExpandTransactionGraph(ctx, sigTX1)
	require.NoError(t, err)

	p, err := engine.FindWalletPath(ctx, walletA, walletB)
	require.NoError(t, err)
	assert.True(t, p.Found)
	assert.Equal(t, []string{walletA, walletB}, p.Hops, "transaction nodes are dropped from the hops")
}

func TestFindWalletPath_TwoHops(t *testing.T) {
	rpc := txScenario()
	engine := newTestEngine(t, &fakePool{client: rpc}, Options{})
	ctx := context.Background()

	_, err := engine.ExpandTransactionGraph(ctx, sigTX1)
	require.NoError(t, err)

	p, err := engine.FindWalletPath(ctx, walletA, walletC)
	require.NoError(t, err)
	require.True(t, p.Found)
	assert.Equal(t, []string{walletA, walletB, walletC}, p.Hops)
}

func TestFindWalletPath_NoPath(t *testing.T) {
	engine := newTestEngine(t, &fakePool{client: &fakeRPC{}}, Options{})
	ctx := context.Background()

	g := engine.Graph()
	g.AddAccountNode(walletA)
	g.AddAccountNode(walletB)

	p, err := engine.FindWalletPath(ctx, walletA, walletB)
	require.NoError(t, err)
	assert.False(t, p.Found)
	assert.Empty(t, p.Hops)
}

func TestFindWalletPath_UnknownNodes(t *testing.T) {
	engine := newTestEngine(t, &fakePool{client: &fakeRPC{}}, Options{})

	p, err := engine.FindWalletPath(context.Background(), walletA, walletB)
	require.NoError(t, err)
	assert.False(t, p.Found)
}

func TestFindWalletPath_InvalidAddress(t *testing.T) {
	engine := newTestEngine(t, &fakePool{client: &fakeRPC{}}, Options{})

	_, err := engine.FindWalletPath(context.Background(), "bogus", walletB)
	assert.ErrorIs(t, err, fetch.ErrInvalidAddress)
}

func TestFindWalletPath_CachesResult(t *testing.T) {
	rpc := txScenario()
	engine := newTestEngine(t, &fakePool{client: rpc}, Options{})
	ctx := context.Background()

	_, err := engine.ExpandTransactionGraph(ctx, sigTX1)
	require.NoError(t, err)

	first, err := engine.FindWalletPath(ctx, walletA, walletB)
	require.NoError(t, err)
	require.True(t, first.Found)

	// Cached: a second query returns the same result even though the
	// graph kept growing in between.
	engine.Graph().AddAccountNode(mintUSD)

	second, err := engine.FindWalletPath(ctx, walletA, walletB)
	require.NoError(t, err)
	assert.Equal(t, first.Hops, second.Hops)
	assert.Equal(t, first.Timestamp, second.Timestamp)
}
