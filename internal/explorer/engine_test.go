package explorer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-graph-explorer/internal/cache"
	"solana-graph-explorer/internal/domain"
	"solana-graph-explorer/internal/fetch"
	"solana-graph-explorer/internal/graph"
	"solana-graph-explorer/internal/solana"
	"solana-graph-explorer/internal/storage/memory"
)

const (
	walletA = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	walletB = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
	walletC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	mintUSD = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"

	sigTX1 = "sigTX1"
	sigTX2 = "sigTX2"
)

// fakeRPC implements solana.Client over canned responses and counts calls.
type fakeRPC struct {
	mu      sync.Mutex
	sigs    map[string][]solana.SignatureInfo
	details map[string]*solana.TransactionDetail
	calls   int
}

func (f *fakeRPC) GetHealth(context.Context) error { return nil }

func (f *fakeRPC) GetTransactionDetail(_ context.Context, signature string) (*solana.TransactionDetail, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.details[signature], nil
}

func (f *fakeRPC) GetSignaturesForAddress(_ context.Context, address string, _ *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.sigs[address], nil
}

func (f *fakeRPC) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePool hands out a single client, optionally delaying each handout.
type fakePool struct {
	client solana.Client
	delay  time.Duration
}

func (p *fakePool) Connection(ctx context.Context) (solana.Client, error) {
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	return p.client, nil
}

func (p *fakePool) ReportFailure(context.Context, solana.Client) {}

// txScenario is the canonical two-hop fixture: TX1 moves 2 SOL from
// walletA to walletB, TX2 moves 6 USD tokens from walletB to walletC.
func txScenario() *fakeRPC {
	return &fakeRPC{
		sigs: map[string][]solana.SignatureInfo{
			walletA: {{Signature: sigTX1, Slot: 100}},
			walletB: {{Signature: sigTX1, Slot: 100}, {Signature: sigTX2, Slot: 200}},
			walletC: {{Signature: sigTX2, Slot: 200}},
		},
		details: map[string]*solana.TransactionDetail{
			sigTX1: {
				Signature:   sigTX1,
				Slot:        100,
				BlockTime:   1700000000,
				Success:     true,
				AccountKeys: []string{walletA, walletB},
				BalanceChanges: []solana.BalanceChange{
					{Address: walletA, Delta: -2},
					{Address: walletB, Delta: 2},
				},
			},
			sigTX2: {
				Signature:   sigTX2,
				Slot:        200,
				BlockTime:   1700000060,
				Success:     true,
				AccountKeys: []string{walletB, walletC},
				BalanceChanges: []solana.BalanceChange{
					{Address: walletB, Mint: mintUSD, Delta: -6},
					{Address: walletC, Mint: mintUSD, Delta: 6},
				},
			},
		},
	}
}

func newTestEngine(t *testing.T, pool fetch.ClientPool, opts Options) *Engine {
	t.Helper()

	resolver := fetch.NewTieredResolver(
		fetch.NewTokenTransferSource(pool, nil),
		fetch.NewHistorySource(pool, nil),
		nil,
	)
	scheduler, err := fetch.NewScheduler(fetch.SchedulerConfig{Resolver: resolver})
	require.NoError(t, err)

	opts.Pool = pool
	opts.Scheduler = scheduler
	engine, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func TestExpandTransactionGraph_UnknownTransaction(t *testing.T) {
	pool := &fakePool{client: &fakeRPC{}}
	engine := newTestEngine(t, pool, Options{})

	found, err := engine.ExpandTransactionGraph(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExpandTransactionGraph_EmptySignature(t *testing.T) {
	engine := newTestEngine(t, &fakePool{client: &fakeRPC{}}, Options{})

	_, err := engine.ExpandTransactionGraph(context.Background(), "")
	assert.Error(t, err)
}

func TestExpandTransactionGraph_BuildsTwoHopGraph(t *testing.T) {
	rpc := txScenario()
	engine := newTestEngine(t, &fakePool{client: rpc}, Options{})
	ctx := context.Background()

	found, err := engine.ExpandTransactionGraph(ctx, sigTX1)
	require.NoError(t, err)
	require.True(t, found)

	g := engine.Graph()

	// Transaction nodes for both hops.
	tx1, ok := g.Node(sigTX1)
	require.True(t, ok)
	assert.Equal(t, graph.NodeTransaction, tx1.Type)
	assert.True(t, tx1.Success)
	assert.True(t, g.HasNode(sigTX2), "depth propagation must reach walletB's other transaction")

	// All three wallets loaded.
	for _, w := range []string{walletA, walletB, walletC} {
		node, ok := g.Node(w)
		require.True(t, ok, "missing %s", w)
		assert.Equal(t, graph.StatusLoaded, node.Status, "%s must be loaded", w)
	}

	// Transfer edges carry amount and mint.
	assert.True(t, g.HasNode(sigTX2))
	_, edges := g.Snapshot()
	var sawSOL, sawToken bool
	for _, e := range edges {
		if e.ID == graph.TransferEdgeID(sigTX1, walletB, "") {
			sawSOL = true
			assert.Equal(t, 2.0, e.Amount)
		}
		if e.ID == graph.TransferEdgeID(sigTX2, walletC, mintUSD) {
			sawToken = true
			assert.Equal(t, 6.0, e.Amount)
			assert.Equal(t, mintUSD, e.Mint)
		}
	}
	assert.True(t, sawSOL, "missing SOL transfer edge")
	assert.True(t, sawToken, "missing token transfer edge")

	assert.Equal(t, 100.0, engine.Progress())
}

func TestExpandTransactionGraph_DepthLimit(t *testing.T) {
	rpc := txScenario()
	engine := newTestEngine(t, &fakePool{client: rpc}, Options{MaxDepth: 2})
	ctx := context.Background()

	found, err := engine.ExpandTransactionGraph(ctx, sigTX1)
	require.NoError(t, err)
	require.True(t, found)

	g := engine.Graph()

	// walletC is discovered as a counterparty node but sits past the
	// depth limit, so it is never resolved.
	node, ok := g.Node(walletC)
	require.True(t, ok)
	assert.Equal(t, graph.StatusPending, node.Status)
	assert.False(t, engine.scheduler.Loaded(walletC))
}

func TestExpandTransactionGraph_ViewportShortCircuit(t *testing.T) {
	rpc := txScenario()
	engine := newTestEngine(t, &fakePool{client: rpc}, Options{})
	ctx := context.Background()

	engine.viewports.Put(ctx, &domain.GraphSnapshot{Signature: sigTX1, Zoom: 2})

	found, err := engine.ExpandTransactionGraph(ctx, sigTX1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, rpc.callCount(), "cached expansion must not touch the network")
}

func TestExpandTransactionGraph_ReplaysPersistedSnapshot(t *testing.T) {
	store := memory.NewGraphSnapshotStore()
	ctx := context.Background()

	first := newTestEngine(t, &fakePool{client: txScenario()}, Options{
		Viewports: cache.NewViewportCache(store, nil),
	})
	found, err := first.ExpandTransactionGraph(ctx, sigTX1)
	require.NoError(t, err)
	require.True(t, found)
	wantNodes, wantEdges := first.Graph().Counts()
	require.Greater(t, wantNodes, 0)

	// A fresh process sharing the snapshot store must rebuild the graph
	// from the persisted snapshot without touching the network.
	rpc := txScenario()
	second := newTestEngine(t, &fakePool{client: rpc}, Options{
		Viewports: cache.NewViewportCache(store, nil),
	})
	found, err = second.ExpandTransactionGraph(ctx, sigTX1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, rpc.callCount())

	gotNodes, gotEdges := second.Graph().Counts()
	assert.Equal(t, wantNodes, gotNodes)
	assert.Equal(t, wantEdges, gotEdges)

	for _, w := range []string{walletA, walletB, walletC} {
		node, ok := second.Graph().Node(w)
		require.True(t, ok, "missing %s after replay", w)
		assert.Equal(t, graph.StatusLoaded, node.Status)
	}
}

func TestExpandTransactionGraph_SavesViewport(t *testing.T) {
	rpc := txScenario()
	engine := newTestEngine(t, &fakePool{client: rpc}, Options{})
	ctx := context.Background()

	_, err := engine.ExpandTransactionGraph(ctx, sigTX1)
	require.NoError(t, err)

	snap, ok := engine.viewports.Get(ctx, sigTX1)
	require.True(t, ok)
	assert.NotEmpty(t, snap.Nodes)
	assert.Equal(t, 1.0, snap.Zoom)
}

func TestExpandTransactionGraph_ExcludesInfrastructure(t *testing.T) {
	voteProgram := "Vote111111111111111111111111111111111111111"
	rpc := &fakeRPC{
		details: map[string]*solana.TransactionDetail{
			sigTX1: {
				Signature:   sigTX1,
				Success:     true,
				AccountKeys: []string{walletA, voteProgram},
				BalanceChanges: []solana.BalanceChange{
					{Address: walletA, Delta: -1},
					{Address: voteProgram, Delta: 1},
				},
			},
		},
	}
	engine := newTestEngine(t, &fakePool{client: rpc}, Options{})

	found, err := engine.ExpandTransactionGraph(context.Background(), sigTX1)
	require.NoError(t, err)
	require.True(t, found)

	assert.False(t, engine.Graph().HasNode(voteProgram))
}

func TestExpandTransactionGraph_ArchivesTransfers(t *testing.T) {
	archive := memory.NewTransferArchiveStore()
	rpc := txScenario()
	engine := newTestEngine(t, &fakePool{client: rpc}, Options{Archive: archive})
	ctx := context.Background()

	_, err := engine.ExpandTransactionGraph(ctx, sigTX1)
	require.NoError(t, err)

	records, err := archive.GetByAccount(ctx, walletB)
	require.NoError(t, err)
	assert.NotEmpty(t, records, "transfer edges must be mirrored into the archive")
}

func TestAddAccountToGraph_EmptyActivityStillLoads(t *testing.T) {
	engine := newTestEngine(t, &fakePool{client: &fakeRPC{}}, Options{})

	engine.AddAccountToGraph(context.Background(),
		fetch.QueueItem{Address: walletA, Depth: 1},
		&fetch.AccountActivity{Address: walletA, Tier: fetch.TierEmpty},
	)

	node, ok := engine.Graph().Node(walletA)
	require.True(t, ok)
	assert.Equal(t, graph.StatusLoaded, node.Status)
}

func TestEventsStreamProgress(t *testing.T) {
	rpc := txScenario()
	engine := newTestEngine(t, &fakePool{client: rpc}, Options{})

	_, err := engine.ExpandTransactionGraph(context.Background(), sigTX1)
	require.NoError(t, err)

	var final float64
	var sawAccountCount bool
drain:
	for {
		select {
		case ev := <-engine.Events():
			switch ev.Type {
			case EventProgress:
				final = ev.Progress
			case EventAccountCount:
				sawAccountCount = true
			}
		default:
			break drain
		}
	}
	assert.Equal(t, 100.0, final)
	assert.True(t, sawAccountCount)
}

func TestFocusSupersedes(t *testing.T) {
	rpc := txScenario()
	// Slow connections keep the first expansion in flight long enough
	// for the second focus to land.
	engine := newTestEngine(t, &fakePool{client: rpc, delay: 20 * time.Millisecond}, Options{})

	engine.Focus(sigTX1)
	engine.Focus(sigTX2)

	assert.Equal(t, sigTX2, engine.Focused())

	require.Eventually(t, func() bool {
		_, ok := engine.viewports.Get(context.Background(), sigTX2)
		return ok
	}, 5*time.Second, 10*time.Millisecond, "superseding focus must complete")
}

func TestSaveViewportRoundTrip(t *testing.T) {
	engine := newTestEngine(t, &fakePool{client: &fakeRPC{}}, Options{})
	ctx := context.Background()

	engine.SaveViewport(ctx, sigTX1, 2.5, 10, -20)

	snap, ok := engine.viewports.Get(ctx, sigTX1)
	require.True(t, ok)
	assert.Equal(t, 2.5, snap.Zoom)
	assert.Equal(t, 10.0, snap.PanX)
	assert.Equal(t, -20.0, snap.PanY)
}
