// Package explorer hosts the graph-construction engine: it expands
// transactions into account/transaction graphs, propagates discovery
// through the fetch scheduler, and serves path and viewport queries.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-graph-explorer/internal/cache"
	"solana-graph-explorer/internal/domain"
	"solana-graph-explorer/internal/fetch"
	"solana-graph-explorer/internal/graph"
	"solana-graph-explorer/internal/ratelimit"
	"solana-graph-explorer/internal/solana"
	"solana-graph-explorer/internal/storage"
	"solana-graph-explorer/internal/tracker"
)

const (
	// DefaultMaxDepth bounds traversal from the seed transaction.
	DefaultMaxDepth = 3

	// DefaultEventBuffer sizes the event stream; slow consumers drop.
	DefaultEventBuffer = 256

	// historyEdgeLimit bounds how many raw-history transactions are
	// attached per account when the transfer tier came up empty.
	historyEdgeLimit = 10
)

// Options configures an Engine. Pool and Scheduler are required.
type Options struct {
	Pool      fetch.ClientPool
	Scheduler *fetch.Scheduler

	Graph        *graph.Graph
	Filter       *graph.ExclusionFilter
	Transactions *cache.TransactionCache
	Paths        *cache.WalletPathCache
	Viewports    *cache.ViewportCache

	// Archive mirrors discovered transfer edges; optional.
	Archive storage.TransferArchiveStore

	// Subscriber enables live account tracking; optional.
	Subscriber solana.LogSubscriber

	MaxDepth    int
	EventBuffer int
	Logger      *zap.Logger
}

// Engine builds and serves the transaction graph.
type Engine struct {
	pool      fetch.ClientPool
	scheduler *fetch.Scheduler
	graph     *graph.Graph
	filter    *graph.ExclusionFilter
	tx        *cache.TransactionCache
	paths     *cache.WalletPathCache
	viewports *cache.ViewportCache
	archive   storage.TransferArchiveStore
	tracker   *tracker.Tracker
	maxDepth  int
	retry     ratelimit.RetryConfig
	log       *zap.Logger

	events    chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	focusMu     sync.Mutex
	focusSig    string
	focusCancel context.CancelFunc
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Pool == nil {
		return nil, errors.New("engine requires an rpc pool")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("engine requires a scheduler")
	}
	if opts.Graph == nil {
		opts.Graph = graph.New()
	}
	if opts.Filter == nil {
		opts.Filter = graph.NewExclusionFilter()
	}
	if opts.Transactions == nil {
		opts.Transactions = cache.NewTransactionCache()
	}
	if opts.Paths == nil {
		opts.Paths = cache.NewWalletPathCache(nil, opts.Logger)
	}
	if opts.Viewports == nil {
		opts.Viewports = cache.NewViewportCache(nil, opts.Logger)
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		pool:      opts.Pool,
		scheduler: opts.Scheduler,
		graph:     opts.Graph,
		filter:    opts.Filter,
		tx:        opts.Transactions,
		paths:     opts.Paths,
		viewports: opts.Viewports,
		archive:   opts.Archive,
		maxDepth:  opts.MaxDepth,
		retry:     ratelimit.RetryConfig{Logger: opts.Logger},
		log:       opts.Logger,
		events:    make(chan Event, opts.EventBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
	if opts.Subscriber != nil {
		e.tracker = tracker.New(opts.Subscriber, opts.Logger)
	}
	return e, nil
}

// Events returns the engine's event stream.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// emit delivers an event without blocking; a full buffer drops it.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

// Graph returns the underlying graph.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Progress returns loading completion as 0–100.
func (e *Engine) Progress() float64 {
	return e.scheduler.Progress()
}

// ExpandTransactionGraph expands the graph around a transaction: the
// transaction node, its participants, and their activity out to the
// configured depth. It returns false when the transaction is unknown to
// the network. A cached viewport snapshot short-circuits the expansion.
func (e *Engine) ExpandTransactionGraph(ctx context.Context, signature string) (bool, error) {
	if signature == "" {
		return false, errors.New("empty signature")
	}

	if snap, ok := e.viewports.Get(ctx, signature); ok {
		nodesAdded, edgesAdded, err := e.restoreSnapshot(snap)
		if err == nil {
			e.log.Info("restoring cached expansion",
				zap.String("signature", signature),
				zap.Int("nodes_added", nodesAdded),
				zap.Int("edges_added", edgesAdded))
			e.emit(Event{
				Type:       EventGraphDelta,
				Signature:  signature,
				NodesAdded: nodesAdded,
				EdgesAdded: edgesAdded,
			})
			return true, nil
		}
		// A snapshot that cannot be decoded is as good as a miss.
		e.log.Warn("snapshot restore failed, re-expanding",
			zap.String("signature", signature), zap.Error(err))
	}

	detail, ok := e.tx.Get(signature)
	if !ok {
		var err error
		detail, err = e.fetchDetail(ctx, signature)
		if err != nil {
			return false, fmt.Errorf("fetch transaction %s: %w", signature, err)
		}
		e.tx.Put(signature, detail)
	}
	if detail == nil {
		return false, nil
	}

	nodesAdded, edgesAdded := e.insertTransaction(ctx, detail)
	e.emit(Event{
		Type:       EventGraphDelta,
		Signature:  signature,
		NodesAdded: nodesAdded,
		EdgesAdded: edgesAdded,
	})

	// Seed the traversal with the participants at depth 1.
	for _, p := range e.filter.Keep(detail.Participants()) {
		if _, err := e.scheduler.Enqueue(fetch.QueueItem{
			Address:         p,
			Depth:           1,
			ParentSignature: signature,
		}); err != nil {
			e.log.Debug("participant rejected", zap.String("address", p), zap.Error(err))
		}
	}

	if err := e.scheduler.ProcessQueue(ctx, e.AddAccountToGraph); err != nil {
		return false, err
	}

	e.saveViewport(ctx, signature)
	e.emit(Event{Type: EventProgress, Progress: e.scheduler.Progress()})
	return true, nil
}

// restoreSnapshot replays a persisted viewport snapshot into the graph so
// a cached expansion is visible without re-fetching, even in a fresh
// process backed by the persistent snapshot store.
func (e *Engine) restoreSnapshot(snap *domain.GraphSnapshot) (nodesAdded, edgesAdded int, err error) {
	var nodes []graph.Node
	var edges []graph.Edge
	if len(snap.Nodes) > 0 {
		if err := json.Unmarshal(snap.Nodes, &nodes); err != nil {
			return 0, 0, fmt.Errorf("decode snapshot nodes: %w", err)
		}
	}
	if len(snap.Edges) > 0 {
		if err := json.Unmarshal(snap.Edges, &edges); err != nil {
			return 0, 0, fmt.Errorf("decode snapshot edges: %w", err)
		}
	}
	nodesAdded, edgesAdded = e.graph.Restore(nodes, edges)
	return nodesAdded, edgesAdded, nil
}

// insertTransaction adds the transaction node, its participant accounts,
// and its transfer edges.
func (e *Engine) insertTransaction(ctx context.Context, detail *solana.TransactionDetail) (nodesAdded, edgesAdded int) {
	if e.graph.AddTransactionNode(detail.Signature, detail.Success, detail.BlockTime) {
		nodesAdded++
	}

	for _, p := range e.filter.Keep(detail.Participants()) {
		if e.graph.AddAccountNode(p) {
			nodesAdded++
		}
		if e.graph.AddEdge(p, detail.Signature) {
			edgesAdded++
		}
	}

	var records []*domain.TransferRecord
	for _, bc := range detail.BalanceChanges {
		if bc.Delta >= 0 || e.filter.Excluded(bc.Address) {
			continue
		}
		target := counterpartyFor(detail, bc)
		if target == "" || e.filter.Excluded(target) {
			continue
		}
		if e.graph.AddTransferEdge(detail.Signature, target, -bc.Delta, bc.Mint) {
			edgesAdded++
		}
		records = append(records, &domain.TransferRecord{
			Signature: detail.Signature,
			Source:    bc.Address,
			Target:    target,
			Mint:      bc.Mint,
			Amount:    -bc.Delta,
			Slot:      detail.Slot,
			Timestamp: detail.BlockTime * 1000,
		})
	}
	e.archiveTransfers(ctx, records)
	return nodesAdded, edgesAdded
}

// AddAccountToGraph folds one resolved account into the graph. It is the
// scheduler's handler: it marks the account loaded (so progress always
// completes, even for excluded or empty accounts), attaches the
// account's transactions and counterparties, and re-queues discoveries
// one level deeper.
func (e *Engine) AddAccountToGraph(ctx context.Context, item fetch.QueueItem, activity *fetch.AccountActivity) {
	address := item.Address

	e.graph.MarkAccountLoaded(address, activity.TotalTransactions)

	var nodesAdded, edgesAdded int
	switch activity.Tier {
	case fetch.TierTransfers:
		nodesAdded, edgesAdded = e.attachTransfers(ctx, item, activity)
	case fetch.TierHistory:
		nodesAdded, edgesAdded = e.attachHistory(item, activity)
	default:
		e.emit(Event{
			Type:     EventWarning,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("no activity resolved for %s", address),
		})
	}

	e.emit(Event{
		Type:       EventGraphDelta,
		NodesAdded: nodesAdded,
		EdgesAdded: edgesAdded,
	})
	accounts, loaded := e.graph.AccountStats()
	e.emit(Event{Type: EventAccountCount, Accounts: accounts, Loaded: loaded})
	e.emit(Event{Type: EventProgress, Progress: e.scheduler.Progress()})
}

// attachTransfers wires the transfer tier: transaction nodes, transfer
// edges, archive records, and depth+1 re-queues.
func (e *Engine) attachTransfers(ctx context.Context, item fetch.QueueItem, activity *fetch.AccountActivity) (nodesAdded, edgesAdded int) {
	address := item.Address
	var records []*domain.TransferRecord

	for _, tr := range activity.Transfers {
		if e.filter.Excluded(tr.Counterparty) {
			continue
		}

		if e.graph.AddTransactionNode(tr.Signature, tr.Success, tr.BlockTime) {
			nodesAdded++
		}
		if e.graph.AddAccountNode(tr.Counterparty) {
			nodesAdded++
		}

		// Outgoing: account → tx → counterparty. Incoming: reversed.
		source, target := address, tr.Counterparty
		if tr.Amount > 0 {
			source, target = tr.Counterparty, address
		}
		if e.graph.AddEdge(source, tr.Signature) {
			edgesAdded++
		}
		if e.graph.AddTransferEdge(tr.Signature, target, abs(tr.Amount), tr.Mint) {
			edgesAdded++
		}

		records = append(records, &domain.TransferRecord{
			Signature: tr.Signature,
			Source:    source,
			Target:    target,
			Mint:      tr.Mint,
			Amount:    abs(tr.Amount),
			Slot:      tr.Slot,
			Timestamp: tr.BlockTime * 1000,
		})

		if item.Depth+1 < e.maxDepth {
			if _, err := e.scheduler.Enqueue(fetch.QueueItem{
				Address:         tr.Counterparty,
				Depth:           item.Depth + 1,
				ParentSignature: tr.Signature,
			}); err != nil {
				e.log.Debug("counterparty rejected", zap.String("address", tr.Counterparty), zap.Error(err))
			}
		}
	}

	e.archiveTransfers(ctx, records)
	return nodesAdded, edgesAdded
}

// attachHistory wires the fallback tier: the account's recent
// transactions as plain participation edges. Re-queue reaches one level
// less deep than the transfer tier, since raw history says nothing about
// how strongly the participants are related.
func (e *Engine) attachHistory(item fetch.QueueItem, activity *fetch.AccountActivity) (nodesAdded, edgesAdded int) {
	address := item.Address

	for i, sig := range activity.Signatures {
		if i >= historyEdgeLimit {
			break
		}
		var blockTime int64
		if sig.BlockTime != nil {
			blockTime = *sig.BlockTime
		}
		if e.graph.AddTransactionNode(sig.Signature, sig.Succeeded(), blockTime) {
			nodesAdded++
		}
		if e.graph.AddEdge(address, sig.Signature) {
			edgesAdded++
		}

		if item.Depth+1 >= e.maxDepth-1 {
			continue
		}
		// Only already-fetched transactions contribute participants;
		// the fallback tier never triggers extra detail fetches.
		detail, ok := e.tx.Get(sig.Signature)
		if !ok {
			continue
		}
		for _, p := range e.filter.Keep(detail.Participants()) {
			if p == address {
				continue
			}
			if _, err := e.scheduler.Enqueue(fetch.QueueItem{
				Address:         p,
				Depth:           item.Depth + 1,
				ParentSignature: sig.Signature,
			}); err != nil {
				e.log.Debug("history participant rejected", zap.String("address", p), zap.Error(err))
			}
		}
	}
	return nodesAdded, edgesAdded
}

// fetchDetail pulls one transaction through the pool with rate-limit
// retries.
func (e *Engine) fetchDetail(ctx context.Context, signature string) (*solana.TransactionDetail, error) {
	var detail *solana.TransactionDetail
	err := ratelimit.Do(ctx, e.retry, signature, func() error {
		conn, err := e.pool.Connection(ctx)
		if err != nil {
			return err
		}
		detail, err = conn.GetTransactionDetail(ctx, signature)
		if err != nil {
			e.pool.ReportFailure(ctx, conn)
			return err
		}
		return nil
	})
	return detail, err
}

// archiveTransfers mirrors transfer records into the archive store;
// archive trouble is logged, never fatal to traversal.
func (e *Engine) archiveTransfers(ctx context.Context, records []*domain.TransferRecord) {
	if e.archive == nil || len(records) == 0 {
		return
	}
	if err := e.archive.InsertBulk(ctx, records); err != nil {
		e.log.Warn("transfer archive insert failed",
			zap.Int("records", len(records)),
			zap.Error(err))
	}
}

// saveViewport snapshots the current graph for the signature, keeping
// the previous zoom/pan if one was saved.
func (e *Engine) saveViewport(ctx context.Context, signature string) {
	nodes, edges := e.graph.Snapshot()
	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		e.log.Warn("snapshot marshal failed", zap.Error(err))
		return
	}
	edgesJSON, err := json.Marshal(edges)
	if err != nil {
		e.log.Warn("snapshot marshal failed", zap.Error(err))
		return
	}

	snap := &domain.GraphSnapshot{
		Signature: signature,
		Nodes:     nodesJSON,
		Edges:     edgesJSON,
		Zoom:      1,
		Timestamp: time.Now().UnixMilli(),
	}
	if prev, ok := e.viewports.Get(ctx, signature); ok {
		snap.Zoom = prev.Zoom
		snap.PanX = prev.PanX
		snap.PanY = prev.PanY
	}
	e.viewports.Put(ctx, snap)
}

// SaveViewport records the viewer's zoom/pan for a signature so a later
// refocus restores the same view.
func (e *Engine) SaveViewport(ctx context.Context, signature string, zoom, panX, panY float64) {
	snap, ok := e.viewports.Get(ctx, signature)
	if !ok {
		snap = &domain.GraphSnapshot{Signature: signature}
	}
	snap.Zoom = zoom
	snap.PanX = panX
	snap.PanY = panY
	snap.Timestamp = time.Now().UnixMilli()
	e.viewports.Put(ctx, snap)
}

// Focus makes signature the current expansion target, superseding any
// expansion in flight. The superseded expansion's cancellation is not an
// error. Focus returns immediately; outcomes surface on the event stream.
func (e *Engine) Focus(signature string) {
	e.focusMu.Lock()
	if e.focusCancel != nil {
		e.focusCancel()
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.focusCancel = cancel
	e.focusSig = signature
	e.focusMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()

		found, err := e.ExpandTransactionGraph(ctx, signature)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				e.log.Debug("expansion superseded", zap.String("signature", signature))
				return
			}
			e.emit(Event{
				Type:     EventWarning,
				Severity: SeverityError,
				Message:  fmt.Sprintf("expansion of %s failed: %v", signature, err),
			})
			return
		}
		if !found {
			e.emit(Event{
				Type:     EventWarning,
				Severity: SeverityWarn,
				Message:  fmt.Sprintf("transaction %s not found", signature),
			})
		}
	}()
}

// Focused returns the current focus signature.
func (e *Engine) Focused() string {
	e.focusMu.Lock()
	defer e.focusMu.Unlock()
	return e.focusSig
}

// TrackAccount follows the account live: each new confirmed transaction
// mentioning it becomes the new focus.
func (e *Engine) TrackAccount(address string) error {
	if e.tracker == nil {
		return errors.New("no log subscriber configured")
	}
	return e.tracker.Track(e.ctx, address, func(_, signature string) {
		e.Focus(signature)
	})
}

// StopTracking stops following the account.
func (e *Engine) StopTracking(address string) {
	if e.tracker != nil {
		e.tracker.Stop(address)
	}
}

// Close cancels in-flight work and shuts the event stream.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		if e.tracker != nil {
			e.tracker.Close()
		}
		e.wg.Wait()
		close(e.events)
	})
}

// counterpartyFor finds the opposite side of a negative balance change:
// same mint, positive delta, largest magnitude.
func counterpartyFor(detail *solana.TransactionDetail, bc solana.BalanceChange) string {
	best := 0.0
	target := ""
	for _, other := range detail.BalanceChanges {
		if other.Address == bc.Address || other.Mint != bc.Mint || other.Delta <= 0 {
			continue
		}
		if other.Delta > best {
			best = other.Delta
			target = other.Address
		}
	}
	return target
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
