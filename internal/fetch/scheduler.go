package fetch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-graph-explorer/internal/addr"
	"solana-graph-explorer/internal/observability"
)

// Scheduler defaults.
const (
	// DefaultQueueCapacity is the hard queue bound; enqueues past it are
	// dropped with a warning rather than blocking discovery.
	DefaultQueueCapacity = 1000

	// DefaultBatchSize bounds concurrent account resolutions per batch.
	DefaultBatchSize = 10

	// DefaultItemTimeout bounds a single account resolution.
	DefaultItemTimeout = 30 * time.Second

	// DefaultBatchDelay spaces batches out so a deep traversal does not
	// saturate the endpoints.
	DefaultBatchDelay = 50 * time.Millisecond
)

// ErrInvalidAddress rejects malformed addresses synchronously at enqueue.
var ErrInvalidAddress = errors.New("invalid account address")

// defaultDeniedAddresses are exchange hot wallets whose histories are
// effectively unbounded; resolving them would swamp every traversal.
// They short-circuit to an empty activity without touching the network.
var defaultDeniedAddresses = []string{
	"5tzFkiKscXHK5ZXCGbXZxdw7gTjjD1mBwuoFbhUvuAi9", // Binance
	"2ojv9BAiHUrvsm9gxDe7fJSzbNZSJcxZvf8dqmWGHG8S", // Binance
	"ASTyfSima4LLAdDgoFGkgqoKowG1LZFDr9fAQrg7iaJZ", // MEXC
	"AC5RDfQFmDS1deWZos921JfqscXdByf8BKHs5ACWjtW2", // Bybit
	"FWznbcNXWQuHTawe9RxvQ2LdCENssh12dsznf4RiouN5", // Kraken
}

// QueueItem is one account awaiting resolution.
type QueueItem struct {
	Address string
	Depth   int
	// ParentSignature is the transaction that discovered this account,
	// empty for seeds.
	ParentSignature string
}

// Resolver resolves one account's activity. Implementations never
// return nil (see TieredResolver).
type Resolver interface {
	Resolve(ctx context.Context, address string) *AccountActivity
}

// Handler consumes a resolved queue item.
type Handler func(ctx context.Context, item QueueItem, activity *AccountActivity)

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Resolver    Resolver
	Capacity    int
	BatchSize   int
	ItemTimeout time.Duration
	BatchDelay  time.Duration
	// Denied lists additional circuit-breaker addresses on top of the
	// built-in exchange hot wallets: they resolve to an explicit empty
	// activity without any network call.
	Denied []string
	Logger *zap.Logger
}

// Scheduler is the fetch queue: FIFO across batches, deduplicated, with
// a hard capacity and a deny-list circuit breaker.
type Scheduler struct {
	resolver    Resolver
	capacity    int
	batchSize   int
	itemTimeout time.Duration
	batchDelay  time.Duration
	log         *zap.Logger

	mu              sync.Mutex
	queue           []QueueItem
	pending         map[string]struct{}
	loaded          map[string]struct{}
	denied          map[string]struct{}
	draining        bool
	dropped         int
	totalDiscovered int

	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a scheduler. Resolver is required.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("scheduler requires a resolver")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultQueueCapacity
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = DefaultItemTimeout
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	denied := make(map[string]struct{}, len(defaultDeniedAddresses)+len(cfg.Denied))
	for _, a := range defaultDeniedAddresses {
		denied[a] = struct{}{}
	}
	for _, a := range cfg.Denied {
		denied[a] = struct{}{}
	}

	return &Scheduler{
		resolver:    cfg.Resolver,
		capacity:    cfg.Capacity,
		batchSize:   cfg.BatchSize,
		itemTimeout: cfg.ItemTimeout,
		batchDelay:  cfg.BatchDelay,
		log:         cfg.Logger,
		pending:     make(map[string]struct{}),
		loaded:      make(map[string]struct{}),
		denied:      denied,
		sleep:       sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Enqueue adds an account to the queue. It returns true when the item was
// accepted. Malformed addresses fail with ErrInvalidAddress; duplicate
// and over-capacity items are silently refused (the drop is counted and
// logged for the capacity case). Denied addresses are accepted and
// short-circuited at resolution time.
func (s *Scheduler) Enqueue(item QueueItem) (bool, error) {
	if !addr.IsValid(item.Address) {
		return false, ErrInvalidAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loaded[item.Address]; ok {
		return false, nil
	}
	if _, ok := s.pending[item.Address]; ok {
		return false, nil
	}
	if len(s.queue) >= s.capacity {
		s.dropped++
		observability.RecordQueueDrop()
		s.log.Warn("fetch queue full, dropping account",
			zap.String("address", item.Address),
			zap.Int("depth", item.Depth),
			zap.Int("dropped_total", s.dropped))
		return false, nil
	}

	s.pending[item.Address] = struct{}{}
	s.queue = append(s.queue, item)
	s.totalDiscovered++
	return true, nil
}

// ProcessQueue drains the queue in FIFO batches until it is empty or the
// context is cancelled. Only one drain runs at a time; concurrent calls
// return immediately.
func (s *Scheduler) ProcessQueue(ctx context.Context, handle Handler) error {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return nil
	}
	s.draining = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	for {
		batch := s.takeBatch()
		if len(batch) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, item := range batch {
			item := item
			g.Go(func() error {
				s.processItem(gctx, item, handle)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if s.QueueLen() > 0 {
			if err := s.sleep(ctx, s.batchDelay); err != nil {
				return err
			}
		}
	}
}

// processItem resolves one account under the per-item timeout. Denied
// addresses skip the resolver and yield an explicit empty activity, so
// the handler still sees a visited-but-empty account. Completed items
// move pending→loaded; a cancelled item is requeued instead, since an
// aborted fetch is not a completion.
func (s *Scheduler) processItem(ctx context.Context, item QueueItem, handle Handler) {
	var activity *AccountActivity
	if s.Denied(item.Address) {
		s.log.Debug("circuit breaker short-circuit", zap.String("address", item.Address))
		activity = &AccountActivity{Address: item.Address, Tier: TierEmpty}
	} else {
		itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
		defer cancel()
		activity = s.resolver.Resolve(itemCtx, item.Address)
	}

	if ctx.Err() != nil {
		s.requeue(item)
		return
	}

	s.mu.Lock()
	delete(s.pending, item.Address)
	s.loaded[item.Address] = struct{}{}
	s.mu.Unlock()
	observability.RecordAccountResolved()

	handle(ctx, item, activity)
}

// requeue puts an aborted item back at the head of the queue; its pending
// mark is kept so the next drain resolves it.
func (s *Scheduler) requeue(item QueueItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append([]QueueItem{item}, s.queue...)
}

func (s *Scheduler) takeBatch() []QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.batchSize
	if n > len(s.queue) {
		n = len(s.queue)
	}
	if n == 0 {
		return nil
	}

	batch := make([]QueueItem, n)
	copy(batch, s.queue[:n])
	s.queue = s.queue[n:]
	return batch
}

// Loaded reports whether the address was already resolved this session.
func (s *Scheduler) Loaded(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loaded[address]
	return ok
}

// Denied reports whether the address is on the circuit-breaker deny-list.
func (s *Scheduler) Denied(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.denied[address]
	return ok
}

// QueueLen returns the number of queued items.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Progress returns completion as a 0–100 percentage of discovered
// accounts that finished loading.
func (s *Scheduler) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.totalDiscovered
	if total < 1 {
		total = 1
	}
	return float64(len(s.loaded)) / float64(total) * 100
}

// Stats returns queue counters for logging and the event stream.
func (s *Scheduler) Stats() (queued, loaded, dropped, discovered int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue), len(s.loaded), s.dropped, s.totalDiscovered
}
