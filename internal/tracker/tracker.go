// Package tracker follows live activity of accounts over the websocket
// log stream and hands new signatures to a callback.
package tracker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"solana-graph-explorer/internal/addr"
	"solana-graph-explorer/internal/solana"
)

// OnSignature is invoked for each confirmed transaction mentioning a
// tracked account. Failed transactions are filtered out before the
// callback.
type OnSignature func(address, signature string)

// Tracker multiplexes account log subscriptions over one subscriber.
type Tracker struct {
	sub solana.LogSubscriber
	log *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// New creates a tracker over the subscriber.
func New(sub solana.LogSubscriber, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		sub:     sub,
		log:     logger,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Track subscribes to the account's logs and forwards new signatures to
// the callback until Stop or Close. Tracking an already-tracked account
// is a no-op.
func (t *Tracker) Track(ctx context.Context, address string, onSig OnSignature) error {
	if !addr.IsValid(address) {
		return errors.New("invalid account address")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("tracker closed")
	}
	if _, ok := t.cancels[address]; ok {
		t.mu.Unlock()
		return nil
	}

	trackCtx, cancel := context.WithCancel(ctx)
	t.cancels[address] = cancel
	t.mu.Unlock()

	events, err := t.sub.SubscribeAccountLogs(trackCtx, address)
	if err != nil {
		t.forget(address)
		cancel()
		return err
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.forget(address)

		for {
			select {
			case <-trackCtx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					t.log.Debug("log stream closed", zap.String("address", address))
					return
				}
				if ev.Failed || ev.Signature == "" {
					continue
				}
				onSig(address, ev.Signature)
			}
		}
	}()

	t.log.Info("tracking account", zap.String("address", address))
	return nil
}

// Stop stops tracking one account. Stopping an untracked account is a
// no-op.
func (t *Tracker) Stop(address string) {
	t.mu.Lock()
	cancel, ok := t.cancels[address]
	t.mu.Unlock()
	if ok {
		cancel()
	}
}

// Tracked reports whether the account is currently tracked.
func (t *Tracker) Tracked(address string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.cancels[address]
	return ok
}

func (t *Tracker) forget(address string) {
	t.mu.Lock()
	delete(t.cancels, address)
	t.mu.Unlock()
}

// Close stops all subscriptions and waits for the watch goroutines.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	cancels := make([]context.CancelFunc, 0, len(t.cancels))
	for _, c := range t.cancels {
		cancels = append(cancels, c)
	}
	t.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	t.wg.Wait()
}
