// Package ratelimit provides per-key windowed admission control for
// outbound RPC traffic.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default limiter parameters.
const (
	DefaultLimit         = 50
	DefaultWindow        = 10 * time.Second
	DefaultWaitThreshold = 500 * time.Millisecond
	DefaultGCInterval    = 30 * time.Second
)

// RateLimitError signals that a key exhausted its window. RetryAfter is
// the remaining window duration.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exhausted for %q, retry after %s", e.Key, e.RetryAfter)
}

// entry is the mutable window state for one key.
type entry struct {
	count         int
	windowResetAt time.Time
}

// Config configures a Limiter.
type Config struct {
	// Limit is the number of admissions per window.
	Limit int
	// Window is the admission window length.
	Window time.Duration
	// WaitThreshold: if the remaining window is at most this long the
	// limiter sleeps it out instead of raising a RateLimitError.
	WaitThreshold time.Duration
	// GCInterval is how often expired windows are deleted.
	GCInterval time.Duration
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Limiter tracks admission windows per logical key (endpoint host or
// resource name). Keys are created on first use and garbage-collected
// after expiry; no other component deletes limiter state.
type Limiter struct {
	limit         int
	window        time.Duration
	waitThreshold time.Duration
	logger        *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry

	done     chan struct{}
	closeOne sync.Once

	// now is swappable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a Limiter and starts its janitor goroutine.
func New(cfg Config) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.WaitThreshold <= 0 {
		cfg.WaitThreshold = DefaultWaitThreshold
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = DefaultGCInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	l := &Limiter{
		limit:         cfg.Limit,
		window:        cfg.Window,
		waitThreshold: cfg.WaitThreshold,
		logger:        cfg.Logger,
		entries:       make(map[string]*entry),
		done:          make(chan struct{}),
		now:           time.Now,
		sleep:         time.Sleep,
	}

	go l.janitor(cfg.GCInterval)
	return l
}

// Acquire admits one request for key or returns *RateLimitError carrying
// the remaining window. When the remaining window is short it sleeps it
// out and admits into the fresh window instead of failing.
func (l *Limiter) Acquire(key string) error {
	for {
		wait, err := l.tryAcquire(key)
		if err == nil && wait == 0 {
			return nil
		}
		if err != nil {
			return err
		}
		l.sleep(wait)
	}
}

// tryAcquire returns (0, nil) on admission, (wait, nil) when the caller
// should sleep out the window, or (0, *RateLimitError) on exhaustion.
func (l *Limiter) tryAcquire(key string) (time.Duration, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || now.After(e.windowResetAt) {
		l.entries[key] = &entry{count: 1, windowResetAt: now.Add(l.window)}
		return 0, nil
	}

	if e.count < l.limit {
		e.count++
		return 0, nil
	}

	remaining := e.windowResetAt.Sub(now)
	if remaining <= l.waitThreshold {
		return remaining, nil
	}
	return 0, &RateLimitError{Key: key, RetryAfter: remaining}
}

// Usage reports the current count within the active window for key.
// Zero when no window exists or it expired.
func (l *Limiter) Usage(key string) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok || now.After(e.windowResetAt) {
		return 0
	}
	return e.count
}

// Close stops the janitor. Acquire remains usable after Close but
// expired windows are no longer collected.
func (l *Limiter) Close() {
	l.closeOne.Do(func() { close(l.done) })
}

func (l *Limiter) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.collect()
		}
	}
}

// collect deletes expired windows. This is the only deletion path for
// limiter state.
func (l *Limiter) collect() {
	now := l.now()

	l.mu.Lock()
	removed := 0
	for key, e := range l.entries {
		if now.After(e.windowResetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	remaining := len(l.entries)
	l.mu.Unlock()

	if removed > 0 {
		l.logger.Debug("rate limiter gc",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining))
	}
}
