// ABOUTME: Tracker decides whether a scope's cached data is fresh enough to serve
// ABOUTME: Timestamps live in memory behind a RWMutex and are written through to the store

package staleness

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultWindow is how long a refresh stays valid.
const DefaultWindow = 30 * time.Minute

// Persister stores refresh times. storage.Store satisfies it.
type Persister interface {
	LoadRefreshTimes(ctx context.Context) (map[string]time.Time, error)
	SaveRefreshTime(ctx context.Context, scope string, at time.Time) error
	DeleteRefreshTime(ctx context.Context, scope string) error
}

// SizeFunc reports how many cached items a scope holds. ok is false when
// emptiness does not apply to the scope (counters, cleanup).
type SizeFunc func(ctx context.Context, s Scope) (n int, ok bool, err error)

// Tracker holds the last successful refresh time of every scope.
type Tracker struct {
	mu     sync.RWMutex
	last   map[Scope]time.Time
	window time.Duration

	persist Persister
	size    SizeFunc
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithSizer makes empty cached collections count as stale.
func WithSizer(size SizeFunc) Option {
	return func(t *Tracker) { t.size = size }
}

// WithPersister writes refresh times through to p.
func WithPersister(p Persister) Option {
	return func(t *Tracker) { t.persist = p }
}

// NewTracker creates a tracker with the given staleness window.
func NewTracker(window time.Duration, opts ...Option) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	t := &Tracker{
		last:   make(map[Scope]time.Time),
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load replaces the in-memory state with the persisted timestamps.
// Unknown keys are skipped.
func (t *Tracker) Load(ctx context.Context) error {
	if t.persist == nil {
		return nil
	}
	times, err := t.persist.LoadRefreshTimes(ctx)
	if err != nil {
		return fmt.Errorf("load refresh times: %w", err)
	}

	last := make(map[Scope]time.Time, len(times))
	for key, at := range times {
		s, err := ParseScope(key)
		if err != nil {
			continue
		}
		last[s] = at
	}

	t.mu.Lock()
	t.last = last
	t.mu.Unlock()
	return nil
}

// IsStale reports whether s must be refreshed: it was never refreshed, the
// window has elapsed, or its cached collection is empty. A failing size
// check counts as stale.
func (t *Tracker) IsStale(ctx context.Context, s Scope) bool {
	t.mu.RLock()
	last, ok := t.last[s]
	t.mu.RUnlock()

	if !ok || last.IsZero() {
		return true
	}
	if t.now().Sub(last) > t.window {
		return true
	}
	if t.size != nil {
		n, applies, err := t.size(ctx, s)
		if err != nil {
			return true
		}
		if applies && n == 0 {
			return true
		}
	}
	return false
}

// MarkRefreshed records a successful refresh of s at the current time. If
// persisting fails the in-memory state is left unchanged.
func (t *Tracker) MarkRefreshed(ctx context.Context, s Scope) error {
	at := t.now()
	if t.persist != nil {
		if err := t.persist.SaveRefreshTime(ctx, s.String(), at); err != nil {
			return fmt.Errorf("mark %s refreshed: %w", s, err)
		}
	}

	t.mu.Lock()
	t.last[s] = at
	t.mu.Unlock()
	return nil
}

// Reset forces the next IsStale(s) to report true.
func (t *Tracker) Reset(ctx context.Context, s Scope) error {
	if t.persist != nil {
		if err := t.persist.DeleteRefreshTime(ctx, s.String()); err != nil {
			return fmt.Errorf("reset %s: %w", s, err)
		}
	}

	t.mu.Lock()
	delete(t.last, s)
	t.mu.Unlock()
	return nil
}

// LastRefreshed returns the last refresh time of s, zero if never.
func (t *Tracker) LastRefreshed(s Scope) time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last[s]
}

// Snapshot returns a copy of every tracked timestamp.
func (t *Tracker) Snapshot() map[Scope]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Scope]time.Time, len(t.last))
	for s, at := range t.last {
		out[s] = at
	}
	return out
}

// Window returns the staleness window.
func (t *Tracker) Window() time.Duration {
	return t.window
}
