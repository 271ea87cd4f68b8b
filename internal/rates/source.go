package rates

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"splitbudget/internal/core"
)

// Fetcher pulls a fresh rate table from wherever rates live
// (exchange-rate spreadsheet, SQLite cache, fixture in tests).
type Fetcher interface {
	Fetch(ctx context.Context) (core.RateTable, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) (core.RateTable, error)

func (f FetcherFunc) Fetch(ctx context.Context) (core.RateTable, error) { return f(ctx) }

// Source is the rate-source contract the dashboard consumes.
type Source interface {
	// Cached returns the last good snapshot; possibly empty, never nil maps shared.
	Cached() core.RateTable
	// IsStale reports whether the snapshot is older than the freshness window.
	IsStale(now time.Time) bool
	// Refresh fetches and installs a new snapshot. On failure the last
	// good snapshot is retained.
	Refresh(ctx context.Context) (core.RateTable, error)
}

// Tracker wraps a Fetcher with a cached snapshot and a TTL.
type Tracker struct {
	mu        sync.Mutex
	fetcher   Fetcher
	ttl       time.Duration
	table     core.RateTable
	fetchedAt time.Time
	version   int64
}

func NewTracker(fetcher Fetcher, ttl time.Duration) *Tracker {
	return &Tracker{fetcher: fetcher, ttl: ttl}
}

// Seed installs an initial snapshot, e.g. one loaded from local storage
// at startup, without counting as a fetch failure if it is empty.
func (t *Tracker) Seed(table core.RateTable, fetchedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table = table.Clone()
	t.fetchedAt = fetchedAt
	t.version++
}

func (t *Tracker) Cached() core.RateTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.table.Clone()
}

func (t *Tracker) IsStale(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fetchedAt.IsZero() {
		return true
	}
	return now.Sub(t.fetchedAt) > t.ttl
}

// Version increments every time a new snapshot is installed. It feeds
// the aggregation memo key, so a rate upgrade invalidates memoized
// dashboards without any explicit invalidation call.
func (t *Tracker) Version() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

func (t *Tracker) Refresh(ctx context.Context) (core.RateTable, error) {
	table, err := t.fetcher.Fetch(ctx)
	if err != nil {
		return t.Cached(), err
	}
	// A torn-down consumer must not mutate state after the fact.
	if ctx.Err() != nil {
		return t.Cached(), ctx.Err()
	}
	t.mu.Lock()
	t.table = table.Clone()
	t.fetchedAt = time.Now()
	t.version++
	t.mu.Unlock()
	return table, nil
}

// RefreshInBackground upgrades the snapshot opportunistically. It never
// blocks the caller and a failure only retains the previous snapshot;
// stale-but-displayed data is never retracted.
func (t *Tracker) RefreshInBackground(ctx context.Context) {
	go func() {
		if _, err := t.Refresh(ctx); err != nil {
			slog.WarnContext(ctx, "Background rate refresh failed, keeping last good table",
				"error", err)
		}
	}()
}
