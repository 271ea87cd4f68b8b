package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"splitbudget/internal/core"
	"splitbudget/internal/rates"
)

// RateStore persists fetched rate tables for the dashboard instances
// to read back.
type RateStore interface {
	SaveRates(ctx context.Context, table core.RateTable, fetchedAt time.Time) error
}

// RatePublisher announces a refreshed table on the change bus. A nil
// publisher disables announcements.
type RatePublisher interface {
	PublishRatesRefreshed(ctx context.Context, base string, rateCount int) error
}

// RatesWorker periodically pulls the rate sheet, persists the table
// and announces the refresh. One cycle failing leaves the previous
// table in place; the worker keeps ticking.
type RatesWorker struct {
	fetcher   rates.Fetcher
	store     RateStore
	publisher RatePublisher
	interval  time.Duration
}

func NewRatesWorker(fetcher rates.Fetcher, store RateStore, publisher RatePublisher, interval time.Duration) *RatesWorker {
	return &RatesWorker{
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		interval:  interval,
	}
}

// Run refreshes once immediately, then on every tick until ctx is done.
func (w *RatesWorker) Run(ctx context.Context) error {
	if err := w.RefreshOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial rate refresh failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.RefreshOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic rate refresh failed", "error", err)
			}
		}
	}
}

// RefreshOnce performs a single fetch-persist-announce cycle.
func (w *RatesWorker) RefreshOnce(ctx context.Context) error {
	table, err := w.fetcher.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch rates: %w", err)
	}

	fetchedAt := time.Now()
	if err := w.store.SaveRates(ctx, table, fetchedAt); err != nil {
		return fmt.Errorf("persist rates: %w", err)
	}

	slog.InfoContext(ctx, "Rate table persisted",
		"base", table.Base,
		"rate_count", len(table.Rates))

	if w.publisher != nil {
		if err := w.publisher.PublishRatesRefreshed(ctx, table.Base, len(table.Rates)); err != nil {
			// The table is already persisted, readers will pick it up
			// on their next TTL expiry even without the event.
			slog.WarnContext(ctx, "Rate refresh announcement failed", "error", err)
		}
	}
	return nil
}
