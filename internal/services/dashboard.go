package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"splitbudget/internal/aggregate"
	"splitbudget/internal/amqp"
	"splitbudget/internal/cache"
	"splitbudget/internal/classify"
	"splitbudget/internal/core"
	applog "splitbudget/internal/log"
	"splitbudget/internal/window"
)

// Dashboard is the full read-side view for one user: the windowed,
// currency-normalized aggregation plus the surrounding context the UI
// needs to render month pickers and settlement history.
type Dashboard struct {
	User            core.User
	HasGroup        bool
	Group           core.Group
	DisplayCurrency string
	Mode            window.Mode
	Month           core.MonthKey
	AvailableMonths []core.MonthKey
	Summary         aggregate.Summary
	Settlements     []core.Settlement
	RatesStale      bool
}

// DashboardService computes dashboards from repository snapshots. The
// aggregation itself is pure; results are memoized on a key that folds
// in every input revision, so a stale entry is unreachable by key.
type DashboardService struct {
	repo   Repository
	rates  RateSource
	memo   *cache.Memo[aggregate.Summary]
	logger *slog.Logger
	now    func() time.Time
}

func NewDashboardService(repo Repository, rates RateSource, memo *cache.Memo[aggregate.Summary], logger *slog.Logger) *DashboardService {
	return &DashboardService{
		repo:   repo,
		rates:  rates,
		memo:   memo,
		logger: logger.With(applog.FieldComponent, applog.ComponentDashboard),
		now:    time.Now,
	}
}

// WithClock overrides the service clock. Tests use this to pin the
// current month.
func (s *DashboardService) WithClock(now func() time.Time) *DashboardService {
	s.now = now
	return s
}

// Snapshot assembles the dashboard for userID over the requested
// window. An unknown user is an error; a missing group, or a failed
// expense or settlement fetch, degrades to an empty view instead.
func (s *DashboardService) Snapshot(ctx context.Context, userID string, mode window.Mode, month *core.MonthKey) (Dashboard, error) {
	now := s.now()

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}

	group, hasGroup, err := s.repo.GroupForUser(ctx, userID)
	if err != nil {
		s.logger.Warn("group lookup failed, rendering without group",
			applog.FieldUserID, userID, applog.FieldError, err)
		hasGroup = false
	}

	d := Dashboard{
		User:            user,
		HasGroup:        hasGroup,
		Group:           group,
		DisplayCurrency: displayCurrency(user, group),
		Mode:            mode,
	}

	var (
		expenses    []core.Expense
		settlements []core.Settlement
	)
	if hasGroup {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			if expenses, err = s.repo.ListExpenses(gctx, group.ID); err != nil {
				s.logger.Warn("expense fetch failed, rendering empty window",
					applog.FieldGroupID, group.ID, applog.FieldError, err)
				expenses = nil
			}
			return nil
		})
		g.Go(func() error {
			var err error
			if settlements, err = s.repo.ListSettlements(gctx, group.ID); err != nil {
				s.logger.Warn("settlement fetch failed",
					applog.FieldGroupID, group.ID, applog.FieldError, err)
				settlements = nil
			}
			return nil
		})
		_ = g.Wait()
	}
	d.Settlements = settlements
	d.AvailableMonths = window.AvailableMonths(expenses, userID, now)

	selected := core.MonthOf(now)
	if mode == window.ModeCustom && month != nil {
		selected = *month
	}
	d.Month = selected
	windowed := window.Select(expenses, userID, mode, month, now)

	table := s.rates.Cached()
	d.RatesStale = s.rates.IsStale(now)
	if d.RatesStale {
		// The upgrade must outlive this request; the request context
		// is cancelled the moment the handler returns.
		s.rates.RefreshInBackground(context.WithoutCancel(ctx))
	}

	d.Summary = s.summarize(ctx, userID, mode, selected, windowed, user.MonthlyBudget, d.DisplayCurrency, table, now)
	return d, nil
}

func (s *DashboardService) summarize(ctx context.Context, userID string, mode window.Mode, month core.MonthKey, windowed []core.Expense, budget decimal.Decimal, display string, table core.RateTable, now time.Time) aggregate.Summary {
	rev, err := s.repo.ExpenseRevision(ctx)
	if err != nil {
		// No stable revision, compute without touching the memo.
		s.logger.Warn("revision read failed, skipping memo", applog.FieldError, err)
		return s.compute(userID, windowed, budget, display, table, now)
	}

	key := cache.Key(userID, mode, month.Year, month.Month, rev, s.rates.Version(), budget.String(), display, now.Year(), int(now.Month()))
	if cached, ok := s.memo.Get(key); ok {
		return cached
	}
	summary := s.compute(userID, windowed, budget, display, table, now)
	s.memo.Set(key, summary)
	return summary
}

func (s *DashboardService) compute(userID string, windowed []core.Expense, budget decimal.Decimal, display string, table core.RateTable, now time.Time) aggregate.Summary {
	if display == "" {
		display = table.Base
	}
	classified, skipped := classify.All(windowed, userID, display, table)
	if skipped > 0 {
		s.logger.Warn("skipped malformed expenses during aggregation",
			applog.FieldUserID, userID, applog.FieldSkipped, skipped)
	}
	summary := aggregate.Aggregate(classified, budget, now)
	summary.Skipped = skipped
	return summary
}

// HandleChange reacts to bus events from other instances. Rate events
// reload the tracker; expense events only need the memo dropped, the
// revision key takes care of the rest on the next read.
func (s *DashboardService) HandleChange(ctx context.Context, event *amqp.ChangeEvent) error {
	switch event.Type {
	case amqp.EventRatesRefreshed:
		if _, err := s.rates.Refresh(ctx); err != nil {
			return err
		}
	case amqp.EventExpenseChanged:
		s.memo.Purge()
	}
	return nil
}

func displayCurrency(user core.User, group core.Group) string {
	if user.DefaultCurrency != "" {
		return user.DefaultCurrency
	}
	return group.DefaultCurrency
}
