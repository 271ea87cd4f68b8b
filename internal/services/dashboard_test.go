package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitbudget/internal/aggregate"
	"splitbudget/internal/amqp"
	"splitbudget/internal/cache"
	"splitbudget/internal/core"
	"splitbudget/internal/window"
)

type fakeRepo struct {
	user        core.User
	userErr     error
	group       core.Group
	hasGroup    bool
	groupErr    error
	expenses    []core.Expense
	expensesErr error
	settlements []core.Settlement
	revision    int64
	revisionErr error

	expenseCalls int
}

func (f *fakeRepo) GetUser(ctx context.Context, id string) (core.User, error) {
	if f.userErr != nil {
		return core.User{}, f.userErr
	}
	return f.user, nil
}

func (f *fakeRepo) GroupForUser(ctx context.Context, userID string) (core.Group, bool, error) {
	if f.groupErr != nil {
		return core.Group{}, false, f.groupErr
	}
	return f.group, f.hasGroup, nil
}

func (f *fakeRepo) ListExpenses(ctx context.Context, groupID string) ([]core.Expense, error) {
	f.expenseCalls++
	if f.expensesErr != nil {
		return nil, f.expensesErr
	}
	return f.expenses, nil
}

func (f *fakeRepo) ListSettlements(ctx context.Context, groupID string) ([]core.Settlement, error) {
	return f.settlements, nil
}

func (f *fakeRepo) ExpenseRevision(ctx context.Context) (int64, error) {
	if f.revisionErr != nil {
		return 0, f.revisionErr
	}
	return f.revision, nil
}

type fakeRates struct {
	table    core.RateTable
	stale    bool
	version  int64
	refreshC chan struct{}
	bgCtx    context.Context
}

func (f *fakeRates) Cached() core.RateTable     { return f.table }
func (f *fakeRates) IsStale(now time.Time) bool { return f.stale }
func (f *fakeRates) Version() int64             { return f.version }

func (f *fakeRates) Refresh(ctx context.Context) (core.RateTable, error) {
	if f.refreshC != nil {
		f.refreshC <- struct{}{}
	}
	return f.table, nil
}

func (f *fakeRates) RefreshInBackground(ctx context.Context) {
	f.bgCtx = ctx
}

func newTestService(repo *fakeRepo, rates *fakeRates) *DashboardService {
	memo := cache.New[aggregate.Summary](16, time.Minute)
	svc := NewDashboardService(repo, rates, memo, slog.Default())
	return svc.WithClock(func() time.Time {
		return time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	})
}

func expense(id string, day int, amount, paidBy string, split []string) core.Expense {
	return core.Expense{
		ID:           id,
		Date:         core.NewDate(2026, 6, day),
		Description:  "test",
		Amount:       decimal.RequireFromString(amount),
		Currency:     "EUR",
		Category:     "groceries",
		PaidBy:       paidBy,
		SplitBetween: split,
		CreatedAt:    time.Date(2026, 6, day, 10, 0, 0, 0, time.UTC),
	}
}

func TestSnapshotUnknownUser(t *testing.T) {
	repo := &fakeRepo{userErr: errors.New("no such user")}
	_, err := newTestService(repo, &fakeRates{}).Snapshot(context.Background(), "ghost", window.ModeCurrent, nil)
	require.Error(t, err)
}

func TestSnapshotNoGroup(t *testing.T) {
	repo := &fakeRepo{
		user:     core.User{ID: "u1", Name: "Ada", MonthlyBudget: decimal.NewFromInt(500)},
		hasGroup: false,
	}
	d, err := newTestService(repo, &fakeRates{}).Snapshot(context.Background(), "u1", window.ModeCurrent, nil)
	require.NoError(t, err)

	assert.False(t, d.HasGroup)
	assert.True(t, d.Summary.TotalSpent.IsZero())
	assert.Len(t, d.AvailableMonths, 1)
	assert.Equal(t, core.MonthKey{Year: 2026, Month: 6}, d.AvailableMonths[0])
	assert.Zero(t, repo.expenseCalls)
}

func TestSnapshotAggregatesCurrentMonth(t *testing.T) {
	repo := &fakeRepo{
		user:     core.User{ID: "u1", MonthlyBudget: decimal.NewFromInt(500), DefaultCurrency: "EUR"},
		group:    core.Group{ID: "g1", DefaultCurrency: "EUR"},
		hasGroup: true,
		expenses: []core.Expense{
			expense("e1", 3, "80", "u1", []string{"u1"}),
			expense("e2", 10, "80", "u1", []string{"u1", "u2"}),
		},
		revision: 7,
	}
	d, err := newTestService(repo, &fakeRates{}).Snapshot(context.Background(), "u1", window.ModeCurrent, nil)
	require.NoError(t, err)

	assert.Equal(t, core.MonthKey{Year: 2026, Month: 6}, d.Month)
	assert.Equal(t, "120", d.Summary.TotalSpent.String())
	assert.Equal(t, "380", d.Summary.Remaining.String())
	assert.Equal(t, "EUR", d.DisplayCurrency)
}

func TestSnapshotMemoizesByRevision(t *testing.T) {
	repo := &fakeRepo{
		user:     core.User{ID: "u1", MonthlyBudget: decimal.NewFromInt(500), DefaultCurrency: "EUR"},
		group:    core.Group{ID: "g1"},
		hasGroup: true,
		expenses: []core.Expense{expense("e1", 3, "100", "u1", []string{"u1"})},
		revision: 1,
	}
	svc := newTestService(repo, &fakeRates{})

	first, err := svc.Snapshot(context.Background(), "u1", window.ModeCurrent, nil)
	require.NoError(t, err)

	// Snapshot changes but the revision does not: the memoized summary
	// wins until the revision key moves.
	repo.expenses = append(repo.expenses, expense("e2", 4, "50", "u1", []string{"u1"}))
	second, err := svc.Snapshot(context.Background(), "u1", window.ModeCurrent, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Summary.TotalSpent.String(), second.Summary.TotalSpent.String())

	repo.revision = 2
	third, err := svc.Snapshot(context.Background(), "u1", window.ModeCurrent, nil)
	require.NoError(t, err)
	assert.Equal(t, "150", third.Summary.TotalSpent.String())
}

func TestSnapshotDegradesOnExpenseError(t *testing.T) {
	repo := &fakeRepo{
		user:        core.User{ID: "u1", MonthlyBudget: decimal.NewFromInt(300)},
		group:       core.Group{ID: "g1"},
		hasGroup:    true,
		expensesErr: errors.New("db locked"),
	}
	d, err := newTestService(repo, &fakeRates{}).Snapshot(context.Background(), "u1", window.ModeCurrent, nil)
	require.NoError(t, err)
	assert.True(t, d.Summary.TotalSpent.IsZero())
	assert.Equal(t, "300", d.Summary.Remaining.String())
}

func TestSnapshotCustomWindow(t *testing.T) {
	repo := &fakeRepo{
		user:     core.User{ID: "u1", MonthlyBudget: decimal.NewFromInt(500)},
		group:    core.Group{ID: "g1"},
		hasGroup: true,
		expenses: []core.Expense{
			expense("old", 1, "40", "u1", []string{"u1"}),
		},
		revision: 3,
	}
	repo.expenses[0].Date = core.NewDate(2026, 4, 20)

	month := core.MonthKey{Year: 2026, Month: 4}
	d, err := newTestService(repo, &fakeRates{}).Snapshot(context.Background(), "u1", window.ModeCustom, &month)
	require.NoError(t, err)
	assert.Equal(t, month, d.Month)
	assert.Equal(t, "40", d.Summary.TotalSpent.String())
}

func TestSnapshotStaleRatesTriggersRefresh(t *testing.T) {
	repo := &fakeRepo{
		user:     core.User{ID: "u1", MonthlyBudget: decimal.NewFromInt(100)},
		hasGroup: false,
	}
	rates := &fakeRates{stale: true}
	d, err := newTestService(repo, rates).Snapshot(context.Background(), "u1", window.ModeCurrent, nil)
	require.NoError(t, err)
	assert.True(t, d.RatesStale)
	assert.NotNil(t, rates.bgCtx, "stale snapshot must kick a background refresh")
}

func TestStaleRefreshOutlivesRequest(t *testing.T) {
	repo := &fakeRepo{
		user:     core.User{ID: "u1", MonthlyBudget: decimal.NewFromInt(100)},
		hasGroup: false,
	}
	rates := &fakeRates{stale: true}

	ctx, cancel := context.WithCancel(context.Background())
	_, err := newTestService(repo, rates).Snapshot(ctx, "u1", window.ModeCurrent, nil)
	require.NoError(t, err)
	cancel()

	// The refresh context must survive the request teardown, or the
	// tracker will discard every opportunistic upgrade.
	require.NotNil(t, rates.bgCtx)
	assert.NoError(t, rates.bgCtx.Err())
}

func TestHandleChangeRatesRefreshed(t *testing.T) {
	rates := &fakeRates{refreshC: make(chan struct{}, 1)}
	svc := newTestService(&fakeRepo{}, rates)
	err := svc.HandleChange(context.Background(), amqp.NewRatesRefreshed("EUR", 3))
	require.NoError(t, err)
	select {
	case <-rates.refreshC:
	default:
		t.Fatal("rates event did not trigger a reload")
	}
}

type fakeWriter struct {
	id  string
	err error
}

func (f *fakeWriter) SaveExpense(ctx context.Context, groupID string, e core.Expense) (string, error) {
	return f.id, f.err
}

type fakePublisher struct {
	published chan string
	err       error
}

func (f *fakePublisher) PublishExpenseChanged(ctx context.Context, groupID, expenseID string) error {
	if f.published != nil {
		f.published <- expenseID
	}
	return f.err
}

func TestCreateExpensePublishes(t *testing.T) {
	pub := &fakePublisher{published: make(chan string, 1)}
	svc := NewExpenseService(&fakeWriter{id: "e-42"}, pub, slog.Default())

	id, err := svc.CreateExpense(context.Background(), "g1", core.Expense{})
	require.NoError(t, err)
	assert.Equal(t, "e-42", id)

	select {
	case got := <-pub.published:
		assert.Equal(t, "e-42", got)
	case <-time.After(2 * time.Second):
		t.Fatal("expense event never published")
	}
}

func TestCreateExpensePublishFailureIsSilent(t *testing.T) {
	pub := &fakePublisher{published: make(chan string, 1), err: errors.New("broker down")}
	svc := NewExpenseService(&fakeWriter{id: "e-1"}, pub, slog.Default())

	id, err := svc.CreateExpense(context.Background(), "g1", core.Expense{})
	require.NoError(t, err)
	assert.Equal(t, "e-1", id)
	<-pub.published
}

func TestCreateExpenseNilPublisher(t *testing.T) {
	svc := NewExpenseService(&fakeWriter{id: "e-2"}, nil, slog.Default())
	id, err := svc.CreateExpense(context.Background(), "g1", core.Expense{})
	require.NoError(t, err)
	assert.Equal(t, "e-2", id)
}

func TestCreateExpenseWriteFailure(t *testing.T) {
	pub := &fakePublisher{published: make(chan string, 1)}
	svc := NewExpenseService(&fakeWriter{err: errors.New("constraint")}, pub, slog.Default())
	_, err := svc.CreateExpense(context.Background(), "g1", core.Expense{})
	require.Error(t, err)
	select {
	case <-pub.published:
		t.Fatal("publish after failed write")
	default:
	}
}
