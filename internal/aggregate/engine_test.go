package aggregate

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitbudget/internal/classify"
	"splitbudget/internal/core"
)

const me = "u-me"

var now = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func classified(t *testing.T, e core.Expense, table core.RateTable) classify.Classified {
	t.Helper()
	c, err := classify.One(e, me, "EUR", table)
	require.NoError(t, err)
	return c
}

func soloExpense(id string, amount float64, category string, date core.Date) core.Expense {
	return core.Expense{
		ID:           id,
		Date:         date,
		Description:  id,
		Amount:       decimal.NewFromFloat(amount),
		Currency:     "EUR",
		Category:     category,
		PaidBy:       me,
		SplitBetween: []string{me},
		CreatedAt:    now,
	}
}

func TestAggregateSingleOwnExpense(t *testing.T) {
	// Budget 500, one solo expense of 120: spent 120, remaining 380, 24% used.
	cs := []classify.Classified{
		classified(t, soloExpense("a", 120, "Groceries", core.NewDate(2026, 8, 10)), core.RateTable{}),
	}
	s := Aggregate(cs, decimal.NewFromInt(500), now)

	assert.True(t, s.TotalSpent.Equal(decimal.NewFromInt(120)), "spent %s", s.TotalSpent)
	assert.True(t, s.Remaining.Equal(decimal.NewFromInt(380)), "remaining %s", s.Remaining)
	assert.True(t, s.PercentUsed.Equal(decimal.NewFromInt(24)), "used %s", s.PercentUsed)
	assert.True(t, s.PercentRemaining.Equal(decimal.NewFromInt(76)), "left %s", s.PercentRemaining)
}

func TestAggregateEvenSplitShare(t *testing.T) {
	// Budget 200, 90 split across three people including the user: spent 30.
	e := core.Expense{
		ID:           "split",
		Date:         core.NewDate(2026, 8, 5),
		Amount:       decimal.NewFromInt(90),
		Currency:     "EUR",
		Category:     "Dining",
		PaidBy:       "u-2",
		SplitBetween: []string{me, "u-2", "u-3"},
		CreatedAt:    now,
	}
	s := Aggregate([]classify.Classified{classified(t, e, core.RateTable{})}, decimal.NewFromInt(200), now)
	assert.True(t, s.TotalSpent.Equal(decimal.NewFromInt(30)), "spent %s", s.TotalSpent)
}

func TestAggregateOverBudgetSurfacesNegativeRemaining(t *testing.T) {
	cs := []classify.Classified{
		classified(t, soloExpense("a", 150, "Misc", core.NewDate(2026, 8, 10)), core.RateTable{}),
	}
	s := Aggregate(cs, decimal.NewFromInt(100), now)

	assert.True(t, s.Remaining.Equal(decimal.NewFromInt(-50)), "remaining %s", s.Remaining)
	assert.True(t, s.PercentUsed.Equal(decimal.NewFromInt(100)), "used clamps at 100, got %s", s.PercentUsed)
	assert.True(t, s.PercentRemaining.IsZero(), "remaining%% clamps at 0, got %s", s.PercentRemaining)
}

func TestAggregateZeroBudget(t *testing.T) {
	cs := []classify.Classified{
		classified(t, soloExpense("a", 10, "Misc", core.NewDate(2026, 8, 10)), core.RateTable{}),
	}
	s := Aggregate(cs, decimal.Zero, now)

	assert.True(t, s.PercentUsed.IsZero())
	assert.True(t, s.PercentRemaining.IsZero())
	assert.True(t, s.Remaining.Equal(decimal.NewFromInt(-10)))
}

func TestAggregateEmptyWindow(t *testing.T) {
	s := Aggregate(nil, decimal.NewFromInt(300), now)

	assert.True(t, s.TotalSpent.IsZero())
	assert.True(t, s.Remaining.Equal(decimal.NewFromInt(300)))
	assert.Empty(t, s.Categories)
	require.Len(t, s.MonthlySeries, 3)
}

func TestAggregateCategories(t *testing.T) {
	cs := []classify.Classified{
		classified(t, soloExpense("a", 60, "Groceries", core.NewDate(2026, 8, 2)), core.RateTable{}),
		classified(t, soloExpense("b", 20, "Groceries", core.NewDate(2026, 8, 9)), core.RateTable{}),
		classified(t, soloExpense("c", 20, "Transport", core.NewDate(2026, 8, 3)), core.RateTable{}),
	}
	s := Aggregate(cs, decimal.NewFromInt(200), now)

	require.Len(t, s.Categories, 2)
	top := s.Categories[0]
	assert.Equal(t, "Groceries", top.Name)
	assert.Equal(t, "cart", top.Icon)
	assert.Equal(t, 2, top.Count)
	assert.True(t, top.Amount.Equal(decimal.NewFromInt(80)))
	assert.True(t, top.Percentage.Equal(decimal.NewFromInt(80)), "got %s", top.Percentage)

	second := s.Categories[1]
	assert.Equal(t, "Transport", second.Name)
	assert.True(t, second.Percentage.Equal(decimal.NewFromInt(20)), "got %s", second.Percentage)
}

func TestAggregateLoansStayOutOfBuckets(t *testing.T) {
	lent := core.Expense{
		ID:           "loan",
		Date:         core.NewDate(2026, 8, 4),
		Amount:       decimal.NewFromInt(40),
		Currency:     "EUR",
		Category:     "Groceries",
		PaidBy:       me,
		SplitBetween: []string{me, "u-2"},
		Shares: map[string]decimal.Decimal{
			me:    decimal.Zero,
			"u-2": decimal.NewFromInt(40),
		},
		CreatedAt: now,
	}
	s := Aggregate([]classify.Classified{classified(t, lent, core.RateTable{})}, decimal.NewFromInt(100), now)

	assert.True(t, s.TotalSpent.IsZero())
	assert.Empty(t, s.Categories, "a pure loan must not create a category bucket")
}

func TestAggregateMonthlySeries(t *testing.T) {
	cs := []classify.Classified{
		classified(t, soloExpense("a", 75, "Misc", core.NewDate(2026, 8, 15)), core.RateTable{}),
	}
	budget := decimal.NewFromInt(500)
	s := Aggregate(cs, budget, now)

	require.Len(t, s.MonthlySeries, 3)
	wantMonths := []core.MonthKey{{Year: 2026, Month: 8}, {Year: 2026, Month: 9}, {Year: 2026, Month: 10}}
	for i, p := range s.MonthlySeries {
		assert.Equal(t, wantMonths[i], p.Month)
		assert.True(t, p.Budget.Equal(budget), "every point carries the budget ceiling")
		assert.Equal(t, i == 0, p.IsCurrent)
	}
	assert.True(t, s.MonthlySeries[0].Spent.Equal(decimal.NewFromInt(75)))
	assert.True(t, s.MonthlySeries[1].Spent.IsZero())
	assert.True(t, s.MonthlySeries[2].Spent.IsZero())
	assert.Equal(t, "Aug 2026", s.MonthlySeries[0].Label)
}

func TestAggregateIdempotent(t *testing.T) {
	cs := []classify.Classified{
		classified(t, soloExpense("a", 33.33, "Groceries", core.NewDate(2026, 8, 1)), core.RateTable{}),
		classified(t, soloExpense("b", 12.34, "Transport", core.NewDate(2026, 8, 2)), core.RateTable{}),
	}
	budget := decimal.NewFromInt(250)

	first := Aggregate(cs, budget, now)
	second := Aggregate(cs, budget, now)
	assert.True(t, reflect.DeepEqual(first, second), "same snapshot must aggregate identically")
}

func TestIconFor(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Groceries", "cart"},
		{" rent ", "home"},
		{"Cryptozoology", DefaultIcon},
		{"", DefaultIcon},
	}
	for _, tc := range cases {
		if got := IconFor(tc.in); got != tc.want {
			t.Fatalf("IconFor(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
