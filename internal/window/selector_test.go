package window

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"splitbudget/internal/core"
)

const me = "u-me"

func expenseOn(id string, date core.Date, createdAt time.Time, paidBy string, split []string) core.Expense {
	return core.Expense{
		ID:           id,
		Date:         date,
		Description:  id,
		Amount:       decimal.NewFromInt(10),
		Currency:     "EUR",
		Category:     "Misc",
		PaidBy:       paidBy,
		SplitBetween: split,
		CreatedAt:    createdAt,
	}
}

func TestAvailableMonths(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	created := now.Add(-time.Hour)
	expenses := []core.Expense{
		expenseOn("a", core.NewDate(2026, 6, 3), created, me, []string{me}),
		expenseOn("b", core.NewDate(2026, 6, 20), created, "u-2", []string{"u-2", me}),
		expenseOn("c", core.NewDate(2026, 3, 1), created, me, []string{me, "u-2"}),
		// Not the user's expense; its month must not appear.
		expenseOn("d", core.NewDate(2026, 1, 5), created, "u-2", []string{"u-2"}),
	}

	got := AvailableMonths(expenses, me, now)
	want := []core.MonthKey{
		{Year: 2026, Month: 8}, // current month, implicit
		{Year: 2026, Month: 6},
		{Year: 2026, Month: 3},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAvailableMonthsEmptyStillListsCurrent(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	got := AvailableMonths(nil, me, now)
	if len(got) != 1 || got[0] != (core.MonthKey{Year: 2026, Month: 8}) {
		t.Fatalf("got %v, want just the current month", got)
	}
}

func TestSelectCurrentMonth(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	created := now.Add(-time.Hour)
	expenses := []core.Expense{
		expenseOn("in-window", core.NewDate(2026, 8, 10), created, me, []string{me}),
		expenseOn("last-month", core.NewDate(2026, 7, 31), created, me, []string{me}),
		expenseOn("not-mine", core.NewDate(2026, 8, 12), created, "u-2", []string{"u-2"}),
	}

	got := Select(expenses, me, ModeCurrent, nil, now)
	if len(got) != 1 || got[0].ID != "in-window" {
		t.Fatalf("got %v", got)
	}
}

func TestSelectCustomMonth(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	created := now.Add(-time.Hour)
	expenses := []core.Expense{
		expenseOn("june", core.NewDate(2026, 6, 10), created, me, []string{me}),
		expenseOn("august", core.NewDate(2026, 8, 10), created, me, []string{me}),
	}

	june := core.MonthKey{Year: 2026, Month: 6}
	got := Select(expenses, me, ModeCustom, &june, now)
	if len(got) != 1 || got[0].ID != "june" {
		t.Fatalf("got %v", got)
	}
}

func TestSelectCustomWithoutMonthFailsClosed(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	expenses := []core.Expense{
		expenseOn("august", core.NewDate(2026, 8, 10), now, me, []string{me}),
	}
	if got := Select(expenses, me, ModeCustom, nil, now); len(got) != 0 {
		t.Fatalf("custom mode without a month must return nothing, got %v", got)
	}
}

func TestSelectOrdering(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	base := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	expenses := []core.Expense{
		expenseOn("b", core.NewDate(2026, 8, 10), base, me, []string{me}),
		expenseOn("a", core.NewDate(2026, 8, 10), base, me, []string{me}),
		expenseOn("newer-created", core.NewDate(2026, 8, 10), base.Add(time.Hour), me, []string{me}),
		expenseOn("later-date", core.NewDate(2026, 8, 20), base, me, []string{me}),
	}

	got := Select(expenses, me, ModeCurrent, nil, now)
	wantOrder := []string{"later-date", "newer-created", "a", "b"}
	if len(got) != len(wantOrder) {
		t.Fatalf("got %d expenses, want %d", len(got), len(wantOrder))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
}
