// Package window selects the subset of expenses a budget pass looks
// at: the wall-clock current month or one explicitly chosen month.
// "Now" is always an injected parameter so selection is deterministic
// under test.
package window

import (
	"sort"
	"time"

	"splitbudget/internal/core"
)

// Mode is the time-period selection mode.
type Mode string

const (
	ModeCurrent Mode = "current"
	ModeCustom  Mode = "custom"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeCurrent || m == ModeCustom
}

// AvailableMonths lists the months the user can pick, newest first.
// Only expenses the user participates in (as payer or split member)
// contribute, deduplicated by month. The current calendar month is
// always present even when it has no expenses yet.
func AvailableMonths(expenses []core.Expense, userID string, now time.Time) []core.MonthKey {
	seen := map[core.MonthKey]struct{}{
		core.MonthOf(now): {},
	}
	for _, e := range expenses {
		if !e.Involves(userID) {
			continue
		}
		seen[e.Date.Key()] = struct{}{}
	}

	months := make([]core.MonthKey, 0, len(seen))
	for k := range seen {
		months = append(months, k)
	}
	sort.Slice(months, func(i, j int) bool {
		return months[j].Before(months[i])
	})
	return months
}

// Select returns the user's expenses for the requested window, ordered
// by date descending with creation time and then id as tie-breaks so
// equal keys sort deterministically.
//
// ModeCustom without an explicit month fails closed: an empty result,
// never a silent fallback to the current month.
func Select(expenses []core.Expense, userID string, mode Mode, month *core.MonthKey, now time.Time) []core.Expense {
	var target core.MonthKey
	switch mode {
	case ModeCurrent:
		target = core.MonthOf(now)
	case ModeCustom:
		if month == nil {
			return nil
		}
		target = *month
	default:
		return nil
	}

	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if !e.Involves(userID) {
			continue
		}
		if e.Date.Key() == target {
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}
