// Package aggregate folds classified, normalized expenses into the
// budget dashboard figures: total spent, remaining, percentages,
// category buckets, and the forward-looking monthly series.
package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"splitbudget/internal/classify"
	"splitbudget/internal/core"
)

// CategoryBucket sums one category's attributed spending.
type CategoryBucket struct {
	Name       string
	Icon       string
	Amount     decimal.Decimal
	Count      int
	Percentage decimal.Decimal
}

// MonthlyPoint is one budget-vs-actual point of the forecast series.
type MonthlyPoint struct {
	Month     core.MonthKey
	Label     string
	Budget    decimal.Decimal
	Spent     decimal.Decimal
	IsCurrent bool
}

// Summary is the result of one aggregation pass. Recomputed from
// scratch on every invocation; no state survives between passes.
type Summary struct {
	TotalSpent       decimal.Decimal
	Remaining        decimal.Decimal
	PercentUsed      decimal.Decimal
	PercentRemaining decimal.Decimal
	Categories       []CategoryBucket
	MonthlySeries    []MonthlyPoint
	Skipped          int
}

var hundred = decimal.NewFromInt(100)

// forecastMonths is the series length: the current month plus two.
const forecastMonths = 3

// Aggregate folds the classified window into a Summary. budget is the
// user's monthly ceiling; now anchors the forecast series.
//
// Remaining may go negative when the user is over budget and is
// surfaced as such. The percentage pair is clamped to [0, 100] and a
// zero budget yields 0/0 rather than dividing by zero.
func Aggregate(classified []classify.Classified, budget decimal.Decimal, now time.Time) Summary {
	s := Summary{
		TotalSpent: decimal.Zero,
	}

	for _, c := range classified {
		s.TotalSpent = s.TotalSpent.Add(c.Share)
	}

	s.Remaining = budget.Sub(s.TotalSpent)
	if budget.IsPositive() {
		used := s.TotalSpent.Div(budget).Mul(hundred)
		if used.GreaterThan(hundred) {
			used = hundred
		}
		left := s.Remaining.Div(budget).Mul(hundred)
		if left.IsNegative() {
			left = decimal.Zero
		}
		s.PercentUsed = used
		s.PercentRemaining = left
	} else {
		// Zero (or never-set) budget: a defined 0/0, never NaN.
		s.PercentUsed = decimal.Zero
		s.PercentRemaining = decimal.Zero
	}

	s.Categories = buckets(classified, s.TotalSpent)
	s.MonthlySeries = series(classified, budget, now)
	return s
}

// buckets groups consuming expenses by category label. Loans and
// other zero-attribution rules stay out so a category never shows a
// phantom entry with no spending behind it.
func buckets(classified []classify.Classified, total decimal.Decimal) []CategoryBucket {
	byName := make(map[string]*CategoryBucket)
	for _, c := range classified {
		if !c.Consumes() {
			continue
		}
		name := c.Expense.Category
		b, ok := byName[name]
		if !ok {
			b = &CategoryBucket{Name: name, Icon: IconFor(name), Amount: decimal.Zero}
			byName[name] = b
		}
		b.Amount = b.Amount.Add(c.Share)
		b.Count++
	}

	out := make([]CategoryBucket, 0, len(byName))
	for _, b := range byName {
		if total.IsPositive() {
			b.Percentage = b.Amount.Div(total).Mul(hundred)
		} else {
			b.Percentage = decimal.Zero
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// series builds the current month plus two forecast points. Future
// months normally sum to zero since their expenses do not exist yet;
// every point carries the same budget ceiling.
func series(classified []classify.Classified, budget decimal.Decimal, now time.Time) []MonthlyPoint {
	current := core.MonthOf(now)
	points := make([]MonthlyPoint, 0, forecastMonths)
	for i := 0; i < forecastMonths; i++ {
		month := current.Next(i)
		spent := decimal.Zero
		for _, c := range classified {
			if c.Expense.Date.Key() == month {
				spent = spent.Add(c.Share)
			}
		}
		points = append(points, MonthlyPoint{
			Month:     month,
			Label:     month.Label(),
			Budget:    budget,
			Spent:     spent,
			IsCurrent: i == 0,
		})
	}
	return points
}
