// Package classify attributes a monetary share of each shared expense
// to one target user. Loan-shaped expenses (payer share recorded as
// zero, or a non-payer share covering the full amount) move money
// without consuming it; only consumption counts against a budget.
package classify

import (
	"github.com/shopspring/decimal"

	"splitbudget/internal/core"
	"splitbudget/internal/rates"
)

// Rule names the attribution rule that matched an expense.
type Rule string

const (
	RulePersonalOwn   Rule = "personal_own"   // solo expense paid by the user
	RulePersonalOther Rule = "personal_other" // solo expense of somebody else
	RuleLent          Rule = "lent"           // user fronted money, consumed nothing
	RuleBorrowed      Rule = "borrowed"       // user consumed it all, somebody else paid
	RuleEvenSplit     Rule = "even_split"     // uniform division across the participant set
	RuleNotInvolved   Rule = "not_involved"   // user is outside the participant set
)

// Classified is an expense annotated with the matched rule, the full
// amount converted to the display currency, and the user's share of
// that converted amount. Derived per pass and never persisted.
type Classified struct {
	Expense    core.Expense
	Rule       Rule
	Normalized decimal.Decimal
	Share      decimal.Decimal
}

// Consumes reports whether the matched rule attributes spending to the
// user. Money-movement and not-mine rules carry a zero share and stay
// out of category buckets.
func (c Classified) Consumes() bool {
	switch c.Rule {
	case RulePersonalOwn, RuleBorrowed, RuleEvenSplit:
		return true
	}
	return false
}

// Match determines the attribution rule for userID. Rules are checked
// in strict priority order and the first match wins: an expense that
// fits both the lending pattern and an even split must resolve as lent.
func Match(e core.Expense, userID string) Rule {
	if len(e.SplitBetween) == 1 {
		if e.PaidBy == userID {
			return RulePersonalOwn
		}
		return RulePersonalOther
	}
	if share, ok := e.ExplicitShare(userID); ok {
		if e.PaidBy == userID && share.IsZero() {
			return RuleLent
		}
		if e.PaidBy != userID && share.Equal(e.Amount) {
			return RuleBorrowed
		}
	}
	if e.InSplit(userID) {
		// Explicit shares that are neither zero nor the full amount
		// fall through to uniform division.
		return RuleEvenSplit
	}
	return RuleNotInvolved
}

// Apply computes the user's share of a converted amount under a rule.
// The share is taken from the converted amount, not the raw one, so
// conversion and attribution compose: share-of-converted equals
// converted-share.
func Apply(rule Rule, normalized decimal.Decimal, participants int) decimal.Decimal {
	switch rule {
	case RulePersonalOwn, RuleBorrowed:
		return normalized
	case RuleEvenSplit:
		if participants <= 0 {
			return decimal.Zero
		}
		return normalized.DivRound(decimal.NewFromInt(int64(participants)), 2)
	default:
		return decimal.Zero
	}
}

// One classifies a single expense against the rate snapshot. Expenses
// the normalizer rejects (zero or negative amounts) return an error so
// the caller can drop them from the batch.
func One(e core.Expense, userID, display string, table core.RateTable) (Classified, error) {
	normalized, err := rates.Normalize(e.Amount, e.Currency, display, table)
	if err != nil {
		return Classified{}, err
	}
	rule := Match(e, userID)
	return Classified{
		Expense:    e,
		Rule:       rule,
		Normalized: normalized,
		Share:      Apply(rule, normalized, len(e.SplitBetween)),
	}, nil
}

// All classifies a window of expenses. Malformed expenses are skipped,
// not fatal to the batch; the number skipped is returned so the caller
// can log it.
func All(expenses []core.Expense, userID, display string, table core.RateTable) (out []Classified, skipped int) {
	out = make([]Classified, 0, len(expenses))
	for _, e := range expenses {
		c, err := One(e, userID, display, table)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, c)
	}
	return out, skipped
}
