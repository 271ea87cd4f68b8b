// Package rates converts expense amounts into the display currency
// and tracks the freshness of the exchange-rate snapshot.
package rates

import (
	"github.com/shopspring/decimal"

	"splitbudget/internal/core"
)

// Normalize converts amount from source into display using table.
//
// When the table is empty the amount is returned unchanged: an
// unconverted number beats a blocked dashboard, and callers accept
// that totals may mix currencies while rates are unavailable. The
// same applies when either currency is missing from the snapshot.
//
// Converted results are rounded once, here, to 2 decimal places
// (half away from zero). Summation never re-rounds, so rounding
// error does not compound across an aggregation pass.
//
// Zero and negative amounts are rejected; the caller must drop such
// expenses instead of letting them corrupt a sum.
func Normalize(amount decimal.Decimal, source, display string, table core.RateTable) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Decimal{}, core.ErrInvalidAmount
	}
	if source == display || table.Empty() {
		return amount, nil
	}
	from, ok := table.Rate(source)
	if !ok || !from.IsPositive() {
		return amount, nil
	}
	to, ok := table.Rate(display)
	if !ok || !to.IsPositive() {
		return amount, nil
	}
	return amount.Mul(from).Div(to).Round(2), nil
}
