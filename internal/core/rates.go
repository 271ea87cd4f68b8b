package core

import (
	"github.com/shopspring/decimal"
)

// RateTable maps a currency code to its rate against a fixed base:
// one unit of the currency equals Rate units of the base currency.
// The table is an immutable snapshot; one computation pass never sees
// a partially updated table.
type RateTable struct {
	Base  string
	Rates map[string]decimal.Decimal
}

// Empty reports whether the table carries no usable rates.
func (t RateTable) Empty() bool {
	return len(t.Rates) == 0
}

// Rate returns the base-relative rate for code. The base currency
// itself always resolves to 1 even when the table omits it.
func (t RateTable) Rate(code string) (decimal.Decimal, bool) {
	if r, ok := t.Rates[code]; ok {
		return r, true
	}
	if code == t.Base && t.Base != "" {
		return decimal.NewFromInt(1), true
	}
	return decimal.Decimal{}, false
}

// Clone returns a copy safe to hand to a concurrent reader.
func (t RateTable) Clone() RateTable {
	out := RateTable{Base: t.Base}
	if t.Rates != nil {
		out.Rates = make(map[string]decimal.Decimal, len(t.Rates))
		for k, v := range t.Rates {
			out.Rates[k] = v
		}
	}
	return out
}
