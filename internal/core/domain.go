package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	Date struct {
		time.Time
	}

	// MonthKey identifies one calendar month.
	MonthKey struct {
		Year  int
		Month int // 1-12
	}

	// Expense is one shared expense as recorded by the group.
	// SplitBetween is the participant set; Shares optionally records
	// explicit per-participant amounts when the split is uneven.
	Expense struct {
		ID           string
		Date         Date
		Description  string
		Amount       decimal.Decimal
		Currency     string
		Category     string
		PaidBy       string
		SplitBetween []string
		Shares       map[string]decimal.Decimal
		CreatedAt    time.Time
	}

	User struct {
		ID              string
		Name            string
		MonthlyBudget   decimal.Decimal
		DefaultCurrency string
	}

	Group struct {
		ID              string
		Name            string
		DefaultCurrency string
	}

	// Settlement is a completed repayment between two group members.
	// Consumed for display only; it never enters budget aggregation.
	Settlement struct {
		ID        string
		GroupID   string
		FromUser  string
		ToUser    string
		Amount    decimal.Decimal
		Currency  string
		SettledAt time.Time
	}
)

var (
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyCurrency        = errors.New("empty currency code")
	ErrEmptyCategory        = errors.New("empty category")
	ErrEmptyPayer           = errors.New("empty payer")
	ErrNoParticipants       = errors.New("empty participant set")
	ErrDuplicateParticipant = errors.New("duplicate participant")
)

// NewDate creates a new Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Key returns the calendar month the date falls in.
func (d Date) Key() MonthKey {
	return MonthKey{Year: d.Time.Year(), Month: int(d.Time.Month())}
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: int(t.Month())}
}

// Next returns the month n calendar months after k.
func (k MonthKey) Next(n int) MonthKey {
	t := time.Date(k.Year, time.Month(k.Month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return MonthKey{Year: t.Year(), Month: int(t.Month())}
}

// Before reports whether k is earlier than other.
func (k MonthKey) Before(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// Label formats the month for display, e.g. "Jan 2026".
func (k MonthKey) Label() string {
	return time.Date(k.Year, time.Month(k.Month), 1, 0, 0, 0, 0, time.UTC).Format("Jan 2006")
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.Currency) == "" {
		return ErrEmptyCurrency
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(e.PaidBy) == "" {
		return ErrEmptyPayer
	}
	if len(e.SplitBetween) == 0 {
		return ErrNoParticipants
	}
	seen := make(map[string]struct{}, len(e.SplitBetween))
	for _, id := range e.SplitBetween {
		if _, dup := seen[id]; dup {
			return ErrDuplicateParticipant
		}
		seen[id] = struct{}{}
	}
	return nil
}

// InSplit reports whether userID belongs to the participant set.
func (e Expense) InSplit(userID string) bool {
	for _, id := range e.SplitBetween {
		if id == userID {
			return true
		}
	}
	return false
}

// Involves reports whether userID touched the expense at all,
// either as payer or as a split participant.
func (e Expense) Involves(userID string) bool {
	return e.PaidBy == userID || e.InSplit(userID)
}

// ExplicitShare returns the recorded uneven share for userID, if any.
func (e Expense) ExplicitShare(userID string) (decimal.Decimal, bool) {
	if e.Shares == nil {
		return decimal.Decimal{}, false
	}
	s, ok := e.Shares[userID]
	return s, ok
}
