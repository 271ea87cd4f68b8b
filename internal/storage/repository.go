package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"splitbudget/internal/core"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteRepository is the persistence collaborator: users, the group
// roster, expenses with their splits, settlements, the budget ceiling,
// and the locally cached exchange-rate table.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	var (
		u         core.User
		budgetStr string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, monthly_budget, default_currency FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &budgetStr, &u.DefaultCurrency)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.MonthlyBudget, err = decimal.NewFromString(budgetStr)
	if err != nil {
		return core.User{}, fmt.Errorf("parse budget for user %s: %w", id, err)
	}
	return u, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, monthly_budget, default_currency) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.MonthlyBudget.String(), u.DefaultCurrency)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GroupForUser resolves the user's single group. A user with no group
// is a valid state, reported via ok=false rather than an error.
func (r *SQLiteRepository) GroupForUser(ctx context.Context, userID string) (core.Group, bool, error) {
	var g core.Group
	err := r.db.QueryRowContext(ctx,
		`SELECT g.id, g.name, g.default_currency
		 FROM groups g JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = ? LIMIT 1`, userID).
		Scan(&g.ID, &g.Name, &g.DefaultCurrency)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Group{}, false, nil
	}
	if err != nil {
		return core.Group{}, false, fmt.Errorf("group for user: %w", err)
	}
	return g, true, nil
}

func (r *SQLiteRepository) CreateGroup(ctx context.Context, g core.Group) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, default_currency) VALUES (?, ?, ?)`,
		g.ID, g.Name, g.DefaultCurrency); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) AddMember(ctx context.Context, groupID, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES (?, ?)`, groupID, userID); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// ListExpenses returns every expense of the group with its splits.
// Source ordering is not part of the contract; callers re-sort.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, groupID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, expense_date, description, amount, currency, category, paid_by, created_at
		 FROM expenses WHERE group_id = ?`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var (
			e                               core.Expense
			dateStr, amountStr, createdStr string
		)
		if err := rows.Scan(&e.ID, &dateStr, &e.Description, &amountStr, &e.Currency,
			&e.Category, &e.PaidBy, &createdStr); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse expense date %s: %w", dateStr, err)
		}
		e.Date = core.Date{Time: date}
		if e.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("parse expense amount %s: %w", amountStr, err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdStr); err != nil {
			return nil, fmt.Errorf("parse expense created_at %s: %w", createdStr, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}

	for i := range out {
		if err := r.loadSplits(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SQLiteRepository) loadSplits(ctx context.Context, e *core.Expense) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, share_amount FROM expense_splits WHERE expense_id = ? ORDER BY user_id`, e.ID)
	if err != nil {
		return fmt.Errorf("load splits for %s: %w", e.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			userID string
			share  sql.NullString
		)
		if err := rows.Scan(&userID, &share); err != nil {
			return fmt.Errorf("scan split: %w", err)
		}
		e.SplitBetween = append(e.SplitBetween, userID)
		if share.Valid {
			v, err := decimal.NewFromString(share.String)
			if err != nil {
				return fmt.Errorf("parse share %s: %w", share.String, err)
			}
			if e.Shares == nil {
				e.Shares = make(map[string]decimal.Decimal)
			}
			e.Shares[userID] = v
		}
	}
	return rows.Err()
}

// SaveExpense persists the expense and its splits in one transaction
// and bumps the expense revision that keys the aggregation memo.
func (r *SQLiteRepository) SaveExpense(ctx context.Context, groupID string, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validate expense: %w", err)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, expense_date, description, amount, currency, category, paid_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, groupID, e.Date.Format(dateLayout), e.Description, e.Amount.String(),
		e.Currency, e.Category, e.PaidBy, e.CreatedAt.Format(timeLayout)); err != nil {
		return "", fmt.Errorf("insert expense: %w", err)
	}

	for _, userID := range e.SplitBetween {
		var share any
		if v, ok := e.ExplicitShare(userID); ok {
			share = v.String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO expense_splits (expense_id, user_id, share_amount) VALUES (?, ?, ?)`,
			e.ID, userID, share); err != nil {
			return "", fmt.Errorf("insert split: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE revisions SET rev = rev + 1 WHERE name = 'expenses'`); err != nil {
		return "", fmt.Errorf("bump expense revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"expense_id", e.ID,
		"group_id", groupID,
		"amount", e.Amount.String(),
		"currency", e.Currency,
		"category", e.Category)

	return e.ID, nil
}

// ExpenseRevision returns the monotonically increasing revision bumped
// on every expense write. It is a memo-key component, never shown.
func (r *SQLiteRepository) ExpenseRevision(ctx context.Context) (int64, error) {
	var rev int64
	err := r.db.QueryRowContext(ctx,
		`SELECT rev FROM revisions WHERE name = 'expenses'`).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("read expense revision: %w", err)
	}
	return rev, nil
}

func (r *SQLiteRepository) ListSettlements(ctx context.Context, groupID string) ([]core.Settlement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, group_id, from_user, to_user, amount, currency, settled_at
		 FROM settlements WHERE group_id = ? ORDER BY settled_at DESC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []core.Settlement
	for rows.Next() {
		var (
			s                     core.Settlement
			amountStr, settledStr string
		)
		if err := rows.Scan(&s.ID, &s.GroupID, &s.FromUser, &s.ToUser, &amountStr, &s.Currency, &settledStr); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		if s.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("parse settlement amount %s: %w", amountStr, err)
		}
		if s.SettledAt, err = time.Parse(timeLayout, settledStr); err != nil {
			return nil, fmt.Errorf("parse settled_at %s: %w", settledStr, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveSettlement(ctx context.Context, s core.Settlement) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO settlements (id, group_id, from_user, to_user, amount, currency, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.GroupID, s.FromUser, s.ToUser, s.Amount.String(), s.Currency,
		s.SettledAt.Format(timeLayout)); err != nil {
		return "", fmt.Errorf("insert settlement: %w", err)
	}
	return s.ID, nil
}

// SetBudget implements budget.Store.
func (r *SQLiteRepository) SetBudget(ctx context.Context, userID string, value decimal.Decimal) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET monthly_budget = ? WHERE id = ?`, value.String(), userID)
	if err != nil {
		return fmt.Errorf("set budget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set budget rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	slog.InfoContext(ctx, "Budget updated", "user_id", userID, "budget", value.String())
	return nil
}

// SaveRates replaces the cached rate table in one transaction so a
// concurrent reader never observes a half-written snapshot.
func (r *SQLiteRepository) SaveRates(ctx context.Context, table core.RateTable, fetchedAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rates`); err != nil {
		return fmt.Errorf("clear rates: %w", err)
	}
	for code, rate := range table.Rates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rates (currency, rate, base, fetched_at) VALUES (?, ?, ?, ?)`,
			code, rate.String(), table.Base, fetchedAt.Format(timeLayout)); err != nil {
			return fmt.Errorf("insert rate %s: %w", code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rates: %w", err)
	}
	return nil
}

// LoadRates returns the cached table and when it was fetched. An empty
// table with a zero time means no snapshot has been cached yet.
func (r *SQLiteRepository) LoadRates(ctx context.Context) (core.RateTable, time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT currency, rate, base, fetched_at FROM rates`)
	if err != nil {
		return core.RateTable{}, time.Time{}, fmt.Errorf("load rates: %w", err)
	}
	defer rows.Close()

	table := core.RateTable{Rates: make(map[string]decimal.Decimal)}
	var fetchedAt time.Time
	for rows.Next() {
		var code, rateStr, base, fetchedStr string
		if err := rows.Scan(&code, &rateStr, &base, &fetchedStr); err != nil {
			return core.RateTable{}, time.Time{}, fmt.Errorf("scan rate: %w", err)
		}
		rate, err := decimal.NewFromString(rateStr)
		if err != nil {
			return core.RateTable{}, time.Time{}, fmt.Errorf("parse rate %s: %w", rateStr, err)
		}
		table.Rates[code] = rate
		table.Base = base
		if t, err := time.Parse(timeLayout, fetchedStr); err == nil && t.After(fetchedAt) {
			fetchedAt = t
		}
	}
	if err := rows.Err(); err != nil {
		return core.RateTable{}, time.Time{}, fmt.Errorf("iterate rates: %w", err)
	}
	if len(table.Rates) == 0 {
		return core.RateTable{}, time.Time{}, nil
	}
	return table, fetchedAt, nil
}

// FetchRates satisfies the rate Fetcher contract against the local
// cache, for deployments where the worker owns the upstream pull.
func (r *SQLiteRepository) FetchRates(ctx context.Context) (core.RateTable, error) {
	table, _, err := r.LoadRates(ctx)
	return table, err
}
