package services

import (
	"context"
	"time"

	"splitbudget/internal/core"
)

// Ports for the collaborators the dashboard consumes. The engine owns
// none of this data; it reads snapshots and re-sorts as needed.
type (
	UserReader interface {
		GetUser(ctx context.Context, id string) (core.User, error)
	}

	GroupReader interface {
		// GroupForUser resolves the user's single group; ok=false when
		// the user has no group, which is a handled state.
		GroupForUser(ctx context.Context, userID string) (core.Group, bool, error)
	}

	ExpenseLister interface {
		ListExpenses(ctx context.Context, groupID string) ([]core.Expense, error)
	}

	ExpenseWriter interface {
		SaveExpense(ctx context.Context, groupID string, e core.Expense) (string, error)
	}

	SettlementLister interface {
		ListSettlements(ctx context.Context, groupID string) ([]core.Settlement, error)
	}

	RevisionReader interface {
		ExpenseRevision(ctx context.Context) (int64, error)
	}

	// RateSource is the consumed rate-source contract plus the version
	// counter that keys the aggregation memo.
	RateSource interface {
		Cached() core.RateTable
		IsStale(now time.Time) bool
		Version() int64
		Refresh(ctx context.Context) (core.RateTable, error)
		RefreshInBackground(ctx context.Context)
	}

	// EventPublisher announces snapshot changes to other instances.
	EventPublisher interface {
		PublishExpenseChanged(ctx context.Context, groupID, expenseID string) error
	}

	// Repository bundles the read-side ports the dashboard needs.
	Repository interface {
		UserReader
		GroupReader
		ExpenseLister
		SettlementLister
		RevisionReader
	}
)
