// Package budget owns the monthly budget ceiling: optimistic local
// edits, a single-in-flight commit to the persistence collaborator,
// and rollback to the last known-good value when a commit fails.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Store persists the authoritative budget value.
type Store interface {
	SetBudget(ctx context.Context, userID string, value decimal.Decimal) error
}

// State is the controller's position in the edit/commit cycle.
type State string

const (
	StateViewing    State = "viewing"
	StateEditing    State = "editing"
	StateCommitting State = "committing"
)

var (
	ErrNegativeBudget = errors.New("budget cannot be negative")
	ErrNotEditing     = errors.New("no staged budget to commit")
	ErrCommitInFlight = errors.New("a budget commit is already in flight")
)

// Controller holds one user's budget ceiling. The staged value is
// local and optimistic; Committed is authoritative only after the
// store acknowledges it.
type Controller struct {
	mu        sync.Mutex
	userID    string
	store     Store
	state     State
	committed decimal.Decimal // last known-good persisted value
	staged    decimal.Decimal
}

func NewController(userID string, initial decimal.Decimal, store Store) *Controller {
	return &Controller{
		userID:    userID,
		store:     store,
		state:     StateViewing,
		committed: initial,
		staged:    initial,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Value returns the value currently shown to the user: the staged one
// while editing or committing, the known-good one otherwise.
func (c *Controller) Value() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateViewing {
		return c.committed
	}
	return c.staged
}

// Committed returns the last value the store acknowledged.
func (c *Controller) Committed() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// Edit stages a new value locally without persisting it.
// Viewing -> Editing; restaging while already editing is allowed.
func (c *Controller) Edit(value decimal.Decimal) error {
	if value.IsNegative() {
		return ErrNegativeBudget
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateCommitting {
		return ErrCommitInFlight
	}
	c.state = StateEditing
	c.staged = value
	return nil
}

// Cancel discards the staged value. Editing -> Viewing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEditing {
		c.state = StateViewing
		c.staged = c.committed
	}
}

// Commit persists the staged value. Editing -> Committing, then
// Viewing on success. On failure the staged value rolls back to the
// last known-good one and the controller returns to Editing so the
// user can retry or cancel. Only one commit may be in flight; a
// second attempt is rejected, never coalesced.
func (c *Controller) Commit(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateCommitting:
		c.mu.Unlock()
		return ErrCommitInFlight
	case StateViewing:
		c.mu.Unlock()
		return ErrNotEditing
	}
	c.state = StateCommitting
	value := c.staged
	c.mu.Unlock()

	err := c.store.SetBudget(ctx, c.userID, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.staged = c.committed
		c.state = StateEditing
		return fmt.Errorf("commit budget: %w", err)
	}
	c.committed = value
	c.staged = value
	c.state = StateViewing
	return nil
}
