package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ledger/internal/core"
	"ledger/internal/log"
)

// BudgetMode selects how the remaining budget is maintained.
type BudgetMode string

const (
	// Derived recomputes remaining as limit minus spent after every
	// mutation and on every read.
	Derived BudgetMode = "derived"
	// Incremental keeps the stored counter: only added expenses lower it.
	// Updates, deletes and new limits leave it alone.
	Incremental BudgetMode = "incremental"
)

func ParseBudgetMode(s string) (BudgetMode, error) {
	switch BudgetMode(strings.ToLower(strings.TrimSpace(s))) {
	case Derived, "":
		return Derived, nil
	case Incremental, "legacy":
		return Incremental, nil
	default:
		return "", fmt.Errorf("%w: budget mode %q", core.ErrInvalidInput, s)
	}
}

func (m BudgetMode) String() string {
	return string(m)
}

// apply updates the stored remaining budget after ev was applied to acct.
func (m BudgetMode) apply(acct *core.Account, ev core.LedgerEvent) {
	if m == Incremental {
		if ev.Kind == core.RecordAdded && ev.After != nil && ev.After.Amount.IsNegative() {
			acct.RemainingBudget = acct.RemainingBudget.Add(ev.After.Amount)
		}
		return
	}
	acct.RemainingBudget = acct.Budget.Sub(acct.Spent())
}

func (m BudgetMode) remaining(acct *core.Account) core.Money {
	if m == Incremental {
		return acct.RemainingBudget
	}
	return acct.Budget.Sub(acct.Spent())
}

// BudgetTracker maintains one user's monthly budget.
type BudgetTracker struct {
	svc      *Service
	username string
}

// SetBudget overwrites the limit. Any value is accepted, negative included.
func (b *BudgetTracker) SetBudget(ctx context.Context, limit core.Money) (core.Budget, error) {
	ev, err := b.svc.mutate(ctx, b.username, func(acct *core.Account) (core.LedgerEvent, error) {
		acct.Budget = limit
		return core.LedgerEvent{Kind: core.BudgetSet, Index: -1}, nil
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("set budget: %w", err)
	}
	b.svc.logger.LogFields(ctx, slog.LevelInfo, "Budget set", log.NewFields().
		WithUser(b.username).
		WithBudget(ev.Budget.String(), ev.Remaining.String()))
	return b.Budget(ctx)
}

// Remaining returns what is left of the budget.
func (b *BudgetTracker) Remaining(ctx context.Context) (core.Money, error) {
	acct, err := b.svc.account(ctx, b.username)
	if err != nil {
		return core.Money{}, err
	}
	return b.svc.mode.remaining(acct), nil
}

// Budget returns limit, remaining and spent together.
func (b *BudgetTracker) Budget(ctx context.Context) (core.Budget, error) {
	acct, err := b.svc.account(ctx, b.username)
	if err != nil {
		return core.Budget{}, err
	}
	return core.Budget{
		Limit:     acct.Budget,
		Remaining: b.svc.mode.remaining(acct),
		Spent:     acct.Spent(),
	}, nil
}
