// Package worker holds background consumers of ledger events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
)

type (
	// BudgetLookup returns the current budget of a user.
	BudgetLookup func(ctx context.Context, username string) (core.Budget, error)

	// Consumer delivers ledger event messages until ctx is done.
	Consumer interface {
		ConsumeLedgerEvents(ctx context.Context, handler func(context.Context, *amqp.LedgerEventMessage) error) error
	}
)

// BudgetWatcher warns when a user goes over budget and logs when they are
// back under it. It reports each transition once.
type BudgetWatcher struct {
	lookup BudgetLookup
	logger *log.Logger

	mu   sync.Mutex
	over map[string]bool

	processed atomic.Int64
	alerts    atomic.Int64
}

// NewBudgetWatcher creates a watcher. With a nil lookup the budget carried
// by each message is trusted as is.
func NewBudgetWatcher(lookup BudgetLookup, logger *log.Logger) *BudgetWatcher {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &BudgetWatcher{
		lookup: lookup,
		logger: logger.WithComponent(log.ComponentWorker),
		over:   make(map[string]bool),
	}
}

// Run consumes events from c until ctx is cancelled.
func (w *BudgetWatcher) Run(ctx context.Context, c Consumer) error {
	w.logger.InfoContext(ctx, "Budget watcher started")
	err := c.ConsumeLedgerEvents(ctx, w.HandleLedgerEvent)
	w.logger.InfoContext(ctx, "Budget watcher stopped",
		"processed", w.processed.Load(), "alerts", w.alerts.Load())
	return err
}

// HandleLedgerEvent processes one message. Messages can arrive late, so the
// current budget is read back before deciding.
func (w *BudgetWatcher) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	w.processed.Add(1)

	budget := core.Budget{Limit: msg.Budget, Remaining: msg.Remaining}
	over := msg.OverBudget()
	if w.lookup != nil {
		current, err := w.lookup(ctx, msg.Username)
		if errors.Is(err, core.ErrNotFound) {
			w.logger.WarnContext(ctx, "Event for unknown user dropped", log.FieldUsername, msg.Username)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read budget of %q: %w", msg.Username, err)
		}
		budget = current
		over = current.Exceeded()
	}

	w.mu.Lock()
	was := w.over[msg.Username]
	w.over[msg.Username] = over
	w.mu.Unlock()

	switch {
	case over && !was:
		w.alerts.Add(1)
		w.logger.WarnContext(ctx, "User is over budget",
			log.FieldUsername, msg.Username,
			log.FieldBudget, budget.Limit.String(),
			log.FieldRemaining, budget.Remaining.String(),
			log.FieldKind, msg.Kind)
	case !over && was:
		w.logger.InfoContext(ctx, "User is back within budget",
			log.FieldUsername, msg.Username,
			log.FieldRemaining, budget.Remaining.String())
	}
	return nil
}

// OverBudget reports the last known state of username.
func (w *BudgetWatcher) OverBudget(username string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.over[username]
}

// Stats returns the number of processed messages and raised alerts.
func (w *BudgetWatcher) Stats() (processed, alerts int64) {
	return w.processed.Load(), w.alerts.Load()
}
