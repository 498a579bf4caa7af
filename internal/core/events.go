package core

import "time"

const (
	RecordAdded   EventKind = "record_added"
	RecordUpdated EventKind = "record_updated"
	RecordDeleted EventKind = "record_deleted"
	BudgetSet     EventKind = "budget_set"
)

type (
	EventKind string

	// LedgerEvent describes one applied mutation. Before is nil for adds,
	// After is nil for deletes. Budget and Remaining hold the budget state
	// after the mutation.
	LedgerEvent struct {
		Kind      EventKind
		Username  string
		Index     int
		Before    *Record
		After     *Record
		Budget    Money
		Remaining Money
		At        time.Time
	}
)

// Delta returns the change in balance caused by the event.
func (e LedgerEvent) Delta() Money {
	var d Money
	if e.After != nil {
		d = d.Add(e.After.Amount)
	}
	if e.Before != nil {
		d = d.Sub(e.Before.Amount)
	}
	return d
}

// RecordID returns the identifier of the record the event touched.
func (e LedgerEvent) RecordID() string {
	if e.After != nil {
		return e.After.ID
	}
	if e.Before != nil {
		return e.Before.ID
	}
	return ""
}
