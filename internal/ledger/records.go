package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"ledger/internal/core"
	"ledger/internal/log"
)

// RecordStore holds one user's records in insertion order. Positions shift
// left on delete; IDs never change.
type RecordStore struct {
	svc      *Service
	username string
}

// Add appends a record. An empty date defaults to today.
func (r *RecordStore) Add(ctx context.Context, amount core.Money, category, date, remark string) (core.Record, error) {
	if date == "" {
		date = r.svc.now().Format(core.DateLayout)
	}
	check, err := r.svc.categoryCheck(ctx)
	if err != nil {
		return core.Record{}, err
	}
	if err := check(core.Record{Amount: amount, Category: category}); err != nil {
		return core.Record{}, err
	}

	ev, err := r.svc.mutate(ctx, r.username, func(acct *core.Account) (core.LedgerEvent, error) {
		rec := core.Record{
			ID:       r.svc.newID(),
			Amount:   amount,
			Category: category,
			Date:     date,
			Remark:   remark,
		}
		acct.Records = append(acct.Records, rec)
		return core.LedgerEvent{Kind: core.RecordAdded, Index: len(acct.Records) - 1, After: &rec}, nil
	})
	if err != nil {
		return core.Record{}, fmt.Errorf("add record: %w", err)
	}

	r.svc.logger.LogFields(ctx, slog.LevelInfo, "Record added", log.NewFields().
		WithUser(r.username).
		WithRecord(ev.After.ID, ev.Index, amount.String(), category))
	return *ev.After, nil
}

// List returns a copy of every record. A user without records gets an
// empty slice.
func (r *RecordStore) List(ctx context.Context) ([]core.Record, error) {
	acct, err := r.svc.account(ctx, r.username)
	if err != nil {
		return nil, err
	}
	return slices.Clone(acct.Records), nil
}

// Get returns the record with the given ID.
func (r *RecordStore) Get(ctx context.Context, id string) (core.Record, error) {
	acct, err := r.svc.account(ctx, r.username)
	if err != nil {
		return core.Record{}, err
	}
	i := indexOfID(acct.Records, id)
	if i < 0 {
		return core.Record{}, fmt.Errorf("record %q: %w", id, core.ErrNotFound)
	}
	return acct.Records[i], nil
}

// Update merges patch into the record at index. An empty patch succeeds and
// changes nothing.
func (r *RecordStore) Update(ctx context.Context, index int, patch core.RecordPatch) (core.Record, error) {
	return r.update(ctx, patch, func(records []core.Record) (int, error) {
		return checkIndex(index, len(records))
	})
}

// UpdateByID is Update addressed by record ID.
func (r *RecordStore) UpdateByID(ctx context.Context, id string, patch core.RecordPatch) (core.Record, error) {
	return r.update(ctx, patch, func(records []core.Record) (int, error) {
		return findID(records, id)
	})
}

// Delete removes the record at index.
func (r *RecordStore) Delete(ctx context.Context, index int) (core.Record, error) {
	return r.delete(ctx, func(records []core.Record) (int, error) {
		return checkIndex(index, len(records))
	})
}

// DeleteByID removes the record with the given ID.
func (r *RecordStore) DeleteByID(ctx context.Context, id string) (core.Record, error) {
	return r.delete(ctx, func(records []core.Record) (int, error) {
		return findID(records, id)
	})
}

func (r *RecordStore) update(ctx context.Context, patch core.RecordPatch, locate func([]core.Record) (int, error)) (core.Record, error) {
	check, err := r.svc.categoryCheck(ctx)
	if err != nil {
		return core.Record{}, err
	}

	ev, err := r.svc.mutate(ctx, r.username, func(acct *core.Account) (core.LedgerEvent, error) {
		i, err := locate(acct.Records)
		if err != nil {
			return core.LedgerEvent{}, err
		}
		before := acct.Records[i]
		after := before
		patch.Apply(&after)
		// records stored before strict categories were enabled stay editable
		if patch.Category != nil || after.Kind() != before.Kind() {
			if err := check(after); err != nil {
				return core.LedgerEvent{}, err
			}
		}
		acct.Records[i] = after
		return core.LedgerEvent{Kind: core.RecordUpdated, Index: i, Before: &before, After: &after}, nil
	})
	if err != nil {
		return core.Record{}, fmt.Errorf("update record: %w", err)
	}

	r.svc.logger.InfoContext(ctx, "Record updated",
		log.FieldUsername, r.username, log.FieldRecordID, ev.After.ID, log.FieldIndex, ev.Index)
	return *ev.After, nil
}

func (r *RecordStore) delete(ctx context.Context, locate func([]core.Record) (int, error)) (core.Record, error) {
	ev, err := r.svc.mutate(ctx, r.username, func(acct *core.Account) (core.LedgerEvent, error) {
		i, err := locate(acct.Records)
		if err != nil {
			return core.LedgerEvent{}, err
		}
		before := acct.Records[i]
		acct.Records = slices.Delete(acct.Records, i, i+1)
		return core.LedgerEvent{Kind: core.RecordDeleted, Index: i, Before: &before}, nil
	})
	if err != nil {
		return core.Record{}, fmt.Errorf("delete record: %w", err)
	}

	r.svc.logger.InfoContext(ctx, "Record deleted",
		log.FieldUsername, r.username, log.FieldRecordID, ev.Before.ID, log.FieldIndex, ev.Index)
	return *ev.Before, nil
}

func checkIndex(index, n int) (int, error) {
	if index < 0 || index >= n {
		return 0, fmt.Errorf("%w: index %d, %d records", core.ErrOutOfRange, index, n)
	}
	return index, nil
}

func findID(records []core.Record, id string) (int, error) {
	i := indexOfID(records, id)
	if i < 0 {
		return 0, fmt.Errorf("record %q: %w", id, core.ErrNotFound)
	}
	return i, nil
}

func indexOfID(records []core.Record, id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(records, func(rec core.Record) bool { return rec.ID == id })
}
