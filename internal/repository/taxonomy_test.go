package repository

import (
	"context"
	"strings"
	"testing"

	"ledger/internal/core"
	"ledger/internal/document"
	"ledger/internal/document/memory"
)

func TestTaxonomiesLoadMissing(t *testing.T) {
	repo := NewTaxonomies(memory.New())
	tax, found, err := repo.Load(context.Background())
	if err != nil || found {
		t.Fatalf("expected missing document, found=%v err=%v", found, err)
	}
	if tax[core.Income] == nil || tax[core.Expense] == nil {
		t.Fatalf("kinds should default to empty lists: %v", tax)
	}
}

func TestTaxonomiesLegacyDocumentRewritten(t *testing.T) {
	store := memory.NewWithDocuments(map[string][]byte{
		document.TaxonomyKey: []byte(`{"支出": ["购物"], "收入": ["工资"]}`),
	})
	repo := NewTaxonomies(store)
	ctx := context.Background()

	err := repo.Update(ctx, func(tax core.Taxonomy, exists bool) error {
		if !exists {
			t.Fatalf("document should exist")
		}
		tax[core.Expense] = append(tax[core.Expense], "交通")
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	raw, _ := store.Load(ctx, document.TaxonomyKey)
	if !strings.Contains(string(raw), `"expense": [`) || !strings.Contains(string(raw), `"交通"`) {
		t.Fatalf("unexpected document: %s", raw)
	}
	tax, _, _ := repo.Load(ctx)
	if !tax.Contains(core.Expense, "交通") || !tax.Contains(core.Income, "工资") {
		t.Fatalf("unexpected taxonomy: %v", tax)
	}
}
