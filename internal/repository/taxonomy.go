package repository

import (
	"context"

	"ledger/internal/core"
	"ledger/internal/document"
)

// Taxonomies reads and writes the category document.
type Taxonomies struct {
	store document.Store
}

func NewTaxonomies(store document.Store) *Taxonomies {
	return &Taxonomies{store: store}
}

// Load returns the taxonomy and whether the document exists at all.
func (r *Taxonomies) Load(ctx context.Context) (core.Taxonomy, bool, error) {
	data, err := r.store.Load(ctx, document.TaxonomyKey)
	if err != nil {
		return nil, false, err
	}
	tax, err := decodeTaxonomy(data)
	return tax, data != nil, err
}

// Update applies fn to the current taxonomy and writes it back. fn sees an
// empty list for every kind missing from the document.
func (r *Taxonomies) Update(ctx context.Context, fn func(core.Taxonomy, bool) error) error {
	return r.store.Update(ctx, document.TaxonomyKey, func(current []byte) ([]byte, error) {
		tax, err := decodeTaxonomy(current)
		if err != nil {
			return nil, err
		}
		if err := fn(tax, current != nil); err != nil {
			return nil, err
		}
		return encodeDocument(tax)
	})
}

func decodeTaxonomy(data []byte) (core.Taxonomy, error) {
	tax := core.Taxonomy{}
	if err := decodeDocument(data, &tax); err != nil {
		return nil, err
	}
	if tax == nil {
		tax = core.Taxonomy{}
	}
	for _, k := range core.Kinds() {
		if tax[k] == nil {
			tax[k] = []string{}
		}
	}
	return tax, nil
}
