// Package taxonomy manages the category lists offered for records.
package taxonomy

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/repository"
)

// Defaults seeds a missing category document.
func Defaults() core.Taxonomy {
	return core.Taxonomy{
		core.Expense: {"购物", "交通", "餐饮", "娱乐"},
		core.Income:  {"工资", "奖金", "投资", "兼职"},
	}
}

type Manager struct {
	repo   *repository.Taxonomies
	logger *log.Logger
}

func NewManager(repo *repository.Taxonomies, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default(log.ComponentTaxonomy)
	}
	return &Manager{repo: repo, logger: logger.WithComponent(log.ComponentTaxonomy)}
}

// Seed writes the default categories when no category document exists yet.
func (m *Manager) Seed(ctx context.Context) (bool, error) {
	var seeded bool
	err := m.repo.Update(ctx, func(tax core.Taxonomy, exists bool) error {
		seeded = false
		if exists {
			return nil
		}
		for k, names := range Defaults() {
			tax[k] = names
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("seed categories: %w", err)
	}
	if seeded {
		m.logger.InfoContext(ctx, "Default categories written")
	}
	return seeded, nil
}

// List returns both category lists.
func (m *Manager) List(ctx context.Context) (core.Taxonomy, error) {
	tax, _, err := m.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	return tax, nil
}

// Contains reports whether name is listed under kind.
func (m *Manager) Contains(ctx context.Context, kind core.CategoryKind, name string) (bool, error) {
	tax, err := m.List(ctx)
	if err != nil {
		return false, err
	}
	return tax.Contains(kind, name), nil
}

// Add appends name to kind. Adding a listed name fails with ErrDuplicate.
func (m *Manager) Add(ctx context.Context, kind core.CategoryKind, name string) error {
	name, err := validate(kind, name)
	if err != nil {
		return err
	}
	err = m.repo.Update(ctx, func(tax core.Taxonomy, _ bool) error {
		if tax.Contains(kind, name) {
			return fmt.Errorf("category %s/%s: %w", kind, name, core.ErrDuplicate)
		}
		tax[kind] = append(tax[kind], name)
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "Category added", log.FieldKind, kind, log.FieldCategory, name)
	return nil
}

// Remove deletes name from kind. Removing an unlisted name fails with
// ErrNotFound.
func (m *Manager) Remove(ctx context.Context, kind core.CategoryKind, name string) error {
	name, err := validate(kind, name)
	if err != nil {
		return err
	}
	err = m.repo.Update(ctx, func(tax core.Taxonomy, _ bool) error {
		i := slices.Index(tax[kind], name)
		if i < 0 {
			return fmt.Errorf("category %s/%s: %w", kind, name, core.ErrNotFound)
		}
		tax[kind] = slices.Delete(tax[kind], i, i+1)
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "Category removed", log.FieldKind, kind, log.FieldCategory, name)
	return nil
}

func validate(kind core.CategoryKind, name string) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", core.ErrEmptyCategory
	}
	return name, nil
}
