package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/document"
)

// Users reads and writes the user document.
type Users struct {
	store document.Store
	newID func() string
}

func NewUsers(store document.Store) *Users {
	return &Users{store: store, newID: uuid.NewString}
}

// Load returns a snapshot of every account.
func (r *Users) Load(ctx context.Context) (core.Users, error) {
	data, err := r.store.Load(ctx, document.UsersKey)
	if err != nil {
		return nil, err
	}
	doc, err := decodeUsers(data)
	if err != nil {
		return nil, err
	}
	return doc.users, nil
}

// Get returns a snapshot of one account.
func (r *Users) Get(ctx context.Context, username string) (*core.Account, error) {
	users, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	acct, ok := users[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, core.ErrNotFound)
	}
	return acct, nil
}

// Update applies fn to the current document and writes the result back.
// Records without an ID get one before the document is saved. If fn fails
// the stored document is left untouched.
func (r *Users) Update(ctx context.Context, fn func(core.Users) error) error {
	return r.store.Update(ctx, document.UsersKey, func(current []byte) ([]byte, error) {
		doc, err := decodeUsers(current)
		if err != nil {
			return nil, err
		}
		if err := fn(doc.users); err != nil {
			return nil, err
		}
		r.assignIDs(doc.users)
		return doc.encode()
	})
}

// UpdateAccount is Update narrowed to a single existing account.
func (r *Users) UpdateAccount(ctx context.Context, username string, fn func(*core.Account) error) error {
	return r.Update(ctx, func(users core.Users) error {
		acct, ok := users[username]
		if !ok {
			return fmt.Errorf("user %q: %w", username, core.ErrNotFound)
		}
		return fn(acct)
	})
}

// AssignIDs gives every record without an ID a stable one and persists the
// document. It returns the number of records changed.
func (r *Users) AssignIDs(ctx context.Context) (int, error) {
	var missing int
	err := r.Update(ctx, func(users core.Users) error {
		missing = 0
		for _, acct := range users {
			for _, rec := range acct.Records {
				if rec.ID == "" {
					missing++
				}
			}
		}
		return nil
	})
	return missing, err
}

func (r *Users) assignIDs(users core.Users) {
	for _, acct := range users {
		for i := range acct.Records {
			if acct.Records[i].ID == "" {
				acct.Records[i].ID = r.newID()
			}
		}
	}
}

// userDocument is the decoded user document. Top-level entries that are not
// account objects, such as the category arrays early versions wrote into
// the same file, are kept verbatim and written back on save.
type userDocument struct {
	users core.Users
	other map[string]json.RawMessage
}

func decodeUsers(data []byte) (userDocument, error) {
	raw := map[string]json.RawMessage{}
	if err := decodeDocument(data, &raw); err != nil {
		return userDocument{}, err
	}

	doc := userDocument{users: core.Users{}, other: map[string]json.RawMessage{}}
	for name, value := range raw {
		trimmed := bytes.TrimSpace(value)
		if bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		if len(trimmed) == 0 || trimmed[0] != '{' {
			doc.other[name] = value
			continue
		}
		var acct core.Account
		if err := json.Unmarshal(trimmed, &acct); err != nil {
			return userDocument{}, fmt.Errorf("decode account %q: %w", name, err)
		}
		if acct.Records == nil {
			acct.Records = []core.Record{}
		}
		doc.users[name] = &acct
	}
	return doc, nil
}

// encode writes accounts and preserved entries back as one document. An
// account shadows a preserved entry of the same name.
func (d userDocument) encode() ([]byte, error) {
	out := make(map[string]any, len(d.users)+len(d.other))
	for name, value := range d.other {
		out[name] = value
	}
	for name, acct := range d.users {
		out[name] = acct
	}
	return encodeDocument(out)
}
