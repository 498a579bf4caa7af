package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DateLayout is the format used for record dates.
const DateLayout = "2006-01-02"

const (
	Income  CategoryKind = "income"
	Expense CategoryKind = "expense"
)

type (
	// CategoryKind selects one of the category lists of the taxonomy.
	CategoryKind string

	Record struct {
		ID       string `json:"id,omitempty"` // Stable identifier, survives deletes of earlier records
		Amount   Money  `json:"amount"`       // Positive income, negative expense
		Category string `json:"type"`
		Date     string `json:"date"`
		Remark   string `json:"remark"`
	}

	// RecordPatch carries the subset of fields to merge into an existing record.
	RecordPatch struct {
		Amount   *Money
		Category *string
		Date     *string
		Remark   *string
	}

	Account struct {
		Password        string   `json:"password"`
		IsAdmin         bool     `json:"is_admin"`
		Records         []Record `json:"records"`
		Budget          Money    `json:"budget"`
		RemainingBudget Money    `json:"remaining_budget"`
	}

	// Users is the whole user document, keyed by username.
	Users map[string]*Account

	// Principal identifies an authenticated user.
	Principal struct {
		Username string `json:"username"`
		IsAdmin  bool   `json:"is_admin"`
	}

	Budget struct {
		Limit     Money `json:"limit"`
		Remaining Money `json:"remaining"`
		Spent     Money `json:"spent"`
	}

	// Taxonomy is the category document: category names per kind.
	Taxonomy map[CategoryKind][]string
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidKind      = errors.New("invalid category kind")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyCredentials = errors.New("username and password are required")
)

// Kinds returns every category kind in display order.
func Kinds() []CategoryKind {
	return []CategoryKind{Expense, Income}
}

// ParseCategoryKind accepts the English names and the labels used by older
// category documents.
func ParseCategoryKind(s string) (CategoryKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "收入":
		return Income, nil
	case "expense", "支出":
		return Expense, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

func (k CategoryKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is known
func (k CategoryKind) IsValid() bool {
	switch k {
	case Income, Expense:
		return true
	default:
		return false
	}
}

// Kind classifies the record by the sign of its amount.
func (r Record) Kind() CategoryKind {
	if r.Amount.IsNegative() {
		return Expense
	}
	return Income
}

// IsEmpty returns true if the patch carries no field.
func (p RecordPatch) IsEmpty() bool {
	return p.Amount == nil && p.Category == nil && p.Date == nil && p.Remark == nil
}

// Apply merges the supplied fields into r. ID is never touched.
func (p RecordPatch) Apply(r *Record) {
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.Remark != nil {
		r.Remark = *p.Remark
	}
}

// NewAccount returns an account with no records and a zero budget.
func NewAccount(password string, admin bool) *Account {
	return &Account{
		Password: password,
		IsAdmin:  admin,
		Records:  []Record{},
	}
}

// Spent returns the sum of all expense amounts as a positive value.
func (a *Account) Spent() Money {
	var spent Money
	for _, r := range a.Records {
		if r.Amount.IsNegative() {
			spent = spent.Sub(r.Amount)
		}
	}
	return spent
}

// Exceeded reports whether a positive limit has been overspent. A zero
// limit means no budget was set.
func (b Budget) Exceeded() bool {
	return b.Limit.Sign() > 0 && b.Remaining.IsNegative()
}

// Principal returns the identity of the account owner.
func (a *Account) Principal(username string) Principal {
	return Principal{Username: username, IsAdmin: a.IsAdmin}
}

// Contains reports whether name is listed under kind.
func (t Taxonomy) Contains(kind CategoryKind, name string) bool {
	for _, n := range t[kind] {
		if n == name {
			return true
		}
	}
	return false
}

// KindOf returns the kind listing name, if any.
func (t Taxonomy) KindOf(name string) (CategoryKind, bool) {
	for _, k := range Kinds() {
		if t.Contains(k, name) {
			return k, true
		}
	}
	return "", false
}

// UnmarshalJSON reads both the current keys and the legacy 收入/支出 keys.
// Unknown keys are dropped.
func (t *Taxonomy) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Taxonomy, len(raw))
	for key, names := range raw {
		kind, err := ParseCategoryKind(key)
		if err != nil {
			continue
		}
		out[kind] = append(out[kind], names...)
	}
	*t = out
	return nil
}
