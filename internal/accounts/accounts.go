// Package accounts registers users and checks their credentials against the
// user document.
package accounts

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/repository"
)

// Built-in administrator provisioned on first start.
const (
	AdminUsername = "admin"
	AdminPassword = "admin123"
)

type Manager struct {
	users  *repository.Users
	cost   int
	logger *log.Logger
}

func NewManager(users *repository.Users, cost int, logger *log.Logger) *Manager {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = log.Default(log.ComponentAccounts)
	}
	return &Manager{users: users, cost: cost, logger: logger.WithComponent(log.ComponentAccounts)}
}

// EnsureAdmin creates the administrator account if it does not exist.
// It reports whether the account was created.
func (m *Manager) EnsureAdmin(ctx context.Context) (bool, error) {
	hash, err := m.hash(AdminPassword)
	if err != nil {
		return false, err
	}
	var created bool
	err = m.users.Update(ctx, func(users core.Users) error {
		created = false
		if _, ok := users[AdminUsername]; ok {
			return nil
		}
		users[AdminUsername] = core.NewAccount(hash, true)
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("provision admin: %w", err)
	}
	if created {
		m.logger.InfoContext(ctx, "Administrator provisioned", log.FieldUsername, AdminUsername)
	}
	return created, nil
}

// Register creates a non-admin account with no records and a zero budget.
func (m *Manager) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("%w: %w", core.ErrInvalidInput, core.ErrEmptyCredentials)
	}
	hash, err := m.hash(password)
	if err != nil {
		return err
	}
	err = m.users.Update(ctx, func(users core.Users) error {
		if _, ok := users[username]; ok {
			return fmt.Errorf("user %q: %w", username, core.ErrDuplicate)
		}
		users[username] = core.NewAccount(hash, false)
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.LogFields(ctx, slog.LevelInfo, "User registered", log.NewFields().WithUser(username).WithOperation(log.OpRegister))
	return nil
}

// Login checks password against the stored credential. Accounts still
// holding a plaintext password are upgraded to a hash on success.
func (m *Manager) Login(ctx context.Context, username, password string) (core.Principal, error) {
	acct, err := m.users.Get(ctx, username)
	if err != nil {
		return core.Principal{}, err
	}

	ok, legacy := verify(acct.Password, password)
	if !ok {
		m.logger.LogFields(ctx, slog.LevelWarn, "Login failed", log.NewFields().WithUser(username).WithOperation(log.OpLogin))
		return core.Principal{}, fmt.Errorf("user %q: %w", username, core.ErrInvalidCredential)
	}
	if legacy {
		if err := m.setPassword(ctx, username, password); err != nil {
			m.logger.WarnContext(ctx, "Failed to upgrade legacy password",
				log.FieldUsername, username, log.FieldError, err)
		}
	}
	return acct.Principal(username), nil
}

// ChangePassword replaces the password of an existing user.
func (m *Manager) ChangePassword(ctx context.Context, username, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: empty password", core.ErrInvalidInput)
	}
	if err := m.setPassword(ctx, username, newPassword); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "Password changed", log.FieldUsername, username)
	return nil
}

// Principal returns the identity of an existing user.
func (m *Manager) Principal(ctx context.Context, username string) (core.Principal, error) {
	acct, err := m.users.Get(ctx, username)
	if err != nil {
		return core.Principal{}, err
	}
	return acct.Principal(username), nil
}

func (m *Manager) setPassword(ctx context.Context, username, password string) error {
	hash, err := m.hash(password)
	if err != nil {
		return err
	}
	return m.users.UpdateAccount(ctx, username, func(acct *core.Account) error {
		acct.Password = hash
		return nil
	})
}

func (m *Manager) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// verify compares password with stored, which is either a bcrypt hash or a
// plaintext password from an older document.
func verify(stored, password string) (ok, legacy bool) {
	if isHash(stored) {
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
		return err == nil, false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1, true
}

func isHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// IsAuthError reports whether err means the caller could not be
// authenticated.
func IsAuthError(err error) bool {
	return errors.Is(err, core.ErrInvalidCredential) || errors.Is(err, core.ErrNotFound)
}
