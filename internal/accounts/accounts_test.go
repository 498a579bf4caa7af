package accounts

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ledger/internal/core"
	"ledger/internal/document"
	"ledger/internal/document/memory"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/repository"
)

func newTestManager(t *testing.T, doc string) (*Manager, *repository.Users) {
	t.Helper()
	docs := map[string][]byte{}
	if doc != "" {
		docs[document.UsersKey] = []byte(doc)
	}
	users := repository.NewUsers(memory.NewWithDocuments(docs))
	return NewManager(users, bcrypt.MinCost, log.Discard()), users
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	m, users := newTestManager(t, "")

	created, err := m.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = m.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	acct, err := users.Get(ctx, AdminUsername)
	require.NoError(t, err)
	assert.True(t, acct.IsAdmin)
	assert.NotEqual(t, AdminPassword, acct.Password, "password is stored hashed")

	p, err := m.Login(ctx, AdminUsername, AdminPassword)
	require.NoError(t, err)
	assert.Equal(t, core.Principal{Username: AdminUsername, IsAdmin: true}, p)
}

func TestRegisterDuplicateKeepsPassword(t *testing.T) {
	ctx := context.Background()
	m, users := newTestManager(t, "")

	require.NoError(t, m.Register(ctx, "alice", "pw1"))
	before, err := users.Get(ctx, "alice")
	require.NoError(t, err)

	err = m.Register(ctx, "alice", "pw2")
	assert.ErrorIs(t, err, core.ErrDuplicate)

	after, err := users.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, before.Password, after.Password)

	_, err = m.Login(ctx, "alice", "pw2")
	assert.ErrorIs(t, err, core.ErrInvalidCredential)
}

func TestRegisterRejectsEmpty(t *testing.T) {
	m, _ := newTestManager(t, "")
	for _, c := range [][2]string{{"", "pw"}, {"  ", "pw"}, {"bob", ""}} {
		err := m.Register(context.Background(), c[0], c[1])
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	}
}

func TestRegisteredAccountIsEmpty(t *testing.T) {
	ctx := context.Background()
	m, users := newTestManager(t, "")
	require.NoError(t, m.Register(ctx, "bob", "secret"))

	acct, err := users.Get(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, acct.IsAdmin)
	assert.Empty(t, acct.Records)
	assert.True(t, acct.Budget.IsZero())
	assert.True(t, acct.RemainingBudget.IsZero())
}

func TestLoginIsExact(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, "")
	require.NoError(t, m.Register(ctx, "alice", "password"))

	for _, pw := range []string{"pass", "", "password ", "PASSWORD"} {
		_, err := m.Login(ctx, "alice", pw)
		assert.ErrorIs(t, err, core.ErrInvalidCredential, pw)
		assert.True(t, IsAuthError(err))
	}

	_, err := m.Login(ctx, "nobody", "password")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestLegacyPlaintextUpgraded(t *testing.T) {
	ctx := context.Background()
	m, users := newTestManager(t, `{"carol": {"password": "hunter22", "is_admin": false, "records": [], "budget": 0, "remaining_budget": 0}}`)

	// substrings of the stored password were accepted once; not any more
	_, err := m.Login(ctx, "carol", "hunter")
	assert.ErrorIs(t, err, core.ErrInvalidCredential)

	p, err := m.Login(ctx, "carol", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "carol", p.Username)

	acct, err := users.Get(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(acct.Password, "$2"), "password upgraded to bcrypt")

	_, err = m.Login(ctx, "carol", "hunter22")
	require.NoError(t, err)
}

func TestLegacyDocumentWithCategoryArrays(t *testing.T) {
	ctx := context.Background()
	m, users := newTestManager(t, `{
    "支出": ["购物", "交通", "餐饮", "娱乐"],
    "收入": ["工资", "奖金", "投资", "兼职"],
    "admin": {"password": "admin123", "is_admin": true, "records": [], "budget": 0, "remaining_budget": 0}
}`)

	created, err := m.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	p, err := m.Login(ctx, AdminUsername, AdminPassword)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)

	all, err := users.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "category arrays are not accounts")
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, "")
	require.NoError(t, m.Register(ctx, "alice", "old"))

	require.NoError(t, m.ChangePassword(ctx, "alice", "new"))
	_, err := m.Login(ctx, "alice", "old")
	assert.ErrorIs(t, err, core.ErrInvalidCredential)
	_, err = m.Login(ctx, "alice", "new")
	assert.NoError(t, err)

	assert.ErrorIs(t, m.ChangePassword(ctx, "ghost", "x"), core.ErrNotFound)
	assert.ErrorIs(t, m.ChangePassword(ctx, "alice", ""), core.ErrInvalidInput)
}

// Register, log in, book one expense and read the statistics back.
func TestAliceScenario(t *testing.T) {
	ctx := context.Background()
	m, users := newTestManager(t, "")

	ok, msg := core.Outcome(m.Register(ctx, "alice", "pw1"), "registered")
	assert.True(t, ok)
	assert.Equal(t, "registered", msg)

	ok, _ = core.Outcome(m.Register(ctx, "alice", "pw2"), "registered")
	assert.False(t, ok)

	p, err := m.Login(ctx, "alice", "pw1")
	require.NoError(t, err)

	svc := ledger.New(users, ledger.WithLogger(log.Discard()))
	_, err = svc.Records(p.Username).Add(ctx, core.MustMoney("-20"), "交通", "2024-01-01", "bus")
	require.NoError(t, err)

	s, err := svc.Statistics(ctx, p.Username)
	require.NoError(t, err)
	assert.Equal(t, core.MustMoney("-20"), s.Total)
	assert.Equal(t, map[string]int{"交通": 1}, s.Counts)
}
