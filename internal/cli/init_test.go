package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/accounts"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

func testConfig(backend, dataDir string) *config.Config {
	return &config.Config{
		Backend:        backend,
		DataDir:        dataDir,
		BudgetMode:     "derived",
		StatsCacheSize: 8,
		StatsCacheTTL:  time.Minute,
		BcryptCost:     4,
	}
}

func TestBootstrapMemory(t *testing.T) {
	ctx := context.Background()
	app, err := Bootstrap(ctx, log.Discard(), testConfig("memory", ""))
	require.NoError(t, err)
	defer app.Close()

	p, err := app.Accounts.Login(ctx, accounts.AdminUsername, accounts.AdminPassword)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)

	tax, err := app.Taxonomy.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, tax[core.Expense], "餐饮")
	assert.Equal(t, ledger.Derived, app.Ledger.Mode())
	assert.Nil(t, app.AMQP)
}

func TestBootstrapFileAssignsLegacyIDs(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"bob": {"password": "pw", "is_admin": false, "records": [{"amount": -5, "type": "餐饮", "date": "2024-01-01", "remark": ""}], "budget": 0, "remaining_budget": 0}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.json"), []byte(legacy), 0o644))

	cfg := testConfig("file", dir)
	cfg.BudgetMode = "legacy"
	ctx := context.Background()
	app, err := Bootstrap(ctx, log.Discard(), cfg)
	require.NoError(t, err)
	defer app.Close()

	records, err := app.Ledger.Records("bob").List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].ID)
	assert.Equal(t, ledger.Incremental, app.Ledger.Mode())

	_, err = os.Stat(filepath.Join(dir, "types.json"))
	assert.NoError(t, err)
}

func TestBootstrapRejectsBadConfig(t *testing.T) {
	_, err := Bootstrap(context.Background(), log.Discard(), testConfig("cassandra", ""))
	assert.Error(t, err)

	cfg := testConfig("memory", "")
	cfg.BudgetMode = "weekly"
	_, err = Bootstrap(context.Background(), log.Discard(), cfg)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestSetupLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger("warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.False(t, strings.Contains(buf.String(), "hidden"))
	assert.True(t, strings.Contains(buf.String(), "shown"))
}
