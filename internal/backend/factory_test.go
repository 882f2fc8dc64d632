package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendtracker/internal/config"
	"spendtracker/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:   "sqlite",
		SQLiteDBPath:  "/tmp/x.db",
		BalancePolicy: "full",
		StoreTimeout:  time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, "full", cfg.BalancePolicy)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{Type: "nope"}.Validate())
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.Error(t, Config{Type: MemoryBackend, BalancePolicy: "lazy"}.Validate())
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	configs := map[string]Config{
		"memory": {Type: MemoryBackend, BalancePolicy: "incremental"},
		"sqlite": {Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db"), BalancePolicy: "full"},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			res, err := NewFactory(nil).CreateBackend(ctx, cfg)
			require.NoError(t, err)
			defer func() { assert.NoError(t, res.Cleanup()) }()

			assert.False(t, res.Events)
			require.NoError(t, res.Store.Ping(ctx))

			cats, err := res.Categories.List(ctx, 1)
			require.NoError(t, err)
			require.NotEmpty(t, cats)

			added, err := res.Ledger.AddTransaction(ctx, 1, core.TransactionInput{
				CategoryID:  cats[0].ID,
				Date:        core.NewDate(2024, 1, 1),
				Description: "opening",
				Credited:    core.MustParseMoney("100"),
			})
			require.NoError(t, err)
			assert.Equal(t, "100.00", added.Balance.String())
		})
	}
}
