package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingsync/pkg/config"
)

type engineConfig struct {
	Provider      string        `env:"TEST_BILLING_PROVIDER" envDefault:"stripe"`
	BillingPeriod time.Duration `env:"TEST_BILLING_PERIOD" envDefault:"720h"`
	Strict        bool          `env:"TEST_BILLING_STRICT" envDefault:"true"`
}

type ledgerConfig struct {
	Driver string `env:"TEST_LEDGER_DRIVER" envDefault:"memory"`
}

type secretConfig struct {
	Secret string `env:"TEST_WEBHOOK_SECRET,required"`
}

type fileConfig struct {
	Secret string   `env:"TEST_FILE_SECRET"`
	Hosts  []string `env:"TEST_FILE_HOSTS" envSeparator:","`
}

func TestLoad(t *testing.T) {
	config.ResetCache()
	t.Setenv("TEST_BILLING_PROVIDER", "paddle")
	t.Setenv("TEST_BILLING_PERIOD", "1h")

	var cfg engineConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "paddle", cfg.Provider)
	assert.Equal(t, time.Hour, cfg.BillingPeriod)
	assert.True(t, cfg.Strict)

	t.Run("cached per type", func(t *testing.T) {
		t.Setenv("TEST_BILLING_PROVIDER", "stripe")

		var again engineConfig
		require.NoError(t, config.Load(&again))
		assert.Equal(t, "paddle", again.Provider)

		var ledger ledgerConfig
		require.NoError(t, config.Load(&ledger))
		assert.Equal(t, "memory", ledger.Driver)
	})

	t.Run("reset forces a reparse", func(t *testing.T) {
		t.Setenv("TEST_BILLING_PROVIDER", "stripe")
		config.ResetCache()

		var fresh engineConfig
		require.NoError(t, config.Load(&fresh))
		assert.Equal(t, "stripe", fresh.Provider)
	})
}

func TestLoad_Concurrent(t *testing.T) {
	config.ResetCache()
	t.Setenv("TEST_LEDGER_DRIVER", "redis")

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var cfg ledgerConfig
			assert.NoError(t, config.Load(&cfg))
			assert.Equal(t, "redis", cfg.Driver)
		}()
	}
	wg.Wait()
}

func TestLoad_Errors(t *testing.T) {
	config.ResetCache()
	require.NoError(t, os.Unsetenv("TEST_WEBHOOK_SECRET"))

	var cfg secretConfig
	assert.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
	assert.ErrorIs(t, config.Load[secretConfig](nil), config.ErrNilPointer)
	assert.Panics(t, func() {
		config.ResetCache()
		config.MustLoad(&cfg)
	})
}

func TestLoadEnv(t *testing.T) {
	config.ResetCache()
	dir := t.TempDir()
	base := filepath.Join(dir, ".env")
	override := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(base, []byte("TEST_FILE_SECRET=whsec_base\nTEST_FILE_HOSTS=a,b\n"), 0o600))
	require.NoError(t, os.WriteFile(override, []byte("TEST_FILE_SECRET=\"whsec_local\"\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("TEST_FILE_SECRET")
		_ = os.Unsetenv("TEST_FILE_HOSTS")
	})

	require.NoError(t, config.LoadEnv(base, override))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "whsec_local", cfg.Secret)
	assert.Equal(t, []string{"a", "b"}, cfg.Hosts)

	assert.ErrorIs(t, config.LoadEnv(filepath.Join(dir, "missing.env")), config.ErrLoadingEnvFile)
	assert.Panics(t, func() { config.MustLoadEnv(filepath.Join(dir, "missing.env")) })
	assert.NotPanics(t, func() { config.MustLoadEnv() })
}
