package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthledger/core/storage"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func withDotEnv(t *testing.T, files ...string) {
	t.Helper()
	prev := DotEnvFiles
	DotEnvFiles = files
	t.Cleanup(func() { DotEnvFiles = prev })
}

func TestLoadLayersYAMLAndEnv(t *testing.T) {
	withDotEnv(t)
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store_path: /var/lib/ledger/chain.sqlite
backend: sqlite
difficulty: 3
pool_capacity: 50
log_level: debug
`), 0o644))
	t.Setenv("LEDGER_DIFFICULTY", "4")
	t.Setenv("LEDGER_ON_CORRUPT", "reinit")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ledger/chain.sqlite", cfg.StorePath)
	assert.Equal(t, storage.BackendSQLite, cfg.Backend)
	assert.Equal(t, 4, cfg.Difficulty, "environment wins over the file")
	assert.Equal(t, 50, cfg.PoolCapacity)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, OnCorruptReinit, cfg.OnCorrupt)
	assert.Equal(t, ":8090", cfg.StatusAddr, "unset keys keep defaults")
}

func TestLoadReadsDotEnv(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte("LEDGER_BACKEND=leveldb\nLEDGER_STORE_PATH=db/chain\n"), 0o644))
	withDotEnv(t, env, filepath.Join(t.TempDir(), "absent.env"))
	t.Cleanup(func() {
		os.Unsetenv("LEDGER_BACKEND")
		os.Unsetenv("LEDGER_STORE_PATH")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, storage.BackendLevelDB, cfg.Backend)
	assert.Equal(t, "db/chain", cfg.StorePath)
}

func TestLoadRejectsBadValues(t *testing.T) {
	withDotEnv(t)
	t.Setenv("LEDGER_DIFFICULTY", "lots")
	_, err := Load("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":    func(c *Config) { c.Backend = "s3" },
		"difficulty": func(c *Config) { c.Difficulty = 65 },
		"negative":   func(c *Config) { c.Difficulty = -1 },
		"max_nonce":  func(c *Config) { c.MaxNonce = 0 },
		"hang":       func(c *Config) { c.Difficulty = 8 },
		"small_pool": func(c *Config) { c.MaxNonce = 1 << 8 },
		"pool":       func(c *Config) { c.PoolCapacity = -2 },
		"on_corrupt": func(c *Config) { c.OnCorrupt = "ignore" },
		"log_level":  func(c *Config) { c.LogLevel = "loud" },
		"store_path": func(c *Config) { c.StorePath = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsFeasibleDifficulty(t *testing.T) {
	cfg := Default()
	cfg.Difficulty = 7
	assert.NoError(t, cfg.Validate())

	cfg.Difficulty = 3
	cfg.MaxNonce = 1 << 16
	assert.NoError(t, cfg.Validate())
}
