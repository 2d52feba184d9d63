package genesis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthledger/core/types"
)

func TestLoadGenesisConfigFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"chainId":"clinic-7"}`), 0o644))

	cfg, err := LoadGenesisConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "clinic-7", cfg.ChainID)
	assert.Equal(t, DefaultMessage, cfg.Message)
}

func TestLoadGenesisConfigErrors(t *testing.T) {
	_, err := LoadGenesisConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	_, err = LoadGenesisConfig(path)
	require.Error(t, err)
}

func TestGenesisTransaction(t *testing.T) {
	tx, err := Func(Default())()
	require.NoError(t, err)
	assert.Equal(t, types.TxGenesis, tx.Type)
	a, ok := tx.Asset.(types.GenesisAsset)
	require.True(t, ok)
	assert.Equal(t, DefaultMessage, a.Message)
	assert.Equal(t, "healthledger", a.ChainID)
}
