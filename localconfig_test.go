package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TxnLab/stakeledger/internal/lib/ledger"
	"github.com/TxnLab/stakeledger/internal/lib/store"
)

func TestPoolConfig_SaveLoad(t *testing.T) {
	cfgName, err := ConfigFilename(filepath.Join(t.TempDir(), "nested", "pool.json"))
	require.NoError(t, err)
	assert.DirExists(t, filepath.Dir(cfgName))

	_, err = LoadPoolConfig(cfgName)
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg := testPoolConfig(t)
	cfg.Precision = "1"
	require.NoError(t, SavePoolConfig(cfgName, cfg))

	loaded, err := LoadPoolConfig(cfgName)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	precision, err := loaded.PrecisionInt()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), precision.Uint64())

	entries, err := os.ReadDir(filepath.Dir(cfgName))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestPoolConfig_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(cfg *PoolConfig)
	}{
		{"no owner", func(cfg *PoolConfig) { cfg.Owner = "" }},
		{"no address", func(cfg *PoolConfig) { cfg.Address = "" }},
		{"owner is the pool", func(cfg *PoolConfig) { cfg.Owner = cfg.Address }},
		{"same tokens", func(cfg *PoolConfig) { cfg.RewardSymbol = cfg.StakeSymbol }},
		{"too many decimals", func(cfg *PoolConfig) { cfg.StakeDecimals = 40 }},
		{"zero precision", func(cfg *PoolConfig) { cfg.Precision = "0" }},
		{"bad precision", func(cfg *PoolConfig) { cfg.Precision = "1e18" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testPoolConfig(t)
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ledger.ErrInvalidConfig)
		})
	}

	cfg := testPoolConfig(t)
	require.NoError(t, cfg.Validate())
	precision, err := cfg.PrecisionInt()
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultPrecision, precision)
}

func TestIsAccountValid(t *testing.T) {
	for _, valid := range []string{"alice", "pool", "0xabc", "team:ops", "a_b-c.d"} {
		assert.NoError(t, IsAccountValid(valid), valid)
	}
	for _, invalid := range []string{"", "-alice", "has space", "x/y"} {
		assert.Error(t, IsAccountValid(invalid), invalid)
	}
}

// A config that validates must also build a ledger, otherwise 'pool init'
// would save a file no command can load.
func TestPoolConfig_ValidateMatchesLedger(t *testing.T) {
	st, err := store.OpenMem(testLogger())
	require.NoError(t, err)
	defer st.Close()
	clock := clockwork.NewFakeClock()

	cfg := testPoolConfig(t)
	require.NoError(t, cfg.Validate())
	_, err = restoreSession(st, testLogger(), clock, cfg)
	require.NoError(t, err)

	cfg.Owner = cfg.Address
	assert.ErrorIs(t, cfg.Validate(), ledger.ErrInvalidConfig)
	_, err = restoreSession(st, testLogger(), clock, cfg)
	assert.ErrorIs(t, err, ledger.ErrInvalidConfig)
}
