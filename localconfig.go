package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/holiman/uint256"

	"github.com/TxnLab/stakeledger/internal/lib/ledger"
)

// PoolConfig is the identity of the local pool: who owns it, which address holds
// custody and how the two tokens are denominated. Mutable ledger state lives in
// the store, not here.
type PoolConfig struct {
	Name           string `json:"name"`
	Owner          string `json:"owner"`
	Address        string `json:"address"`
	StakeSymbol    string `json:"stakeSymbol"`
	StakeDecimals  uint8  `json:"stakeDecimals"`
	RewardSymbol   string `json:"rewardSymbol"`
	RewardDecimals uint8  `json:"rewardDecimals"`
	// Precision is the accumulator scale as a decimal string.
	Precision string `json:"precision"`
	DataDir   string `json:"dataDir"`
}

func (c *PoolConfig) Validate() error {
	if c.Name == "" || c.Owner == "" || c.Address == "" {
		return fmt.Errorf("%w: name, owner and address are required", ledger.ErrInvalidConfig)
	}
	if c.Owner == c.Address {
		return fmt.Errorf("%w: owner can't be the pool address", ledger.ErrInvalidConfig)
	}
	if c.StakeSymbol == "" || c.RewardSymbol == "" {
		return fmt.Errorf("%w: token symbols are required", ledger.ErrInvalidConfig)
	}
	if c.StakeSymbol == c.RewardSymbol {
		return fmt.Errorf("%w: stake and reward tokens must differ", ledger.ErrInvalidConfig)
	}
	if c.StakeDecimals > 36 || c.RewardDecimals > 36 {
		return fmt.Errorf("%w: at most 36 decimals are supported", ledger.ErrInvalidConfig)
	}
	if _, err := c.PrecisionInt(); err != nil {
		return err
	}
	return nil
}

func (c *PoolConfig) PrecisionInt() (*uint256.Int, error) {
	if c.Precision == "" {
		return ledger.DefaultPrecision.Clone(), nil
	}
	precision, err := uint256.FromDecimal(c.Precision)
	if err != nil || precision.IsZero() {
		return nil, fmt.Errorf("%w: invalid precision %q", ledger.ErrInvalidConfig, c.Precision)
	}
	return precision, nil
}

// ConfigFilename returns the path of the pool config, creating its directory.
// An explicit path (--config) wins over the user config dir.
func ConfigFilename(override string) (string, error) {
	cfgPath := override
	if cfgPath == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		cfgPath = filepath.Join(cfgDir, "stakeledger", "stakeledger.json")
	}
	err := os.MkdirAll(filepath.Dir(cfgPath), 0775) // user+group RWX, others RX
	if err != nil {
		return "", fmt.Errorf("error making directory:%s, error:%w", filepath.Dir(cfgPath), err)
	}
	return cfgPath, nil
}

// DefaultDataDir keeps the LevelDB store next to the config file.
func DefaultDataDir(cfgName string) string {
	return filepath.Join(filepath.Dir(cfgName), "data")
}

func SavePoolConfig(cfgName string, cfg *PoolConfig) error {
	// Save into a temp file first and only replace the config file once fully written.
	temp, err := os.CreateTemp(filepath.Dir(cfgName), filepath.Base(cfgName)+".*")
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(temp)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(cfg)
	if err != nil {
		_ = temp.Close()
		_ = os.Remove(temp.Name())
		return fmt.Errorf("error saving configuration: %w", err)
	}

	err = temp.Close()
	if err != nil {
		return err
	}

	err = os.Rename(temp.Name(), cfgName)
	if err != nil {
		return err
	}
	slog.Info("pool config saved", "file", cfgName)
	return nil
}

func LoadPoolConfig(cfgName string) (*PoolConfig, error) {
	file, err := os.Open(cfgName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg PoolConfig
	err = json.NewDecoder(file).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", cfgName, err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", cfgName, err)
	}
	return &cfg, nil
}
