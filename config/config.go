package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"escrowd/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress      string `toml:"RPCAddress"`
	DataDir         string `toml:"DataDir"`
	NetworkName     string `toml:"NetworkName"`
	OperatorAddress string `toml:"OperatorAddress"`
	AssetSymbol     string `toml:"AssetSymbol"`
	AssetDecimals   uint8  `toml:"AssetDecimals"`
	RPCAuthToken    string `toml:"RPCAuthToken"`
	LogLevel        string `toml:"LogLevel"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot safely start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir is required")
	}
	operator := strings.TrimSpace(cfg.OperatorAddress)
	if operator == "" {
		return fmt.Errorf("config: OperatorAddress is required")
	}
	addr, err := crypto.DecodeAddress(operator)
	if err != nil {
		return fmt.Errorf("config: invalid OperatorAddress: %w", err)
	}
	if addr.Raw() == ([20]byte{}) {
		return fmt.Errorf("config: OperatorAddress must not be the zero identity")
	}
	if strings.TrimSpace(cfg.AssetSymbol) == "" {
		return fmt.Errorf("config: AssetSymbol is required")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "escrow-local"
	}
	if strings.TrimSpace(cfg.AssetSymbol) == "" {
		cfg.AssetSymbol = "USDC"
	}
	if cfg.AssetDecimals == 0 {
		cfg.AssetDecimals = 6
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
}

func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("config: generate default operator key: %w", err)
	}
	cfg := &Config{
		RPCAddress:      "127.0.0.1:8545",
		DataDir:         "./escrowd-data",
		NetworkName:     "escrow-local",
		OperatorAddress: key.PubKey().Address().String(),
		AssetSymbol:     "USDC",
		AssetDecimals:   6,
		LogLevel:        "info",
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
