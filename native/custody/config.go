package custody

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config captures the deployment configuration for the custody module.
type Config struct {
	MinHealthFactorWad *big.Int      `toml:"MinHealthFactorWad"`
	BorrowBufferBps    uint64        `toml:"BorrowBufferBps"`
	BorrowRateMode     uint64        `toml:"BorrowRateMode"`
	Assets             []AssetConfig `toml:"assets"`
}

// AssetConfig bootstraps one registry listing.
type AssetConfig struct {
	Address         string `toml:"Address"`
	DepositsEnabled bool   `toml:"DepositsEnabled"`
	BorrowsEnabled  bool   `toml:"BorrowsEnabled"`
}

// EnsureDefaults populates unset fields with the protocol defaults.
func (c *Config) EnsureDefaults() {
	if c.MinHealthFactorWad == nil || c.MinHealthFactorWad.Sign() == 0 {
		c.MinHealthFactorWad = new(big.Int).Set(wad)
	}
	if c.BorrowBufferBps == 0 {
		c.BorrowBufferBps = defaultBorrowBufferBps
	}
	if c.BorrowRateMode == 0 {
		c.BorrowRateMode = VariableRateMode
	}
}

// RiskParameters converts the configuration into engine risk parameters.
func (c *Config) RiskParameters() RiskParameters {
	c.EnsureDefaults()
	return RiskParameters{
		MinHealthFactorWad: new(big.Int).Set(c.MinHealthFactorWad),
		BorrowBufferBps:    c.BorrowBufferBps,
	}
}

// Validate checks the configured asset addresses.
func (c *Config) Validate() error {
	for i, asset := range c.Assets {
		trimmed := strings.TrimSpace(asset.Address)
		if !common.IsHexAddress(trimmed) {
			return fmt.Errorf("custody config: asset %d has invalid address %q", i, asset.Address)
		}
		if common.HexToAddress(trimmed) == (common.Address{}) {
			return fmt.Errorf("custody config: asset %d uses the zero address", i)
		}
	}
	return nil
}

// LoadConfig reads the custody configuration from a toml file.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode custody config: %w", err)
	}
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap lists every configured asset on the registry.
func (c *Config) Bootstrap(registry *AssetRegistry) {
	for _, asset := range c.Assets {
		registry.List(common.HexToAddress(strings.TrimSpace(asset.Address)), asset.DepositsEnabled, asset.BorrowsEnabled)
	}
}
