package custody

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
MinHealthFactorWad = "1500000000000000000"
BorrowBufferBps = 9000
BorrowRateMode = 2

[[assets]]
Address = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
DepositsEnabled = true
BorrowsEnabled = true

[[assets]]
Address = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
DepositsEnabled = true
BorrowsEnabled = false
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "custody.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigBootstrapsRegistryInOrder(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	params := cfg.RiskParameters()
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	if params.MinHealthFactorWad.Cmp(want) != 0 {
		t.Fatalf("expected configured minimum health factor, got %s", params.MinHealthFactorWad)
	}
	if params.BorrowBufferBps != 9000 {
		t.Fatalf("expected buffer 9000, got %d", params.BorrowBufferBps)
	}

	registry := NewAssetRegistry()
	cfg.Bootstrap(registry)
	assets := registry.OrderedAssets()
	if len(assets) != 2 {
		t.Fatalf("expected two listed assets, got %d", len(assets))
	}
	if registry.ListingPosition(assets[0]) != 1 || registry.ListingPosition(assets[1]) != 2 {
		t.Fatalf("expected sequential listing positions")
	}
	if !registry.DepositsEnabled(assets[1]) || registry.BorrowsEnabled(assets[1]) {
		t.Fatalf("expected second asset deposit-only")
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `[[assets]]
Address = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
DepositsEnabled = true
BorrowsEnabled = true
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params := cfg.RiskParameters()
	if params.MinHealthFactorWad.Cmp(wad) != 0 {
		t.Fatalf("expected default minimum health factor of 1.0, got %s", params.MinHealthFactorWad)
	}
	if params.BorrowBufferBps != defaultBorrowBufferBps {
		t.Fatalf("expected default borrow buffer, got %d", params.BorrowBufferBps)
	}
	if cfg.BorrowRateMode != VariableRateMode {
		t.Fatalf("expected variable rate mode, got %d", cfg.BorrowRateMode)
	}
}

func TestLoadConfigRejectsBadAddresses(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, `[[assets]]
Address = "not-an-address"
`)); err == nil {
		t.Fatalf("expected invalid address to be rejected")
	}
	if _, err := LoadConfig(writeConfig(t, `[[assets]]
Address = "0x0000000000000000000000000000000000000000"
`)); err == nil {
		t.Fatalf("expected zero address to be rejected")
	}
}
