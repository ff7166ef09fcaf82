package custody

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type stubReserveData struct {
	supplyIndex map[common.Address]*big.Int
	debtIndex   map[common.Address]*big.Int
	configs     map[common.Address]ReserveConfig
}

func (s stubReserveData) NormalizedSupplyIndex(asset common.Address) (*big.Int, error) {
	if idx, ok := s.supplyIndex[asset]; ok {
		return new(big.Int).Set(idx), nil
	}
	return new(big.Int).Set(ray), nil
}

func (s stubReserveData) NormalizedDebtIndex(asset common.Address) (*big.Int, error) {
	if idx, ok := s.debtIndex[asset]; ok {
		return new(big.Int).Set(idx), nil
	}
	return new(big.Int).Set(ray), nil
}

func (s stubReserveData) ReserveConfiguration(asset common.Address) (ReserveConfig, error) {
	return s.configs[asset], nil
}

type stubOracle struct {
	prices   map[common.Address]*big.Int
	decimals map[common.Address]uint64
}

func (s stubOracle) AssetPrice(asset common.Address) (*big.Int, error) {
	if price, ok := s.prices[asset]; ok {
		return new(big.Int).Set(price), nil
	}
	return big.NewInt(1), nil
}

func (s stubOracle) AssetDecimals(asset common.Address) (uint64, error) {
	return s.decimals[asset], nil
}

// newRiskFixture builds a single-asset book where one unit of the asset is
// worth one base-currency unit, so values equal amounts.
func newRiskFixture(ltvBps, liqBps uint64) (*RiskEngine, *Ledger, common.Address) {
	asset := makeAddress(0x01)
	registry := NewAssetRegistry()
	registry.List(asset, true, true)
	ledger := NewLedger()
	data := stubReserveData{
		supplyIndex: map[common.Address]*big.Int{},
		debtIndex:   map[common.Address]*big.Int{},
		configs: map[common.Address]ReserveConfig{
			asset: {
				LtvBps:                  ltvBps,
				LiquidationThresholdBps: liqBps,
				ReceiptToken:            makeAddress(0xE1),
				DebtToken:               makeAddress(0xE2),
			},
		},
	}
	oracle := stubOracle{
		prices:   map[common.Address]*big.Int{asset: big.NewInt(1)},
		decimals: map[common.Address]uint64{asset: 0},
	}
	risk := NewRiskEngine(registry, ledger, data, oracle, RiskParameters{})
	return risk, ledger, asset
}

func TestRiskSnapshotAggregatesWeightedCollateral(t *testing.T) {
	risk, ledger, asset := newRiskFixture(6_400, 8_000)
	user := makeAddress(0xAA)

	ledger.CreditSupply(user, asset, big.NewInt(1000))
	ledger.CreditDebt(user, asset, big.NewInt(100))

	snap, err := risk.Snapshot(user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.CollateralAdjusted.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("expected adjusted collateral 800, got %s", snap.CollateralAdjusted)
	}
	if snap.CollateralLTV.Cmp(big.NewInt(640)) != 0 {
		t.Fatalf("expected ltv collateral 640, got %s", snap.CollateralLTV)
	}
	if snap.Debt.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected debt 100, got %s", snap.Debt)
	}
}

func TestRiskBorrowGateLTVCapacity(t *testing.T) {
	risk, ledger, asset := newRiskFixture(6_400, 8_000)
	user := makeAddress(0xAB)

	// Adjusted collateral 800, LTV room 640, zero debt; buffer 95% caps new
	// borrow value at 608.
	ledger.CreditSupply(user, asset, big.NewInt(1000))

	if err := risk.CheckBorrow(user, asset, big.NewInt(790)); !errors.Is(err, ErrUserLTVCapacityExceeded) {
		t.Fatalf("expected ErrUserLTVCapacityExceeded, got %v", err)
	}
	if err := risk.CheckBorrow(user, asset, big.NewInt(608)); err != nil {
		t.Fatalf("expected borrow within buffered room to pass, got %v", err)
	}
	if err := risk.CheckBorrow(user, asset, big.NewInt(609)); !errors.Is(err, ErrUserLTVCapacityExceeded) {
		t.Fatalf("expected one unit past the buffer to fail, got %v", err)
	}
}

func TestRiskBorrowGateRejectsUnhealthyUser(t *testing.T) {
	risk, ledger, asset := newRiskFixture(6_400, 8_000)
	user := makeAddress(0xAC)

	// Debt equal to adjusted collateral puts the health factor at exactly 1.0,
	// which is at the minimum and must block any borrow size.
	ledger.CreditSupply(user, asset, big.NewInt(1000))
	ledger.CreditDebt(user, asset, big.NewInt(800))

	if err := risk.CheckBorrow(user, asset, big.NewInt(1)); !errors.Is(err, ErrUserHealthFactorTooLow) {
		t.Fatalf("expected ErrUserHealthFactorTooLow, got %v", err)
	}
	if err := risk.CheckBorrow(user, asset, big.NewInt(1_000_000)); !errors.Is(err, ErrUserHealthFactorTooLow) {
		t.Fatalf("expected rejection regardless of size, got %v", err)
	}
}

func TestRiskBorrowGatePostHealthFactor(t *testing.T) {
	asset := makeAddress(0x01)
	registry := NewAssetRegistry()
	registry.List(asset, true, true)
	ledger := NewLedger()
	data := stubReserveData{configs: map[common.Address]ReserveConfig{asset: {
		LtvBps:                  9_500,
		LiquidationThresholdBps: 9_600,
		ReceiptToken:            makeAddress(0xE1),
		DebtToken:               makeAddress(0xE2),
	}}}
	oracle := stubOracle{
		prices:   map[common.Address]*big.Int{asset: big.NewInt(1)},
		decimals: map[common.Address]uint64{asset: 0},
	}
	minHF := new(big.Int).Mul(wad, big.NewInt(3))
	minHF.Quo(minHF, big.NewInt(2))
	risk := NewRiskEngine(registry, ledger, data, oracle, RiskParameters{MinHealthFactorWad: minHF})
	user := makeAddress(0xAD)

	// Adjusted collateral 960, existing debt 100, buffered LTV room 807. A
	// 600 borrow fits the room but would leave the health factor at 1.37,
	// under the raised 1.5 minimum.
	ledger.CreditSupply(user, asset, big.NewInt(1000))
	ledger.CreditDebt(user, asset, big.NewInt(100))

	if err := risk.CheckBorrow(user, asset, big.NewInt(500)); err != nil {
		t.Fatalf("expected healthy borrow to pass, got %v", err)
	}
	if err := risk.CheckBorrow(user, asset, big.NewInt(600)); !errors.Is(err, ErrPostHealthFactorTooLow) {
		t.Fatalf("expected ErrPostHealthFactorTooLow, got %v", err)
	}
}

func TestRiskWithdrawGate(t *testing.T) {
	risk, ledger, asset := newRiskFixture(6_400, 8_000)
	user := makeAddress(0xAE)

	ledger.CreditSupply(user, asset, big.NewInt(1000))

	// Without debt the withdrawal passes unconditionally.
	if err := risk.CheckWithdraw(user, asset, big.NewInt(1000)); err != nil {
		t.Fatalf("expected debt-free withdrawal to pass, got %v", err)
	}

	ledger.CreditDebt(user, asset, big.NewInt(100))

	// Removing the entire collateral is rejected outright.
	if err := risk.CheckWithdraw(user, asset, big.NewInt(1000)); !errors.Is(err, ErrWithdrawExceedsUserCollateral) {
		t.Fatalf("expected ErrWithdrawExceedsUserCollateral, got %v", err)
	}
	// Leaving too little behind trips the post health factor.
	if err := risk.CheckWithdraw(user, asset, big.NewInt(900)); !errors.Is(err, ErrPostHealthFactorTooLow) {
		t.Fatalf("expected ErrPostHealthFactorTooLow, got %v", err)
	}
	// A modest withdrawal keeps the position healthy.
	if err := risk.CheckWithdraw(user, asset, big.NewInt(100)); err != nil {
		t.Fatalf("expected healthy withdrawal to pass, got %v", err)
	}
}

func TestRiskWithdrawGateRejectsUnhealthyUser(t *testing.T) {
	risk, ledger, asset := newRiskFixture(6_400, 8_000)
	user := makeAddress(0xAF)

	ledger.CreditSupply(user, asset, big.NewInt(1000))
	ledger.CreditDebt(user, asset, big.NewInt(800))

	if err := risk.CheckWithdraw(user, asset, big.NewInt(1)); !errors.Is(err, ErrUserHealthFactorTooLow) {
		t.Fatalf("expected ErrUserHealthFactorTooLow, got %v", err)
	}
}

func TestRiskHealthFactorWithoutDebt(t *testing.T) {
	risk, ledger, asset := newRiskFixture(6_400, 8_000)
	user := makeAddress(0xB0)

	ledger.CreditSupply(user, asset, big.NewInt(1000))

	hf, err := risk.HealthFactor(user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hf.Cmp(wad) <= 0 {
		t.Fatalf("expected debt-free health factor above minimum, got %s", hf)
	}
}

func TestRiskRaisedMinimumHealthFactor(t *testing.T) {
	asset := makeAddress(0x01)
	registry := NewAssetRegistry()
	registry.List(asset, true, true)
	ledger := NewLedger()
	data := stubReserveData{configs: map[common.Address]ReserveConfig{asset: {
		LtvBps:                  8_000,
		LiquidationThresholdBps: 9_000,
		ReceiptToken:            makeAddress(0xE1),
		DebtToken:               makeAddress(0xE2),
	}}}
	oracle := stubOracle{
		prices:   map[common.Address]*big.Int{asset: big.NewInt(1)},
		decimals: map[common.Address]uint64{asset: 0},
	}
	// Deployment demands 1.5x margin.
	minHF := new(big.Int).Mul(wad, big.NewInt(3))
	minHF.Quo(minHF, big.NewInt(2))
	risk := NewRiskEngine(registry, ledger, data, oracle, RiskParameters{MinHealthFactorWad: minHF})

	user := makeAddress(0xB1)
	ledger.CreditSupply(user, asset, big.NewInt(1000))
	ledger.CreditDebt(user, asset, big.NewInt(700))

	// HF = 900/700 ≈ 1.28 which clears 1.0 but not the raised minimum.
	if err := risk.CheckBorrow(user, asset, big.NewInt(1)); !errors.Is(err, ErrUserHealthFactorTooLow) {
		t.Fatalf("expected raised minimum to reject, got %v", err)
	}
}
