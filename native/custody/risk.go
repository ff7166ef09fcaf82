package custody

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RiskEngine decides whether a borrow or withdrawal is safe for one user.
// Collateral and debt are shared across the whole custodial book, so every
// check aggregates the user's positions over every listed asset.
type RiskEngine struct {
	registry *AssetRegistry
	ledger   *Ledger
	reserves ReserveDataSource
	oracle   PriceOracle
	params   RiskParameters
}

// NewRiskEngine wires the risk engine to the ledger it reads and the external
// reserve and price data it aggregates against.
func NewRiskEngine(registry *AssetRegistry, ledger *Ledger, reserves ReserveDataSource, oracle PriceOracle, params RiskParameters) *RiskEngine {
	params.EnsureDefaults()
	return &RiskEngine{
		registry: registry,
		ledger:   ledger,
		reserves: reserves,
		oracle:   oracle,
		params:   params.Clone(),
	}
}

// Snapshot aggregates the user's base-currency collateral and debt across the
// full listing. Assets with no position contribute nothing and cost no
// external calls.
func (r *RiskEngine) Snapshot(user common.Address) (RiskSnapshot, error) {
	snap := RiskSnapshot{
		CollateralAdjusted: big.NewInt(0),
		CollateralLTV:      big.NewInt(0),
		Debt:               big.NewInt(0),
	}
	for _, asset := range r.registry.OrderedAssets() {
		scaledSupply := r.ledger.ScaledSupplyOf(user, asset)
		scaledDebt := r.ledger.ScaledDebtOf(user, asset)
		if scaledSupply.Sign() == 0 && scaledDebt.Sign() == 0 {
			continue
		}

		price, err := r.oracle.AssetPrice(asset)
		if err != nil {
			return RiskSnapshot{}, err
		}
		decimals, err := r.oracle.AssetDecimals(asset)
		if err != nil {
			return RiskSnapshot{}, err
		}
		cfg, err := r.reserves.ReserveConfiguration(asset)
		if err != nil {
			return RiskSnapshot{}, err
		}

		if scaledSupply.Sign() > 0 {
			index, err := r.reserves.NormalizedSupplyIndex(asset)
			if err != nil {
				return RiskSnapshot{}, err
			}
			value := baseValue(underlyingFromScaled(scaledSupply, index), price, decimals)
			snap.CollateralAdjusted.Add(snap.CollateralAdjusted, bpsShare(value, cfg.LiquidationThresholdBps))
			snap.CollateralLTV.Add(snap.CollateralLTV, bpsShare(value, cfg.LtvBps))
		}
		if scaledDebt.Sign() > 0 {
			index, err := r.reserves.NormalizedDebtIndex(asset)
			if err != nil {
				return RiskSnapshot{}, err
			}
			snap.Debt.Add(snap.Debt, baseValue(underlyingFromScaled(scaledDebt, index), price, decimals))
		}
	}
	return snap, nil
}

// HealthFactor returns the user's current WAD health factor. Users without
// debt report a factor far above any configurable minimum.
func (r *RiskEngine) HealthFactor(user common.Address) (*big.Int, error) {
	snap, err := r.Snapshot(user)
	if err != nil {
		return nil, err
	}
	return healthFactor(snap.CollateralAdjusted, snap.Debt), nil
}

// CheckBorrow gates a borrow request against the user's aggregate book. The
// request value is bounded by the LTV room scaled down by the borrow buffer,
// and the projected post-borrow health factor must clear the minimum.
func (r *RiskEngine) CheckBorrow(user, asset common.Address, amount *big.Int) error {
	snap, err := r.Snapshot(user)
	if err != nil {
		return err
	}
	if snap.Debt.Sign() > 0 {
		if healthFactor(snap.CollateralAdjusted, snap.Debt).Cmp(r.params.MinHealthFactorWad) <= 0 {
			return ErrUserHealthFactorTooLow
		}
	}

	value, err := r.requestValue(asset, amount)
	if err != nil {
		return err
	}

	room := new(big.Int).Sub(snap.CollateralLTV, snap.Debt)
	if room.Sign() < 0 {
		room.SetInt64(0)
	}
	if value.Cmp(bpsShare(room, r.params.BorrowBufferBps)) > 0 {
		return ErrUserLTVCapacityExceeded
	}

	projected := new(big.Int).Add(snap.Debt, value)
	if healthFactor(snap.CollateralAdjusted, projected).Cmp(r.params.MinHealthFactorWad) <= 0 {
		return ErrPostHealthFactorTooLow
	}
	return nil
}

// CheckWithdraw gates a collateral withdrawal. A user carrying no debt passes
// unconditionally; otherwise the withdrawal's liquidation-adjusted value must
// leave the remaining collateral above the minimum health factor.
func (r *RiskEngine) CheckWithdraw(user, asset common.Address, amount *big.Int) error {
	snap, err := r.Snapshot(user)
	if err != nil {
		return err
	}
	if snap.Debt.Sign() == 0 {
		return nil
	}
	if healthFactor(snap.CollateralAdjusted, snap.Debt).Cmp(r.params.MinHealthFactorWad) <= 0 {
		return ErrUserHealthFactorTooLow
	}

	value, err := r.requestValue(asset, amount)
	if err != nil {
		return err
	}
	cfg, err := r.reserves.ReserveConfiguration(asset)
	if err != nil {
		return err
	}
	reduction := bpsShare(value, cfg.LiquidationThresholdBps)
	if reduction.Cmp(snap.CollateralAdjusted) >= 0 {
		return ErrWithdrawExceedsUserCollateral
	}

	remaining := new(big.Int).Sub(snap.CollateralAdjusted, reduction)
	if healthFactor(remaining, snap.Debt).Cmp(r.params.MinHealthFactorWad) <= 0 {
		return ErrPostHealthFactorTooLow
	}
	return nil
}

// Parameters returns a copy of the configured risk parameters.
func (r *RiskEngine) Parameters() RiskParameters {
	return r.params.Clone()
}

func (r *RiskEngine) requestValue(asset common.Address, amount *big.Int) (*big.Int, error) {
	price, err := r.oracle.AssetPrice(asset)
	if err != nil {
		return nil, err
	}
	decimals, err := r.oracle.AssetDecimals(asset)
	if err != nil {
		return nil, err
	}
	return baseValue(amount, price, decimals), nil
}
