package custody

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Position records the scaled claim a single user holds against the custodial
// account for one asset. Scaled amounts are index independent; multiplying by
// the pool's current growth index yields the live underlying amount.
type Position struct {
	ScaledSupply *big.Int
	ScaledDebt   *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{}
	if p.ScaledSupply != nil {
		clone.ScaledSupply = new(big.Int).Set(p.ScaledSupply)
	}
	if p.ScaledDebt != nil {
		clone.ScaledDebt = new(big.Int).Set(p.ScaledDebt)
	}
	return clone
}

// RiskSnapshot aggregates a single user's book across every listed asset,
// expressed in the oracle's base currency.
type RiskSnapshot struct {
	// CollateralAdjusted is the liquidation-threshold weighted collateral
	// value backing the user's debt.
	CollateralAdjusted *big.Int
	// CollateralLTV is the LTV weighted collateral value bounding new borrows.
	CollateralLTV *big.Int
	// Debt is the aggregate outstanding debt value.
	Debt *big.Int
}

// ReserveConfig mirrors the per-asset configuration reported by the external
// pool. The receipt and debt token addresses locate the pool's own scaled
// balances for the custodial account.
type ReserveConfig struct {
	LtvBps                  uint64
	LiquidationThresholdBps uint64
	ReceiptToken            common.Address
	DebtToken               common.Address
}

// AccountSnapshot is the pool's account-wide solvency view of the custodial
// account. Values are base-currency; HealthFactor is WAD fixed point.
type AccountSnapshot struct {
	TotalCollateralBase     *big.Int
	TotalDebtBase           *big.Int
	AvailableBorrowsBase    *big.Int
	LiquidationThresholdBps uint64
	LtvBps                  uint64
	HealthFactor            *big.Int
}

// RiskParameters groups the deployment-configured safety limits applied on top
// of the pool's own reserve configuration.
type RiskParameters struct {
	// MinHealthFactorWad is the WAD health factor every accepted borrow or
	// withdrawal must leave the acting user above. Defaults to 1.0 WAD and may
	// be raised for extra margin.
	MinHealthFactorWad *big.Int
	// BorrowBufferBps caps new borrows below the theoretical LTV room,
	// expressed in basis points of that room.
	BorrowBufferBps uint64
}

// Clone returns a deep copy of the risk parameters.
func (p RiskParameters) Clone() RiskParameters {
	clone := RiskParameters{BorrowBufferBps: p.BorrowBufferBps}
	if p.MinHealthFactorWad != nil {
		clone.MinHealthFactorWad = new(big.Int).Set(p.MinHealthFactorWad)
	}
	return clone
}

// EnsureDefaults populates unset risk parameters with the protocol defaults.
func (p *RiskParameters) EnsureDefaults() {
	if p.MinHealthFactorWad == nil || p.MinHealthFactorWad.Sign() == 0 {
		p.MinHealthFactorWad = new(big.Int).Set(wad)
	}
	if p.BorrowBufferBps == 0 {
		p.BorrowBufferBps = defaultBorrowBufferBps
	}
}

const defaultBorrowBufferBps = 9_500
