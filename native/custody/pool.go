package custody

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VariableRateMode is the interest rate mode forwarded to the pool for borrow
// and repay calls when no override is configured.
const VariableRateMode uint64 = 2

// Pool is the external collateralized lending pool the custodial account
// deposits into and borrows from. Its interest and liquidation mechanics are
// consumed, never reimplemented.
type Pool interface {
	Supply(asset common.Address, amount *big.Int, onBehalfOf common.Address) error
	// Withdraw returns the amount actually released, which may exceed the
	// nominal request by a rounding remainder.
	Withdraw(asset common.Address, amount *big.Int, to common.Address) (*big.Int, error)
	Borrow(asset common.Address, amount *big.Int, rateMode uint64, onBehalfOf common.Address) error
	// Repay returns the amount actually accepted; the pool may take less than
	// offered once the position rounds to exactly zero.
	Repay(asset common.Address, amount *big.Int, rateMode uint64, onBehalfOf common.Address) (*big.Int, error)

	NormalizedSupplyIndex(asset common.Address) (*big.Int, error)
	NormalizedDebtIndex(asset common.Address) (*big.Int, error)
	ReserveConfiguration(asset common.Address) (ReserveConfig, error)
	AccountRiskSnapshot(account common.Address) (AccountSnapshot, error)

	// ScaledBalanceOf reads the scaled balance a receipt or debt token records
	// for the holder. Workflows snapshot it around pool calls to measure the
	// exact scaled delta the pool applied.
	ScaledBalanceOf(token, holder common.Address) (*big.Int, error)
}

// ReserveDataSource is the subset of Pool the risk engine consumes.
type ReserveDataSource interface {
	NormalizedSupplyIndex(asset common.Address) (*big.Int, error)
	NormalizedDebtIndex(asset common.Address) (*big.Int, error)
	ReserveConfiguration(asset common.Address) (ReserveConfig, error)
}

// PriceOracle quotes every listed asset in one shared base currency.
type PriceOracle interface {
	AssetPrice(asset common.Address) (*big.Int, error)
	AssetDecimals(asset common.Address) (uint64, error)
}

// TokenMover is the trusted token movement capability: pulling funds from the
// caller, pushing funds back out, and managing the pool allowance. ApprovePool
// implementations are expected to tolerate the approve-then-reset-to-zero
// cycle required by tokens that reject nonzero-to-nonzero allowance changes.
type TokenMover interface {
	Pull(asset, from common.Address, amount *big.Int) error
	Push(asset, to common.Address, amount *big.Int) error
	ApprovePool(asset common.Address, amount *big.Int) error
}
