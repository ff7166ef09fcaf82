package custody

import "errors"

var (
	// Eligibility failures raised before any funds move.
	ErrAssetNotListed   = errors.New("custody engine: asset not listed")
	ErrDepositsDisabled = errors.New("custody engine: deposits disabled for asset")
	ErrBorrowsDisabled  = errors.New("custody engine: borrowing disabled for asset")

	// Input validation failures.
	ErrZeroAmount  = errors.New("custody engine: amount must be positive")
	ErrZeroAddress = errors.New("custody engine: zero address")

	// State preconditions on the caller's attributed position.
	ErrNoScaledBalance           = errors.New("custody engine: no scaled balance for user")
	ErrAmountExceedsWithdrawable = errors.New("custody engine: amount exceeds withdrawable balance")
	ErrAmountExceedsRepayable    = errors.New("custody engine: amount exceeds repayable debt")

	// Integration failures with the external pool.
	ErrMissingReserveToken = errors.New("custody engine: reserve token not configured at pool")

	// Risk gate failures.
	ErrAccountHealthFactorTooLow     = errors.New("custody engine: custodial account health factor too low")
	ErrUserHealthFactorTooLow        = errors.New("custody engine: user health factor too low")
	ErrUserLTVCapacityExceeded       = errors.New("custody engine: borrow exceeds user ltv capacity")
	ErrWithdrawExceedsUserCollateral = errors.New("custody engine: withdrawal exceeds user collateral")
	ErrPostHealthFactorTooLow        = errors.New("custody engine: post-operation health factor too low")

	// Concurrency discipline.
	ErrReentrantCall = errors.New("custody engine: reentrant call rejected")

	errNilPool   = errors.New("custody engine: pool not configured")
	errNilOracle = errors.New("custody engine: oracle not configured")
	errNilTokens = errors.New("custody engine: token mover not configured")
)
