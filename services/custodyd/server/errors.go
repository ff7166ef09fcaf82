package server

import (
	"errors"
	"net/http"

	nativecommon "poolcustody/native/common"
	"poolcustody/native/custody"
)

// statusFor maps custody engine failures onto HTTP status codes. Unknown
// errors are treated as upstream failures so callers retry instead of
// assuming their request was malformed.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, custody.ErrAssetNotListed):
		return http.StatusNotFound
	case errors.Is(err, custody.ErrZeroAmount),
		errors.Is(err, custody.ErrZeroAddress):
		return http.StatusBadRequest
	case errors.Is(err, custody.ErrDepositsDisabled),
		errors.Is(err, custody.ErrBorrowsDisabled),
		errors.Is(err, custody.ErrNoScaledBalance),
		errors.Is(err, custody.ErrAmountExceedsWithdrawable),
		errors.Is(err, custody.ErrAmountExceedsRepayable),
		errors.Is(err, custody.ErrAccountHealthFactorTooLow),
		errors.Is(err, custody.ErrUserHealthFactorTooLow),
		errors.Is(err, custody.ErrUserLTVCapacityExceeded),
		errors.Is(err, custody.ErrWithdrawExceedsUserCollateral),
		errors.Is(err, custody.ErrPostHealthFactorTooLow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, custody.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, custody.ErrMissingReserveToken):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}
