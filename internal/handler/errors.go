package handler

import (
	"errors"
	"net/http"

	"github.com/blues/piggybank/internal/custody"
	"github.com/blues/piggybank/internal/logic"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{logic.ErrAlreadyInitialized, http.StatusConflict},
	{logic.ErrProjectNotActive, http.StatusConflict},
	{logic.ErrTokenDisabled, http.StatusConflict},
	{logic.ErrTokenNotCreated, http.StatusConflict},
	{logic.ErrWrongReceiver, http.StatusBadRequest},
	{logic.ErrInsufficientReserve, http.StatusBadRequest},
	{logic.ErrZeroAmount, http.StatusBadRequest},
	{logic.ErrInvalidToken, http.StatusBadRequest},
	{logic.ErrAmountOverflow, http.StatusBadRequest},
	{logic.ErrNoDeposit, http.StatusNotFound},
	{logic.ErrInsufficientBalance, http.StatusUnprocessableEntity},
	{logic.ErrClaimExceedsEntitlement, http.StatusUnprocessableEntity},
	{custody.ErrNotCustodial, http.StatusBadRequest},
	{custody.ErrLiquidityOverflow, http.StatusBadRequest},
	{custody.ErrUnknownAsset, http.StatusNotFound},
	{custody.ErrInsufficientAssetBalance, http.StatusConflict},
	{custody.ErrInsufficientFunds, http.StatusServiceUnavailable},
}

// StatusFor 领域错误对应的 HTTP 状态码，其他错误为 500
func StatusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}
