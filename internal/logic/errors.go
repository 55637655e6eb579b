package logic

import (
	"errors"

	"github.com/blues/piggybank/internal/custody"
)

var (
	ErrAlreadyInitialized      = errors.New("project already initialized")
	ErrWrongReceiver           = errors.New("payment must be addressed to the custodial account")
	ErrInsufficientReserve     = errors.New("insufficient reserve payment")
	ErrProjectNotActive        = errors.New("project not active")
	ErrZeroAmount              = errors.New("amount must be greater than zero")
	ErrNoDeposit               = errors.New("no deposits found for this account")
	ErrInsufficientBalance     = errors.New("withdrawal amount exceeds balance")
	ErrTokenDisabled           = errors.New("token is disabled for this project")
	ErrTokenNotCreated         = errors.New("token not created yet")
	ErrClaimExceedsEntitlement = errors.New("claim exceeds entitlement")
	ErrInvalidToken            = errors.New("invalid token")
	ErrAmountOverflow          = errors.New("amount overflows ledger balance")
)

var domainErrors = []error{
	ErrAlreadyInitialized,
	ErrWrongReceiver,
	ErrInsufficientReserve,
	ErrProjectNotActive,
	ErrZeroAmount,
	ErrNoDeposit,
	ErrInsufficientBalance,
	ErrTokenDisabled,
	ErrTokenNotCreated,
	ErrClaimExceedsEntitlement,
	ErrInvalidToken,
	ErrAmountOverflow,
	custody.ErrNotCustodial,
	custody.ErrInsufficientFunds,
	custody.ErrUnknownAsset,
	custody.ErrInsufficientAssetBalance,
	custody.ErrLiquidityOverflow,
}

// IsRejection 错误是否为前置条件不满足（而非基础设施故障）
func IsRejection(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
