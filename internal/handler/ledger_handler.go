package handler

import (
	"net/http"

	"github.com/blues/piggybank/internal/custody"
	"github.com/blues/piggybank/internal/logic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type LedgerHandler struct {
	ledgerLogic *logic.LedgerLogic
}

func NewLedgerHandler(ledger *logic.LedgerLogic) *LedgerHandler {
	return &LedgerHandler{
		ledgerLogic: ledger,
	}
}

// Initialize 初始化项目
func (h *LedgerHandler) Initialize(c *gin.Context) {
	var req InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	caller := Caller(c)
	reserve, ok := h.payment(c, caller, req.Reserve)
	if !ok {
		return
	}

	tokenID, err := h.ledgerLogic.Initialize(c.Request.Context(), caller, logic.InitializeParams{
		Name:         req.Name,
		Description:  req.Description,
		TokenName:    req.TokenName,
		TokenSymbol:  req.TokenSymbol,
		TokenSupply:  req.TokenSupply,
		TokenEnabled: req.TokenEnabled,
		Goal:         req.Goal,
		Reserve:      reserve,
	})
	if err != nil {
		FailWithError(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, "project initialized", InitializeResponse{TokenId: tokenID})
}

// GetProject 获取项目详情
func (h *LedgerHandler) GetProject(c *gin.Context) {
	project, err := h.ledgerLogic.GetProject(c.Request.Context())
	if err != nil {
		FailWithError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", newProjectResponse(project, h.ledgerLogic.CustodialAddress().Hex()))
}

// GetGoal 获取目标进度
func (h *LedgerHandler) GetGoal(c *gin.Context) {
	info, err := h.ledgerLogic.GetProjectInfo(c.Request.Context())
	if err != nil {
		FailWithError(c, err)
		return
	}
	reached, err := h.ledgerLogic.IsGoalReached(c.Request.Context())
	if err != nil {
		FailWithError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", GoalResponse{
		Reached:        reached,
		GoalAmount:     info.GoalAmount,
		TotalDeposited: info.TotalDeposited,
		Progress:       logic.GoalProgress(info.TotalDeposited, info.GoalAmount).String(),
	})
}

// Deposit 存入
func (h *LedgerHandler) Deposit(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	caller := Caller(c)
	payment, ok := h.payment(c, caller, req)
	if !ok {
		return
	}

	balance, err := h.ledgerLogic.Deposit(c.Request.Context(), payment)
	if err != nil {
		FailWithError(c, err)
		return
	}

	h.balance(c, "deposit accepted", caller, balance, true)
}

// GetDeposit 查询地址存款
func (h *LedgerHandler) GetDeposit(c *gin.Context) {
	address, ok := parseAddress(c.Param("address"))
	if !ok {
		ErrorResponse(c, http.StatusBadRequest, "invalid address")
		return
	}

	balance, exists, err := h.ledgerLogic.LookupDeposit(c.Request.Context(), address)
	if err != nil {
		FailWithError(c, err)
		return
	}

	h.balance(c, "ok", address, balance, exists)
}

// Withdraw 取出存款
func (h *LedgerHandler) Withdraw(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	caller := Caller(c)

	remaining, err := h.ledgerLogic.Withdraw(c.Request.Context(), caller, req.Amount)
	if err != nil {
		FailWithError(c, err)
		return
	}

	h.balance(c, "withdrawal paid", caller, remaining, remaining > 0)
}

// Claim 领取代币
func (h *LedgerHandler) Claim(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	claimed, err := h.ledgerLogic.Claim(c.Request.Context(), Caller(c), req.Amount)
	if err != nil {
		FailWithError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "tokens claimed", ClaimResponse{
		Claimed:        claimed,
		ClaimedDisplay: formatUnits(claimed),
	})
}

// OptInToken 代币 opt-in
func (h *LedgerHandler) OptInToken(c *gin.Context) {
	var req OptInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	caller := Caller(c)
	reserve, ok := h.payment(c, caller, req.Reserve)
	if !ok {
		return
	}

	optedIn, err := h.ledgerLogic.OptInToken(c.Request.Context(), caller, req.AssetId, reserve)
	if err != nil {
		FailWithError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "opted in", OptInResponse{OptedIn: optedIn})
}

// payment 构造调用者发出的付款，接收地址无效时直接写入 400 响应
func (h *LedgerHandler) payment(c *gin.Context, caller common.Address, req PaymentRequest) (custody.Payment, bool) {
	receiver, ok := parseAddress(req.Receiver)
	if !ok {
		ErrorResponse(c, http.StatusBadRequest, "invalid receiver address")
		return custody.Payment{}, false
	}
	return custody.Payment{
		Sender:   caller,
		Receiver: receiver,
		Amount:   req.Amount,
	}, true
}

// balance 返回余额及该地址的领取上限
func (h *LedgerHandler) balance(c *gin.Context, message string, address common.Address, balance uint64, exists bool) {
	entitlement, err := h.ledgerLogic.ClaimCeiling(c.Request.Context(), address)
	if err != nil {
		FailWithError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, message, newBalanceResponse(address.Hex(), balance, exists, entitlement))
}
