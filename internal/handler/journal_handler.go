package handler

import (
	"net/http"
	"strconv"

	"github.com/blues/piggybank/internal/logic"
	"github.com/blues/piggybank/internal/model"
	"github.com/gin-gonic/gin"
)

type JournalHandler struct {
	journalLogic *logic.JournalLogic
	auditLogic   *logic.AuditLogic
}

func NewJournalHandler(journal *logic.JournalLogic, audit *logic.AuditLogic) *JournalHandler {
	return &JournalHandler{
		journalLogic: journal,
		auditLogic:   audit,
	}
}

// GetJournal 获取流水列表
func (h *JournalHandler) GetJournal(c *gin.Context) {
	// 获取查询参数
	address := c.Query("address")
	kind := model.JournalKind(c.Query("kind"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	if address != "" {
		if _, ok := parseAddress(address); !ok {
			ErrorResponse(c, http.StatusBadRequest, "invalid address")
			return
		}
	}
	if kind != "" && !kind.Valid() {
		ErrorResponse(c, http.StatusBadRequest, "invalid journal kind")
		return
	}

	entries, total, err := h.journalLogic.ListJournal(c.Request.Context(), address, kind, page, pageSize)
	if err != nil {
		FailWithError(c, err)
		return
	}

	resp := GetJournalResponse{
		Entries:    make([]JournalEntryResponse, 0, len(entries)),
		Pagination: newPagination(page, pageSize, total),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, newJournalEntryResponse(e))
	}

	SuccessResponse(c, http.StatusOK, "ok", resp)
}

// GetStats 获取统计信息
func (h *JournalHandler) GetStats(c *gin.Context) {
	stats, err := h.journalLogic.GetStats(c.Request.Context())
	if err != nil {
		FailWithError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, "ok", StatsResponse{
		Stats:                 stats,
		TotalDepositedDisplay: formatUnits(stats.TotalDeposited),
		TotalWithdrawnDisplay: formatUnits(stats.TotalWithdrawn),
		TokensClaimedDisplay:  formatUnits(stats.TokensClaimed),
	})
}

// GetAudit 核对账本
func (h *JournalHandler) GetAudit(c *gin.Context) {
	report, err := h.auditLogic.Audit(c.Request.Context())
	if err != nil {
		FailWithError(c, err)
		return
	}

	message := "ledger consistent"
	if !report.Healthy() {
		message = "ledger inconsistent"
	}
	SuccessResponse(c, http.StatusOK, message, report)
}
