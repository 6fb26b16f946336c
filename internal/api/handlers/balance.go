package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"iquitos-ems/internal/balance"
)

// BalanceHandler serves the summary written next to the ledger CSV
type BalanceHandler struct {
	summaryPath string
}

// NewBalanceHandler creates a new balance handler
func NewBalanceHandler(summaryPath string) *BalanceHandler {
	return &BalanceHandler{summaryPath: summaryPath}
}

// Summary handles GET /api/v1/balance/summary
func (h *BalanceHandler) Summary(c *gin.Context) {
	s, err := balance.ReadSummary(h.summaryPath)
	if errors.Is(err, os.ErrNotExist) {
		writeError(c, http.StatusNotFound, "BALANCE_NOT_RUN", "no balance summary, run `ems balance` first", nil)
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "BALANCE_UNREADABLE", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, s)
}
