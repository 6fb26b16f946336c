package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/report"
	"iquitos-ems/internal/training"
)

// CompareHandler ranks the bundles on disk
type CompareHandler struct {
	outputDir string
}

// NewCompareHandler creates a new compare handler
func NewCompareHandler(outputDir string) *CompareHandler {
	return &CompareHandler{outputDir: outputDir}
}

// Compare handles GET /api/v1/compare
func (h *CompareHandler) Compare(c *gin.Context) {
	bundles, err := training.ReadBundles(h.outputDir)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "RESULTS_UNREADABLE", err.Error(), nil)
		return
	}
	cmp, err := report.Compare(bundles)
	if err != nil {
		if fault.Is(err, fault.KindInputValueError) {
			writeError(c, http.StatusConflict, "DATASET_MISMATCH", err.Error(), nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "COMPARE_FAILED", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, cmp)
}
