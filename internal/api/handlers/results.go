package handlers

import (
	"errors"
	"net/http"
	"os"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"iquitos-ems/internal/api/models"
	"iquitos-ems/internal/training"
)

var agentName = regexp.MustCompile(`^[a-z0-9_]+$`)

// ResultsHandler serves result bundles from the training output directory
type ResultsHandler struct {
	outputDir string
}

// NewResultsHandler creates a new results handler
func NewResultsHandler(outputDir string) *ResultsHandler {
	return &ResultsHandler{outputDir: outputDir}
}

// ListResults handles GET /api/v1/results
func (h *ResultsHandler) ListResults(c *gin.Context) {
	var q models.ResultsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	bundles, err := training.ReadBundles(h.outputDir)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "RESULTS_UNREADABLE", err.Error(), nil)
		return
	}
	if q.Status != "" {
		bundles = lo.Filter(bundles, func(b *training.ResultBundle, _ int) bool { return b.Status == q.Status })
	}
	c.JSON(http.StatusOK, models.ResultsResponse{
		Results: lo.Map(bundles, func(b *training.ResultBundle, _ int) models.ResultSummary {
			return models.ResultSummary{
				Agent:          b.Agent,
				RunID:          b.RunID,
				Status:         b.Status,
				Episodes:       b.Episodes,
				Steps:          b.Steps,
				CarbonKg:       b.Totals.CarbonKg,
				GridImportKWh:  b.Totals.GridImportKWh,
				EVSatisfaction: b.EVSatisfaction(),
				WallTimeS:      b.WallTimeS,
			}
		}),
	})
}

// GetResult handles GET /api/v1/results/:agent
func (h *ResultsHandler) GetResult(c *gin.Context) {
	agent := c.Param("agent")
	if !agentName.MatchString(agent) {
		writeError(c, http.StatusBadRequest, "INVALID_AGENT", "agent must match [a-z0-9_]+", map[string]any{"agent": agent})
		return
	}
	path := training.BundlePath(h.outputDir, agent)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		writeError(c, http.StatusNotFound, "RESULT_NOT_FOUND", "no result bundle for "+agent, map[string]any{"agent": agent})
		return
	}
	b, err := training.ReadBundle(path)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "RESULTS_UNREADABLE", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, b)
}
