package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"iquitos-ems/internal/api/models"
	"iquitos-ems/internal/repository"
)

// EpisodeStore is the read side of the run repository
type EpisodeStore interface {
	Episodes(agent string, limit int) ([]repository.StoredEpisode, error)
}

// RunsHandler serves persisted episode rows
type RunsHandler struct {
	store EpisodeStore
}

// NewRunsHandler creates a new runs handler; store may be nil
func NewRunsHandler(store EpisodeStore) *RunsHandler {
	return &RunsHandler{store: store}
}

// Episodes handles GET /api/v1/runs/:agent/episodes
func (h *RunsHandler) Episodes(c *gin.Context) {
	if h.store == nil {
		writeError(c, http.StatusServiceUnavailable, "RUNS_DB_DISABLED", "oe3.training.metrics_db is not set", nil)
		return
	}
	var q models.EpisodesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	agent := c.Param("agent")
	if !agentName.MatchString(agent) {
		writeError(c, http.StatusBadRequest, "INVALID_AGENT", "agent must match [a-z0-9_]+", map[string]any{"agent": agent})
		return
	}
	rows, err := h.store.Episodes(agent, q.Limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "RUNS_DB_ERROR", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, models.EpisodesResponse{
		Agent: agent,
		Episodes: lo.Map(rows, func(r repository.StoredEpisode, _ int) models.EpisodeRow {
			return models.EpisodeRow{
				RunID:          r.RunID,
				Episode:        r.Episode,
				Steps:          r.Steps,
				RewardMean:     r.RewardMean,
				CarbonKg:       r.CarbonKg,
				GridImportKWh:  r.GridImportKWh,
				EVSatisfaction: r.EVSatisfaction,
				RecordedAt:     r.CreatedAt,
			}
		}),
	})
}
