package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"iquitos-ems/internal/api/models"
	"iquitos-ems/internal/reward"
)

// ListPresets handles GET /api/v1/reward/presets
func ListPresets(c *gin.Context) {
	out := models.PresetsResponse{}
	for _, name := range reward.PresetNames() {
		w, err := reward.Preset(name)
		if err != nil {
			continue
		}
		out.Presets = append(out.Presets, models.PresetInfo{
			Name:    name,
			Default: name == reward.DefaultPreset,
			Weights: w.Map(),
		})
	}
	c.JSON(http.StatusOK, out)
}
