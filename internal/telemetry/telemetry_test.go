package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iquitos-ems/internal/env"
)

func TestGaugesPerAgent(t *testing.T) {
	m := New()
	m.ObserveStep("sac", 100, -0.25)
	m.ObserveStep("ppo", 50, 0.1)
	m.ObserveEpisode("sac", env.EpisodeTotals{CarbonKg: 12, GridImportKWh: 30, EVChargingKWh: 9, EVDemandKWh: 10})

	assert.Equal(t, 100.0, testutil.ToFloat64(m.steps.WithLabelValues("sac")))
	assert.Equal(t, -0.25, testutil.ToFloat64(m.rewardMean.WithLabelValues("sac")))
	assert.Equal(t, 0.1, testutil.ToFloat64(m.rewardMean.WithLabelValues("ppo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.episodes.WithLabelValues("sac")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.episodeCO2.WithLabelValues("sac")))
	assert.InDelta(t, 0.9, testutil.ToFloat64(m.evSatisfaction.WithLabelValues("sac")), 1e-12)
}

func TestHandlerServesPrivateRegistry(t *testing.T) {
	a, b := New(), New()
	a.ObserveStep("sac", 1, 0)

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `agent="sac"`)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `ems_training_steps{agent="sac"} 1`)
}
