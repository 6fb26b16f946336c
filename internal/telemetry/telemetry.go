// Package telemetry exposes training progress as Prometheus gauges. Each
// Metrics owns a private registry so tests and parallel servers never share
// collectors.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iquitos-ems/internal/env"
)

type Metrics struct {
	reg *prometheus.Registry

	rewardMean     *prometheus.GaugeVec
	steps          *prometheus.GaugeVec
	episodes       *prometheus.CounterVec
	episodeCO2     *prometheus.GaugeVec
	gridImport     *prometheus.GaugeVec
	evSatisfaction *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		rewardMean: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ems_reward_moving_mean",
			Help: "Moving mean of the per-step multi-objective reward.",
		}, []string{"agent"}),
		steps: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ems_training_steps",
			Help: "Environment steps taken in the current run.",
		}, []string{"agent"}),
		episodes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ems_episodes_total",
			Help: "Completed episodes.",
		}, []string{"agent"}),
		episodeCO2: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ems_episode_co2_kg",
			Help: "Grid CO2 of the last completed episode in kg.",
		}, []string{"agent"}),
		gridImport: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ems_episode_grid_import_kwh",
			Help: "Grid import of the last completed episode in kWh.",
		}, []string{"agent"}),
		evSatisfaction: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ems_episode_ev_satisfaction",
			Help: "Delivered over requested EV energy in the last completed episode.",
		}, []string{"agent"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveStep(agent string, step int, rewardMean float64) {
	m.steps.WithLabelValues(agent).Set(float64(step))
	m.rewardMean.WithLabelValues(agent).Set(rewardMean)
}

func (m *Metrics) ObserveEpisode(agent string, t env.EpisodeTotals) {
	m.episodes.WithLabelValues(agent).Inc()
	m.episodeCO2.WithLabelValues(agent).Set(t.CarbonKg)
	m.gridImport.WithLabelValues(agent).Set(t.GridImportKWh)
	m.evSatisfaction.WithLabelValues(agent).Set(t.EVSatisfaction())
}
