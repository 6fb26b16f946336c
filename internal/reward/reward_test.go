package reward

import (
	"math"
	"testing"

	"iquitos-ems/internal/config"
	"iquitos-ems/internal/fault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, w Weights) *MultiObjective {
	t.Helper()
	r, err := New(w, DefaultParams())
	require.NoError(t, err)
	return r
}

func TestPresetsAreValid(t *testing.T) {
	for _, name := range PresetNames() {
		w, err := Preset(name)
		require.NoError(t, err, name)
		assert.NoError(t, w.Validate(), name)
	}
	assert.Equal(t, []string{"balanced", "co2_focus", "cost_focus", "ev_focus", "solar_focus"}, PresetNames())

	_, err := Preset("nope")
	assert.True(t, fault.Is(err, fault.KindConfigError))
}

func TestInvalidWeights(t *testing.T) {
	cases := []Weights{
		{CO2: 0.5, Cost: 0.5, Solar: 0.5},
		{CO2: 1.2, Cost: -0.2},
		{},
	}
	for _, w := range cases {
		_, err := New(w, DefaultParams())
		require.Error(t, err, w.String())
		assert.True(t, fault.Is(err, fault.KindInvalidWeights), w.String())
		assert.Equal(t, fault.ExitInput, fault.ExitCode(err))
	}
}

func TestWeightsFromConfig(t *testing.T) {
	rc := config.RewardConfig{Preset: "balanced"}
	w, err := WeightsFromConfig(rc)
	require.NoError(t, err)
	assert.Equal(t, 0.25, w.Cost)

	rc.Weights = &config.WeightsConfig{CO2: 1}
	w, err = WeightsFromConfig(rc)
	require.NoError(t, err)
	assert.Equal(t, Weights{CO2: 1}, w)

	rc.Weights = &config.WeightsConfig{CO2: 0.9}
	_, err = WeightsFromConfig(rc)
	assert.True(t, fault.Is(err, fault.KindInvalidWeights))
}

func TestComponentsBounded(t *testing.T) {
	r := mustNew(t, presets["co2_focus"])
	grid := []float64{0, 10, 150, 200, 1000, 5000}
	pv := []float64{0, 5, 500, 3000}
	socs := []float64{0, 0.3, 0.5, 0.7, 0.85, 0.95, 1}
	for _, imp := range grid {
		for _, s := range pv {
			for _, soc := range socs {
				for _, h := range []int{3, 12, 17, 19, 22} {
					m := Metrics{
						GridImport: imp, Solar: s, PVToGrid: s / 2, PVToEV: s / 4,
						EVDemand: 10, EVCharging: 10, EVSOCAvg: soc, BESSSOC: soc, Hour: h,
					}
					_, c := r.Compute(m)
					for i, v := range c.Terms() {
						assert.True(t, v >= -1 && v <= 1, "term %s=%g for %+v", Names[i], v, m)
					}
					assert.False(t, math.IsNaN(c.Total))
				}
			}
		}
	}
}

func TestTotalIsWeightedSumWithoutPenalties(t *testing.T) {
	p := DefaultParams()
	p.EndOfDayPenalty = 0
	w := presets["balanced"]
	r, err := New(w, p)
	require.NoError(t, err)

	total, c := r.Compute(Metrics{GridImport: 120, Solar: 300, PVToGrid: 40, EVDemand: 20, EVSOCAvg: 0.6, BESSSOC: 0.9, Hour: 22})
	want := w.CO2*c.CO2 + w.Cost*c.Cost + w.Solar*c.Solar + w.EV*c.EV + w.Grid*c.Grid
	assert.Equal(t, 0.0, c.Penalty)
	assert.InDelta(t, want, total, 1e-12)
}

func TestEVSatisfactionPiecewise(t *testing.T) {
	r := mustNew(t, presets["ev_focus"])
	cases := []struct{ soc, want float64 }{
		{0, -1},
		{0.25, -0.5},
		{0.5, 0},
		{0.675, 0.25},
		{0.85, 0.5},
		{1, 1},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, r.evSatisfaction(tc.soc), 1e-9, "soc %.3f", tc.soc)
	}
	_, c := r.Compute(Metrics{EVSOCAvg: 0.1, Hour: 12})
	assert.Equal(t, 0.0, c.EV, "no demand, no ev term")
}

func TestCO2PeakMultiplier(t *testing.T) {
	r := mustNew(t, presets["co2_focus"])
	m := Metrics{GridImport: 20}
	m.Hour = 12
	_, off := r.Compute(m)
	m.Hour = 19
	_, on := r.Compute(m)
	assert.InDelta(t, -math.Tanh(20*0.4521/45), off.CO2, 1e-12)
	assert.InDelta(t, -math.Tanh(4*20*0.4521/45), on.CO2, 1e-12)
	assert.Less(t, on.CO2, off.CO2)

	// Exporting PV makes the net negative and the term positive.
	_, c := r.Compute(Metrics{PVToGrid: 100, Solar: 100, Hour: 12})
	assert.Greater(t, c.CO2, 0.0)
	assert.InDelta(t, -45.21, c.CO2NetKg, 1e-9)
}

func TestGridAndSolarTerms(t *testing.T) {
	r := mustNew(t, presets["balanced"])
	_, c := r.Compute(Metrics{GridImport: 75, Hour: 10})
	assert.InDelta(t, 0.525, c.Grid, 1e-12)
	_, c = r.Compute(Metrics{Hour: 10})
	assert.InDelta(t, 1.0, c.Grid, 1e-12)
	_, c = r.Compute(Metrics{GridImport: 150, Hour: 10})
	assert.InDelta(t, gridFloor, c.Grid, 1e-12)
	_, c = r.Compute(Metrics{GridImport: 200, Hour: 19})
	assert.Greater(t, c.Grid, 0.0)
	_, c = r.Compute(Metrics{GridImport: 150.5, Hour: 10})
	assert.Less(t, c.Grid, 0.0)
	_, c = r.Compute(Metrics{GridImport: 300, Hour: 10})
	assert.Equal(t, -1.0, c.Grid)
	_, c = r.Compute(Metrics{GridImport: 300, Hour: 19})
	assert.InDelta(t, -0.5, c.Grid, 1e-12)

	_, c = r.Compute(Metrics{Solar: 100, PVToGrid: 0, Hour: 12})
	assert.InDelta(t, 1, c.Solar, 1e-12)
	_, c = r.Compute(Metrics{Solar: 100, PVToGrid: 50, GridImport: 50, Hour: 12})
	assert.InDelta(t, 2*0.5-1-0.5*0.5, c.Solar, 1e-12)
	_, c = r.Compute(Metrics{Solar: 0, GridImport: 50, Hour: 2})
	assert.Equal(t, 0.0, c.Solar)
}

func TestPenalties(t *testing.T) {
	p := DefaultParams()
	p.PrePeakPenalty = 0.1
	r, err := New(presets["co2_focus"], p)
	require.NoError(t, err)

	_, c := r.Compute(Metrics{BESSSOC: 0.6, Hour: 22})
	assert.InDelta(t, -0.05*0.4/0.8, c.Penalty, 1e-12)
	_, c = r.Compute(Metrics{BESSSOC: 0.2, Hour: 22})
	assert.Equal(t, 0.0, c.Penalty)
	_, c = r.Compute(Metrics{BESSSOC: 0.35, Hour: 16})
	assert.InDelta(t, -0.1*0.5, c.Penalty, 1e-12)
	_, c = r.Compute(Metrics{BESSSOC: 0.35, Hour: 12})
	assert.Equal(t, 0.0, c.Penalty)
}

func TestEVWeightScaling(t *testing.T) {
	base := Weights{CO2: 0.35, Cost: 0.20, Solar: 0.20, EV: 0.10, Grid: 0.15}
	raised := Weights{CO2: 0.25, Cost: 0.15, Solar: 0.15, EV: 0.30, Grid: 0.15}
	low := mustNew(t, base)
	high := mustNew(t, raised)

	var sumLow, sumHigh float64
	for h := 0; h < 24*7; h++ {
		m := Metrics{
			Hour:       h % 24,
			EVDemand:   20,
			EVSOCAvg:   0.3 + 0.6*float64(h%24)/23,
			GridImport: float64(h % 50),
		}
		_, a := low.Compute(m)
		_, b := high.Compute(m)
		sumLow += base.EV * a.EV
		sumHigh += raised.EV * b.EV
	}
	require.NotZero(t, sumLow)
	assert.InEpsilon(t, 3, sumHigh/sumLow, 0.05)
}

func TestStats(t *testing.T) {
	r := mustNew(t, presets["balanced"])
	s := NewStats()
	for h := 0; h < 48; h++ {
		_, c := r.Compute(Metrics{GridImport: float64(h), Hour: h % 24})
		s.Add(c)
	}
	assert.Equal(t, 48, s.Len())
	p := s.Pareto()
	g := p.Components["r_grid"]
	assert.LessOrEqual(t, g.Min, g.Mean)
	assert.LessOrEqual(t, g.Mean, g.Max)
	assert.Greater(t, g.Std, 0.0)
	assert.InDelta(t, 0.4521*float64(47*48/2), p.CO2TotalKg, 1e-9)
	assert.InDelta(t, p.Components["reward_total"].Mean, s.Means()["reward_total"], 1e-12)

	s.Reset()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Pareto().Components)
}
