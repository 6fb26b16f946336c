package baseline

import (
	"bytes"
	"context"
	"testing"

	"iquitos-ems/internal/balance"
	"iquitos-ems/internal/citylearn"
	"iquitos-ems/internal/config"
	"iquitos-ems/internal/env"
	"iquitos-ems/internal/model"
	"iquitos-ems/internal/reward"
	"iquitos-ems/internal/synth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T, in *model.Inputs) (*env.Env, *citylearn.Dataset) {
	t.Helper()
	res, err := balance.New(balance.DefaultOptions()).Run(in)
	require.NoError(t, err)
	dir := t.TempDir()
	_, err = citylearn.Build(dir, in, res, citylearn.DefaultOptions())
	require.NoError(t, err)
	ds, err := citylearn.LoadDataset(dir)
	require.NoError(t, err)
	w, err := reward.Preset(reward.DefaultPreset)
	require.NoError(t, err)
	r, err := reward.New(w, reward.DefaultParams())
	require.NoError(t, err)
	e, err := env.FromDataset(ds, r)
	require.NoError(t, err)
	return e, ds
}

func TestUncontrolledMatchesPassiveBalance(t *testing.T) {
	in := synth.Iquitos()
	e, ds := newEnv(t, in)
	opts := balance.DefaultOptions()
	opts.Mode = balance.ModePassive
	ref, err := balance.New(opts).Run(in)
	require.NoError(t, err)

	totals, err := Evaluate(context.Background(), e, NewUncontrolled(LayoutFromSchema(ds.Schema)), 1)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	got := totals[0]
	assert.InDelta(t, ref.Totals.GridKg, got.CarbonKg, 1e-6*ref.Totals.GridKg)
	assert.InDelta(t, ref.Totals.GridImport, got.GridImportKWh, 1e-6*ref.Totals.GridImport)
	assert.InDelta(t, 1, got.EVSatisfaction(), 1e-9)
}

func TestRBCBeatsUncontrolledOnCarbon(t *testing.T) {
	e, ds := newEnv(t, synth.Iquitos())
	l := LayoutFromSchema(ds.Schema)
	ctx := context.Background()

	base, err := Evaluate(ctx, e, NewUncontrolled(l), 1)
	require.NoError(t, err)
	rules, err := Evaluate(ctx, e, NewRBC(l, DefaultRBCParams()), 1)
	require.NoError(t, err)

	assert.Less(t, rules[0].CarbonKg, base[0].CarbonKg)
	assert.GreaterOrEqual(t, rules[0].EVSatisfaction(), 0.95-1e-9)
}

func TestFixedScheduleFractions(t *testing.T) {
	fleet := synth.DefaultFleet()
	l := Layout{Sockets: fleet, BESS: synth.NameplateBESS, Open: 9, Close: 22}
	p, err := NewFixedSchedule(l, config.DefaultSchedule)
	require.NoError(t, err)

	obs := make([]float64, len(citylearn.ObservationNames(fleet)))
	for s, sock := range fleet {
		if sock.Class == model.SocketMototaxi {
			obs[citylearn.SocketIndex(s, "is_mototaxi")] = 1
		}
	}
	moto, taxi := 0, len(fleet)-1
	require.Equal(t, model.SocketMoto, fleet[moto].Class)
	require.Equal(t, model.SocketMototaxi, fleet[taxi].Class)

	cases := []struct {
		hour       int
		moto, taxi float64
	}{
		{8, 0, 0},
		{9, 0.60, 0.70},
		{17, 0.60, 0.70},
		{18, 0, 0.70},
		{21, 0, 0.70},
		{22, 0, 0},
	}
	for _, tc := range cases {
		obs[citylearn.GlobalIndex("hour")] = float64(tc.hour)
		a := p.Predict(obs, true)
		require.Len(t, a, len(fleet)+1)
		assert.Zero(t, a[0], "hour %d", tc.hour)
		assert.Equal(t, tc.moto, a[moto+1], "moto hour %d", tc.hour)
		assert.Equal(t, tc.taxi, a[taxi+1], "mototaxi hour %d", tc.hour)
	}
}

func TestFixedScheduleRejectsBadWindow(t *testing.T) {
	_, err := NewFixedSchedule(Layout{}, []config.ScheduleWindow{{Class: "moto", Window: "9-17", Fraction: 1}})
	assert.Error(t, err)
}

func TestInWindow(t *testing.T) {
	assert.True(t, inWindow(9*60, 9*60, 18*60))
	assert.False(t, inWindow(18*60, 9*60, 18*60))
	assert.True(t, inWindow(23*60, 22*60, 2*60))
	assert.True(t, inWindow(60, 22*60, 2*60))
	assert.False(t, inWindow(60, 60, 60))
	end, err := parseHHMM("24:00")
	require.NoError(t, err)
	assert.Equal(t, 1440, end)
	_, err = parseHHMM("25:00")
	assert.Error(t, err)
}

func TestRBCDecisionTable(t *testing.T) {
	fleet := synth.DefaultFleet()
	l := Layout{Sockets: fleet, BESS: synth.NameplateBESS, Open: 9, Close: 22}
	p := NewRBC(l, DefaultRBCParams())
	obs := make([]float64, len(citylearn.ObservationNames(fleet)))
	set := func(name string, v float64) { obs[citylearn.GlobalIndex(name)] = v }

	// Midday surplus charges at surplus/power.
	set("hour", 12)
	set("solar_generation", 1200)
	set("non_shiftable_load", 1000)
	set("bess_soc", 0.5)
	set("carbon_intensity", 0.4521)
	a := p.Predict(obs, true)
	assert.InDelta(t, 200/l.BESS.PowerKW, a[0], 1e-9)
	assert.Equal(t, 1.0, a[1])

	// Peak above threshold shaves the excess.
	set("hour", 19)
	set("is_peak", 1)
	set("solar_generation", 0)
	set("non_shiftable_load", 2100)
	a = p.Predict(obs, true)
	assert.InDelta(t, -200/l.BESS.PowerKW, a[0], 1e-9)

	// Peak below threshold covers EV demand.
	set("non_shiftable_load", 1500)
	set("ev_demand_total", 100)
	a = p.Predict(obs, true)
	assert.InDelta(t, -100/l.BESS.PowerKW, a[0], 1e-9)

	// Empty battery idles.
	set("bess_soc", l.BESS.MinSOC)
	a = p.Predict(obs, true)
	assert.Zero(t, a[0])

	for i := 1; i < len(a); i++ {
		assert.GreaterOrEqual(t, a[i], 0.2)
		assert.LessOrEqual(t, a[i], 1.0)
		if fleet[i-1].Class == model.SocketMototaxi {
			assert.GreaterOrEqual(t, a[i], 0.7)
		}
	}
}

func TestRBCRespectsDemandFloor(t *testing.T) {
	fleet := synth.DefaultFleet()
	l := Layout{Sockets: fleet, BESS: synth.NameplateBESS, Open: 9, Close: 22}
	p := NewRBC(l, DefaultRBCParams())
	obs := make([]float64, len(citylearn.ObservationNames(fleet)))
	obs[citylearn.GlobalIndex("hour")] = 20
	obs[citylearn.GlobalIndex("is_peak")] = 1
	obs[citylearn.GlobalIndex("carbon_intensity")] = 0.9
	obs[citylearn.SocketIndex(0, "demand_kw")] = 7.4
	a := p.Predict(obs, true)
	assert.InDelta(t, 0.95, a[1], 1e-9)
}

func TestSaveLoadAndFactory(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	l := Layout{Sockets: synth.DefaultFleet(), BESS: synth.NameplateBESS, Open: 9, Close: 22}
	w, err := reward.Preset("balanced")
	require.NoError(t, err)
	for _, name := range Names {
		p, err := New(name, cfg, l, w)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
		var buf bytes.Buffer
		require.NoError(t, p.Save(&buf))
		require.NoError(t, p.Load(&buf))
	}
	_, err = New("oracle", cfg, l, w)
	assert.Error(t, err)

	p, err := New("rbc", cfg, l, w)
	require.NoError(t, err)
	hp := p.Hyperparameters()
	assert.Equal(t, cfg.OE2.BESS.PeakThresholdKW, hp["peak_threshold_kW"])
}
