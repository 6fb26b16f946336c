package citylearn

import (
	"os"
	"path/filepath"
	"testing"

	"iquitos-ems/internal/balance"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
	"iquitos-ems/internal/synth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, dir string, in *model.Inputs) *Schema {
	t.Helper()
	res, err := balance.New(balance.DefaultOptions()).Run(in)
	require.NoError(t, err)
	opts := DefaultOptions()
	opts.PVNameplateKWp = 2200
	opts.Weights = map[string]float64{"co2": 0.35, "cost": 0.10, "solar": 0.20, "ev": 0.30, "grid": 0.05}
	s, err := Build(dir, in, res, opts)
	require.NoError(t, err)
	return s
}

func TestBuildLayout(t *testing.T) {
	dir := t.TempDir()
	s := build(t, dir, synth.Iquitos())

	assert.Len(t, s.Observations, 394)
	assert.Len(t, s.Actions, 39)
	assert.Equal(t, "hour", s.Observations[0])
	assert.Equal(t, "socket_001_connected", s.Observations[14])
	assert.Equal(t, "socket_038_unmet_kw", s.Observations[393])
	assert.Equal(t, "bess_setpoint", s.Actions[0])
	assert.Equal(t, model.HoursPerYear, s.Steps())
	assert.Equal(t, RewardType, s.Reward.Type)

	for i := 0; i < 38; i++ {
		_, err := os.Stat(filepath.Join(dir, ChargerFile(i)))
		assert.NoError(t, err)
	}
	_, err := os.Stat(filepath.Join(dir, "charger_simulation_039.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuildLoadBuildIsByteIdentical(t *testing.T) {
	first := t.TempDir()
	build(t, first, synth.Iquitos())

	ds, err := LoadDataset(first)
	require.NoError(t, err)
	in, err := ds.Inputs()
	require.NoError(t, err)
	res, err := balance.New(balance.DefaultOptions()).Run(in)
	require.NoError(t, err)

	second := t.TempDir()
	_, err = Build(second, in, res, ds.Options())
	require.NoError(t, err)

	entries, err := os.ReadDir(first)
	require.NoError(t, err)
	require.Len(t, entries, 40)
	for _, e := range entries {
		a, err := os.ReadFile(filepath.Join(first, e.Name()))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(second, e.Name()))
		require.NoError(t, err)
		assert.Equal(t, a, b, e.Name())
	}

	fa, err := Fingerprint(first)
	require.NoError(t, err)
	fb, err := Fingerprint(second)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)
}

func TestLoadDatasetErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadDataset(dir)
	assert.True(t, fault.Is(err, fault.KindInputNotFound))

	build(t, dir, synth.Iquitos())
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChargerFile(3)), []byte("hour,socket_class\n0,moto\n"), 0o644))
	_, err = LoadDataset(dir)
	assert.True(t, fault.Is(err, fault.KindInputLengthMismatch))
}

func TestSOCProxy(t *testing.T) {
	fleet := synth.DefaultFleet()
	ev := synth.EVUniform(fleet, 9, 22, 2)
	p := SOCProxy(ev, 0, 0.2)
	assert.Zero(t, p[8])
	assert.InDelta(t, 0.2+0.8/14, p[9], 1e-12)
	assert.InDelta(t, 1, p[22], 1e-12)
	assert.Zero(t, p[23])
	assert.InDelta(t, p[9], p[24+9], 1e-12)
}

func newSim(t *testing.T, in *model.Inputs) *Sim {
	t.Helper()
	dir := t.TempDir()
	build(t, dir, in)
	ds, err := LoadDataset(dir)
	require.NoError(t, err)
	sim, err := NewSim(ds)
	require.NoError(t, err)
	return sim
}

func uncontrolled(n int) [][]float64 {
	a := make([]float64, n+1)
	for i := 1; i <= n; i++ {
		a[i] = 1
	}
	return [][]float64{a}
}

func TestSimUncontrolledMatchesPassiveBalance(t *testing.T) {
	in := synth.Iquitos()
	sim := newSim(t, in)
	opts := balance.DefaultOptions()
	opts.Mode = balance.ModePassive
	ref, err := balance.New(opts).Run(in)
	require.NoError(t, err)

	obs := sim.Reset()
	require.Len(t, obs[0], 394)
	act := uncontrolled(38)
	steps := 0
	for {
		obs, rewards, done, info, err := sim.Step(act)
		require.NoError(t, err)
		require.Len(t, obs[0], 394)
		require.Len(t, rewards, 1)
		r := ref.Ledger[steps]
		require.InDelta(t, r.GridToEV+r.GridToMall, info["grid_import"], 1e-9, "hour %d", steps)
		require.InDelta(t, r.PVToGrid, info["pv_to_grid"], 1e-9)
		require.InDelta(t, r.PVToEV, info["pv_to_ev"], 1e-9)
		require.InDelta(t, r.GridKg, info["co2_grid_kg"], 1e-9)
		steps++
		if done {
			break
		}
	}
	assert.Equal(t, model.HoursPerYear, steps)

	_, _, done, _, err := sim.Step(act)
	assert.True(t, done)
	assert.ErrorIs(t, err, ErrEpisodeDone)
}

func TestSimBatteryAndSockets(t *testing.T) {
	sim := newSim(t, synth.Iquitos())
	sim.Reset()
	for h := 0; h < 6; h++ {
		a := make([]float64, 39)
		a[0] = 1
		_, _, _, info, err := sim.Step([][]float64{a})
		require.NoError(t, err)
		assert.LessOrEqual(t, info["bess_charge"], 400+1e-9)
		assert.Zero(t, info["ev_delivered"])
		assert.InDelta(t, info["pv_to_bess"]+info["grid_to_bess"], info["bess_charge"], 1e-9)
	}
	socAfterCharge := sim.bess.SOC
	assert.Greater(t, socAfterCharge, 0.2)

	a := make([]float64, 39)
	a[0] = -5 // clipped to -1
	for i := 1; i < 39; i++ {
		a[i] = 0.5
	}
	_, _, _, info, err := sim.Step([][]float64{a})
	require.NoError(t, err)
	assert.Zero(t, info["bess_charge"])
	assert.Greater(t, info["bess_discharge"], 0.0)
	assert.LessOrEqual(t, info["bess_discharge"], 400+1e-9)
	assert.Less(t, sim.bess.SOC, socAfterCharge)
	assert.LessOrEqual(t, info["ev_delivered"], info["ev_demand"]+1e-9)

	_, _, _, _, err = sim.Step([][]float64{make([]float64, 10)})
	assert.True(t, fault.Is(err, fault.KindInvalidAction))
}

func TestObservationIndexes(t *testing.T) {
	names := ObservationNames(synth.DefaultFleet())
	assert.Equal(t, "bess_soc", names[GlobalIndex("bess_soc")])
	assert.Equal(t, "socket_005_is_mototaxi", names[SocketIndex(4, "is_mototaxi")])
	assert.Equal(t, -1, GlobalIndex("nope"))
	assert.Equal(t, -1, SocketIndex(0, "nope"))
}
