package env

import (
	"math"
	"testing"

	"iquitos-ems/internal/balance"
	"iquitos-ems/internal/citylearn"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
	"iquitos-ems/internal/reward"
	"iquitos-ems/internal/synth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInner struct {
	obs, act int
	horizon  int
	t        int
	info     map[string]float64
	last     [][]float64
	shrinkAt int
}

func (f *fakeInner) ObservationNames() [][]string { return [][]string{make([]string, f.obs)} }
func (f *fakeInner) ActionNames() [][]string      { return [][]string{make([]string, f.act)} }

func (f *fakeInner) Reset() [][]float64 {
	f.t = 0
	return [][]float64{make([]float64, f.obs)}
}

func (f *fakeInner) Step(a [][]float64) ([][]float64, []float64, bool, map[string]float64, error) {
	f.last = a
	f.t++
	n := f.obs
	if f.shrinkAt > 0 && f.t == f.shrinkAt {
		n--
	}
	info := make(map[string]float64, len(f.info))
	for k, v := range f.info {
		info[k] = v
	}
	return [][]float64{make([]float64, n)}, []float64{1, 3}, f.t >= f.horizon, info, nil
}

func rewardFn(t *testing.T) *reward.MultiObjective {
	t.Helper()
	w, err := reward.Preset(reward.DefaultPreset)
	require.NoError(t, err)
	r, err := reward.New(w, reward.DefaultParams())
	require.NoError(t, err)
	return r
}

func TestActionValidationAndClipping(t *testing.T) {
	inner := &fakeInner{obs: 4, act: 3, horizon: 10}
	e, err := NewWithHorizon(inner, rewardFn(t), 10)
	require.NoError(t, err)
	_, err = e.Reset()
	require.NoError(t, err)

	_, _, _, _, err = e.Step([]float64{0, 0})
	assert.True(t, fault.Is(err, fault.KindInvalidAction))
	_, _, _, _, err = e.Step([]float64{0, math.NaN(), 0})
	assert.True(t, fault.Is(err, fault.KindInvalidAction))

	_, _, _, _, err = e.Step([]float64{-3, 2, -0.5})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{-1, 1, 0}}, inner.last)

	lo, hi := e.ActionBounds()
	assert.Equal(t, []float64{-1, 0, 0}, lo)
	assert.Equal(t, []float64{1, 1, 1}, hi)
}

func TestMissingMetricsUseDefaultsOncePerEpisode(t *testing.T) {
	inner := &fakeInner{obs: 2, act: 1, horizon: 5, info: map[string]float64{"grid_import": 10}}
	e, err := NewWithHorizon(inner, rewardFn(t), 5)
	require.NoError(t, err)
	_, err = e.Reset()
	require.NoError(t, err)

	_, _, _, info, err := e.Step([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 10.0, info.Metrics.GridImport)
	assert.Equal(t, 0.5, info.Metrics.BESSSOC)
	assert.Equal(t, 100.0, info.Metrics.MallDemand)
	assert.Equal(t, 0, info.Metrics.Hour)
	assert.Equal(t, 2.0, info.Raw["inner_reward"])

	_, _, _, info, err = e.Step([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 1, info.Metrics.Hour)
	assert.Contains(t, e.Warned(), "bess_soc")
	assert.Contains(t, e.Warned(), "hour")
	assert.NotContains(t, e.Warned(), "grid_import")

	_, err = e.Reset()
	require.NoError(t, err)
	assert.Empty(t, e.Warned())
}

func TestObservationShapeMismatch(t *testing.T) {
	inner := &fakeInner{obs: 3, act: 1, horizon: 10, shrinkAt: 2}
	e, err := NewWithHorizon(inner, rewardFn(t), 10)
	require.NoError(t, err)
	_, err = e.Reset()
	require.NoError(t, err)
	_, _, _, _, err = e.Step([]float64{0})
	require.NoError(t, err)
	_, _, _, _, err = e.Step([]float64{0})
	assert.True(t, fault.Is(err, fault.KindObservationShapeMismatch))
}

func TestEarlyInnerDoneIsAnError(t *testing.T) {
	inner := &fakeInner{obs: 1, act: 1, horizon: 3}
	e, err := NewWithHorizon(inner, rewardFn(t), 5)
	require.NoError(t, err)
	_, err = e.Reset()
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, _, done, _, err := e.Step([]float64{0})
		require.NoError(t, err)
		assert.False(t, done)
	}
	_, _, _, _, err = e.Step([]float64{0})
	assert.Error(t, err)
}

func TestFullEpisodeOnDataset(t *testing.T) {
	in := synth.Iquitos()
	res, err := balance.New(balance.DefaultOptions()).Run(in)
	require.NoError(t, err)
	dir := t.TempDir()
	_, err = citylearn.Build(dir, in, res, citylearn.DefaultOptions())
	require.NoError(t, err)
	ds, err := citylearn.LoadDataset(dir)
	require.NoError(t, err)

	e, err := FromDataset(ds, rewardFn(t))
	require.NoError(t, err)
	assert.Equal(t, 394, e.ObservationDim())
	assert.Equal(t, 39, e.ActionDim())

	obs, err := e.Reset()
	require.NoError(t, err)
	require.Len(t, obs, 394)

	act := make([]float64, 39)
	for i := 1; i < 39; i++ {
		act[i] = 1
	}
	var last Info
	steps := 0
	for {
		obs, r, done, info, err := e.Step(act)
		require.NoError(t, err)
		require.Len(t, obs, 394)
		require.False(t, math.IsNaN(r))
		steps++
		if done {
			last = info
			break
		}
		require.Nil(t, info.Episode)
	}
	assert.Equal(t, model.HoursPerYear, steps)
	require.NotNil(t, last.Episode)
	ep := last.Episode
	assert.Equal(t, model.HoursPerYear, ep.Steps)
	assert.InDelta(t, res.Totals.EVDemand, ep.EVDemandKWh, 1e-6)
	assert.InDelta(t, 1, ep.EVSatisfaction(), 1e-9)
	assert.InDelta(t, res.Totals.PV, ep.SolarKWh, 1e-6)
	assert.Empty(t, e.Warned())
}
