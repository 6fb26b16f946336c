package balance

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
	"iquitos-ems/internal/synth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passive() Options {
	o := DefaultOptions()
	o.Mode = ModePassive
	return o
}

func noEV() model.EVDemand {
	return synth.EVUniform(synth.DefaultFleet(), 9, 22, 0)
}

func TestAllGridScenario(t *testing.T) {
	in := synth.Build(synth.Constant(0), noEV(), synth.Constant(100), synth.NameplateBESS)

	res, err := New(passive()).Run(in)
	require.NoError(t, err)
	require.NoError(t, Verify(res, in.BESS))

	tot := res.Totals
	assert.InDelta(t, 876000, tot.GridToMall, 1e-6)
	assert.InDelta(t, 396039.6, tot.GridKg, 1e-3)
	assert.Equal(t, 0.0, tot.PVToGrid)
	assert.Equal(t, 0.0, tot.BESSCharge)
}

func TestMiddayPVScenario(t *testing.T) {
	in := synth.Build(synth.Block(8, 17, 200), noEV(), synth.Constant(100), synth.NameplateBESS)

	res, err := New(passive()).Run(in)
	require.NoError(t, err)
	require.NoError(t, Verify(res, in.BESS))

	tot := res.Totals
	assert.InDelta(t, 365000, tot.PVToMall, 1e-6)
	assert.InDelta(t, 365000, tot.PVToGrid, 1e-6)
	assert.InDelta(t, 511000, tot.GridToMall, 1e-6)
	assert.InDelta(t, 365000*0.4521, tot.AvoidedIndirectKg, 1e-6)
}

func runIquitos(t *testing.T) (*model.Inputs, *Result) {
	t.Helper()
	in := synth.Iquitos()
	res, err := New(DefaultOptions()).Run(in)
	require.NoError(t, err)
	return in, res
}

func TestLedgerInvariants(t *testing.T) {
	in, res := runIquitos(t)
	require.NoError(t, Verify(res, in.BESS))
	require.Len(t, res.Ledger, model.HoursPerYear)

	co2 := 0.0
	grid := 0.0
	for _, r := range res.Ledger {
		assert.InDelta(t, r.PV, r.PVToEV+r.PVToBESS+r.PVToMall+r.PVToGrid, Epsilon)
		assert.InDelta(t, r.EVDemand, r.PVToEV+r.BESSToEV+r.GridToEV, Epsilon)
		assert.InDelta(t, r.MallDemand, r.PVToMall+r.BESSToMall+r.GridToMall, Epsilon)
		assert.GreaterOrEqual(t, r.SOCEnd, in.BESS.MinSOC-Epsilon)
		assert.LessOrEqual(t, r.SOCEnd, 1+Epsilon)
		assert.False(t, r.BESSCharge > Epsilon && r.BESSDischarge > Epsilon, "hour %d", r.Hour)
		assert.LessOrEqual(t, r.BESSCharge, in.BESS.PowerKW+Epsilon)
		assert.LessOrEqual(t, r.BESSDischarge, in.BESS.PowerKW+Epsilon)
		co2 += r.GridKg
		grid += r.GridToEV + r.GridToMall
	}
	assert.InDelta(t, 0.4521*grid, co2, 1e-6*co2)
	assert.InDelta(t, 1, res.Totals.ClosureRatio, ClosureTolerance)
	assert.Greater(t, res.Totals.BESSCharge, 0.0)
	assert.Greater(t, res.Totals.BESSDischarge, 0.0)
}

func TestBoundaryBehaviours(t *testing.T) {
	in, res := runIquitos(t)
	for _, r := range res.Ledger {
		switch {
		case r.HourOfDay == model.TerminalHour:
			assert.LessOrEqual(t, r.SOCEnd-in.BESS.MinSOC, Epsilon, "end of day %d", r.DayOfYear)
		case r.HourOfDay < 9 || r.HourOfDay > 22:
			assert.Zero(t, r.EVDemand)
			assert.Zero(t, r.PVToEV+r.BESSToEV+r.GridToEV)
		}
		if r.PV == 0 {
			assert.Zero(t, r.PVToEV+r.PVToMall+r.PVToBESS+r.PVToGrid)
		}
		if r.MallDemand <= 1900 {
			// Only the end-of-day plan may discharge into a mall below threshold.
			assert.LessOrEqual(t, r.BESSToMall, r.TerminalKWh+Epsilon, "hour %d", r.Hour)
		}
	}
}

func TestPrePeakReserve(t *testing.T) {
	_, res := runIquitos(t)
	for _, r := range res.Ledger {
		if r.HourOfDay == 16 || r.HourOfDay == 17 {
			if r.SOCStart >= 0.70 {
				assert.GreaterOrEqual(t, r.SOCEnd, 0.70-Epsilon, "hour %d", r.Hour)
			}
		}
	}
}

func TestPassiveBatteryNeverMoves(t *testing.T) {
	in := synth.Iquitos()
	res, err := New(passive()).Run(in)
	require.NoError(t, err)
	assert.Zero(t, res.Totals.BESSCharge)
	assert.Zero(t, res.Totals.BESSDischarge)
	assert.Equal(t, in.BESS.InitialSOC, res.FinalSOC)
}

func TestActiveReducesGridCarbon(t *testing.T) {
	in := synth.Iquitos()
	act, err := New(DefaultOptions()).Run(in)
	require.NoError(t, err)
	pas, err := New(passive()).Run(in)
	require.NoError(t, err)
	assert.Less(t, act.Totals.GridKg, pas.Totals.GridKg)
	assert.True(t, act.Totals.GridCost.LessThan(pas.Totals.GridCost))
}

func TestTerminalPlanDischargesBelowThreshold(t *testing.T) {
	// The mall never reaches the peak threshold, so only the end-of-day
	// plan can empty the battery charged at midday.
	in := synth.Build(synth.Block(8, 15, 1000), noEV(), synth.Constant(500), synth.NameplateBESS)
	res, err := New(DefaultOptions()).Run(in)
	require.NoError(t, err)
	require.NoError(t, Verify(res, in.BESS))

	forced := 0.0
	for _, r := range res.Ledger {
		require.Less(t, r.MallDemand, DefaultOptions().PeakThresholdKW)
		assert.LessOrEqual(t, r.BESSToMall, r.TerminalKWh+Epsilon, "hour %d", r.Hour)
		if r.HourOfDay == model.TerminalHour {
			assert.InDelta(t, in.BESS.MinSOC, r.SOCEnd, Epsilon, "day %d", r.DayOfYear)
		}
		forced += r.TerminalKWh
	}
	assert.Greater(t, forced, 0.0)
	assert.Greater(t, res.Totals.BESSDischarge, 0.0)
}

func TestInfeasibleTerminalHour(t *testing.T) {
	// No load at all in the evening: a battery charged at midday cannot be
	// emptied by 22:00.
	mall := synth.Constant(1)
	pv := synth.Block(8, 15, 1000)
	in := synth.Build(pv, noEV(), mall, synth.NameplateBESS)

	_, err := New(DefaultOptions()).Run(in)
	require.Error(t, err)
	var di *fault.DispatchInfeasible
	require.ErrorAs(t, err, &di)
	assert.Equal(t, fault.ExitInfeasible, fault.ExitCode(err))
	assert.Equal(t, model.TerminalHour, di.Hour%24)
}

func TestVerifyCatchesDrift(t *testing.T) {
	in, res := runIquitos(t)
	res.Ledger[100].PVToGrid += 0.5
	err := Verify(res, in.BESS)
	require.Error(t, err)
	var di *fault.DispatchInfeasible
	require.ErrorAs(t, err, &di)
	assert.Equal(t, 100, di.Hour)
}

func TestWriteLedgerCSVAndSummary(t *testing.T) {
	_, res := runIquitos(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.csv")
	require.NoError(t, WriteLedgerCSV(path, res.Ledger))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, model.HoursPerYear+1)
	assert.True(t, strings.HasPrefix(lines[0], "hour,hour_of_day,day_of_year,is_peak,pv_generation"))

	sp := filepath.Join(dir, "summary.json")
	require.NoError(t, WriteSummary(sp, NewSummary(res, DefaultOptions())))
	back, err := ReadSummary(sp)
	require.NoError(t, err)
	assert.Equal(t, model.HoursPerYear, back.Hours)
	assert.InDelta(t, res.Totals.GridKg, back.Totals.GridKg, 1e-6)
	assert.True(t, res.Totals.GridCost.Equal(back.Totals.GridCost))
}

func TestCarbon(t *testing.T) {
	c := Carbon(Flows{GridToEV: 10, GridToMall: 90, PVToGrid: 20, PVToEV: 5, BESSToEV: 5}, DefaultFactors)
	assert.InDelta(t, 45.21, c.GridKg, 1e-9)
	assert.InDelta(t, 9.042, c.AvoidedIndirectKg, 1e-9)
	assert.InDelta(t, 21.46, c.AvoidedDirectKg, 1e-9)
	assert.False(t, math.IsNaN(c.GridKg))
}
