package balance

import (
	"fmt"
	"math"

	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
)

// LedgerTolerance is the per-hour closure tolerance in kWh.
const LedgerTolerance = 1e-3

// ClosureTolerance is the relative tolerance of the annual storage closure.
const ClosureTolerance = 0.01

// Verify re-checks every ledger invariant. Drift is reported as
// DispatchInfeasible with the offending hour; nothing is repaired.
func Verify(res *Result, bess model.BESSParams) error {
	for _, r := range res.Ledger {
		if err := verifyRow(r, bess); err != nil {
			return err
		}
	}
	if r := res.Totals.ClosureRatio; res.Totals.BESSCharge > 0 && math.Abs(r-1) > ClosureTolerance {
		return &fault.DispatchInfeasible{
			Hour:   len(res.Ledger) - 1,
			SOC:    res.FinalSOC,
			Reason: fmt.Sprintf("annual storage closure ratio %.4f outside ±%.0f%%", r, ClosureTolerance*100),
		}
	}
	return nil
}

func verifyRow(r Row, bess model.BESSParams) error {
	bad := func(format string, args ...any) error {
		return &fault.DispatchInfeasible{
			Hour: r.Hour, SOC: r.SOCEnd, EVResidual: r.GridToEV, MallResidual: r.GridToMall,
			Reason: fmt.Sprintf(format, args...),
		}
	}
	flows := []float64{r.PVToEV, r.PVToBESS, r.PVToMall, r.PVToGrid, r.BESSToEV, r.BESSToMall, r.GridToEV, r.GridToMall, r.GridToBESS}
	for _, v := range flows {
		if v < -LedgerTolerance || math.IsNaN(v) {
			return bad("negative or NaN flow %g", v)
		}
	}
	if d := r.PVToEV + r.PVToBESS + r.PVToMall + r.PVToGrid - r.PV; math.Abs(d) > LedgerTolerance {
		return bad("pv split off by %.6f kWh", d)
	}
	if d := r.PVToEV + r.BESSToEV + r.GridToEV - r.EVDemand; math.Abs(d) > LedgerTolerance {
		return bad("ev closure off by %.6f kWh", d)
	}
	if d := r.PVToMall + r.BESSToMall + r.GridToMall - r.MallDemand; math.Abs(d) > LedgerTolerance {
		return bad("mall closure off by %.6f kWh", d)
	}
	if r.BESSToEV+r.BESSToMall > r.BESSDischarge+LedgerTolerance {
		return bad("battery delivers %.6f kWh but discharged %.6f", r.BESSToEV+r.BESSToMall, r.BESSDischarge)
	}
	if r.BESSCharge > LedgerTolerance && r.BESSDischarge > LedgerTolerance {
		return bad("simultaneous charge and discharge")
	}
	if r.BESSCharge > bess.PowerKW+LedgerTolerance || r.BESSDischarge > bess.PowerKW+LedgerTolerance {
		return bad("battery flow above %.1f kW", bess.PowerKW)
	}
	if r.SOCEnd < bess.MinSOC-Epsilon || r.SOCEnd > bess.MaxSOC+Epsilon {
		return bad("soc %.6f outside [%.3f, %.3f]", r.SOCEnd, bess.MinSOC, bess.MaxSOC)
	}
	return nil
}
