// Package balance is the OE2 hour-by-hour dispatch model: PV split, battery
// charge/discharge with reserve and end-of-day rules, peak shaving, export
// and the per-hour CO₂ ledger.
package balance

import (
	"fmt"
	"math"

	"iquitos-ems/internal/config"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
)

// Epsilon is the comparison tolerance on energies (kWh) and SOC fractions.
const Epsilon = 1e-6

// DispatchMode selects whether the battery participates.
type DispatchMode string

const (
	ModeActive  DispatchMode = "active"
	ModePassive DispatchMode = "passive"
)

// Options are the dispatch policy knobs.
type Options struct {
	Mode             DispatchMode
	PeakThresholdKW  float64
	SOCTargetPrePeak float64 // floor during [PrePeakStart, PeakStart)
	SOCTargetPeak    float64 // floor during [PeakStart, TerminalHour)
	PrePeakStart     int
	PeakStart        int
	TerminalHour     int // soc must reach soc_min by the end of this hour
	Factors          Factors
}

// DefaultOptions mirrors the reference site policy.
func DefaultOptions() Options {
	return Options{
		Mode:             ModeActive,
		PeakThresholdKW:  1900,
		SOCTargetPrePeak: 0.70,
		SOCTargetPeak:    0.40,
		PrePeakStart:     model.PrePeakStartHour,
		PeakStart:        model.DefaultPeakStart,
		TerminalHour:     model.TerminalHour,
		Factors:          DefaultFactors,
	}
}

// OptionsFromConfig reads the dispatch policy from oe2.bess and oe3.grid.
func OptionsFromConfig(cfg *config.Config) Options {
	o := DefaultOptions()
	b := cfg.OE2.BESS
	o.Mode = DispatchMode(b.DispatchMode)
	o.PeakThresholdKW = b.PeakThresholdKW
	o.SOCTargetPrePeak = b.SOCTargetPrePeak
	o.SOCTargetPeak = b.SOCTargetPeak
	if w := cfg.OE2.EVFleet.PeakWindow; len(w) == 2 {
		o.PeakStart = w[0]
		o.TerminalHour = w[1] - 1
	}
	o.Factors = Factors{Grid: cfg.OE3.Grid.CarbonIntensity, EVCombustion: cfg.OE3.Grid.EVCombustion}
	return o
}

// Engine runs the hourly dispatch for one set of options. It holds no state
// between runs.
type Engine struct {
	opts Options
}

// New creates an engine with the given dispatch options.
func New(opts Options) *Engine { return &Engine{opts: opts} }

// Options returns the options the engine was built with.
func (e *Engine) Options() Options { return e.opts }

// Run executes the dispatch over the full year.
func (e *Engine) Run(in *model.Inputs) (*Result, error) {
	if in == nil {
		return nil, fmt.Errorf("inputs are nil")
	}
	if len(in.PV) != model.HoursPerYear || len(in.EV.KWh) != model.HoursPerYear || len(in.Mall.KWh) != model.HoursPerYear {
		return nil, fault.InputLength("inputs", min(len(in.PV), len(in.EV.KWh), len(in.Mall.KWh)), model.HoursPerYear)
	}
	bess, err := model.NewBESS(in.BESS)
	if err != nil {
		return nil, fault.Config("oe2.bess", "%v", err)
	}

	after := e.absorbAfter(in)
	ledger := make([]Row, 0, model.HoursPerYear)
	for t := 0; t < model.HoursPerYear; t++ {
		row, err := e.Step(t, Hour{
			PV:          in.PV[t],
			EV:          in.EV.Total(t),
			Mall:        in.Mall.KWh[t],
			Tariff:      in.Mall.Tariff[t],
			Peak:        in.Mall.Peak[t],
			AbsorbAfter: after[t],
		}, bess)
		if err != nil {
			return nil, err
		}
		ledger = append(ledger, row)
	}

	return &Result{
		Ledger:   ledger,
		Totals:   Summarize(ledger, in.BESS),
		FinalSOC: bess.SOC,
	}, nil
}

// Hour is the exogenous data for one dispatch step.
type Hour struct {
	PV     float64
	EV     float64
	Mall   float64
	Tariff float64
	Peak   bool
	// AbsorbAfter is the load the battery could still serve between the next
	// hour and the terminal hour, each hour capped at the power limit.
	AbsorbAfter float64
}

// absorbAfter precomputes, for every hour of the terminal window, how much
// discharge the remaining hours of that window can take. The residual load
// after direct PV does not depend on the battery, so this is exact.
func (e *Engine) absorbAfter(in *model.Inputs) []float64 {
	out := make([]float64, model.HoursPerYear)
	if e.opts.Mode == ModePassive {
		return out
	}
	power := in.BESS.PowerKW
	for day := 0; day < model.HoursPerYear/24; day++ {
		acc := 0.0
		for hd := e.opts.TerminalHour; hd >= e.opts.PeakStart; hd-- {
			t := day*24 + hd
			out[t] = acc
			ev := in.EV.Total(t)
			pvEV := math.Min(in.PV[t], ev)
			pvMall := math.Min(in.PV[t]-pvEV, in.Mall.KWh[t])
			acc += math.Min(power, nonNeg(ev-pvEV)+nonNeg(in.Mall.KWh[t]-pvMall))
		}
	}
	return out
}

// Step dispatches one hour and advances the battery in place.
func (e *Engine) Step(t int, h Hour, bess *model.BESS) (Row, error) {
	pv, ev, mall := h.PV, h.EV, h.Mall
	hi := model.HourIndex(t)
	hd := hi.HourOfDay()
	active := e.opts.Mode != ModePassive

	var f Flows
	// 1–2: PV serves loads directly.
	f.PVToEV = math.Min(pv, ev)
	f.PVToMall = math.Min(pv-f.PVToEV, mall)
	rem := nonNeg(pv - f.PVToEV - f.PVToMall)

	// 3–4: surplus charges the battery, the rest is exported or curtailed.
	if active {
		f.PVToBESS = math.Min(rem, bess.ChargeHeadroomKWh())
	}
	f.PVToGrid = nonNeg(rem - f.PVToBESS)

	evRes := nonNeg(ev - f.PVToEV)
	mallRes := nonNeg(mall - f.PVToMall)

	// 5–6: battery serves the EV residual, then shaves the mall peak.
	forced := 0.0
	if active && f.PVToBESS <= Epsilon {
		avail := bess.DischargeAvailableKWh(e.floor(hd, bess.Params.MinSOC))
		f.BESSToEV = math.Min(evRes, avail)
		if mallRes > Epsilon && mall > e.opts.PeakThresholdKW {
			f.BESSToMall = math.Min(math.Min(mall-e.opts.PeakThresholdKW, mallRes), nonNeg(avail-f.BESSToEV))
		}

		// The end-of-day plan overrides the reserve floors and the threshold.
		if need := e.terminalNeed(hd, h.AbsorbAfter, bess); need > f.BESSToEV+f.BESSToMall+Epsilon {
			full := bess.DischargeAvailableKWh(bess.Params.MinSOC)
			before := f.BESSToEV + f.BESSToMall
			extra := math.Min(need, full) - before
			add := nonNeg(math.Min(extra, evRes-f.BESSToEV))
			f.BESSToEV += add
			extra -= add
			f.BESSToMall += nonNeg(math.Min(extra, mallRes-f.BESSToMall))
			forced = f.BESSToEV + f.BESSToMall - before
		}
	}

	res, err := bess.Apply(f.PVToBESS, f.BESSToEV+f.BESSToMall, Epsilon)
	if err != nil {
		return Row{}, &fault.DispatchInfeasible{Hour: t, SOC: bess.SOC, EVResidual: evRes, MallResidual: mallRes, Reason: err.Error()}
	}
	if res.ClipKWh > Epsilon {
		return Row{}, &fault.DispatchInfeasible{
			Hour: t, SOC: res.SOCEnd, EVResidual: evRes, MallResidual: mallRes,
			Reason: fmt.Sprintf("soc clip of %.6f kWh", res.ClipKWh),
		}
	}

	// 7: grid covers whatever is left.
	f.GridToEV = nonNeg(evRes - f.BESSToEV)
	f.GridToMall = nonNeg(mallRes - f.BESSToMall)

	if active && hd == e.opts.TerminalHour && bess.SOC-bess.Params.MinSOC > Epsilon {
		return Row{}, &fault.DispatchInfeasible{
			Hour: t, SOC: bess.SOC, EVResidual: f.GridToEV, MallResidual: f.GridToMall,
			Reason: fmt.Sprintf("end-of-day soc %.6f above soc_min %.6f", bess.SOC, bess.Params.MinSOC),
		}
	}

	co2 := Carbon(f, e.opts.Factors)
	return Row{
		Hour:          t,
		HourOfDay:     hd,
		DayOfYear:     hi.DayOfYear(),
		Peak:          h.Peak,
		PV:            pv,
		EVDemand:      ev,
		MallDemand:    mall,
		Flows:         f,
		BESSCharge:    res.ChargeKWh,
		BESSDischarge: res.DischargeKWh,
		SOCStart:      res.SOCStart,
		SOCEnd:        res.SOCEnd,
		Mode:          model.ModeFromFlows(res.ChargeKWh, res.DischargeKWh),
		CO2:           co2,
		TerminalKWh:   forced,
		Tariff:        h.Tariff,
		GridCost:      f.GridImport() * h.Tariff,
	}, nil
}

// floor is the reserve SOC below which the battery may not discharge for
// ordinary service in this hour.
func (e *Engine) floor(hd int, socMin float64) float64 {
	switch {
	case hd >= e.opts.PrePeakStart && hd < e.opts.PeakStart:
		return math.Max(socMin, e.opts.SOCTargetPrePeak)
	case hd >= e.opts.PeakStart && hd < e.opts.TerminalHour:
		return math.Max(socMin, e.opts.SOCTargetPeak)
	default:
		return socMin
	}
}

// terminalNeed is the output-side energy that must leave the battery this
// hour so that the remaining hours of the window can still bring it to
// soc_min by the end of the terminal hour.
func (e *Engine) terminalNeed(hd int, absorbAfter float64, bess *model.BESS) float64 {
	if hd < e.opts.PeakStart || hd > e.opts.TerminalHour {
		return 0
	}
	p := bess.Params
	stored := (bess.SOC - p.MinSOC) * p.CapacityKWh * p.LegEfficiency()
	return nonNeg(stored - absorbAfter)
}

func nonNeg(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}
