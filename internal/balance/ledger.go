package balance

import (
	"iquitos-ems/internal/model"

	"github.com/shopspring/decimal"
)

// Flows is the per-hour energy ledger in kWh. Every field is non-negative.
type Flows struct {
	PVToEV     float64 `json:"pv_to_ev"`
	PVToBESS   float64 `json:"pv_to_bess"`
	PVToMall   float64 `json:"pv_to_mall"`
	PVToGrid   float64 `json:"pv_to_grid"`
	BESSToEV   float64 `json:"bess_to_ev"`
	BESSToMall float64 `json:"bess_to_mall"`
	GridToEV   float64 `json:"grid_to_ev"`
	GridToMall float64 `json:"grid_to_mall"`
	// GridToBESS is only non-zero when an agent charges the battery from the
	// grid inside the environment; the balance engine never does.
	GridToBESS float64 `json:"grid_to_bess"`
}

// GridImport is the energy drawn from the grid.
func (f Flows) GridImport() float64 { return f.GridToEV + f.GridToMall + f.GridToBESS }

// PVUsed is the PV energy consumed on site (direct or stored).
func (f Flows) PVUsed() float64 { return f.PVToEV + f.PVToMall + f.PVToBESS }

// EVRenewable is EV energy served by PV or the battery.
func (f Flows) EVRenewable() float64 { return f.PVToEV + f.BESSToEV }

// Factors are the CO₂ factors in kg/kWh.
type Factors struct {
	Grid         float64
	EVCombustion float64
}

// DefaultFactors is the Iquitos thermal grid factor and the combustion
// equivalent for EV energy.
var DefaultFactors = Factors{Grid: 0.4521, EVCombustion: 2.146}

// CO2 is the per-hour carbon ledger in kg.
type CO2 struct {
	GridKg            float64 `json:"co2_grid_kg"`
	AvoidedIndirectKg float64 `json:"co2_avoided_indirect_kg"`
	AvoidedDirectKg   float64 `json:"co2_avoided_direct_kg"`
}

// Carbon derives the CO₂ ledger from a set of flows.
func Carbon(f Flows, k Factors) CO2 {
	return CO2{
		GridKg:            (f.GridToEV + f.GridToMall + f.GridToBESS) * k.Grid,
		AvoidedIndirectKg: f.PVToGrid * k.Grid,
		AvoidedDirectKg:   f.EVRenewable() * k.EVCombustion,
	}
}

// Row is one row of per-hour output.
// This is the primary artifact for "what happened" in a balance run.
type Row struct {
	Hour      int
	HourOfDay int
	DayOfYear int
	Peak      bool

	PV         float64
	EVDemand   float64
	MallDemand float64

	Flows

	BESSCharge    float64 // input-side kWh
	BESSDischarge float64 // output-side kWh
	SOCStart      float64
	SOCEnd        float64
	Mode          model.Mode
	// TerminalKWh is the discharge forced by the end-of-day plan beyond what
	// the reserve floors and the peak threshold would allow.
	TerminalKWh float64

	CO2

	Tariff   float64
	GridCost float64
}

// Totals are the annual sums of a ledger.
type Totals struct {
	PV         float64 `json:"pv_generation_kwh"`
	EVDemand   float64 `json:"ev_demand_kwh"`
	MallDemand float64 `json:"mall_demand_kwh"`

	Flows

	BESSCharge    float64 `json:"bess_charge_kwh"`
	BESSDischarge float64 `json:"bess_discharge_kwh"`
	GridImport    float64 `json:"grid_import_kwh"`
	GridExport    float64 `json:"grid_export_kwh"`

	CO2

	// ClosureRatio is Σcharge·√η / (Σdischarge/√η + ΔE); 1 when the battery is idle.
	ClosureRatio float64         `json:"closure_ratio"`
	GridCost     decimal.Decimal `json:"grid_cost"`
}

type Result struct {
	Ledger   []Row
	Totals   Totals
	FinalSOC float64
}

// SOCSeries returns the end-of-hour state of charge per hour.
func (r *Result) SOCSeries() []float64 {
	out := make([]float64, len(r.Ledger))
	for i, row := range r.Ledger {
		out[i] = row.SOCEnd
	}
	return out
}

// Summarize computes annual totals. Costs are accumulated in decimal and
// rounded to cents.
func Summarize(rows []Row, bess model.BESSParams) Totals {
	var t Totals
	cost := decimal.Zero
	for _, r := range rows {
		t.PV += r.PV
		t.EVDemand += r.EVDemand
		t.MallDemand += r.MallDemand
		t.PVToEV += r.PVToEV
		t.PVToBESS += r.PVToBESS
		t.PVToMall += r.PVToMall
		t.PVToGrid += r.PVToGrid
		t.BESSToEV += r.BESSToEV
		t.BESSToMall += r.BESSToMall
		t.GridToEV += r.GridToEV
		t.GridToMall += r.GridToMall
		t.GridToBESS += r.GridToBESS
		t.BESSCharge += r.BESSCharge
		t.BESSDischarge += r.BESSDischarge
		t.GridKg += r.GridKg
		t.AvoidedIndirectKg += r.AvoidedIndirectKg
		t.AvoidedDirectKg += r.AvoidedDirectKg
		cost = cost.Add(decimal.NewFromFloat(r.GridCost))
	}
	t.GridImport = t.GridToEV + t.GridToMall + t.GridToBESS
	t.GridExport = t.PVToGrid
	t.GridCost = cost.Round(2)
	t.ClosureRatio = closureRatio(rows, bess)
	return t
}

func closureRatio(rows []Row, bess model.BESSParams) float64 {
	if len(rows) == 0 || bess.CapacityKWh == 0 || bess.Efficiency == 0 {
		return 1
	}
	leg := bess.LegEfficiency()
	var in, out float64
	for _, r := range rows {
		in += r.BESSCharge * leg
		out += r.BESSDischarge / leg
	}
	delta := (rows[len(rows)-1].SOCEnd - rows[0].SOCStart) * bess.CapacityKWh
	den := out + delta
	if in == 0 && den == 0 {
		return 1
	}
	if den == 0 {
		return 0
	}
	return in / den
}
