package env

import "iquitos-ems/internal/reward"

// EpisodeTotals are the physical sums of one episode.
type EpisodeTotals struct {
	Steps              int     `json:"steps"`
	CarbonKg           float64 `json:"carbon_kg"`
	GridImportKWh      float64 `json:"grid_import_kwh"`
	GridExportKWh      float64 `json:"grid_export_kwh"`
	SolarKWh           float64 `json:"solar_kwh"`
	EVChargingKWh      float64 `json:"ev_charging_kwh"`
	EVDemandKWh        float64 `json:"ev_demand_kwh"`
	CO2AvoidedIndirect float64 `json:"co2_avoided_indirect_kg"`
	CO2AvoidedDirect   float64 `json:"co2_avoided_direct_kg"`
	Cost               float64 `json:"cost"`
	RewardSum          float64 `json:"reward_sum"`
}

// EVSatisfaction is delivered over requested EV energy, 1 with no demand.
func (t EpisodeTotals) EVSatisfaction() float64 {
	if t.EVDemandKWh <= 0 {
		return 1
	}
	return t.EVChargingKWh / t.EVDemandKWh
}

// EpisodeAccumulator sums per-step quantities until Reset.
type EpisodeAccumulator struct {
	t EpisodeTotals
}

func (a *EpisodeAccumulator) Reset() { a.t = EpisodeTotals{} }

func (a *EpisodeAccumulator) Add(m reward.Metrics, c reward.Components) {
	a.t.Steps++
	a.t.CarbonKg += c.CO2GridKg
	a.t.GridImportKWh += m.GridImport
	a.t.GridExportKWh += m.GridExport
	a.t.SolarKWh += m.Solar
	a.t.EVChargingKWh += m.EVCharging
	a.t.EVDemandKWh += m.EVDemand
	a.t.CO2AvoidedIndirect += c.CO2AvoidedIndirect
	a.t.CO2AvoidedDirect += c.CO2AvoidedDirect
	a.t.Cost += c.CostCurrency
	a.t.RewardSum += c.Total
}

func (a *EpisodeAccumulator) Totals() EpisodeTotals { return a.t }
