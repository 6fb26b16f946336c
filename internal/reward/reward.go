// Package reward implements the multi-objective step reward: CO₂ net of
// direct and indirect avoidance, tariff cost, PV self-consumption, EV
// satisfaction and grid peak power, plus soft battery-schedule penalties.
package reward

import (
	"math"

	"iquitos-ems/internal/balance"
	"iquitos-ems/internal/config"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
)

// Params are the scaling constants of the components.
type Params struct {
	CO2ScaleKg        float64
	PeakCO2Multiplier float64
	CostScale         float64
	SolarGridPenalty  float64
	GridLimitPeakKW   float64
	GridLimitOffKW    float64
	EVTargetSOC       float64
	Factors           balance.Factors
	Tariff            model.Tariff
	PeakStart         int
	PeakEnd           int // exclusive

	// Soft penalties on the battery schedule, outside the weighted sum.
	SOCMin          float64
	EndOfDayPenalty float64
	EndOfDayHour    int
	PrePeakPenalty  float64
	PrePeakTarget   float64
	PrePeakStart    int
}

func DefaultParams() Params {
	return Params{
		CO2ScaleKg:        45,
		PeakCO2Multiplier: 4,
		CostScale:         100,
		SolarGridPenalty:  0.5,
		GridLimitPeakKW:   200,
		GridLimitOffKW:    150,
		EVTargetSOC:       0.85,
		Factors:           balance.DefaultFactors,
		Tariff:            model.DefaultTariff,
		PeakStart:         model.DefaultPeakStart,
		PeakEnd:           model.DefaultPeakEnd,
		SOCMin:            0.2,
		EndOfDayPenalty:   0.05,
		EndOfDayHour:      model.TerminalHour,
		PrePeakTarget:     0.70,
		PrePeakStart:      model.PrePeakStartHour,
	}
}

// ParamsFromConfig reads oe3.reward, oe3.grid, the tariff and the peak
// window. socMin is the resolved battery minimum.
func ParamsFromConfig(cfg *config.Config, socMin float64) Params {
	p := DefaultParams()
	rc := cfg.OE3.Reward
	p.CO2ScaleKg = rc.CO2ScaleKg
	p.PeakCO2Multiplier = rc.PeakCO2Multiplier
	p.CostScale = rc.CostScale
	p.SolarGridPenalty = rc.SolarGridPenalty
	p.GridLimitPeakKW = rc.GridLimitPeakKW
	p.GridLimitOffKW = rc.GridLimitOffKW
	p.EVTargetSOC = rc.EVTargetSOC
	p.Factors = balance.Factors{Grid: cfg.OE3.Grid.CarbonIntensity, EVCombustion: cfg.OE3.Grid.EVCombustion}
	p.Tariff = cfg.Tariff()
	if w := cfg.OE2.EVFleet.PeakWindow; len(w) == 2 {
		p.PeakStart, p.PeakEnd = w[0], w[1]
		p.EndOfDayHour = w[1] - 1
	}
	p.PrePeakTarget = cfg.OE2.BESS.SOCTargetPrePeak
	p.SOCMin = socMin
	if v := rc.Penalties.EndOfDay; v != nil {
		p.EndOfDayPenalty = *v
	}
	if v := rc.Penalties.PrePeak; v != nil {
		p.PrePeakPenalty = *v
	}
	return p
}

// Metrics are the physical quantities of one step.
type Metrics struct {
	GridImport float64
	GridExport float64
	Solar      float64
	EVCharging float64
	EVSOCAvg   float64
	BESSSOC    float64
	Hour       int
	EVDemand   float64
	MallDemand float64
	PVToGrid   float64
	PVToEV     float64
	BESSToEV   float64
}

// Components carries the five bounded terms, the penalty and the raw
// quantities they were computed from.
type Components struct {
	CO2     float64 `json:"r_co2"`
	Cost    float64 `json:"r_cost"`
	Solar   float64 `json:"r_solar"`
	EV      float64 `json:"r_ev"`
	Grid    float64 `json:"r_grid"`
	Penalty float64 `json:"penalty"`
	Total   float64 `json:"reward_total"`

	GridImport         float64 `json:"grid_import_kwh"`
	GridExport         float64 `json:"grid_export_kwh"`
	CO2GridKg          float64 `json:"co2_grid_kg"`
	CO2AvoidedIndirect float64 `json:"co2_avoided_indirect_kg"`
	CO2AvoidedDirect   float64 `json:"co2_avoided_direct_kg"`
	CO2NetKg           float64 `json:"co2_net_kg"`
	CostCurrency       float64 `json:"cost"`
	SolarKWh           float64 `json:"solar_kwh"`
	SelfConsumption    float64 `json:"self_consumption"`
	EVCharging         float64 `json:"ev_charging_kwh"`
	EVSOCAvg           float64 `json:"ev_soc_avg"`
	BESSSOC            float64 `json:"bess_soc"`
	Peak               bool    `json:"is_peak"`
}

// Terms returns the five components in weight order.
func (c Components) Terms() [5]float64 {
	return [5]float64{c.CO2, c.Cost, c.Solar, c.EV, c.Grid}
}

// Map flattens the components for logging and per-step callbacks.
func (c Components) Map() map[string]float64 {
	peak := 0.0
	if c.Peak {
		peak = 1
	}
	return map[string]float64{
		"r_co2":                   c.CO2,
		"r_cost":                  c.Cost,
		"r_solar":                 c.Solar,
		"r_ev":                    c.EV,
		"r_grid":                  c.Grid,
		"penalty":                 c.Penalty,
		"reward_total":            c.Total,
		"grid_import_kwh":         c.GridImport,
		"grid_export_kwh":         c.GridExport,
		"co2_grid_kg":             c.CO2GridKg,
		"co2_avoided_indirect_kg": c.CO2AvoidedIndirect,
		"co2_avoided_direct_kg":   c.CO2AvoidedDirect,
		"co2_net_kg":              c.CO2NetKg,
		"cost":                    c.CostCurrency,
		"solar_kwh":               c.SolarKWh,
		"self_consumption":        c.SelfConsumption,
		"ev_charging_kwh":         c.EVCharging,
		"ev_soc_avg":              c.EVSOCAvg,
		"bess_soc":                c.BESSSOC,
		"is_peak":                 peak,
	}
}

// MultiObjective is a value object; it holds no history.
type MultiObjective struct {
	w Weights
	p Params
}

func New(w Weights, p Params) (*MultiObjective, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if p.CO2ScaleKg <= 0 || p.CostScale <= 0 || p.GridLimitPeakKW <= 0 || p.GridLimitOffKW <= 0 {
		return nil, fault.Config("oe3.reward", "scales and grid limits must be > 0")
	}
	if p.EVTargetSOC <= 0.5 || p.EVTargetSOC >= 1 {
		return nil, fault.Config("oe3.reward.ev_target_soc", "must be in (0.5, 1)")
	}
	return &MultiObjective{w: w, p: p}, nil
}

func (r *MultiObjective) Weights() Weights { return r.w }
func (r *MultiObjective) Params() Params   { return r.p }

func (r *MultiObjective) isPeak(hour int) bool {
	return hour >= r.p.PeakStart && hour < r.p.PeakEnd
}

// Compute returns reward_total and its components for one step.
func (r *MultiObjective) Compute(m Metrics) (float64, Components) {
	p := r.p
	peak := r.isPeak(m.Hour)
	c := Components{
		GridImport: m.GridImport,
		GridExport: m.GridExport,
		SolarKWh:   m.Solar,
		EVCharging: m.EVCharging,
		EVSOCAvg:   m.EVSOCAvg,
		BESSSOC:    m.BESSSOC,
		Peak:       peak,
	}

	c.CO2GridKg = m.GridImport * p.Factors.Grid
	c.CO2AvoidedIndirect = m.PVToGrid * p.Factors.Grid
	c.CO2AvoidedDirect = (m.PVToEV + m.BESSToEV) * p.Factors.EVCombustion
	c.CO2NetKg = c.CO2GridKg - c.CO2AvoidedIndirect - c.CO2AvoidedDirect
	k := 1.0
	if peak {
		k = p.PeakCO2Multiplier
	}
	c.CO2 = -math.Tanh(k * c.CO2NetKg / p.CO2ScaleKg)

	c.CostCurrency = m.GridImport * p.Tariff.At(peak)
	c.Cost = -math.Tanh(c.CostCurrency / p.CostScale)

	if m.Solar > 0 {
		c.SelfConsumption = clip((m.Solar-m.PVToGrid)/m.Solar, 0, 1)
		c.Solar = clip(2*c.SelfConsumption-1-p.SolarGridPenalty*math.Min(1, m.GridImport/m.Solar), -1, 1)
	}

	if m.EVDemand > 0 {
		c.EV = r.evSatisfaction(m.EVSOCAvg)
	}

	limit := p.GridLimitOffKW
	if peak {
		limit = p.GridLimitPeakKW
	}
	if m.GridImport <= limit {
		c.Grid = gridFloor + (1-gridFloor)*(1-m.GridImport/limit)
	} else {
		c.Grid = math.Max(-1, -(m.GridImport-limit)/limit)
	}

	c.Penalty = r.penalty(m)

	w := r.w
	c.Total = w.CO2*c.CO2 + w.Cost*c.Cost + w.Solar*c.Solar + w.EV*c.EV + w.Grid*c.Grid + c.Penalty
	return c.Total, c
}

// gridFloor keeps r_grid strictly positive up to and including the limit.
const gridFloor = 0.05

// evSatisfaction maps the mean connected-socket SOC to [-1, 1]: negative
// below half charge, a gentle ramp to the target, then up to 1 at full.
func (r *MultiObjective) evSatisfaction(soc float64) float64 {
	soc = clip(soc, 0, 1)
	target := r.p.EVTargetSOC
	switch {
	case soc < 0.5:
		return -1 + 2*soc
	case soc < target:
		return 0.5 * (soc - 0.5) / (target - 0.5)
	default:
		return math.Min(1, 0.5+0.5*(soc-target)/(1-target))
	}
}

func (r *MultiObjective) penalty(m Metrics) float64 {
	p := r.p
	out := 0.0
	if p.EndOfDayPenalty != 0 && m.Hour == p.EndOfDayHour && p.SOCMin < 1 {
		out -= p.EndOfDayPenalty * math.Max(0, m.BESSSOC-p.SOCMin) / (1 - p.SOCMin)
	}
	if p.PrePeakPenalty != 0 && m.Hour >= p.PrePeakStart && m.Hour < p.PeakStart && p.PrePeakTarget > 0 {
		out -= p.PrePeakPenalty * math.Max(0, p.PrePeakTarget-m.BESSSOC) / p.PrePeakTarget
	}
	return out
}

func clip(x, lo, hi float64) float64 { return model.Clamp(x, lo, hi) }
