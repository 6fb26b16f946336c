package model

import (
	"errors"
	"fmt"
	"math"
)

// BESSParams defines the nameplate of the battery energy-storage system.
// Units:
// - CapacityKWh: kWh
// - PowerKW: kW (one-hour steps, so also the max kWh per step on either leg)
// - Efficiency: round-trip, (0, 1]; each leg uses sqrt(Efficiency)
// - SOC fields: fraction 0..1
type BESSParams struct {
	CapacityKWh float64 `json:"capacity_kWh"`
	PowerKW     float64 `json:"power_kW"`
	Efficiency  float64 `json:"efficiency"`
	MinSOC      float64 `json:"soc_min"`
	MaxSOC      float64 `json:"soc_max"`
	InitialSOC  float64 `json:"initial_soc"`
}

func (p BESSParams) Validate() error {
	if p.CapacityKWh <= 0 {
		return errors.New("capacity_kWh must be > 0")
	}
	if p.PowerKW <= 0 {
		return errors.New("power_kW must be > 0")
	}
	if p.Efficiency <= 0 || p.Efficiency > 1 {
		return errors.New("efficiency must be in (0, 1]")
	}
	if p.MinSOC < 0 || p.MaxSOC > 1 || p.MinSOC >= p.MaxSOC {
		return errors.New("soc bounds must satisfy 0<=soc_min<soc_max<=1")
	}
	if p.InitialSOC < p.MinSOC || p.InitialSOC > p.MaxSOC {
		return fmt.Errorf("initial soc %.4f outside [%.4f, %.4f]", p.InitialSOC, p.MinSOC, p.MaxSOC)
	}
	return nil
}

// LegEfficiency is the one-way efficiency applied to both charge and discharge.
func (p BESSParams) LegEfficiency() float64 {
	return math.Sqrt(p.Efficiency)
}

// BESS bundles params + the mutable state of charge.
type BESS struct {
	Params BESSParams
	SOC    float64
}

func NewBESS(params BESSParams) (*BESS, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &BESS{Params: params, SOC: params.InitialSOC}, nil
}

// Reset puts the battery back to its initial state of charge.
func (b *BESS) Reset() { b.SOC = b.Params.InitialSOC }

// StoredKWh is the energy currently held.
func (b *BESS) StoredKWh() float64 { return b.SOC * b.Params.CapacityKWh }

// ChargeHeadroomKWh is the largest input-side energy the battery can absorb
// this step without exceeding MaxSOC or the power limit.
func (b *BESS) ChargeHeadroomKWh() float64 {
	storable := (b.Params.MaxSOC - b.SOC) * b.Params.CapacityKWh
	if storable <= 0 {
		return 0
	}
	return math.Min(b.Params.PowerKW, storable/b.Params.LegEfficiency())
}

// DischargeAvailableKWh is the largest output-side energy the battery can
// deliver this step without dropping below floor (a SOC fraction, never
// below MinSOC) or exceeding the power limit.
func (b *BESS) DischargeAvailableKWh(floor float64) float64 {
	if floor < b.Params.MinSOC {
		floor = b.Params.MinSOC
	}
	withdrawable := (b.SOC - floor) * b.Params.CapacityKWh
	if withdrawable <= 0 {
		return 0
	}
	return math.Min(b.Params.PowerKW, withdrawable*b.Params.LegEfficiency())
}

// StepResult captures what happened to the battery in one hour.
type StepResult struct {
	ChargeKWh    float64 // input-side energy absorbed
	DischargeKWh float64 // output-side energy delivered
	SOCStart     float64
	SOCEnd       float64
	ClipKWh      float64 // energy removed by the SOC clip; must stay below tolerance
}

// Apply advances the state of charge by one hour. Charge and discharge are
// mutually exclusive; both are bounded by the power limit. The resulting SOC
// is clipped to [MinSOC, MaxSOC] and the clipped energy is reported so the
// caller can decide whether the request was feasible.
func (b *BESS) Apply(chargeKWh, dischargeKWh, eps float64) (StepResult, error) {
	if chargeKWh < -eps || dischargeKWh < -eps {
		return StepResult{}, fmt.Errorf("negative battery flow (charge=%.6f discharge=%.6f)", chargeKWh, dischargeKWh)
	}
	chargeKWh = math.Max(0, chargeKWh)
	dischargeKWh = math.Max(0, dischargeKWh)
	if chargeKWh > eps && dischargeKWh > eps {
		return StepResult{}, fmt.Errorf("simultaneous charge %.6f and discharge %.6f", chargeKWh, dischargeKWh)
	}
	if chargeKWh > b.Params.PowerKW+eps || dischargeKWh > b.Params.PowerKW+eps {
		return StepResult{}, fmt.Errorf("flow exceeds power limit %.3f kW", b.Params.PowerKW)
	}

	res := StepResult{ChargeKWh: chargeKWh, DischargeKWh: dischargeKWh, SOCStart: b.SOC}
	leg := b.Params.LegEfficiency()
	soc := b.SOC + (chargeKWh*leg-dischargeKWh/leg)/b.Params.CapacityKWh
	clipped := clamp(soc, b.Params.MinSOC, b.Params.MaxSOC)
	res.ClipKWh = math.Abs(soc-clipped) * b.Params.CapacityKWh
	b.SOC = clipped
	res.SOCEnd = clipped
	return res, nil
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Clamp is exported for action clipping in the environment.
func Clamp(x, lo, hi float64) float64 { return clamp(x, lo, hi) }
