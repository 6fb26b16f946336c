package config

import (
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
)

// Reference nameplate used when neither the BESS file nor the YAML sets a field.
var referenceBESS = model.BESSParams{
	CapacityKWh: 1700,
	PowerKW:     400,
	Efficiency:  0.95,
	MinSOC:      0.2,
	MaxSOC:      1.0,
}

// ResolveBESS overlays the YAML oe2.bess block on the parameters read from
// the BESS file (nil when no file is declared). If initial_soc is not
// provided it defaults to soc_min, matching the end-of-day terminal state.
func (c *Config) ResolveBESS(file *model.BESSParams) (model.BESSParams, error) {
	base := referenceBESS
	if file != nil {
		base = MergeBESS(base, *file)
	}
	y := c.OE2.BESS
	out := MergeBESS(base, model.BESSParams{
		CapacityKWh: y.CapacityKWh,
		PowerKW:     y.PowerKW,
		Efficiency:  y.Efficiency,
		MinSOC:      y.SOCMin,
		MaxSOC:      y.SOCMax,
		InitialSOC:  y.InitialSOC,
	})
	if out.InitialSOC == 0 {
		out.InitialSOC = out.MinSOC
	}
	if err := out.Validate(); err != nil {
		return model.BESSParams{}, fault.Config("oe2.bess", "%v", err)
	}
	return out, nil
}

// MergeBESS overlays non-zero fields from override onto base.
func MergeBESS(base, override model.BESSParams) model.BESSParams {
	out := base
	if override.CapacityKWh != 0 {
		out.CapacityKWh = override.CapacityKWh
	}
	if override.PowerKW != 0 {
		out.PowerKW = override.PowerKW
	}
	if override.Efficiency != 0 {
		out.Efficiency = override.Efficiency
	}
	// soc bounds are allowed to be 0 in theory, but the reference sizing never uses 0.
	if override.MinSOC != 0 {
		out.MinSOC = override.MinSOC
	}
	if override.MaxSOC != 0 {
		out.MaxSOC = override.MaxSOC
	}
	if override.InitialSOC != 0 {
		out.InitialSOC = override.InitialSOC
	}
	return out
}
