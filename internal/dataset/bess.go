package dataset

import (
	"encoding/json"
	"os"

	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
)

type bessFile struct {
	CapacityKWh *float64 `json:"capacity_kWh"`
	PowerKW     *float64 `json:"power_kW"`
	Efficiency  *float64 `json:"efficiency"`
	SOCMin      *float64 `json:"soc_min"`
	SOCMax      *float64 `json:"soc_max"`
}

// LoadBESS reads the BESS nameplate JSON. capacity_kWh, power_kW, efficiency
// and soc_min are required; soc_max defaults to 1.
func LoadBESS(path string) (model.BESSParams, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.BESSParams{}, fault.InputNotFound(path, err)
	}
	var f bessFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return model.BESSParams{}, fault.InputSchema(path, "invalid JSON: %v", err)
	}
	required := []struct {
		name string
		v    *float64
	}{
		{"capacity_kWh", f.CapacityKWh},
		{"power_kW", f.PowerKW},
		{"efficiency", f.Efficiency},
		{"soc_min", f.SOCMin},
	}
	for _, r := range required {
		if r.v == nil {
			return model.BESSParams{}, fault.InputSchema(path, "missing field %s", r.name)
		}
	}
	p := model.BESSParams{
		CapacityKWh: *f.CapacityKWh,
		PowerKW:     *f.PowerKW,
		Efficiency:  *f.Efficiency,
		MinSOC:      *f.SOCMin,
		MaxSOC:      1.0,
	}
	if f.SOCMax != nil {
		p.MaxSOC = *f.SOCMax
	}
	p.InitialSOC = p.MinSOC
	if err := p.Validate(); err != nil {
		return model.BESSParams{}, fault.InputValue(path, "%v", err)
	}
	return p, nil
}
