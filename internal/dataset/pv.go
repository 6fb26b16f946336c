package dataset

import (
	"fmt"
	"math"

	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// SubHourlyRows is the row count of a 15-minute year.
const SubHourlyRows = model.HoursPerYear * 4

// PVOptions bounds the annual PV yield. A zero nameplate disables the check.
type PVOptions struct {
	NameplateKWp          float64
	CapacityFactorCeiling float64
}

// LoadPV reads hourly PV generation in kWh/h. The column is chosen by
// priority; 15-minute files are summed to hours.
func LoadPV(path string, columns []string, opts PVOptions) ([]float64, error) {
	f, err := readFrame(path, ',')
	if err != nil {
		return nil, err
	}
	col, ok := f.find(columns)
	if !ok {
		return nil, fault.InputSchema(path, "no PV column among %v (have %v)", columns, f.names)
	}

	raw := f.records(col)
	values := make([]float64, len(raw))
	for i, r := range raw {
		v, ok := parseCell(r)
		if !ok {
			return nil, fault.InputValue(path, "row %d column %s: %q is not a finite number", i+1, col, r)
		}
		if v < 0 {
			return nil, fault.InputValue(path, "row %d column %s: negative generation %g", i+1, col, v)
		}
		values[i] = v
	}

	switch len(values) {
	case model.HoursPerYear:
	case SubHourlyRows:
		hourly, err := aggregateHourly(values)
		if err != nil {
			return nil, fault.InputValue(path, "%v", err)
		}
		log.Info().Str("component", "dataset").Str("file", path).Msg("aggregated 15-minute PV to hourly")
		values = hourly
	default:
		return nil, fault.InputLength(path, len(values), model.HoursPerYear)
	}

	if opts.NameplateKWp > 0 && opts.CapacityFactorCeiling > 0 {
		ceiling := opts.NameplateKWp * model.HoursPerYear * opts.CapacityFactorCeiling
		if total := lo.Sum(values); total > ceiling {
			return nil, fault.InputValue(path, "annual PV %.1f kWh exceeds ceiling %.1f kWh", total, ceiling)
		}
	}
	return values, nil
}

// aggregateHourly sums groups of four 15-minute rows and checks that energy
// is conserved to a relative 1e-6.
func aggregateHourly(sub []float64) ([]float64, error) {
	hourly := make([]float64, len(sub)/4)
	for h := range hourly {
		hourly[h] = sub[4*h] + sub[4*h+1] + sub[4*h+2] + sub[4*h+3]
	}
	subTotal := lo.Sum(sub)
	if subTotal == 0 {
		return hourly, nil
	}
	if rel := math.Abs(lo.Sum(hourly)-subTotal) / subTotal; rel >= 1e-6 {
		return nil, fmt.Errorf("15-minute aggregation drifts by %.3g (relative)", rel)
	}
	return hourly, nil
}
