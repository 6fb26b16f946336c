package dataset

import (
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"

	"github.com/rs/zerolog/log"
)

// MallOptions declares how the demand column is found and how rows are
// tagged.
type MallOptions struct {
	Columns []string
	// LastNumericFallback allows the legacy heuristic when no declared column
	// matches. The chosen column is always logged.
	LastNumericFallback bool
	Calendar            model.Calendar
	Tariff              model.Tariff
}

// LoadMall reads the semicolon-delimited mall demand and attaches the peak
// flag and tariff to every row.
func LoadMall(path string, opts MallOptions) (model.MallDemand, error) {
	f, err := readFrame(path, ';')
	if err != nil {
		return model.MallDemand{}, err
	}

	col, ok := f.find(opts.Columns)
	if !ok {
		if !opts.LastNumericFallback {
			return model.MallDemand{}, fault.InputSchema(path, "no mall column among %v (have %v)", opts.Columns, f.names)
		}
		col, ok = f.lastNumeric()
		if !ok {
			return model.MallDemand{}, fault.InputSchema(path, "no numeric column found")
		}
		log.Warn().Str("component", "dataset").Str("file", path).Str("column", col).
			Msg("mall column detected by last-numeric heuristic")
	}

	if f.rows() != model.HoursPerYear {
		return model.MallDemand{}, fault.InputLength(path, f.rows(), model.HoursPerYear)
	}

	out := model.MallDemand{
		KWh:    make([]float64, model.HoursPerYear),
		Peak:   make([]bool, model.HoursPerYear),
		Tariff: make([]float64, model.HoursPerYear),
	}
	for h, r := range f.records(col) {
		v, ok := parseCell(r)
		if !ok {
			return model.MallDemand{}, fault.InputValue(path, "row %d column %s: %q is not a finite number", h+1, col, r)
		}
		if v <= 0 {
			return model.MallDemand{}, fault.InputValue(path, "row %d column %s: demand must be > 0, got %g", h+1, col, v)
		}
		peak := opts.Calendar.IsPeak(model.HourIndex(h))
		out.KWh[h] = v
		out.Peak[h] = peak
		out.Tariff[h] = opts.Tariff.At(peak)
	}
	return out, nil
}

// lastNumeric returns the right-most column whose first row parses as a number.
func (f *frame) lastNumeric() (string, bool) {
	if f.rows() == 0 {
		return "", false
	}
	for i := len(f.names) - 1; i >= 0; i-- {
		recs := f.records(f.names[i])
		if _, ok := parseCell(recs[0]); ok {
			return f.names[i], true
		}
	}
	return "", false
}
