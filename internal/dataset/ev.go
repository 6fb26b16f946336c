package dataset

import (
	"regexp"

	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// maxBadCellFraction is the share of non-numeric EV cells tolerated before
// the file is rejected.
const maxBadCellFraction = 0.01

const nameplateTolerance = 1e-6

// EVOptions describes the fleet the EV file must match.
type EVOptions struct {
	ColumnPattern string
	Sockets       []model.Socket
	OpenHour      int // first hour of the operating window
	CloseHour     int // last hour of the operating window, inclusive
}

// LoadEV reads the per-socket demand matrix. Columns whose header matches
// the pattern are taken in file order; the first S are used.
func LoadEV(path string, opts EVOptions) (model.EVDemand, error) {
	re, err := regexp.Compile(opts.ColumnPattern)
	if err != nil {
		return model.EVDemand{}, fault.Config("oe2.inputs.ev_column_pattern", "%v", err)
	}
	f, err := readFrame(path, ',')
	if err != nil {
		return model.EVDemand{}, err
	}

	s := len(opts.Sockets)
	cols := lo.Filter(f.names, func(name string, _ int) bool { return re.MatchString(name) })
	if len(cols) < s {
		return model.EVDemand{}, fault.InputSchema(path, "found %d columns matching %q, want %d", len(cols), opts.ColumnPattern, s)
	}
	cols = cols[:s]

	if f.rows() != model.HoursPerYear {
		return model.EVDemand{}, fault.InputLength(path, f.rows(), model.HoursPerYear)
	}

	kwh := make([][]float64, model.HoursPerYear)
	for h := range kwh {
		kwh[h] = make([]float64, s)
	}

	bad := 0
	for j, col := range cols {
		limit := opts.Sockets[j].PowerKW + nameplateTolerance
		for h, r := range f.records(col) {
			v, ok := parseCell(r)
			if !ok {
				bad++
				continue
			}
			if v < 0 {
				return model.EVDemand{}, fault.InputValue(path, "row %d column %s: negative demand %g", h+1, col, v)
			}
			if v > limit {
				return model.EVDemand{}, fault.InputValue(path, "row %d column %s: %g kWh exceeds socket nameplate %g kW", h+1, col, v, opts.Sockets[j].PowerKW)
			}
			hd := model.HourIndex(h).HourOfDay()
			if v > 0 && (hd < opts.OpenHour || hd > opts.CloseHour) {
				return model.EVDemand{}, fault.InputValue(path, "row %d column %s: demand %g outside operating window [%d,%d]", h+1, col, v, opts.OpenHour, opts.CloseHour)
			}
			kwh[h][j] = v
		}
	}

	cells := model.HoursPerYear * s
	if bad > 0 {
		log.Warn().Str("component", "dataset").Str("file", path).Int("cells", bad).Msg("non-numeric EV cells coerced to 0")
	}
	if float64(bad) > maxBadCellFraction*float64(cells) {
		return model.EVDemand{}, fault.InputValue(path, "%d of %d cells are non-numeric (limit %.0f%%)", bad, cells, maxBadCellFraction*100)
	}

	return model.EVDemand{Sockets: opts.Sockets, KWh: kwh}, nil
}
