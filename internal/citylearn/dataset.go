package citylearn

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Dataset is a loaded tree. It is read-only once loaded and may be shared
// by several environments.
type Dataset struct {
	Dir    string
	Schema *Schema

	Month       []int
	DayType     []int
	Peak        []bool
	Tariff      []float64
	Carbon      []float64
	Load        []float64
	Solar       []float64
	EVTotal     []float64
	SOCBaseline []float64

	// [hour][socket]
	Demand   [][]float64
	Daily    [][]float64
	SOCProxy [][]float64
}

// Sockets returns the sockets declared by the schema.
func (d *Dataset) Sockets() []model.Socket { return d.Schema.Sockets() }

// BESS returns the battery nameplate declared by the schema.
func (d *Dataset) BESS() model.BESSParams { return d.Schema.Buildings[0].BESS }

// LoadDataset reads schema.json, the building CSV and every charger CSV.
func LoadDataset(dir string) (*Dataset, error) {
	schema, err := ReadSchema(dir)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{Dir: dir, Schema: schema}

	b := schema.Buildings[0]
	cols, err := readColumns(filepath.Join(dir, b.EnergySimulation), buildingHeader)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, b.EnergySimulation)
	if ds.Month, err = ints(path, "month", cols["month"]); err != nil {
		return nil, err
	}
	if ds.DayType, err = ints(path, "day_type", cols["day_type"]); err != nil {
		return nil, err
	}
	peak, err := ints(path, "is_peak", cols["is_peak"])
	if err != nil {
		return nil, err
	}
	ds.Peak = make([]bool, len(peak))
	for i, v := range peak {
		ds.Peak[i] = v == 1
	}
	for name, dst := range map[string]*[]float64{
		"tariff":             &ds.Tariff,
		"carbon_intensity":   &ds.Carbon,
		"non_shiftable_load": &ds.Load,
		"solar_generation":   &ds.Solar,
		"ev_demand_total":    &ds.EVTotal,
		"bess_soc_baseline":  &ds.SOCBaseline,
	} {
		if *dst, err = floats(path, name, cols[name]); err != nil {
			return nil, err
		}
	}

	n := len(b.Chargers)
	ds.Demand = matrix(n)
	ds.Daily = matrix(n)
	ds.SOCProxy = matrix(n)
	for s, c := range b.Chargers {
		cp := filepath.Join(dir, c.File)
		cc, err := readColumns(cp, chargerHeader)
		if err != nil {
			return nil, err
		}
		for _, col := range []struct {
			name string
			dst  [][]float64
		}{
			{"demand_kw", ds.Demand},
			{"daily_demand_kwh", ds.Daily},
			{"soc_proxy", ds.SOCProxy},
		} {
			vals, err := floats(cp, col.name, cc[col.name])
			if err != nil {
				return nil, err
			}
			for t, v := range vals {
				col.dst[t][s] = v
			}
		}
	}
	return ds, nil
}

// Inputs reconstructs the OE2 inputs the tree was built from.
func (d *Dataset) Inputs() (*model.Inputs, error) {
	s := d.Schema
	cal, err := model.NewCalendar(s.CalendarYear, s.PeakWindow[0], s.PeakWindow[1])
	if err != nil {
		return nil, fault.InputSchema(SchemaFile, "%v", err)
	}
	kwh := make([][]float64, len(d.Demand))
	for t, row := range d.Demand {
		kwh[t] = append([]float64(nil), row...)
	}
	return &model.Inputs{
		PV: append([]float64(nil), d.Solar...),
		EV: model.EVDemand{Sockets: d.Sockets(), KWh: kwh},
		Mall: model.MallDemand{
			KWh:    append([]float64(nil), d.Load...),
			Peak:   append([]bool(nil), d.Peak...),
			Tariff: append([]float64(nil), d.Tariff...),
		},
		BESS:     d.BESS(),
		Calendar: cal,
	}, nil
}

// Options returns the builder options recorded in the schema.
func (d *Dataset) Options() Options {
	s := d.Schema
	return Options{
		Scenario:       s.Scenario,
		PVNameplateKWp: s.Buildings[0].PV.NameplateKWp,
		Factors:        factors(s),
		Tariff:         s.Tariff,
		Weights:        s.Reward.Weights,
		SOCArrival:     s.SOCArrival,
		OpenHour:       s.OperatingHours[0],
		CloseHour:      s.OperatingHours[1],
	}
}

// Fingerprint is the sha256 of every file of the tree, in name order. Two
// runs fed the same dataset share the fingerprint.
func Fingerprint(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fault.InputNotFound(dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		io.WriteString(h, name)
		h.Write([]byte{0})
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readColumns(path string, want []string) (map[string][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.InputNotFound(path, err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fault.InputSchema(path, "%v", df.Err)
	}
	if r := df.Nrow(); r != model.HoursPerYear {
		return nil, fault.InputLength(path, r, model.HoursPerYear)
	}
	have := make(map[string]bool, df.Ncol())
	for _, n := range df.Names() {
		have[n] = true
	}
	out := make(map[string][]string, len(want))
	for _, name := range want {
		if !have[name] {
			return nil, fault.InputSchema(path, "missing column %q", name)
		}
		out[name] = df.Col(name).Records()
	}
	return out, nil
}

func floats(path, col string, recs []string) ([]float64, error) {
	out := make([]float64, len(recs))
	for i, r := range recs {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fault.InputValue(path, "column %s row %d: %q is not a finite number", col, i, r)
		}
		out[i] = v
	}
	return out, nil
}

func ints(path, col string, recs []string) ([]int, error) {
	out := make([]int, len(recs))
	for i, r := range recs {
		v, err := strconv.Atoi(r)
		if err != nil {
			return nil, fault.InputValue(path, "column %s row %d: %q is not an integer", col, i, r)
		}
		out[i] = v
	}
	return out, nil
}

func matrix(cols int) [][]float64 {
	m := make([][]float64, model.HoursPerYear)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}
