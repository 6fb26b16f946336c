package citylearn

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"iquitos-ems/internal/balance"
	"iquitos-ems/internal/config"
	"iquitos-ems/internal/model"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Options are the scenario-level facts written into the schema.
type Options struct {
	Scenario       string
	PVNameplateKWp float64
	Factors        balance.Factors
	Tariff         model.Tariff
	Weights        map[string]float64
	SOCArrival     float64
	OpenHour       int
	CloseHour      int
}

func DefaultOptions() Options {
	return Options{
		Scenario:   "iquitos",
		Factors:    balance.DefaultFactors,
		Tariff:     model.DefaultTariff,
		SOCArrival: 0.2,
		OpenHour:   model.DefaultOpenHour,
		CloseHour:  model.DefaultCloseHour,
	}
}

// OptionsFromConfig collects the builder options; weights are the resolved
// reward weights recorded in the manifest.
func OptionsFromConfig(cfg *config.Config, weights map[string]float64) Options {
	o := DefaultOptions()
	o.Scenario = cfg.OE3.Scenario
	o.PVNameplateKWp = cfg.OE2.PV.NameplateKWp
	o.Factors = balance.Factors{Grid: cfg.OE3.Grid.CarbonIntensity, EVCombustion: cfg.OE3.Grid.EVCombustion}
	o.Tariff = cfg.Tariff()
	o.Weights = weights
	o.SOCArrival = cfg.OE2.EVFleet.SOCArrival
	if h := cfg.OE2.EVFleet.OperatingHours; len(h) == 2 {
		o.OpenHour, o.CloseHour = h[0], h[1]
	}
	return o
}

// ScenarioDir is <dataset_dir>/<scenario>.
func ScenarioDir(cfg *config.Config) string {
	return filepath.Join(cfg.OE3.DatasetDir, cfg.OE3.Scenario)
}

var buildingHeader = []string{
	"hour", "month", "day_type", "hour_of_day", "day_of_year", "is_peak", "tariff",
	"carbon_intensity", "non_shiftable_load", "solar_generation", "ev_demand_total", "bess_soc_baseline",
}

var chargerHeader = []string{"hour", "socket_class", "connected", "demand_kw", "soc_proxy", "daily_demand_kwh"}

// Build writes the dataset tree for one scenario into dir. res is the
// balance run on the same inputs; its SoC trajectory is the baseline column.
func Build(dir string, in *model.Inputs, res *balance.Result, opts Options) (*Schema, error) {
	if in == nil || res == nil {
		return nil, fmt.Errorf("build: inputs and balance result are required")
	}
	if len(res.Ledger) != model.HoursPerYear || len(in.PV) != model.HoursPerYear {
		return nil, fmt.Errorf("build: want %d hours, got ledger=%d pv=%d", model.HoursPerYear, len(res.Ledger), len(in.PV))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	if err := writeBuilding(filepath.Join(dir, BuildingFile), in, res, opts); err != nil {
		return nil, fmt.Errorf("build %s: %w", BuildingFile, err)
	}
	for s := range in.EV.Sockets {
		if err := writeCharger(filepath.Join(dir, ChargerFile(s)), in.EV, s, opts.SOCArrival); err != nil {
			return nil, fmt.Errorf("build %s: %w", ChargerFile(s), err)
		}
	}

	schema := newSchema(in, opts)
	if err := writeSchema(filepath.Join(dir, SchemaFile), schema); err != nil {
		return nil, fmt.Errorf("build %s: %w", SchemaFile, err)
	}
	log.Info().
		Str("component", "citylearn").
		Str("dir", dir).
		Int("sockets", len(in.EV.Sockets)).
		Int("observations", len(schema.Observations)).
		Msg("dataset built")
	return schema, nil
}

func newSchema(in *model.Inputs, opts Options) *Schema {
	chargers := lo.Map(in.EV.Sockets, func(s model.Socket, i int) ChargerAsset {
		return ChargerAsset{Socket: s, File: ChargerFile(i), Controllable: true}
	})
	weights := opts.Weights
	if weights == nil {
		weights = map[string]float64{}
	}
	return &Schema{
		Version:            SchemaVersion,
		Scenario:           opts.Scenario,
		CentralAgent:       true,
		SecondsPerTimeStep: SecondsPerTimeStep,
		StartTimeStep:      0,
		EndTimeStep:        model.HoursPerYear - 1,
		CalendarYear:       in.Calendar.Year,
		PeakWindow:         [2]int{in.Calendar.PeakStart, in.Calendar.PeakEnd},
		OperatingHours:     [2]int{opts.OpenHour, opts.CloseHour},
		SOCArrival:         opts.SOCArrival,
		CarbonIntensity:    opts.Factors.Grid,
		EVCombustion:       opts.Factors.EVCombustion,
		Tariff:             opts.Tariff,
		Reward:             RewardSpec{Type: RewardType, Weights: weights},
		Buildings: []Building{{
			Name:             BuildingName,
			EnergySimulation: BuildingFile,
			PV:               PVAsset{NameplateKWp: opts.PVNameplateKWp},
			BESS:             in.BESS,
			Chargers:         chargers,
		}},
		Observations: ObservationNames(in.EV.Sockets),
		Actions:      ActionNames(in.EV.Sockets),
	}
}

func writeBuilding(path string, in *model.Inputs, res *balance.Result, opts Options) error {
	rows := make([][]string, 0, model.HoursPerYear+1)
	rows = append(rows, buildingHeader)
	for t := 0; t < model.HoursPerYear; t++ {
		h := model.HourIndex(t)
		rows = append(rows, []string{
			strconv.Itoa(t),
			strconv.Itoa(in.Calendar.Month(h)),
			strconv.Itoa(in.Calendar.DayType(h)),
			strconv.Itoa(h.HourOfDay()),
			strconv.Itoa(h.DayOfYear()),
			fmtBool(in.Mall.Peak[t]),
			fmtFloat(in.Mall.Tariff[t]),
			fmtFloat(opts.Factors.Grid),
			fmtFloat(in.Mall.KWh[t]),
			fmtFloat(in.PV[t]),
			fmtFloat(in.EV.Total(t)),
			fmtFloat(res.Ledger[t].SOCEnd),
		})
	}
	return writeCSV(path, rows)
}

func writeCharger(path string, ev model.EVDemand, s int, socArrival float64) error {
	sock := ev.Sockets[s]
	rows := make([][]string, 0, model.HoursPerYear+1)
	rows = append(rows, chargerHeader)
	proxy := SOCProxy(ev, s, socArrival)
	for t := 0; t < model.HoursPerYear; t++ {
		d := ev.KWh[t][s]
		rows = append(rows, []string{
			strconv.Itoa(t),
			string(sock.Class),
			fmtBool(d > 0),
			fmtFloat(d),
			fmtFloat(proxy[t]),
			fmtFloat(ev.DailyDemand(t, s)),
		})
	}
	return writeCSV(path, rows)
}

// SOCProxy is the state of charge a greedy charger would give socket s:
// arrival SoC plus the share of the day's demand delivered so far, 0 while
// nothing is connected.
func SOCProxy(ev model.EVDemand, s int, socArrival float64) []float64 {
	out := make([]float64, len(ev.KWh))
	delivered, daily := 0.0, 0.0
	for t := range ev.KWh {
		if t%24 == 0 {
			delivered = 0
			daily = ev.DailyDemand(t, s)
		}
		d := ev.KWh[t][s]
		delivered += d
		if d > 0 && daily > 0 {
			out[t] = math.Min(1, socArrival+(1-socArrival)*delivered/daily)
		}
	}
	return out
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// fmtFloat is the shortest decimal that parses back to the same value, so a
// rebuild from a loaded tree is byte-identical.
func fmtFloat(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }

func fmtBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
