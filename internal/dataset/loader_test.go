package dataset

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"iquitos-ems/internal/config"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
	"iquitos-ems/internal/synth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInputs(t *testing.T) (*model.Inputs, *config.Config) {
	t.Helper()
	in := synth.Iquitos()
	files, err := synth.WriteInputs(t.TempDir(), in)
	require.NoError(t, err)

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.OE2.Inputs.PVFile = files.PV
	cfg.OE2.Inputs.EVFile = files.EV
	cfg.OE2.Inputs.MallFile = files.Mall
	cfg.OE2.Inputs.BESSFile = files.BESS
	return in, cfg
}

func writeLines(t *testing.T, name string, lines []string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return p
}

func TestLoadRoundTripsSyntheticInputs(t *testing.T) {
	want, cfg := writeInputs(t)

	got, err := Load(cfg)
	require.NoError(t, err)

	assert.Equal(t, want.PV, got.PV)
	assert.Equal(t, want.EV.KWh, got.EV.KWh)
	assert.Equal(t, want.Mall.KWh, got.Mall.KWh)
	assert.Equal(t, want.BESS, got.BESS)
	assert.Equal(t, 38, got.EV.NumSockets())
	assert.Equal(t, model.SocketMototaxi, got.EV.Sockets[37].Class)
	assert.True(t, got.Mall.Peak[18])
	assert.Equal(t, 0.50, got.Mall.Tariff[18])
	assert.Equal(t, 0.30, got.Mall.Tariff[12])
}

func TestLoadRequiresDeclaredInputs(t *testing.T) {
	_, cfg := writeInputs(t)
	cfg.OE2.Inputs.EVFile = ""
	_, err := Load(cfg)
	require.Error(t, err)
	assert.Equal(t, fault.KindConfigError, fault.KindOf(err))
}

func pvLines(header string, n int, v float64) []string {
	lines := []string{header}
	for i := 0; i < n; i++ {
		lines = append(lines, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return lines
}

func TestLoadPVColumnPriority(t *testing.T) {
	lines := []string{"ac_power_kw,pv_generation_kwh"}
	for i := 0; i < model.HoursPerYear; i++ {
		lines = append(lines, "1,2")
	}
	p := writeLines(t, "pv.csv", lines)

	pv, err := LoadPV(p, []string{"potencia_kw", "pv_generation_kwh", "ac_power_kw"}, PVOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, pv[0], "pv_generation_kwh outranks ac_power_kw")
}

func TestLoadPVErrors(t *testing.T) {
	cols := []string{"potencia_kw"}

	_, err := LoadPV(filepath.Join(t.TempDir(), "missing.csv"), cols, PVOptions{})
	assert.Equal(t, fault.KindInputNotFound, fault.KindOf(err))

	_, err = LoadPV(writeLines(t, "pv.csv", pvLines("power", model.HoursPerYear, 1)), cols, PVOptions{})
	assert.Equal(t, fault.KindInputSchemaError, fault.KindOf(err))

	_, err = LoadPV(writeLines(t, "pv.csv", pvLines("potencia_kw", 100, 1)), cols, PVOptions{})
	assert.Equal(t, fault.KindInputLengthMismatch, fault.KindOf(err))

	_, err = LoadPV(writeLines(t, "pv.csv", pvLines("potencia_kw", model.HoursPerYear, -1)), cols, PVOptions{})
	assert.Equal(t, fault.KindInputValueError, fault.KindOf(err))

	_, err = LoadPV(writeLines(t, "pv.csv", pvLines("potencia_kw", model.HoursPerYear, 100)), cols,
		PVOptions{NameplateKWp: 100, CapacityFactorCeiling: 0.35})
	assert.Equal(t, fault.KindInputValueError, fault.KindOf(err), "capacity factor 1.0 exceeds the ceiling")
}

func TestLoadPVAggregatesQuarterHours(t *testing.T) {
	p := writeLines(t, "pv15.csv", pvLines("potencia_kw", SubHourlyRows, 0.25))
	pv, err := LoadPV(p, []string{"potencia_kw"}, PVOptions{})
	require.NoError(t, err)
	require.Len(t, pv, model.HoursPerYear)
	assert.InDelta(t, 1.0, pv[0], 1e-12)
	assert.InDelta(t, 8760.0, sum(pv), 1e-6)
}

func evLines(sockets int, cell func(h, s int) string) []string {
	header := []string{"hour"}
	for s := 0; s < sockets; s++ {
		header = append(header, model.SocketName(s)+"_charger_power_kw")
	}
	lines := []string{strings.Join(header, ",")}
	for h := 0; h < model.HoursPerYear; h++ {
		rec := []string{strconv.Itoa(h)}
		for s := 0; s < sockets; s++ {
			rec = append(rec, cell(h, s))
		}
		lines = append(lines, strings.Join(rec, ","))
	}
	return lines
}

func evOpts() EVOptions {
	return EVOptions{ColumnPattern: "charger_power_kw", Sockets: synth.DefaultFleet(), OpenHour: 9, CloseHour: 22}
}

func TestLoadEVCoercesFewBadCells(t *testing.T) {
	p := writeLines(t, "ev.csv", evLines(38, func(h, s int) string {
		if h == 10 && s == 0 {
			return "n/a"
		}
		if model.HourIndex(h).HourOfDay() == 10 {
			return "2"
		}
		return "0"
	}))
	ev, err := LoadEV(p, evOpts())
	require.NoError(t, err)
	assert.Equal(t, 0.0, ev.KWh[10][0])
	assert.Equal(t, 2.0, ev.KWh[10][1])
}

func TestLoadEVRejectsManyBadCells(t *testing.T) {
	p := writeLines(t, "ev.csv", evLines(38, func(h, s int) string {
		if s == 0 {
			return "x"
		}
		return "0"
	}))
	_, err := LoadEV(p, evOpts())
	// one bad column out of 38 is ~2.6% of cells
	assert.Equal(t, fault.KindInputValueError, fault.KindOf(err))
}

func TestLoadEVSchemaAndWindow(t *testing.T) {
	p := writeLines(t, "ev.csv", evLines(10, func(h, s int) string { return "0" }))
	_, err := LoadEV(p, evOpts())
	assert.Equal(t, fault.KindInputSchemaError, fault.KindOf(err))

	p = writeLines(t, "ev.csv", evLines(38, func(h, s int) string {
		if model.HourIndex(h).HourOfDay() == 3 {
			return "1"
		}
		return "0"
	}))
	_, err = LoadEV(p, evOpts())
	assert.Equal(t, fault.KindInputValueError, fault.KindOf(err), "demand outside [9,22]")

	p = writeLines(t, "ev.csv", evLines(38, func(h, s int) string {
		if model.HourIndex(h).HourOfDay() == 12 {
			return "9"
		}
		return "0"
	}))
	_, err = LoadEV(p, evOpts())
	assert.Equal(t, fault.KindInputValueError, fault.KindOf(err), "above 7.4 kW nameplate")
}

func mallLines(header string, v string) []string {
	lines := []string{header}
	for h := 0; h < model.HoursPerYear; h++ {
		lines = append(lines, "2025-01-01;00:00;"+v)
	}
	return lines
}

func mallOpts(fallback bool) MallOptions {
	return MallOptions{
		Columns:             []string{"mall_demand_kwh"},
		LastNumericFallback: fallback,
		Calendar:            model.DefaultCalendar(),
		Tariff:              model.DefaultTariff,
	}
}

func TestLoadMall(t *testing.T) {
	p := writeLines(t, "mall.csv", mallLines("fecha;hora;consumo", "1234,5"))

	m, err := LoadMall(p, mallOpts(true))
	require.NoError(t, err)
	assert.Equal(t, 1234.5, m.KWh[0])
	assert.True(t, m.Peak[20])

	_, err = LoadMall(p, mallOpts(false))
	assert.Equal(t, fault.KindInputSchemaError, fault.KindOf(err), "fallback disabled")

	p = writeLines(t, "mall.csv", mallLines("fecha;hora;mall_demand_kwh", "0"))
	_, err = LoadMall(p, mallOpts(false))
	assert.Equal(t, fault.KindInputValueError, fault.KindOf(err), "demand must be strictly positive")
}

func TestLoadBESS(t *testing.T) {
	p := writeLines(t, "bess.json", []string{`{"capacity_kWh": 1700, "power_kW": 400, "efficiency": 0.95, "soc_min": 0.2}`})
	b, err := LoadBESS(p)
	require.NoError(t, err)
	assert.Equal(t, 1.0, b.MaxSOC)
	assert.Equal(t, 0.2, b.InitialSOC)

	p = writeLines(t, "bess.json", []string{`{"capacity_kWh": 1700, "power_kW": 400}`})
	_, err = LoadBESS(p)
	assert.Equal(t, fault.KindInputSchemaError, fault.KindOf(err))

	p = writeLines(t, "bess.json", []string{`{"capacity_kWh": 1700, "power_kW": 400, "efficiency": 1.3, "soc_min": 0.2}`})
	_, err = LoadBESS(p)
	assert.Equal(t, fault.KindInputValueError, fault.KindOf(err))
}

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}
