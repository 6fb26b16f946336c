package synth

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"iquitos-ems/internal/model"
)

// Files are the paths written by WriteInputs.
type Files struct {
	PV   string
	EV   string
	Mall string
	BESS string
}

// WriteInputs writes the four inputs in their on-disk formats: comma CSVs
// for PV and EV, a semicolon CSV for the mall and a JSON BESS nameplate.
func WriteInputs(dir string, in *model.Inputs) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, err
	}
	files := Files{
		PV:   filepath.Join(dir, "pv_generation.csv"),
		EV:   filepath.Join(dir, "ev_chargers.csv"),
		Mall: filepath.Join(dir, "mall_demand.csv"),
		BESS: filepath.Join(dir, "bess.json"),
	}

	pvRows := [][]string{{"hour", "potencia_kw"}}
	for h, v := range in.PV {
		pvRows = append(pvRows, []string{strconv.Itoa(h), fmtFloat(v)})
	}
	if err := writeCSV(files.PV, ',', pvRows); err != nil {
		return Files{}, err
	}

	header := []string{"hour"}
	for _, s := range in.EV.Sockets {
		header = append(header, s.Name+"_charger_power_kw")
	}
	evRows := [][]string{header}
	for h, row := range in.EV.KWh {
		rec := []string{strconv.Itoa(h)}
		for _, v := range row {
			rec = append(rec, fmtFloat(v))
		}
		evRows = append(evRows, rec)
	}
	if err := writeCSV(files.EV, ',', evRows); err != nil {
		return Files{}, err
	}

	mallRows := [][]string{{"fecha", "hora", "kwh"}}
	for h, v := range in.Mall.KWh {
		t := in.Calendar.Time(model.HourIndex(h))
		mallRows = append(mallRows, []string{t.Format("2006-01-02"), t.Format("15:04"), fmtFloat(v)})
	}
	if err := writeCSV(files.Mall, ';', mallRows); err != nil {
		return Files{}, err
	}

	raw, err := json.MarshalIndent(map[string]float64{
		"capacity_kWh": in.BESS.CapacityKWh,
		"power_kW":     in.BESS.PowerKW,
		"efficiency":   in.BESS.Efficiency,
		"soc_min":      in.BESS.MinSOC,
		"soc_max":      in.BESS.MaxSOC,
	}, "", "  ")
	if err != nil {
		return Files{}, err
	}
	if err := os.WriteFile(files.BESS, raw, 0o644); err != nil {
		return Files{}, err
	}
	return files, nil
}

func writeCSV(path string, comma rune, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Comma = comma
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
