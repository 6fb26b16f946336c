package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

const (
	JSONFile = "comparison.json"
	CSVFile  = "comparison.csv"
)

// Write stores the comparison as comparison.json and comparison.csv in dir.
func Write(dir string, c *Comparison) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, JSONFile), append(raw, '\n'), 0o644); err != nil {
		return err
	}
	return WriteCSV(filepath.Join(dir, CSVFile), c)
}

func WriteCSV(path string, c *Comparison) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"rank",
		"agent",
		"episodes",
		"carbon_kg",
		"carbon_delta_kg",
		"carbon_delta_pct",
		"grid_import_kwh",
		"grid_import_delta_kwh",
		"grid_import_delta_pct",
		"grid_import_p05_kwh",
		"grid_import_p50_kwh",
		"grid_import_p95_kwh",
		"grid_export_kwh",
		"solar_kwh",
		"ev_charging_kwh",
		"ev_satisfaction",
		"ev_satisfaction_delta",
		"co2_avoided_indirect_kg",
		"co2_avoided_direct_kg",
		"cost",
		"reward_mean",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range c.Rows {
		row := []string{
			strconv.Itoa(r.Rank),
			r.Agent,
			strconv.Itoa(r.Episodes),
			fmtFloat(r.CarbonKg),
			fmtFloat(r.CarbonDeltaKg),
			fmtFloat(r.CarbonDeltaPct),
			fmtFloat(r.GridImportKWh),
			fmtFloat(r.GridImportDeltaKWh),
			fmtFloat(r.GridImportDeltaPct),
			fmtFloat(r.GridImportP05),
			fmtFloat(r.GridImportP50),
			fmtFloat(r.GridImportP95),
			fmtFloat(r.GridExportKWh),
			fmtFloat(r.SolarKWh),
			fmtFloat(r.EVChargingKWh),
			fmtFloat(r.EVSatisfaction),
			fmtFloat(r.EVSatisfactionDelta),
			fmtFloat(r.CO2AvoidedIndirect),
			fmtFloat(r.CO2AvoidedDirect),
			fmtFloat(r.Cost),
			fmtFloat(r.RewardMean),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
