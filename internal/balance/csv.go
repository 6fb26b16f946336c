package balance

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"
)

// WriteLedgerCSV writes one row per hour with every flow of the ledger.
func WriteLedgerCSV(path string, ledger []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"hour",
		"hour_of_day",
		"day_of_year",
		"is_peak",
		"pv_generation",
		"ev_demand",
		"mall_demand",
		"pv_to_ev",
		"pv_to_bess",
		"pv_to_mall",
		"pv_to_grid",
		"bess_to_ev",
		"bess_to_mall",
		"grid_to_ev",
		"grid_to_mall",
		"bess_charge",
		"bess_discharge",
		"bess_mode",
		"soc",
		"co2_grid_kg",
		"co2_avoided_indirect_kg",
		"co2_avoided_direct_kg",
		"tariff",
		"grid_cost",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range ledger {
		row := []string{
			strconv.Itoa(r.Hour),
			strconv.Itoa(r.HourOfDay),
			strconv.Itoa(r.DayOfYear),
			strconv.FormatBool(r.Peak),
			fmtFloat(r.PV),
			fmtFloat(r.EVDemand),
			fmtFloat(r.MallDemand),
			fmtFloat(r.PVToEV),
			fmtFloat(r.PVToBESS),
			fmtFloat(r.PVToMall),
			fmtFloat(r.PVToGrid),
			fmtFloat(r.BESSToEV),
			fmtFloat(r.BESSToMall),
			fmtFloat(r.GridToEV),
			fmtFloat(r.GridToMall),
			fmtFloat(r.BESSCharge),
			fmtFloat(r.BESSDischarge),
			string(r.Mode),
			fmtFloat(r.SOCEnd),
			fmtFloat(r.GridKg),
			fmtFloat(r.AvoidedIndirectKg),
			fmtFloat(r.AvoidedDirectKg),
			fmtFloat(r.Tariff),
			fmtFloat(r.GridCost),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// Summary is the JSON companion of the ledger CSV.
type Summary struct {
	Hours       int     `json:"hours"`
	InitialSOC  float64 `json:"initial_soc"`
	FinalSOC    float64 `json:"final_soc"`
	Mode        string  `json:"dispatch_mode"`
	Totals      Totals  `json:"totals"`
	ThresholdKW float64 `json:"peak_threshold_kW"`
}

// NewSummary packages a result for the results API.
func NewSummary(res *Result, opts Options) Summary {
	s := Summary{
		Hours:       len(res.Ledger),
		FinalSOC:    res.FinalSOC,
		Mode:        string(opts.Mode),
		Totals:      res.Totals,
		ThresholdKW: opts.PeakThresholdKW,
	}
	if len(res.Ledger) > 0 {
		s.InitialSOC = res.Ledger[0].SOCStart
	}
	return s
}

func WriteSummary(path string, s Summary) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

func ReadSummary(path string) (Summary, error) {
	var s Summary
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(raw, &s)
	return s, err
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
