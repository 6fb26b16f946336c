// Package report ranks result bundles against the uncontrolled baseline.
// It only reads bundles; nothing is re-simulated.
package report

import (
	"math"
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/training"
)

// Reference is the bundle deltas are measured against.
const Reference = "uncontrolled"

// Row is one agent in the comparison.
type Row struct {
	Rank               int     `json:"rank"`
	Agent              string  `json:"agent"`
	Episodes           int     `json:"episodes"`
	CarbonKg           float64 `json:"carbon_kg"`
	GridImportKWh      float64 `json:"grid_import_kwh"`
	GridExportKWh      float64 `json:"grid_export_kwh"`
	SolarKWh           float64 `json:"solar_kwh"`
	EVChargingKWh      float64 `json:"ev_charging_kwh"`
	EVSatisfaction     float64 `json:"ev_satisfaction"`
	CO2AvoidedIndirect float64 `json:"co2_avoided_indirect_kg"`
	CO2AvoidedDirect   float64 `json:"co2_avoided_direct_kg"`
	Cost               float64 `json:"cost"`
	RewardMean         float64 `json:"reward_mean"`

	CarbonDeltaKg       float64 `json:"carbon_delta_kg"`
	CarbonDeltaPct      float64 `json:"carbon_delta_pct"`
	GridImportDeltaKWh  float64 `json:"grid_import_delta_kwh"`
	GridImportDeltaPct  float64 `json:"grid_import_delta_pct"`
	EVSatisfactionDelta float64 `json:"ev_satisfaction_delta"`

	GridImportP05 float64 `json:"grid_import_p05_kwh"`
	GridImportP50 float64 `json:"grid_import_p50_kwh"`
	GridImportP95 float64 `json:"grid_import_p95_kwh"`
}

type Comparison struct {
	Fingerprint string   `json:"dataset_fingerprint"`
	Reference   string   `json:"reference"`
	Rows        []Row    `json:"rows"`
	Skipped     []string `json:"skipped"`
}

// Compare ranks completed bundles by carbon, lowest first. Bundles from
// different datasets are rejected.
func Compare(bundles []*training.ResultBundle) (*Comparison, error) {
	c := &Comparison{Skipped: []string{}}
	done := lo.Filter(bundles, func(b *training.ResultBundle, _ int) bool {
		if b.Status != training.StatusCompleted {
			c.Skipped = append(c.Skipped, b.Agent)
			return false
		}
		return true
	})
	for _, b := range done {
		if c.Fingerprint == "" {
			c.Fingerprint = b.Fingerprint
			continue
		}
		if b.Fingerprint != c.Fingerprint {
			return nil, fault.InputValue("result bundles", "%s was trained on dataset %s, others on %s", b.Agent, short(b.Fingerprint), short(c.Fingerprint))
		}
	}

	c.Rows = lo.Map(done, func(b *training.ResultBundle, _ int) Row { return newRow(b) })
	sort.SliceStable(c.Rows, func(i, j int) bool {
		if c.Rows[i].CarbonKg != c.Rows[j].CarbonKg {
			return c.Rows[i].CarbonKg < c.Rows[j].CarbonKg
		}
		return c.Rows[i].Agent < c.Rows[j].Agent
	})
	ref, ok := lo.Find(c.Rows, func(r Row) bool { return r.Agent == Reference })
	if ok {
		c.Reference = Reference
	}
	for i := range c.Rows {
		r := &c.Rows[i]
		r.Rank = i + 1
		if !ok {
			continue
		}
		r.CarbonDeltaKg = r.CarbonKg - ref.CarbonKg
		r.CarbonDeltaPct = pct(r.CarbonDeltaKg, ref.CarbonKg)
		r.GridImportDeltaKWh = r.GridImportKWh - ref.GridImportKWh
		r.GridImportDeltaPct = pct(r.GridImportDeltaKWh, ref.GridImportKWh)
		r.EVSatisfactionDelta = r.EVSatisfaction - ref.EVSatisfaction
	}
	return c, nil
}

func newRow(b *training.ResultBundle) Row {
	t := b.Totals
	r := Row{
		Agent:              b.Agent,
		Episodes:           len(b.EpisodeStats),
		CarbonKg:           t.CarbonKg,
		GridImportKWh:      t.GridImportKWh,
		GridExportKWh:      t.GridExportKWh,
		SolarKWh:           t.SolarKWh,
		EVChargingKWh:      t.EVChargingKWh,
		EVSatisfaction:     t.EVSatisfaction(),
		CO2AvoidedIndirect: t.CO2AvoidedIndirect,
		CO2AvoidedDirect:   t.CO2AvoidedDirect,
		Cost:               t.Cost,
		RewardMean:         b.ComponentMeans["reward_total"],
	}
	imports := lo.Map(b.EpisodeStats, func(e training.EpisodeSummary, _ int) float64 { return e.GridImportKWh })
	if len(imports) > 0 {
		sort.Float64s(imports)
		r.GridImportP05 = stat.Quantile(0.05, stat.Empirical, imports, nil)
		r.GridImportP50 = stat.Quantile(0.50, stat.Empirical, imports, nil)
		r.GridImportP95 = stat.Quantile(0.95, stat.Empirical, imports, nil)
	}
	return r
}

func pct(delta, base float64) float64 {
	if base == 0 || math.IsNaN(base) {
		return 0
	}
	return 100 * delta / base
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
