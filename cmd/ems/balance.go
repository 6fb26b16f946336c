package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"iquitos-ems/internal/balance"
	"iquitos-ems/internal/dataset"
	"iquitos-ems/internal/logging"
)

const summaryFile = "summary.json"

func cmdBalance(args []string) error {
	fs := pflag.NewFlagSet("balance", pflag.ContinueOnError)
	var c common
	c.register(fs)
	out := fs.String("out", "", "ledger CSV path (default <output_dir>/balance/ledger.csv)")
	passive := fs.Bool("passive", false, "keep the battery idle")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := c.setup()
	if err != nil {
		return err
	}
	log := logging.Component("balance")

	in, err := dataset.Load(cfg)
	if err != nil {
		return err
	}
	opts := balance.OptionsFromConfig(cfg)
	if *passive {
		opts.Mode = balance.ModePassive
	}
	res, err := balance.New(opts).Run(in)
	if err != nil {
		return err
	}
	if err := balance.Verify(res, in.BESS); err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = filepath.Join(cfg.OE3.Training.OutputDir, "balance", "ledger.csv")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := balance.WriteLedgerCSV(path, res.Ledger); err != nil {
		return err
	}
	summary := filepath.Join(filepath.Dir(path), summaryFile)
	if err := balance.WriteSummary(summary, balance.NewSummary(res, opts)); err != nil {
		return err
	}

	t := res.Totals
	log.Info().
		Str("ledger", path).
		Str("summary", summary).
		Str("mode", string(opts.Mode)).
		Float64("pv_kwh", t.PV).
		Float64("grid_import_kwh", t.GridImport).
		Float64("grid_export_kwh", t.GridExport).
		Float64("co2_grid_kg", t.GridKg).
		Float64("closure_ratio", t.ClosureRatio).
		Str("grid_cost", t.GridCost.StringFixed(2)).
		Float64("final_soc", res.FinalSOC).
		Msg("balance complete")
	return nil
}
