package main

import (
	"path/filepath"

	"github.com/spf13/pflag"

	"iquitos-ems/internal/logging"
	"iquitos-ems/internal/report"
	"iquitos-ems/internal/training"
)

func cmdCompare(args []string) error {
	fs := pflag.NewFlagSet("compare", pflag.ContinueOnError)
	var c common
	c.register(fs)
	out := fs.String("out", "", "output directory (default <output_dir>/comparison)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := c.setup()
	if err != nil {
		return err
	}
	bundles, err := training.ReadBundles(cfg.OE3.Training.OutputDir)
	if err != nil {
		return err
	}
	cmp, err := report.Compare(bundles)
	if err != nil {
		return err
	}
	dir := *out
	if dir == "" {
		dir = filepath.Join(cfg.OE3.Training.OutputDir, "comparison")
	}
	if err := report.Write(dir, cmp); err != nil {
		return err
	}
	log := logging.Component("compare")
	for _, r := range cmp.Rows {
		log.Info().
			Int("rank", r.Rank).
			Str("agent", r.Agent).
			Float64("carbon_kg", r.CarbonKg).
			Float64("carbon_delta_pct", r.CarbonDeltaPct).
			Float64("ev_satisfaction_delta", r.EVSatisfactionDelta).
			Msg("ranked")
	}
	log.Info().Str("dir", dir).Strs("skipped", cmp.Skipped).Msg("comparison written")
	return nil
}
