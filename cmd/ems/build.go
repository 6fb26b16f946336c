package main

import (
	"github.com/spf13/pflag"

	"iquitos-ems/internal/balance"
	"iquitos-ems/internal/citylearn"
	"iquitos-ems/internal/dataset"
	"iquitos-ems/internal/logging"
	"iquitos-ems/internal/reward"
)

func cmdBuild(args []string) error {
	fs := pflag.NewFlagSet("build", pflag.ContinueOnError)
	var c common
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := c.setup()
	if err != nil {
		return err
	}
	w, err := reward.WeightsFromConfig(cfg.OE3.Reward)
	if err != nil {
		return err
	}

	in, err := dataset.Load(cfg)
	if err != nil {
		return err
	}
	opts := balance.OptionsFromConfig(cfg)
	res, err := balance.New(opts).Run(in)
	if err != nil {
		return err
	}
	if err := balance.Verify(res, in.BESS); err != nil {
		return err
	}

	dir := citylearn.ScenarioDir(cfg)
	schema, err := citylearn.Build(dir, in, res, citylearn.OptionsFromConfig(cfg, w.Map()))
	if err != nil {
		return err
	}
	fp, err := citylearn.Fingerprint(dir)
	if err != nil {
		return err
	}
	log := logging.Component("build")
	log.Info().
		Str("dir", dir).
		Int("steps", schema.Steps()).
		Int("observations", len(schema.Observations)).
		Int("actions", len(schema.Actions)).
		Str("fingerprint", fp).
		Msg("dataset built")
	return nil
}
