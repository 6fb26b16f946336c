package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"iquitos-ems/internal/reward"
)

func cmdPresets(args []string) error {
	fs := pflag.NewFlagSet("presets", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%-12s %6s %6s %6s %6s %6s\n", "preset", "co2", "cost", "solar", "ev", "grid")
	for _, name := range reward.PresetNames() {
		w, err := reward.Preset(name)
		if err != nil {
			return err
		}
		mark := ""
		if name == reward.DefaultPreset {
			mark = " (default)"
		}
		fmt.Fprintf(os.Stdout, "%-12s %6.2f %6.2f %6.2f %6.2f %6.2f%s\n", name, w.CO2, w.Cost, w.Solar, w.EV, w.Grid, mark)
	}
	return nil
}
