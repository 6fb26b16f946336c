package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"iquitos-ems/internal/config"
	"iquitos-ems/internal/synth"
)

// Demo:
// - Write a synthetic Iquitos year (PV, EV sockets, mall, BESS nameplate)
// - Write a config.yaml pointing at it, with outputs under the same directory
// - Print the commands that run the pipeline on it
func main() {
	dir := pflag.String("dir", "demo", "directory to write the inputs and config into")
	episodes := pflag.Int("episodes", 2, "training episodes in the generated config")
	pflag.Parse()

	abs, err := filepath.Abs(*dir)
	if err != nil {
		fail(err)
	}
	cfgPath, err := writeDemo(abs, *episodes)
	if err != nil {
		fail(err)
	}

	fmt.Printf("Wrote synthetic inputs and %s\n\n", cfgPath)
	fmt.Println("Next:")
	for _, sub := range []string{"balance", "build", "baseline", "train --progress", "compare"} {
		fmt.Printf("  ems %s --config %s\n", sub, cfgPath)
	}
}

func writeDemo(dir string, episodes int) (string, error) {
	files, err := synth.WriteInputs(filepath.Join(dir, "inputs"), synth.Iquitos())
	if err != nil {
		return "", err
	}
	cfg, err := config.Default()
	if err != nil {
		return "", err
	}
	cfg.OE2.Inputs.PVFile = files.PV
	cfg.OE2.Inputs.EVFile = files.EV
	cfg.OE2.Inputs.MallFile = files.Mall
	cfg.OE2.Inputs.BESSFile = files.BESS
	cfg.OE3.DatasetDir = filepath.Join(dir, "citylearn")
	cfg.OE3.Training.Episodes = episodes
	cfg.OE3.Training.OutputDir = filepath.Join(dir, "outputs")
	cfg.OE3.Training.CheckpointDir = filepath.Join(dir, "checkpoints")
	cfg.OE3.Training.MetricsDB = filepath.Join(dir, "runs.db")
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	path := filepath.Join(dir, "config.yaml")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := cfg.Dump(f); err != nil {
		return "", err
	}
	return path, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
