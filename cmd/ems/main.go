package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"iquitos-ems/internal/config"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return fault.ExitInput
	}
	cmds := map[string]func([]string) error{
		"balance":  cmdBalance,
		"build":    cmdBuild,
		"train":    cmdTrain,
		"baseline": cmdBaseline,
		"compare":  cmdCompare,
		"presets":  cmdPresets,
	}
	cmd, ok := cmds[args[0]]
	if !ok {
		usage(stderr)
		return fault.ExitInput
	}
	err := cmd(args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return fault.ExitOK
	}
	if err != nil {
		reportError(stderr, err)
	}
	return fault.ExitCode(err)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  ems balance  --config config.yaml [--out outputs/balance/ledger.csv] [--passive]")
	fmt.Fprintln(w, "  ems build    --config config.yaml")
	fmt.Fprintln(w, "  ems train    --config config.yaml [--agents sac,ppo,a2c] [--episodes N] [--metrics-addr :9100] [--progress]")
	fmt.Fprintln(w, "  ems baseline --config config.yaml [--policies uncontrolled,fixed_schedule,rbc] [--episodes 1]")
	fmt.Fprintln(w, "  ems compare  --config config.yaml")
	fmt.Fprintln(w, "  ems presets")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "exit codes: 0 ok, 1 input/config, 2 dispatch infeasible, 3 training failure")
}

// reportError prints "<Kind>: message" and a diagnostic block for the kinds that
// carry structured fields.
func reportError(w io.Writer, err error) {
	fmt.Fprintln(w, err)
	var di *fault.DispatchInfeasible
	if errors.As(err, &di) {
		fmt.Fprintf(w, "  hour:          %d (hour of day %d)\n", di.Hour, di.Hour%24)
		fmt.Fprintf(w, "  soc:           %.6f\n", di.SOC)
		fmt.Fprintf(w, "  ev_residual:   %.3f kWh\n", di.EVResidual)
		fmt.Fprintf(w, "  mall_residual: %.3f kWh\n", di.MallResidual)
		return
	}
	var ce *fault.ConfigError
	if errors.As(err, &ce) {
		fmt.Fprintf(w, "  field: %s\n", ce.Field)
		return
	}
	var ck *fault.CheckpointIOError
	if errors.As(err, &ck) {
		fmt.Fprintf(w, "  checkpoint: %s\n", ck.Path)
	}
}

// common holds the flags every pipeline subcommand takes.
type common struct {
	configPath string
	logLevel   string
	pretty     bool
}

func (c *common) register(fs *pflag.FlagSet) {
	fs.StringVarP(&c.configPath, "config", "c", "config.yaml", "path to the YAML configuration")
	fs.StringVar(&c.logLevel, "log-level", "info", "zerolog level")
	fs.BoolVar(&c.pretty, "pretty", false, "human-readable logs instead of JSON")
}

func (c *common) setup() (*config.Config, error) {
	if err := logging.Setup(c.logLevel, c.pretty, os.Stdout); err != nil {
		return nil, fault.Config("--log-level", "%v", err)
	}
	return config.Load(c.configPath)
}
