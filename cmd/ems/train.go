package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/cheggaaa/pb.v1"

	"iquitos-ems/internal/agent"
	"iquitos-ems/internal/baseline"
	"iquitos-ems/internal/citylearn"
	"iquitos-ems/internal/config"
	"iquitos-ems/internal/env"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/logging"
	"iquitos-ems/internal/repository"
	"iquitos-ems/internal/reward"
	"iquitos-ems/internal/telemetry"
	"iquitos-ems/internal/training"
)

// session is the state shared by every run of one train/baseline command.
type session struct {
	cfg         *config.Config
	ds          *citylearn.Dataset
	fingerprint string
	weights     reward.Weights
	params      reward.Params
	repo        *repository.Repository
	metrics     *telemetry.Metrics
	progress    bool
}

func openSession(cfg *config.Config, metricsAddr string, progress bool) (*session, error) {
	dir := citylearn.ScenarioDir(cfg)
	ds, err := citylearn.LoadDataset(dir)
	if err != nil {
		return nil, err
	}
	fp, err := citylearn.Fingerprint(dir)
	if err != nil {
		return nil, err
	}
	w, err := reward.WeightsFromConfig(cfg.OE3.Reward)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:         cfg,
		ds:          ds,
		fingerprint: fp,
		weights:     w,
		params:      reward.ParamsFromConfig(cfg, ds.BESS().MinSOC),
		metrics:     telemetry.New(),
		progress:    progress,
	}
	if db := cfg.OE3.Training.MetricsDB; db != "" {
		repo, err := repository.New(db)
		if err != nil {
			return nil, fault.Config("oe3.training.metrics_db", "%v", err)
		}
		s.repo = repo
	}
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, s.metrics)
	}
	return s, nil
}

func (s *session) close() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *session) env() (*env.Env, error) {
	r, err := reward.New(s.weights, s.params)
	if err != nil {
		return nil, err
	}
	return env.FromDataset(s.ds, r)
}

// run executes one spec with the shared recorder, metrics and progress bar.
func (s *session) run(ctx context.Context, a agent.Agent, e *env.Env, episodes int) (*training.ResultBundle, error) {
	spec := training.SpecFromConfig(s.cfg, a, e, s.weights, s.fingerprint)
	spec.Episodes = episodes
	spec.Metrics = s.metrics
	if s.repo != nil {
		if err := s.repo.DeleteRun(training.RunID(a.Name(), spec.Seed, s.fingerprint)); err != nil {
			return nil, err
		}
		spec.Recorder = s.repo
	}
	var bar *pb.ProgressBar
	if s.progress {
		bar = pb.New(episodes * e.Horizon())
		bar.Output = os.Stderr
		bar.ShowSpeed = true
		bar.SetRefreshRate(500 * time.Millisecond)
		bar.Prefix(a.Name() + " ")
		bar.Start()
		spec.Progress = func(p training.Progress) {
			if p.Step%100 == 0 || p.Step == p.Total {
				bar.Set(p.Step)
			}
		}
	}
	b, err := training.Run(ctx, spec)
	if bar != nil {
		bar.Finish()
	}
	return b, err
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveMetrics(addr string, m *telemetry.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log := logging.Component("metrics")
		log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
	}
}

func splitNames(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cmdTrain(args []string) error {
	fs := pflag.NewFlagSet("train", pflag.ContinueOnError)
	var c common
	c.register(fs)
	agents := fs.String("agents", strings.Join(agent.Names, ","), "comma-separated learners to train, in order")
	episodes := fs.Int("episodes", 0, "override oe3.training.episodes")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address while training")
	progress := fs.Bool("progress", false, "show a progress bar on stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := c.setup()
	if err != nil {
		return err
	}
	if *episodes > 0 {
		cfg.OE3.Training.Episodes = *episodes
	}
	s, err := openSession(cfg, *metricsAddr, *progress)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signalContext()
	defer stop()
	log := logging.Component("train")
	for _, name := range splitNames(*agents) {
		e, err := s.env()
		if err != nil {
			return err
		}
		a, err := agent.New(name, cfg.OE3.Agent, agent.Options{
			Obs:      e.ObservationDim(),
			Act:      e.ActionDim(),
			Seed:     cfg.OE3.Training.Seed,
			Episodes: cfg.OE3.Training.Episodes,
		})
		if err != nil {
			return fault.Config("--agents", "%v", err)
		}
		b, err := s.run(ctx, a, e, cfg.OE3.Training.Episodes)
		if err != nil {
			return err
		}
		log.Info().Str("agent", name).Str("bundle", training.BundlePath(cfg.OE3.Training.OutputDir, name)).
			Float64("carbon_kg", b.Totals.CarbonKg).Msg("trained")
	}
	return nil
}

func cmdBaseline(args []string) error {
	fs := pflag.NewFlagSet("baseline", pflag.ContinueOnError)
	var c common
	c.register(fs)
	policies := fs.String("policies", strings.Join(baseline.Names, ","), "comma-separated baselines to evaluate")
	episodes := fs.Int("episodes", 1, "evaluation episodes per baseline")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := c.setup()
	if err != nil {
		return err
	}
	s, err := openSession(cfg, "", false)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signalContext()
	defer stop()
	layout := baseline.LayoutFromSchema(s.ds.Schema)
	log := logging.Component("baseline")
	for _, name := range splitNames(*policies) {
		e, err := s.env()
		if err != nil {
			return err
		}
		p, err := baseline.New(name, cfg, layout, s.weights)
		if err != nil {
			return err
		}
		b, err := s.run(ctx, p, e, max(1, *episodes))
		if err != nil {
			return err
		}
		log.Info().Str("policy", name).
			Float64("carbon_kg", b.Totals.CarbonKg).
			Float64("grid_import_kwh", b.Totals.GridImportKWh).
			Float64("ev_satisfaction", b.EVSatisfaction()).
			Msg("evaluated")
	}
	return nil
}
