// Package training drives agents and baselines through the environment,
// checkpoints them and writes one result bundle per run.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"iquitos-ems/internal/agent"
	"iquitos-ems/internal/config"
	"iquitos-ems/internal/env"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/logging"
	"iquitos-ems/internal/reward"
	"iquitos-ems/internal/telemetry"
)

// Recorder persists episode and checkpoint rows; nil disables it.
type Recorder interface {
	RecordEpisode(runID, agentName string, s EpisodeSummary) error
	RecordCheckpoint(runID, agentName string, step int, path string) error
}

// Progress is reported after every step.
type Progress struct {
	Agent      string
	Step       int
	Total      int
	Episode    int
	RewardMean float64
}

// Spec describes one run.
type Spec struct {
	Agent agent.Agent
	Env   *env.Env

	Episodes int
	// Steps overrides Episodes × horizon when positive.
	Steps int
	Seed  uint64

	Weights     reward.Weights
	Fingerprint string

	CheckpointDir   string
	CheckpointEvery int
	Retain          bool
	OutputDir       string
	Window          int

	Recorder Recorder
	Metrics  *telemetry.Metrics
	Progress func(Progress)
}

// SpecFromConfig fills the run settings from oe3.training.
func SpecFromConfig(cfg *config.Config, a agent.Agent, e *env.Env, w reward.Weights, fingerprint string) Spec {
	t := cfg.OE3.Training
	return Spec{
		Agent:           a,
		Env:             e,
		Episodes:        t.Episodes,
		Seed:            t.Seed,
		Weights:         w,
		Fingerprint:     fingerprint,
		CheckpointDir:   t.CheckpointDir,
		CheckpointEvery: t.CheckpointFreqSteps,
		Retain:          t.Retain(),
		OutputDir:       t.OutputDir,
		Window:          t.MovingAverageWindow,
	}
}

func (s Spec) total() int {
	if s.Steps > 0 {
		return s.Steps
	}
	return max(1, s.Episodes) * s.Env.Horizon()
}

// run is the mutable state of one Run call.
type run struct {
	spec   Spec
	name   string
	log    zerolog.Logger
	runID  string
	ck     *Checkpointer
	stats  *reward.Stats
	reward *movingWindow
	comps  map[string]*movingWindow

	episodes  []EpisodeSummary
	last      env.EpisodeTotals
	step      int
	lastCkpt  string
	stepErr   error
	startedAt time.Time
}

// Run trains (or, for baselines, evaluates) spec.Agent and writes its
// result bundle. A cancelled context flushes a checkpoint, writes the bundle
// with status "cancelled" and returns it together with the context error.
// Any other failure returns a TrainingFailed error and no bundle.
func Run(ctx context.Context, spec Spec) (*ResultBundle, error) {
	if spec.Agent == nil || spec.Env == nil {
		return nil, errors.New("training spec needs an agent and an environment")
	}
	name := spec.Agent.Name()
	log := logging.Component("training").With().Str("agent", name).Logger()
	r := &run{
		spec:      spec,
		name:      name,
		log:       log,
		runID:     RunID(name, spec.Seed, spec.Fingerprint),
		ck:        NewCheckpointer(spec.CheckpointDir, name, spec.Retain),
		stats:     reward.NewStats(),
		reward:    newMovingWindow(spec.Window),
		comps:     make(map[string]*movingWindow, 5),
		startedAt: time.Now(),
	}
	for _, k := range reward.Names {
		r.comps[k] = newMovingWindow(spec.Window)
	}
	total := spec.total()
	log.Info().Str("run_id", r.runID).Int("steps", total).Uint64("seed", spec.Seed).Msg("run started")

	err := spec.Agent.Learn(ctx, spec.Env, total, r.onStep)
	if r.stepErr != nil {
		return nil, &fault.TrainingFailed{Agent: name, Err: r.stepErr}
	}
	status := StatusCompleted
	switch {
	case err == nil:
		path, ferr := r.ck.Final(r.meta(), spec.Agent)
		if ferr != nil {
			return nil, &fault.TrainingFailed{Agent: name, Err: ferr}
		}
		r.checkpointWritten(path)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		status = StatusCancelled
		path, ferr := r.ck.Step(r.meta(), spec.Agent)
		if ferr != nil {
			return nil, &fault.TrainingFailed{Agent: name, Err: ferr}
		}
		r.checkpointWritten(path)
	default:
		return nil, &fault.TrainingFailed{Agent: name, Err: err}
	}

	b := r.bundle(status)
	if spec.OutputDir != "" {
		if werr := WriteBundle(BundlePath(spec.OutputDir, name), b); werr != nil {
			return nil, &fault.TrainingFailed{Agent: name, Err: werr}
		}
	}
	log.Info().
		Str("status", status).
		Int("steps", b.Steps).
		Float64("carbon_kg", b.Totals.CarbonKg).
		Float64("wall_time_s", b.WallTimeS).
		Msg("run finished")
	if status == StatusCancelled {
		return b, fmt.Errorf("%s run cancelled at step %d: %w", name, r.step, err)
	}
	return b, nil
}

// RunAll runs specs in order and stops at the first failure.
func RunAll(ctx context.Context, specs []Spec) ([]*ResultBundle, error) {
	out := make([]*ResultBundle, 0, len(specs))
	for _, s := range specs {
		b, err := Run(ctx, s)
		if b != nil {
			out = append(out, b)
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (r *run) meta() CheckpointMeta {
	return CheckpointMeta{
		Agent:       r.name,
		Step:        r.step,
		Episode:     len(r.episodes),
		Seed:        r.spec.Seed,
		Fingerprint: r.spec.Fingerprint,
	}
}

func (r *run) onStep(ev agent.StepEvent) bool {
	r.step = ev.Step
	c := ev.Info.Components
	r.stats.Add(c)
	r.reward.Add(ev.Reward)
	terms := c.Terms()
	for i, k := range reward.Names {
		r.comps[k].Add(terms[i])
	}
	mean, _ := r.reward.MeanStd()

	if ep := ev.Info.Episode; ep != nil {
		s := EpisodeSummary{
			Episode:        ev.Episode,
			EVSatisfaction: ep.EVSatisfaction(),
			EpisodeTotals:  *ep,
		}
		if ep.Steps > 0 {
			s.RewardMean = ep.RewardSum / float64(ep.Steps)
		}
		r.episodes = append(r.episodes, s)
		r.last = *ep
		if r.spec.Recorder != nil {
			if err := r.spec.Recorder.RecordEpisode(r.runID, r.name, s); err != nil {
				r.stepErr = fmt.Errorf("record episode %d: %w", ev.Episode, err)
				return false
			}
		}
		if r.spec.Metrics != nil {
			r.spec.Metrics.ObserveEpisode(r.name, *ep)
		}
		r.log.Info().
			Int("episode", ev.Episode).
			Float64("reward_mean", s.RewardMean).
			Float64("carbon_kg", ep.CarbonKg).
			Float64("grid_import_kwh", ep.GridImportKWh).
			Float64("ev_satisfaction", s.EVSatisfaction).
			Msg("episode")
	}

	if every := r.spec.CheckpointEvery; every > 0 && ev.Step%every == 0 {
		path, err := r.ck.Step(r.meta(), r.spec.Agent)
		if err != nil {
			r.stepErr = err
			return false
		}
		r.checkpointWritten(path)
	}
	if r.spec.Metrics != nil {
		r.spec.Metrics.ObserveStep(r.name, ev.Step, mean)
	}
	if r.spec.Progress != nil {
		r.spec.Progress(Progress{Agent: r.name, Step: ev.Step, Total: r.spec.total(), Episode: ev.Episode, RewardMean: mean})
	}
	return true
}

func (r *run) checkpointWritten(path string) {
	r.lastCkpt = path
	if r.spec.Recorder == nil {
		return
	}
	if err := r.spec.Recorder.RecordCheckpoint(r.runID, r.name, r.step, path); err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("record checkpoint")
	}
}

func (r *run) bundle(status string) *ResultBundle {
	mean, std := r.reward.MeanStd()
	ma := MovingAverage{
		Window:     len(r.reward.buf),
		RewardMean: mean,
		RewardStd:  std,
		Components: make(map[string]float64, len(r.comps)),
	}
	for k, w := range r.comps {
		ma.Components[k], _ = w.MeanStd()
	}
	return &ResultBundle{
		RunID:           r.runID,
		Agent:           r.name,
		Status:          status,
		Seed:            r.spec.Seed,
		Episodes:        len(r.episodes),
		Steps:           r.step,
		WallTimeS:       time.Since(r.startedAt).Seconds(),
		FinalCheckpoint: r.lastCkpt,
		Hyperparameters: r.spec.Agent.Hyperparameters(),
		Weights:         r.spec.Weights,
		Fingerprint:     r.spec.Fingerprint,
		Totals:          r.last,
		ComponentMeans:  r.stats.Means(),
		MovingAverage:   ma,
		Pareto:          r.stats.Pareto(),
		EpisodeStats:    r.episodes,
	}
}
