// Package env wraps the inner CityLearn-style environment: it flattens the
// per-building lists, validates and clips actions, extracts the physical
// metrics of each step and owns the multi-objective reward.
package env

import (
	"fmt"
	"math"

	"iquitos-ems/internal/citylearn"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
	"iquitos-ems/internal/reward"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// Info is what a step reports besides the observation and the reward.
type Info struct {
	Step       int
	Metrics    reward.Metrics
	Components reward.Components
	// Raw is the inner environment's info map, untouched.
	Raw map[string]float64
	// Episode is set on the last step of an episode.
	Episode *EpisodeTotals
}

// Env is the flat (obs, reward, done, info) interface used by agents and
// baselines. It is not safe for concurrent use.
type Env struct {
	inner  citylearn.Environment
	reward *reward.MultiObjective
	steps  int
	obsDim int
	actDim int

	t      int
	acc    EpisodeAccumulator
	warned map[string]bool
}

// New wraps inner. The episode length is the full simulated year.
func New(inner citylearn.Environment, r *reward.MultiObjective) (*Env, error) {
	return NewWithHorizon(inner, r, model.HoursPerYear)
}

// NewWithHorizon is New with an explicit episode length.
func NewWithHorizon(inner citylearn.Environment, r *reward.MultiObjective, steps int) (*Env, error) {
	if inner == nil || r == nil {
		return nil, fmt.Errorf("env: inner environment and reward are required")
	}
	on, an := inner.ObservationNames(), inner.ActionNames()
	if len(on) == 0 || len(an) == 0 {
		return nil, fault.ObservationShape(0, len(citylearn.GlobalObservations))
	}
	e := &Env{inner: inner, reward: r, steps: steps, warned: map[string]bool{}}
	for _, names := range on {
		e.obsDim += len(names)
	}
	for _, names := range an {
		e.actDim += len(names)
	}
	return e, nil
}

func (e *Env) ObservationDim() int             { return e.obsDim }
func (e *Env) ActionDim() int                  { return e.actDim }
func (e *Env) Horizon() int                    { return e.steps }
func (e *Env) Reward() *reward.MultiObjective  { return e.reward }
func (e *Env) Inner() citylearn.Environment    { return e.inner }
func (e *Env) Accumulator() EpisodeAccumulator { return e.acc }

// ActionBounds returns the per-dimension limits: [-1, 1] for the battery
// setpoint, [0, 1] for every socket.
func (e *Env) ActionBounds() (lo, hi []float64) {
	lo = make([]float64, e.actDim)
	hi = make([]float64, e.actDim)
	for i := range lo {
		hi[i] = 1
	}
	if e.actDim > 0 {
		lo[0] = -1
	}
	return lo, hi
}

// Reset starts a new episode and returns the flat observation.
func (e *Env) Reset() ([]float64, error) {
	e.t = 0
	e.acc.Reset()
	clear(e.warned)
	return e.flatten(e.inner.Reset())
}

// Step applies one action. done is true on the last hour only.
func (e *Env) Step(action []float64) ([]float64, float64, bool, Info, error) {
	clipped, err := e.clip(action)
	if err != nil {
		return nil, 0, false, Info{}, err
	}

	obs, rewards, done, raw, err := e.inner.Step(e.unflatten(clipped))
	if err != nil {
		return nil, 0, false, Info{}, fmt.Errorf("step %d: %w", e.t, err)
	}
	flat, err := e.flatten(obs)
	if err != nil {
		return nil, 0, false, Info{}, err
	}
	e.t++
	if done != (e.t == e.steps) {
		if e.t < e.steps {
			return nil, 0, false, Info{}, fmt.Errorf("inner environment ended at step %d, want %d", e.t, e.steps)
		}
		done = true
	}

	m := e.extract(raw)
	total, comps := e.reward.Compute(m)
	if raw != nil && len(rewards) > 0 {
		raw["inner_reward"] = stat.Mean(rewards, nil)
	}
	e.acc.Add(m, comps)

	info := Info{Step: e.t, Metrics: m, Components: comps, Raw: raw}
	if done {
		tot := e.acc.Totals()
		info.Episode = &tot
	}
	return flat, total, done, info, nil
}

func (e *Env) clip(action []float64) ([]float64, error) {
	if len(action) != e.actDim {
		return nil, fault.InvalidAction("got %d values, want %d", len(action), e.actDim)
	}
	out := make([]float64, len(action))
	for i, v := range action {
		if math.IsNaN(v) {
			return nil, fault.InvalidAction("NaN at index %d", i)
		}
		lo := 0.0
		if i == 0 {
			lo = -1
		}
		out[i] = model.Clamp(v, lo, 1)
	}
	return out, nil
}

func (e *Env) unflatten(a []float64) [][]float64 {
	names := e.inner.ActionNames()
	out := make([][]float64, len(names))
	off := 0
	for i, n := range names {
		out[i] = a[off : off+len(n)]
		off += len(n)
	}
	return out
}

func (e *Env) flatten(obs [][]float64) ([]float64, error) {
	out := make([]float64, 0, e.obsDim)
	for _, o := range obs {
		out = append(out, o...)
	}
	if len(out) != e.obsDim {
		return nil, fault.ObservationShape(len(out), e.obsDim)
	}
	return out, nil
}

// Metric keys of the inner info map and their defaults when missing.
var metricDefaults = []struct {
	key string
	def float64
}{
	{"grid_import", 0},
	{"grid_export", 0},
	{"solar_generation", 0},
	{"ev_delivered", 0},
	{"ev_soc_avg", 0},
	{"bess_soc", 0.5},
	{"ev_demand", 0},
	{"mall_demand", 100},
	{"pv_to_grid", 0},
	{"pv_to_ev", 0},
	{"bess_to_ev", 0},
}

func (e *Env) extract(raw map[string]float64) reward.Metrics {
	v := make(map[string]float64, len(metricDefaults))
	for _, md := range metricDefaults {
		v[md.key] = e.metric(raw, md.key, md.def)
	}
	hour := (e.t - 1) % 24
	if h, ok := raw["hour"]; ok {
		hour = int(h)
	} else {
		e.warn("hour", float64(hour))
	}
	return reward.Metrics{
		GridImport: v["grid_import"],
		GridExport: v["grid_export"],
		Solar:      v["solar_generation"],
		EVCharging: v["ev_delivered"],
		EVSOCAvg:   v["ev_soc_avg"],
		BESSSOC:    v["bess_soc"],
		Hour:       hour,
		EVDemand:   v["ev_demand"],
		MallDemand: v["mall_demand"],
		PVToGrid:   v["pv_to_grid"],
		PVToEV:     v["pv_to_ev"],
		BESSToEV:   v["bess_to_ev"],
	}
}

func (e *Env) metric(raw map[string]float64, key string, def float64) float64 {
	if v, ok := raw[key]; ok && !math.IsNaN(v) {
		return v
	}
	e.warn(key, def)
	return def
}

// warn logs a MetricExtractionWarning at most once per episode per metric.
func (e *Env) warn(key string, def float64) {
	if e.warned[key] {
		return
	}
	e.warned[key] = true
	log.Warn().
		Str("component", "env").
		Int("step", e.t).
		Err(&fault.MetricExtractionWarning{Metric: key, Default: def}).
		Msg("metric missing from step info; using default")
}

// Warned lists the metrics that fell back to a default this episode.
func (e *Env) Warned() []string {
	out := make([]string, 0, len(e.warned))
	for _, md := range metricDefaults {
		if e.warned[md.key] {
			out = append(out, md.key)
		}
	}
	if e.warned["hour"] {
		out = append(out, "hour")
	}
	return out
}
