// Package baseline holds the non-learning reference policies. They satisfy
// agent.Agent so they run through the same environment, reward and result
// bundle as the learners; Learn is an evaluation run without updates.
package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"iquitos-ems/internal/agent"
	"iquitos-ems/internal/citylearn"
	"iquitos-ems/internal/config"
	"iquitos-ems/internal/env"
	"iquitos-ems/internal/model"
	"iquitos-ems/internal/reward"
)

// Names are the baselines in evaluation order.
var Names = []string{"uncontrolled", "fixed_schedule", "rbc"}

// decider maps an observation to an action.
type decider interface {
	decide(obs []float64) []float64
}

// policy adapts a decider to agent.Agent.
type policy struct {
	name   string
	params any
	d      decider
}

var _ agent.Agent = (*policy)(nil)

func (p *policy) Name() string { return p.name }

func (p *policy) Predict(obs []float64, _ bool) []float64 { return p.d.decide(obs) }

func (p *policy) Act(obs []float64) []float64 { return p.d.decide(obs) }

func (p *policy) Observe(agent.Transition) error { return nil }

func (p *policy) Learn(ctx context.Context, e agent.Environment, total int, cb agent.Callback) error {
	return agent.RunLoop(ctx, e, total, cb, p)
}

// Save writes the rule parameters; there is no learned state.
func (p *policy) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"name": p.name, "params": p.params})
}

func (p *policy) Load(r io.Reader) error {
	var v struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return err
	}
	if v.Name != p.name {
		return fmt.Errorf("snapshot is %s, policy is %s", v.Name, p.name)
	}
	return nil
}

func (p *policy) Hyperparameters() map[string]any {
	raw, err := json.Marshal(p.params)
	if err != nil {
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Layout is the part of the dataset schema a rule needs.
type Layout struct {
	Sockets []model.Socket
	BESS    model.BESSParams
	Open    int
	Close   int
}

func LayoutFromSchema(s *citylearn.Schema) Layout {
	return Layout{
		Sockets: s.Sockets(),
		BESS:    s.Buildings[0].BESS,
		Open:    s.OperatingHours[0],
		Close:   s.OperatingHours[1],
	}
}

type uncontrolled struct{ n int }

func (u uncontrolled) decide([]float64) []float64 {
	a := make([]float64, u.n+1)
	for i := 1; i <= u.n; i++ {
		a[i] = 1
	}
	return a
}

// NewUncontrolled idles the battery and opens every socket fully.
func NewUncontrolled(l Layout) agent.Agent {
	return &policy{name: "uncontrolled", params: struct{}{}, d: uncontrolled{n: len(l.Sockets)}}
}

// New builds the named baseline.
func New(name string, cfg *config.Config, l Layout, w reward.Weights) (agent.Agent, error) {
	switch name {
	case "uncontrolled":
		return NewUncontrolled(l), nil
	case "fixed_schedule":
		return NewFixedSchedule(l, cfg.OE3.Baselines.FixedSchedule)
	case "rbc":
		return NewRBC(l, RBCParamsFromConfig(cfg, l, w)), nil
	default:
		return nil, fmt.Errorf("unknown baseline %q (have %v)", name, Names)
	}
}

// Evaluate runs p for the given number of full episodes and returns the
// physical totals of each.
func Evaluate(ctx context.Context, e *env.Env, p agent.Agent, episodes int) ([]env.EpisodeTotals, error) {
	var out []env.EpisodeTotals
	err := p.Learn(ctx, e, episodes*e.Horizon(), func(ev agent.StepEvent) bool {
		if ev.Info.Episode != nil {
			out = append(out, *ev.Info.Episode)
		}
		return true
	})
	return out, err
}
