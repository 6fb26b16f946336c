// Package agent holds the continuous-control learners (SAC, PPO, A2C) and
// the step loop they share. Models are linear function approximators over
// normalised observations with Gaussian policies, all in gonum.
package agent

import (
	"context"
	"io"

	"iquitos-ems/internal/env"
)

// Environment is the flat interface agents drive. *env.Env implements it.
type Environment interface {
	Reset() ([]float64, error)
	Step(action []float64) ([]float64, float64, bool, env.Info, error)
	ObservationDim() int
	ActionDim() int
}

var _ Environment = (*env.Env)(nil)

// StepEvent is handed to the callback after every environment step.
type StepEvent struct {
	Step        int // 1-based, across episodes
	Episode     int // 0-based
	EpisodeStep int // 1-based within the episode
	Action      []float64
	Reward      float64
	Done        bool
	Info        env.Info
}

// Callback runs synchronously after each step; returning false stops the
// loop cleanly.
type Callback func(StepEvent) bool

// Agent is implemented by learners and by the baseline policies.
type Agent interface {
	Name() string
	Predict(obs []float64, deterministic bool) []float64
	Learn(ctx context.Context, e Environment, totalTimesteps int, cb Callback) error
	Save(w io.Writer) error
	Load(r io.Reader) error
	Hyperparameters() map[string]any
}

// Transition is one (s, a, r, s', done) tuple.
type Transition struct {
	Obs    []float64
	Action []float64
	Reward float64
	Next   []float64
	Done   bool
}

// Policy is what RunLoop needs from an agent: an action for the current
// observation and a hook to learn from the outcome.
type Policy interface {
	Act(obs []float64) []float64
	Observe(tr Transition) error
}

// RunLoop steps e for total timesteps, resetting at episode ends. The
// context is checked before every step; cancellation returns ctx.Err().
func RunLoop(ctx context.Context, e Environment, total int, cb Callback, p Policy) error {
	obs, err := e.Reset()
	if err != nil {
		return err
	}
	episode, epStep := 0, 0
	for step := 1; step <= total; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		a := p.Act(obs)
		next, r, done, info, err := e.Step(a)
		if err != nil {
			return err
		}
		epStep++
		if err := p.Observe(Transition{Obs: obs, Action: a, Reward: r, Next: next, Done: done}); err != nil {
			return err
		}
		if cb != nil && !cb(StepEvent{
			Step: step, Episode: episode, EpisodeStep: epStep,
			Action: a, Reward: r, Done: done, Info: info,
		}) {
			return nil
		}
		obs = next
		if done {
			episode++
			epStep = 0
			if step < total {
				if obs, err = e.Reset(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
