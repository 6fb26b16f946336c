package agent

import (
	"context"
	"io"

	"iquitos-ems/internal/config"
)

// A2C is synchronous advantage actor-critic: every n_steps transitions it
// updates on n-step bootstrapped returns, with an entropy bonus.
type A2C struct {
	base
	cfg config.A2CConfig

	v   *Linear
	buf rollout

	pendingPhi []float64
	pendingV   float64
}

func NewA2C(cfg config.A2CConfig, obsDim, actDim int, seed uint64) *A2C {
	return &A2C{
		base: newBase("a2c", obsDim, actDim, seed, cfg.InitLogStd),
		cfg:  cfg,
		v:    NewLinear(obsDim + 1),
	}
}

func (a *A2C) Hyperparameters() map[string]any { return toMap(a.cfg) }

func (a *A2C) Learn(ctx context.Context, e Environment, total int, cb Callback) error {
	return RunLoop(ctx, e, total, cb, a)
}

func (a *A2C) Act(obs []float64) []float64 {
	phi := a.phi(obs)
	act, _ := a.pi.Sample(a.pi.Mean(phi), a.pcg)
	a.pendingPhi = phi
	a.pendingV = a.v.Value(phi)
	return act
}

func (a *A2C) Observe(tr Transition) error {
	a.norm.Update(tr.Obs)
	a.steps++
	a.buf.add(a.pendingPhi, tr.Action, 0, a.pendingV, tr.Reward, tr.Done)
	if a.buf.len() < max(1, a.cfg.NSteps) && !tr.Done {
		return nil
	}
	last := 0.0
	if !tr.Done {
		last = a.v.Value(a.phi(tr.Next))
	}
	adv, ret := a.buf.gae(last, a.cfg.Gamma, 1)
	lr := a.cfg.LearningRate / float64(a.buf.len())
	for i := range adv {
		phi := a.buf.phi[i]
		act := a.buf.actions[i]
		mean := a.pi.Mean(phi)
		gm := a.pi.ScoreMean(act, mean)
		gs := a.pi.ScoreLogStd(act, mean)
		for j := range gm {
			gm[j] *= adv[i]
			gs[j] = gs[j]*adv[i] + a.cfg.EntCoef
		}
		a.pi.Ascend(lr, gm, phi, gs)
		a.v.Update(lr*a.cfg.VFCoef, ret[i]-a.v.Value(phi), phi)
	}
	a.buf.reset()
	return nil
}

func (a *A2C) Save(w io.Writer) error { return a.save(w, a.v) }
func (a *A2C) Load(r io.Reader) error { return a.load(r, a.v) }
