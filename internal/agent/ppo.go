package agent

import (
	"context"
	"io"
	"math"

	"iquitos-ems/internal/config"

	"gonum.org/v1/gonum/stat"
)

// PPO collects n_steps on-policy transitions, then runs n_epochs passes of
// clipped-ratio updates over shuffled minibatches.
type PPO struct {
	base
	cfg config.PPOConfig

	v   *Linear
	buf rollout

	pendingPhi  []float64
	pendingLogp float64
	pendingV    float64
}

func NewPPO(cfg config.PPOConfig, obsDim, actDim int, seed uint64) *PPO {
	return &PPO{
		base: newBase("ppo", obsDim, actDim, seed, cfg.InitLogStd),
		cfg:  cfg,
		v:    NewLinear(obsDim + 1),
	}
}

func (p *PPO) Hyperparameters() map[string]any { return toMap(p.cfg) }

func (p *PPO) Learn(ctx context.Context, e Environment, total int, cb Callback) error {
	return RunLoop(ctx, e, total, cb, p)
}

func (p *PPO) Act(obs []float64) []float64 {
	phi := p.phi(obs)
	mean := p.pi.Mean(phi)
	a, _ := p.pi.Sample(mean, p.pcg)
	p.pendingPhi = phi
	p.pendingLogp = p.pi.LogProb(a, mean)
	p.pendingV = p.v.Value(phi)
	return a
}

func (p *PPO) Observe(tr Transition) error {
	p.norm.Update(tr.Obs)
	p.steps++
	p.buf.add(p.pendingPhi, tr.Action, p.pendingLogp, p.pendingV, tr.Reward, tr.Done)
	if p.buf.len() < max(1, p.cfg.NSteps) {
		return nil
	}
	last := 0.0
	if !tr.Done {
		last = p.v.Value(p.phi(tr.Next))
	}
	p.update(last)
	p.buf.reset()
	return nil
}

func (p *PPO) update(lastValue float64) {
	adv, ret := p.buf.gae(lastValue, p.cfg.Gamma, p.cfg.GAELambda)
	normalizeAdv(adv)
	n := p.buf.len()
	bs := max(1, min(p.cfg.BatchSize, n))
	for epoch := 0; epoch < max(1, p.cfg.NEpochs); epoch++ {
		order := p.rng.Perm(n)
		for start := 0; start < n; start += bs {
			idx := order[start:min(start+bs, n)]
			lr := p.cfg.LearningRate / float64(len(idx))
			for _, i := range idx {
				phi := p.buf.phi[i]
				a := p.buf.actions[i]
				mean := p.pi.Mean(phi)
				ratio := math.Exp(p.pi.LogProb(a, mean) - p.buf.logp[i])
				A := adv[i]
				clipped := (A > 0 && ratio > 1+p.cfg.ClipRange) || (A < 0 && ratio < 1-p.cfg.ClipRange)

				gm := p.pi.ScoreMean(a, mean)
				gs := p.pi.ScoreLogStd(a, mean)
				for j := range gm {
					if clipped {
						gm[j], gs[j] = 0, 0
					} else {
						gm[j] *= ratio * A
						gs[j] *= ratio * A
					}
					gs[j] += p.cfg.EntCoef
				}
				p.pi.Ascend(lr, gm, phi, gs)
				p.v.Update(lr*p.cfg.VFCoef, ret[i]-p.v.Value(phi), phi)
			}
		}
	}
}

// normalizeAdv standardises advantages in place.
func normalizeAdv(adv []float64) {
	if len(adv) < 2 {
		return
	}
	m, s := stat.MeanStdDev(adv, nil)
	for i := range adv {
		adv[i] = (adv[i] - m) / (s + 1e-8)
	}
}

func (p *PPO) Save(w io.Writer) error { return p.save(w, p.v) }
func (p *PPO) Load(r io.Reader) error { return p.load(r, p.v) }
