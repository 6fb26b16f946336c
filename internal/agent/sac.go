package agent

import (
	"context"
	"io"
	"math"

	"iquitos-ems/internal/config"
)

// SAC is soft actor-critic with twin linear Q critics over quadratic action
// features, Polyak-averaged targets and a fixed entropy coefficient.
type SAC struct {
	base
	cfg config.SACConfig

	q1, q2 *Linear
	t1, t2 *Linear
	buf    *ReplayBuffer
}

func NewSAC(cfg config.SACConfig, obsDim, actDim int, seed uint64) *SAC {
	s := &SAC{base: newBase("sac", obsDim, actDim, seed, cfg.InitLogStd), cfg: cfg}
	n := qDim(obsDim+1, actDim, s.ctxK())
	s.q1, s.q2 = NewLinear(n), NewLinear(n)
	s.t1, s.t2 = s.q1.Clone(), s.q2.Clone()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize(1)
		s.cfg = cfg
	}
	s.buf = NewReplayBuffer(cfg.BufferSize)
	return s
}

func (s *SAC) Hyperparameters() map[string]any { return toMap(s.cfg) }

func (s *SAC) Learn(ctx context.Context, e Environment, total int, cb Callback) error {
	return RunLoop(ctx, e, total, cb, s)
}

// Act explores uniformly until learning starts, then samples the policy.
func (s *SAC) Act(obs []float64) []float64 {
	if s.steps < s.cfg.LearningStarts {
		a := make([]float64, s.actDim)
		for i := range a {
			lo := 0.0
			if i == 0 {
				lo = -1
			}
			a[i] = lo + (1-lo)*s.rng.Float64()
		}
		return a
	}
	a, _ := s.pi.Sample(s.pi.Mean(s.phi(obs)), s.pcg)
	return a
}

func (s *SAC) Observe(tr Transition) error {
	s.norm.Update(tr.Obs)
	s.buf.Add(tr)
	s.steps++
	if s.steps < s.cfg.LearningStarts || s.steps%max(1, s.cfg.TrainFreq) != 0 {
		return nil
	}
	for g := 0; g < max(1, s.cfg.GradientSteps); g++ {
		s.update()
	}
	return nil
}

func (s *SAC) update() {
	batch := s.buf.Sample(min(s.cfg.BatchSize, s.buf.Len()), s.rng)
	k := s.ctxK()
	lr := s.cfg.LearningRate / float64(len(batch))
	alpha := s.cfg.EntCoef

	for _, tr := range batch {
		phi := s.phi(tr.Obs)
		psi := qFeatures(phi, clipAction(tr.Action), k)

		y := tr.Reward
		if !tr.Done {
			nphi := s.phi(tr.Next)
			nmean := s.pi.Mean(nphi)
			na, _ := s.pi.Sample(nmean, s.pcg)
			npsi := qFeatures(nphi, clipAction(na), k)
			q := math.Min(s.t1.Value(npsi), s.t2.Value(npsi))
			y += s.cfg.Gamma * (q - alpha*s.pi.LogProb(na, nmean))
		}
		s.q1.Update(lr, y-s.q1.Value(psi), psi)
		s.q2.Update(lr, y-s.q2.Value(psi), psi)

		// Actor: reparameterised a = μ + σε, minimise α·log π(a) − min Q.
		mean := s.pi.Mean(phi)
		a, eps := s.pi.Sample(mean, s.pcg)
		ac := clipAction(a)
		qa := qFeatures(phi, ac, k)
		crit := s.q1
		if s.q2.Value(qa) < s.q1.Value(qa) {
			crit = s.q2
		}
		dq := qActionGrad(crit.W, phi, ac, k)
		gs := make([]float64, len(dq))
		for i := range dq {
			gs[i] = dq[i]*math.Exp(s.pi.LogStd[i])*eps[i] + alpha
		}
		s.pi.Ascend(lr, dq, phi, gs)
	}
	s.t1.Polyak(s.q1, s.cfg.Tau)
	s.t2.Polyak(s.q2, s.cfg.Tau)
}

func (s *SAC) Save(w io.Writer) error { return s.save(w, s.q1, s.q2, s.t1, s.t2) }
func (s *SAC) Load(r io.Reader) error { return s.load(r, s.q1, s.q2, s.t1, s.t2) }
