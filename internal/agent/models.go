package agent

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	minLogStd = -5
	maxLogStd = 1
	gradClip  = 5
)

// GaussianPolicy is a diagonal Gaussian whose mean is linear in the
// features and whose log standard deviation is state independent.
type GaussianPolicy struct {
	W      *mat.Dense // actions × features
	LogStd []float64
}

// NewGaussianPolicy starts with zero weights except the bias column, which
// holds the initial mean per action.
func NewGaussianPolicy(act, feat int, initLogStd float64, bias []float64) *GaussianPolicy {
	w := mat.NewDense(act, feat, nil)
	for i, b := range bias {
		w.Set(i, feat-1, b)
	}
	ls := make([]float64, act)
	for i := range ls {
		ls[i] = initLogStd
	}
	return &GaussianPolicy{W: w, LogStd: ls}
}

func (p *GaussianPolicy) Mean(phi []float64) []float64 {
	r, _ := p.W.Dims()
	out := mat.NewVecDense(r, nil)
	out.MulVec(p.W, mat.NewVecDense(len(phi), phi))
	return out.RawVector().Data
}

func (p *GaussianPolicy) std(i int) float64 { return math.Exp(p.LogStd[i]) }

// Sample draws a = mean + σ·ε and returns a and ε.
func (p *GaussianPolicy) Sample(mean []float64, src rand.Source) (a, eps []float64) {
	unit := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	a = make([]float64, len(mean))
	eps = make([]float64, len(mean))
	for i, m := range mean {
		eps[i] = unit.Rand()
		a[i] = m + p.std(i)*eps[i]
	}
	return a, eps
}

func (p *GaussianPolicy) LogProb(a, mean []float64) float64 {
	lp := 0.0
	for i := range a {
		lp += distuv.Normal{Mu: mean[i], Sigma: p.std(i)}.LogProb(a[i])
	}
	return lp
}

func (p *GaussianPolicy) Entropy() float64 {
	h := 0.0
	for i := range p.LogStd {
		h += distuv.Normal{Mu: 0, Sigma: p.std(i)}.Entropy()
	}
	return h
}

// ScoreMean is ∂ log π(a) / ∂ mean.
func (p *GaussianPolicy) ScoreMean(a, mean []float64) []float64 {
	g := make([]float64, len(a))
	for i := range a {
		s := p.std(i)
		g[i] = (a[i] - mean[i]) / (s * s)
	}
	return g
}

// ScoreLogStd is ∂ log π(a) / ∂ log σ.
func (p *GaussianPolicy) ScoreLogStd(a, mean []float64) []float64 {
	g := make([]float64, len(a))
	for i := range a {
		s := p.std(i)
		d := (a[i] - mean[i]) / s
		g[i] = d*d - 1
	}
	return g
}

// Ascend moves the mean weights along g ⊗ φ and the log-stds along gs.
func (p *GaussianPolicy) Ascend(lr float64, g, phi, gs []float64) {
	clipAll(g)
	p.W.RankOne(p.W, lr, mat.NewVecDense(len(g), g), mat.NewVecDense(len(phi), phi))
	for i, v := range gs {
		p.LogStd[i] = math.Max(minLogStd, math.Min(maxLogStd, p.LogStd[i]+lr*clip1(v)))
	}
}

// Linear is a linear function approximator y = w·x.
type Linear struct {
	W *mat.VecDense
}

func NewLinear(n int) *Linear { return &Linear{W: mat.NewVecDense(n, nil)} }

func (l *Linear) Value(x []float64) float64 {
	return mat.Dot(l.W, mat.NewVecDense(len(x), x))
}

// Update is one SGD step w += lr·err·x with the error clipped.
func (l *Linear) Update(lr, err float64, x []float64) {
	l.W.AddScaledVec(l.W, lr*clip1(err), mat.NewVecDense(len(x), x))
}

// Polyak blends src into l: l = τ·src + (1−τ)·l.
func (l *Linear) Polyak(src *Linear, tau float64) {
	l.W.ScaleVec(1-tau, l.W)
	l.W.AddScaledVec(l.W, tau, src.W)
}

func (l *Linear) Clone() *Linear {
	w := mat.NewVecDense(l.W.Len(), nil)
	w.CopyVec(l.W)
	return &Linear{W: w}
}

// qFeatures lays out ψ(s, a) = [φ, a, a², a⊗z] where z is the first k
// features of φ (the global context). The cross term makes the greedy action
// depend on the state.
func qFeatures(phi, a []float64, k int) []float64 {
	m := len(a)
	out := make([]float64, 0, len(phi)+2*m+m*k)
	out = append(out, phi...)
	out = append(out, a...)
	for _, v := range a {
		out = append(out, v*v)
	}
	for _, v := range a {
		for _, z := range phi[:k] {
			out = append(out, v*z)
		}
	}
	return out
}

func qDim(feat, act, k int) int { return feat + 2*act + act*k }

// qActionGrad is ∂Q/∂a for the layout of qFeatures.
func qActionGrad(w *mat.VecDense, phi, a []float64, k int) []float64 {
	d, m := len(phi), len(a)
	g := make([]float64, m)
	for j := range a {
		v := w.AtVec(d+j) + 2*w.AtVec(d+m+j)*a[j]
		base := d + 2*m + j*k
		for kk, z := range phi[:k] {
			v += w.AtVec(base+kk) * z
		}
		g[j] = v
	}
	return g
}

func clip1(x float64) float64 { return math.Max(-gradClip, math.Min(gradClip, x)) }

func clipAll(v []float64) {
	for i := range v {
		v[i] = clip1(v[i])
	}
}
