package agent

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"

	"iquitos-ems/internal/model"

	"gonum.org/v1/gonum/mat"
)

// Initial mean for socket fractions; the battery setpoint starts idle.
const initialSocketMean = 0.8

// contextFeatures is the number of leading (global) observation features
// crossed with the action in Q features.
const contextFeatures = 14

// base is the state shared by every learner: observation normaliser,
// Gaussian policy, seeded PCG and step counter.
type base struct {
	name   string
	obsDim int
	actDim int
	norm   *Normalizer
	pi     *GaussianPolicy
	pcg    *rand.PCG
	rng    *rand.Rand
	steps  int
}

func newBase(name string, obsDim, actDim int, seed uint64, initLogStd float64) base {
	bias := make([]float64, actDim)
	for i := 1; i < actDim; i++ {
		bias[i] = initialSocketMean
	}
	pcg := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return base{
		name:   name,
		obsDim: obsDim,
		actDim: actDim,
		norm:   NewNormalizer(obsDim),
		pi:     NewGaussianPolicy(actDim, obsDim+1, initLogStd, bias),
		pcg:    pcg,
		rng:    rand.New(pcg),
	}
}

func (b *base) Name() string { return b.name }

// Steps is the number of environment steps learned from.
func (b *base) Steps() int { return b.steps }

// phi is the normalised observation with a trailing bias feature.
func (b *base) phi(obs []float64) []float64 {
	z := make([]float64, len(obs)+1)
	b.norm.Normalize(obs, z[:len(obs)])
	z[len(obs)] = 1
	return z
}

func (b *base) ctxK() int { return min(contextFeatures, b.obsDim) }

// Predict returns an action within the environment bounds.
func (b *base) Predict(obs []float64, deterministic bool) []float64 {
	mean := b.pi.Mean(b.phi(obs))
	if deterministic {
		return clipAction(mean)
	}
	a, _ := b.pi.Sample(mean, b.pcg)
	return clipAction(a)
}

// clipAction bounds a[0] to [-1, 1] and the rest to [0, 1].
func clipAction(a []float64) []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		lo := 0.0
		if i == 0 {
			lo = -1
		}
		out[i] = model.Clamp(v, lo, 1)
	}
	return out
}

// snapshot is the gob payload of Save/Load.
type snapshot struct {
	Name      string
	ObsDim    int
	ActDim    int
	Steps     int
	NormCount float64
	NormMean  []float64
	NormM2    []float64
	PolicyW   []float64
	LogStd    []float64
	Critics   [][]float64
	RNG       []byte
}

func (b *base) save(w io.Writer, critics ...*Linear) error {
	rng, err := b.pcg.MarshalBinary()
	if err != nil {
		return err
	}
	s := snapshot{
		Name:      b.name,
		ObsDim:    b.obsDim,
		ActDim:    b.actDim,
		Steps:     b.steps,
		NormCount: b.norm.Count,
		NormMean:  b.norm.Mean,
		NormM2:    b.norm.M2,
		PolicyW:   b.pi.W.RawMatrix().Data,
		LogStd:    b.pi.LogStd,
		RNG:       rng,
	}
	for _, c := range critics {
		s.Critics = append(s.Critics, c.W.RawVector().Data)
	}
	return gob.NewEncoder(w).Encode(&s)
}

func (b *base) load(r io.Reader, critics ...*Linear) error {
	var s snapshot
	if err := gob.NewDecoder(r).Decode(&s); err != nil {
		return fmt.Errorf("decode %s snapshot: %w", b.name, err)
	}
	if s.Name != b.name || s.ObsDim != b.obsDim || s.ActDim != b.actDim {
		return fmt.Errorf("snapshot is %s %d×%d, agent is %s %d×%d", s.Name, s.ObsDim, s.ActDim, b.name, b.obsDim, b.actDim)
	}
	if len(s.Critics) != len(critics) {
		return fmt.Errorf("snapshot has %d critics, want %d", len(s.Critics), len(critics))
	}
	b.steps = s.Steps
	b.norm = &Normalizer{Count: s.NormCount, Mean: s.NormMean, M2: s.NormM2}
	b.pi.W = mat.NewDense(b.actDim, b.obsDim+1, s.PolicyW)
	b.pi.LogStd = s.LogStd
	for i, c := range critics {
		c.W = mat.NewVecDense(len(s.Critics[i]), s.Critics[i])
	}
	return b.pcg.UnmarshalBinary(s.RNG)
}

// toMap flattens a hyperparameter struct through its json tags.
func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
