package reward

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary is the distribution of one component over the recorded steps.
type Summary struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Pareto is the per-component distribution plus the physical totals.
type Pareto struct {
	Components map[string]Summary `json:"components"`
	CO2TotalKg float64            `json:"co2_total_kg"`
	CostTotal  float64            `json:"cost_total"`
	Steps      int                `json:"steps"`
}

var statKeys = []string{"r_co2", "r_cost", "r_solar", "r_ev", "r_grid", "penalty", "reward_total"}

// Stats accumulates component values for Pareto analysis.
type Stats struct {
	values map[string][]float64
	co2    float64
	cost   float64
}

func NewStats() *Stats {
	s := &Stats{}
	s.Reset()
	return s
}

func (s *Stats) Reset() {
	s.values = make(map[string][]float64, len(statKeys))
	s.co2, s.cost = 0, 0
}

func (s *Stats) Add(c Components) {
	vals := [...]float64{c.CO2, c.Cost, c.Solar, c.EV, c.Grid, c.Penalty, c.Total}
	for i, k := range statKeys {
		s.values[k] = append(s.values[k], vals[i])
	}
	s.co2 += c.CO2GridKg
	s.cost += c.CostCurrency
}

func (s *Stats) Len() int { return len(s.values["reward_total"]) }

// Means returns the mean of every component, 0 before the first step.
func (s *Stats) Means() map[string]float64 {
	out := make(map[string]float64, len(statKeys))
	for _, k := range statKeys {
		if v := s.values[k]; len(v) > 0 {
			out[k] = stat.Mean(v, nil)
		} else {
			out[k] = 0
		}
	}
	return out
}

func (s *Stats) Pareto() Pareto {
	p := Pareto{
		Components: make(map[string]Summary, len(statKeys)),
		CO2TotalKg: s.co2,
		CostTotal:  s.cost,
		Steps:      s.Len(),
	}
	for _, k := range statKeys {
		v := s.values[k]
		if len(v) == 0 {
			continue
		}
		sum := Summary{Min: floats.Min(v), Max: floats.Max(v)}
		if len(v) > 1 {
			sum.Mean, sum.Std = stat.PopMeanStdDev(v, nil)
		} else {
			sum.Mean = v[0]
		}
		p.Components[k] = sum
	}
	return p
}
