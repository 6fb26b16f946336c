package reward

import (
	"fmt"
	"math"
	"sort"

	"iquitos-ems/internal/config"
	"iquitos-ems/internal/fault"
)

// Weights are the coefficients of the five reward components. They must be
// non-negative and sum to 1.
type Weights struct {
	CO2   float64 `json:"co2" yaml:"co2"`
	Cost  float64 `json:"cost" yaml:"cost"`
	Solar float64 `json:"solar" yaml:"solar"`
	EV    float64 `json:"ev" yaml:"ev"`
	Grid  float64 `json:"grid" yaml:"grid"`
}

const weightTolerance = 1e-6

// Names are the component names in weight order.
var Names = []string{"co2", "cost", "solar", "ev", "grid"}

func (w Weights) Sum() float64 { return w.CO2 + w.Cost + w.Solar + w.EV + w.Grid }

func (w Weights) Validate() error {
	for i, v := range []float64{w.CO2, w.Cost, w.Solar, w.EV, w.Grid} {
		if v < 0 || math.IsNaN(v) {
			return fault.InvalidWeights("weight %s is %g, want >= 0", Names[i], v)
		}
	}
	if s := w.Sum(); math.Abs(s-1) > weightTolerance {
		return fault.InvalidWeights("weights sum to %.6f, want 1", s)
	}
	return nil
}

// Map is the weights keyed by component name, for bundles and the schema.
func (w Weights) Map() map[string]float64 {
	return map[string]float64{"co2": w.CO2, "cost": w.Cost, "solar": w.Solar, "ev": w.EV, "grid": w.Grid}
}

const DefaultPreset = "co2_focus"

var presets = map[string]Weights{
	"balanced":    {CO2: 0.30, Cost: 0.25, Solar: 0.20, EV: 0.15, Grid: 0.10},
	"co2_focus":   {CO2: 0.35, Cost: 0.10, Solar: 0.20, EV: 0.30, Grid: 0.05},
	"cost_focus":  {CO2: 0.30, Cost: 0.35, Solar: 0.15, EV: 0.15, Grid: 0.05},
	"ev_focus":    {CO2: 0.25, Cost: 0.15, Solar: 0.15, EV: 0.35, Grid: 0.10},
	"solar_focus": {CO2: 0.30, Cost: 0.15, Solar: 0.40, EV: 0.10, Grid: 0.05},
}

// Preset returns the named weight set.
func Preset(name string) (Weights, error) {
	w, ok := presets[name]
	if !ok {
		return Weights{}, fault.Config("oe3.reward.preset", "unknown preset %q (have %v)", name, PresetNames())
	}
	return w, nil
}

// PresetNames lists the presets in alphabetical order.
func PresetNames() []string {
	out := make([]string, 0, len(presets))
	for k := range presets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Presets returns a copy of every preset.
func Presets() map[string]Weights {
	out := make(map[string]Weights, len(presets))
	for k, v := range presets {
		out[k] = v
	}
	return out
}

// WeightsFromConfig resolves oe3.reward: explicit weights win over the preset.
func WeightsFromConfig(rc config.RewardConfig) (Weights, error) {
	if rc.Weights != nil {
		w := Weights{CO2: rc.Weights.CO2, Cost: rc.Weights.Cost, Solar: rc.Weights.Solar, EV: rc.Weights.EV, Grid: rc.Weights.Grid}
		return w, w.Validate()
	}
	name := rc.Preset
	if name == "" {
		name = DefaultPreset
	}
	w, err := Preset(name)
	if err != nil {
		return Weights{}, err
	}
	return w, nil
}

func (w Weights) String() string {
	return fmt.Sprintf("co2=%.2f cost=%.2f solar=%.2f ev=%.2f grid=%.2f", w.CO2, w.Cost, w.Solar, w.EV, w.Grid)
}
