package baseline

import (
	"math"

	"iquitos-ems/internal/agent"
	"iquitos-ems/internal/citylearn"
	"iquitos-ems/internal/config"
	"iquitos-ems/internal/model"
	"iquitos-ems/internal/reward"
)

// RBCParams tune the rule-based controller.
type RBCParams struct {
	PeakThresholdKW float64        `json:"peak_threshold_kW"`
	CarbonHigh      float64        `json:"carbon_high_kg_per_kwh"`
	MinFraction     float64        `json:"min_fraction"`
	MototaxiFloor   float64        `json:"mototaxi_floor"`
	EVTolerance     float64        `json:"ev_satisfaction_tolerance"`
	Weights         reward.Weights `json:"weights"`
}

func DefaultRBCParams() RBCParams {
	w, _ := reward.Preset(reward.DefaultPreset)
	return RBCParams{
		PeakThresholdKW: 1900,
		CarbonHigh:      0.6,
		MinFraction:     0.2,
		MototaxiFloor:   0.7,
		EVTolerance:     0.05,
		Weights:         w,
	}
}

func RBCParamsFromConfig(cfg *config.Config, _ Layout, w reward.Weights) RBCParams {
	p := DefaultRBCParams()
	p.PeakThresholdKW = cfg.OE2.BESS.PeakThresholdKW
	p.EVTolerance = cfg.OE3.Baselines.EVSatisfactionTolerance
	p.Weights = w
	return p
}

// rbc charges the battery from PV surplus, shaves the mall above the peak
// threshold and otherwise covers EV demand at peak. Socket power follows a
// weighted charge score.
type rbc struct {
	layout Layout
	p      RBCParams

	iHour, iPeak, iSolar, iLoad, iSOC, iCarbon, iEV int
}

func NewRBC(l Layout, p RBCParams) agent.Agent {
	r := &rbc{
		layout:  l,
		p:       p,
		iHour:   citylearn.GlobalIndex("hour"),
		iPeak:   citylearn.GlobalIndex("is_peak"),
		iSolar:  citylearn.GlobalIndex("solar_generation"),
		iLoad:   citylearn.GlobalIndex("non_shiftable_load"),
		iSOC:    citylearn.GlobalIndex("bess_soc"),
		iCarbon: citylearn.GlobalIndex("carbon_intensity"),
		iEV:     citylearn.GlobalIndex("ev_demand_total"),
	}
	return &policy{name: "rbc", params: p, d: r}
}

func (r *rbc) decide(obs []float64) []float64 {
	a := make([]float64, len(r.layout.Sockets)+1)
	a[0] = r.bess(obs)
	score := r.chargeScore(obs)
	surplus := obs[r.iSolar] - obs[r.iLoad] - obs[r.iEV]
	hour := int(obs[r.iHour])
	for s, sock := range r.layout.Sockets {
		frac := r.p.MinFraction + (1-r.p.MinFraction)*score
		if surplus > 0 {
			frac = 1
		}
		if sock.Class == model.SocketMototaxi && hour >= r.layout.Open && hour <= r.layout.Close {
			frac = math.Max(frac, r.p.MototaxiFloor)
		}
		// Never starve a connected vehicle below the satisfaction floor.
		if sock.PowerKW > 0 {
			need := (1 - r.p.EVTolerance) * obs[citylearn.SocketIndex(s, "demand_kw")] / sock.PowerKW
			frac = math.Max(frac, need)
		}
		a[s+1] = model.Clamp(frac, 0, 1)
	}
	return a
}

// bess is the decision table for the battery setpoint.
func (r *rbc) bess(obs []float64) float64 {
	b := r.layout.BESS
	soc := obs[r.iSOC]
	load := obs[r.iLoad]
	ev := obs[r.iEV]
	surplus := obs[r.iSolar] - load - ev
	peak := obs[r.iPeak] > 0.5

	switch {
	case surplus > 0 && soc < b.MaxSOC:
		return math.Min(1, surplus/b.PowerKW)
	case peak && soc > b.MinSOC && load > r.p.PeakThresholdKW:
		return -math.Min(1, (load-r.p.PeakThresholdKW)/b.PowerKW)
	case peak && soc > b.MinSOC && ev > 0:
		return -math.Min(1, ev/b.PowerKW)
	default:
		return 0
	}
}

// chargeScore blends five per-objective signals into [0, 1].
func (r *rbc) chargeScore(obs []float64) float64 {
	w := r.p.Weights
	peak := obs[r.iPeak] > 0.5
	surplus := obs[r.iSolar] - obs[r.iLoad]
	carbon := obs[r.iCarbon]
	soc := obs[r.iSOC]

	score := 0.0
	if surplus > 0 {
		score += w.Solar * math.Min(1, surplus/math.Max(obs[r.iLoad], 1))
	} else {
		score -= 0.3 * w.Solar
	}
	if carbon < r.p.CarbonHigh {
		score += w.CO2 * (1 - carbon)
	} else {
		score -= 0.5 * w.CO2
	}
	if peak {
		score -= 0.8 * w.Grid
		score -= 0.3 * w.Cost
		if soc > r.layout.BESS.MinSOC {
			score += 0.3 * w.EV
		}
	} else {
		score += 0.5 * w.Grid
		score += 0.5 * w.Cost
	}
	if soc < r.layout.BESS.MinSOC {
		score -= 0.2 * w.EV
	}
	return model.Clamp((score+1)/2, 0, 1)
}
