package citylearn

import (
	"errors"
	"fmt"
	"math"

	"iquitos-ems/internal/balance"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
)

// Environment is the inner, CityLearn-compatible contract: lists per
// building in, lists per building out.
type Environment interface {
	Reset() [][]float64
	Step(actions [][]float64) (obs [][]float64, rewards []float64, done bool, info map[string]float64, err error)
	ObservationNames() [][]string
	ActionNames() [][]string
}

// ErrEpisodeDone is returned by Step after the last hour.
var ErrEpisodeDone = errors.New("episode is done; call Reset")

// socketState is the per-socket memory carried between steps.
type socketState struct {
	lastAction  float64
	energyToday float64
	unmet       float64
}

// Sim advances the dataset one hour per step with agent-chosen battery and
// socket setpoints. Flows follow the balance engine's priority order; the
// battery may also charge from the grid and never exports.
type Sim struct {
	ds      *Dataset
	sockets []model.Socket
	factors balance.Factors
	open    int
	close   int

	t        int
	bess     *model.BESS
	state    []socketState
	lastGrid float64
	done     bool
}

var _ Environment = (*Sim)(nil)

func NewSim(ds *Dataset) (*Sim, error) {
	bess, err := model.NewBESS(ds.BESS())
	if err != nil {
		return nil, fault.InputSchema(SchemaFile, "bess: %v", err)
	}
	socks := ds.Sockets()
	s := &Sim{
		ds:      ds,
		sockets: socks,
		factors: factors(ds.Schema),
		open:    ds.Schema.OperatingHours[0],
		close:   ds.Schema.OperatingHours[1],
		bess:    bess,
		state:   make([]socketState, len(socks)),
	}
	s.Reset()
	return s, nil
}

func factors(s *Schema) balance.Factors {
	return balance.Factors{Grid: s.CarbonIntensity, EVCombustion: s.EVCombustion}
}

func (s *Sim) Dataset() *Dataset { return s.ds }

// T is the index of the next hour to simulate.
func (s *Sim) T() int { return s.t }

func (s *Sim) ObservationNames() [][]string { return [][]string{s.ds.Schema.Observations} }
func (s *Sim) ActionNames() [][]string      { return [][]string{s.ds.Schema.Actions} }

func (s *Sim) Reset() [][]float64 {
	s.t = 0
	s.done = false
	s.lastGrid = 0
	s.bess.Reset()
	for i := range s.state {
		s.state[i] = socketState{}
	}
	return [][]float64{s.observe(0)}
}

// Step simulates hour t. Actions are clipped to their bounds here as well,
// so the simulator is safe to drive directly.
func (s *Sim) Step(actions [][]float64) ([][]float64, []float64, bool, map[string]float64, error) {
	if s.done {
		return nil, nil, true, nil, ErrEpisodeDone
	}
	if len(actions) != 1 || len(actions[0]) != 1+len(s.sockets) {
		return nil, nil, false, nil, fault.InvalidAction("want 1×%d actions", 1+len(s.sockets))
	}
	a := actions[0]
	t := s.t

	pv := s.ds.Solar[t]
	mall := s.ds.Load[t]
	var evDemand, evLoad float64
	for i, sock := range s.sockets {
		frac := model.Clamp(a[1+i], 0, 1)
		dem := s.ds.Demand[t][i]
		got := math.Min(frac*sock.PowerKW, dem)
		st := &s.state[i]
		st.lastAction = frac
		st.energyToday += got
		st.unmet = dem - got
		evDemand += dem
		evLoad += got
	}

	var f balance.Flows
	f.PVToEV = math.Min(pv, evLoad)
	f.PVToMall = math.Min(pv-f.PVToEV, mall)
	rem := math.Max(0, pv-f.PVToEV-f.PVToMall)
	evRes := math.Max(0, evLoad-f.PVToEV)
	mallRes := math.Max(0, mall-f.PVToMall)

	set := model.Clamp(a[0], -1, 1)
	power := s.bess.Params.PowerKW
	switch {
	case set > 0:
		want := math.Min(set*power, s.bess.ChargeHeadroomKWh())
		f.PVToBESS = math.Min(rem, want)
		f.GridToBESS = want - f.PVToBESS
	case set < 0:
		d := math.Min(-set*power, s.bess.DischargeAvailableKWh(s.bess.Params.MinSOC))
		f.BESSToEV = math.Min(d, evRes)
		f.BESSToMall = math.Min(d-f.BESSToEV, mallRes)
	}
	f.PVToGrid = math.Max(0, rem-f.PVToBESS)
	f.GridToEV = evRes - f.BESSToEV
	f.GridToMall = mallRes - f.BESSToMall

	res, err := s.bess.Apply(f.PVToBESS+f.GridToBESS, f.BESSToEV+f.BESSToMall, balance.Epsilon)
	if err != nil {
		return nil, nil, false, nil, &fault.DispatchInfeasible{Hour: t, SOC: s.bess.SOC, EVResidual: evRes, MallResidual: mallRes, Reason: err.Error()}
	}

	co2 := balance.Carbon(f, s.factors)
	imp := f.GridImport()
	s.lastGrid = imp

	info := map[string]float64{
		"hour":                    float64(t % 24),
		"time_step":               float64(t),
		"grid_import":             imp,
		"grid_export":             f.PVToGrid,
		"solar_generation":        pv,
		"ev_demand":               evDemand,
		"ev_delivered":            evLoad,
		"ev_unmet":                evDemand - evLoad,
		"ev_soc_avg":              s.evSOCAvg(t),
		"mall_demand":             mall,
		"bess_soc":                res.SOCEnd,
		"bess_charge":             res.ChargeKWh,
		"bess_discharge":          res.DischargeKWh,
		"pv_to_ev":                f.PVToEV,
		"pv_to_mall":              f.PVToMall,
		"pv_to_bess":              f.PVToBESS,
		"pv_to_grid":              f.PVToGrid,
		"bess_to_ev":              f.BESSToEV,
		"bess_to_mall":            f.BESSToMall,
		"grid_to_ev":              f.GridToEV,
		"grid_to_mall":            f.GridToMall,
		"grid_to_bess":            f.GridToBESS,
		"co2_grid_kg":             co2.GridKg,
		"co2_avoided_indirect_kg": co2.AvoidedIndirectKg,
		"co2_avoided_direct_kg":   co2.AvoidedDirectKg,
		"tariff":                  s.ds.Tariff[t],
	}

	s.t++
	if s.t%24 == 0 {
		for i := range s.state {
			s.state[i].energyToday = 0
		}
	}
	if s.t >= s.ds.Schema.Steps() {
		s.done = true
	}
	next := s.t
	if s.done {
		next = s.t - 1
	}
	// CityLearn's own reward is the negative grid emission; the wrapper
	// replaces it with the multi-objective reward.
	return [][]float64{s.observe(next)}, []float64{-co2.GridKg}, s.done, info, nil
}

// evSOCAvg is the mean SoC over sockets connected at hour t, after this
// step's delivery.
func (s *Sim) evSOCAvg(t int) float64 {
	sum, n := 0.0, 0
	for i := range s.sockets {
		if s.ds.Demand[t][i] > 0 {
			sum += s.socketSOC(t, i)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (s *Sim) socketSOC(t, i int) float64 {
	daily := s.ds.Daily[t][i]
	if daily <= 0 {
		return 0
	}
	arr := s.ds.Schema.SOCArrival
	return math.Min(1, arr+(1-arr)*s.state[i].energyToday/daily)
}

// observe builds the flat observation for hour t.
func (s *Sim) observe(t int) []float64 {
	hd := t % 24
	ang := 2 * math.Pi * float64(hd) / 24
	next := s.ds.Solar[(t+1)%len(s.ds.Solar)]
	obs := make([]float64, 0, len(s.ds.Schema.Observations))
	obs = append(obs,
		float64(hd),
		float64(s.ds.DayType[t]),
		float64(s.ds.Month[t]),
		math.Sin(ang),
		math.Cos(ang),
		b2f(s.ds.Peak[t]),
		s.ds.Tariff[t],
		s.ds.Solar[t],
		next,
		s.ds.Load[t],
		s.bess.SOC,
		s.ds.Carbon[t],
		s.lastGrid,
		s.ds.EVTotal[t],
	)
	for i, sock := range s.sockets {
		st := s.state[i]
		dem := s.ds.Demand[t][i]
		connected := dem > 0
		soc := s.socketSOC(t, i)
		gap := 0.0
		if connected {
			gap = 1 - soc
		}
		toClose := 0.0
		if hd >= s.open && hd <= s.close {
			toClose = float64(s.close - hd + 1)
		}
		obs = append(obs,
			b2f(connected),
			dem,
			sock.PowerKW,
			soc,
			gap,
			b2f(sock.Class == model.SocketMototaxi),
			st.lastAction,
			st.energyToday,
			toClose,
			st.unmet,
		)
	}
	if len(obs) != len(s.ds.Schema.Observations) {
		panic(fmt.Sprintf("observation has %d values, schema declares %d", len(obs), len(s.ds.Schema.Observations)))
	}
	return obs
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
