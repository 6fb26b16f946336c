// Package synth generates deterministic synthetic OE2 inputs and writes them
// in the on-disk input formats. It backs the demo command and the tests; the
// loader never falls back to it.
package synth

import (
	"math"

	"iquitos-ems/internal/model"
)

// Constant is a flat series.
func Constant(v float64) []float64 {
	out := make([]float64, model.HoursPerYear)
	for i := range out {
		out[i] = v
	}
	return out
}

// Block is v during hours of day [start, end] inclusive and 0 elsewhere.
func Block(start, end int, v float64) []float64 {
	out := make([]float64, model.HoursPerYear)
	for h := range out {
		hd := model.HourIndex(h).HourOfDay()
		if hd >= start && hd <= end {
			out[h] = v
		}
	}
	return out
}

// SolarBell is a half-sine between 06:00 and 18:00 peaking at peakKW, with
// a mild seasonal swing.
func SolarBell(peakKW float64) []float64 {
	out := make([]float64, model.HoursPerYear)
	for h := range out {
		hi := model.HourIndex(h)
		hd := hi.HourOfDay()
		if hd < 6 || hd > 18 {
			continue
		}
		shape := math.Sin(math.Pi * float64(hd-6) / 12)
		season := 1 + 0.1*math.Cos(2*math.Pi*float64(hi.DayOfYear()-15)/365)
		out[h] = round3(peakKW * shape * season)
	}
	return out
}

// Mall is a base load plus an evening bump reaching base+bump at 19–20 h.
func Mall(baseKW, bumpKW float64) []float64 {
	out := make([]float64, model.HoursPerYear)
	for h := range out {
		hd := model.HourIndex(h).HourOfDay()
		v := baseKW
		switch {
		case hd >= 10 && hd < 18:
			v += bumpKW * 0.5
		case hd >= 18 && hd <= 21:
			v += bumpKW
		case hd == 22:
			v += bumpKW * 0.5
		}
		out[h] = v
	}
	return out
}

// EVUniform gives every socket kwh per open hour, in [open, close].
func EVUniform(sockets []model.Socket, open, close int, kwh float64) model.EVDemand {
	return EVFunc(sockets, func(h, s int) float64 {
		hd := model.HourIndex(h).HourOfDay()
		if hd < open || hd > close {
			return 0
		}
		return kwh
	})
}

// EVFunc builds a demand matrix from f(hour, socket).
func EVFunc(sockets []model.Socket, f func(h, s int) float64) model.EVDemand {
	kwh := make([][]float64, model.HoursPerYear)
	for h := range kwh {
		kwh[h] = make([]float64, len(sockets))
		for s := range sockets {
			kwh[h][s] = f(h, s)
		}
	}
	return model.EVDemand{Sockets: sockets, KWh: kwh}
}

// EVIquitos staggers sessions: motos charge late morning and afternoon,
// mototaxis through the evening, never above the socket nameplate.
func EVIquitos(sockets []model.Socket) model.EVDemand {
	return EVFunc(sockets, func(h, s int) float64 {
		hd := model.HourIndex(h).HourOfDay()
		sock := sockets[s]
		switch sock.Class {
		case model.SocketMototaxi:
			if hd >= 9 && hd <= 22 && (hd+s)%3 != 0 {
				return round3(0.6 * sock.PowerKW)
			}
		default:
			if hd >= 9 && hd <= 21 && (hd+s)%4 == 0 {
				return round3(0.8 * sock.PowerKW)
			}
		}
		return 0
	})
}

// DefaultFleet is 19 chargers × 2 sockets at 7.4 kW, 30 moto + 8 mototaxi.
func DefaultFleet() []model.Socket {
	return model.NewFleet(19, 2, 30, 7.4)
}

// NameplateBESS is the reference 1,700 kWh / 400 kW sizing.
var NameplateBESS = model.BESSParams{
	CapacityKWh: 1700,
	PowerKW:     400,
	Efficiency:  0.95,
	MinSOC:      0.2,
	MaxSOC:      1.0,
	InitialSOC:  0.2,
}

// Tag fills the tariff columns of a mall series for the default calendar.
func Tag(kwh []float64, cal model.Calendar, tariff model.Tariff) model.MallDemand {
	m := model.MallDemand{
		KWh:    kwh,
		Peak:   make([]bool, len(kwh)),
		Tariff: make([]float64, len(kwh)),
	}
	for h := range kwh {
		p := cal.IsPeak(model.HourIndex(h))
		m.Peak[h] = p
		m.Tariff[h] = tariff.At(p)
	}
	return m
}

// Iquitos returns a complete synthetic year shaped like the reference site:
// PV surplus at midday, an evening mall peak above 1,900 kW and the default
// 38-socket fleet.
func Iquitos() *model.Inputs {
	cal := model.DefaultCalendar()
	fleet := DefaultFleet()
	return &model.Inputs{
		PV:       SolarBell(2200),
		EV:       EVIquitos(fleet),
		Mall:     Tag(Mall(900, 1150), cal, model.DefaultTariff),
		BESS:     NameplateBESS,
		Calendar: cal,
	}
}

// Build assembles inputs from explicit series using the default calendar,
// tariff and fleet.
func Build(pv []float64, ev model.EVDemand, mall []float64, bess model.BESSParams) *model.Inputs {
	cal := model.DefaultCalendar()
	return &model.Inputs{
		PV:       pv,
		EV:       ev,
		Mall:     Tag(mall, cal, model.DefaultTariff),
		BESS:     bess,
		Calendar: cal,
	}
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
