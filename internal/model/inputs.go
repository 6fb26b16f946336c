package model

import "fmt"

// SocketClass distinguishes the two vehicle fleets sharing the chargers.
type SocketClass string

const (
	SocketMoto     SocketClass = "moto"
	SocketMototaxi SocketClass = "mototaxi"
)

// Socket is one charging port. Several sockets share a charger chassis.
type Socket struct {
	Index   int         `json:"index"`
	Name    string      `json:"name"`
	Charger int         `json:"charger"`
	Class   SocketClass `json:"class"`
	PowerKW float64     `json:"power_kW"`
}

// EVDemand is the hourly energy requested per socket, kWh/h, indexed
// [hour][socket].
type EVDemand struct {
	Sockets []Socket
	KWh     [][]float64
}

// NumSockets returns S.
func (d EVDemand) NumSockets() int { return len(d.Sockets) }

// Total is the row sum for one hour.
func (d EVDemand) Total(h int) float64 {
	sum := 0.0
	for _, v := range d.KWh[h] {
		sum += v
	}
	return sum
}

// Aggregate returns the 1-D hourly demand series.
func (d EVDemand) Aggregate() []float64 {
	out := make([]float64, len(d.KWh))
	for h := range d.KWh {
		out[h] = d.Total(h)
	}
	return out
}

// DailyDemand returns the energy requested by socket s over the day that
// contains hour h.
func (d EVDemand) DailyDemand(h, s int) float64 {
	start := (h / 24) * 24
	sum := 0.0
	for t := start; t < start+24 && t < len(d.KWh); t++ {
		sum += d.KWh[t][s]
	}
	return sum
}

// MallDemand is the non-shiftable building load with its tariff tagging.
type MallDemand struct {
	KWh    []float64
	Peak   []bool
	Tariff []float64
}

// Inputs is the aligned OE2 dataset consumed by the balance engine and the
// dataset builder. All series have HoursPerYear rows.
type Inputs struct {
	PV       []float64
	EV       EVDemand
	Mall     MallDemand
	BESS     BESSParams
	Calendar Calendar
}

// NewFleet lays out S = nChargers × perCharger sockets. The first
// motoSockets are moto sockets, the rest mototaxi.
func NewFleet(nChargers, perCharger, motoSockets int, powerKW float64) []Socket {
	n := nChargers * perCharger
	out := make([]Socket, n)
	for i := 0; i < n; i++ {
		class := SocketMototaxi
		if i < motoSockets {
			class = SocketMoto
		}
		out[i] = Socket{
			Index:   i,
			Name:    SocketName(i),
			Charger: i/perCharger + 1,
			Class:   class,
			PowerKW: powerKW,
		}
	}
	return out
}

// SocketName is the 1-based, zero-padded socket identifier, e.g. socket_007.
func SocketName(i int) string {
	return fmt.Sprintf("socket_%03d", i+1)
}
