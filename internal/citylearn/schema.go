// Package citylearn builds, reads and simulates the CityLearn-style dataset
// tree: one building CSV, one CSV per charging socket and a schema.json
// manifest describing horizon, assets, reward and the observation/action
// layout.
package citylearn

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"
)

const (
	SchemaFile   = "schema.json"
	BuildingFile = "building_mall.csv"
	BuildingName = "mall"

	SchemaVersion      = 1
	SecondsPerTimeStep = 3600
	RewardType         = "multi_objective"
)

// ChargerFile is the per-socket CSV name, 1-based: charger_simulation_001.csv.
func ChargerFile(socket int) string {
	return fmt.Sprintf("charger_simulation_%03d.csv", socket+1)
}

// GlobalObservations are the building-level features, in order.
var GlobalObservations = []string{
	"hour",
	"day_type",
	"month",
	"hour_sin",
	"hour_cos",
	"is_peak",
	"tariff",
	"solar_generation",
	"solar_next_hour",
	"non_shiftable_load",
	"bess_soc",
	"carbon_intensity",
	"grid_import_last",
	"ev_demand_total",
}

// SocketObservations are the per-socket features, in order.
var SocketObservations = []string{
	"connected",
	"demand_kw",
	"power_kw",
	"soc",
	"soc_gap",
	"is_mototaxi",
	"last_action",
	"energy_today",
	"hours_to_close",
	"unmet_kw",
}

// ObservationNames lays out the flat observation for n sockets.
func ObservationNames(sockets []model.Socket) []string {
	out := append([]string(nil), GlobalObservations...)
	for _, s := range sockets {
		for _, f := range SocketObservations {
			out = append(out, s.Name+"_"+f)
		}
	}
	return out
}

// ActionNames is the BESS setpoint followed by one fraction per socket.
func ActionNames(sockets []model.Socket) []string {
	out := []string{"bess_setpoint"}
	for _, s := range sockets {
		out = append(out, s.Name+"_power_fraction")
	}
	return out
}

type PVAsset struct {
	NameplateKWp float64 `json:"nameplate_kWp"`
}

// ChargerAsset is one socket with the CSV that carries its demand.
type ChargerAsset struct {
	model.Socket
	File         string `json:"file"`
	Controllable bool   `json:"controllable"`
}

type Building struct {
	Name             string           `json:"name"`
	EnergySimulation string           `json:"energy_simulation"`
	PV               PVAsset          `json:"pv"`
	BESS             model.BESSParams `json:"bess"`
	Chargers         []ChargerAsset   `json:"chargers"`
}

type RewardSpec struct {
	Type    string             `json:"type"`
	Weights map[string]float64 `json:"weights"`
}

// Schema is the dataset manifest. The environment loads it unchanged.
type Schema struct {
	Version            int          `json:"schema_version"`
	Scenario           string       `json:"scenario"`
	CentralAgent       bool         `json:"central_agent"`
	SecondsPerTimeStep int          `json:"seconds_per_time_step"`
	StartTimeStep      int          `json:"simulation_start_time_step"`
	EndTimeStep        int          `json:"simulation_end_time_step"`
	CalendarYear       int          `json:"calendar_year"`
	PeakWindow         [2]int       `json:"peak_window"`
	OperatingHours     [2]int       `json:"operating_hours"`
	SOCArrival         float64      `json:"soc_arrival"`
	CarbonIntensity    float64      `json:"carbon_intensity_kg_per_kwh"`
	EVCombustion       float64      `json:"ev_combustion_kg_per_kwh"`
	Tariff             model.Tariff `json:"tariff"`
	Reward             RewardSpec   `json:"reward_function"`
	Buildings          []Building   `json:"buildings"`
	Observations       []string     `json:"observations"`
	Actions            []string     `json:"actions"`
}

// Steps is the episode length declared by the schema.
func (s *Schema) Steps() int { return s.EndTimeStep - s.StartTimeStep + 1 }

// Sockets returns the socket list of the first building.
func (s *Schema) Sockets() []model.Socket {
	if len(s.Buildings) == 0 {
		return nil
	}
	out := make([]model.Socket, len(s.Buildings[0].Chargers))
	for i, c := range s.Buildings[0].Chargers {
		out[i] = c.Socket
	}
	return out
}

// Validate checks the manifest is self-consistent.
func (s *Schema) Validate() error {
	if s.Steps() != model.HoursPerYear {
		return fault.InputSchema(SchemaFile, "horizon is %d steps, want %d", s.Steps(), model.HoursPerYear)
	}
	if s.SecondsPerTimeStep != SecondsPerTimeStep {
		return fault.InputSchema(SchemaFile, "seconds_per_time_step is %d, want %d", s.SecondsPerTimeStep, SecondsPerTimeStep)
	}
	if len(s.Buildings) == 0 {
		return fault.InputSchema(SchemaFile, "no buildings")
	}
	socks := s.Sockets()
	if want := len(GlobalObservations) + len(SocketObservations)*len(socks); len(s.Observations) != want {
		return fault.ObservationShape(len(s.Observations), want)
	}
	if len(s.Actions) != 1+len(socks) {
		return fault.InputSchema(SchemaFile, "%d actions for %d sockets", len(s.Actions), len(socks))
	}
	return nil
}

func writeSchema(path string, s *Schema) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

// ReadSchema loads and validates dir/schema.json.
func ReadSchema(dir string) (*Schema, error) {
	path := filepath.Join(dir, SchemaFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.InputNotFound(path, err)
	}
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fault.InputSchema(path, "%v", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// GlobalIndex is the position of a building-level feature in the flat
// observation, or -1.
func GlobalIndex(name string) int {
	for i, n := range GlobalObservations {
		if n == name {
			return i
		}
	}
	return -1
}

// SocketIndex is the position of feature for socket s, or -1.
func SocketIndex(s int, feature string) int {
	for i, n := range SocketObservations {
		if n == feature {
			return len(GlobalObservations) + s*len(SocketObservations) + i
		}
	}
	return -1
}
