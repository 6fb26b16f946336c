package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (a single YAML file). Defaults
// are declared with env-default tags; a handful of fields can be overridden
// from the environment.
type Config struct {
	OE2 OE2Config `yaml:"oe2"`
	OE3 OE3Config `yaml:"oe3"`

	path string
}

type OE2Config struct {
	CalendarYear int           `yaml:"calendar_year" env-default:"2025"`
	Inputs       InputsConfig  `yaml:"inputs"`
	PV           PVConfig      `yaml:"pv"`
	BESS         BESSConfig    `yaml:"bess"`
	EVFleet      EVFleetConfig `yaml:"ev_fleet"`
	Tariff       TariffConfig  `yaml:"tariff"`
}

// InputsConfig declares the input files and the column priority lists used
// to detect the relevant columns.
type InputsConfig struct {
	PVFile          string   `yaml:"pv_file"`
	PVColumns       []string `yaml:"pv_columns" env-default:"potencia_kw,pv_generation_kwh,ac_power_kw"`
	EVFile          string   `yaml:"ev_file"`
	EVColumnPattern string   `yaml:"ev_column_pattern" env-default:"charger_power_kw"`
	MallFile        string   `yaml:"mall_file"`
	MallColumns     []string `yaml:"mall_columns" env-default:"mall_demand_kwh,demanda_kwh,kwh"`
	// Nil means true: fall back to the last numeric column, with a warning.
	MallLastNumericFallback *bool  `yaml:"mall_last_numeric_fallback"`
	BESSFile                string `yaml:"bess_file"`
}

type PVConfig struct {
	NameplateKWp          float64 `yaml:"nameplate_kwp"`
	CapacityFactorCeiling float64 `yaml:"capacity_factor_ceiling" env-default:"0.35"`
}

// BESSConfig overlays the BESS JSON file. Zero nameplate fields fall back to
// the file, then to the reference sizing (1,700 kWh / 400 kW / 0.95 / 0.2).
type BESSConfig struct {
	CapacityKWh      float64 `yaml:"capacity_kWh"`
	PowerKW          float64 `yaml:"power_kW"`
	Efficiency       float64 `yaml:"efficiency"`
	SOCMin           float64 `yaml:"soc_min"`
	SOCMax           float64 `yaml:"soc_max"`
	InitialSOC       float64 `yaml:"initial_soc"`
	PeakThresholdKW  float64 `yaml:"peak_threshold_kW" env-default:"1900"`
	SOCTargetPrePeak float64 `yaml:"soc_target_prepeak" env-default:"0.70"`
	SOCTargetPeak    float64 `yaml:"soc_target_peak" env-default:"0.40"`
	DispatchMode     string  `yaml:"dispatch_mode" env-default:"active"`
}

type EVFleetConfig struct {
	NChargers         int     `yaml:"n_chargers" env-default:"19"`
	SocketsPerCharger int     `yaml:"sockets_per_charger" env-default:"2"`
	MotoSockets       int     `yaml:"moto_sockets" env-default:"30"`
	SocketPowerKW     float64 `yaml:"socket_power_kW" env-default:"7.4"`
	OperatingHours    []int   `yaml:"operating_hours" env-default:"9,22"`
	PeakWindow        []int   `yaml:"peak_window" env-default:"18,23"`
	SOCArrival        float64 `yaml:"soc_arrival" env-default:"0.2"`
}

type TariffConfig struct {
	Peak    float64 `yaml:"peak" env-default:"0.50"`
	OffPeak float64 `yaml:"off_peak" env-default:"0.30"`
}

type OE3Config struct {
	Scenario   string          `yaml:"scenario" env-default:"iquitos"`
	DatasetDir string          `yaml:"dataset_dir" env-default:"data/processed/citylearn"`
	Grid       GridConfig      `yaml:"grid"`
	Reward     RewardConfig    `yaml:"reward"`
	Training   TrainingConfig  `yaml:"training"`
	AgentFile  string          `yaml:"agent_file"`
	Agent      AgentsConfig    `yaml:"agent"`
	Baselines  BaselinesConfig `yaml:"baselines"`
}

type GridConfig struct {
	CarbonIntensity float64 `yaml:"carbon_intensity_kg_per_kwh" env-default:"0.4521"`
	EVCombustion    float64 `yaml:"ev_combustion_kg_per_kwh" env-default:"2.146"`
}

type WeightsConfig struct {
	CO2   float64 `yaml:"co2" json:"co2"`
	Cost  float64 `yaml:"cost" json:"cost"`
	Solar float64 `yaml:"solar" json:"solar"`
	EV    float64 `yaml:"ev" json:"ev"`
	Grid  float64 `yaml:"grid" json:"grid"`
}

type PenaltiesConfig struct {
	// Nil means the default coefficient (0.05 end-of-day, 0 pre-peak).
	EndOfDay *float64 `yaml:"end_of_day"`
	PrePeak  *float64 `yaml:"prepeak"`
}

type RewardConfig struct {
	Preset            string          `yaml:"preset" env-default:"co2_focus"`
	Weights           *WeightsConfig  `yaml:"weights"`
	CO2ScaleKg        float64         `yaml:"co2_scale_kg" env-default:"45"`
	PeakCO2Multiplier float64         `yaml:"peak_co2_multiplier" env-default:"4"`
	CostScale         float64         `yaml:"cost_scale" env-default:"100"`
	SolarGridPenalty  float64         `yaml:"solar_grid_penalty" env-default:"0.5"`
	GridLimitPeakKW   float64         `yaml:"grid_limit_peak_kW" env-default:"200"`
	GridLimitOffKW    float64         `yaml:"grid_limit_offpeak_kW" env-default:"150"`
	EVTargetSOC       float64         `yaml:"ev_target_soc" env-default:"0.85"`
	Penalties         PenaltiesConfig `yaml:"penalties"`
}

type TrainingConfig struct {
	Episodes            int    `yaml:"episodes" env:"EMS_EPISODES" env-default:"10"`
	CheckpointFreqSteps int    `yaml:"checkpoint_freq_steps" env-default:"1000"`
	Seed                uint64 `yaml:"seed" env:"EMS_SEED" env-default:"42"`
	Device              string `yaml:"device" env:"EMS_DEVICE" env-default:"cpu"`
	// Nil means true.
	RetainIntermediate  *bool  `yaml:"retain_intermediate"`
	CheckpointDir       string `yaml:"checkpoint_dir" env:"EMS_CHECKPOINT_DIR" env-default:"checkpoints"`
	OutputDir           string `yaml:"output_dir" env:"EMS_OUTPUT_DIR" env-default:"outputs"`
	MetricsDB           string `yaml:"metrics_db" env:"EMS_METRICS_DB"`
	MovingAverageWindow int    `yaml:"moving_average_window" env-default:"100"`
}

// Retain reports whether intermediate checkpoints are kept.
func (t TrainingConfig) Retain() bool {
	return t.RetainIntermediate == nil || *t.RetainIntermediate
}

type AgentsConfig struct {
	SAC SACConfig `yaml:"sac"`
	PPO PPOConfig `yaml:"ppo"`
	A2C A2CConfig `yaml:"a2c"`
}

type SACConfig struct {
	LearningRate   float64 `yaml:"learning_rate" json:"learning_rate" env-default:"0.0003"`
	BufferSize     int     `yaml:"buffer_size" json:"buffer_size"`
	BatchSize      int     `yaml:"batch_size" json:"batch_size" env-default:"64"`
	Tau            float64 `yaml:"tau" json:"tau" env-default:"0.005"`
	Gamma          float64 `yaml:"gamma" json:"gamma" env-default:"0.99"`
	EntCoef        float64 `yaml:"ent_coef" json:"ent_coef" env-default:"0.05"`
	LearningStarts int     `yaml:"learning_starts" json:"learning_starts" env-default:"256"`
	TrainFreq      int     `yaml:"train_freq" json:"train_freq" env-default:"1"`
	GradientSteps  int     `yaml:"gradient_steps" json:"gradient_steps" env-default:"1"`
	InitLogStd     float64 `yaml:"init_log_std" json:"init_log_std" env-default:"-0.5"`
}

type PPOConfig struct {
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate" env-default:"0.0003"`
	NSteps       int     `yaml:"n_steps" json:"n_steps" env-default:"2048"`
	BatchSize    int     `yaml:"batch_size" json:"batch_size" env-default:"64"`
	NEpochs      int     `yaml:"n_epochs" json:"n_epochs" env-default:"10"`
	Gamma        float64 `yaml:"gamma" json:"gamma" env-default:"0.99"`
	GAELambda    float64 `yaml:"gae_lambda" json:"gae_lambda" env-default:"0.95"`
	ClipRange    float64 `yaml:"clip_range" json:"clip_range" env-default:"0.2"`
	EntCoef      float64 `yaml:"ent_coef" json:"ent_coef"`
	VFCoef       float64 `yaml:"vf_coef" json:"vf_coef" env-default:"0.5"`
	InitLogStd   float64 `yaml:"init_log_std" json:"init_log_std" env-default:"-0.5"`
}

type A2CConfig struct {
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate" env-default:"0.0007"`
	NSteps       int     `yaml:"n_steps" json:"n_steps" env-default:"8"`
	Gamma        float64 `yaml:"gamma" json:"gamma" env-default:"0.99"`
	EntCoef      float64 `yaml:"ent_coef" json:"ent_coef"`
	VFCoef       float64 `yaml:"vf_coef" json:"vf_coef" env-default:"0.5"`
	InitLogStd   float64 `yaml:"init_log_std" json:"init_log_std" env-default:"-0.5"`
}

// ScheduleWindow is one fixed-schedule rule: a power fraction applied to a
// socket class inside an HH:MM-HH:MM window.
type ScheduleWindow struct {
	Class    string  `yaml:"class"`
	Window   string  `yaml:"window"`
	Fraction float64 `yaml:"fraction"`
}

type BaselinesConfig struct {
	FixedSchedule           []ScheduleWindow `yaml:"fixed_schedule"`
	EVSatisfactionTolerance float64          `yaml:"ev_satisfaction_tolerance" env-default:"0.05"`
}

// DefaultSchedule is 60% for motos 09–17 h and 70% for mototaxis 09–21 h.
var DefaultSchedule = []ScheduleWindow{
	{Class: string(model.SocketMoto), Window: "09:00-18:00", Fraction: 0.60},
	{Class: string(model.SocketMototaxi), Window: "09:00-22:00", Fraction: 0.70},
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked reads the YAML, applies env-default tags and environment
// overrides, resolves relative input paths and overlays the agent file, but
// does not validate.
func LoadUnchecked(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fault.InputNotFound(path, err)
	}
	var c Config
	if err := cleanenv.ReadConfig(path, &c); err != nil {
		return nil, &fault.ConfigError{Field: path, Detail: "cannot parse", Err: err}
	}
	c.path = path
	c.resolvePaths(filepath.Dir(path))
	if c.OE3.AgentFile != "" {
		if err := c.overlayAgentFile(c.OE3.AgentFile); err != nil {
			return nil, err
		}
	}
	c.applyDefaults()
	return &c, nil
}

// Default returns the configuration obtained from defaults and environment
// only. Input files must be set by the caller.
func Default() (*Config, error) {
	var c Config
	if err := cleanenv.ReadEnv(&c); err != nil {
		return nil, &fault.ConfigError{Field: "env", Detail: "cannot read", Err: err}
	}
	c.applyDefaults()
	return &c, nil
}

// Path returns the file the config was read from, if any.
func (c *Config) Path() string { return c.path }

func (c *Config) applyDefaults() {
	if len(c.OE3.Baselines.FixedSchedule) == 0 {
		c.OE3.Baselines.FixedSchedule = append([]ScheduleWindow(nil), DefaultSchedule...)
	}
}

func (c *Config) resolvePaths(dir string) {
	in := &c.OE2.Inputs
	for _, p := range []*string{&in.PVFile, &in.EVFile, &in.MallFile, &in.BESSFile, &c.OE3.AgentFile} {
		*p = resolve(dir, *p)
	}
}

// resolve prefers interpreting relative paths as relative to the config
// file directory, falling back to the path as given (relative to cwd).
func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	cand := filepath.Join(dir, p)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return p
}

func (c *Config) overlayAgentFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fault.InputNotFound(path, err)
	}
	// Only keys present in the file replace the current values.
	if err := yaml.Unmarshal(raw, &c.OE3.Agent); err != nil {
		return &fault.ConfigError{Field: "oe3.agent_file", Detail: "cannot parse", Err: err}
	}
	return nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := model.NewCalendar(c.OE2.CalendarYear, c.peakStart(), c.peakEnd()); err != nil {
		return fault.Config("oe2.calendar_year", "%v", err)
	}
	ev := c.OE2.EVFleet
	if ev.NChargers <= 0 || ev.SocketsPerCharger <= 0 {
		return fault.Config("oe2.ev_fleet", "n_chargers and sockets_per_charger must be > 0")
	}
	if ev.MotoSockets < 0 || ev.MotoSockets > ev.Sockets() {
		return fault.Config("oe2.ev_fleet.moto_sockets", "must be within [0, %d]", ev.Sockets())
	}
	if ev.SocketPowerKW <= 0 {
		return fault.Config("oe2.ev_fleet.socket_power_kW", "must be > 0")
	}
	if len(ev.OperatingHours) != 2 || ev.OperatingHours[0] < 0 || ev.OperatingHours[1] > 23 ||
		ev.OperatingHours[0] > ev.OperatingHours[1] {
		return fault.Config("oe2.ev_fleet.operating_hours", "want [open, close] within 0..23, got %v", ev.OperatingHours)
	}
	if len(ev.PeakWindow) != 2 {
		return fault.Config("oe2.ev_fleet.peak_window", "want [start, end], got %v", ev.PeakWindow)
	}
	if ev.SOCArrival < 0 || ev.SOCArrival >= 1 {
		return fault.Config("oe2.ev_fleet.soc_arrival", "must be in [0, 1)")
	}
	b := c.OE2.BESS
	if b.DispatchMode != "active" && b.DispatchMode != "passive" {
		return fault.Config("oe2.bess.dispatch_mode", "want active or passive, got %q", b.DispatchMode)
	}
	if b.PeakThresholdKW < 0 {
		return fault.Config("oe2.bess.peak_threshold_kW", "must be >= 0")
	}
	if c.OE3.Grid.CarbonIntensity <= 0 || c.OE3.Grid.EVCombustion < 0 {
		return fault.Config("oe3.grid", "carbon factors must be positive")
	}
	if w := c.OE3.Reward.Weights; w != nil {
		sum := w.CO2 + w.Cost + w.Solar + w.EV + w.Grid
		if math.Abs(sum-1) > 1e-6 {
			return fault.InvalidWeights("oe3.reward.weights sum to %.6f, want 1", sum)
		}
	}
	t := c.OE3.Training
	if t.Episodes <= 0 {
		return fault.Config("oe3.training.episodes", "must be > 0")
	}
	if t.CheckpointFreqSteps <= 0 {
		return fault.Config("oe3.training.checkpoint_freq_steps", "must be > 0")
	}
	if t.Device != "cpu" {
		return fault.Config("oe3.training.device", "only cpu is supported, got %q", t.Device)
	}
	if t.MovingAverageWindow <= 0 {
		return fault.Config("oe3.training.moving_average_window", "must be > 0")
	}
	for i, w := range c.OE3.Baselines.FixedSchedule {
		if w.Fraction < 0 || w.Fraction > 1 {
			return fault.Config(fmt.Sprintf("oe3.baselines.fixed_schedule[%d].fraction", i), "must be in [0, 1]")
		}
	}
	return nil
}

// Sockets returns S = n_chargers × sockets_per_charger.
func (e EVFleetConfig) Sockets() int { return e.NChargers * e.SocketsPerCharger }

func (c *Config) peakStart() int {
	if len(c.OE2.EVFleet.PeakWindow) == 2 {
		return c.OE2.EVFleet.PeakWindow[0]
	}
	return model.DefaultPeakStart
}

func (c *Config) peakEnd() int {
	if len(c.OE2.EVFleet.PeakWindow) == 2 {
		return c.OE2.EVFleet.PeakWindow[1]
	}
	return model.DefaultPeakEnd
}

// Calendar builds the hour calendar for the configured year and peak window.
func (c *Config) Calendar() (model.Calendar, error) {
	return model.NewCalendar(c.OE2.CalendarYear, c.peakStart(), c.peakEnd())
}

// Tariff returns the two-level tariff.
func (c *Config) Tariff() model.Tariff {
	return model.Tariff{Peak: c.OE2.Tariff.Peak, OffPeak: c.OE2.Tariff.OffPeak}
}

// Dump writes the effective configuration as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
