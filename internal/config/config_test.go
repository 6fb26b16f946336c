package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "oe2:\n  inputs:\n    pv_file: pv.csv\n")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2025, c.OE2.CalendarYear)
	assert.Equal(t, []string{"potencia_kw", "pv_generation_kwh", "ac_power_kw"}, c.OE2.Inputs.PVColumns)
	assert.Equal(t, 1900.0, c.OE2.BESS.PeakThresholdKW)
	assert.Equal(t, 0.70, c.OE2.BESS.SOCTargetPrePeak)
	assert.Equal(t, []int{9, 22}, c.OE2.EVFleet.OperatingHours)
	assert.Equal(t, 38, c.OE2.EVFleet.Sockets())
	assert.Equal(t, 0.4521, c.OE3.Grid.CarbonIntensity)
	assert.Equal(t, 10, c.OE3.Training.Episodes)
	assert.Equal(t, 1000, c.OE3.Training.CheckpointFreqSteps)
	assert.True(t, c.OE3.Training.Retain())
	assert.Equal(t, 2048, c.OE3.Agent.PPO.NSteps)
	assert.Equal(t, 8, c.OE3.Agent.A2C.NSteps)
	assert.Len(t, c.OE3.Baselines.FixedSchedule, 2)
	assert.Equal(t, path, c.Path())
}

func TestLoadResolvesRelativeInputs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pv.csv", "potencia_kw\n1\n")
	path := writeFile(t, dir, "config.yaml", "oe2:\n  inputs:\n    pv_file: pv.csv\n")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pv.csv"), c.OE2.Inputs.PVFile)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, fault.KindInputNotFound, fault.KindOf(err))
}

func TestValidateRejectsBadWeights(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
oe3:
  reward:
    weights: {co2: 0.5, cost: 0.5, solar: 0.5, ev: 0, grid: 0}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, fault.KindInvalidWeights, fault.KindOf(err))
	assert.Equal(t, fault.ExitInput, fault.ExitCode(err))
}

func TestValidateRejectsDevice(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "oe3:\n  training:\n    device: cuda\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, fault.KindConfigError, fault.KindOf(err))
}

func TestRetainIntermediateExplicitFalse(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "oe3:\n  training:\n    retain_intermediate: false\n")
	c, err := Load(path)
	require.NoError(t, err)
	assert.False(t, c.OE3.Training.Retain())
}

func TestEnvOverridesSeed(t *testing.T) {
	t.Setenv("EMS_SEED", "7")
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "oe3:\n  training:\n    seed: 3\n")
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), c.OE3.Training.Seed)
}

func TestAgentFileOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agents.yaml", "sac:\n  batch_size: 16\nppo:\n  n_epochs: 3\n")
	path := writeFile(t, dir, "config.yaml", "oe3:\n  agent_file: agents.yaml\n")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, c.OE3.Agent.SAC.BatchSize)
	assert.Equal(t, 3, c.OE3.Agent.PPO.NEpochs)
	// untouched keys keep their defaults
	assert.Equal(t, 0.005, c.OE3.Agent.SAC.Tau)
	assert.Equal(t, 2048, c.OE3.Agent.PPO.NSteps)
}

func TestResolveBESS(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	p, err := c.ResolveBESS(nil)
	require.NoError(t, err)
	assert.Equal(t, 1700.0, p.CapacityKWh)
	assert.Equal(t, 0.2, p.InitialSOC)

	file := &model.BESSParams{CapacityKWh: 2000, PowerKW: 500, Efficiency: 0.9, MinSOC: 0.1}
	c.OE2.BESS.PowerKW = 300
	p, err = c.ResolveBESS(file)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, p.CapacityKWh)
	assert.Equal(t, 300.0, p.PowerKW, "yaml overrides the file")
	assert.Equal(t, 0.1, p.MinSOC)
	assert.Equal(t, 1.0, p.MaxSOC)

	c.OE2.BESS.Efficiency = 1.5
	_, err = c.ResolveBESS(file)
	assert.Equal(t, fault.KindConfigError, fault.KindOf(err))
}

func TestDumpRoundTrips(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, c.Dump(&buf))
	assert.Contains(t, buf.String(), "carbon_intensity_kg_per_kwh: 0.4521")

	dir := t.TempDir()
	path := writeFile(t, dir, "dump.yaml", buf.String())
	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.OE3.Training.Episodes, back.OE3.Training.Episodes)
	assert.Equal(t, c.OE2.EVFleet.OperatingHours, back.OE2.EVFleet.OperatingHours)
}
