package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nameplate = BESSParams{
	CapacityKWh: 1700,
	PowerKW:     400,
	Efficiency:  0.95,
	MinSOC:      0.2,
	MaxSOC:      1.0,
	InitialSOC:  0.2,
}

func TestBESSParamsValidate(t *testing.T) {
	require.NoError(t, nameplate.Validate())

	bad := nameplate
	bad.Efficiency = 1.2
	assert.Error(t, bad.Validate())

	bad = nameplate
	bad.InitialSOC = 0.1
	assert.Error(t, bad.Validate())

	bad = nameplate
	bad.MinSOC, bad.MaxSOC = 0.9, 0.5
	assert.Error(t, bad.Validate())
}

func TestChargeUsesSqrtEfficiencyOnInputLeg(t *testing.T) {
	b, err := NewBESS(nameplate)
	require.NoError(t, err)

	res, err := b.Apply(400, 0, 1e-6)
	require.NoError(t, err)
	want := 0.2 + 400*math.Sqrt(0.95)/1700
	assert.InDelta(t, want, b.SOC, 1e-12)
	assert.InDelta(t, 0, res.ClipKWh, 1e-9)
	assert.Equal(t, 0.2, res.SOCStart)
}

func TestDischargeToFloorLandsOnFloor(t *testing.T) {
	p := nameplate
	p.InitialSOC = 0.5
	b, err := NewBESS(p)
	require.NoError(t, err)

	avail := b.DischargeAvailableKWh(0.4)
	assert.InDelta(t, 0.1*1700*math.Sqrt(0.95), avail, 1e-9)

	_, err = b.Apply(0, avail, 1e-6)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, b.SOC, 1e-12)
}

func TestHeadroomIsPowerLimited(t *testing.T) {
	b, err := NewBESS(nameplate)
	require.NoError(t, err)
	assert.Equal(t, 400.0, b.ChargeHeadroomKWh())

	b.SOC = 0.99
	assert.InDelta(t, 0.01*1700/math.Sqrt(0.95), b.ChargeHeadroomKWh(), 1e-9)
	b.SOC = 1.0
	assert.Equal(t, 0.0, b.ChargeHeadroomKWh())
}

func TestApplyRejectsSimultaneousFlows(t *testing.T) {
	b, err := NewBESS(nameplate)
	require.NoError(t, err)
	_, err = b.Apply(10, 10, 1e-6)
	assert.Error(t, err)

	_, err = b.Apply(500, 0, 1e-6)
	assert.Error(t, err)
}

func TestApplyReportsClip(t *testing.T) {
	b, err := NewBESS(nameplate)
	require.NoError(t, err)
	// Discharging an empty battery clips the whole request.
	res, err := b.Apply(0, 100, 1e-6)
	require.NoError(t, err)
	assert.Greater(t, res.ClipKWh, 1.0)
	assert.Equal(t, 0.2, b.SOC)
}

func TestModeFromFlows(t *testing.T) {
	assert.Equal(t, ModeCharging, ModeFromFlows(3, 0))
	assert.Equal(t, ModeDischarging, ModeFromFlows(0, 3))
	assert.Equal(t, ModeIdle, ModeFromFlows(0, 0))
}
