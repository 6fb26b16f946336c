package model

// Mode is a human-friendly battery operating mode for an hour.
// Keep these values stable; they are written to the ledger CSV.
type Mode string

const (
	ModeCharging    Mode = "CHARGING"
	ModeIdle        Mode = "IDLE"
	ModeDischarging Mode = "DISCHARGING"
)

// ModeFromFlows classifies an hour by its battery flows (kWh).
func ModeFromFlows(chargeKWh, dischargeKWh float64) Mode {
	switch {
	case chargeKWh > 0:
		return ModeCharging
	case dischargeKWh > 0:
		return ModeDischarging
	default:
		return ModeIdle
	}
}
