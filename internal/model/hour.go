package model

import (
	"fmt"
	"math"
	"time"
)

// HoursPerYear is the fixed simulation horizon (non-leap year, 1 h steps).
const HoursPerYear = 8760

// Default peak window [18, 23) and EV operating window [9, 22].
const (
	DefaultPeakStart = 18
	DefaultPeakEnd   = 23
	DefaultOpenHour  = 9
	DefaultCloseHour = 22
	DefaultYear      = 2025
	TerminalHour     = 22
	PrePeakStartHour = 16
)

// HourIndex identifies one hour of the simulated year, 0..8759.
type HourIndex int

func (h HourIndex) Valid() bool { return h >= 0 && h < HoursPerYear }

// HourOfDay is 0..23.
func (h HourIndex) HourOfDay() int { return int(h) % 24 }

// DayOfYear is 1..365.
func (h HourIndex) DayOfYear() int { return int(h)/24 + 1 }

// IsPeakHour uses the default 18:00–23:00 window.
func (h HourIndex) IsPeakHour() bool {
	hd := h.HourOfDay()
	return hd >= DefaultPeakStart && hd < DefaultPeakEnd
}

// Calendar anchors hour indices to a concrete non-leap year so month and
// weekday features can be derived.
type Calendar struct {
	Year      int
	PeakStart int
	PeakEnd   int // exclusive
	start     time.Time
}

func NewCalendar(year, peakStart, peakEnd int) (Calendar, error) {
	if year <= 0 {
		year = DefaultYear
	}
	if isLeap(year) {
		return Calendar{}, fmt.Errorf("calendar year %d is a leap year; the horizon is %d hours", year, HoursPerYear)
	}
	if peakStart < 0 || peakEnd > 24 || peakStart >= peakEnd {
		return Calendar{}, fmt.Errorf("invalid peak window [%d, %d)", peakStart, peakEnd)
	}
	return Calendar{
		Year:      year,
		PeakStart: peakStart,
		PeakEnd:   peakEnd,
		start:     time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

// DefaultCalendar is 2025 with the 18–23 h peak.
func DefaultCalendar() Calendar {
	c, _ := NewCalendar(DefaultYear, DefaultPeakStart, DefaultPeakEnd)
	return c
}

func (c Calendar) Time(h HourIndex) time.Time { return c.start.Add(time.Duration(h) * time.Hour) }

// Month is 1..12.
func (c Calendar) Month(h HourIndex) int { return int(c.Time(h).Month()) }

// DayType follows the CityLearn convention: 1=Monday .. 7=Sunday.
func (c Calendar) DayType(h HourIndex) int {
	wd := int(c.Time(h).Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func (c Calendar) IsPeak(h HourIndex) bool {
	hd := h.HourOfDay()
	return hd >= c.PeakStart && hd < c.PeakEnd
}

// HourCyclic returns sin/cos encodings of the hour of day.
func HourCyclic(h HourIndex) (float64, float64) {
	a := 2 * math.Pi * float64(h.HourOfDay()) / 24
	return math.Sin(a), math.Cos(a)
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// Tariff is the two-level hourly price in currency/kWh.
type Tariff struct {
	Peak    float64 `json:"peak" yaml:"peak"`
	OffPeak float64 `json:"off_peak" yaml:"off_peak"`
}

// DefaultTariff is 0.50 peak / 0.30 off-peak.
var DefaultTariff = Tariff{Peak: 0.50, OffPeak: 0.30}

func (t Tariff) At(peak bool) float64 {
	if peak {
		return t.Peak
	}
	return t.OffPeak
}
