// Package dataset reads and validates the four OE2 input series into an
// aligned model.Inputs value.
package dataset

import (
	"iquitos-ems/internal/config"
	"iquitos-ems/internal/fault"
	"iquitos-ems/internal/model"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Load reads every declared input. Undeclared files are configuration
// errors; there is no synthetic fallback.
func Load(cfg *config.Config) (*model.Inputs, error) {
	in := cfg.OE2.Inputs
	required := []struct{ field, path string }{
		{"oe2.inputs.pv_file", in.PVFile},
		{"oe2.inputs.ev_file", in.EVFile},
		{"oe2.inputs.mall_file", in.MallFile},
	}
	for _, r := range required {
		if r.path == "" {
			return nil, fault.Config(r.field, "is required")
		}
	}

	cal, err := cfg.Calendar()
	if err != nil {
		return nil, fault.Config("oe2.calendar_year", "%v", err)
	}

	pv, err := LoadPV(in.PVFile, in.PVColumns, PVOptions{
		NameplateKWp:          cfg.OE2.PV.NameplateKWp,
		CapacityFactorCeiling: cfg.OE2.PV.CapacityFactorCeiling,
	})
	if err != nil {
		return nil, err
	}

	fleet := cfg.OE2.EVFleet
	ev, err := LoadEV(in.EVFile, EVOptions{
		ColumnPattern: in.EVColumnPattern,
		Sockets:       model.NewFleet(fleet.NChargers, fleet.SocketsPerCharger, fleet.MotoSockets, fleet.SocketPowerKW),
		OpenHour:      fleet.OperatingHours[0],
		CloseHour:     fleet.OperatingHours[1],
	})
	if err != nil {
		return nil, err
	}

	fallback := in.MallLastNumericFallback == nil || *in.MallLastNumericFallback
	mall, err := LoadMall(in.MallFile, MallOptions{
		Columns:             in.MallColumns,
		LastNumericFallback: fallback,
		Calendar:            cal,
		Tariff:              cfg.Tariff(),
	})
	if err != nil {
		return nil, err
	}

	var file *model.BESSParams
	if in.BESSFile != "" {
		p, err := LoadBESS(in.BESSFile)
		if err != nil {
			return nil, err
		}
		file = &p
	}
	bess, err := cfg.ResolveBESS(file)
	if err != nil {
		return nil, err
	}

	log.Info().Str("component", "dataset").
		Float64("pv_kwh", lo.Sum(pv)).
		Float64("ev_kwh", lo.Sum(ev.Aggregate())).
		Float64("mall_kwh", lo.Sum(mall.KWh)).
		Int("sockets", ev.NumSockets()).
		Msg("inputs loaded")

	return &model.Inputs{PV: pv, EV: ev, Mall: mall, BESS: bess, Calendar: cal}, nil
}
