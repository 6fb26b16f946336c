package env

import (
	"iquitos-ems/internal/citylearn"
	"iquitos-ems/internal/reward"
)

// FromDataset builds a fresh inner simulator over ds and wraps it. The
// dataset is shared read-only between environments.
func FromDataset(ds *citylearn.Dataset, r *reward.MultiObjective) (*Env, error) {
	sim, err := citylearn.NewSim(ds)
	if err != nil {
		return nil, err
	}
	return NewWithHorizon(sim, r, ds.Schema.Steps())
}
