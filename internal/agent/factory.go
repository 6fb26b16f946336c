package agent

import (
	"fmt"

	"iquitos-ems/internal/config"
	"iquitos-ems/internal/model"
)

// Names are the learners the factory builds, in training order.
var Names = []string{"sac", "ppo", "a2c"}

const maxBufferSize = 100_000

// DefaultBufferSize is one transition per hour of every episode, capped.
func DefaultBufferSize(episodes int) int {
	return min(model.HoursPerYear*max(1, episodes), maxBufferSize)
}

// Options select and size a learner.
type Options struct {
	Obs      int
	Act      int
	Seed     uint64
	Episodes int
}

// New builds the named learner from oe3.agent.
func New(name string, cfg config.AgentsConfig, o Options) (Agent, error) {
	switch name {
	case "sac":
		c := cfg.SAC
		if c.BufferSize <= 0 {
			c.BufferSize = DefaultBufferSize(o.Episodes)
		}
		return NewSAC(c, o.Obs, o.Act, o.Seed), nil
	case "ppo":
		return NewPPO(cfg.PPO, o.Obs, o.Act, o.Seed), nil
	case "a2c":
		return NewA2C(cfg.A2C, o.Obs, o.Act, o.Seed), nil
	default:
		return nil, fmt.Errorf("unknown agent %q (have %v)", name, Names)
	}
}
