package agent

// rollout is the on-policy storage shared by PPO and A2C.
type rollout struct {
	phi     [][]float64
	actions [][]float64
	logp    []float64
	values  []float64
	rewards []float64
	dones   []bool
}

func (r *rollout) add(phi, a []float64, logp, v, rew float64, done bool) {
	r.phi = append(r.phi, phi)
	r.actions = append(r.actions, a)
	r.logp = append(r.logp, logp)
	r.values = append(r.values, v)
	r.rewards = append(r.rewards, rew)
	r.dones = append(r.dones, done)
}

func (r *rollout) len() int { return len(r.rewards) }

func (r *rollout) reset() {
	r.phi = r.phi[:0]
	r.actions = r.actions[:0]
	r.logp = r.logp[:0]
	r.values = r.values[:0]
	r.rewards = r.rewards[:0]
	r.dones = r.dones[:0]
}

// gae returns advantages and returns with generalised advantage estimation.
// lastValue bootstraps the step after the rollout. λ = 1 gives plain
// n-step returns.
func (r *rollout) gae(lastValue, gamma, lambda float64) (adv, ret []float64) {
	n := r.len()
	adv = make([]float64, n)
	ret = make([]float64, n)
	next := lastValue
	acc := 0.0
	for t := n - 1; t >= 0; t-- {
		nonTerminal := 1.0
		if r.dones[t] {
			nonTerminal = 0
		}
		delta := r.rewards[t] + gamma*next*nonTerminal - r.values[t]
		acc = delta + gamma*lambda*nonTerminal*acc
		adv[t] = acc
		ret[t] = acc + r.values[t]
		next = r.values[t]
	}
	return adv, ret
}
