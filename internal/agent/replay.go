package agent

import "math/rand/v2"

// ReplayBuffer is a fixed-capacity ring of transitions.
type ReplayBuffer struct {
	data []Transition
	next int
	full bool
}

func NewReplayBuffer(capacity int) *ReplayBuffer {
	return &ReplayBuffer{data: make([]Transition, capacity)}
}

func (b *ReplayBuffer) Add(tr Transition) {
	b.data[b.next] = tr
	b.next++
	if b.next == len(b.data) {
		b.next = 0
		b.full = true
	}
}

func (b *ReplayBuffer) Len() int {
	if b.full {
		return len(b.data)
	}
	return b.next
}

func (b *ReplayBuffer) Cap() int { return len(b.data) }

// Sample draws n transitions uniformly with replacement.
func (b *ReplayBuffer) Sample(n int, rng *rand.Rand) []Transition {
	size := b.Len()
	out := make([]Transition, n)
	for i := range out {
		out[i] = b.data[rng.IntN(size)]
	}
	return out
}
