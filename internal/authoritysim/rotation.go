package authoritysim

import (
	"math/rand"
)

// DefaultSyllables is the built-in challenge-token pool for the simulator.
// Real deployments source their pool from the word-list pipeline, which is
// outside this repository.
var DefaultSyllables = []string{
	"an", "ar", "at", "be", "ca", "co", "de", "di", "en", "er",
	"es", "in", "is", "it", "le", "lu", "ma", "me", "nt", "on",
	"or", "ra", "re", "ri", "ro", "st", "ta", "te", "ti", "tr",
}

// SyllableRotation hands out challenge tokens without repeating until the
// pool is exhausted. Each room owns its own rotation so concurrent games
// never leak picks into each other and tests stay deterministic.
type SyllableRotation struct {
	pool   []string
	order  []int
	cursor int
	rng    *rand.Rand
}

// NewSyllableRotation creates a rotation over pool using rng for shuffling.
func NewSyllableRotation(pool []string, rng *rand.Rand) *SyllableRotation {
	r := &SyllableRotation{
		pool: append([]string(nil), pool...),
		rng:  rng,
	}
	r.reshuffle()
	return r
}

func (r *SyllableRotation) reshuffle() {
	r.order = r.rng.Perm(len(r.pool))
	r.cursor = 0
}

// Next returns the next challenge token, reshuffling once the pool wraps.
func (r *SyllableRotation) Next() string {
	if len(r.pool) == 0 {
		return ""
	}
	if r.cursor >= len(r.order) {
		r.reshuffle()
	}
	s := r.pool[r.order[r.cursor]]
	r.cursor++
	return s
}
