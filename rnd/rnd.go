package rnd

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Role identifies an independent substream of a Stream.
type Role uint64

const (
	// Init is the initial state draw substream
	Init Role = iota
	// Process is the process (state) noise substream
	Process
	// Observation is the observation (output) noise substream
	Observation
)

// Stream is a deterministic, splittable source of pseudo-randomness.
// One seed fans out into mutually independent child sources indexed by
// (timestep, role): the same seed reproduces the same draws, while no two
// (timestep, role) pairs ever share a source.
type Stream struct {
	seed uint64
}

// NewStream creates a new Stream derived from seed and returns it.
func NewStream(seed uint64) *Stream {
	return &Stream{seed: seed}
}

// At returns an independent source for the given timestep and role.
// It panics if t is negative.
func (s *Stream) At(t int, role Role) rand.Source {
	if t < 0 {
		panic(fmt.Sprintf("invalid timestep: %d", t))
	}

	return rand.NewSource(childSeed(s.seed, uint64(t), uint64(role)))
}

// childSeed derives a well separated seed for the (t, role) substream
// using two rounds of the splitmix64 finalizer.
func childSeed(seed, t, role uint64) uint64 {
	z := mix64(seed + (t+1)*0x9e3779b97f4a7c15)
	return mix64(z + (role+1)*0xbf58476d1ce4e5b9)
}

func mix64(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31

	return z
}
