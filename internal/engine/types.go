package engine

import (
	"math/rand/v2"
	"sync"
)

// Seeds configure a replayable HMAC stream.
type Seeds struct {
	Server string // ASCII; do NOT hex-decode
	Client string
}

// Source yields independent uniform draws in [0,1). Every outcome generator
// takes its randomness from a Source and from nothing else.
type Source interface {
	Float64() float64
}

// Intn maps one draw onto [0,n).
func Intn(src Source, n int) int {
	if n <= 0 {
		return 0
	}
	i := int(src.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// PCGSource is the default non-replayable source.
type PCGSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededSource returns a PCG-backed source. Equal seeds give equal streams.
func NewSeededSource(seed1, seed2 uint64) *PCGSource {
	return &PCGSource{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// NewSource seeds a PCG source from the runtime's random state.
func NewSource() *PCGSource {
	return NewSeededSource(rand.Uint64(), rand.Uint64())
}

func (s *PCGSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// SliceSource replays fixed draws, then keeps returning 0.
type SliceSource struct {
	draws []float64
	pos   int
}

func NewSliceSource(draws ...float64) *SliceSource {
	return &SliceSource{draws: draws}
}

func (s *SliceSource) Float64() float64 {
	if s.pos >= len(s.draws) {
		s.pos++
		return 0
	}
	f := s.draws[s.pos]
	s.pos++
	return f
}

// Used reports how many draws have been taken.
func (s *SliceSource) Used() int { return s.pos }

// Counter wraps a Source and counts draws.
type Counter struct {
	Source
	N int
}

func (c *Counter) Float64() float64 {
	c.N++
	return c.Source.Float64()
}
