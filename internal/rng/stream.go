// Package rng provides one seedable, independent uniform/normal/Cauchy
// stream per sampler worker. Each worker owns exactly one Stream and
// never shares it; see internal/sampler for the disjoint-slice
// assignment that keeps that true.
package rng

import (
	"math"
	"math/rand/v2"
)

// Stream is a single worker's random source. The corpus carries no
// third-party PRNG (no package in the retrieved examples vendors or
// imports one), so Stream wraps the standard library's PCG generator,
// which is seedable from two 64-bit words, fast, and has good
// stream-independence properties when seeded from distinct integers.
type Stream struct {
	src *rand.Rand
	pcg *rand.PCG
}

// NewStream derives a PCG stream from a single integer seed. The two
// internal seed words are mixed with fixed odd constants so that
// sequential seeds (as produced by the sampler's seed-derivation rule)
// do not produce visibly correlated streams.
func NewStream(seed int64) *Stream {
	hi := uint64(seed)*0x9E3779B97F4A7C15 + 1
	lo := uint64(seed)*0xBF58476D1CE4E5B9 + 0x94D049BB133111EB
	pcg := rand.NewPCG(hi, lo)
	return &Stream{src: rand.New(pcg), pcg: pcg}
}

// Uniform01 returns a uniform draw in the open interval (0,1). The
// standard library's Float64 already excludes 1; an exact zero is
// nudged to the smallest representable positive float so the
// interval stays strictly open, as required for tie-breakers and
// acceptance draws.
func (s *Stream) Uniform01() float64 {
	u := s.src.Float64()
	if u <= 0 {
		u = math.SmallestNonzeroFloat64
	}
	return u
}

// Normal returns a standard normal draw.
func (s *Stream) Normal() float64 {
	return s.src.NormFloat64()
}

// Cauchy returns a standard Cauchy draw via the inverse-CDF transform.
func (s *Stream) Cauchy() float64 {
	return math.Tan(math.Pi * (s.Uniform01() - 0.5))
}

// HeavyTailed returns a heavy-tailed perturbation step, the workhorse
// proposal scale used throughout the double Metropolis step:
// 10^(1-|randc|) * randn.
func (s *Stream) HeavyTailed() float64 {
	return math.Pow(10, 1-math.Abs(s.Cauchy())) * s.Normal()
}

// IntN returns a uniform integer in [0,N).
func (s *Stream) IntN(n int) int {
	return s.src.IntN(n)
}

// MarshalBinary serializes the stream's PCG state so it can be
// persisted (e.g. into the rngs table) if a caller wants reproducible
// resume; the Sampler itself only ever persists the originating seed,
// not mid-stream state.
func (s *Stream) MarshalBinary() ([]byte, error) {
	return s.pcg.MarshalBinary()
}

// UnmarshalBinary restores a previously marshalled PCG state.
func (s *Stream) UnmarshalBinary(data []byte) error {
	if err := s.pcg.UnmarshalBinary(data); err != nil {
		return err
	}
	s.src = rand.New(s.pcg)
	return nil
}
