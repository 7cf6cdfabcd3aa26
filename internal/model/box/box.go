// Package box implements the uniform-box model helper described in
// spec §4.2: NumParams unit coordinates in [0,1) perturbed in place with
// wraparound, from which a concrete model derives its observable
// quantities. It is not itself a full model.Model — concrete models
// embed Box and supply their own LogLikelihood/ParameterNames.
package box

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jihwankim/dns-sampler/internal/mathx"
	"github.com/jihwankim/dns-sampler/internal/rng"
)

// Box holds NumParams coordinates us[i] in [0,1). A derived type embeds
// Box, reads Us to compute its own xs/likelihood, and may override
// Perturb if it needs a non-uniform proposal distribution.
type Box struct {
	Us []float64
}

// New allocates a Box with n coordinates drawn fresh from the prior.
func New(stream *rng.Stream, n int) *Box {
	us := make([]float64, n)
	for i := range us {
		us[i] = stream.Uniform01()
	}
	return &Box{Us: us}
}

// Perturb mutates one randomly chosen coordinate by a heavy-tailed step
// with wraparound into [0,1), and returns logH=0 (a uniform perturbation
// within a bounded box is its own inverse, so there is no proposal
// correction).
func (b *Box) Perturb(stream *rng.Stream) float64 {
	i := stream.IntN(len(b.Us))
	b.Us[i] = mathx.Wrap(b.Us[i] + stream.HeavyTailed())
	return 0
}

// ToBlob serializes Us as little-endian float64 values.
func (b *Box) ToBlob() []byte {
	out := make([]byte, 8*len(b.Us))
	for i, u := range b.Us {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(u))
	}
	return out
}

// FromBlob restores Us from a blob produced by ToBlob.
func (b *Box) FromBlob(data []byte) error {
	if len(data) != 8*len(b.Us) {
		return fmt.Errorf("box: blob length %d does not match %d params", len(data), len(b.Us))
	}
	for i := range b.Us {
		b.Us[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return nil
}
