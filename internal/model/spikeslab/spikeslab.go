// Package spikeslab implements the 20-dimensional spike-and-slab test
// model used by boundary scenario S1: a uniform prior on [0,1]^20 whose
// likelihood is, in every dimension independently, a two-component
// mixture of a narrow "spike" Gaussian and a broad "slab" Gaussian
// centered at 0.5. It exists purely as a fixture for exercising the
// sampler end to end; its exact evidence value is validated by running
// the sampler, not by a unit test, since doing so meaningfully requires
// thousands of real Metropolis steps.
package spikeslab

import (
	"math"
	"strconv"
	"strings"

	"github.com/jihwankim/dns-sampler/internal/model/box"
	"github.com/jihwankim/dns-sampler/internal/rng"
)

// NumParams is the dimensionality of the test problem.
const NumParams = 20

const (
	spikeSigma  = 0.01
	slabSigma   = 0.1
	spikeWeight = 0.5
	slabWeight  = 0.5
)

var paramNames = func() []string {
	names := make([]string, NumParams)
	for i := range names {
		names[i] = "x" + string(rune('0'+i/10)) + string(rune('0'+i%10))
	}
	return names
}()

// Model is a uniform-box model whose likelihood mixes a spike and a
// slab Gaussian component per dimension.
type Model struct {
	*box.Box
}

// New draws a fresh Model from the prior.
func New(stream *rng.Stream) *Model {
	return &Model{Box: box.New(stream, NumParams)}
}

func gaussianLogDensity(x, sigma float64) float64 {
	return -0.5*math.Log(2*math.Pi) - math.Log(sigma) - 0.5*(x/sigma)*(x/sigma)
}

// LogLikelihood sums, over every dimension, the log of a spike+slab
// mixture density centered at 0.5.
func (m *Model) LogLikelihood() float64 {
	var total float64
	for _, u := range m.Us {
		theta := u - 0.5
		spike := math.Log(spikeWeight) + gaussianLogDensity(theta, spikeSigma)
		slab := math.Log(slabWeight) + gaussianLogDensity(theta, slabSigma)
		hi, lo := spike, slab
		if lo > hi {
			hi, lo = lo, hi
		}
		total += hi + math.Log1p(math.Exp(lo-hi))
	}
	return total
}

// ParameterNames lists x00..x19.
func (m *Model) ParameterNames() []string { return paramNames }

// String renders the current coordinates as CSV.
func (m *Model) String() string {
	parts := make([]string, len(m.Us))
	for i, x := range m.Us {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
