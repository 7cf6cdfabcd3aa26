// Package rosenbrock implements the 50-dimensional Rosenbrock test model
// used by boundary scenario S2: a uniform prior on [-10,10]^50 with the
// negative Rosenbrock function as log-likelihood. It is a deliberately
// hard, curved, narrow-ridge target that a correct sampler must climb
// through many levels to explore — S2 only asserts the level ladder
// grows monotonically to at least 50 levels before capping out, which is
// a structural check on the Sampler/LevelSet, not a numeric assertion on
// this model.
package rosenbrock

import (
	"strconv"
	"strings"

	"github.com/jihwankim/dns-sampler/internal/model/box"
	"github.com/jihwankim/dns-sampler/internal/rng"
)

// NumParams is the dimensionality of the test problem.
const NumParams = 50

const (
	lo = -10.0
	hi = 10.0
)

var paramNames = func() []string {
	names := make([]string, NumParams)
	for i := range names {
		names[i] = "theta" + strconv.Itoa(i)
	}
	return names
}()

// Model is a uniform-box model whose coordinates are affinely mapped
// into [-10,10] before evaluating the Rosenbrock function.
type Model struct {
	*box.Box
}

// New draws a fresh Model from the prior.
func New(stream *rng.Stream) *Model {
	return &Model{Box: box.New(stream, NumParams)}
}

func (m *Model) xs() []float64 {
	xs := make([]float64, len(m.Us))
	for i, u := range m.Us {
		xs[i] = lo + (hi-lo)*u
	}
	return xs
}

// LogLikelihood is the negative of the classic Rosenbrock "banana"
// function, summed over consecutive coordinate pairs.
func (m *Model) LogLikelihood() float64 {
	xs := m.xs()
	var f float64
	for i := 0; i < len(xs)-1; i++ {
		d1 := xs[i+1] - xs[i]*xs[i]
		d2 := 1 - xs[i]
		f += 100*d1*d1 + d2*d2
	}
	return -f
}

// ParameterNames lists theta0..theta49.
func (m *Model) ParameterNames() []string { return paramNames }

// String renders the mapped coordinates as CSV.
func (m *Model) String() string {
	xs := m.xs()
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
