// Package model declares the capability the sampler core requires from
// any user-supplied probability model (spec §4.2). The sampler is
// generic over this interface rather than templated at compile time the
// way the reference implementation is, but the generic type parameter
// on Sampler still lets log_likelihood calls monomorphize and inline
// (design note 9's stated preference).
package model

import "github.com/jihwankim/dns-sampler/internal/rng"

// Model is the capability a concrete probability model must provide.
// There is deliberately no New(rng) method here: Go has no static
// methods, so each concrete model package instead exposes a free New
// constructor returning its concrete type, which (bound to any extra
// setup data, as linefit's data points are) serves as the Sampler's
// Factory.
type Model interface {
	// Perturb mutates the model state by one proposal and returns
	// log(proposal correction) such that acceptance against the prior
	// alone uses min(1, exp(logH)).
	Perturb(stream *rng.Stream) (logH float64)

	// LogLikelihood is a pure function of the current state. NaN is a
	// legal return value and must be treated as -Inf by callers.
	LogLikelihood() float64

	// ToBlob serializes the current state to a deterministic byte
	// sequence: little-endian float64 values in ParameterNames order.
	ToBlob() []byte

	// FromBlob restores state from a blob produced by ToBlob.
	FromBlob([]byte) error

	// ParameterNames lists human-readable parameter names in the order
	// ToBlob/String emit them.
	ParameterNames() []string

	// String renders the current state as a comma-separated value list
	// matching ParameterNames.
	String() string
}
