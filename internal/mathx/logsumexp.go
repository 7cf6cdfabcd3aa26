// Package mathx provides small numerically-careful helpers shared by the
// sampler and postprocessor: log-domain sums and differences that behave
// correctly at -Inf and NaN.
package mathx

import "math"

// LogSumExp returns log(sum(exp(xs))), skipping -Inf entries (they
// contribute exp(-Inf) = 0 and would otherwise poison the running max).
// An all -Inf input returns -Inf. NaN entries propagate as NaN, matching
// the "NaN never compares as greater than a valid threshold" requirement
// elsewhere in the sampler: a NaN log-likelihood must never silently win
// an evidence sum.
func LogSumExp(xs []float64) float64 {
	max := math.Inf(-1)
	for _, x := range xs {
		if math.IsNaN(x) {
			return math.NaN()
		}
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return math.Inf(-1)
	}

	var sum float64
	for _, x := range xs {
		if math.IsInf(x, -1) {
			continue
		}
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}

// LogDiffExp returns log(exp(b) - exp(a)), defined only for b >= a.
// LogDiffExp(b, -Inf) == b. LogDiffExp(b, b) == -Inf (accepted per design
// note 9c even though the reference implementation asserts strict b > a).
func LogDiffExp(b, a float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if a > b {
		return math.NaN()
	}
	if a == b {
		return math.Inf(-1)
	}
	return b + math.Log1p(-math.Exp(a-b))
}

// Wrap folds x into (0,1) by taking its fractional part, handling
// negative values the way a mathematical wraparound would (unlike
// math.Mod, which can return a negative result for negative x).
func Wrap(x float64) float64 {
	f := x - math.Floor(x)
	if f <= 0 {
		// Floating point can round f to exactly 0 or 1; nudge back into
		// the open interval so tie-breakers stay strict.
		f = math.SmallestNonzeroFloat64
	}
	if f >= 1 {
		f = 1 - math.SmallestNonzeroFloat64
	}
	return f
}
