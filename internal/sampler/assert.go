package sampler

import "fmt"

// assertf panics with a formatted message if cond is false. It guards
// invariants that indicate a bug in the sampler itself, never a
// condition a user's Model or config could legitimately trigger — those
// are reported as errors instead (spec §7).
func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("sampler: invariant violated: "+format, args...))
	}
}
