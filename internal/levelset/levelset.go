// Package levelset implements the ordered set of likelihood thresholds
// ("levels") that a diffusive nested sampling run explores, along with
// the stash used to propose new levels and the push profile that biases
// walkers toward the current top level while the ladder is still being
// built.
package levelset

import (
	"math"
	"sort"
)

// EqualVisitsFloor is the smoothing constant used both in logX
// refinement (below) and in the sampler's equal-visits steering term of
// the level step (spec §4.5.2). Earlier drafts of this algorithm used 1
// here; this implementation standardises on 100, matching the latest
// revision (see design note 9a).
const EqualVisitsFloor = 100.0

// oneMinusInvE is the 1 - e^-1 quantile used to pick the new top of the
// stash when a level is created.
const oneMinusInvE = 0.6321206

// Pair is the (logL, tb) total order over particles and levels. Pair
// comparisons rely on IEEE-754 float comparison semantics so that a NaN
// logL never compares as greater than a valid threshold: every
// comparison involving NaN returns false, which is exactly the
// "automatically reject" behaviour the sampler needs.
type Pair struct {
	LogL float64
	TB   float64
}

// Less reports whether p sorts strictly before q under the lexicographic
// (logL, tb) order.
func (p Pair) Less(q Pair) bool {
	if p.LogL != q.LogL {
		return p.LogL < q.LogL
	}
	return p.TB < q.TB
}

// LevelSet owns one ordered ladder of levels plus the stash used to grow
// it. A Sampler keeps one master LevelSet and one clone per worker; only
// thread 0 ever calls CreateLevel or Revise.
type LevelSet struct {
	Pairs   []Pair
	LogX    []float64
	LogPush []float64
	Exceeds []int64
	Visits  []int64
	Accepts []int64
	Tries   []int64

	Stash      []Pair
	PushActive bool

	Lambda           float64
	MaxNumLevels     int // 0 means unset (no cap)
	NewLevelInterval int
}

// New returns the single-level initial state: level 0 is (-Inf, 0),
// logX=0, all counters zero, push active.
func New(lambda float64, newLevelInterval, maxNumLevels int) *LevelSet {
	ls := &LevelSet{
		Pairs:            []Pair{{LogL: math.Inf(-1), TB: 0}},
		LogX:             []float64{0},
		LogPush:          []float64{0},
		Exceeds:          []int64{0},
		Visits:           []int64{0},
		Accepts:          []int64{0},
		Tries:            []int64{0},
		PushActive:       true,
		Lambda:           lambda,
		MaxNumLevels:     maxNumLevels,
		NewLevelInterval: newLevelInterval,
	}
	ls.recomputeLogPush()
	return ls
}

// NumLevels returns the current number of levels.
func (ls *LevelSet) NumLevels() int { return len(ls.Pairs) }

// Clone returns a deep copy, used both for the per-round worker copies
// and for the pre-merge "backup" snapshot thread 0 diffs against.
func (ls *LevelSet) Clone() *LevelSet {
	return &LevelSet{
		Pairs:            append([]Pair(nil), ls.Pairs...),
		LogX:             append([]float64(nil), ls.LogX...),
		LogPush:          append([]float64(nil), ls.LogPush...),
		Exceeds:          append([]int64(nil), ls.Exceeds...),
		Visits:           append([]int64(nil), ls.Visits...),
		Accepts:          append([]int64(nil), ls.Accepts...),
		Tries:            append([]int64(nil), ls.Tries...),
		Stash:            append([]Pair(nil), ls.Stash...),
		PushActive:       ls.PushActive,
		Lambda:           ls.Lambda,
		MaxNumLevels:     ls.MaxNumLevels,
		NewLevelInterval: ls.NewLevelInterval,
	}
}

// AddToStash offers a pair strictly above the current top for inclusion
// in the stash, but only while the level budget is not reached and push
// is active; any other call clears the stash, matching the reference
// semantics exactly (this is intentionally aggressive — a stalled
// walker population should not accumulate a stale stash).
func (ls *LevelSet) AddToStash(p Pair) {
	budgetReached := ls.MaxNumLevels > 0 && len(ls.Pairs) >= ls.MaxNumLevels
	top := ls.Pairs[len(ls.Pairs)-1]
	if !budgetReached && ls.PushActive && top.Less(p) {
		ls.Stash = append(ls.Stash, p)
		return
	}
	ls.ClearStash()
}

// ClearStash empties the stash in place.
func (ls *LevelSet) ClearStash() {
	ls.Stash = ls.Stash[:0]
}

// ImportStashFrom appends another LevelSet's stash onto this one,
// without clearing the source — the caller (thread 0, merging worker
// copies into the master) owns the worker copies' lifetime.
func (ls *LevelSet) ImportStashFrom(other *LevelSet) {
	ls.Stash = append(ls.Stash, other.Stash...)
}

// CreateLevel consumes the stash into a new level if it has reached
// NewLevelInterval entries. It sorts the stash, picks the 1-1/e quantile
// element as the new threshold, appends a level with logX = logX.back()-1
// and zero counters, clears the stash, and recomputes the push profile
// for every level. It deactivates push once max_num_levels is reached or
// the recent logL-change statistic drops to 0.5 or below.
func (ls *LevelSet) CreateLevel() bool {
	if len(ls.Stash) < ls.NewLevelInterval {
		return false
	}

	sort.Slice(ls.Stash, func(i, j int) bool { return ls.Stash[i].Less(ls.Stash[j]) })
	idx := int(oneMinusInvE * float64(len(ls.Stash)))
	if idx >= len(ls.Stash) {
		idx = len(ls.Stash) - 1
	}
	newTop := ls.Stash[idx]

	ls.Pairs = append(ls.Pairs, newTop)
	ls.LogX = append(ls.LogX, ls.LogX[len(ls.LogX)-1]-1)
	ls.Exceeds = append(ls.Exceeds, 0)
	ls.Visits = append(ls.Visits, 0)
	ls.Accepts = append(ls.Accepts, 0)
	ls.Tries = append(ls.Tries, 0)
	ls.LogPush = append(ls.LogPush, 0)
	ls.ClearStash()

	if ls.MaxNumLevels > 0 && len(ls.Pairs) >= ls.MaxNumLevels {
		ls.PushActive = false
	} else if ls.RecentLogLChanges() <= 0.5 {
		ls.PushActive = false
	}

	ls.recomputeLogPush()
	return true
}

// RecordStats attributes one Metropolis step outcome to the level
// ladder: it walks upward from the particle's current level j counting
// visits/exceeds for every level the new (logL, tb) pair clears, then
// records the try/accept at level j itself.
func (ls *LevelSet) RecordStats(j int, p Pair, accepted bool) {
	i := j
	for {
		if i+1 < len(ls.Pairs) && ls.Pairs[i+1].Less(p) {
			ls.Visits[i]++
			ls.Exceeds[i]++
			i++
			continue
		}
		ls.Visits[i]++
		break
	}
	ls.Tries[j]++
	if accepted {
		ls.Accepts[j]++
	}
}

// Adjust applies additive deltas to the counters at level i; used by
// thread 0 to merge a worker copy's counters into the master.
func (ls *LevelSet) Adjust(i int, dExceeds, dVisits, dAccepts, dTries int64) {
	ls.Exceeds[i] += dExceeds
	ls.Visits[i] += dVisits
	ls.Accepts[i] += dAccepts
	ls.Tries[i] += dTries
}

// Revise recomputes logX for every level above the first from the
// current exceeds/visits counters.
func (ls *LevelSet) Revise() {
	for i := 1; i < len(ls.Pairs); i++ {
		num := float64(ls.Exceeds[i-1]) + EqualVisitsFloor/math.E
		den := float64(ls.Visits[i-1]) + EqualVisitsFloor
		ls.LogX[i] = ls.LogX[i-1] + math.Log(num/den)
	}
}

// RecentLogLChanges returns a weighted average of logL_i - logL_{i-1}
// over the last up to 20 level transitions, weighted 1,2,3,... with the
// most recent transition weighted highest. With fewer than two levels
// there is nothing to measure yet, so it returns +Inf: push must stay
// active until there is real evidence the ladder has stalled.
func (ls *LevelSet) RecentLogLChanges() float64 {
	L := len(ls.Pairs)
	if L < 2 {
		return math.Inf(1)
	}
	n := L - 1
	if n > 20 {
		n = 20
	}
	start := L - n

	var sum, wsum float64
	for k := 0; k < n; k++ {
		i := start + k
		w := float64(k + 1)
		sum += w * (ls.Pairs[i].LogL - ls.Pairs[i-1].LogL)
		wsum += w
	}
	return sum / wsum
}

func (ls *LevelSet) recomputeLogPush() {
	L := len(ls.Pairs)
	if !ls.PushActive {
		for i := range ls.LogPush {
			ls.LogPush[i] = 0
		}
		return
	}
	for i := 0; i < L; i++ {
		d := float64(L-1-i) / ls.Lambda
		ls.LogPush[i] = -0.5 * d * d
	}
}
