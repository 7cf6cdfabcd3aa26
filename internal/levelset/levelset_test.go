package levelset_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/jihwankim/dns-sampler/internal/levelset"
)

func TestNewIsSingleLevel(t *testing.T) {
	ls := levelset.New(10, 100, 0)
	if ls.NumLevels() != 1 {
		t.Fatalf("expected 1 level, got %d", ls.NumLevels())
	}
	if !math.IsInf(ls.Pairs[0].LogL, -1) {
		t.Fatalf("level 0 logL should be -Inf, got %v", ls.Pairs[0].LogL)
	}
	if ls.LogX[0] != 0 {
		t.Fatalf("level 0 logX should be 0, got %v", ls.LogX[0])
	}
	if !ls.PushActive {
		t.Fatal("push should start active")
	}
}

func TestCreateLevelCadence(t *testing.T) {
	// Boundary scenario S6: feed 10*new_level_interval synthetic pairs
	// strictly above the current top; expect exactly 10 new levels with
	// the stash empty between creations.
	const interval = 50
	ls := levelset.New(10, interval, 0)

	levelsCreated := 0
	tb := 0.5
	logL := 0.0
	for round := 0; round < 10; round++ {
		for i := 0; i < interval; i++ {
			logL += 0.01
			tb += 1e-6
			ls.AddToStash(levelset.Pair{LogL: logL, TB: tb})
		}
		if len(ls.Stash) != interval {
			t.Fatalf("round %d: expected stash of %d, got %d", round, interval, len(ls.Stash))
		}
		created := ls.CreateLevel()
		if !created {
			t.Fatalf("round %d: expected level creation", round)
		}
		if len(ls.Stash) != 0 {
			t.Fatalf("round %d: stash should be empty after creation, got %d", round, len(ls.Stash))
		}
		levelsCreated++
	}

	if levelsCreated != 10 {
		t.Fatalf("expected 10 levels created, got %d", levelsCreated)
	}
	if ls.NumLevels() != 11 { // initial level 0 plus 10 created
		t.Fatalf("expected 11 levels total, got %d", ls.NumLevels())
	}
}

func TestPairsStrictlyIncreasing(t *testing.T) {
	ls := levelset.New(5, 20, 0)
	r := rand.New(rand.NewPCG(1, 2))

	logL := 0.0
	for round := 0; round < 50; round++ {
		for i := 0; i < 20; i++ {
			logL += r.Float64()*0.1 + 0.001
			ls.AddToStash(levelset.Pair{LogL: logL, TB: r.Float64()})
		}
		ls.CreateLevel()
	}

	for i := 1; i < len(ls.Pairs); i++ {
		if !ls.Pairs[i-1].Less(ls.Pairs[i]) {
			t.Fatalf("pairs not strictly increasing at index %d: %v !< %v", i, ls.Pairs[i-1], ls.Pairs[i])
		}
	}
}

func TestExceedsNeverExceedsVisits(t *testing.T) {
	ls := levelset.New(5, 10, 0)
	r := rand.New(rand.NewPCG(7, 9))

	logL := 0.0
	for round := 0; round < 30; round++ {
		for i := 0; i < 10; i++ {
			logL += r.Float64() * 0.2
			ls.AddToStash(levelset.Pair{LogL: logL, TB: r.Float64()})
		}
		ls.CreateLevel()

		// Simulate some particles recording stats against random levels.
		for i := 0; i < 5; i++ {
			j := r.IntN(ls.NumLevels())
			p := levelset.Pair{LogL: logL + r.Float64(), TB: r.Float64()}
			ls.RecordStats(j, p, r.Float64() < 0.5)
		}
	}

	for i := range ls.Exceeds {
		if ls.Exceeds[i] > ls.Visits[i] {
			t.Fatalf("level %d: exceeds %d > visits %d", i, ls.Exceeds[i], ls.Visits[i])
		}
	}
}

func TestReviseKeepsLogXNonIncreasing(t *testing.T) {
	ls := levelset.New(5, 10, 0)
	r := rand.New(rand.NewPCG(3, 4))

	logL := 0.0
	for round := 0; round < 20; round++ {
		for i := 0; i < 10; i++ {
			logL += r.Float64() * 0.1
			ls.AddToStash(levelset.Pair{LogL: logL, TB: r.Float64()})
		}
		ls.CreateLevel()
		for i := 0; i < 20; i++ {
			j := r.IntN(ls.NumLevels())
			p := levelset.Pair{LogL: logL + r.Float64(), TB: r.Float64()}
			ls.RecordStats(j, p, true)
		}
		ls.Revise()
	}

	if ls.LogX[0] != 0 {
		t.Fatalf("logX[0] should stay 0, got %v", ls.LogX[0])
	}
	for i := 1; i < len(ls.LogX); i++ {
		if ls.LogX[i] > ls.LogX[i-1] {
			t.Fatalf("logX not non-increasing at %d: %v > %v", i, ls.LogX[i], ls.LogX[i-1])
		}
	}
}

func TestMaxNumLevelsDeactivatesPush(t *testing.T) {
	ls := levelset.New(5, 5, 3)
	r := rand.New(rand.NewPCG(11, 13))

	logL := 0.0
	for round := 0; round < 5 && ls.PushActive; round++ {
		for i := 0; i < 5; i++ {
			logL += 1.0 // large jumps so the change statistic never kills push early
			ls.AddToStash(levelset.Pair{LogL: logL, TB: r.Float64()})
		}
		ls.CreateLevel()
	}

	if ls.PushActive {
		t.Fatalf("push should be deactivated once max_num_levels=%d reached, have %d levels", 3, ls.NumLevels())
	}
	for _, lp := range ls.LogPush {
		if lp != 0 {
			t.Fatalf("log_push should be all zero once push is inactive, got %v", ls.LogPush)
		}
	}
}

func TestNaNNeverBeatsThreshold(t *testing.T) {
	threshold := levelset.Pair{LogL: 1.0, TB: 0.5}
	nanPair := levelset.Pair{LogL: math.NaN(), TB: 0.9}
	if threshold.Less(nanPair) {
		t.Fatal("threshold should never compare less than a NaN pair")
	}
	if nanPair.Less(threshold) {
		t.Fatal("a NaN pair should never compare less than a valid threshold either")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	ls := levelset.New(5, 5, 0)
	ls.AddToStash(levelset.Pair{LogL: 1, TB: 0.5})

	cp := ls.Clone()
	cp.Stash = append(cp.Stash, levelset.Pair{LogL: 2, TB: 0.6})
	cp.Exceeds[0] = 99

	if len(ls.Stash) != 1 {
		t.Fatalf("mutating clone's stash should not affect original, original has %d entries", len(ls.Stash))
	}
	if ls.Exceeds[0] == 99 {
		t.Fatal("mutating clone's counters should not affect original")
	}
}
