// Package sampler implements the concurrent diffusive nested sampling
// core described in spec §4.5 and §5: a fixed pool of worker goroutines,
// each owning a disjoint slice of particles, stepping them in lockstep
// between barrier rendezvous points while a single elected round owns
// the master level ladder and the Store.
package sampler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jihwankim/dns-sampler/internal/config"
	"github.com/jihwankim/dns-sampler/internal/levelset"
	"github.com/jihwankim/dns-sampler/internal/logging"
	"github.com/jihwankim/dns-sampler/internal/mathx"
	"github.com/jihwankim/dns-sampler/internal/metrics"
	"github.com/jihwankim/dns-sampler/internal/model"
	"github.com/jihwankim/dns-sampler/internal/rng"
	"github.com/jihwankim/dns-sampler/internal/store"
)

// Factory draws a fresh model instance from the prior. It stands in for
// the reference implementation's static Model::from_prior(rng) method,
// since Go has no static methods: every concrete model package exposes
// one instead.
type Factory[M model.Model] func(*rng.Stream) M

// laggardLagLevels is how many levels behind the current top a particle
// must fall before laggard pruning replaces it (spec §4.5.3). It is a
// package constant rather than a config field because no example in the
// retrieved corpus surfaces a knob this deep in its own tuning; it can
// be promoted to config.SamplerConfig if that turns out to matter.
const laggardLagLevels = 20

type particle[M model.Model] struct {
	model M
	level int
	pair  levelset.Pair
}

// Sampler drives the main loop. It is generic over the user's Model type
// so LogLikelihood calls monomorphize at compile time instead of going
// through an interface vtable on every step — the one piece of the
// reference implementation's compile-time templating that a Go generic
// type parameter reproduces directly (design note 9).
type Sampler[M model.Model] struct {
	cfg      config.SamplerConfig
	store    *store.Store
	log      *logging.Logger
	newModel Factory[M]
	progress *progressReporter
	metrics  *metrics.Recorder

	samplerID int64
	streams   []*rng.Stream
	particles []particle[M]

	master  *levelset.LevelSet
	backup  *levelset.LevelSet
	clones  []*levelset.LevelSet

	barrier  *Barrier
	shutdown *Shutdown

	savesWritten int
	roundErr     error
}

// New constructs a Sampler against an already-open, writable Store.
func New[M model.Model](cfg config.SamplerConfig, st *store.Store, log *logging.Logger, factory Factory[M]) *Sampler[M] {
	return &Sampler[M]{
		cfg:      cfg,
		store:    st,
		log:      log,
		newModel: factory,
		progress: newProgressReporter(log, 5*time.Second),
		barrier:  NewBarrier(cfg.NumThreads),
		shutdown: NewShutdown(),
	}
}

// WithMetrics attaches a Prometheus recorder the Sampler updates once per
// round. Optional: a nil or never-called Recorder is inert.
func (s *Sampler[M]) WithMetrics(m *metrics.Recorder) *Sampler[M] {
	s.metrics = m
	return s
}

// Init performs the serial setup spec §4.5.2 describes: seed
// derivation (skipping any seed already present in the store), the
// sampler and initial level rows, and the first prior draw of every
// particle.
func (s *Sampler[M]) Init(ctx context.Context) error {
	assertf(s.cfg.NumParticles%s.cfg.NumThreads == 0, "num_particles %d not divisible by num_threads %d", s.cfg.NumParticles, s.cfg.NumThreads)

	existingSeeds, err := s.store.ExistingSeeds(ctx)
	if err != nil {
		return fmt.Errorf("sampler: load existing seeds: %w", err)
	}

	id, err := s.store.NextSamplerID(ctx)
	if err != nil {
		return fmt.Errorf("sampler: next sampler id: %w", err)
	}
	s.samplerID = id

	baseSeed := s.cfg.Seed
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}
	if baseSeed < 0 {
		baseSeed = -baseSeed
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("sampler: begin init transaction: %w", err)
	}

	var maxLevels *int
	if s.cfg.MaxNumLevels > 0 {
		v := s.cfg.MaxNumLevels
		maxLevels = &v
	}
	samplerRow := store.SamplerConfig{
		ID: s.samplerID, NumParticles: s.cfg.NumParticles, NumThreads: s.cfg.NumThreads,
		NewLevelInterval: s.cfg.NewLevelInterval, SaveInterval: s.cfg.SaveInterval,
		Thin: s.cfg.Thin, MaxNumLevels: maxLevels, Lambda: s.cfg.Lambda, Beta: s.cfg.Beta,
		MaxNumSaves: s.cfg.MaxNumSaves,
	}
	if err := store.InsertSampler(ctx, tx, samplerRow); err != nil {
		tx.Rollback()
		return err
	}

	s.streams = make([]*rng.Stream, s.cfg.NumThreads)
	seed := baseSeed
	for t := 0; t < s.cfg.NumThreads; t++ {
		for existingSeeds[seed] {
			seed++
		}
		existingSeeds[seed] = true
		if err := store.InsertSeed(ctx, tx, s.samplerID, seed); err != nil {
			tx.Rollback()
			return fmt.Errorf("sampler: persist seed: %w", err)
		}
		s.streams[t] = rng.NewStream(seed)
		seed++
	}

	s.master = levelset.New(s.cfg.Lambda, s.cfg.NewLevelInterval, s.cfg.MaxNumLevels)
	if err := store.UpsertLevel(ctx, tx, s.samplerID, store.LevelRow{ID: 0, LogX: 0, LogL: math.Inf(-1)}); err != nil {
		tx.Rollback()
		return fmt.Errorf("sampler: persist initial level: %w", err)
	}

	s.particles = make([]particle[M], s.cfg.NumParticles)
	perThread := s.cfg.NumParticles / s.cfg.NumThreads
	for t := 0; t < s.cfg.NumThreads; t++ {
		stream := s.streams[t]
		for i := t * perThread; i < (t+1)*perThread; i++ {
			mdl := s.newModel(stream)
			pair := levelset.Pair{LogL: mdl.LogLikelihood(), TB: stream.Uniform01()}
			s.particles[i] = particle[M]{model: mdl, level: 0, pair: pair}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sampler: commit init transaction: %w", err)
	}

	s.clones = make([]*levelset.LevelSet, s.cfg.NumThreads)
	for t := range s.clones {
		s.clones[t] = s.master.Clone()
	}
	s.backup = s.master.Clone()
	return nil
}

// Run executes the parallel main loop until a stop is requested, the
// save budget is exhausted, or a worker error occurs, then persists the
// final state and returns.
func (s *Sampler[M]) Run(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	s.shutdown.Watch(ctx)

	perThread := s.cfg.NumParticles / s.cfg.NumThreads
	errCh := make(chan error, s.cfg.NumThreads)
	for t := 0; t < s.cfg.NumThreads; t++ {
		t := t
		go s.workerLoop(t, t*perThread, (t+1)*perThread, errCh)
	}

	for range s.streams {
		if err := <-errCh; err != nil {
			s.shutdown.Request()
			return err
		}
	}
	return s.finalize(ctx)
}

// workerLoop is the body every worker thread runs for its entire
// lifetime: perform save_interval/num_threads Metropolis steps, each on
// a particle drawn with replacement from the thread's disjoint slice
// (spec §4.5's explore phase), rendezvous at a first barrier, let thread
// 0 alone merge the round and touch the store while every other thread
// waits at a second barrier, then repeat. Store access and master
// ladder mutation are thread 0's alone (spec §5).
func (s *Sampler[M]) workerLoop(thread, lo, hi int, errCh chan<- error) {
	for {
		if s.shutdown.Done() || s.savesExhausted() {
			errCh <- nil
			return
		}

		clone := s.clones[thread]
		stream := s.streams[thread]
		n := hi - lo
		steps := s.cfg.SaveInterval / s.cfg.NumThreads
		for i := 0; i < steps; i++ {
			k := lo + stream.IntN(n)
			s.step(stream, clone, &s.particles[k])
		}

		s.barrier.Wait()
		if thread == 0 {
			if err := s.round(); err != nil {
				// Every worker is parked at the second barrier.Wait
				// below; release them so the goroutines can exit, then
				// report the error once.
				s.shutdown.Request()
				s.roundErr = err
			}
		}
		s.barrier.Wait()

		if s.roundErr != nil {
			errCh <- s.roundErr
			return
		}
	}
}

// step performs one double Metropolis step on p: a level move (the
// "level step") and a parameter move (the "parameter step"), in an order
// decided by a fair coin flip each call, then records the resulting pair
// into clone's stash (spec §4.5.1 steps 1-5).
func (s *Sampler[M]) step(stream *rng.Stream, clone *levelset.LevelSet, p *particle[M]) {
	levelFirst := stream.Uniform01() < 0.5
	if levelFirst {
		s.levelStep(stream, clone, p)
	}
	s.paramStep(stream, clone, p)
	if !levelFirst {
		s.levelStep(stream, clone, p)
	}
	clone.AddToStash(p.pair)
}

// levelStep proposes moving the particle mag levels up or down, mag
// being a heavy-tailed positive integer draw, biased by the push profile
// plus a prior-mass correction for downward moves and an equal-visits
// steering term once push has deactivated (spec §4.5.2).
func (s *Sampler[M]) levelStep(stream *rng.Stream, clone *levelset.LevelSet, p *particle[M]) {
	L := clone.NumLevels()
	if L == 1 {
		return
	}
	mag := 1 + int(math.Abs(stream.Cauchy()))
	sign := 1
	if stream.Uniform01() < 0.5 {
		sign = -1
	}
	target := p.level + mag*sign
	if target < 0 || target >= L {
		return
	}
	if p.pair.Less(clone.Pairs[target]) {
		return
	}

	logAlpha := clone.LogPush[target] - clone.LogPush[p.level]
	if target < p.level {
		logAlpha += clone.LogX[p.level] - clone.LogX[target]
	}
	if !clone.PushActive {
		logAlpha += s.cfg.Beta * (math.Log(levelset.EqualVisitsFloor+float64(clone.Tries[p.level])) -
			math.Log(levelset.EqualVisitsFloor+float64(clone.Tries[target])))
	}
	if math.Log(stream.Uniform01()) < logAlpha {
		p.level = target
	}
}

// paramStep perturbs the particle's model in place. The proposal is
// pre-rejected outright if a uniform draw exceeds exp(logH); otherwise
// its likelihood and a heavy-tailed-walked tie-breaker are computed and
// the move is accepted only if the resulting pair clears the particle's
// current level (spec §4.5.1 steps 2-4). A rejected move is undone via
// the model's blob round trip, since Model exposes no Clone method.
func (s *Sampler[M]) paramStep(stream *rng.Stream, clone *levelset.LevelSet, p *particle[M]) {
	backup := p.model.ToBlob()
	beforePair := p.pair
	beforeLevel := p.level

	logH := p.model.Perturb(stream)
	accept := false
	if math.Log(stream.Uniform01()) < logH {
		candidate := levelset.Pair{
			LogL: p.model.LogLikelihood(),
			TB:   mathx.Wrap(p.pair.TB + stream.HeavyTailed()),
		}
		if clone.Pairs[p.level].Less(candidate) {
			accept = true
			p.pair = candidate
		}
	}
	if !accept {
		if err := p.model.FromBlob(backup); err != nil {
			panic(fmt.Sprintf("sampler: restore rejected proposal: %v", err))
		}
		p.pair = beforePair
	}
	clone.RecordStats(beforeLevel, p.pair, accept)
}

// savesExhausted reports whether the configured save budget has been
// reached. It is safe to call from any worker without synchronization:
// savesWritten only changes inside round(), which every worker has
// already observed by the time it re-enters workerLoop's top.
func (s *Sampler[M]) savesExhausted() bool {
	return s.savesWritten >= s.cfg.MaxNumSaves
}

// round is the serial work thread 0 performs once every worker has
// finished stepping its slice for this generation: save one randomly
// chosen particle, merge every worker clone's counter deltas and stash
// into the master ladder, grow the ladder and revise logX if the stash
// is full, persist levels, and prune laggards (spec §4.5's main loop).
func (s *Sampler[M]) round() error {
	ctx := context.Background()

	if err := s.saveOneParticle(ctx); err != nil {
		return err
	}

	for _, clone := range s.clones {
		for i := range s.backup.Pairs {
			s.master.Adjust(i,
				clone.Exceeds[i]-s.backup.Exceeds[i],
				clone.Visits[i]-s.backup.Visits[i],
				clone.Accepts[i]-s.backup.Accepts[i],
				clone.Tries[i]-s.backup.Tries[i])
		}
		s.master.ImportStashFrom(clone)
	}

	grew := s.master.CreateLevel()
	if grew {
		s.master.Revise()
	}

	if err := s.persistLevels(ctx); err != nil {
		return err
	}

	s.pruneLaggards()

	topLevel := s.master.NumLevels() - 1
	var tries, accepts int64
	for i := range s.master.Tries {
		tries += s.master.Tries[i]
		accepts += s.master.Accepts[i]
	}
	acceptRate := 0.0
	if tries > 0 {
		acceptRate = float64(accepts) / float64(tries)
	}
	s.progress.maybeReport(topLevel, s.master.NumLevels(), s.master.LogX[topLevel], acceptRate)
	s.metrics.Round(s.master.NumLevels(), s.master.LogX[topLevel], acceptRate)

	s.backup = s.master.Clone()
	for t := range s.clones {
		s.clones[t] = s.master.Clone()
	}
	return nil
}

// saveOneParticle persists exactly one randomly chosen particle, saved
// with its full parameter blob with probability thin and as logL/tb-only
// metadata otherwise, and advances the save budget by one (spec §4.5's
// "pick a random particle index k..., increment saved_particles").
func (s *Sampler[M]) saveOneParticle(ctx context.Context) error {
	stream := s.streams[0]
	k := stream.IntN(s.cfg.NumParticles)
	p := s.particles[k]
	full := stream.Uniform01() < s.cfg.Thin

	var blob []byte
	if full {
		blob = p.model.ToBlob()
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("sampler: begin particle transaction: %w", err)
	}
	if _, err := store.InsertParticle(ctx, tx, s.samplerID, p.level, p.pair.LogL, p.pair.TB, blob, full); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sampler: commit particle transaction: %w", err)
	}

	s.savesWritten++
	s.metrics.Save(1)
	return nil
}

// pruneLaggards replaces any particle that has fallen laggardLagLevels
// behind the current top with a fresh draw from a particle at or above
// the top minus one, the way the reference implementation prevents a
// stalled walker from dragging down the whole population's throughput
// (spec §4.5.3).
func (s *Sampler[M]) pruneLaggards() {
	top := s.master.NumLevels() - 1
	if top < laggardLagLevels {
		return
	}
	var donors []int
	for i, p := range s.particles {
		if p.level >= top-1 {
			donors = append(donors, i)
		}
	}
	if len(donors) == 0 {
		return
	}

	stream := s.streams[0]
	for i := range s.particles {
		if top-s.particles[i].level < laggardLagLevels {
			continue
		}
		donor := s.particles[donors[stream.IntN(len(donors))]]
		blob := donor.model.ToBlob()
		if err := s.particles[i].model.FromBlob(blob); err != nil {
			panic(fmt.Sprintf("sampler: clone laggard donor: %v", err))
		}
		s.particles[i].level = donor.level
		s.particles[i].pair = donor.pair
	}
}

// persistLevels writes every level's current counters to the store in
// one transaction.
func (s *Sampler[M]) persistLevels(ctx context.Context) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("sampler: begin levels transaction: %w", err)
	}
	for i := range s.master.Pairs {
		row := store.LevelRow{
			ID: i, LogX: s.master.LogX[i], LogL: s.master.Pairs[i].LogL, TB: s.master.Pairs[i].TB,
			Exceeds: s.master.Exceeds[i], Visits: s.master.Visits[i],
			Accepts: s.master.Accepts[i], Tries: s.master.Tries[i],
		}
		if err := store.UpsertLevel(ctx, tx, s.samplerID, row); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sampler: commit levels transaction: %w", err)
	}
	return nil
}

// finalize re-persists every level one last time on exit, outside the
// main loop (spec §4.5: "On final exit, outside the loop, reopen a
// transaction and persist all levels one last time"). Particles are
// already durably saved incrementally, one per round, by saveOneParticle.
func (s *Sampler[M]) finalize(ctx context.Context) error {
	return s.persistLevels(ctx)
}
