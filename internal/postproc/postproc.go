// Package postproc implements the offline evidence, posterior, and
// KL-divergence computation described in spec §4.6: it reads a finished
// sampler run's levels and saved particles back out of the store and
// turns them into a results summary and a resampled posterior set.
package postproc

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jihwankim/dns-sampler/internal/mathx"
	"github.com/jihwankim/dns-sampler/internal/model"
	"github.com/jihwankim/dns-sampler/internal/rng"
	"github.com/jihwankim/dns-sampler/internal/store"
)

// Options configures one postprocessing run (spec §6's postprocessor
// flags).
type Options struct {
	SamplerID   int64
	Temperature float64 // annealing temperature applied to logL before weighting; 1 disables
	ABCEpsilon  float64 // if > 0, switch to ABC mode: treat -logL as a distance and threshold at this value instead of weighting by likelihood
	FullOnly    bool    // restrict posterior resampling to particles saved with a full parameter blob
	OutDir      string
}

// Results is the summary persisted to results.yaml.
type Results struct {
	SamplerID         int64   `yaml:"sampler_id"`
	NumLevels         int     `yaml:"num_levels"`
	NumParticles      int64   `yaml:"num_particles"`
	NumFullParticles  int64   `yaml:"num_full_particles"`
	LogZ              float64 `yaml:"logz"`
	InformationNats   float64 `yaml:"information_nats"`
	EffectiveSampleSz float64 `yaml:"effective_sample_size"`
	Mode              string  `yaml:"mode"`
}

type weightedParticle struct {
	row  store.ParticleRow
	logx float64 // rank-midpoint location coordinate, reporting-only (spec §4.6 step 3)
	logm float64 // per-level constant share of prior mass, the actual posterior weight term
	logw float64 // unnormalized log posterior weight: logm+logL/temperature, or in ABC mode logm plus the log indicator (logm or -Inf)
}

// Run executes the full postprocessing pipeline against a read-only
// Store and writes results.yaml and posterior.csv into opts.OutDir.
func Run[M model.Model](ctx context.Context, st *store.Store, opts Options, newModel func() M) (*Results, error) {
	if opts.Temperature <= 0 {
		opts.Temperature = 1
	}
	if opts.OutDir == "" {
		opts.OutDir = "."
	}
	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("postproc: create output dir: %w", err)
	}

	levels, err := st.LoadLevels(ctx, opts.SamplerID)
	if err != nil {
		return nil, fmt.Errorf("postproc: load levels: %w", err)
	}

	maxID, err := st.MaxParticleID(ctx, opts.SamplerID)
	if err != nil {
		return nil, fmt.Errorf("postproc: max particle id: %w", err)
	}

	rows, err := st.IterateParticlesOrdered(ctx, opts.SamplerID, maxID)
	if err != nil {
		return nil, fmt.Errorf("postproc: iterate particles: %w", err)
	}
	defer rows.Close()

	// levelCounts[i] is the number of saved particles whose highest
	// cleared level is i, used to subdivide level i's prior-mass range
	// evenly across its particles (spec §4.6 step 2).
	levelCounts := make([]int64, len(levels))
	for i, l := range levels {
		levelCounts[i] = l.NumParticles
	}
	levelSeen := make([]int64, len(levels))

	// levelLogm[i] = log(X_i - X_{i+1}), the log prior-mass held by level
	// i alone, with the top level's upper bound taken as X=0 (spec §4.6
	// step 3). Every particle assigned to level i shares this mass
	// equally with its level-mates: logm_p := levelLogm[i] -
	// log(levelCounts[i]) is the actual posterior weight term. This is a
	// different quantity from logx_p, the per-particle rank-midpoint
	// location used only for reporting in posterior.csv.
	levelLogm := make([]float64, len(levels))
	for i := range levels {
		hi := math.Inf(-1)
		if i+1 < len(levels) {
			hi = levels[i+1].LogX
		}
		levelLogm[i] = mathx.LogDiffExp(levels[i].LogX, hi)
	}

	var particles []weightedParticle
	var numFull int64
	for rows.Next() {
		row, err := store.ScanParticleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postproc: scan particle: %w", err)
		}
		if row.Level < 0 || row.Level >= len(levels) {
			return nil, fmt.Errorf("postproc: particle %d assigned to out-of-range level %d", row.ID, row.Level)
		}
		if row.Params != nil {
			numFull++
		}
		if opts.FullOnly && row.Params == nil {
			continue
		}

		rank := levelSeen[row.Level]
		levelSeen[row.Level]++
		count := levelCounts[row.Level]
		if count == 0 {
			count = 1
		}

		logm := levelLogm[row.Level] - math.Log(float64(count))
		frac := (float64(rank) + 0.5) / float64(count)
		logx := mathx.LogDiffExp(levels[row.Level].LogX, math.Log(frac)+levelLogm[row.Level])

		var logw float64
		if opts.ABCEpsilon > 0 {
			if -row.LogL <= opts.ABCEpsilon {
				logw = logm
			} else {
				logw = math.Inf(-1)
			}
		} else {
			logw = logm + row.LogL/opts.Temperature
		}

		particles = append(particles, weightedParticle{row: row, logx: logx, logm: logm, logw: logw})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postproc: row iteration: %w", err)
	}
	if len(particles) == 0 {
		return nil, fmt.Errorf("postproc: no particles available for postprocessing (full_only=%v)", opts.FullOnly)
	}

	logws := make([]float64, len(particles))
	for i, p := range particles {
		logws[i] = p.logw
	}
	logz := mathx.LogSumExp(logws)

	var ess, information float64
	if opts.ABCEpsilon == 0 {
		var sumW, sumW2 float64
		for _, p := range particles {
			w := math.Exp(p.logw - logz)
			sumW += w
			sumW2 += w * w
			if w > 0 {
				information += w * (p.row.LogL/opts.Temperature - logz)
			}
		}
		if sumW2 > 0 {
			ess = sumW * sumW / sumW2
		}
	}

	results := &Results{
		SamplerID:         opts.SamplerID,
		NumLevels:         len(levels),
		NumParticles:      int64(len(particles)),
		NumFullParticles:  numFull,
		LogZ:              logz,
		InformationNats:   information,
		EffectiveSampleSz: ess,
		Mode:              "posterior",
	}
	if opts.ABCEpsilon > 0 {
		results.Mode = "abc"
	}

	if err := writeResults(filepath.Join(opts.OutDir, "results.yaml"), results); err != nil {
		return nil, err
	}
	if err := writePosterior(filepath.Join(opts.OutDir, "posterior.csv"), particles, logz, newModel); err != nil {
		return nil, err
	}

	return results, nil
}

func writeResults(path string, r *Results) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("postproc: marshal results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("postproc: write %s: %w", path, err)
	}
	return nil
}

// writePosterior resamples particles proportional to their posterior
// weight (rejection resampling against the maximum weight, the
// reference implementation's approach to turning weighted samples into
// an equally-weighted posterior set) and writes the resulting rows as
// CSV with a header of parameter names plus logl and logx.
func writePosterior[M model.Model](path string, particles []weightedParticle, logz float64, newModel func() M) error {
	sort.Slice(particles, func(i, j int) bool { return particles[i].logw < particles[j].logw })

	maxLogW := particles[len(particles)-1].logw
	stream := rng.NewStream(time.Now().UnixNano())

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("postproc: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	hasFull := false
	for _, p := range particles {
		if p.row.Params != nil {
			hasFull = true
			break
		}
	}
	if hasFull {
		sample := newModel()
		header := append(append([]string{}, sample.ParameterNames()...), "logl", "logx")
		if err := w.Write(header); err != nil {
			return fmt.Errorf("postproc: write header: %w", err)
		}
	}

	for _, p := range particles {
		if p.row.Params == nil || math.IsInf(p.logw, -1) {
			continue
		}
		// Rejection-resample against the maximum weight so the CSV
		// holds an equally-weighted posterior set rather than a
		// weighted one (spec §4.6 step 5).
		if p.logw-maxLogW < math.Log(stream.Uniform01()) {
			continue
		}
		mdl := newModel()
		if err := mdl.FromBlob(p.row.Params); err != nil {
			return fmt.Errorf("postproc: restore particle %d: %w", p.row.ID, err)
		}
		record := append(strings.Split(mdl.String(), ","),
			strconv.FormatFloat(p.row.LogL, 'g', -1, 64),
			strconv.FormatFloat(p.logx, 'g', -1, 64))
		if err := w.Write(record); err != nil {
			return fmt.Errorf("postproc: write particle %d: %w", p.row.ID, err)
		}
	}
	return nil
}
