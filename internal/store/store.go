// Package store wraps the embedded relational database (SQLite via
// mattn/go-sqlite3) that backs the sampler schema from
// spec §4.4. The Sampler opens one read-write Store and drives it
// exclusively from thread 0; the Postprocessor opens a second,
// read-only Store over the same file.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SamplerConfig is the persisted form of a sampler run's configuration
// (the samplers table row).
type SamplerConfig struct {
	ID               int64
	NumParticles     int
	NumThreads       int
	NewLevelInterval int
	SaveInterval     int
	Thin             float64
	MaxNumLevels     *int // nil => unset
	Lambda           float64
	Beta             float64
	MaxNumSaves      int
}

// LevelRow is one row of the levels table, plus the particle count
// joined in by LoadLevels for postprocessing.
type LevelRow struct {
	ID            int
	LogX          float64
	LogL          float64
	TB            float64
	Exceeds       int64
	Visits        int64
	Accepts       int64
	Tries         int64
	NumParticles  int64
}

// ParticleRow is one row of the particles table.
type ParticleRow struct {
	ID     int64
	Level  int
	Params []byte // nil if saved metadata-only
	LogL   float64
	TB     float64
}

// Store wraps a *sql.DB opened against the sampler database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a read-write store and ensures the
// schema exists, keeping the rows of any earlier runs already in the
// file. Fast-but-unsafe pragmas (in-memory journal, no fsync) are set,
// so a crash mid-run can leave the file inconsistent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=MEMORY&_synchronous=OFF")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // a single writer thread drives every write

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing store file for the postprocessor, which
// never writes. It is a fatal configuration error if the file is
// missing (spec §4.6).
func OpenReadOnly(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_query_only=true")
	if err != nil {
		return nil, fmt.Errorf("store: open read-only %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: database missing or unreadable: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// NextSamplerID returns 1 + the maximum existing sampler id, or 1 if the
// table is empty.
func (s *Store) NextSamplerID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM samplers`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("store: next sampler id: %w", err)
	}
	if !maxID.Valid {
		return 1, nil
	}
	return maxID.Int64 + 1, nil
}

// ExistingSeeds returns the set of rng seeds already recorded in the
// store, across every sampler run, so that seed derivation can skip them.
func (s *Store) ExistingSeeds(ctx context.Context) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seed FROM rngs`)
	if err != nil {
		return nil, fmt.Errorf("store: existing seeds: %w", err)
	}
	defer rows.Close()

	seeds := make(map[int64]bool)
	for rows.Next() {
		var seed int64
		if err := rows.Scan(&seed); err != nil {
			return nil, fmt.Errorf("store: scan seed: %w", err)
		}
		seeds[seed] = true
	}
	return seeds, rows.Err()
}

// BeginTx opens a new transaction; the Sampler's thread 0 is the only
// caller of this method (spec §5's "Store handle: thread 0 only").
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// InsertSampler persists the sampler row.
func InsertSampler(ctx context.Context, tx *sql.Tx, cfg SamplerConfig) error {
	var maxLevels sql.NullInt64
	if cfg.MaxNumLevels != nil {
		maxLevels = sql.NullInt64{Int64: int64(*cfg.MaxNumLevels), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO samplers (id, num_particles, num_threads, new_level_interval, save_interval, thin, max_num_levels, lambda, beta, max_num_saves)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.NumParticles, cfg.NumThreads, cfg.NewLevelInterval, cfg.SaveInterval, cfg.Thin, maxLevels, cfg.Lambda, cfg.Beta, cfg.MaxNumSaves)
	if err != nil {
		return fmt.Errorf("store: insert sampler: %w", err)
	}
	return nil
}

// InsertSeed records one worker's rng seed against a sampler.
func InsertSeed(ctx context.Context, tx *sql.Tx, samplerID, seed int64) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO rngs (seed, sampler) VALUES (?, ?)`, seed, samplerID); err != nil {
		return fmt.Errorf("store: insert seed %d: %w", seed, err)
	}
	return nil
}

// UpsertLevel inserts or updates one level row, keyed on (sampler, id).
func UpsertLevel(ctx context.Context, tx *sql.Tx, samplerID int64, l LevelRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO levels (sampler, id, logx, logl, tb, exceeds, visits, accepts, tries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sampler, id) DO UPDATE SET
			logx = excluded.logx,
			exceeds = excluded.exceeds,
			visits = excluded.visits,
			accepts = excluded.accepts,
			tries = excluded.tries`,
		samplerID, l.ID, l.LogX, l.LogL, l.TB, l.Exceeds, l.Visits, l.Accepts, l.Tries)
	if err != nil {
		return fmt.Errorf("store: upsert level %d: %w", l.ID, err)
	}
	return nil
}

// InsertParticle persists one particle, with or without its parameter
// blob depending on whether full is true, and returns the new row id.
func InsertParticle(ctx context.Context, tx *sql.Tx, samplerID int64, level int, logL, tb float64, blob []byte, full bool) (int64, error) {
	var params interface{}
	if full {
		params = blob
	} else {
		params = nil
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO particles (sampler, level, params, logl, tb) VALUES (?, ?, ?, ?, ?)`,
		samplerID, level, params, logL, tb)
	if err != nil {
		return 0, fmt.Errorf("store: insert particle: %w", err)
	}
	return res.LastInsertId()
}

// LoadLevels returns every level for samplerID joined with its particle
// count (samplerID's particles that levels_leq_particles assigns to it),
// ordered by level id, using a left-outer join so that levels with zero
// particles still appear with num_particles=0 (spec §4.6 step 1).
func (s *Store) LoadLevels(ctx context.Context, samplerID int64) ([]LevelRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.logx, l.logl, l.tb, l.exceeds, l.visits, l.accepts, l.tries,
		       COALESCE(pp.num_particles, 0)
		FROM levels l
		LEFT JOIN (
			SELECT llp.level AS level, COUNT(*) AS num_particles
			FROM levels_leq_particles llp
			JOIN particles p ON p.id = llp.particle
			WHERE p.sampler = ?
			GROUP BY llp.level
		) pp ON pp.level = l.id
		WHERE l.sampler = ?
		ORDER BY l.id`, samplerID, samplerID)
	if err != nil {
		return nil, fmt.Errorf("store: load levels: %w", err)
	}
	defer rows.Close()

	var out []LevelRow
	for rows.Next() {
		var l LevelRow
		if err := rows.Scan(&l.ID, &l.LogX, &l.LogL, &l.TB, &l.Exceeds, &l.Visits, &l.Accepts, &l.Tries, &l.NumParticles); err != nil {
			return nil, fmt.Errorf("store: scan level: %w", err)
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("store: no levels recorded for sampler %d", samplerID)
	}
	return out, rows.Err()
}

// MaxParticleID returns the largest particle id recorded for samplerID.
func (s *Store) MaxParticleID(ctx context.Context, samplerID int64) (int64, error) {
	var maxID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM particles WHERE sampler = ?`, samplerID).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("store: max particle id: %w", err)
	}
	if !maxID.Valid {
		return 0, fmt.Errorf("store: no particles recorded for sampler %d", samplerID)
	}
	return maxID.Int64, nil
}

// IterateParticlesOrdered streams every particle up to maxID in
// (level_of_particle, logL, tb) ascending order — the iteration order
// the postprocessor's rank assignment requires (spec §4.6 step 3).
func (s *Store) IterateParticlesOrdered(ctx context.Context, samplerID, maxID int64) (*sql.Rows, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, llp.level, p.params, p.logl, p.tb
		FROM particles p
		JOIN levels_leq_particles llp ON llp.particle = p.id
		WHERE p.sampler = ? AND p.id <= ?
		ORDER BY llp.level, p.logl, p.tb`, samplerID, maxID)
	if err != nil {
		return nil, fmt.Errorf("store: iterate particles: %w", err)
	}
	return rows, nil
}

// ScanParticleRow scans one row yielded by IterateParticlesOrdered.
func ScanParticleRow(rows *sql.Rows) (ParticleRow, error) {
	var p ParticleRow
	var params sql.RawBytes
	if err := rows.Scan(&p.ID, &p.Level, &params, &p.LogL, &p.TB); err != nil {
		return ParticleRow{}, fmt.Errorf("store: scan particle: %w", err)
	}
	if params != nil {
		p.Params = append([]byte(nil), params...)
	}
	return p, nil
}
