package store

// schemaDDL creates the relational schema described in spec §4.4. It is
// semantic, not syntactic, in the spec's own words — level ids are
// scoped per sampler run (a level's "id" is the level's index 0..L-1
// within its run) via a composite primary key rather than a single
// surrogate key, since a single database file accumulates one row per
// sampler run across repeated invocations.
//
// levels_leq_particles relies on SQLite's row-value comparison support
// (available since SQLite 3.15, bundled by mattn/go-sqlite3) to express
// the (logl, tb) lexicographic order directly in SQL.
const schemaDDL = `
PRAGMA journal_mode = MEMORY;
PRAGMA synchronous = OFF;

CREATE TABLE IF NOT EXISTS samplers (
	id                 INTEGER PRIMARY KEY,
	num_particles      INTEGER NOT NULL,
	num_threads        INTEGER NOT NULL,
	new_level_interval INTEGER NOT NULL,
	save_interval      INTEGER NOT NULL,
	thin               REAL    NOT NULL,
	max_num_levels     INTEGER,
	lambda             REAL    NOT NULL,
	beta               REAL    NOT NULL,
	max_num_saves      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rngs (
	seed    INTEGER NOT NULL UNIQUE,
	sampler INTEGER NOT NULL REFERENCES samplers(id)
);

CREATE TABLE IF NOT EXISTS levels (
	sampler INTEGER NOT NULL REFERENCES samplers(id),
	id      INTEGER NOT NULL,
	logx    REAL    NOT NULL,
	logl    REAL    NOT NULL,
	tb      REAL    NOT NULL,
	exceeds INTEGER NOT NULL,
	visits  INTEGER NOT NULL,
	accepts INTEGER NOT NULL,
	tries   INTEGER NOT NULL,
	PRIMARY KEY (sampler, id)
);
CREATE INDEX IF NOT EXISTS idx_levels_logl_tb ON levels(sampler, logl, tb);

CREATE TABLE IF NOT EXISTS particles (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	sampler INTEGER NOT NULL REFERENCES samplers(id),
	level   INTEGER NOT NULL,
	params  BLOB,
	logl    REAL NOT NULL,
	tb      REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_particles_logl_tb ON particles(sampler, logl, tb);

CREATE VIEW IF NOT EXISTS levels_leq_particles AS
SELECT
	p.id AS particle,
	(
		SELECT l.id FROM levels l
		WHERE l.sampler = p.sampler
		  AND (l.logl, l.tb) <= (p.logl, p.tb)
		ORDER BY l.logl DESC, l.tb DESC
		LIMIT 1
	) AS level
FROM particles p;

CREATE VIEW IF NOT EXISTS particles_per_level AS
SELECT level, COUNT(*) AS num_particles
FROM levels_leq_particles
GROUP BY level;
`
