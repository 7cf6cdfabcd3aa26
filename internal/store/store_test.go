package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jihwankim/dns-sampler/internal/store"
)

func openTemp(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dns.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNextSamplerIDStartsAtOne(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	id, err := s.NextSamplerID(ctx)
	if err != nil {
		t.Fatalf("next sampler id: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first sampler id 1, got %d", id)
	}
}

func TestInsertSamplerAndLevelsRoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	cfg := store.SamplerConfig{
		ID: 1, NumParticles: 10, NumThreads: 2, NewLevelInterval: 1000,
		SaveInterval: 100, Thin: 0.1, Lambda: 10, Beta: 100, MaxNumSaves: 1000,
	}
	if err := store.InsertSampler(ctx, tx, cfg); err != nil {
		t.Fatalf("insert sampler: %v", err)
	}
	if err := store.InsertSeed(ctx, tx, 1, 12345); err != nil {
		t.Fatalf("insert seed: %v", err)
	}
	if err := store.UpsertLevel(ctx, tx, 1, store.LevelRow{ID: 0, LogX: 0, LogL: -1e300}); err != nil {
		t.Fatalf("upsert level: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	levels, err := s.LoadLevels(ctx, 1)
	if err != nil {
		t.Fatalf("load levels: %v", err)
	}
	if len(levels) != 1 || levels[0].NumParticles != 0 {
		t.Fatalf("expected a single zero-particle level, got %+v", levels)
	}

	seeds, err := s.ExistingSeeds(ctx)
	if err != nil {
		t.Fatalf("existing seeds: %v", err)
	}
	if !seeds[12345] {
		t.Fatalf("expected seed 12345 to be recorded")
	}
}

func TestUpsertLevelUpdatesInPlace(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	tx, _ := s.BeginTx(ctx)
	cfg := store.SamplerConfig{ID: 1, NumParticles: 5, NumThreads: 1, NewLevelInterval: 10, SaveInterval: 1, Thin: 1, Lambda: 1, Beta: 1, MaxNumSaves: 10}
	_ = store.InsertSampler(ctx, tx, cfg)
	_ = store.UpsertLevel(ctx, tx, 1, store.LevelRow{ID: 0, LogX: 0, LogL: -1e300, Visits: 5})
	_ = tx.Commit()

	tx2, _ := s.BeginTx(ctx)
	_ = store.UpsertLevel(ctx, tx2, 1, store.LevelRow{ID: 0, LogX: -0.5, LogL: -1e300, Visits: 11})
	_ = tx2.Commit()

	levels, err := s.LoadLevels(ctx, 1)
	if err != nil {
		t.Fatalf("load levels: %v", err)
	}
	if len(levels) != 1 || levels[0].Visits != 11 || levels[0].LogX != -0.5 {
		t.Fatalf("expected updated level row, got %+v", levels)
	}
}

func TestParticlesJoinLevelByThreshold(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	tx, _ := s.BeginTx(ctx)
	cfg := store.SamplerConfig{ID: 1, NumParticles: 5, NumThreads: 1, NewLevelInterval: 10, SaveInterval: 1, Thin: 1, Lambda: 1, Beta: 1, MaxNumSaves: 10}
	_ = store.InsertSampler(ctx, tx, cfg)
	_ = store.UpsertLevel(ctx, tx, 1, store.LevelRow{ID: 0, LogX: 0, LogL: -1e300, TB: 0})
	_ = store.UpsertLevel(ctx, tx, 1, store.LevelRow{ID: 1, LogX: -1, LogL: -5, TB: 0})
	if _, err := store.InsertParticle(ctx, tx, 1, 0, -10, 0, []byte{1, 2, 3}, true); err != nil {
		t.Fatalf("insert particle: %v", err)
	}
	if _, err := store.InsertParticle(ctx, tx, 1, 1, -1, 0, []byte{4, 5, 6}, true); err != nil {
		t.Fatalf("insert particle: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	maxID, err := s.MaxParticleID(ctx, 1)
	if err != nil {
		t.Fatalf("max particle id: %v", err)
	}

	rows, err := s.IterateParticlesOrdered(ctx, 1, maxID)
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	defer rows.Close()

	var got []store.ParticleRow
	for rows.Next() {
		p, err := store.ScanParticleRow(rows)
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, p)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 particles, got %d", len(got))
	}
	if got[0].Level != 0 || got[1].Level != 1 {
		t.Fatalf("expected particles assigned to the highest level not exceeding their logL, got %+v", got)
	}
}
