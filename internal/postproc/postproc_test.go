package postproc_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jihwankim/dns-sampler/internal/model/box"
	"github.com/jihwankim/dns-sampler/internal/model/linefit"
	"github.com/jihwankim/dns-sampler/internal/postproc"
	"github.com/jihwankim/dns-sampler/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "dns.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedLinefitRun(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	tx, err := st.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	cfg := store.SamplerConfig{ID: 1, NumParticles: 4, NumThreads: 1, NewLevelInterval: 10, SaveInterval: 1, Thin: 1, Lambda: 10, Beta: 100, MaxNumSaves: 10}
	if err := store.InsertSampler(ctx, tx, cfg); err != nil {
		t.Fatalf("insert sampler: %v", err)
	}
	if err := store.UpsertLevel(ctx, tx, 1, store.LevelRow{ID: 0, LogX: 0, LogL: -100}); err != nil {
		t.Fatalf("upsert level 0: %v", err)
	}
	if err := store.UpsertLevel(ctx, tx, 1, store.LevelRow{ID: 1, LogX: -2, LogL: -10}); err != nil {
		t.Fatalf("upsert level 1: %v", err)
	}

	blobs := [][]float64{{0.1, 0.2, 0.5}, {0.4, 0.6, 0.3}, {0.9, 0.1, 0.7}, {0.5, 0.5, 0.5}}
	logls := []float64{-50, -8, -5, -3}
	levelIDs := []int{0, 1, 1, 1}
	for i, us := range blobs {
		b := &box.Box{Us: us}
		if _, err := store.InsertParticle(ctx, tx, 1, levelIDs[i], logls[i], 0.5, b.ToBlob(), true); err != nil {
			t.Fatalf("insert particle %d: %v", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestRunProducesResultsAndPosteriorFiles(t *testing.T) {
	st := newTestStore(t)
	seedLinefitRun(t, st)

	outDir := t.TempDir()
	newModel := func() *linefit.Model {
		return &linefit.Model{Box: &box.Box{Us: make([]float64, linefit.NumParams)}}
	}

	results, err := postproc.Run(context.Background(), st, postproc.Options{SamplerID: 1, OutDir: outDir}, newModel)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if results.NumLevels != 2 {
		t.Fatalf("expected 2 levels, got %d", results.NumLevels)
	}
	if results.NumParticles != 4 {
		t.Fatalf("expected 4 particles, got %d", results.NumParticles)
	}

	if _, err := os.Stat(filepath.Join(outDir, "results.yaml")); err != nil {
		t.Fatalf("results.yaml missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "posterior.csv")); err != nil {
		t.Fatalf("posterior.csv missing: %v", err)
	}
}
