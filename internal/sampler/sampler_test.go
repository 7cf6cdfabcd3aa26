package sampler_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jihwankim/dns-sampler/internal/config"
	"github.com/jihwankim/dns-sampler/internal/logging"
	"github.com/jihwankim/dns-sampler/internal/model/spikeslab"
	"github.com/jihwankim/dns-sampler/internal/sampler"
	"github.com/jihwankim/dns-sampler/internal/store"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError})
}

func TestInitPersistsSamplerSeedsAndInitialLevel(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "dns.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	cfg := config.SamplerConfig{
		NumParticles: 4, NumThreads: 2, NewLevelInterval: 50, SaveInterval: 2,
		Thin: 0.5, Lambda: 10, Beta: 100, MaxNumSaves: 2, Seed: 42,
	}
	s := sampler.New[*spikeslab.Model](cfg, st, testLogger(), spikeslab.New)

	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	levels, err := st.LoadLevels(ctx, 1)
	if err != nil {
		t.Fatalf("load levels: %v", err)
	}
	if len(levels) != 1 || levels[0].ID != 0 {
		t.Fatalf("expected exactly one initial level, got %+v", levels)
	}

	seeds, err := st.ExistingSeeds(ctx)
	if err != nil {
		t.Fatalf("existing seeds: %v", err)
	}
	if len(seeds) != cfg.NumThreads {
		t.Fatalf("expected %d seeds recorded, got %d", cfg.NumThreads, len(seeds))
	}
}

func TestRunCompletesWithoutDeadlockAndPersistsParticles(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "dns.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	cfg := config.SamplerConfig{
		NumParticles: 4, NumThreads: 2, NewLevelInterval: 20, SaveInterval: 2,
		Thin: 0.5, Lambda: 10, Beta: 100, MaxNumSaves: 4, Seed: 7,
	}
	s := sampler.New[*spikeslab.Model](cfg, st, testLogger(), spikeslab.New)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("sampler run did not complete within 10s; possible deadlock")
	}

	maxID, err := st.MaxParticleID(context.Background(), 1)
	if err != nil {
		t.Fatalf("max particle id: %v", err)
	}
	if maxID <= 0 {
		t.Fatalf("expected at least one persisted particle, got max id %d", maxID)
	}
}
