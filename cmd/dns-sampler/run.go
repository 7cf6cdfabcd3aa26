package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jihwankim/dns-sampler/internal/config"
	"github.com/jihwankim/dns-sampler/internal/logging"
	"github.com/jihwankim/dns-sampler/internal/metrics"
	"github.com/jihwankim/dns-sampler/internal/model/linefit"
	"github.com/jihwankim/dns-sampler/internal/model/rosenbrock"
	"github.com/jihwankim/dns-sampler/internal/model/spikeslab"
	"github.com/jihwankim/dns-sampler/internal/rng"
	"github.com/jihwankim/dns-sampler/internal/sampler"
	"github.com/jihwankim/dns-sampler/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Run a sampler against one of the built-in models",
	Long: `Runs the diffusive nested sampler against one of the built-in probability
models (spikeslab, rosenbrock, linefit) until its save budget is exhausted
or it is interrupted.`,
	RunE: runSampler,
}

func init() {
	runCmd.Flags().String("model", "spikeslab", "model to sample (spikeslab, rosenbrock, linefit)")
	runCmd.Flags().String("data", "", "CSV data file (linefit model only)")
	runCmd.Flags().Int("particles", 0, "number of particles (0 = use config/default)")
	runCmd.Flags().Int("threads", 0, "number of worker threads (0 = use config/default)")
	runCmd.Flags().Int64("seed", 0, "base rng seed (0 = use config; a zero config seed is derived from the current time)")
	runCmd.Flags().String("db", "", "sqlite database path (empty = use config/default)")
	runCmd.Flags().String("metrics-addr", "", "address to serve Prometheus /metrics on (empty = disabled)")
}

func runSampler(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if v, _ := cmd.Flags().GetInt("particles"); v > 0 {
		cfg.Sampler.NumParticles = v
	}
	if v, _ := cmd.Flags().GetInt("threads"); v > 0 {
		cfg.Sampler.NumThreads = v
	}
	if v, _ := cmd.Flags().GetInt64("seed"); v != 0 {
		cfg.Sampler.Seed = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.Store.Path = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logLevel := logging.Level(cfg.Logging.Level)
	if verbose {
		logLevel = logging.LevelDebug
	}
	log := logging.New(logging.Config{Level: logLevel, Format: logging.Format(cfg.Logging.Format)})

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	modelName, _ := cmd.Flags().GetString("model")
	ctx := context.Background()

	rec := metrics.NewRecorder()
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rec.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server", err)
			}
		}()
	}

	switch modelName {
	case "spikeslab":
		s := sampler.New[*spikeslab.Model](cfg.Sampler, st, log, spikeslab.New).WithMetrics(rec)
		return s.Run(ctx)
	case "rosenbrock":
		s := sampler.New[*rosenbrock.Model](cfg.Sampler, st, log, rosenbrock.New).WithMetrics(rec)
		return s.Run(ctx)
	case "linefit":
		dataPath, _ := cmd.Flags().GetString("data")
		if dataPath == "" {
			return fmt.Errorf("--data is required for the linefit model")
		}
		points, err := linefit.LoadCSV(dataPath)
		if err != nil {
			return err
		}
		factory := func(stream *rng.Stream) *linefit.Model { return linefit.New(stream, points) }
		s := sampler.New[*linefit.Model](cfg.Sampler, st, log, factory).WithMetrics(rec)
		return s.Run(ctx)
	default:
		return fmt.Errorf("unknown model %q (want spikeslab, rosenbrock, or linefit)", modelName)
	}
}
