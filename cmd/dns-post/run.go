package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jihwankim/dns-sampler/internal/config"
	"github.com/jihwankim/dns-sampler/internal/model/box"
	"github.com/jihwankim/dns-sampler/internal/model/linefit"
	"github.com/jihwankim/dns-sampler/internal/model/rosenbrock"
	"github.com/jihwankim/dns-sampler/internal/model/spikeslab"
	"github.com/jihwankim/dns-sampler/internal/postproc"
	"github.com/jihwankim/dns-sampler/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Postprocess a finished sampler run",
	RunE:  runPostproc,
}

func init() {
	runCmd.Flags().String("model", "spikeslab", "model the run was sampled with (spikeslab, rosenbrock, linefit)")
	runCmd.Flags().String("db", "", "sqlite database path (empty = use config/default)")
	runCmd.Flags().Int64("sampler", 1, "sampler id to postprocess")
	runCmd.Flags().Float64P("temperature", "t", 1, "annealing temperature applied to the likelihood")
	runCmd.Flags().Float64P("abc", "a", 0, "ABC distance threshold; if > 0, switch to ABC thresholding mode")
	runCmd.Flags().BoolP("full-only", "f", false, "restrict posterior resampling to particles saved with a full parameter blob")
	runCmd.Flags().String("out", "./out", "output directory for results.yaml and posterior.csv")
}

func runPostproc(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.Store.Path = v
	}

	st, err := store.OpenReadOnly(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	samplerID, _ := cmd.Flags().GetInt64("sampler")
	temperature, _ := cmd.Flags().GetFloat64("temperature")
	abcEps, _ := cmd.Flags().GetFloat64("abc")
	fullOnly, _ := cmd.Flags().GetBool("full-only")
	outDir, _ := cmd.Flags().GetString("out")

	opts := postproc.Options{
		SamplerID:   samplerID,
		Temperature: temperature,
		ABCEpsilon:  abcEps,
		FullOnly:    fullOnly,
		OutDir:      outDir,
	}

	modelName, _ := cmd.Flags().GetString("model")
	ctx := context.Background()

	var results *postproc.Results
	switch modelName {
	case "spikeslab":
		results, err = postproc.Run(ctx, st, opts, func() *spikeslab.Model {
			return &spikeslab.Model{Box: &box.Box{Us: make([]float64, spikeslab.NumParams)}}
		})
	case "rosenbrock":
		results, err = postproc.Run(ctx, st, opts, func() *rosenbrock.Model {
			return &rosenbrock.Model{Box: &box.Box{Us: make([]float64, rosenbrock.NumParams)}}
		})
	case "linefit":
		results, err = postproc.Run(ctx, st, opts, func() *linefit.Model {
			return &linefit.Model{Box: &box.Box{Us: make([]float64, linefit.NumParams)}}
		})
	default:
		return fmt.Errorf("unknown model %q (want spikeslab, rosenbrock, or linefit)", modelName)
	}
	if err != nil {
		return err
	}

	fmt.Printf("logz = %.4f\ninformation = %.4f nats\nESS = %.1f\nlevels = %d\nparticles = %d (%d full)\n",
		results.LogZ, results.InformationNats, results.EffectiveSampleSz, results.NumLevels, results.NumParticles, results.NumFullParticles)
	return nil
}
