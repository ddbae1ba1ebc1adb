package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/airshape/optimizer-core/internal/design"
	"github.com/airshape/optimizer-core/internal/driver"
	"github.com/airshape/optimizer-core/internal/flight"
	"github.com/airshape/optimizer-core/internal/trace"
	"github.com/airshape/optimizer-core/pkg/config"
	"github.com/airshape/optimizer-core/pkg/logger"
	"github.com/airshape/optimizer-core/pkg/utils"
)

func main() {
	var configPath string
	var designPath string
	var outPath string
	var logLevel string

	flag.StringVar(&configPath, "config", "", "optimizer config YAML (defaults used when empty)")
	flag.StringVar(&designPath, "design", "design.yaml", "airframe design template to optimize")
	flag.StringVar(&outPath, "out", "", "where to write the optimized design (defaults to overwriting -design)")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger.SetDefault(logger.NewText(logLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, configPath, designPath, outPath); err != nil {
		logger.Error("optimization failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, designPath, outPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else if err := config.Validate(cfg); err != nil {
		return err
	}

	tpl, err := design.LoadTemplate(designPath)
	if err != nil {
		return err
	}
	codec, err := design.NewCodec(design.BoundsFromConfig(cfg.Dimensions), tpl.Airframe)
	if err != nil {
		return err
	}

	sim := flight.NewHTTPSimulator(cfg.Simulator.Endpoint, cfg.Simulator.Timeout())

	var recorder trace.Recorder
	if cfg.Trace.SQLitePath != "" {
		runID := utils.GenerateRunID()
		store := trace.NewSQLiteStore(cfg.Trace.SQLitePath, runID)
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("opening trace store: %w", err)
		}
		defer store.Close()
		recorder = store
		logger.Info("recording evaluations", "path", cfg.Trace.SQLitePath, "run_id", runID)
	}

	d := driver.New(cfg, codec, sim, recorder)
	d.SetProgress(func(p trace.Point) {
		logger.Debug("evaluation", "index", p.Index, "stage", p.Stage, "loss", p.Loss, "failed", p.Failed)
	})

	res, err := d.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("interrupted before any design was evaluated")
		}
		return err
	}

	report(res, cfg)

	tpl.Apply(res.Spec)
	if outPath == "" {
		outPath = designPath
	}
	if err := design.SaveTemplate(outPath, tpl); err != nil {
		return err
	}
	logger.Info("optimized design written", "path", outPath)
	return nil
}

// report prints the final design summary and loss breakdown to the log.
func report(res *driver.Result, cfg *config.Config) {
	logger.Info("best design",
		"loss", res.Loss,
		"stage1_evaluations", res.Stage1Evaluations,
		"stage2_iterations", res.Stage2Iterations,
		"converged", res.Converged,
		"reason", res.ConvergenceReason,
	)
	if res.Metrics != nil {
		logger.Info("predicted flight",
			"apogee_m", res.Metrics.ApogeeM,
			"target_m", cfg.TargetApogeeM,
			"stability_min_cal", res.Metrics.StabilityMinCal,
			"stability_avg_cal", res.Metrics.StabilityAvgCal,
			"rail_exit_ms", res.Metrics.RailExitVelocityMS,
		)
	}

	for i, d := range cfg.Dimensions {
		if i < len(res.Vector) {
			logger.Info("optimized dimension", "name", d.Name, "value", res.Vector[i])
		}
	}

	terms := make([]string, 0, len(res.Terms))
	for name := range res.Terms {
		terms = append(terms, name)
	}
	sort.Strings(terms)
	for _, name := range terms {
		logger.Info("loss term", "term", name, "value", res.Terms[name])
	}
}
