package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/scadaops/windprep/internal/cache"
	"github.com/scadaops/windprep/internal/daemon"
	xlog "github.com/scadaops/windprep/internal/log"
	"github.com/scadaops/windprep/internal/persistence/sqlite"
	"github.com/scadaops/windprep/internal/pipeline"
)

// runPipeline executes one preprocessing run and exits.
func runPipeline(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	checkpointDir := fs.String("checkpoints", "", "stage checkpoint directory (empty disables resume)")
	_ = fs.Parse(args)

	model := fs.Arg(0)
	if model == "" {
		fmt.Fprintln(os.Stderr, "Error: model identifier argument is required")
		fmt.Fprintln(os.Stderr, "Usage: windprep run [flags] MODEL")
		return 2
	}

	configureLogging()
	logger := xlog.WithComponent("cli")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error().Err(err).Str("event", "cli.config_invalid").Msg("configuration rejected")
		return 1
	}

	store, err := sqlite.OpenStore(cfg.ProcessedDataPath)
	if err != nil {
		logger.Error().Err(err).Str("event", "cli.store_open_failed").Msg("cannot open processed store")
		return 1
	}
	defer store.Close() //nolint:errcheck

	var checkpoints *cache.Checkpoints
	if *checkpointDir != "" {
		checkpoints, err = cache.Open(*checkpointDir)
		if err != nil {
			logger.Error().Err(err).Str("event", "cli.checkpoints_open_failed").Msg("cannot open checkpoint store")
			return 1
		}
		defer checkpoints.Close() //nolint:errcheck
	}

	ctx, stop := signalContext()
	defer stop()

	pipe := pipeline.New(cfg, store, checkpoints)
	pipe.SetModel(model)
	summary, err := pipe.Run(ctx)
	if err != nil {
		return 1
	}

	fmt.Printf("run %s (%s): %d samples, %d continuity groups in %s\n",
		summary.RunID, model, summary.Samples, summary.Groups, summary.Duration.Round(time.Millisecond))
	return 0
}

// runWatch starts the long-lived watch daemon.
func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	checkpointDir := fs.String("checkpoints", "", "stage checkpoint directory (empty disables resume)")
	listen := fs.String("listen", ":8090", "health/status/metrics listen address")
	minInterval := fs.Duration("min-interval", 30*time.Second, "minimum interval between triggered runs")
	_ = fs.Parse(args)

	model := fs.Arg(0) // optional for watch, runs are labelled when given

	configureLogging()
	logger := xlog.WithComponent("cli")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error().Err(err).Str("event", "cli.config_invalid").Msg("configuration rejected")
		return 1
	}

	store, err := sqlite.OpenStore(cfg.ProcessedDataPath)
	if err != nil {
		logger.Error().Err(err).Str("event", "cli.store_open_failed").Msg("cannot open processed store")
		return 1
	}
	defer store.Close() //nolint:errcheck

	var checkpoints *cache.Checkpoints
	if *checkpointDir != "" {
		checkpoints, err = cache.Open(*checkpointDir)
		if err != nil {
			logger.Error().Err(err).Str("event", "cli.checkpoints_open_failed").Msg("cannot open checkpoint store")
			return 1
		}
		defer checkpoints.Close() //nolint:errcheck
	}

	ctx, stop := signalContext()
	defer stop()

	pipe := pipeline.New(cfg, store, checkpoints)
	pipe.SetModel(model)
	d := daemon.New(cfg, pipe, *listen, *minInterval)
	if err := d.Run(ctx); err != nil {
		logger.Error().Err(err).Str("event", "cli.watch_failed").Msg("watch daemon exited")
		return 1
	}
	return 0
}

// runVerify checks the processed database for corruption.
func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to processed database")
	full := fs.Bool("full", false, "run the full integrity check instead of the quick one")
	_ = fs.Parse(args)

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -db is required")
		return 2
	}

	mode := "quick"
	if *full {
		mode = "full"
	}
	issues, err := sqlite.VerifyIntegrity(*dbPath, mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verification error: %v\n", err)
		return 1
	}
	if issues != nil {
		fmt.Fprintf(os.Stderr, "%s is corrupt:\n", *dbPath)
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "  %s\n", issue)
		}
		return 1
	}
	fmt.Printf("%s is healthy\n", *dbPath)
	return 0
}
