// windprep preprocesses wind farm SCADA exports into model-ready features.
//
// Usage:
//
//	windprep run      -config config.yaml [-checkpoints DIR] MODEL
//	windprep watch    -config config.yaml [-listen ADDR] [-min-interval DUR] [MODEL]
//	windprep validate -f config.yaml
//	windprep verify   -db processed.db [-full]
//	windprep version
//
// Exit codes:
//   - 0: success
//   - 1: run, load or validation failure
//   - 2: usage error
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scadaops/windprep/internal/config"
	xlog "github.com/scadaops/windprep/internal/log"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version", "-version", "--version":
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	case "validate":
		return runValidate(rest)
	case "verify":
		return runVerify(rest)
	case "run":
		return runPipeline(rest)
	case "watch":
		return runWatch(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  windprep run      -config config.yaml [-checkpoints DIR] MODEL")
	fmt.Fprintln(os.Stderr, "  windprep watch    -config config.yaml [-listen ADDR] [-min-interval DUR] [MODEL]")
	fmt.Fprintln(os.Stderr, "  windprep validate -f config.yaml")
	fmt.Fprintln(os.Stderr, "  windprep verify   -db processed.db [-full]")
	fmt.Fprintln(os.Stderr, "  windprep version")
}

// loadConfig loads and validates the effective configuration, logging the
// scheduler allocation when running under a batch scheduler.
func loadConfig(path string) (config.Config, error) {
	loader := config.NewLoader(path, version)
	cfg, err := loader.Load()
	if err != nil {
		return cfg, fmt.Errorf("load configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}
	config.LogSchedulerEnv()
	return cfg, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func configureLogging() {
	xlog.Configure(xlog.Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Service: "windprep",
	})
}
