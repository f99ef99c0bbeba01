// Package pipeline executes the configured preprocessing stages in order,
// checkpointing stage output and recording the run in the processed store.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scadaops/windprep/internal/cache"
	"github.com/scadaops/windprep/internal/calibrate"
	"github.com/scadaops/windprep/internal/config"
	"github.com/scadaops/windprep/internal/filters"
	"github.com/scadaops/windprep/internal/impute"
	"github.com/scadaops/windprep/internal/loader"
	xlog "github.com/scadaops/windprep/internal/log"
	"github.com/scadaops/windprep/internal/metrics"
	"github.com/scadaops/windprep/internal/normalize"
	"github.com/scadaops/windprep/internal/persistence/sqlite"
	"github.com/scadaops/windprep/internal/scada"
	"github.com/scadaops/windprep/internal/split"
)

// Pipeline runs the preprocessing chain for one configuration.
type Pipeline struct {
	cfg         config.Config
	store       *sqlite.Store
	checkpoints *cache.Checkpoints
	model       string
}

// Summary reports what one run did.
type Summary struct {
	RunID       string
	ConfigKey   string
	Model       string
	Samples     int // sample cells persisted, timesteps x features x turbines
	Groups      int
	Nullified   map[string]int
	Imputed     impute.Result
	Calibration *calibrate.Result
	Consts      map[string]normalize.Consts
	Resumed     string // stage the run resumed after, empty for a full run
	Duration    time.Duration
}

// New builds a pipeline. The store is required; checkpoints may be nil to
// disable resume.
func New(cfg config.Config, store *sqlite.Store, checkpoints *cache.Checkpoints) *Pipeline {
	return &Pipeline{cfg: cfg, store: store, checkpoints: checkpoints}
}

// SetModel labels subsequent runs with the downstream model identifier the
// processed data is prepared for. Informational only.
func (p *Pipeline) SetModel(model string) { p.model = model }

// InvalidateCheckpoints drops this configuration's stage checkpoints so the
// next run reloads raw data instead of resuming. Checkpoints are keyed by
// config fingerprint only, so a caller that knows the raw inputs changed must
// invalidate before re-running. No-op when resume is disabled.
func (p *Pipeline) InvalidateCheckpoints() error {
	if p.checkpoints == nil {
		return nil
	}
	return p.checkpoints.Invalidate(cache.ConfigKey(p.cfg))
}

// Run executes every configured stage and writes the result. A failed run is
// still recorded in the store with its error.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	ctx = xlog.ContextWithRunID(ctx, runID)
	logger := xlog.WithComponentFromContext(ctx, "pipeline")

	summary := &Summary{
		RunID:     runID,
		ConfigKey: cache.ConfigKey(p.cfg),
		Model:     p.model,
		Nullified: make(map[string]int),
	}

	if err := p.store.BeginRun(ctx, runID, summary.ConfigKey, p.model); err != nil {
		return nil, err
	}

	start := time.Now()
	err := p.execute(ctx, summary)
	summary.Duration = time.Since(start)

	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		if ferr := p.store.FinishRun(ctx, runID, sqlite.RunFailed, 0, err.Error()); ferr != nil {
			logger.Error().Err(ferr).Str("event", "pipeline.finish_failed").Msg("could not record failed run")
		}
		logger.Error().Err(err).
			Str("event", "pipeline.failed").
			Dur("duration", summary.Duration).
			Msg("run failed")
		return nil, err
	}

	metrics.RunsTotal.WithLabelValues("completed").Inc()
	metrics.SamplesWritten.Set(float64(summary.Samples))
	metrics.ContinuityGroups.Set(float64(summary.Groups))
	if ferr := p.store.FinishRun(ctx, runID, sqlite.RunCompleted, summary.Samples, ""); ferr != nil {
		return nil, ferr
	}

	logger.Info().
		Str("event", "pipeline.completed").
		Str("model", p.model).
		Int("samples", summary.Samples).
		Int("groups", summary.Groups).
		Dur("duration", summary.Duration).
		Msg("run completed")
	return summary, nil
}

func (p *Pipeline) execute(ctx context.Context, summary *Summary) error {
	logger := xlog.WithComponentFromContext(ctx, "pipeline")

	frame, resumed, err := p.initialFrame(ctx, summary.ConfigKey)
	if err != nil {
		return err
	}
	summary.Resumed = resumed

	skipping := resumed != ""
	for _, stage := range p.cfg.Filters {
		if skipping {
			if stage == resumed {
				skipping = false
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		stageStart := time.Now()
		frame, err = p.runStage(ctx, stage, frame, summary)
		if err != nil {
			return fmt.Errorf("stage %s: %w", stage, err)
		}
		elapsed := time.Since(stageStart)
		metrics.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
		logger.Info().
			Str("event", "pipeline.stage").
			Str("stage", stage).
			Dur("duration", elapsed).
			Int("rows", frame.Len()).
			Msg("stage completed")

		if p.checkpoints != nil {
			if err := p.checkpoints.Put(ctx, summary.ConfigKey, stage, frame); err != nil {
				logger.Warn().Err(err).
					Str("event", "pipeline.checkpoint_failed").
					Str("stage", stage).
					Msg("stage checkpoint not saved")
			}
		}
	}

	samples, err := p.store.WriteFrame(ctx, summary.RunID, frame)
	if err != nil {
		return fmt.Errorf("write processed output: %w", err)
	}
	summary.Samples = samples
	if frame.ContinuityGroups != nil {
		summary.Groups = countGroups(frame.ContinuityGroups)
	}
	return nil
}

// initialFrame loads raw data, or resumes from the newest checkpoint when
// one exists for this configuration.
func (p *Pipeline) initialFrame(ctx context.Context, cfgKey string) (*scada.Frame, string, error) {
	logger := xlog.WithComponentFromContext(ctx, "pipeline")

	if p.checkpoints != nil {
		stage, frame, err := p.checkpoints.Latest(ctx, cfgKey, p.cfg.Filters)
		if err != nil {
			return nil, "", err
		}
		if stage != "" {
			logger.Info().
				Str("event", "pipeline.resume").
				Str("stage", stage).
				Msg("resuming from checkpoint")
			return frame, stage, nil
		}
	}

	l, err := loader.New(p.cfg)
	if err != nil {
		return nil, "", err
	}
	files, err := l.Discover()
	if err != nil {
		return nil, "", err
	}
	metrics.InputFiles.Set(float64(len(files)))

	frame, err := l.Load(ctx)
	if err != nil {
		return nil, "", err
	}
	return frame, "", nil
}

func (p *Pipeline) runStage(ctx context.Context, stage string, frame *scada.Frame, summary *Summary) (*scada.Frame, error) {
	switch stage {
	case config.StageNacelleCalibration:
		res, err := calibrate.Calibrate(ctx, frame, p.cfg)
		if err != nil {
			return nil, err
		}
		summary.Calibration = res
		return frame, nil

	case config.StageSplit:
		out, groups, err := split.Split(ctx, frame, p.cfg)
		if err != nil {
			return nil, err
		}
		summary.Groups = groups
		return out, nil

	case config.StageImputeMissingData:
		res, err := impute.Impute(ctx, frame, p.cfg)
		if err != nil {
			return nil, err
		}
		summary.Imputed = res
		metrics.SamplesImputed.WithLabelValues("regression").Add(float64(res.Regressed))
		metrics.SamplesImputed.WithLabelValues("interpolation").Add(float64(res.Interpolated))
		return frame, nil

	case config.StageNormalize:
		out, consts, err := normalize.Normalize(ctx, frame, p.cfg)
		if err != nil {
			return nil, err
		}
		summary.Consts = consts
		return out, nil

	default:
		filter, err := p.maskFilter(stage)
		if err != nil {
			return nil, err
		}
		flags, err := filter.Flags(ctx, frame)
		if err != nil {
			return nil, err
		}
		nullified := filters.Apply(ctx, frame, flags)
		summary.Nullified[stage] = nullified
		metrics.SamplesNullified.WithLabelValues(stage).Add(float64(nullified))
		return frame, nil
	}
}

func (p *Pipeline) maskFilter(stage string) (filters.Filter, error) {
	switch stage {
	case config.StageUnresponsiveSensor:
		return filters.Unresponsive{Limit: p.cfg.FrozenSensorLimit}, nil
	case config.StageInoperational:
		return filters.NewInoperational(), nil
	case config.StageRangeFlag:
		return filters.NewRangeFlag(), nil
	case config.StageWindowRangeFlag:
		return filters.NewWindowRange(), nil
	case config.StageBinFilter:
		return filters.NewBinFilter(), nil
	case config.StageStdRangeFlag:
		return filters.NewStdRange(), nil
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

func countGroups(groups []int) int {
	seen := map[int]struct{}{}
	for _, g := range groups {
		if g >= 0 {
			seen[g] = struct{}{}
		}
	}
	return len(seen)
}
