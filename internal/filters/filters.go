// Package filters implements the mask-producing sensor quality stages.
// Each filter inspects the frame and flags suspect samples per turbine
// series; flagged cells are then nullified for later imputation.
package filters

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	xlog "github.com/scadaops/windprep/internal/log"
	"github.com/scadaops/windprep/internal/scada"
)

// minFlaggedShare is the minimum share of valid samples a turbine's mask
// must flag before it is applied. Masks below the share are treated as
// noise and skipped.
const minFlaggedShare = 0.01

// flagConcurrency bounds per-turbine mask computation.
const flagConcurrency = 8

// Flag is one turbine series' worth of suspect samples.
type Flag struct {
	Feature string
	Turbine string
	Mask    []bool
}

// Count returns the number of flagged samples.
func (f Flag) Count() int {
	n := 0
	for _, hit := range f.Mask {
		if hit {
			n++
		}
	}
	return n
}

// Filter computes suspect-sample masks for a frame.
type Filter interface {
	Name() string
	Flags(ctx context.Context, frame *scada.Frame) ([]Flag, error)
}

// Apply nullifies flagged cells. A turbine mask is only applied when it
// flags at least minFlaggedShare of that series' valid samples. Returns
// the total number of nullified cells.
func Apply(ctx context.Context, frame *scada.Frame, flags []Flag) int {
	logger := xlog.WithComponentFromContext(ctx, "filters")

	nullified := 0
	for _, flag := range flags {
		vals := frame.Series(flag.Feature, flag.Turbine)
		if vals == nil {
			continue
		}
		valid := 0
		for _, v := range vals {
			if !math.IsNaN(v) {
				valid++
			}
		}
		if valid == 0 {
			continue
		}
		if float64(flag.Count())/float64(valid) < minFlaggedShare {
			continue
		}
		nullified += frame.Nullify(flag.Feature, flag.Turbine, flag.Mask)
	}

	logger.Debug().
		Str("event", "filters.applied").
		Int("cells_nullified", nullified).
		Msg("suspect cells nullified")
	return nullified
}

// perTurbine runs fn for every turbine concurrently and collects the
// returned flags in turbine order.
func perTurbine(ctx context.Context, frame *scada.Frame, fn func(turbine string) []Flag) ([]Flag, error) {
	var mu sync.Mutex
	out := make(map[string][]Flag, len(frame.Turbines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(flagConcurrency)
	for _, tid := range frame.Turbines {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			flags := fn(tid)
			mu.Lock()
			out[tid] = flags
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ordered := make([]Flag, 0, len(frame.Turbines))
	for _, tid := range frame.Turbines {
		ordered = append(ordered, out[tid]...)
	}
	return ordered, nil
}
