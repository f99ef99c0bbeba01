// Package split partitions a frame into continuity groups around periods
// where too many turbines report missing data at once.
package split

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/scadaops/windprep/internal/config"
	xlog "github.com/scadaops/windprep/internal/log"
	"github.com/scadaops/windprep/internal/scada"
)

// monitoredFeatures are the columns counted toward the missing threshold.
var monitoredFeatures = []string{
	scada.FeatureWindSpeed,
	scada.FeatureWindDirection,
	scada.FeatureNacelleDirection,
}

// Period is a contiguous span of rows.
type Period struct {
	Start int // first row index
	End   int // last row index, inclusive
}

// Duration returns the period's time span on the frame's grid.
func (p Period) Duration(f *scada.Frame) time.Duration {
	return f.Times[p.End].Sub(f.Times[p.Start])
}

// Split assigns continuity group indices and drops rows belonging to no
// group. Returns the reduced frame and the number of groups.
func Split(ctx context.Context, frame *scada.Frame, cfg config.Config) (*scada.Frame, int, error) {
	logger := xlog.WithComponentFromContext(ctx, "split")

	gapped := gappedRows(frame, cfg.MissingColThr)

	// Healthy periods, plus gapped periods short enough to tolerate.
	healthy := periods(gapped, false)
	missing := periods(gapped, true)

	keep := healthy
	for _, p := range missing {
		if p.Duration(frame) <= cfg.MissingDuration() {
			keep = append(keep, p)
		}
	}
	if len(keep) == 0 {
		return nil, 0, fmt.Errorf("missing_col_thr or missing_duration_thr too stringent: no eligible periods remain")
	}

	merged := MergeAdjacent(sortPeriods(keep), frame, cfg.SampleInterval())

	// Enforce the minimum useful segment length.
	final := merged[:0]
	for _, p := range merged {
		if p.Duration(frame) >= cfg.MinimumSegment() {
			final = append(final, p)
		}
	}
	if len(final) == 0 {
		return nil, 0, fmt.Errorf("minimum_not_missing_duration too stringent: no segment long enough")
	}

	// Tag rows and drop everything outside a group.
	group := make([]int, frame.Len())
	for i := range group {
		group[i] = -1
	}
	var rows []int
	for gi, p := range final {
		for i := p.Start; i <= p.End; i++ {
			group[i] = gi
			rows = append(rows, i)
		}
	}
	frame.ContinuityGroups = group

	out := frame.SelectRows(rows)
	logger.Info().
		Str("event", "split.complete").
		Int("groups", len(final)).
		Int("rows_in", frame.Len()).
		Int("rows_out", out.Len()).
		Msg("continuity groups assigned")

	return out, len(final), nil
}

// gappedRows marks rows where more than thr monitored series are missing.
func gappedRows(f *scada.Frame, thr int) []bool {
	out := make([]bool, f.Len())
	for i := range out {
		missing := 0
		for _, feature := range monitoredFeatures {
			for _, tid := range f.Turbines {
				vals := f.Series(feature, tid)
				if vals != nil && math.IsNaN(vals[i]) {
					missing++
				}
			}
		}
		out[i] = missing > thr
	}
	return out
}

// periods extracts maximal runs of rows whose gapped state equals want.
func periods(gapped []bool, want bool) []Period {
	var out []Period
	start := -1
	for i, g := range gapped {
		if g == want {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, Period{Start: start, End: i - 1})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, Period{Start: start, End: len(gapped) - 1})
	}
	return out
}

// MergeAdjacent joins periods whose boundary rows are exactly one sample
// step apart on the time grid.
func MergeAdjacent(sorted []Period, f *scada.Frame, dt time.Duration) []Period {
	if len(sorted) == 0 {
		return nil
	}
	out := []Period{sorted[0]}
	for _, p := range sorted[1:] {
		last := &out[len(out)-1]
		if p.Start == last.End+1 && f.Times[p.Start].Sub(f.Times[last.End]) == dt {
			last.End = p.End
			continue
		}
		out = append(out, p)
	}
	return out
}

func sortPeriods(ps []Period) []Period {
	out := append([]Period(nil), ps...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Start < out[j-1].Start; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
