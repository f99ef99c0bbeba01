package filters

import (
	"context"
	"math"

	"github.com/scadaops/windprep/internal/scada"
)

// Unresponsive flags frozen sensors: runs of identical consecutive wind
// speed or wind direction readings longer than the configured sample limit.
// It must run before other filters nullify cells, so repeated values are
// still adjacent.
type Unresponsive struct {
	// Limit is the number of identical consecutive samples tolerated
	// before the whole run is flagged (frozen_sensor_limit).
	Limit int
}

// Name implements Filter.
func (u Unresponsive) Name() string { return "unresponsive_sensor" }

// Flags implements Filter.
func (u Unresponsive) Flags(ctx context.Context, frame *scada.Frame) ([]Flag, error) {
	return perTurbine(ctx, frame, func(tid string) []Flag {
		var flags []Flag
		for _, feature := range []string{scada.FeatureWindSpeed, scada.FeatureWindDirection} {
			vals := frame.Series(feature, tid)
			if vals == nil {
				continue
			}
			flags = append(flags, Flag{
				Feature: feature,
				Turbine: tid,
				Mask:    frozenRuns(vals, u.Limit),
			})
		}
		return flags
	})
}

// frozenRuns marks every sample belonging to a run of equal values longer
// than limit. NaN samples break a run without being flagged themselves.
func frozenRuns(vals []float64, limit int) []bool {
	mask := make([]bool, len(vals))
	runStart := 0
	flush := func(end int) {
		if end > runStart && math.IsNaN(vals[runStart]) {
			return
		}
		if end-runStart > limit {
			for i := runStart; i < end; i++ {
				mask[i] = true
			}
		}
	}
	for i := 1; i <= len(vals); i++ {
		if i < len(vals) &&
			!math.IsNaN(vals[i]) && !math.IsNaN(vals[runStart]) &&
			vals[i] == vals[runStart] {
			continue
		}
		flush(i)
		runStart = i
	}
	return mask
}
