package filters

import (
	"context"
	"math"

	"github.com/scadaops/windprep/internal/scada"
)

// Physical wind speed acceptance range in m/s.
const (
	windSpeedLower = 0.0
	windSpeedUpper = 70.0
)

// RangeFlag flags wind speed readings outside the physically plausible
// range. Already-missing samples are not flagged.
type RangeFlag struct {
	Lower float64
	Upper float64
}

// NewRangeFlag returns the filter with the standard acceptance range.
func NewRangeFlag() RangeFlag {
	return RangeFlag{Lower: windSpeedLower, Upper: windSpeedUpper}
}

// Name implements Filter.
func (r RangeFlag) Name() string { return "range_flag" }

// Flags implements Filter.
func (r RangeFlag) Flags(ctx context.Context, frame *scada.Frame) ([]Flag, error) {
	return perTurbine(ctx, frame, func(tid string) []Flag {
		vals := frame.Series(scada.FeatureWindSpeed, tid)
		if vals == nil {
			return nil
		}
		mask := make([]bool, len(vals))
		for i, v := range vals {
			if math.IsNaN(v) {
				continue
			}
			mask[i] = v < r.Lower || v > r.Upper
		}
		return []Flag{{Feature: scada.FeatureWindSpeed, Turbine: tid, Mask: mask}}
	})
}
