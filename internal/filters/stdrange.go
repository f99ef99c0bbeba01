package filters

import (
	"context"
	"math"

	"github.com/scadaops/windprep/internal/scada"
)

// StdRange flags samples deviating more than NSigma standard deviations
// from the series mean. Wind direction is handled circularly: deviations
// are measured against the circular mean and wrapped into (-180, 180].
type StdRange struct {
	NSigma float64
}

// NewStdRange returns the filter with a 3-sigma envelope.
func NewStdRange() StdRange {
	return StdRange{NSigma: 3}
}

// Name implements Filter.
func (s StdRange) Name() string { return "std_range_flag" }

// Flags implements Filter.
func (s StdRange) Flags(ctx context.Context, frame *scada.Frame) ([]Flag, error) {
	return perTurbine(ctx, frame, func(tid string) []Flag {
		var flags []Flag

		if ws := frame.Series(scada.FeatureWindSpeed, tid); ws != nil {
			flags = append(flags, Flag{
				Feature: scada.FeatureWindSpeed,
				Turbine: tid,
				Mask:    s.linearMask(ws),
			})
		}
		if wd := frame.Series(scada.FeatureWindDirection, tid); wd != nil {
			flags = append(flags, Flag{
				Feature: scada.FeatureWindDirection,
				Turbine: tid,
				Mask:    s.circularMask(wd),
			})
		}
		return flags
	})
}

func (s StdRange) linearMask(vals []float64) []bool {
	mean := scada.Mean(vals)
	sd := scada.Std(vals)
	mask := make([]bool, len(vals))
	if math.IsNaN(mean) || sd == 0 {
		return mask
	}
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		mask[i] = math.Abs(v-mean) > s.NSigma*sd
	}
	return mask
}

func (s StdRange) circularMask(vals []float64) []bool {
	mean := scada.CircularMeanDeg(vals)
	mask := make([]bool, len(vals))
	if math.IsNaN(mean) {
		return mask
	}

	dev := make([]float64, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) {
			dev[i] = math.NaN()
			continue
		}
		dev[i] = scada.Wrap180(v - mean)
	}
	sd := scada.Std(dev)
	if sd == 0 || math.IsNaN(sd) {
		return mask
	}
	for i, d := range dev {
		if math.IsNaN(d) {
			continue
		}
		mask[i] = math.Abs(d) > s.NSigma*sd
	}
	return mask
}
