package filters

import (
	"context"
	"math"

	"github.com/scadaops/windprep/internal/scada"
)

// WindowRange flags wind speed samples whose paired power output falls
// outside the acceptance window while wind speed is inside the window
// span. Identifies shut-down or curtailed operation mixed into otherwise
// plausible wind speeds.
type WindowRange struct {
	WindowStart float64 // wind speed window lower bound, m/s
	WindowEnd   float64 // wind speed window upper bound, m/s
	ValueMin    float64 // minimum acceptable power, kW
	ValueMax    float64 // maximum acceptable power, kW
}

// NewWindowRange returns the filter with the standard 20-3000 kW window
// over 5-40 m/s.
func NewWindowRange() WindowRange {
	return WindowRange{WindowStart: 5, WindowEnd: 40, ValueMin: 20, ValueMax: 3000}
}

// Name implements Filter.
func (w WindowRange) Name() string { return "window_range_flag" }

// Flags implements Filter.
func (w WindowRange) Flags(ctx context.Context, frame *scada.Frame) ([]Flag, error) {
	return perTurbine(ctx, frame, func(tid string) []Flag {
		ws := frame.Series(scada.FeatureWindSpeed, tid)
		pw := frame.Series(scada.FeaturePowerOutput, tid)
		if ws == nil || pw == nil {
			return nil
		}
		mask := make([]bool, len(ws))
		for i := range ws {
			if math.IsNaN(ws[i]) || math.IsNaN(pw[i]) {
				continue
			}
			if ws[i] < w.WindowStart || ws[i] > w.WindowEnd {
				continue
			}
			mask[i] = pw[i] < w.ValueMin || pw[i] > w.ValueMax
		}
		return []Flag{{Feature: scada.FeatureWindSpeed, Turbine: tid, Mask: mask}}
	})
}
