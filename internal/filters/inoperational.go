package filters

import (
	"context"
	"math"

	"github.com/scadaops/windprep/internal/scada"
)

// Inoperational flags wind speed and direction readings taken while the
// turbine status code reports anything other than normal operation. A
// missing status is treated as operational, matching the upstream chain.
type Inoperational struct {
	// OperationalCodes are status codes considered normal operation.
	OperationalCodes []int
}

// NewInoperational returns the filter accepting status code 1.
func NewInoperational() Inoperational {
	return Inoperational{OperationalCodes: []int{scada.StatusOperational}}
}

// Name implements Filter.
func (f Inoperational) Name() string { return "inoperational" }

// Flags implements Filter.
func (f Inoperational) Flags(ctx context.Context, frame *scada.Frame) ([]Flag, error) {
	codes := make(map[int]struct{}, len(f.OperationalCodes))
	for _, c := range f.OperationalCodes {
		codes[c] = struct{}{}
	}

	return perTurbine(ctx, frame, func(tid string) []Flag {
		status := frame.Series(scada.FeatureTurbineStatus, tid)
		if status == nil {
			return nil
		}

		mask := make([]bool, len(status))
		for i, v := range status {
			if math.IsNaN(v) {
				continue
			}
			if _, ok := codes[int(v)]; !ok {
				mask[i] = true
			}
		}

		var flags []Flag
		for _, feature := range []string{scada.FeatureWindSpeed, scada.FeatureWindDirection} {
			if frame.HasSeries(feature, tid) {
				flags = append(flags, Flag{Feature: feature, Turbine: tid, Mask: mask})
			}
		}
		return flags
	})
}
