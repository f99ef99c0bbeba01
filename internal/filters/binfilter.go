package filters

import (
	"context"
	"math"

	"github.com/scadaops/windprep/internal/scada"
)

// BinFilter bins samples by power output and flags wind speeds that fall
// more than Threshold standard deviations below the bin median. Catches
// derated operation: high power reported at implausibly low wind speed
// stays, low wind speed against the median envelope goes.
type BinFilter struct {
	BinWidth  float64 // power bin width, kW
	Threshold float64 // sigma multiplier
	BinMin    float64 // smallest binned power, kW
	// MaxShare bounds the largest binned power as a share of the farm
	// maximum observed power.
	MaxShare float64
}

// NewBinFilter returns the filter with the standard 50 kW bins and a
// 3-sigma scalar threshold below the median.
func NewBinFilter() BinFilter {
	return BinFilter{BinWidth: 50, Threshold: 3, BinMin: 20, MaxShare: 0.9}
}

// Name implements Filter.
func (b BinFilter) Name() string { return "bin_filter" }

// Flags implements Filter.
func (b BinFilter) Flags(ctx context.Context, frame *scada.Frame) ([]Flag, error) {
	binMax := b.BinMin
	for _, tid := range frame.Turbines {
		for _, v := range frame.Series(scada.FeaturePowerOutput, tid) {
			if !math.IsNaN(v) && v > binMax {
				binMax = v
			}
		}
	}
	binMax *= b.MaxShare

	return perTurbine(ctx, frame, func(tid string) []Flag {
		ws := frame.Series(scada.FeatureWindSpeed, tid)
		pw := frame.Series(scada.FeaturePowerOutput, tid)
		if ws == nil || pw == nil {
			return nil
		}

		// Collect wind speeds per power bin.
		bins := map[int][]float64{}
		for i := range ws {
			bin, ok := b.bin(ws[i], pw[i], binMax)
			if !ok {
				continue
			}
			bins[bin] = append(bins[bin], ws[i])
		}

		type envelope struct{ floor float64 }
		floors := make(map[int]envelope, len(bins))
		for bin, speeds := range bins {
			med := scada.Median(speeds)
			sd := scada.Std(speeds)
			floors[bin] = envelope{floor: med - b.Threshold*sd}
		}

		mask := make([]bool, len(ws))
		for i := range ws {
			bin, ok := b.bin(ws[i], pw[i], binMax)
			if !ok {
				continue
			}
			mask[i] = ws[i] < floors[bin].floor
		}
		return []Flag{{Feature: scada.FeatureWindSpeed, Turbine: tid, Mask: mask}}
	})
}

func (b BinFilter) bin(ws, pw, binMax float64) (int, bool) {
	if math.IsNaN(ws) || math.IsNaN(pw) {
		return 0, false
	}
	if pw < b.BinMin || pw > binMax {
		return 0, false
	}
	return int((pw - b.BinMin) / b.BinWidth), true
}
