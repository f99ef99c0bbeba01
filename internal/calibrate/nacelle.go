// Package calibrate corrects wind vane and nacelle direction signals: it
// removes each turbine's bias against the farm-wide median direction, then
// rotates the whole farm onto true north using wake-loss geometry between
// configured turbine pairs.
package calibrate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/scadaops/windprep/internal/config"
	xlog "github.com/scadaops/windprep/internal/log"
	"github.com/scadaops/windprep/internal/scada"
)

// anemometerOffset is added back to the wind direction signal before any
// bias estimation, compensating a known vane mounting offset.
const anemometerOffset = 3.0

// aggregateWindow is the span the bias estimation aggregates over.
const aggregateWindow = 10 * time.Minute

// wakeBinWidth is the direction bin width used when scanning for the peak
// wake-loss direction between a turbine pair.
const wakeBinWidth = 5.0

// minBinSamples is the minimum aggregate samples a direction bin needs to
// participate in the wake scan.
const minBinSamples = 3

// Result summarises a calibration pass.
type Result struct {
	// Biases is the per-turbine northing bias that was removed, degrees.
	Biases map[string]float64
	// NorthOffset is the farm-wide true-north correction, degrees.
	NorthOffset float64
	// PairOffsets are the per-pair offsets NorthOffset was averaged from.
	PairOffsets map[string]float64
}

// Calibrate runs nacelle calibration in place on the full-resolution frame.
func Calibrate(ctx context.Context, frame *scada.Frame, cfg config.Config) (*Result, error) {
	logger := xlog.WithComponentFromContext(ctx, "calibrate")

	layout, err := LoadFarmLayout(cfg.FarmInputPath)
	if err != nil {
		return nil, err
	}

	// Re-apply the vane mounting offset before estimating biases.
	for _, tid := range frame.Turbines {
		wd := frame.Series(scada.FeatureWindDirection, tid)
		for i, v := range wd {
			if !math.IsNaN(v) {
				wd[i] = scada.Mod360(v + anemometerOffset)
			}
		}
	}

	agg := Downsample(frame, aggregateWindow)
	wdMedian := farmMedian(agg, scada.FeatureWindDirection)
	yawMedian := farmMedian(agg, scada.FeatureNacelleDirection)

	result := &Result{
		Biases:      make(map[string]float64, len(frame.Turbines)),
		PairOffsets: make(map[string]float64),
	}

	for _, tid := range frame.Turbines {
		bias := turbineBias(agg, tid, wdMedian, yawMedian)
		if math.IsNaN(bias) {
			logger.Warn().
				Str("event", "calibrate.bias_unavailable").
				Str("turbine", tid).
				Msg("no powered samples to estimate northing bias")
			continue
		}
		result.Biases[tid] = round2(bias)
		rotateTurbine(frame, tid, bias)
		rotateTurbine(agg, tid, bias)

		logger.Info().
			Str("event", "calibrate.bias").
			Str("turbine", tid).
			Float64("bias_deg", round2(bias)).
			Msg("removed northing bias")
	}

	// Scan configured pairs for the wake-loss direction offset to true north.
	var offsets []float64
	for _, pair := range cfg.NacelleCalibrationTurbinePairs {
		offset, err := pairOffset(agg, pair, layout)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("event", "calibrate.pair_skipped").
				Int("upstream", pair.Upstream).
				Int("downstream", pair.Downstream).
				Msg("pair excluded from northing scan")
			continue
		}
		key := fmt.Sprintf("%d-%d", pair.Upstream, pair.Downstream)
		result.PairOffsets[key] = round2(offset)
		offsets = append(offsets, offset)
	}

	if len(offsets) > 0 {
		north := scada.Wrap180(scada.CircularMeanDeg(offsets))
		result.NorthOffset = round2(north)
		for _, tid := range frame.Turbines {
			rotateTurbine(frame, tid, north)
		}
		for tid, b := range result.Biases {
			result.Biases[tid] = round2(scada.Wrap180(b + north))
		}
		logger.Info().
			Str("event", "calibrate.north_offset").
			Float64("offset_deg", result.NorthOffset).
			Int("pairs", len(offsets)).
			Msg("applied true-north correction")
	} else if len(cfg.NacelleCalibrationTurbinePairs) > 0 {
		logger.Warn().
			Str("event", "calibrate.north_unavailable").
			Msg("no usable turbine pairs, true-north correction skipped")
	}

	return result, nil
}

// farmMedian computes the per-row circular median of a directional feature
// across all turbines.
func farmMedian(f *scada.Frame, feature string) []float64 {
	med := make([]float64, f.Len())
	row := make([]float64, 0, len(f.Turbines))
	for i := range med {
		row = row[:0]
		for _, tid := range f.Turbines {
			vals := f.Series(feature, tid)
			if vals == nil {
				continue
			}
			row = append(row, vals[i])
		}
		med[i] = scada.Mod360(scada.CircularMedianDeg(row))
	}
	return med
}

// turbineBias estimates a turbine's northing bias as the circular mean
// deviation from the farm medians over powered samples, averaged between
// the wind vane and the nacelle signal.
func turbineBias(agg *scada.Frame, tid string, wdMedian, yawMedian []float64) float64 {
	wd := agg.Series(scada.FeatureWindDirection, tid)
	yaw := agg.Series(scada.FeatureNacelleDirection, tid)
	pw := agg.Series(scada.FeaturePowerOutput, tid)
	if wd == nil || yaw == nil {
		return math.NaN()
	}

	var wdDev, yawDev []float64
	for i := range wd {
		if pw != nil && (math.IsNaN(pw[i]) || pw[i] < 0) {
			continue
		}
		if !math.IsNaN(wd[i]) && !math.IsNaN(wdMedian[i]) {
			wdDev = append(wdDev, wd[i]-wdMedian[i])
		}
		if !math.IsNaN(yaw[i]) && !math.IsNaN(yawMedian[i]) {
			yawDev = append(yawDev, yaw[i]-yawMedian[i])
		}
	}

	wdBias := scada.Wrap180(scada.CircularMeanDeg(wdDev))
	yawBias := scada.Wrap180(scada.CircularMeanDeg(yawDev))
	if math.IsNaN(wdBias) || math.IsNaN(yawBias) {
		return math.NaN()
	}
	return 0.5 * (wdBias + yawBias)
}

// rotateTurbine subtracts a bias from both direction signals, mod 360.
func rotateTurbine(f *scada.Frame, tid string, bias float64) {
	for _, feature := range []string{scada.FeatureWindDirection, scada.FeatureNacelleDirection} {
		vals := f.Series(feature, tid)
		for i, v := range vals {
			if !math.IsNaN(v) {
				vals[i] = scada.Mod360(v - bias)
			}
		}
	}
}

// pairOffset finds the wind direction of peak wake loss between a pair and
// returns its deviation from the pair's geometric bearing.
func pairOffset(agg *scada.Frame, pair config.TurbinePair, layout []Coord) (float64, error) {
	if pair.Upstream >= len(layout) || pair.Downstream >= len(layout) {
		return 0, fmt.Errorf("pair [%d, %d] outside farm layout of %d turbines",
			pair.Upstream, pair.Downstream, len(layout))
	}

	up := scada.TurbineID(pair.Upstream)
	down := scada.TurbineID(pair.Downstream)
	upPw := agg.Series(scada.FeaturePowerOutput, up)
	downPw := agg.Series(scada.FeaturePowerOutput, down)
	upWd := agg.Series(scada.FeatureWindDirection, up)
	if upPw == nil || downPw == nil || upWd == nil {
		return 0, fmt.Errorf("pair [%d, %d]: missing power or direction series",
			pair.Upstream, pair.Downstream)
	}

	bearing := Bearing(layout[pair.Upstream], layout[pair.Downstream])

	// Scan direction bins around the geometric bearing for the deepest
	// power deficit of the downstream turbine.
	type bin struct {
		ratioSum float64
		n        int
	}
	bins := make(map[int]*bin)
	for i := range upWd {
		if math.IsNaN(upWd[i]) || math.IsNaN(upPw[i]) || math.IsNaN(downPw[i]) {
			continue
		}
		if upPw[i] <= 0 {
			continue
		}
		dev := scada.Wrap180(upWd[i] - bearing)
		if math.Abs(dev) > 45 {
			continue // far off-axis, no wake interaction
		}
		k := int(math.Floor(dev / wakeBinWidth))
		b := bins[k]
		if b == nil {
			b = &bin{}
			bins[k] = b
		}
		b.ratioSum += downPw[i] / upPw[i]
		b.n++
	}

	best := math.NaN()
	bestRatio := math.Inf(1)
	for k, b := range bins {
		if b.n < minBinSamples {
			continue
		}
		ratio := b.ratioSum / float64(b.n)
		if ratio < bestRatio {
			bestRatio = ratio
			best = (float64(k) + 0.5) * wakeBinWidth
		}
	}
	if math.IsNaN(best) {
		return 0, fmt.Errorf("pair [%d, %d]: not enough on-axis samples",
			pair.Upstream, pair.Downstream)
	}

	return best, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
