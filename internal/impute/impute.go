// Package impute fills missing samples using correlated donor turbines,
// falling back to bounded interpolation within each continuity group.
package impute

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/scadaops/windprep/internal/config"
	xlog "github.com/scadaops/windprep/internal/log"
	"github.com/scadaops/windprep/internal/scada"
)

const imputeConcurrency = 8

// minCoObserved is the smallest number of co-observed samples a donor pair
// needs before its fit is trusted.
const minCoObserved = 10

// Only wind speed and wind direction are regressed from donors. Nacelle
// direction is interpolated but never regressed. Status codes and power are
// left untouched; filling a categorical status by regression would invent
// codes that do not exist.
var (
	regressedFeatures    = []string{scada.FeatureWindSpeed, scada.FeatureWindDirection}
	interpolatedFeatures = []string{scada.FeatureWindSpeed, scada.FeatureWindDirection, scada.FeatureNacelleDirection}
)

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// fit is a least-squares line from a donor series to a target series.
type fit struct {
	donor     string
	slope     float64
	intercept float64
	r2        float64
}

// Result summarizes one imputation pass.
type Result struct {
	Regressed    int // samples filled from a donor fit
	Interpolated int // samples filled by interpolation
	Remaining    int // samples still missing afterwards
}

// Impute fills NaN wind speed and direction samples in place. Donor
// regression runs per feature per target turbine; whatever regression cannot
// reach is linearly interpolated inside each continuity group, directions on
// their sin/cos components. Nacelle direction gets interpolation only.
func Impute(ctx context.Context, frame *scada.Frame, cfg config.Config) (Result, error) {
	logger := xlog.WithComponentFromContext(ctx, "impute")

	// Donors are read from a snapshot so every series is regressed against
	// observed data, not against a sibling's concurrent fills.
	snapshot := frame.Clone()

	var (
		mu    sync.Mutex
		total Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imputeConcurrency)

	for _, feature := range frame.Features() {
		if !contains(interpolatedFeatures, feature) {
			continue
		}
		for _, turbine := range frame.Turbines {
			if !frame.HasSeries(feature, turbine) {
				continue
			}
			feature, turbine := feature, turbine
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				res := imputeSeries(frame, snapshot, feature, turbine, cfg.ImputeR2Threshold)
				mu.Lock()
				total.Regressed += res.Regressed
				total.Interpolated += res.Interpolated
				total.Remaining += res.Remaining
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	logger.Info().
		Str("event", "impute.complete").
		Int("regressed", total.Regressed).
		Int("interpolated", total.Interpolated).
		Int("remaining", total.Remaining).
		Msg("missing data imputed")
	return total, nil
}

func imputeSeries(frame, snapshot *scada.Frame, feature, turbine string, r2Thr float64) Result {
	target := frame.Series(feature, turbine)
	missing := 0
	for _, v := range target {
		if math.IsNaN(v) {
			missing++
		}
	}
	if missing == 0 {
		return Result{}
	}

	var res Result
	circular := isCircular(feature)

	var fits []fit
	if contains(regressedFeatures, feature) {
		fits = rankDonors(snapshot, feature, turbine, r2Thr, circular)
	}
	for _, f := range fits {
		donor := snapshot.Series(feature, f.donor)
		for i, v := range target {
			if !math.IsNaN(v) || math.IsNaN(donor[i]) {
				continue
			}
			est := f.intercept + f.slope*donor[i]
			if circular {
				est = scada.Mod360(est)
			}
			target[i] = est
			res.Regressed++
		}
	}

	res.Interpolated = interpolateGroups(frame, target, circular)
	for _, v := range target {
		if math.IsNaN(v) {
			res.Remaining++
		}
	}
	return res
}

// rankDonors fits every sibling turbine's series against the target and
// returns the fits above the r-squared threshold, best first.
func rankDonors(frame *scada.Frame, feature, turbine string, r2Thr float64, circular bool) []fit {
	target := frame.Series(feature, turbine)
	var fits []fit
	for _, donor := range frame.Turbines {
		if donor == turbine || !frame.HasSeries(feature, donor) {
			continue
		}
		f, ok := fitPair(frame.Series(feature, donor), target, circular)
		if ok && f.r2 >= r2Thr {
			f.donor = donor
			fits = append(fits, f)
		}
	}
	sort.Slice(fits, func(i, j int) bool { return fits[i].r2 > fits[j].r2 })
	return fits
}

// fitPair runs ordinary least squares of y on x over co-observed samples.
// Circular features are fit on unwrapped deviations so a 359 -> 1 degree
// neighbor pair does not poison the slope.
func fitPair(x, y []float64, circular bool) (fit, bool) {
	var xs, ys []float64
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xi, yi := x[i], y[i]
		if circular {
			yi = xi + scada.Wrap180(yi-xi)
		}
		xs = append(xs, xi)
		ys = append(ys, yi)
	}
	n := float64(len(xs))
	if len(xs) < minCoObserved {
		return fit{}, false
	}

	var sx, sy, sxx, sxy, syy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxx += xs[i] * xs[i]
		sxy += xs[i] * ys[i]
		syy += ys[i] * ys[i]
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return fit{}, false
	}
	slope := (n*sxy - sx*sy) / den
	intercept := (sy - slope*sx) / n

	ssTot := syy - sy*sy/n
	if ssTot == 0 {
		return fit{}, false
	}
	ssRes := 0.0
	for i := range xs {
		d := ys[i] - (intercept + slope*xs[i])
		ssRes += d * d
	}
	return fit{slope: slope, intercept: intercept, r2: 1 - ssRes/ssTot}, true
}

// interpolateGroups linearly interpolates interior gaps, never across a
// continuity group boundary and never past the edges of a group.
func interpolateGroups(frame *scada.Frame, vals []float64, circular bool) int {
	filled := 0
	for _, span := range groupSpans(frame) {
		if circular {
			filled += interpolateCircular(vals[span.start:span.end])
		} else {
			filled += interpolateLinear(vals[span.start:span.end])
		}
	}
	return filled
}

type span struct{ start, end int }

func groupSpans(frame *scada.Frame) []span {
	if frame.ContinuityGroups == nil {
		return []span{{0, frame.Len()}}
	}
	var out []span
	start := 0
	for i := 1; i <= frame.Len(); i++ {
		if i == frame.Len() || frame.ContinuityGroups[i] != frame.ContinuityGroups[start] {
			out = append(out, span{start, i})
			start = i
		}
	}
	return out
}

func interpolateLinear(vals []float64) int {
	filled := 0
	prev := -1
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - vals[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				vals[j] = vals[prev] + step*float64(j-prev)
				filled++
			}
		}
		prev = i
	}
	return filled
}

// interpolateCircular interpolates a direction series on its sin/cos
// components so gaps spanning north stay on the short arc.
func interpolateCircular(vals []float64) int {
	sins := make([]float64, len(vals))
	coss := make([]float64, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) {
			sins[i], coss[i] = math.NaN(), math.NaN()
			continue
		}
		rad := v * math.Pi / 180
		sins[i], coss[i] = math.Sin(rad), math.Cos(rad)
	}
	interpolateLinear(sins)
	interpolateLinear(coss)

	filled := 0
	for i, v := range vals {
		if !math.IsNaN(v) || math.IsNaN(sins[i]) {
			continue
		}
		vals[i] = scada.Mod360(math.Atan2(sins[i], coss[i]) * 180 / math.Pi)
		filled++
	}
	return filled
}

func isCircular(feature string) bool {
	return feature == scada.FeatureWindDirection || feature == scada.FeatureNacelleDirection
}
