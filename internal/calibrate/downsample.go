package calibrate

import (
	"sort"
	"strings"
	"time"

	"github.com/scadaops/windprep/internal/scada"
)

// circularFeatures are averaged on the unit circle when downsampling.
var circularFeatures = map[string]struct{}{
	scada.FeatureWindDirection:    {},
	scada.FeatureNacelleDirection: {},
}

// Downsample aggregates a frame into fixed windows. Directional features
// use the circular mean; everything else the arithmetic mean.
func Downsample(f *scada.Frame, window time.Duration) *scada.Frame {
	groups := make(map[time.Time][]int)
	for i, ts := range f.Times {
		key := ts.Round(window)
		groups[key] = append(groups[key], i)
	}

	times := make([]time.Time, 0, len(groups))
	for ts := range groups {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	out := scada.NewFrame(times, f.Turbines)
	for _, key := range f.SeriesKeys() {
		idx := strings.LastIndex(key, "_")
		feature, tid := key[:idx], key[idx+1:]
		src := f.Series(feature, tid)

		_, circular := circularFeatures[feature]
		agg := make([]float64, len(times))
		for j, ts := range times {
			vals := make([]float64, 0, len(groups[ts]))
			for _, i := range groups[ts] {
				vals = append(vals, src[i])
			}
			if circular {
				agg[j] = scada.Mod360(scada.CircularMeanDeg(vals))
			} else {
				agg[j] = scada.Mean(vals)
			}
		}
		_ = out.SetSeries(feature, tid, agg)
	}
	return out
}
