// Package scada defines the wide-format telemetry frame the preprocessing
// stages operate on, plus feature resolution and circular statistics.
package scada

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Canonical feature names. A wide frame holds one series per feature per
// turbine, keyed "feature_turbineID".
const (
	FeatureWindSpeed        = "wind_speed"
	FeatureWindDirection    = "wind_direction"
	FeaturePowerOutput      = "power_output"
	FeatureNacelleDirection = "nacelle_direction"
	FeatureTurbineStatus    = "turbine_status"
)

// Derived feature names produced by normalization.
const (
	FeatureWindSpeedHorz = "ws_horz"
	FeatureWindSpeedVert = "ws_vert"
	FeatureNacelleSin    = "nd_sin"
	FeatureNacelleCos    = "nd_cos"
)

// StatusOperational is the turbine status code for normal operation.
const StatusOperational = 1

// Frame is a wide-format time-series table: uniformly spaced timestamps with
// one float64 series per turbine feature. NaN marks a missing sample.
type Frame struct {
	Times    []time.Time
	Turbines []string

	// ContinuityGroups is nil until the split stage assigns them. A value of
	// -1 means the row belongs to no group.
	ContinuityGroups []int

	series map[string][]float64
}

// NewFrame creates an empty frame over the given timestamps and turbine IDs.
// Turbine IDs are kept sorted.
func NewFrame(times []time.Time, turbines []string) *Frame {
	ids := append([]string(nil), turbines...)
	sort.Strings(ids)
	return &Frame{
		Times:    times,
		Turbines: ids,
		series:   make(map[string][]float64),
	}
}

// Key builds the series key for a feature/turbine combination.
func Key(feature, turbine string) string {
	return feature + "_" + turbine
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Times)
}

// SetSeries stores a series for a feature/turbine. The series length must
// match the frame length.
func (f *Frame) SetSeries(feature, turbine string, values []float64) error {
	if len(values) != f.Len() {
		return fmt.Errorf("series %s: length %d does not match frame length %d",
			Key(feature, turbine), len(values), f.Len())
	}
	f.series[Key(feature, turbine)] = values
	return nil
}

// Series returns the series for a feature/turbine, or nil if absent.
func (f *Frame) Series(feature, turbine string) []float64 {
	return f.series[Key(feature, turbine)]
}

// HasSeries reports whether the feature/turbine series exists.
func (f *Frame) HasSeries(feature, turbine string) bool {
	_, ok := f.series[Key(feature, turbine)]
	return ok
}

// Features returns the sorted set of feature names present in the frame.
func (f *Frame) Features() []string {
	seen := map[string]struct{}{}
	for key := range f.series {
		for _, tid := range f.Turbines {
			suffix := "_" + tid
			if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
				seen[key[:len(key)-len(suffix)]] = struct{}{}
				break
			}
		}
	}
	out := make([]string, 0, len(seen))
	for feat := range seen {
		out = append(out, feat)
	}
	sort.Strings(out)
	return out
}

// SeriesKeys returns all series keys, sorted.
func (f *Frame) SeriesKeys() []string {
	out := make([]string, 0, len(f.series))
	for key := range f.series {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Times:    append([]time.Time(nil), f.Times...),
		Turbines: append([]string(nil), f.Turbines...),
		series:   make(map[string][]float64, len(f.series)),
	}
	if f.ContinuityGroups != nil {
		out.ContinuityGroups = append([]int(nil), f.ContinuityGroups...)
	}
	for key, vals := range f.series {
		out.series[key] = append([]float64(nil), vals...)
	}
	return out
}

// Nullify sets flagged samples of a feature/turbine series to NaN and
// returns how many previously present samples were cleared.
func (f *Frame) Nullify(feature, turbine string, flagged []bool) int {
	vals := f.Series(feature, turbine)
	if vals == nil || len(flagged) != len(vals) {
		return 0
	}
	cleared := 0
	for i, hit := range flagged {
		if hit && !math.IsNaN(vals[i]) {
			vals[i] = math.NaN()
			cleared++
		}
	}
	return cleared
}

// MissingCount returns the number of NaN samples in a series.
func (f *Frame) MissingCount(feature, turbine string) int {
	n := 0
	for _, v := range f.Series(feature, turbine) {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Snapshot is the encodable form of a Frame.
type Snapshot struct {
	Times            []time.Time
	Turbines         []string
	ContinuityGroups []int
	Series           map[string][]float64
}

// Snapshot exports the frame for serialization. The returned value shares
// the frame's backing slices.
func (f *Frame) Snapshot() Snapshot {
	return Snapshot{
		Times:            f.Times,
		Turbines:         f.Turbines,
		ContinuityGroups: f.ContinuityGroups,
		Series:           f.series,
	}
}

// FromSnapshot rebuilds a frame from its serialized form.
func FromSnapshot(s Snapshot) *Frame {
	series := s.Series
	if series == nil {
		series = make(map[string][]float64)
	}
	return &Frame{
		Times:            s.Times,
		Turbines:         s.Turbines,
		ContinuityGroups: s.ContinuityGroups,
		series:           series,
	}
}

// SelectRows returns a new frame containing only the rows at the given
// indices, in order.
func (f *Frame) SelectRows(idx []int) *Frame {
	out := NewFrame(make([]time.Time, len(idx)), f.Turbines)
	for j, i := range idx {
		out.Times[j] = f.Times[i]
	}
	if f.ContinuityGroups != nil {
		out.ContinuityGroups = make([]int, len(idx))
		for j, i := range idx {
			out.ContinuityGroups[j] = f.ContinuityGroups[i]
		}
	}
	for key, vals := range f.series {
		sel := make([]float64, len(idx))
		for j, i := range idx {
			sel[j] = vals[i]
		}
		out.series[key] = sel
	}
	return out
}
