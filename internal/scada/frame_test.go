package scada

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTimes(n int) []time.Time {
	base := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, n)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * 5 * time.Second)
	}
	return times
}

func TestFrameSeriesRoundTrip(t *testing.T) {
	f := NewFrame(testTimes(4), []string{"wt002", "wt001"})
	assert.Equal(t, []string{"wt001", "wt002"}, f.Turbines)

	require.NoError(t, f.SetSeries(FeatureWindSpeed, "wt001", []float64{1, 2, 3, 4}))
	assert.Equal(t, []float64{1, 2, 3, 4}, f.Series(FeatureWindSpeed, "wt001"))
	assert.Nil(t, f.Series(FeatureWindSpeed, "wt002"))
	assert.True(t, f.HasSeries(FeatureWindSpeed, "wt001"))

	err := f.SetSeries(FeatureWindSpeed, "wt002", []float64{1, 2})
	assert.Error(t, err)
}

func TestFrameNullify(t *testing.T) {
	f := NewFrame(testTimes(4), []string{"wt001"})
	require.NoError(t, f.SetSeries(FeatureWindSpeed, "wt001", []float64{1, math.NaN(), 3, 4}))

	cleared := f.Nullify(FeatureWindSpeed, "wt001", []bool{true, true, false, true})
	assert.Equal(t, 2, cleared) // index 1 was already missing

	vals := f.Series(FeatureWindSpeed, "wt001")
	assert.True(t, math.IsNaN(vals[0]))
	assert.True(t, math.IsNaN(vals[1]))
	assert.Equal(t, 3.0, vals[2])
	assert.True(t, math.IsNaN(vals[3]))
	assert.Equal(t, 3, f.MissingCount(FeatureWindSpeed, "wt001"))
}

func TestFrameCloneIsDeep(t *testing.T) {
	f := NewFrame(testTimes(2), []string{"wt001"})
	require.NoError(t, f.SetSeries(FeaturePowerOutput, "wt001", []float64{10, 20}))

	c := f.Clone()
	c.Series(FeaturePowerOutput, "wt001")[0] = -1
	assert.Equal(t, 10.0, f.Series(FeaturePowerOutput, "wt001")[0])
}

func TestFrameSelectRows(t *testing.T) {
	f := NewFrame(testTimes(4), []string{"wt001"})
	require.NoError(t, f.SetSeries(FeatureWindSpeed, "wt001", []float64{1, 2, 3, 4}))
	f.ContinuityGroups = []int{0, 0, 1, 1}

	sel := f.SelectRows([]int{1, 3})
	assert.Equal(t, 2, sel.Len())
	assert.Equal(t, []float64{2, 4}, sel.Series(FeatureWindSpeed, "wt001"))
	assert.Equal(t, []int{0, 1}, sel.ContinuityGroups)
	assert.Equal(t, f.Times[1], sel.Times[0])
}

func TestFrameFeatures(t *testing.T) {
	f := NewFrame(testTimes(2), []string{"wt001", "wt002"})
	require.NoError(t, f.SetSeries(FeatureWindSpeed, "wt001", []float64{1, 2}))
	require.NoError(t, f.SetSeries(FeatureWindDirection, "wt002", []float64{1, 2}))

	assert.Equal(t, []string{FeatureWindDirection, FeatureWindSpeed}, f.Features())
	assert.Equal(t, []string{"wind_direction_wt002", "wind_speed_wt001"}, f.SeriesKeys())
}
