package split

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scadaops/windprep/internal/config"
	"github.com/scadaops/windprep/internal/scada"
)

func gridFrame(t *testing.T, n int, dt time.Duration) *scada.Frame {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * dt)
	}
	return scada.NewFrame(times, []string{"wt001"})
}

func splitConfig() config.Config {
	cfg := config.Defaults()
	cfg.DT = 60
	cfg.MissingColThr = 0
	cfg.MissingDurationThr = 120
	cfg.MinimumNotMissingDuration = 120
	return cfg
}

func withNaN(n int, gaps ...int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i)
	}
	for _, g := range gaps {
		vals[g] = math.NaN()
	}
	return vals
}

func TestSplitTolerableGapStaysOneGroup(t *testing.T) {
	f := gridFrame(t, 10, time.Minute)
	require.NoError(t, f.SetSeries(scada.FeatureWindSpeed, "wt001", withNaN(10, 4, 5)))
	require.NoError(t, f.SetSeries(scada.FeatureWindDirection, "wt001", withNaN(10)))
	require.NoError(t, f.SetSeries(scada.FeatureNacelleDirection, "wt001", withNaN(10)))

	out, groups, err := Split(context.Background(), f, splitConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, groups)
	assert.Equal(t, 10, out.Len())
	for _, g := range out.ContinuityGroups {
		assert.Equal(t, 0, g)
	}
}

func TestSplitLongGapSplitsGroups(t *testing.T) {
	f := gridFrame(t, 16, time.Minute)
	// Rows 5..9 missing: 4 minutes on the grid, longer than the 2 minute
	// tolerance, so two groups remain.
	require.NoError(t, f.SetSeries(scada.FeatureWindSpeed, "wt001", withNaN(16, 5, 6, 7, 8, 9)))
	require.NoError(t, f.SetSeries(scada.FeatureWindDirection, "wt001", withNaN(16)))
	require.NoError(t, f.SetSeries(scada.FeatureNacelleDirection, "wt001", withNaN(16)))

	out, groups, err := Split(context.Background(), f, splitConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, groups)
	assert.Equal(t, 11, out.Len())
	assert.Equal(t, 0, out.ContinuityGroups[0])
	assert.Equal(t, 1, out.ContinuityGroups[out.Len()-1])
	// The gap rows themselves are gone.
	for _, ts := range out.Times {
		assert.NotEqual(t, f.Times[7], ts)
	}
}

func TestSplitDropsShortSegments(t *testing.T) {
	cfg := splitConfig()
	cfg.MinimumNotMissingDuration = 300

	f := gridFrame(t, 16, time.Minute)
	// Rows 5..9 are a long gap; rows 13..15 are a tolerated short gap that
	// merges with the healthy rows 10..12. The leading segment 0..4 spans
	// only 4 minutes and is dropped by the 5 minute minimum.
	require.NoError(t, f.SetSeries(scada.FeatureWindSpeed, "wt001", withNaN(16, 5, 6, 7, 8, 9, 13, 14, 15)))
	require.NoError(t, f.SetSeries(scada.FeatureWindDirection, "wt001", withNaN(16)))
	require.NoError(t, f.SetSeries(scada.FeatureNacelleDirection, "wt001", withNaN(16)))

	out, groups, err := Split(context.Background(), f, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, groups)
	assert.Equal(t, 6, out.Len())
	assert.Equal(t, f.Times[10], out.Times[0])
}

func TestSplitNoSegmentLongEnoughErrors(t *testing.T) {
	cfg := splitConfig()
	cfg.MinimumNotMissingDuration = 3600

	f := gridFrame(t, 10, time.Minute)
	require.NoError(t, f.SetSeries(scada.FeatureWindSpeed, "wt001", withNaN(10)))
	require.NoError(t, f.SetSeries(scada.FeatureWindDirection, "wt001", withNaN(10)))
	require.NoError(t, f.SetSeries(scada.FeatureNacelleDirection, "wt001", withNaN(10)))

	_, _, err := Split(context.Background(), f, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum_not_missing_duration")
}

func TestSplitNothingSurvivesErrors(t *testing.T) {
	f := gridFrame(t, 6, time.Minute)
	all := make([]float64, 6)
	for i := range all {
		all[i] = math.NaN()
	}
	require.NoError(t, f.SetSeries(scada.FeatureWindSpeed, "wt001", all))
	require.NoError(t, f.SetSeries(scada.FeatureWindDirection, "wt001", all))
	require.NoError(t, f.SetSeries(scada.FeatureNacelleDirection, "wt001", all))

	cfg := splitConfig()
	cfg.MissingDurationThr = 60

	_, _, err := Split(context.Background(), f, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no eligible periods")
}

func TestPeriodsAndMerge(t *testing.T) {
	gapped := []bool{false, false, true, false, false}
	healthy := periods(gapped, false)
	require.Len(t, healthy, 2)
	assert.Equal(t, Period{Start: 0, End: 1}, healthy[0])
	assert.Equal(t, Period{Start: 3, End: 4}, healthy[1])

	f := gridFrame(t, 5, time.Minute)
	missing := periods(gapped, true)
	merged := MergeAdjacent(sortPeriods(append(healthy, missing...)), f, time.Minute)
	require.Len(t, merged, 1)
	assert.Equal(t, Period{Start: 0, End: 4}, merged[0])
}
