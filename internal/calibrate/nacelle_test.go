package calibrate

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scadaops/windprep/internal/config"
	"github.com/scadaops/windprep/internal/scada"
)

func writeFarm(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "farm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFarmLayoutNested(t *testing.T) {
	path := writeFarm(t, "farm:\n  layout_x: [0.0, 100.0]\n  layout_y: [0.0, 500.0]\n")

	coords, err := LoadFarmLayout(path)
	require.NoError(t, err)
	require.Len(t, coords, 2)
	assert.Equal(t, Coord{X: 100, Y: 500}, coords[1])
}

func TestLoadFarmLayoutFlat(t *testing.T) {
	path := writeFarm(t, "layout_x: [0.0]\nlayout_y: [10.0]\n")

	coords, err := LoadFarmLayout(path)
	require.NoError(t, err)
	require.Len(t, coords, 1)
}

func TestLoadFarmLayoutMismatch(t *testing.T) {
	path := writeFarm(t, "layout_x: [0.0, 1.0]\nlayout_y: [10.0]\n")
	_, err := LoadFarmLayout(path)
	assert.Error(t, err)
}

func TestBearing(t *testing.T) {
	// upstream due north of downstream: wind from the north (0 deg)
	assert.InDelta(t, 0, Bearing(Coord{X: 0, Y: 500}, Coord{X: 0, Y: 0}), 1e-9)
	// upstream due east: wind from the east (90 deg)
	assert.InDelta(t, 90, Bearing(Coord{X: 500, Y: 0}, Coord{X: 0, Y: 0}), 1e-9)
	// upstream due south: 180
	assert.InDelta(t, 180, Bearing(Coord{X: 0, Y: -500}, Coord{X: 0, Y: 0}), 1e-9)
}

func TestDownsampleCircular(t *testing.T) {
	base := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(5 * time.Second)}
	f := scada.NewFrame(times, []string{"wt000"})
	require.NoError(t, f.SetSeries(scada.FeatureWindDirection, "wt000", []float64{350, 10}))
	require.NoError(t, f.SetSeries(scada.FeaturePowerOutput, "wt000", []float64{100, 300}))

	agg := Downsample(f, 10*time.Minute)
	require.Equal(t, 1, agg.Len())
	assert.InDelta(t, 0, scada.Wrap180(agg.Series(scada.FeatureWindDirection, "wt000")[0]), 1e-6)
	assert.InDelta(t, 200, agg.Series(scada.FeaturePowerOutput, "wt000")[0], 1e-9)
}

// calibration frame at 10-minute spacing so downsampling is the identity.
func biasFrame(t *testing.T, rows int) *scada.Frame {
	t.Helper()
	base := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, rows)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * 10 * time.Minute)
	}
	return scada.NewFrame(times, []string{"wt000", "wt001", "wt002"})
}

func TestCalibrateRemovesNorthingBias(t *testing.T) {
	rows := 24
	f := biasFrame(t, rows)

	for _, tid := range f.Turbines {
		wd := make([]float64, rows)
		yaw := make([]float64, rows)
		pw := make([]float64, rows)
		for i := range wd {
			// wt000 reads 10 degrees high on both signals
			bias := 0.0
			if tid == "wt000" {
				bias = 10
			}
			wd[i] = scada.Mod360(180 + bias)
			yaw[i] = scada.Mod360(180 + bias)
			pw[i] = 1500
		}
		require.NoError(t, f.SetSeries(scada.FeatureWindDirection, tid, wd))
		require.NoError(t, f.SetSeries(scada.FeatureNacelleDirection, tid, yaw))
		require.NoError(t, f.SetSeries(scada.FeaturePowerOutput, tid, pw))
	}

	cfg := config.Defaults()
	cfg.FarmInputPath = writeFarm(t, "farm:\n  layout_x: [0.0, 0.0, 100.0]\n  layout_y: [500.0, 0.0, 0.0]\n")

	res, err := Calibrate(context.Background(), f, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 10, res.Biases["wt000"], 0.5)
	assert.InDelta(t, 0, res.Biases["wt001"], 0.5)

	// after calibration both signals agree across the farm
	wd0 := f.Series(scada.FeatureWindDirection, "wt000")
	wd1 := f.Series(scada.FeatureWindDirection, "wt001")
	for i := range wd0 {
		assert.InDelta(t, 0, scada.Wrap180(wd0[i]-wd1[i]), 0.6)
	}
	assert.Equal(t, 0.0, res.NorthOffset) // no pairs configured
}

func TestCalibrateNorthOffsetFromPair(t *testing.T) {
	rows := 170 // 10 passes over 17 direction bins
	f := biasFrame(t, rows)

	// upstream wt000 sits due north of downstream wt001; the wake deficit
	// is planted at +12.5 degrees off the geometric bearing.
	for _, tid := range f.Turbines {
		wd := make([]float64, rows)
		yaw := make([]float64, rows)
		pw := make([]float64, rows)
		for i := range wd {
			dev := -40.0 + float64(i%17)*5 + 2.5
			// subtract the vane mounting offset the stage adds back
			wd[i] = scada.Mod360(dev - 3)
			yaw[i] = scada.Mod360(dev)
			pw[i] = 1000
			if tid == "wt001" && dev > 10 && dev < 15 {
				pw[i] = 300
			}
		}
		require.NoError(t, f.SetSeries(scada.FeatureWindDirection, tid, wd))
		require.NoError(t, f.SetSeries(scada.FeatureNacelleDirection, tid, yaw))
		require.NoError(t, f.SetSeries(scada.FeaturePowerOutput, tid, pw))
	}

	cfg := config.Defaults()
	cfg.FarmInputPath = writeFarm(t, "farm:\n  layout_x: [0.0, 0.0, 100.0]\n  layout_y: [500.0, 0.0, 0.0]\n")
	cfg.NacelleCalibrationTurbinePairs = []config.TurbinePair{{Upstream: 0, Downstream: 1}}

	res, err := Calibrate(context.Background(), f, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 12.5, res.PairOffsets["0-1"], 0.01)
	assert.InDelta(t, 12.5, res.NorthOffset, 0.01)
}

func TestCalibratePairOutsideLayout(t *testing.T) {
	f := biasFrame(t, 4)
	for _, tid := range f.Turbines {
		vals := []float64{180, 180, 180, 180}
		require.NoError(t, f.SetSeries(scada.FeatureWindDirection, tid, append([]float64(nil), vals...)))
		require.NoError(t, f.SetSeries(scada.FeatureNacelleDirection, tid, append([]float64(nil), vals...)))
		require.NoError(t, f.SetSeries(scada.FeaturePowerOutput, tid, []float64{1, 1, 1, 1}))
	}

	cfg := config.Defaults()
	cfg.FarmInputPath = writeFarm(t, "farm:\n  layout_x: [0.0]\n  layout_y: [0.0]\n")
	cfg.NacelleCalibrationTurbinePairs = []config.TurbinePair{{Upstream: 5, Downstream: 6}}

	res, err := Calibrate(context.Background(), f, cfg)
	require.NoError(t, err)
	// pair skipped, no correction applied
	assert.Empty(t, res.PairOffsets)
	assert.Equal(t, 0.0, res.NorthOffset)
}

func TestCalibrateMissingFarmInput(t *testing.T) {
	f := biasFrame(t, 2)
	cfg := config.Defaults()
	cfg.FarmInputPath = filepath.Join(t.TempDir(), "absent.yaml")

	_, err := Calibrate(context.Background(), f, cfg)
	assert.Error(t, err)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, round2(1.2345))
	assert.Equal(t, -1.23, round2(-1.2345))
	assert.True(t, math.IsNaN(round2(math.NaN())))
}
