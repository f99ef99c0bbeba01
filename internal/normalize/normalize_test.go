package normalize

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

func normFrame(t *testing.T) *scada.Frame {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{start, start.Add(time.Minute), start.Add(2 * time.Minute)}
	f := scada.NewFrame(times, []string{"wt001"})
	require.NoError(t, f.SetSeries(scada.FeatureWindSpeed, "wt001", []float64{10, 20, 0}))
	require.NoError(t, f.SetSeries(scada.FeatureWindDirection, "wt001", []float64{90, 270, 180}))
	require.NoError(t, f.SetSeries(scada.FeatureNacelleDirection, "wt001", []float64{180, 0, 90}))
	f.ContinuityGroups = []int{0, 0, 0}
	return f
}

func normConfig(t *testing.T) config.Config {
	cfg := config.Defaults()
	cfg.ProcessedDataPath = filepath.Join(t.TempDir(), "processed.db")
	return cfg
}

func TestNormalizeDerivesAndScales(t *testing.T) {
	cfg := normConfig(t)
	out, consts, err := Normalize(context.Background(), normFrame(t), cfg)
	require.NoError(t, err)

	// Raw series are replaced by the derived families.
	assert.False(t, out.HasSeries(scada.FeatureWindSpeed, "wt001"))
	assert.Equal(t, []int{0, 0, 0}, out.ContinuityGroups)

	// ws_horz spans [-10, 20] before scaling.
	assert.Equal(t, Consts{Min: -10, Max: 20}, consts[scada.FeatureWindSpeedHorz])
	horz := out.Series(scada.FeatureWindSpeedHorz, "wt001")
	assert.InDelta(t, -1.0, horz[0], 1e-9)
	assert.InDelta(t, 1.0, horz[1], 1e-9)
	assert.InDelta(t, -1.0/3.0, horz[2], 1e-9)

	// Nacelle sine spans [-1, 0] at these headings.
	assert.Equal(t, Consts{Min: -1, Max: 0}, consts[scada.FeatureNacelleSin])
	ndSin := out.Series(scada.FeatureNacelleSin, "wt001")
	assert.InDelta(t, 1.0, ndSin[0], 1e-9)
	assert.InDelta(t, -1.0, ndSin[2], 1e-9)

	ndCos := out.Series(scada.FeatureNacelleCos, "wt001")
	assert.InDelta(t, 1.0, ndCos[0], 1e-9)
	assert.InDelta(t, -1.0, ndCos[1], 1e-9)
}

func TestNormalizeZeroSpanFamilyLeftUnscaled(t *testing.T) {
	cfg := normConfig(t)
	out, consts, err := Normalize(context.Background(), normFrame(t), cfg)
	require.NoError(t, err)

	// Every wind vector here is nearly east-west, so the north-south
	// component rounds to a zero span and scaling is skipped.
	assert.Equal(t, Consts{Min: 0, Max: 0}, consts[scada.FeatureWindSpeedVert])
	for _, v := range out.Series(scada.FeatureWindSpeedVert, "wt001") {
		assert.InDelta(t, 0.0, v, 1e-12)
	}
}

func TestNormalizeWritesConstsFile(t *testing.T) {
	cfg := normConfig(t)
	_, consts, err := Normalize(context.Background(), normFrame(t), cfg)
	require.NoError(t, err)

	data, err := os.ReadFile(ConstsPath(cfg))
	require.NoError(t, err)

	parsed, err := ReadConsts(data)
	require.NoError(t, err)
	assert.Equal(t, consts, parsed)
}

func TestNormalizeMissingSeriesErrors(t *testing.T) {
	f := scada.NewFrame([]time.Time{time.Now().UTC()}, []string{"wt001"})
	require.NoError(t, f.SetSeries(scada.FeatureWindSpeed, "wt001", []float64{1}))

	_, _, err := Normalize(context.Background(), f, normConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wt001")
}

func TestNormalizePropagatesMissingSamples(t *testing.T) {
	f := normFrame(t)
	f.Series(scada.FeatureWindSpeed, "wt001")[1] = math.NaN()

	out, _, err := Normalize(context.Background(), f, normConfig(t))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out.Series(scada.FeatureWindSpeedHorz, "wt001")[1]))
	assert.False(t, math.IsNaN(out.Series(scada.FeatureNacelleSin, "wt001")[1]))
}
