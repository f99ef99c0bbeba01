package sqlite

import (
	"context"
	"crypto/rand"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scadaops/windprep/internal/scada"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "processed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func storeFrame(t *testing.T) *scada.Frame {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f := scada.NewFrame([]time.Time{start, start.Add(time.Minute), start.Add(2 * time.Minute)}, []string{"wt001"})
	require.NoError(t, f.SetSeries(scada.FeatureWindSpeedHorz, "wt001", []float64{0.5, math.NaN(), -0.25}))
	f.ContinuityGroups = []int{0, 0, 1}
	return f
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BeginRun(ctx, "run-1", "cfgkey", "tactis"))
	require.NoError(t, s.FinishRun(ctx, "run-1", RunCompleted, 3, ""))

	last, err := s.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-1", last.ID)
	assert.Equal(t, "tactis", last.Model)
	assert.Equal(t, RunCompleted, last.Status)
	assert.Equal(t, 3, last.Samples)
	assert.False(t, last.FinishedAt.IsZero())
}

func TestFinishUnknownRunErrors(t *testing.T) {
	s := openTestStore(t)
	err := s.FinishRun(context.Background(), "ghost", RunFailed, 0, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such run")
}

func TestLastRunEmpty(t *testing.T) {
	s := openTestStore(t)
	last, err := s.LastRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestWriteFrameRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginRun(ctx, "run-1", "cfgkey", ""))

	n, err := s.WriteFrame(ctx, "run-1", storeFrame(t))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	times, vals, err := s.ReadSeries(ctx, "run-1", scada.FeatureWindSpeedHorz, "wt001")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, 0.5, vals[0])
	assert.True(t, math.IsNaN(vals[1]))
	assert.Equal(t, -0.25, vals[2])
	assert.True(t, times[1].After(times[0]))
}

func TestWriteFrameChunksTransactions(t *testing.T) {
	s := openTestStore(t)
	s.ChunkRows = 2
	ctx := context.Background()
	require.NoError(t, s.BeginRun(ctx, "run-1", "cfgkey", ""))

	n, err := s.WriteFrame(ctx, "run-1", storeFrame(t))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestVerifyIntegrityDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corruptible.db")

	s, err := OpenStore(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.BeginRun(ctx, "run-1", "cfgkey", ""))
	for i := 0; i < 50; i++ {
		_, err := s.WriteFrame(ctx, "run-1", storeFrame(t))
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	issues, err := VerifyIntegrity(path, "quick")
	require.NoError(t, err)
	assert.Nil(t, issues)

	// Scribble over the second page.
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	garbage := make([]byte, 100)
	_, _ = rand.Read(garbage)
	_, err = f.WriteAt(garbage, 4096)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	issues, err = VerifyIntegrity(path, "full")
	require.NoError(t, err)
	assert.NotNil(t, issues)
}
