package scada

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMod360(t *testing.T) {
	assert.InDelta(t, 10, Mod360(370), 1e-9)
	assert.InDelta(t, 350, Mod360(-10), 1e-9)
	assert.InDelta(t, 0, Mod360(720), 1e-9)
}

func TestWrap180(t *testing.T) {
	assert.InDelta(t, -10, Wrap180(350), 1e-9)
	assert.InDelta(t, 180, Wrap180(180), 1e-9)
	assert.InDelta(t, -170, Wrap180(190), 1e-9)
}

func TestCircularMeanAcrossNorth(t *testing.T) {
	// 350 and 10 average to 0, not 180
	got := CircularMeanDeg([]float64{350, 10})
	assert.InDelta(t, 0, Wrap180(got), 1e-6)

	got = CircularMeanDeg([]float64{350, 10, math.NaN()})
	assert.InDelta(t, 0, Wrap180(got), 1e-6)

	assert.True(t, math.IsNaN(CircularMeanDeg([]float64{math.NaN()})))
	assert.True(t, math.IsNaN(CircularMeanDeg(nil)))
}

func TestCircularMedian(t *testing.T) {
	got := CircularMedianDeg([]float64{80, 90, 100})
	assert.InDelta(t, 90, Mod360(got), 1e-6)

	assert.True(t, math.IsNaN(CircularMedianDeg(nil)))
}

func TestMeanStdIgnoreNaN(t *testing.T) {
	vals := []float64{1, 2, 3, math.NaN()}
	assert.InDelta(t, 2, Mean(vals), 1e-9)
	assert.InDelta(t, math.Sqrt(2.0/3.0), Std(vals), 1e-9)
	assert.True(t, math.IsNaN(Mean(nil)))
}

func TestMedian(t *testing.T) {
	assert.InDelta(t, 2, Median([]float64{3, 1, 2}), 1e-9)
	assert.InDelta(t, 2.5, Median([]float64{3, 1, 2, math.NaN(), 4}), 1e-9)
	assert.True(t, math.IsNaN(Median(nil)))
}
