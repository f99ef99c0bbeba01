package scada

import (
	"math"
	"sort"
)

// Mod360 wraps an angle into [0, 360).
func Mod360(deg float64) float64 {
	m := math.Mod(deg, 360)
	if m < 0 {
		m += 360
	}
	return m
}

// Wrap180 maps an angle into (-180, 180].
func Wrap180(deg float64) float64 {
	m := Mod360(deg)
	if m > 180 {
		m -= 360
	}
	return m
}

// CircularMeanDeg returns the circular mean of angles in degrees, ignoring
// NaN samples. Returns NaN when no valid samples exist.
func CircularMeanDeg(deg []float64) float64 {
	var sinSum, cosSum float64
	n := 0
	for _, d := range deg {
		if math.IsNaN(d) {
			continue
		}
		rad := d * math.Pi / 180
		sinSum += math.Sin(rad)
		cosSum += math.Cos(rad)
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return math.Atan2(sinSum/float64(n), cosSum/float64(n)) * 180 / math.Pi
}

// CircularMedianDeg returns the component-wise circular median: the median
// of the sine and cosine components combined by atan2, matching how the
// upstream chain computes farm-wide direction medians. NaN samples are
// ignored; returns NaN when no valid samples exist.
func CircularMedianDeg(deg []float64) float64 {
	sins := make([]float64, 0, len(deg))
	coss := make([]float64, 0, len(deg))
	for _, d := range deg {
		if math.IsNaN(d) {
			continue
		}
		rad := d * math.Pi / 180
		sins = append(sins, math.Sin(rad))
		coss = append(coss, math.Cos(rad))
	}
	if len(sins) == 0 {
		return math.NaN()
	}
	return math.Atan2(median(sins), median(coss)) * 180 / math.Pi
}

// Mean returns the arithmetic mean ignoring NaN samples, NaN when empty.
func Mean(vals []float64) float64 {
	sum := 0.0
	n := 0
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Std returns the population standard deviation ignoring NaN samples.
func Std(vals []float64) float64 {
	m := Mean(vals)
	if math.IsNaN(m) {
		return math.NaN()
	}
	var sq float64
	n := 0
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		d := v - m
		sq += d * d
		n++
	}
	return math.Sqrt(sq / float64(n))
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Median returns the median ignoring NaN samples, NaN when empty.
func Median(vals []float64) float64 {
	clean := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	return median(clean)
}
