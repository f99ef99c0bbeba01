// Package normalize derives the model input features and rescales them to
// [-1, 1], recording the scaling constants next to the processed output.
package normalize

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/scadaops/windprep/internal/config"
	xlog "github.com/scadaops/windprep/internal/log"
	"github.com/scadaops/windprep/internal/scada"
)

// ConstsFileName is the per-family scaling constants file written beside the
// processed output.
const ConstsFileName = "normalization_consts.csv"

// Derived feature families, in output order.
var featureFamilies = []string{
	scada.FeatureNacelleCos,
	scada.FeatureNacelleSin,
	scada.FeatureWindSpeedHorz,
	scada.FeatureWindSpeedVert,
}

// Consts holds one family's scaling bounds, rounded to two decimals.
type Consts struct {
	Min float64
	Max float64
}

// Normalize replaces the frame's raw series with the derived feature set.
// Directions become sine and cosine about south, wind speed is decomposed
// along the wind direction, and each family is min-max scaled to [-1, 1]
// with bounds shared across turbines. The bounds are written to
// normalization_consts.csv in the processed output's directory.
func Normalize(ctx context.Context, frame *scada.Frame, cfg config.Config) (*scada.Frame, map[string]Consts, error) {
	logger := xlog.WithComponentFromContext(ctx, "normalize")

	out := scada.NewFrame(frame.Times, frame.Turbines)
	if frame.ContinuityGroups != nil {
		out.ContinuityGroups = append([]int(nil), frame.ContinuityGroups...)
	}

	for _, tid := range frame.Turbines {
		ws := frame.Series(scada.FeatureWindSpeed, tid)
		wd := frame.Series(scada.FeatureWindDirection, tid)
		nd := frame.Series(scada.FeatureNacelleDirection, tid)
		if ws == nil || wd == nil || nd == nil {
			return nil, nil, fmt.Errorf("turbine %s: wind_speed, wind_direction and nacelle_direction are all required for normalization", tid)
		}

		n := frame.Len()
		horz := make([]float64, n)
		vert := make([]float64, n)
		ndSin := make([]float64, n)
		ndCos := make([]float64, n)
		for i := 0; i < n; i++ {
			wdRad := (wd[i] - 180) * math.Pi / 180
			horz[i] = ws[i] * math.Sin(wdRad)
			vert[i] = ws[i] * math.Cos(wdRad)
			ndRad := (nd[i] - 180) * math.Pi / 180
			ndSin[i] = math.Sin(ndRad)
			ndCos[i] = math.Cos(ndRad)
		}
		if err := out.SetSeries(scada.FeatureWindSpeedHorz, tid, horz); err != nil {
			return nil, nil, err
		}
		if err := out.SetSeries(scada.FeatureWindSpeedVert, tid, vert); err != nil {
			return nil, nil, err
		}
		if err := out.SetSeries(scada.FeatureNacelleSin, tid, ndSin); err != nil {
			return nil, nil, err
		}
		if err := out.SetSeries(scada.FeatureNacelleCos, tid, ndCos); err != nil {
			return nil, nil, err
		}
	}

	consts := familyBounds(out)
	scale(out, consts)

	path := ConstsPath(cfg)
	if err := WriteConsts(path, consts); err != nil {
		return nil, nil, fmt.Errorf("write %s: %w", path, err)
	}

	logger.Info().
		Str("event", "normalize.complete").
		Str("consts_path", path).
		Int("rows", out.Len()).
		Msg("features derived and scaled")
	return out, consts, nil
}

// ConstsPath returns where the scaling constants file belongs for a config.
func ConstsPath(cfg config.Config) string {
	return filepath.Join(filepath.Dir(cfg.ProcessedDataPath), ConstsFileName)
}

// familyBounds computes per-family min/max over every turbine's series,
// rounded to two decimals. The rounded bounds are the ones used for scaling
// so the written constants reproduce the stored data exactly.
func familyBounds(f *scada.Frame) map[string]Consts {
	out := make(map[string]Consts, len(featureFamilies))
	for _, family := range featureFamilies {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, tid := range f.Turbines {
			for _, v := range f.Series(family, tid) {
				if math.IsNaN(v) {
					continue
				}
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
		}
		out[family] = Consts{Min: round2(lo), Max: round2(hi)}
	}
	return out
}

func scale(f *scada.Frame, consts map[string]Consts) {
	for _, family := range featureFamilies {
		c := consts[family]
		span := c.Max - c.Min
		if span == 0 {
			continue
		}
		for _, tid := range f.Turbines {
			vals := f.Series(family, tid)
			for i, v := range vals {
				vals[i] = 2*(v-c.Min)/span - 1
			}
		}
	}
}

// WriteConsts atomically writes the scaling constants CSV. One row, columns
// <family>_max and <family>_min per feature family.
func WriteConsts(path string, consts map[string]Consts) error {
	var header, row []string
	for _, family := range featureFamilies {
		c := consts[family]
		header = append(header, family+"_max", family+"_min")
		row = append(row, formatConst(c.Max), formatConst(c.Min))
	}
	content := strings.Join(header, ",") + "\n" + strings.Join(row, ",") + "\n"
	return renameio.WriteFile(path, []byte(content), 0o644)
}

// ReadConsts parses a constants file written by WriteConsts.
func ReadConsts(data []byte) (map[string]Consts, error) {
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		return nil, fmt.Errorf("constants file must have a header and one row, got %d lines", len(lines))
	}
	cols := strings.Split(lines[0], ",")
	vals := strings.Split(lines[1], ",")
	if len(cols) != len(vals) {
		return nil, fmt.Errorf("constants file has %d columns but %d values", len(cols), len(vals))
	}
	out := make(map[string]Consts)
	for i, col := range cols {
		v, err := strconv.ParseFloat(vals[i], 64)
		if err != nil {
			return nil, fmt.Errorf("constants column %s: %w", col, err)
		}
		switch {
		case strings.HasSuffix(col, "_max"):
			c := out[strings.TrimSuffix(col, "_max")]
			c.Max = v
			out[strings.TrimSuffix(col, "_max")] = c
		case strings.HasSuffix(col, "_min"):
			c := out[strings.TrimSuffix(col, "_min")]
			c.Min = v
			out[strings.TrimSuffix(col, "_min")] = c
		default:
			return nil, fmt.Errorf("constants column %s: expected _min or _max suffix", col)
		}
	}
	return out, nil
}

func formatConst(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
