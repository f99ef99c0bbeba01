// Package loader discovers raw SCADA CSV exports and merges them into a
// single wide frame on a uniform sample grid.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scadaops/windprep/internal/config"
	xlog "github.com/scadaops/windprep/internal/log"
	"github.com/scadaops/windprep/internal/scada"
)

// decodeConcurrency bounds parallel file decodes.
const decodeConcurrency = 4

// timeLayouts accepted for the raw time column, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Loader reads raw data files according to the configured signature and
// column mappings.
type Loader struct {
	cfg      config.Config
	resolver *scada.Resolver
}

// New creates a loader from the pipeline configuration.
func New(cfg config.Config) (*Loader, error) {
	resolver, err := scada.NewResolver(cfg.FeatureMapping, cfg.TurbineSignature)
	if err != nil {
		return nil, fmt.Errorf("compile column mappings: %w", err)
	}
	return &Loader{cfg: cfg, resolver: resolver}, nil
}

// Discover returns the sorted raw files matching raw_data_file_signature
// inside raw_data_directory.
func (l *Loader) Discover() ([]string, error) {
	sig := l.cfg.RawDataFileSignature
	if !strings.HasSuffix(sig, ".csv") {
		return nil, fmt.Errorf("unsupported data format %q: signature must end in .csv", sig)
	}
	pattern := filepath.Join(l.cfg.RawDataDirectory, sig)
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// fileData is one decoded raw file: samples keyed by series key.
type fileData struct {
	path    string
	samples map[string]map[time.Time]float64 // series key -> grid time -> value
}

// Load discovers, decodes and merges all raw files into one frame.
func (l *Loader) Load(ctx context.Context) (*scada.Frame, error) {
	logger := xlog.WithComponentFromContext(ctx, "loader")

	paths, err := l.Discover()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no raw files match %q in %s", l.cfg.RawDataFileSignature, l.cfg.RawDataDirectory)
	}

	logger.Info().
		Str("event", "load.start").
		Int("files", len(paths)).
		Str("dir", l.cfg.RawDataDirectory).
		Msg("loading raw data files")

	var mu sync.Mutex
	decoded := make([]*fileData, 0, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(decodeConcurrency)
	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fd, err := l.decodeFile(path)
			if err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			mu.Lock()
			decoded = append(decoded, fd)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	frame := l.merge(decoded)
	if frame.Len() == 0 {
		return nil, fmt.Errorf("raw files matched but contained no mappable samples")
	}

	// Bounded forward fill, 10 h horizon like the upstream loader.
	limit := int(10 * time.Hour / l.cfg.SampleInterval())
	filled := ForwardFill(frame, limit)

	logger.Info().
		Str("event", "load.complete").
		Int("rows", frame.Len()).
		Int("turbines", len(frame.Turbines)).
		Int("series", len(frame.SeriesKeys())).
		Int("forward_filled", filled).
		Msg("raw data merged")

	return frame, nil
}

// decodeFile reads one CSV export. The header row is resolved against the
// feature and turbine signature patterns; unmapped columns are skipped.
func (l *Loader) decodeFile(path string) (*fileData, error) {
	f, err := os.Open(path) // #nosec G304 -- discovered under the configured raw dir
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	timeIdx := -1
	keys := make([]string, len(header)) // "" = skip column
	for i, raw := range header {
		raw = strings.TrimSpace(raw)
		feature, ok := l.resolver.Feature(raw)
		if !ok {
			continue
		}
		if feature == "time" {
			timeIdx = i
			continue
		}
		tid, ok := l.resolver.TurbineID(raw)
		if !ok {
			continue
		}
		keys[i] = scada.Key(feature, tid)
	}
	if timeIdx < 0 {
		return nil, fmt.Errorf("no time column matched the feature mapping")
	}

	fd := &fileData{path: path, samples: make(map[string]map[time.Time]float64)}
	dt := l.cfg.SampleInterval()

	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row: %w", err)
		}
		if timeIdx >= len(rec) {
			continue
		}
		ts, ok := parseTime(rec[timeIdx])
		if !ok {
			continue
		}
		// Snap onto the uniform sample grid.
		ts = ts.Round(dt).UTC()

		for i, key := range keys {
			if key == "" || i >= len(rec) {
				continue
			}
			v := parseValue(rec[i])
			if math.IsNaN(v) {
				continue
			}
			col := fd.samples[key]
			if col == nil {
				col = make(map[time.Time]float64)
				fd.samples[key] = col
			}
			col[ts] = v
		}
	}

	return fd, nil
}

// merge folds decoded files into one frame. Progress is reported every
// merge_chunk folded samples so long merges stay observable.
func (l *Loader) merge(files []*fileData) *scada.Frame {
	logger := xlog.WithComponent("loader")
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	merged := make(map[string]map[time.Time]float64)
	timeSet := make(map[time.Time]struct{})
	turbineSet := make(map[string]struct{})

	folded := 0
	for _, fd := range files {
		for key, col := range fd.samples {
			dst := merged[key]
			if dst == nil {
				dst = make(map[time.Time]float64, len(col))
				merged[key] = dst
			}
			for ts, v := range col {
				dst[ts] = v // later files win on overlap
				timeSet[ts] = struct{}{}
				folded++
				if folded%l.cfg.MergeChunk == 0 {
					logger.Debug().
						Str("event", "load.merge_progress").
						Int("samples", folded).
						Msg("merging raw samples")
				}
			}
			if idx := strings.LastIndex(key, "_"); idx >= 0 {
				turbineSet[key[idx+1:]] = struct{}{}
			}
		}
	}

	times := make([]time.Time, 0, len(timeSet))
	for ts := range timeSet {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	turbines := make([]string, 0, len(turbineSet))
	for tid := range turbineSet {
		turbines = append(turbines, tid)
	}

	frame := scada.NewFrame(times, turbines)
	index := make(map[time.Time]int, len(times))
	for i, ts := range times {
		index[ts] = i
	}

	for key, col := range merged {
		vals := make([]float64, len(times))
		for i := range vals {
			vals[i] = math.NaN()
		}
		for ts, v := range col {
			vals[index[ts]] = v
		}
		idx := strings.LastIndex(key, "_")
		_ = frame.SetSeries(key[:idx], key[idx+1:], vals)
	}

	return frame
}

// ForwardFill fills NaN gaps with the last observed value, for at most limit
// consecutive samples per gap. Returns the number of filled cells.
func ForwardFill(f *scada.Frame, limit int) int {
	if limit <= 0 {
		return 0
	}
	filled := 0
	for _, key := range f.SeriesKeys() {
		idx := strings.LastIndex(key, "_")
		vals := f.Series(key[:idx], key[idx+1:])
		last := math.NaN()
		run := 0
		for i, v := range vals {
			if !math.IsNaN(v) {
				last = v
				run = 0
				continue
			}
			if math.IsNaN(last) || run >= limit {
				continue
			}
			vals[i] = last
			run++
			filled++
		}
	}
	return filled
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseValue(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" || s == "NaN" || s == "nan" || s == "null" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
