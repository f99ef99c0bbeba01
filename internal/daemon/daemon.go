// Package daemon runs the pipeline as a long-lived watch service: raw data
// changes trigger rate-limited re-runs, and a small HTTP surface exposes
// health, status and metrics.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/scadaops/windprep/internal/config"
	xlog "github.com/scadaops/windprep/internal/log"
	"github.com/scadaops/windprep/internal/metrics"
	"github.com/scadaops/windprep/internal/pipeline"
)

// debounceDuration coalesces bursts of filesystem events into one trigger.
const debounceDuration = 2 * time.Second

// Daemon owns the watch loop and the HTTP surface.
type Daemon struct {
	cfg     config.Config
	pipe    *pipeline.Pipeline
	addr    string
	limiter *rate.Limiter

	mu       sync.RWMutex
	last     *pipeline.Summary
	lastErr  string
	lastTime time.Time
	running  bool
}

// New builds a daemon listening on addr. Re-runs are limited to one per
// minInterval regardless of how often the raw directory changes.
func New(cfg config.Config, pipe *pipeline.Pipeline, addr string, minInterval time.Duration) *Daemon {
	if minInterval <= 0 {
		minInterval = 30 * time.Second
	}
	return &Daemon{
		cfg:     cfg,
		pipe:    pipe,
		addr:    addr,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Run blocks until ctx is cancelled. It performs one initial run, then
// re-runs whenever matching raw files change.
func (d *Daemon) Run(ctx context.Context) error {
	logger := xlog.WithComponent("daemon")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	if err := watcher.Add(d.cfg.RawDataDirectory); err != nil {
		return fmt.Errorf("watch %s: %w", d.cfg.RawDataDirectory, err)
	}

	srv := &http.Server{
		Addr:              d.addr,
		Handler:           d.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("event", "daemon.listen").
			Str("addr", d.addr).
			Msg("http surface up")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("event", "daemon.watch_started").
		Str("dir", d.cfg.RawDataDirectory).
		Str("signature", d.cfg.RawDataFileSignature).
		Msg("watching raw data directory")

	// First pass before any filesystem event.
	d.runOnce(ctx)

	trigger := make(chan struct{}, 1)
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("event", "daemon.stopped").Msg("watch loop stopped")
			return nil

		case err := <-serveErr:
			return fmt.Errorf("http server: %w", err)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !d.matches(event.Name) {
				continue
			}
			metrics.WatchTriggers.Inc()
			logger.Debug().
				Str("event", "daemon.raw_changed").
				Str("path", event.Name).
				Str("op", event.Op.String()).
				Msg("raw data changed")
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDuration, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Str("event", "daemon.watch_error").Msg("watcher error")

		case <-trigger:
			if err := d.limiter.Wait(ctx); err != nil {
				return nil // ctx cancelled
			}
			// Raw inputs changed, so resuming from a checkpoint would
			// just rewrite the pre-change frame.
			if err := d.pipe.InvalidateCheckpoints(); err != nil {
				logger.Warn().Err(err).
					Str("event", "daemon.invalidate_failed").
					Msg("stale checkpoints not dropped")
			}
			d.runOnce(ctx)
		}
	}
}

// matches reports whether a changed path matches the raw file signature.
func (d *Daemon) matches(path string) bool {
	ok, err := filepath.Match(d.cfg.RawDataFileSignature, filepath.Base(path))
	return err == nil && ok
}

func (d *Daemon) runOnce(ctx context.Context) {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	summary, err := d.pipe.Run(ctx)

	d.mu.Lock()
	d.running = false
	d.lastTime = time.Now().UTC()
	if err != nil {
		d.lastErr = err.Error()
	} else {
		d.lastErr = ""
		d.last = summary
	}
	d.mu.Unlock()
}

type statusResponse struct {
	Running    bool           `json:"running"`
	LastRunAt  *time.Time     `json:"last_run_at,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	LastRunID  string         `json:"last_run_id,omitempty"`
	Model      string         `json:"model,omitempty"`
	Samples    int            `json:"samples"`
	Groups     int            `json:"groups"`
	Nullified  map[string]int `json:"nullified,omitempty"`
	Duration   string         `json:"duration,omitempty"`
	ConfigKey  string         `json:"config_key,omitempty"`
	WatchedDir string         `json:"watched_dir"`
}

func (d *Daemon) router() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/status", d.handleStatus)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (d *Daemon) handleStatus(w http.ResponseWriter, _ *http.Request) {
	d.mu.RLock()
	resp := statusResponse{
		Running:    d.running,
		LastError:  d.lastErr,
		WatchedDir: d.cfg.RawDataDirectory,
	}
	if !d.lastTime.IsZero() {
		t := d.lastTime
		resp.LastRunAt = &t
	}
	if d.last != nil {
		resp.LastRunID = d.last.RunID
		resp.Model = d.last.Model
		resp.Samples = d.last.Samples
		resp.Groups = d.last.Groups
		resp.Nullified = d.last.Nullified
		resp.Duration = d.last.Duration.String()
		resp.ConfigKey = d.last.ConfigKey
	}
	d.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "encode status", http.StatusInternalServerError)
	}
}
