package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/scadaops/windprep/internal/scada"
)

// Store writes processed frames and run records. Samples are stored long
// format so downstream consumers can query per feature and turbine.
type Store struct {
	db *sql.DB

	// ChunkRows bounds how many sample rows one transaction inserts.
	ChunkRows int
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	config_key  TEXT NOT NULL,
	model       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	status      TEXT NOT NULL,
	samples     INTEGER NOT NULL DEFAULT 0,
	detail      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS samples (
	run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	ts               INTEGER NOT NULL,
	continuity_group INTEGER NOT NULL,
	feature          TEXT NOT NULL,
	turbine          TEXT NOT NULL,
	value            REAL,
	PRIMARY KEY (run_id, ts, feature, turbine)
);

CREATE INDEX IF NOT EXISTS idx_samples_feature ON samples(run_id, feature, turbine);
`

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one pipeline execution record.
type Run struct {
	ID         string
	ConfigKey  string
	Model      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Samples    int
	Detail     string
}

// OpenStore opens the processed output database and ensures the schema.
func OpenStore(path string) (*Store, error) {
	db, err := Open(path, DefaultConfig())
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db, ChunkRows: 5000}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// BeginRun records the start of a pipeline execution.
func (s *Store) BeginRun(ctx context.Context, id, configKey, model string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, config_key, model, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		id, configKey, model, time.Now().UTC().Unix(), RunRunning)
	if err != nil {
		return fmt.Errorf("sqlite: begin run %s: %w", id, err)
	}
	return nil
}

// FinishRun closes a run record with its final status and sample count.
func (s *Store) FinishRun(ctx context.Context, id, status string, samples int, detail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, samples = ?, detail = ? WHERE id = ?`,
		time.Now().UTC().Unix(), status, samples, detail, id)
	if err != nil {
		return fmt.Errorf("sqlite: finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: finish run %s: no such run", id)
	}
	return nil
}

// LastRun returns the most recently started run, or nil when none exist.
func (s *Store) LastRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, config_key, model, started_at, COALESCE(finished_at, 0), status, samples, detail
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`)
	var (
		r        Run
		started  int64
		finished int64
	)
	err := row.Scan(&r.ID, &r.ConfigKey, &r.Model, &started, &finished, &r.Status, &r.Samples, &r.Detail)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: last run: %w", err)
	}
	r.StartedAt = time.Unix(started, 0).UTC()
	if finished > 0 {
		r.FinishedAt = time.Unix(finished, 0).UTC()
	}
	return &r, nil
}

// WriteFrame stores every series of the frame under the run and returns the
// number of sample cells written (timesteps x features x turbines). Missing
// samples are stored as NULL. Inserts are chunked to keep transactions
// bounded.
func (s *Store) WriteFrame(ctx context.Context, runID string, frame *scada.Frame) (int, error) {
	type cell struct {
		ts      int64
		group   int
		feature string
		turbine string
		value   sql.NullFloat64
	}

	var pending []cell
	written := 0
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlite: begin tx: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO samples (run_id, ts, continuity_group, feature, turbine, value)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: prepare insert: %w", err)
		}
		for _, c := range pending {
			if _, err := stmt.ExecContext(ctx, runID, c.ts, c.group, c.feature, c.turbine, c.value); err != nil {
				_ = stmt.Close()
				_ = tx.Rollback()
				return fmt.Errorf("sqlite: insert sample: %w", err)
			}
		}
		_ = stmt.Close()
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlite: commit samples: %w", err)
		}
		written += len(pending)
		pending = pending[:0]
		return nil
	}

	for _, feature := range frame.Features() {
		for _, turbine := range frame.Turbines {
			vals := frame.Series(feature, turbine)
			if vals == nil {
				continue
			}
			for i, v := range vals {
				group := 0
				if frame.ContinuityGroups != nil {
					group = frame.ContinuityGroups[i]
				}
				nv := sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
				pending = append(pending, cell{
					ts:      frame.Times[i].Unix(),
					group:   group,
					feature: feature,
					turbine: turbine,
					value:   nv,
				})
				if len(pending) >= s.ChunkRows {
					if err := flush(); err != nil {
						return written, err
					}
				}
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}
	return written, nil
}

// ReadSeries loads one feature/turbine series of a run ordered by time.
// NULL samples come back as NaN.
func (s *Store) ReadSeries(ctx context.Context, runID, feature, turbine string) ([]time.Time, []float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, value FROM samples
		 WHERE run_id = ? AND feature = ? AND turbine = ?
		 ORDER BY ts`, runID, feature, turbine)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: read series %s_%s: %w", feature, turbine, err)
	}
	defer rows.Close()

	var (
		times []time.Time
		vals  []float64
	)
	for rows.Next() {
		var (
			ts int64
			v  sql.NullFloat64
		)
		if err := rows.Scan(&ts, &v); err != nil {
			return nil, nil, fmt.Errorf("sqlite: scan sample: %w", err)
		}
		times = append(times, time.Unix(ts, 0).UTC())
		if v.Valid {
			vals = append(vals, v.Float64)
		} else {
			vals = append(vals, math.NaN())
		}
	}
	return times, vals, rows.Err()
}
