// Package cache persists per-stage frame checkpoints so re-runs with an
// unchanged configuration can resume after the last completed stage.
package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/scadaops/windprep/internal/config"
	"github.com/scadaops/windprep/internal/scada"
)

// Checkpoints is a badger-backed store of stage output frames, keyed by a
// configuration fingerprint and stage name.
type Checkpoints struct {
	db *badger.DB
}

// Open opens (or creates) a checkpoint store at path.
func Open(path string) (*Checkpoints, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store %s: %w", path, err)
	}
	return &Checkpoints{db: db}, nil
}

func (c *Checkpoints) Close() error { return c.db.Close() }

// ConfigKey fingerprints the parts of the configuration that change stage
// output. Two configs with the same key may share checkpoints.
func ConfigKey(cfg config.Config) string {
	buf, err := json.Marshal(cfg)
	if err != nil {
		return "unkeyed"
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:8])
}

type envelope struct {
	SavedAt time.Time
	Frame   scada.Snapshot
}

// Put records a stage's output frame under the config fingerprint.
func (c *Checkpoints) Put(ctx context.Context, cfgKey, stage string, frame *scada.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	env := envelope{SavedAt: time.Now().UTC(), Frame: frame.Snapshot()}
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return fmt.Errorf("encode checkpoint %s/%s: %w", cfgKey, stage, err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(cfgKey, stage), buf.Bytes())
	})
}

// Get loads a stage checkpoint. The second return is false when no
// checkpoint exists for this fingerprint and stage.
func (c *Checkpoints) Get(ctx context.Context, cfgKey, stage string) (*scada.Frame, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var env envelope
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(cfgKey, stage))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&env)
		})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return scada.FromSnapshot(env.Frame), true, nil
}

// Latest walks stages in order and returns the last one with a checkpoint,
// together with its frame. Returns stage "" when none exist.
func (c *Checkpoints) Latest(ctx context.Context, cfgKey string, stages []string) (string, *scada.Frame, error) {
	var (
		foundStage string
		foundFrame *scada.Frame
	)
	for _, stage := range stages {
		frame, ok, err := c.Get(ctx, cfgKey, stage)
		if err != nil {
			return "", nil, err
		}
		if ok {
			foundStage, foundFrame = stage, frame
		}
	}
	return foundStage, foundFrame, nil
}

// Invalidate drops every checkpoint stored under the fingerprint.
func (c *Checkpoints) Invalidate(cfgKey string) error {
	return c.db.DropPrefix([]byte("ckpt:" + cfgKey + ":"))
}

func key(cfgKey, stage string) []byte {
	return []byte("ckpt:" + cfgKey + ":" + stage)
}
