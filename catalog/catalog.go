// Package catalog records training runs in an embedded sqlite database.
package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/insightml/bundle"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/pkg/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	bundle_name TEXT NOT NULL,
	model_type  TEXT NOT NULL,
	dataset     TEXT NOT NULL DEFAULT '',
	target      TEXT NOT NULL,
	samples     INTEGER NOT NULL,
	features    INTEGER NOT NULL,
	accuracy    REAL NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);
`

// Run is one completed training run.
type Run struct {
	ID         string
	BundleName string
	ModelType  string
	Dataset    string
	Target     string
	Samples    int
	Features   int
	Accuracy   float64
	CreatedAt  time.Time
}

// RunFor describes the training run that produced b.
func RunFor(b *bundle.Bundle) Run {
	return Run{
		BundleName: b.Name,
		ModelType:  b.ModelType,
		Dataset:    b.Dataset,
		Target:     b.TargetColumn,
		Samples:    b.TrainMetrics.TrainSamples + b.TrainMetrics.TestSamples,
		Features:   len(b.FeatureNames),
		Accuracy:   b.TrainMetrics.Accuracy,
		CreatedAt:  b.CreatedAt,
	}
}

type runRow struct {
	ID         string  `db:"id"`
	BundleName string  `db:"bundle_name"`
	ModelType  string  `db:"model_type"`
	Dataset    string  `db:"dataset"`
	Target     string  `db:"target"`
	Samples    int     `db:"samples"`
	Features   int     `db:"features"`
	Accuracy   float64 `db:"accuracy"`
	CreatedAt  int64   `db:"created_at"`
}

// Catalog is a sqlite-backed log of training runs.
type Catalog struct {
	db     *sqlx.DB
	mu     sync.Mutex
	logger log.Logger
}

// Open opens or creates the catalog database at path.
func Open(ctx context.Context, path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create catalog directory %s", dir)
		}
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog %s", path)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create catalog schema")
	}
	logger := log.GetLoggerWithName("catalog")
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		logger.Warn("failed to enable WAL", err, log.PathKey, path)
	}
	return &Catalog{db: db, logger: logger}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record stores a run. An empty ID is filled with a new UUID and a zero
// CreatedAt with the current time. The stored run is returned.
func (c *Catalog) Record(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	row := runRow{
		ID:         run.ID,
		BundleName: run.BundleName,
		ModelType:  run.ModelType,
		Dataset:    run.Dataset,
		Target:     run.Target,
		Samples:    run.Samples,
		Features:   run.Features,
		Accuracy:   run.Accuracy,
		CreatedAt:  run.CreatedAt.UnixNano(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.NamedExecContext(ctx, `INSERT INTO runs
		(id, bundle_name, model_type, dataset, target, samples, features, accuracy, created_at)
		VALUES (:id, :bundle_name, :model_type, :dataset, :target, :samples, :features, :accuracy, :created_at)`, row)
	if err != nil {
		return Run{}, errors.Wrapf(err, "record run for bundle %q", run.BundleName)
	}
	c.logger.Debug("run recorded", log.BundleNameKey, run.BundleName, log.AccuracyKey, run.Accuracy)
	return run, nil
}

// Recent returns up to limit runs, newest first.
func (c *Catalog) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	err := c.db.SelectContext(ctx, &rows, `SELECT
		id, bundle_name, model_type, dataset, target, samples, features, accuracy, created_at
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query recent runs")
	}
	runs := make([]Run, len(rows))
	for i, r := range rows {
		runs[i] = Run{
			ID:         r.ID,
			BundleName: r.BundleName,
			ModelType:  r.ModelType,
			Dataset:    r.Dataset,
			Target:     r.Target,
			Samples:    r.Samples,
			Features:   r.Features,
			Accuracy:   r.Accuracy,
			CreatedAt:  time.Unix(0, r.CreatedAt).UTC(),
		}
	}
	return runs, nil
}

// ForBundle returns the runs that produced the named bundle, newest first.
func (c *Catalog) ForBundle(ctx context.Context, name string) ([]Run, error) {
	var rows []runRow
	err := c.db.SelectContext(ctx, &rows, `SELECT
		id, bundle_name, model_type, dataset, target, samples, features, accuracy, created_at
		FROM runs WHERE bundle_name = ? ORDER BY created_at DESC`, name)
	if err != nil {
		return nil, errors.Wrapf(err, "query runs for bundle %q", name)
	}
	runs := make([]Run, len(rows))
	for i, r := range rows {
		runs[i] = Run{
			ID:         r.ID,
			BundleName: r.BundleName,
			ModelType:  r.ModelType,
			Dataset:    r.Dataset,
			Target:     r.Target,
			Samples:    r.Samples,
			Features:   r.Features,
			Accuracy:   r.Accuracy,
			CreatedAt:  time.Unix(0, r.CreatedAt).UTC(),
		}
	}
	return runs, nil
}
