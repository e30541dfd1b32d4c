package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/insightml/bundle"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		_, err := c.Record(ctx, Run{
			BundleName: name,
			ModelType:  "decision_tree",
			Dataset:    "students.csv",
			Target:     "Passed",
			Samples:    100 + i,
			Features:   4,
			Accuracy:   0.8,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	runs, err := c.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].BundleName)
	assert.Equal(t, "second", runs[1].BundleName)
	assert.Equal(t, 102, runs[0].Samples)
	assert.True(t, runs[0].CreatedAt.Equal(base.Add(2*time.Hour)))
	assert.NotEmpty(t, runs[0].ID)
}

func TestRecordFillsDefaults(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)

	run, err := c.Record(ctx, Run{BundleName: "m", ModelType: "random_forest", Target: "y"})
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.False(t, run.CreatedAt.IsZero())

	_, err = c.Record(ctx, run)
	assert.Error(t, err, "duplicate id should be rejected")

	runs, err := c.ForBundle(ctx, "m")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	c, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = c.Record(ctx, Run{BundleName: "m", ModelType: "decision_tree", Target: "y"})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = Open(ctx, path)
	require.NoError(t, err)
	defer c.Close()
	runs, err := c.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunFor(t *testing.T) {
	b := &bundle.Bundle{
		Name:         "students_rf",
		ModelType:    bundle.TypeRandomForest,
		Dataset:      "students.csv",
		TargetColumn: "Passed",
		FeatureNames: []string{"Age", "Score"},
		TrainMetrics: bundle.Metrics{Accuracy: 0.9, TrainSamples: 40, TestSamples: 10},
		CreatedAt:    time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC),
	}
	run := RunFor(b)
	assert.Equal(t, 50, run.Samples)
	assert.Equal(t, 2, run.Features)
	assert.Equal(t, "Passed", run.Target)

	c := openTest(t)
	stored, err := c.Record(context.Background(), run)
	require.NoError(t, err)
	got, err := c.ForBundle(context.Background(), "students_rf")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stored.ID, got[0].ID)
	assert.True(t, got[0].CreatedAt.Equal(b.CreatedAt))
}
