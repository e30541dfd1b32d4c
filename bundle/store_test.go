package bundle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/insightml/core/model"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/preprocessing"
	"github.com/YuminosukeSato/insightml/sklearn/ensemble"
	"github.com/YuminosukeSato/insightml/sklearn/linear_model"
	"github.com/YuminosukeSato/insightml/sklearn/tree"
)

var (
	trainX = mat.NewDense(6, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		3, 3,
		3, 4,
		4, 3,
	})
	trainY = mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
)

func newBundle(t *testing.T, name string, m model.Classifier) *Bundle {
	t.Helper()
	require.NoError(t, m.Fit(trainX, trainY))
	b := New(name, m, []string{"Age", "Gender"}, "Passed")
	b.ModelType = TypeDecisionTree
	b.CategoricalFeatures = []string{"Gender"}
	b.Encoders["Gender"] = preprocessing.NewLabelEncoder("Gender").Fit([]string{"F", "M"})
	b.TargetEncoder = preprocessing.NewLabelEncoder("Passed").Fit([]string{"no", "yes"})
	b.TrainMetrics = Metrics{Accuracy: 1, AUC: 1, HasAUC: true, TrainSamples: 6, TestSamples: 2}
	if pg, ok := m.(model.ParameterGetter); ok {
		b.Params = pg.GetParams()
	}
	return b
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "models"))

	models := map[string]model.Classifier{
		"tree":     tree.NewDecisionTreeClassifier(),
		"forest":   ensemble.NewRandomForestClassifier(ensemble.WithNEstimators(5), ensemble.WithRandomState(1)),
		"logistic": linear_model.NewLogisticRegression(linear_model.WithLRMaxIter(200)),
	}
	for name, m := range models {
		t.Run(name, func(t *testing.T) {
			b := newBundle(t, name, m)
			path, err := store.Save(ctx, b)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(store.Dir(), name+".bundle"), path)

			loaded, err := store.Load(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, b.ID, loaded.ID)
			assert.Equal(t, b.FeatureNames, loaded.FeatureNames)
			assert.Equal(t, b.CategoricalFeatures, loaded.CategoricalFeatures)
			assert.Equal(t, []string{"F", "M"}, loaded.Encoders["Gender"].Classes)
			assert.Equal(t, []string{"no", "yes"}, loaded.ClassNames())
			assert.True(t, b.CreatedAt.Equal(loaded.CreatedAt))

			want, err := m.PredictProba(trainX)
			require.NoError(t, err)
			got, err := loaded.Model.PredictProba(trainX)
			require.NoError(t, err)
			assert.True(t, mat.EqualApprox(want, got, 1e-12))
		})
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBundleNotFound))

	var rnf *errors.ResourceNotFoundError
	require.True(t, errors.As(err, &rnf))
	assert.Equal(t, "nope", rnf.Name)
}

func TestStoreLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.bundle"), []byte("not a gob"), 0o644))

	_, err := NewStore(dir).Load(context.Background(), "broken")
	require.Error(t, err)
	var cbe *errors.CorruptBundleError
	assert.True(t, errors.As(err, &cbe))
	assert.False(t, errors.Is(err, errors.ErrBundleNotFound))
}

func TestStoreSaveValidates(t *testing.T) {
	store := NewStore(t.TempDir())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(b *Bundle)
	}{
		{"nil model", func(b *Bundle) { b.Model = nil }},
		{"no features", func(b *Bundle) { b.FeatureNames = nil }},
		{"no target", func(b *Bundle) { b.TargetColumn = "" }},
		{"categorical not a feature", func(b *Bundle) { b.CategoricalFeatures = []string{"School"} }},
		{"path in name", func(b *Bundle) { b.Name = "../escape" }},
		{"feature count mismatch", func(b *Bundle) { b.FeatureNames = []string{"Age"}; b.CategoricalFeatures = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBundle(t, "m", tree.NewDecisionTreeClassifier())
			tt.mutate(b)
			_, err := store.Save(ctx, b)
			assert.Error(t, err)
		})
	}

	infos, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := newBundle(t, "shared", tree.NewDecisionTreeClassifier())
			_, err := store.Save(ctx, b)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "shared.bundle", entries[0].Name())
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"))
	}

	_, err = store.Load(ctx, "shared")
	assert.NoError(t, err)
}

func TestStoreListAndDescribe(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "models")
	store := NewStore(dir)

	infos, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
	_, err = store.Names(ctx)
	assert.True(t, errors.Is(err, errors.ErrNoModels))

	for _, name := range []string{"zeta", "alpha"} {
		_, err := store.Save(ctx, newBundle(t, name, tree.NewDecisionTreeClassifier()))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	names, err := store.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)

	d, err := store.Describe(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "Passed", d.TargetColumn)
	assert.Equal(t, []string{"no", "yes"}, d.Classes)
	require.NotNil(t, d.AUC)
	assert.Equal(t, 1.0, *d.AUC)
	require.NotNil(t, d.LogLoss)
	assert.Equal(t, "gini", d.Params["criterion"])
}
