package inference

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/insightml/bundle"
	"github.com/YuminosukeSato/insightml/dataset"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/train"
)

func students(t *testing.T, n int) *dataset.Frame {
	t.Helper()
	header := []string{"Name", "Age", "Fees", "Gender", "Score", "Passed"}
	var rows [][]string
	for i := 0; i < n; i++ {
		score := (i * 37) % 100
		passed := "no"
		if score >= 50 {
			passed = "yes"
		}
		age := fmt.Sprintf("%d/12", 8+i%10)
		if i%11 == 0 {
			age = "abc"
		}
		rows = append(rows, []string{
			fmt.Sprintf("s%02d", i),
			age,
			fmt.Sprintf("%d", 100+10*(i%5)),
			[]string{"F", "M", "X"}[i%3],
			fmt.Sprintf("%d", score),
			passed,
		})
	}
	f, err := dataset.FromRecords(header, rows)
	require.NoError(t, err)
	return f
}

func without(t *testing.T, f *dataset.Frame, name string) *dataset.Frame {
	t.Helper()
	var cols []*dataset.Column
	for _, c := range f.Copy().Columns() {
		if c.Name != name {
			cols = append(cols, c)
		}
	}
	out, err := dataset.NewFrame(cols...)
	require.NoError(t, err)
	return out
}

func trained(t *testing.T, modelType string) *bundle.Bundle {
	t.Helper()
	cfg := train.DefaultConfig()
	cfg.Target = "Passed"
	cfg.ModelType = modelType
	cfg.Categorical = []string{"Gender"}
	if modelType == bundle.TypeRandomForest {
		cfg.Params = map[string]interface{}{"n_estimators": 10}
	}
	res, err := train.Train(context.Background(), students(t, 40), cfg)
	require.NoError(t, err)
	return res.Bundle
}

func smallOptions() Options {
	return Options{MaxRows: 8, BackgroundSize: 6, Permutations: 2, Seed: 3, Workers: 2}
}

func TestPredict(t *testing.T) {
	b := trained(t, bundle.TypeDecisionTree)
	data := without(t, students(t, 12), "Passed")

	p, err := Predict(b, data)
	require.NoError(t, err)
	require.Len(t, p.Labels, 12)
	assert.Equal(t, []string{"no", "yes"}, p.ClassNames)
	for i, l := range p.Labels {
		assert.Contains(t, []string{"no", "yes"}, l)
		row := p.Probabilities.RawRowView(i)
		assert.InDelta(t, 1.0, row[0]+row[1], 1e-9)
	}

	counts := p.Counts()
	assert.Equal(t, 12, counts["no"]+counts["yes"])

	out, err := p.Frame()
	require.NoError(t, err)
	assert.True(t, out.Has(PredictionColumn))
	assert.True(t, out.Has("proba_yes"))
	assert.Equal(t, 12, out.NumRows())
}

func TestPredictMissingFeature(t *testing.T) {
	b := trained(t, bundle.TypeDecisionTree)
	data := without(t, without(t, students(t, 5), "Score"), "Fees")

	_, err := Predict(b, data)
	var mf *errors.MissingFeatureError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, []string{"Fees", "Score"}, mf.Columns)
}

func TestPredictUnseenCategory(t *testing.T) {
	b := trained(t, bundle.TypeRandomForest)
	data := students(t, 4)
	g, _ := data.Column("Gender")
	g.Strings[0] = "Other"

	p, err := Predict(b, data)
	require.NoError(t, err)
	assert.Len(t, p.Labels, 4)
	// 学習済みのエンコーダは変更されない
	assert.Equal(t, []string{"F", "M", "X"}, b.Encoders["Gender"].Classes)
}

func TestExplainAllSections(t *testing.T) {
	b := trained(t, bundle.TypeRandomForest)
	r := Explain(context.Background(), b, students(t, 30), smallOptions())

	for _, s := range r.Sections() {
		assert.True(t, s.Available, "%s: %s", s.Name, s.Reason)
	}

	assert.Len(t, r.Importance.Features, len(b.FeatureNames))
	for i := 1; i < len(r.Importance.Scores); i++ {
		assert.GreaterOrEqual(t, r.Importance.Scores[i-1], r.Importance.Scores[i])
	}

	shap := r.SHAP.Values
	rows, d := shap.Values.Dims()
	assert.Equal(t, 8, rows)
	assert.Equal(t, len(b.FeatureNames), d)
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < d; j++ {
			sum += shap.Values.At(i, j)
		}
		assert.InDelta(t, shap.Output[i]-shap.Expected[i], sum, 1e-9)
	}
	// Data is unscaled: Score stays on its original scale
	scoreIdx := -1
	for j, f := range shap.Features {
		if f == "Score" {
			scoreIdx = j
		}
	}
	require.NotEqual(t, -1, scoreIdx)
	assert.Equal(t, 0.0, shap.Data.At(0, scoreIdx))

	assert.Equal(t, append(append([]string(nil), b.FeatureNames...), "Passed"), r.Correlation.Columns)
	n := len(r.Correlation.Columns)
	for i := 0; i < n; i++ {
		assert.Equal(t, 1.0, r.Correlation.Matrix.At(i, i))
		for j := 0; j < n; j++ {
			v := r.Correlation.Matrix.At(i, j)
			assert.True(t, v >= -1 && v <= 1 && !math.IsNaN(v))
		}
	}

	perf := r.Performance
	assert.Equal(t, 30, perf.Samples)
	assert.Equal(t, []string{"no", "yes"}, perf.Labels)
	assert.True(t, perf.HasAUC)
	assert.Contains(t, perf.Text, "weighted avg")
	cr, cc := perf.Confusion.Dims()
	assert.Equal(t, 2, cr)
	assert.Equal(t, 2, cc)
}

func TestExplainWithoutTarget(t *testing.T) {
	b := trained(t, bundle.TypeDecisionTree)
	r := Explain(context.Background(), b, without(t, students(t, 20), "Passed"), smallOptions())

	assert.True(t, r.Importance.Available)
	assert.True(t, r.SHAP.Available)
	assert.True(t, r.Correlation.Available)
	assert.Equal(t, b.FeatureNames, r.Correlation.Columns)
	assert.False(t, r.Performance.Available)
	assert.Contains(t, r.Performance.Reason, "Passed")
}

func TestExplainMissingFeature(t *testing.T) {
	var warnings []*errors.ExplanationUnavailableWarning
	errors.SetWarningHandler(func(w error) {
		if ew, ok := w.(*errors.ExplanationUnavailableWarning); ok {
			warnings = append(warnings, ew)
		}
	})
	defer errors.SetWarningHandler(nil)

	b := trained(t, bundle.TypeDecisionTree)
	r := Explain(context.Background(), b, without(t, students(t, 20), "Score"), smallOptions())

	assert.True(t, r.Importance.Available)
	for _, s := range []Section{r.SHAP.Section, r.Correlation.Section, r.Performance.Section} {
		assert.False(t, s.Available, s.Name)
		assert.Contains(t, s.Reason, "Score", s.Name)
	}
	assert.Len(t, warnings, 3)
}

func TestExplainLogisticHasNoImportances(t *testing.T) {
	b := trained(t, bundle.TypeLogisticRegression)
	r := Explain(context.Background(), b, students(t, 20), smallOptions())

	assert.False(t, r.Importance.Available)
	assert.Equal(t, ReasonNoImportances, r.Importance.Reason)
	assert.True(t, r.SHAP.Available)
	assert.True(t, r.Performance.Available)
}

func TestExplainNilBundle(t *testing.T) {
	r := Explain(context.Background(), nil, students(t, 3), DefaultOptions())
	for _, s := range r.Sections() {
		assert.False(t, s.Available)
	}
}
