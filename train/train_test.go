package train

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
)

// students builds n rows where Passed depends on Score only.
func students(t *testing.T, n int) *dataset.Frame {
	t.Helper()
	header := []string{"Name", "Age", "Fees", "Gender", "Scholarship", "Score", "Passed"}
	var rows [][]string
	for i := 0; i < n; i++ {
		score := (i * 37) % 100
		passed := "no"
		if score >= 50 {
			passed = "yes"
		}
		gender := []string{"F", "M", "X"}[i%3]
		age := fmt.Sprintf("%d/12", 8+i%10)
		if i%11 == 0 {
			age = "unknown"
		}
		rows = append(rows, []string{
			fmt.Sprintf("s%02d", i),
			age,
			fmt.Sprintf("%d", 100+10*(i%5)),
			gender,
			[]string{"true", "false"}[i%2],
			fmt.Sprintf("%d", score),
			passed,
		})
	}
	f, err := dataset.FromRecords(header, rows)
	require.NoError(t, err)
	return f
}

func TestTrainEachModelType(t *testing.T) {
	for _, modelType := range bundle.ModelTypes() {
		t.Run(modelType, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Target = "Passed"
			cfg.ModelType = modelType
			cfg.Categorical = []string{"Gender"}
			cfg.Dataset = "students.csv"
			if modelType == bundle.TypeRandomForest {
				cfg.Params = map[string]interface{}{"n_estimators": 20}
			}

			res, err := Train(context.Background(), students(t, 60), cfg)
			require.NoError(t, err)

			b := res.Bundle
			assert.Equal(t, "students_"+modelType, b.Name)
			assert.Equal(t, []string{"Age", "Fees", "Gender", "Scholarship", "Score"}, b.FeatureNames)
			assert.Equal(t, []string{"Gender"}, b.CategoricalFeatures)
			assert.Equal(t, []string{"F", "M", "X"}, b.Encoders["Gender"].Classes)
			assert.Equal(t, []string{"no", "yes"}, b.TargetEncoder.Classes)
			assert.Equal(t, dataset.KindBoolean, b.Schema["Scholarship"])
			assert.Equal(t, dataset.KindNumeric, b.Schema["Age"])
			assert.Equal(t, 48, b.TrainMetrics.TrainSamples)
			assert.Equal(t, 12, b.TrainMetrics.TestSamples)
			assert.GreaterOrEqual(t, b.TrainMetrics.Accuracy, 0.75)
			assert.True(t, b.TrainMetrics.HasAUC)
			assert.GreaterOrEqual(t, b.TrainMetrics.LogLoss, 0.0)
			assert.False(t, math.IsInf(b.TrainMetrics.LogLoss, 0) || math.IsNaN(b.TrainMetrics.LogLoss))
			assert.Contains(t, b.TrainMetrics.Report, "weighted avg")
			assert.NotEmpty(t, b.Params)
			assert.Equal(t, modelType == bundle.TypeLogisticRegression, b.Scaler != nil)
			require.NoError(t, b.Validate())
		})
	}
}

func TestTrainDropsRowsWithoutTarget(t *testing.T) {
	f := students(t, 30)
	passed, _ := f.Column("Passed")
	passed.Strings[0] = ""
	passed.Strings[1] = "NA"

	cfg := DefaultConfig()
	cfg.Target = "Passed"
	cfg.ModelType = bundle.TypeDecisionTree
	cfg.TestSize = 0

	res, err := Train(context.Background(), f, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, res.DroppedRows)
	assert.Equal(t, 28, res.Bundle.TrainMetrics.TrainSamples)
	assert.Equal(t, 0, res.Bundle.TrainMetrics.TestSamples)
	assert.Equal(t, "decision_tree", res.Bundle.Name)
}

func TestTrainErrors(t *testing.T) {
	ctx := context.Background()
	f := students(t, 20)

	cfg := DefaultConfig()
	cfg.Target = "Grade"
	_, err := Train(ctx, f, cfg)
	var cnf *errors.ColumnNotFoundError
	assert.True(t, errors.As(err, &cnf))

	cfg = DefaultConfig()
	cfg.Target = "Passed"
	cfg.ModelType = "svm"
	_, err = Train(ctx, f, cfg)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	cfg = DefaultConfig()
	cfg.Target = "Passed"
	cfg.Features = []string{"Score", "Height"}
	_, err = Train(ctx, f, cfg)
	var mfe *errors.MissingFeatureError
	require.True(t, errors.As(err, &mfe))
	assert.Equal(t, []string{"Height"}, mfe.Columns)

	cfg = DefaultConfig()
	cfg.Target = "Passed"
	cfg.Categorical = []string{"Region"}
	_, err = Train(ctx, f, cfg)
	assert.True(t, errors.As(err, &cnf))

	cfg = DefaultConfig()
	cfg.Target = "Passed"
	cfg.TestSize = 1
	_, err = Train(ctx, f, cfg)
	assert.Error(t, err)
}

func TestSplitIsDeterministic(t *testing.T) {
	tr1, te1 := split(10, 0.3, 7)
	tr2, te2 := split(10, 0.3, 7)
	assert.Equal(t, tr1, tr2)
	assert.Equal(t, te1, te2)
	assert.Len(t, te1, 3)
	assert.Len(t, tr1, 7)

	tr, te := split(2, 0.9, 1)
	assert.Len(t, tr, 1)
	assert.Len(t, te, 1)
}

func TestNewModelParams(t *testing.T) {
	m, err := NewModel(bundle.TypeDecisionTree, map[string]interface{}{"max_depth": 3.0}, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, m.(interface{ GetParams() map[string]interface{} }).GetParams()["max_depth"])

	_, err = NewModel(bundle.TypeRandomForest, map[string]interface{}{"n_estimators": "many"}, 1)
	assert.Error(t, err)
}
