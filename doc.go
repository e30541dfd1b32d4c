// Package insightml is a small tabular machine learning workbench: load a
// CSV, TSV or Excel dataset, clean it, train a classifier, predict on new data
// and explain the model, from a web dashboard or the command line.
//
// # Workflow
//
//	insightml train students.csv --target Passed --model random_forest
//	insightml predict new_students.csv --model students_random_forest -o predictions.xlsx
//	insightml explain students.csv --model students_random_forest --charts ./charts
//	insightml serve --addr :8080
//
// # Packages
//
//   - dataset: raw frames and CSV/TSV/XLSX reading and writing
//   - preprocessing: slash-number parsing, label encoding, boolean and
//     numeric coercion, median imputation, standard scaling
//   - sklearn/tree, sklearn/ensemble, sklearn/linear_model: decision tree,
//     random forest and logistic regression classifiers
//   - metrics: accuracy, classification report, ROC AUC, correlation
//   - bundle: trained model plus its encodings, stored atomically with gob
//   - train: cleaning, holdout split and fitting into a bundle
//   - inference: prediction and explanation (importance, SHAP, correlation,
//     performance)
//   - chart: PNG charts rendered with gonum/plot
//   - catalog: SQLite record of training runs
//   - config: defaults, YAML file, .env and INSIGHTML_* variables
//   - web: the dashboard
//   - cli: the insightml command
//
// # Programmatic use
//
//	raw, _ := dataset.Load("students.csv")
//	cfg := train.DefaultConfig()
//	cfg.Target = "Passed"
//	res, err := train.Train(ctx, raw, cfg)
//	if err != nil {
//	    return err
//	}
//	store := bundle.NewStore("models")
//	if _, err := store.Save(ctx, res.Bundle); err != nil {
//	    return err
//	}
//	report := inference.Explain(ctx, res.Bundle, raw, inference.DefaultOptions())
//
// Errors are returned, never panicked: see pkg/errors for the typed errors
// (ValidationError, MissingFeatureError, ColumnNotFoundError and the
// not-found sentinels). Explanation sections that cannot be computed are
// marked unavailable and reported through errors.Warn.
package insightml
