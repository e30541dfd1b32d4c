package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/insightml/chart"
	"github.com/YuminosukeSato/insightml/dataset"
	"github.com/YuminosukeSato/insightml/inference"
	"github.com/YuminosukeSato/insightml/pkg/errors"
)

func newPredictCommand(a *app) *cobra.Command {
	var model, output string
	cmd := &cobra.Command{
		Use:   "predict <dataset>",
		Short: "Predict with a saved model",
		Long: `Predict cleans the dataset with the encodings stored in the model bundle and
appends a prediction column plus one probability column per class. The result
is written as CSV to stdout, or to --output (.csv or .xlsx).`,
		Example: `  insightml predict new_students.csv --model students_random_forest
  insightml predict new_students.csv -m students_random_forest -o predictions.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.store().Load(cmd.Context(), model)
			if err != nil {
				return err
			}
			raw, _, err := a.loadFrame(args[0])
			if err != nil {
				return err
			}
			p, err := inference.Predict(b, raw)
			if err != nil {
				return err
			}
			out, err := p.Frame()
			if err != nil {
				return err
			}

			if output == "" {
				return dataset.WriteCSV(cmd.OutOrStdout(), out)
			}
			if err := writeOutput(out, output); err != nil {
				return err
			}
			counts := p.Counts()
			labels := make([]string, 0, len(counts))
			for l := range counts {
				labels = append(labels, l)
			}
			sort.Strings(labels)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d predictions to %s\n", out.NumRows(), output)
			for _, l := range labels {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d\n", l, counts[l])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model bundle name (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write predictions to this .csv or .xlsx file")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newExplainCommand(a *app) *cobra.Command {
	var model, chartsDir string
	cmd := &cobra.Command{
		Use:   "explain <dataset>",
		Short: "Explain a saved model on a dataset",
		Long: `Explain reports feature importances, SHAP values, feature correlations and,
when the dataset carries the target column, classification performance. A
section that cannot be computed is reported as unavailable with its reason.
--charts writes every chart as a PNG file.`,
		Example: `  insightml explain students.csv --model students_random_forest
  insightml explain students.csv -m students_random_forest --charts ./charts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.store().Load(cmd.Context(), model)
			if err != nil {
				return err
			}
			raw, _, err := a.loadFrame(args[0])
			if err != nil {
				return err
			}
			r := inference.Explain(cmd.Context(), b, raw, a.explainOptions())
			printReport(cmd, r)

			if chartsDir == "" {
				return nil
			}
			if err := os.MkdirAll(chartsDir, 0o755); err != nil {
				return errors.Wrapf(err, "create %s", chartsDir)
			}
			for _, kind := range chart.Kinds() {
				png, err := chart.Render(r, kind)
				var ue *chart.UnavailableError
				if errors.As(err, &ue) {
					continue
				}
				if err != nil {
					return errors.Wrapf(err, "render %s chart", kind)
				}
				path := filepath.Join(chartsDir, kind+".png")
				if err := os.WriteFile(path, png, 0o644); err != nil {
					return errors.Wrapf(err, "write %s", path)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model bundle name (required)")
	cmd.Flags().StringVar(&chartsDir, "charts", "", "directory to write PNG charts into")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func printReport(cmd *cobra.Command, r *inference.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "model %s (%s) on %d rows x %d columns\n\n", r.Bundle, r.ModelType, r.Rows, r.Columns)
	for _, s := range r.Sections() {
		if s.Available {
			fmt.Fprintf(out, "%-12s available\n", s.Name)
		} else {
			fmt.Fprintf(out, "%-12s unavailable: %s\n", s.Name, s.Reason)
		}
	}

	if r.Importance.Available {
		fmt.Fprintln(out, "\nfeature importance")
		for i, f := range r.Importance.Features {
			fmt.Fprintf(out, "  %-20s %.4f\n", f, r.Importance.Scores[i])
		}
	}
	if r.SHAP.Available {
		fmt.Fprintln(out, "\nmean |SHAP value|")
		sv := r.SHAP.Values
		for _, j := range sv.Ranked() {
			fmt.Fprintf(out, "  %-20s %.4f\n", sv.Features[j], sv.MeanAbs[j])
		}
	}
	if r.Performance.Available {
		p := r.Performance
		fmt.Fprintf(out, "\naccuracy %.4f on %d rows", p.Report.Accuracy, p.Samples)
		if p.HasAUC {
			fmt.Fprintf(out, ", roc auc %.4f", p.AUC)
		}
		fmt.Fprintf(out, "\n\n%s\n", p.Text)
	}
}
