package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/insightml/bundle"
	"github.com/YuminosukeSato/insightml/catalog"
	"github.com/YuminosukeSato/insightml/train"
)

func newTrainCommand(a *app) *cobra.Command {
	var (
		target      string
		modelType   string
		name        string
		features    []string
		categorical []string
		testSize    float64
		seed        int64
		params      map[string]string
		noCatalog   bool
	)
	cmd := &cobra.Command{
		Use:   "train <dataset>",
		Short: "Train a classifier and save it as a model bundle",
		Example: `  insightml train students.csv --target Passed
  insightml train students.csv --target Passed --model decision_tree --param max_depth=4
  insightml train ./data/loans.xlsx --target Default --categorical Region,Product --name loans`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			raw, path, err := a.loadFrame(args[0])
			if err != nil {
				return err
			}

			tc := a.trainConfig()
			tc.Dataset = filepath.Base(path)
			tc.Target = target
			tc.Name = name
			tc.Features = features
			flags := cmd.Flags()
			if flags.Changed("model") {
				tc.ModelType = modelType
			}
			if flags.Changed("categorical") {
				tc.Categorical = categorical
			}
			if flags.Changed("test-size") {
				tc.TestSize = testSize
			}
			if flags.Changed("seed") {
				tc.Seed = seed
			}
			if len(params) > 0 {
				tc.Params = make(map[string]interface{}, len(params))
				for k, v := range params {
					tc.Params[k] = v
				}
			}

			res, err := train.Train(ctx, raw, tc)
			if err != nil {
				return err
			}
			saved, err := a.store().Save(ctx, res.Bundle)
			if err != nil {
				return err
			}
			if !noCatalog {
				if err := recordRun(cmd, a, res.Bundle); err != nil {
					a.logger.Warn("training run not recorded", err)
				}
			}

			out := cmd.OutOrStdout()
			m := res.Bundle.TrainMetrics
			fmt.Fprintf(out, "model %q (%s) saved to %s\n", res.Bundle.Name, res.Bundle.ModelType, saved)
			fmt.Fprintf(out, "features: %s\n", strings.Join(res.Bundle.FeatureNames, ", "))
			fmt.Fprintf(out, "holdout accuracy: %.4f", m.Accuracy)
			if m.HasAUC {
				fmt.Fprintf(out, "  roc auc: %.4f  log loss: %.4f", m.AUC, m.LogLoss)
			}
			fmt.Fprintf(out, "  (train %d, test %d", m.TrainSamples, m.TestSamples)
			if res.DroppedRows > 0 {
				fmt.Fprintf(out, ", %d rows without target dropped", res.DroppedRows)
			}
			fmt.Fprint(out, ")\n\n")
			fmt.Fprintln(out, m.Report)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&target, "target", "t", "", "target column (required)")
	f.StringVarP(&modelType, "model", "m", "", "model type: "+strings.Join(bundle.ModelTypes(), ", "))
	f.StringVar(&name, "name", "", "bundle name (default <dataset>_<model>)")
	f.StringSliceVar(&features, "features", nil, "feature columns (default every usable column)")
	f.StringSliceVar(&categorical, "categorical", nil, "columns to label-encode (overrides config)")
	f.Float64Var(&testSize, "test-size", 0, "holdout fraction in [0, 1)")
	f.Int64Var(&seed, "seed", 0, "random seed for the split and the model")
	f.StringToStringVar(&params, "param", nil, "model hyperparameter key=value, repeatable")
	f.BoolVar(&noCatalog, "no-catalog", false, "do not record the run in the catalog")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func recordRun(cmd *cobra.Command, a *app, b *bundle.Bundle) error {
	cat, err := a.openCatalog(cmd.Context())
	if err != nil {
		return err
	}
	defer cat.Close()
	_, err = cat.Record(cmd.Context(), catalog.RunFor(b))
	return err
}
