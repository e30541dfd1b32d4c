// Package cli implements the insightml command line: the dashboard server
// plus batch commands for cleaning, training, prediction and explanation.
package cli

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/insightml/bundle"
	"github.com/YuminosukeSato/insightml/catalog"
	"github.com/YuminosukeSato/insightml/config"
	"github.com/YuminosukeSato/insightml/dataset"
	"github.com/YuminosukeSato/insightml/inference"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/pkg/log"
	"github.com/YuminosukeSato/insightml/train"
)

// app holds the state shared by every subcommand of one invocation.
type app struct {
	cfgFile     string
	datasetsDir string
	modelsDir   string
	catalogPath string
	logLevel    string

	cfg    *config.Config
	logger log.Logger
}

// NewRootCommand builds the insightml command tree. Each call returns an
// independent tree, so tests can execute it repeatedly.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "insightml",
		Short:         "Train, apply and explain tabular classifiers",
		Long:          `InsightML loads CSV, TSV and Excel datasets, cleans them, trains decision tree, random forest or logistic regression classifiers and explains their predictions with feature importances, SHAP values, correlations and performance metrics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.cfgFile, "config", "", "config file (default ./"+config.DefaultFile+" if present)")
	f.StringVar(&a.datasetsDir, "datasets-dir", "", "directory holding datasets (overrides config)")
	f.StringVar(&a.modelsDir, "models-dir", "", "directory holding model bundles (overrides config)")
	f.StringVar(&a.catalogPath, "catalog", "", "training run catalog database (overrides config)")
	f.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	root.AddCommand(
		newServeCommand(a),
		newDatasetsCommand(a),
		newCleanCommand(a),
		newTrainCommand(a),
		newPredictCommand(a),
		newExplainCommand(a),
		newModelsCommand(a),
		newConfigCommand(a),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command) error {
	c, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("datasets-dir") {
		c.DatasetsDir = a.datasetsDir
	}
	if flags.Changed("models-dir") {
		// catalog follows the model directory unless placed explicitly
		if c.CatalogPath == config.Default().CatalogPath {
			c.CatalogPath = filepath.Join(a.modelsDir, "catalog.db")
		}
		c.ModelsDir = a.modelsDir
	}
	if flags.Changed("catalog") {
		c.CatalogPath = a.catalogPath
	}
	if flags.Changed("log-level") {
		c.Log.Level = a.logLevel
	}
	if err := c.Validate(); err != nil {
		return err
	}

	logger, err := log.SetupLogger(c.Log.Level, c.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg = c
	a.logger = logger.With(log.ComponentKey, "cli")
	a.logger.Debug("configuration loaded",
		log.PathKey, a.cfgFile,
		"datasets_dir", c.DatasetsDir,
		"models_dir", c.ModelsDir,
	)
	return nil
}

func (a *app) store() *bundle.Store {
	return bundle.NewStore(a.cfg.ModelsDir)
}

func (a *app) openCatalog(ctx context.Context) (*catalog.Catalog, error) {
	return catalog.Open(ctx, a.cfg.CatalogPath)
}

// loadFrame reads arg as a file path, falling back to a dataset name inside
// the dataset directory.
func (a *app) loadFrame(arg string) (*dataset.Frame, string, error) {
	path := arg
	if _, err := os.Stat(arg); err != nil {
		if path, err = dataset.Resolve(a.cfg.DatasetsDir, arg); err != nil {
			return nil, "", err
		}
	}
	f, err := dataset.Load(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// trainConfig returns the training defaults from the loaded configuration.
func (a *app) trainConfig() train.Config {
	tc := train.DefaultConfig()
	tc.ModelType = a.cfg.Train.Model
	tc.TestSize = a.cfg.Train.TestSize
	tc.Seed = a.cfg.Train.Seed
	tc.SlashColumns = append([]string(nil), a.cfg.Cleaning.SlashColumns...)
	tc.Categorical = append([]string(nil), a.cfg.Cleaning.CategoricalColumns...)
	tc.NumericThreshold = a.cfg.Cleaning.NumericThreshold
	return tc
}

func (a *app) explainOptions() inference.Options {
	ex := a.cfg.Explain
	return inference.Options{
		MaxRows:        ex.MaxRows,
		BackgroundSize: ex.BackgroundSize,
		Permutations:   ex.Permutations,
		Seed:           ex.Seed,
		Workers:        runtime.NumCPU(),
	}
}

// writeOutput encodes f in the format implied by path's extension.
func writeOutput(f *dataset.Frame, path string) error {
	format, ok := dataset.FormatFromPath(path)
	if !ok {
		return errors.NewValidationError("output", "unsupported output format", filepath.Ext(path))
	}
	data, err := dataset.Encode(f, format)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
