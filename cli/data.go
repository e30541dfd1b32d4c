package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/insightml/dataset"
	"github.com/YuminosukeSato/insightml/pkg/errors"
	"github.com/YuminosukeSato/insightml/pkg/log"
	"github.com/YuminosukeSato/insightml/preprocessing"
)

func newDatasetsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the datasets in the dataset directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := dataset.List(a.cfg.DatasetsDir)
			if errors.Is(err, errors.ErrNoDatasets) {
				fmt.Fprintf(cmd.OutOrStdout(), "no datasets in %s\n", a.cfg.DatasetsDir)
				return nil
			}
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFORMAT\tSIZE\tMODIFIED")
			for _, in := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", in.Name, in.Format, in.Size, in.ModTime.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func newCleanCommand(a *app) *cobra.Command {
	var (
		output      string
		target      string
		categorical []string
	)
	cmd := &cobra.Command{
		Use:   "clean <dataset>",
		Short: "Clean a dataset and print what was changed",
		Long: `Clean parses slash-number columns, label-encodes categorical columns, converts
booleans, coerces numeric columns and imputes missing numbers with the column
median. The cleaning report is printed as markdown; --output writes the cleaned
data as CSV or XLSX.`,
		Example: `  insightml clean students.csv
  insightml clean ./raw/students.xlsx --categorical Gender -o cleaned.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, path, err := a.loadFrame(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("categorical") {
				categorical = a.cfg.Cleaning.CategoricalColumns
			}
			opts := []preprocessing.Option{
				preprocessing.WithSlashColumns(a.cfg.Cleaning.SlashColumns...),
				preprocessing.WithCategorical(categorical...),
				preprocessing.WithNumericThreshold(a.cfg.Cleaning.NumericThreshold),
			}
			if target != "" {
				opts = append(opts, preprocessing.WithTarget(target))
			}
			res, err := preprocessing.NewCleaner(opts...).Clean(raw)
			if err != nil {
				return err
			}
			a.logger.Info("dataset cleaned",
				log.OperationKey, log.OperationClean,
				log.PathKey, path,
				log.SamplesKey, res.Frame.NumRows(),
			)
			fmt.Fprint(cmd.OutOrStdout(), res.Report.Markdown())

			if output != "" {
				if err := writeOutput(res.Frame, output); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote cleaned data to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the cleaned data to this .csv or .xlsx file")
	cmd.Flags().StringVar(&target, "target", "", "target column, left untouched")
	cmd.Flags().StringSliceVar(&categorical, "categorical", nil, "columns to label-encode (overrides config)")
	return cmd
}
