package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/insightml/catalog"
	"github.com/YuminosukeSato/insightml/pkg/errors"
)

func newModelsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect saved model bundles and training runs",
		Example: `  insightml models list
  insightml models describe students_random_forest
  insightml models runs --limit 5`,
	}
	cmd.AddCommand(newModelsListCommand(a), newModelsDescribeCommand(a), newModelsRunsCommand(a))
	return cmd
}

func newModelsListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved model bundles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store := a.store()
			names, err := store.Names(ctx)
			if errors.Is(err, errors.ErrNoModels) {
				fmt.Fprintf(cmd.OutOrStdout(), "no models in %s\n", a.cfg.ModelsDir)
				return nil
			}
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tTARGET\tFEATURES\tACCURACY\tCREATED")
			for _, name := range names {
				d, err := store.Describe(ctx, name)
				if err != nil {
					// a corrupt bundle must not hide the others
					a.logger.Warn("bundle unreadable", err)
					fmt.Fprintf(tw, "%s\t?\t?\t?\t?\t?\n", name)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.4f\t%s\n",
					d.Name, d.ModelType, d.TargetColumn, len(d.FeatureNames), d.Accuracy,
					d.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func newModelsDescribeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <name>",
		Short: "Print a model bundle's metadata as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.store().Describe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(d); err != nil {
				return errors.Wrap(err, "encode description")
			}
			return enc.Close()
		},
	}
}

func newModelsRunsCommand(a *app) *cobra.Command {
	var (
		limit  int
		bundle string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer cat.Close()

			var runs []catalog.Run
			if bundle != "" {
				runs, err = cat.ForBundle(cmd.Context(), bundle)
			} else {
				runs, err = cat.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tMODEL\tTYPE\tDATASET\tTARGET\tSAMPLES\tACCURACY")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%.4f\n",
					r.CreatedAt.Format("2006-01-02 15:04:05"), r.BundleName, r.ModelType,
					r.Dataset, r.Target, r.Samples, r.Accuracy)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	cmd.Flags().StringVar(&bundle, "model", "", "only runs that produced this bundle")
	return cmd
}
