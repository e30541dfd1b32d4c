package cli

import (
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/insightml/web"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web dashboard",
		Example: `  insightml serve
  insightml serve --addr 127.0.0.1:9000 --datasets-dir ./data`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			cat, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer cat.Close()

			srv, err := web.New(web.Options{
				DatasetsDir: a.cfg.DatasetsDir,
				Store:       a.store(),
				Catalog:     cat,
				Train:       a.trainConfig(),
				Explain:     a.explainOptions(),
			})
			if err != nil {
				return err
			}
			return srv.ListenAndServe(cmd.Context(), a.cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
