package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexedsearch/internal/output"
)

func newInitCmd() *cobra.Command {
	var writeConfig string
	var reconcile bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Open the search index, creating it if needed",
		Long: `Open the media_entries index, creating the index directory and the
index itself when they do not exist yet. An existing index is resumed,
never rebuilt.

Examples:
  indexedsearch init
  indexedsearch init --reconcile
  indexedsearch init --write-config indexedsearch.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			return withApp(cmd.Context(), func(a *app) error {
				if a.created {
					out.Successf("Created %s index at %s", a.index.Backend(), a.index.Path())
				} else {
					out.Successf("Resumed %s index at %s", a.index.Backend(), a.index.Path())
				}

				if reconcile {
					res, err := a.reconciler.Reconcile(cmd.Context())
					if err != nil {
						return err
					}
					out.Statusf("", "Reconciled: %d added, %d removed", res.Added, res.Orphans+res.Stale+res.Pruned)
				}

				if writeConfig != "" {
					backup, err := a.cfg.WriteWithBackup(writeConfig)
					if err != nil {
						return err
					}
					if backup != "" {
						out.Statusf("", "Previous config saved to %s", backup)
					}
					out.Successf("Wrote config to %s", writeConfig)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&writeConfig, "write-config", "", "Write the effective configuration to this file")
	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "Reconcile with the record store after opening")

	return cmd
}
