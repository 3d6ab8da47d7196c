package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexedsearch/internal/async"
	"github.com/Aman-CERP/indexedsearch/internal/output"
	"github.com/Aman-CERP/indexedsearch/internal/store"
)

type statsReport struct {
	Index       *store.Stats `json:"index"`
	Records     int          `json:"records"`
	RecordsPath string       `json:"records_path"`
	Interrupted bool         `json:"reconcile_interrupted"`
}

func newStatsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index and record store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			ctx := cmd.Context()

			return withApp(ctx, func(a *app) error {
				st, err := store.GetStats(ctx, a.index)
				if err != nil {
					return err
				}
				n, err := a.records.Count(ctx)
				if err != nil {
					return err
				}
				report := statsReport{
					Index:       st,
					Records:     n,
					RecordsPath: a.records.Path(),
					Interrupted: async.HasIncompleteLock(a.cfg.Index.Dir),
				}

				if f == output.FormatJSON {
					return out.JSON(report)
				}
				out.Statusf("📊", "Index statistics")
				out.KeyValues(map[string]any{
					"backend":    st.Backend,
					"path":       st.Path,
					"documents":  st.Documents,
					"generation": st.Generation,
					"records":    n,
				})
				if report.Interrupted {
					out.Warning("A previous reconcile did not finish; run 'indexedsearch reconcile'")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}
