package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexedsearch/internal/index"
	"github.com/Aman-CERP/indexedsearch/internal/output"
)

type reconcileOptions struct {
	check  bool
	format string
}

func newReconcileCmd() *cobra.Command {
	var opts reconcileOptions

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Bring the index in line with the record store",
		Long: `Compare every indexed document against the record store and fix the
differences in one commit: orphaned and stale documents are removed, and
processed entries missing from the index are added.

With --check nothing is written; the differences are only reported.

Examples:
  indexedsearch reconcile
  indexedsearch reconcile --check
  indexedsearch reconcile --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.check, "check", false, "Report differences without changing the index")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runReconcile(ctx context.Context, cmd *cobra.Command, opts reconcileOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())

	return withApp(ctx, func(a *app) error {
		if opts.check {
			res, err := a.reconciler.Check(ctx)
			if err != nil {
				return err
			}
			if format == output.FormatJSON {
				return out.JSON(res)
			}
			printCheck(out, res)
			return nil
		}

		res, err := a.reconciler.Reconcile(ctx)
		if err != nil {
			return err
		}
		if format == output.FormatJSON {
			return out.JSON(res)
		}
		printResult(out, res)
		return nil
	})
}

func printResult(out *output.Writer, res *index.Result) {
	if res.Changed() {
		out.Successf("Reconciled %d documents against %d records", res.Scanned, res.Records)
	} else {
		out.Successf("Index already consistent (%d documents, %d records)", res.Scanned, res.Records)
	}
	out.KeyValues(map[string]any{
		"added":    res.Added,
		"missing":  res.Missing,
		"orphans":  res.Orphans,
		"stale":    res.Stale,
		"pruned":   res.Pruned,
		"skipped":  res.Skipped,
		"duration": res.Duration.Round(time.Millisecond),
	})
}

func printCheck(out *output.Writer, res *index.CheckResult) {
	if res.Consistent() {
		out.Successf("Index is consistent (%d documents, %d records)", res.Checked, res.Records)
		return
	}
	out.Warningf("%d inconsistencies found (%d documents, %d records)",
		len(res.Inconsistencies), res.Checked, res.Records)
	rows := make([][]string, 0, len(res.Inconsistencies))
	for _, i := range res.Inconsistencies {
		rows = append(rows, []string{strconv.FormatUint(i.MediaID, 10), i.Type.String()})
	}
	out.Table([]string{"MEDIA ID", "ISSUE"}, rows)
}
