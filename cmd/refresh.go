package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"depwatch/internal/bootstrap/logging"
	"depwatch/internal/errs"
	"depwatch/internal/usecase/refresh"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [owner/name]",
	Short: "Fetch and ingest alerts for one repository, or all tracked repositories",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if len(cmd.Flags().Args()) == 1 {
			repo := cmd.Flags().Args()[0]
			outcome, err := deps.Orchestrator.RefreshOne(ctx, repo)
			if err != nil {
				logging.Error(ctx, "refresh failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrapf(err, "refresh %s", repo)
			}
			return printOutcomes(cmd, []refresh.Outcome{outcome})
		}

		result, err := deps.Orchestrator.RefreshAll(ctx)
		if err != nil {
			logging.Error(ctx, "batch refresh failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "refresh all")
		}
		return printBatchResult(cmd, result)
	}),
}

func printBatchResult(cmd *cobra.Command, result refresh.BatchResult) error {
	if result.Skipped {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "skipped: a refresh is already running")
		return errs.Wrap(err, "write refresh output")
	}

	if err := printOutcomes(cmd, result.Outcomes); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(
		cmd.OutOrStdout(),
		"batch %s: %d total, %d succeeded, %d failed\n",
		result.BatchID, result.Total, result.Succeeded, result.Failed,
	); err != nil {
		return errs.Wrap(err, "write refresh output")
	}
	return nil
}

func printOutcomes(cmd *cobra.Command, outcomes []refresh.Outcome) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(w, "repo\tstatus\talerts\terror"); err != nil {
		return errs.Wrap(err, "write refresh header")
	}
	for _, outcome := range outcomes {
		status := "ok"
		if !outcome.OK {
			status = "failed"
		}
		errText := outcome.Error
		if errText == "" {
			errText = "-"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", outcome.Repo, status, outcome.AlertCount, errText); err != nil {
			return errs.Wrap(err, "write refresh row")
		}
	}
	return errs.Wrap(w.Flush(), "flush refresh output")
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
