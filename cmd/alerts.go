package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"depwatch/internal/bootstrap/logging"
	"depwatch/internal/errs"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts <owner/name>",
	Short: "Show cached alerts for a repository",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		repo := cmd.Flags().Args()[0]

		state, err := deps.Cache.State(ctx, repo)
		if err != nil {
			logging.Error(ctx, "read current state failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrapf(err, "read alerts for %s", repo)
		}

		if !state.HasCache {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "no cached data for %s; run `depwatch refresh %s` first\n", repo, repo)
			return errs.Wrap(err, "write alerts output")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "number\tseverity\tstate\tpackage\tecosystem\tcreated_at"); err != nil {
			return errs.Wrap(err, "write alerts header")
		}
		for _, a := range state.Alerts {
			if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				a.AlertNumber,
				a.Severity,
				a.State,
				orDash(a.PackageName),
				orDash(a.Ecosystem),
				orDash(a.CreatedAt),
			); err != nil {
				return errs.Wrap(err, "write alerts row")
			}
		}
		if err := w.Flush(); err != nil {
			return errs.Wrap(err, "flush alerts output")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d alerts, last sync %s\n", len(state.Alerts), state.LastSync); err != nil {
			return errs.Wrap(err, "write alerts footer")
		}
		return nil
	}),
}

func orDash(value *string) string {
	if value == nil || *value == "" {
		return "-"
	}
	return *value
}

func init() {
	rootCmd.AddCommand(alertsCmd)
}
