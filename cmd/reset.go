package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"depwatch/internal/bootstrap/logging"
	"depwatch/internal/errs"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the whole alert cache (alerts, history, sync records)",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return errors.New("reset is irreversible; pass --force to confirm")
		}

		if err := deps.Cache.ResetAll(ctx); err != nil {
			logging.Error(ctx, "reset failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "reset cache")
		}

		_, err := fmt.Fprintln(cmd.OutOrStdout(), "alert cache cleared")
		return errs.Wrap(err, "write reset output")
	}),
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().Bool("force", false, "Confirm the irreversible reset")
}
