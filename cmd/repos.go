package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"depwatch/internal/bootstrap/logging"
	"depwatch/internal/errs"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage tracked repositories",
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked repositories and their last sync time",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		repos, err := deps.Cache.TrackedRepos(ctx)
		if err != nil {
			logging.Error(ctx, "list tracked repos failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list tracked repos")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "repo\tlast_sync"); err != nil {
			return errs.Wrap(err, "write repos header")
		}
		for _, repo := range repos {
			if _, err := fmt.Fprintf(w, "%s\t%s\n", repo.Repo, repo.LastSync); err != nil {
				return errs.Wrap(err, "write repos row")
			}
		}
		return errs.Wrap(w.Flush(), "flush repos output")
	}),
}

var reposRemoveCmd = &cobra.Command{
	Use:   "remove <owner/name>",
	Short: "Drop a repository's alerts, history and sync record",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		repo := cmd.Flags().Args()[0]

		if err := deps.Cache.RemoveRepo(ctx, repo); err != nil {
			logging.Error(ctx, "remove repo failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrapf(err, "remove repo %s", repo)
		}

		_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %s from the cache\n", repo)
		return errs.Wrap(err, "write remove output")
	}),
}

// reposImportFile is the YAML shape accepted by `repos import`:
//
//	repos:
//	  - acme/widget
//	  - acme/gadget
type reposImportFile struct {
	Repos []string `yaml:"repos"`
}

var reposImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Onboard repositories from a YAML list and refresh each one",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		path, _ := cmd.Flags().GetString("file")
		if strings.TrimSpace(path) == "" {
			return errors.New("--file is required")
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return errs.Wrapf(err, "read repos file %q", path)
		}

		var parsed reposImportFile
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return errs.Wrapf(err, "parse repos file %q", path)
		}

		repos := make([]string, 0, len(parsed.Repos))
		for _, repo := range parsed.Repos {
			if repo = strings.TrimSpace(repo); repo != "" {
				repos = append(repos, repo)
			}
		}
		if len(repos) == 0 {
			return fmt.Errorf("repos file %q lists no repositories", path)
		}

		logging.Info(ctx, "importing repositories", slog.Int("count", len(repos)))
		result, err := deps.Orchestrator.RefreshMany(ctx, repos)
		if err != nil {
			logging.Error(ctx, "import refresh failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "refresh imported repos")
		}
		return printBatchResult(cmd, result)
	}),
}

func init() {
	rootCmd.AddCommand(reposCmd)
	reposCmd.AddCommand(reposListCmd)
	reposCmd.AddCommand(reposRemoveCmd)
	reposCmd.AddCommand(reposImportCmd)

	reposImportCmd.Flags().StringP("file", "f", "", "YAML file listing repositories to track")
}
