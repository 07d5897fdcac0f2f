package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"depwatch/internal/bootstrap/config"
	"depwatch/internal/bootstrap/logging"
	domainalert "depwatch/internal/domain/alert"
	"depwatch/internal/errs"
	"depwatch/internal/usecase/analytics"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "History-derived reports over the cached alert data",
}

var reportTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Daily open-alert counts per severity, reconstructed from the change log",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		repo, _ := cmd.Flags().GetString("repo")

		points, err := deps.Analytics.Trend(ctx, repo)
		if err != nil {
			logging.Error(ctx, "trend report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "build trend report")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "date\tcritical\thigh\tmedium\tlow\tunknown"); err != nil {
			return errs.Wrap(err, "write trend header")
		}
		for _, p := range points {
			if _, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
				p.Date, p.Critical, p.High, p.Medium, p.Low, p.Unknown); err != nil {
				return errs.Wrap(err, "write trend row")
			}
		}
		return errs.Wrap(w.Flush(), "flush trend output")
	}),
}

var reportMTTRCmd = &cobra.Command{
	Use:   "mttr",
	Short: "Mean days from first open to first resolution, per repo and severity",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		repo, _ := cmd.Flags().GetString("repo")

		entries, err := deps.Analytics.MTTR(ctx, repo)
		if err != nil {
			logging.Error(ctx, "mttr report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "build mttr report")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "repo\tseverity\tavg_days\tresolved"); err != nil {
			return errs.Wrap(err, "write mttr header")
		}
		for _, e := range entries {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%.1f\t%d\n",
				e.Repo, e.Severity, e.AvgDays, e.ResolvedCount); err != nil {
				return errs.Wrap(err, "write mttr row")
			}
		}
		return errs.Wrap(w.Flush(), "flush mttr output")
	}),
}

var reportSLACmd = &cobra.Command{
	Use:   "sla",
	Short: "Open alerts checked against per-severity age limits, worst first",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		repo, _ := cmd.Flags().GetString("repo")
		policyPath, _ := cmd.Flags().GetString("policy")

		limits := slaLimitsFromConfig(deps.App.Config.SLA)
		if policyPath != "" {
			loaded, err := analytics.LoadSLAPolicy(policyPath)
			if err != nil {
				return errs.Wrapf(err, "load sla policy %q", policyPath)
			}
			limits = loaded
		}

		entries, err := deps.Analytics.SLA(ctx, repo, limits)
		if err != nil {
			logging.Error(ctx, "sla report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "build sla report")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "repo\talert\tseverity\tpackage\topen_days\tlimit_days\toverdue"); err != nil {
			return errs.Wrap(err, "write sla header")
		}
		for _, e := range entries {
			pkg := e.PackageName
			if pkg == "" {
				pkg = "-"
			}
			if _, err := fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%.1f\t%.1f\t%t\n",
				e.Repo, e.AlertNumber, e.Severity, pkg, e.OpenDays, e.LimitDays, e.Overdue); err != nil {
				return errs.Wrap(err, "write sla row")
			}
		}
		return errs.Wrap(w.Flush(), "flush sla output")
	}),
}

var reportVulnsCmd = &cobra.Command{
	Use:   "vulns",
	Short: "Open alerts grouped by advisory across all repositories",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		groups, err := deps.Analytics.VulnerabilityGroups(ctx)
		if err != nil {
			logging.Error(ctx, "vulnerability report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "build vulnerability report")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "advisory\tcve\tseverity\tcvss\tpatched\talerts\trepos"); err != nil {
			return errs.Wrap(err, "write vulns header")
		}
		for _, g := range groups {
			cve := g.CVEID
			if cve == "" {
				cve = "-"
			}
			cvss := "-"
			if g.CVSSScore != nil {
				cvss = fmt.Sprintf("%.1f", *g.CVSSScore)
			}
			patched := g.PatchedVersion
			if patched == "" {
				patched = "-"
			}
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
				g.AdvisoryID, cve, g.Severity, cvss, patched, g.TotalAlerts, g.AffectedRepos); err != nil {
				return errs.Wrap(err, "write vulns row")
			}
		}
		return errs.Wrap(w.Flush(), "flush vulns output")
	}),
}

var reportDepsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Open alerts grouped by vulnerable package",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		groups, err := deps.Analytics.DependencyGroups(ctx)
		if err != nil {
			logging.Error(ctx, "dependency report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "build dependency report")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "package\tecosystem\talerts\trepos\tcritical\thigh"); err != nil {
			return errs.Wrap(err, "write deps header")
		}
		for _, g := range groups {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
				g.PackageName, g.Ecosystem, g.TotalAlerts, g.AffectedRepos, g.CriticalCount, g.HighCount); err != nil {
				return errs.Wrap(err, "write deps row")
			}
		}
		return errs.Wrap(w.Flush(), "flush deps output")
	}),
}

var reportEcosystemsCmd = &cobra.Command{
	Use:   "ecosystems",
	Short: "Open alerts grouped by package ecosystem",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		groups, err := deps.Analytics.EcosystemGroups(ctx)
		if err != nil {
			logging.Error(ctx, "ecosystem report failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "build ecosystem report")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		if _, err := fmt.Fprintln(w, "ecosystem\talerts\trepos\tpackages"); err != nil {
			return errs.Wrap(err, "write ecosystems header")
		}
		for _, g := range groups {
			if _, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\n",
				g.Ecosystem, g.TotalAlerts, g.AffectedRepos, g.PackageCount); err != nil {
				return errs.Wrap(err, "write ecosystems row")
			}
		}
		return errs.Wrap(w.Flush(), "flush ecosystems output")
	}),
}

// slaLimitsFromConfig overlays the config file's non-zero limits on the
// package defaults.
func slaLimitsFromConfig(cfg config.SLAConfig) domainalert.SLALimits {
	return domainalert.DefaultSLALimits().Merge(domainalert.SLALimits{
		domainalert.SeverityCritical: cfg.CriticalDays,
		domainalert.SeverityHigh:     cfg.HighDays,
		domainalert.SeverityMedium:   cfg.MediumDays,
		domainalert.SeverityLow:      cfg.LowDays,
		domainalert.SeverityUnknown:  cfg.UnknownDays,
	})
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportTrendCmd)
	reportCmd.AddCommand(reportMTTRCmd)
	reportCmd.AddCommand(reportSLACmd)
	reportCmd.AddCommand(reportVulnsCmd)
	reportCmd.AddCommand(reportDepsCmd)
	reportCmd.AddCommand(reportEcosystemsCmd)

	reportTrendCmd.Flags().String("repo", "", "Limit to one owner/name repository")
	reportMTTRCmd.Flags().String("repo", "", "Limit to one owner/name repository")
	reportSLACmd.Flags().String("repo", "", "Limit to one owner/name repository")
	reportSLACmd.Flags().String("policy", "", "TOML file overriding per-severity SLA limits")
}
