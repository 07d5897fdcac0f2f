package analytics

import (
	"context"
	"errors"
	"sort"

	domainalert "depwatch/internal/domain/alert"
	"depwatch/internal/errs"
	"depwatch/internal/ports"
)

// VulnerabilityGroup aggregates currently-open alerts sharing one advisory.
type VulnerabilityGroup struct {
	AdvisoryID      string   `json:"advisory_id"`
	CVEID           string   `json:"cve_id,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Severity        string   `json:"severity"`
	CVSSScore       *float64 `json:"cvss_score,omitempty"`
	PatchedVersion  string   `json:"patched_version,omitempty"`
	TotalAlerts     int      `json:"total_alerts"`
	AffectedRepos   int      `json:"affected_repos"`
	Repos           []string `json:"repos"`
}

// DependencyGroup aggregates currently-open alerts sharing one package.
type DependencyGroup struct {
	PackageName   string `json:"package_name"`
	Ecosystem     string `json:"ecosystem"`
	TotalAlerts   int    `json:"total_alerts"`
	AffectedRepos int    `json:"affected_repos"`
	CriticalCount int    `json:"critical_count"`
	HighCount     int    `json:"high_count"`
}

// EcosystemGroup aggregates currently-open alerts per package ecosystem.
type EcosystemGroup struct {
	Ecosystem     string `json:"ecosystem"`
	TotalAlerts   int    `json:"total_alerts"`
	AffectedRepos int    `json:"affected_repos"`
	PackageCount  int    `json:"package_count"`
}

// VulnerabilityGroups groups open alerts across all repositories by advisory
// id, falling back to CVE id; alerts carrying neither are omitted. The
// representative severity is the highest rank present in the group; CVSS and
// patched version come from the first member carrying them.
func (s *Service) VulnerabilityGroups(ctx context.Context) ([]VulnerabilityGroup, error) {
	open, err := s.openAlerts(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*VulnerabilityGroup)
	repoSets := make(map[string]map[string]struct{})
	for _, record := range open {
		key := derefOr(record.AdvisoryID, derefOr(record.CVEID, ""))
		if key == "" {
			continue
		}

		group, ok := groups[key]
		if !ok {
			group = &VulnerabilityGroup{
				AdvisoryID: key,
				Severity:   string(domainalert.SeverityUnknown),
			}
			groups[key] = group
			repoSets[key] = make(map[string]struct{})
		}

		group.TotalAlerts++
		repoSets[key][record.Repo] = struct{}{}

		severity := domainalert.NormalizeSeverity(record.Severity)
		if domainalert.Rank(severity) < domainalert.Rank(domainalert.Severity(group.Severity)) {
			group.Severity = string(severity)
		}
		if group.CVEID == "" {
			group.CVEID = derefOr(record.CVEID, "")
		}
		if group.Summary == "" {
			group.Summary = derefOr(record.AdvisorySummary, "")
		}
		if group.CVSSScore == nil && record.CVSSScore != nil {
			score := *record.CVSSScore
			group.CVSSScore = &score
		}
		if group.PatchedVersion == "" {
			group.PatchedVersion = derefOr(record.PatchedVersion, "")
		}
	}

	out := make([]VulnerabilityGroup, 0, len(groups))
	for key, group := range groups {
		repos := make([]string, 0, len(repoSets[key]))
		for repo := range repoSets[key] {
			repos = append(repos, repo)
		}
		sort.Strings(repos)
		group.Repos = repos
		group.AffectedRepos = len(repos)
		out = append(out, *group)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalAlerts != out[j].TotalAlerts {
			return out[i].TotalAlerts > out[j].TotalAlerts
		}
		return out[i].AdvisoryID < out[j].AdvisoryID
	})
	return out, nil
}

// DependencyGroups groups open alerts across all repositories by package
// name and ecosystem; alerts without a package name are omitted.
func (s *Service) DependencyGroups(ctx context.Context) ([]DependencyGroup, error) {
	open, err := s.openAlerts(ctx)
	if err != nil {
		return nil, err
	}

	type depKey struct {
		pkg       string
		ecosystem string
	}
	groups := make(map[depKey]*DependencyGroup)
	repoSets := make(map[depKey]map[string]struct{})
	for _, record := range open {
		pkg := derefOr(record.PackageName, "")
		if pkg == "" {
			continue
		}
		key := depKey{pkg: pkg, ecosystem: derefOr(record.Ecosystem, string(domainalert.SeverityUnknown))}

		group, ok := groups[key]
		if !ok {
			group = &DependencyGroup{PackageName: key.pkg, Ecosystem: key.ecosystem}
			groups[key] = group
			repoSets[key] = make(map[string]struct{})
		}

		group.TotalAlerts++
		repoSets[key][record.Repo] = struct{}{}
		switch domainalert.NormalizeSeverity(record.Severity) {
		case domainalert.SeverityCritical:
			group.CriticalCount++
		case domainalert.SeverityHigh:
			group.HighCount++
		}
	}

	out := make([]DependencyGroup, 0, len(groups))
	for key, group := range groups {
		group.AffectedRepos = len(repoSets[key])
		out = append(out, *group)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalAlerts != out[j].TotalAlerts {
			return out[i].TotalAlerts > out[j].TotalAlerts
		}
		if out[i].PackageName != out[j].PackageName {
			return out[i].PackageName < out[j].PackageName
		}
		return out[i].Ecosystem < out[j].Ecosystem
	})
	return out, nil
}

// EcosystemGroups groups open alerts across all repositories by ecosystem;
// alerts without one land in the unknown bucket.
func (s *Service) EcosystemGroups(ctx context.Context) ([]EcosystemGroup, error) {
	open, err := s.openAlerts(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*EcosystemGroup)
	repoSets := make(map[string]map[string]struct{})
	packageSets := make(map[string]map[string]struct{})
	for _, record := range open {
		key := derefOr(record.Ecosystem, string(domainalert.SeverityUnknown))

		group, ok := groups[key]
		if !ok {
			group = &EcosystemGroup{Ecosystem: key}
			groups[key] = group
			repoSets[key] = make(map[string]struct{})
			packageSets[key] = make(map[string]struct{})
		}

		group.TotalAlerts++
		repoSets[key][record.Repo] = struct{}{}
		if pkg := derefOr(record.PackageName, ""); pkg != "" {
			packageSets[key][pkg] = struct{}{}
		}
	}

	out := make([]EcosystemGroup, 0, len(groups))
	for key, group := range groups {
		group.AffectedRepos = len(repoSets[key])
		group.PackageCount = len(packageSets[key])
		out = append(out, *group)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalAlerts != out[j].TotalAlerts {
			return out[i].TotalAlerts > out[j].TotalAlerts
		}
		return out[i].Ecosystem < out[j].Ecosystem
	})
	return out, nil
}

func (s *Service) openAlerts(ctx context.Context) ([]ports.AlertRecord, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	open, err := s.repo.ListOpenAlerts(ctx, "")
	if err != nil {
		return nil, errs.Wrap(err, "load open alerts")
	}
	return open, nil
}
