package alert

import (
	"encoding/json"
	"strings"
	"time"
)

// rawAlert is a best-effort projection of a Dependabot alert payload. The
// provider schema drifts, so every field is optional and nothing fails
// closed; the verbatim payload stays on Alert.RawJSON.
type rawAlert struct {
	Number      *int    `json:"number"`
	State       *string `json:"state"`
	HTMLURL     *string `json:"html_url"`
	CreatedAt   *string `json:"created_at"`
	UpdatedAt   *string `json:"updated_at"`
	DismissedAt *string `json:"dismissed_at"`
	FixedAt     *string `json:"fixed_at"`

	Dependency *struct {
		Package *struct {
			Name      *string `json:"name"`
			Ecosystem *string `json:"ecosystem"`
		} `json:"package"`
		ManifestPath *string `json:"manifest_path"`
	} `json:"dependency"`

	SecurityAdvisory *struct {
		GHSAID   *string `json:"ghsa_id"`
		CVEID    *string `json:"cve_id"`
		Summary  *string `json:"summary"`
		Severity *string `json:"severity"`
		CVSS     *struct {
			Score *float64 `json:"score"`
		} `json:"cvss"`
	} `json:"security_advisory"`

	SecurityVulnerability *struct {
		Severity            *string `json:"severity"`
		FirstPatchedVersion *struct {
			Identifier *string `json:"identifier"`
		} `json:"first_patched_version"`
	} `json:"security_vulnerability"`
}

// Normalize maps one opaque provider record into a canonical Alert. It never
// fails: a payload that cannot be interpreted still yields an Alert with
// unknown state and severity and the raw bytes preserved.
func Normalize(repo string, raw json.RawMessage) Alert {
	out := Alert{
		Repo:     repo,
		State:    StateUnknown,
		Severity: SeverityUnknown,
		RawJSON:  append(json.RawMessage(nil), raw...),
	}

	var parsed rawAlert
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return out
	}

	if parsed.Number != nil {
		out.Number = *parsed.Number
	}
	if parsed.State != nil {
		out.State = NormalizeState(*parsed.State)
	}
	out.HTMLURL = cleanString(parsed.HTMLURL)
	out.CreatedAt = parseTime(parsed.CreatedAt)
	out.UpdatedAt = parseTime(parsed.UpdatedAt)
	out.DismissedAt = parseTime(parsed.DismissedAt)
	out.FixedAt = parseTime(parsed.FixedAt)

	if dep := parsed.Dependency; dep != nil {
		if pkg := dep.Package; pkg != nil {
			out.PackageName = cleanString(pkg.Name)
			out.Ecosystem = cleanString(pkg.Ecosystem)
		}
		out.ManifestPath = cleanString(dep.ManifestPath)
	}

	if adv := parsed.SecurityAdvisory; adv != nil {
		out.AdvisoryID = cleanString(adv.GHSAID)
		out.CVEID = cleanString(adv.CVEID)
		out.AdvisorySummary = cleanString(adv.Summary)
		if adv.CVSS != nil && adv.CVSS.Score != nil {
			score := *adv.CVSS.Score
			out.CVSSScore = &score
		}
	}

	// Severity priority: advisory first, then the vulnerability entry.
	severitySource := ""
	if adv := parsed.SecurityAdvisory; adv != nil && adv.Severity != nil {
		severitySource = *adv.Severity
	} else if vuln := parsed.SecurityVulnerability; vuln != nil && vuln.Severity != nil {
		severitySource = *vuln.Severity
	}
	out.Severity = NormalizeSeverity(severitySource)

	if vuln := parsed.SecurityVulnerability; vuln != nil && vuln.FirstPatchedVersion != nil {
		out.PatchedVersion = cleanString(vuln.FirstPatchedVersion.Identifier)
	}

	return out
}

func cleanString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func parseTime(value *string) *time.Time {
	if value == nil {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*value))
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}
