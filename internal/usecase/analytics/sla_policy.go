package analytics

import (
	"errors"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	domainalert "depwatch/internal/domain/alert"
	"depwatch/internal/errs"
)

// slaPolicyFile is the on-disk TOML shape for SLA limit overrides:
//
//	critical_days = 1
//	high_days = 5
type slaPolicyFile struct {
	CriticalDays float64 `toml:"critical_days"`
	HighDays     float64 `toml:"high_days"`
	MediumDays   float64 `toml:"medium_days"`
	LowDays      float64 `toml:"low_days"`
	UnknownDays  float64 `toml:"unknown_days"`
}

// LoadSLAPolicy reads a TOML policy file and overlays its non-zero entries
// on the defaults.
func LoadSLAPolicy(path string) (domainalert.SLALimits, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("policy path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrapf(err, "read sla policy %q", path)
	}

	var policy slaPolicyFile
	if err := toml.Unmarshal(data, &policy); err != nil {
		return nil, errs.Wrapf(err, "parse sla policy %q", path)
	}

	return domainalert.DefaultSLALimits().Merge(domainalert.SLALimits{
		domainalert.SeverityCritical: policy.CriticalDays,
		domainalert.SeverityHigh:     policy.HighDays,
		domainalert.SeverityMedium:   policy.MediumDays,
		domainalert.SeverityLow:      policy.LowDays,
		domainalert.SeverityUnknown:  policy.UnknownDays,
	}), nil
}
