package model

// Alert is the current-state row for one (repo, alert_number) pair.
// Timestamps are RFC3339 UTC text.
type Alert struct {
	Repo        string `gorm:"column:repo;type:text;primaryKey"`
	AlertNumber int    `gorm:"column:alert_number;primaryKey"`

	State    string `gorm:"column:state;type:text;not null"`
	Severity string `gorm:"column:severity;type:text;not null"`

	PackageName  *string `gorm:"column:package_name;type:text"`
	ManifestPath *string `gorm:"column:manifest_path;type:text"`
	Ecosystem    *string `gorm:"column:ecosystem;type:text"`

	CreatedAt   *string `gorm:"column:created_at;type:text"`
	UpdatedAt   *string `gorm:"column:updated_at;type:text"`
	DismissedAt *string `gorm:"column:dismissed_at;type:text"`
	FixedAt     *string `gorm:"column:fixed_at;type:text"`

	HTMLURL         *string  `gorm:"column:html_url;type:text"`
	AdvisoryID      *string  `gorm:"column:advisory_id;type:text"`
	CVEID           *string  `gorm:"column:cve_id;type:text"`
	AdvisorySummary *string  `gorm:"column:advisory_summary;type:text"`
	CVSSScore       *float64 `gorm:"column:cvss_score"`
	PatchedVersion  *string  `gorm:"column:patched_version;type:text"`

	RawJSON string `gorm:"column:raw_json;type:text;not null"`
}

func (Alert) TableName() string {
	return "alerts"
}
