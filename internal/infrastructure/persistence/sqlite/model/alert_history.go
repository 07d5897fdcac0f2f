package model

// AlertHistory rows are append-only; insertion order (ID) is the event
// order.
type AlertHistory struct {
	ID          uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Repo        string `gorm:"column:repo;type:text;not null;index:idx_alert_history_repo_number,priority:1"`
	AlertNumber int    `gorm:"column:alert_number;not null;index:idx_alert_history_repo_number,priority:2"`
	State       string `gorm:"column:state;type:text;not null"`
	Severity    string `gorm:"column:severity;type:text;not null"`
	RecordedAt  string `gorm:"column:recorded_at;type:text;not null"`
	RawJSON     string `gorm:"column:raw_json;type:text;not null"`
}

func (AlertHistory) TableName() string {
	return "alert_history"
}
