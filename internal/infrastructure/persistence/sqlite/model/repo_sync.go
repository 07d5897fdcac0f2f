package model

type RepoSync struct {
	Repo     string `gorm:"column:repo;type:text;primaryKey"`
	LastSync string `gorm:"column:last_sync;type:text;not null"`
}

func (RepoSync) TableName() string {
	return "repo_sync"
}
