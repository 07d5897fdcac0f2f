package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"depwatch/internal/errs"
	"depwatch/internal/infrastructure/persistence/sqlite/model"
	"depwatch/internal/ports"
)

// AlertRepository implements ports.AlertRepository with gorm. Write methods
// participate in a surrounding transaction when one is present in context.
type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *AlertRepository) ListAlerts(ctx context.Context, repo string) ([]ports.AlertRecord, error) {
	return r.listAlerts(ctx, repo, false)
}

func (r *AlertRepository) ListOpenAlerts(ctx context.Context, repo string) ([]ports.AlertRecord, error) {
	return r.listAlerts(ctx, repo, true)
}

func (r *AlertRepository) listAlerts(ctx context.Context, repo string, openOnly bool) ([]ports.AlertRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Alert{})
	if repo = strings.TrimSpace(repo); repo != "" {
		query = query.Where("repo = ?", repo)
	}
	if openOnly {
		query = query.Where("state = ?", "open")
	}

	var rows []model.Alert
	if err := query.Order("repo asc, alert_number asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query alerts")
	}

	items := make([]ports.AlertRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapAlert(row))
	}
	return items, nil
}

func (r *AlertRepository) GetRepoSync(ctx context.Context, repo string) (ports.RepoSync, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.RepoSync{}, false, err
	}

	var row model.RepoSync
	if err := db.Where("repo = ?", repo).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.RepoSync{}, false, nil
		}
		return ports.RepoSync{}, false, errs.Wrap(err, "query repo sync")
	}

	return ports.RepoSync{Repo: row.Repo, LastSync: row.LastSync}, true, nil
}

func (r *AlertRepository) ListRepoSyncs(ctx context.Context) ([]ports.RepoSync, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.RepoSync
	if err := db.Order("repo asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query repo syncs")
	}

	items := make([]ports.RepoSync, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.RepoSync{Repo: row.Repo, LastSync: row.LastSync})
	}
	return items, nil
}

func (r *AlertRepository) ListHistory(ctx context.Context, repo string) ([]ports.HistoryRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.AlertHistory{})
	if repo = strings.TrimSpace(repo); repo != "" {
		query = query.Where("repo = ?", repo)
	}

	var rows []model.AlertHistory
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query alert history")
	}

	items := make([]ports.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.HistoryRecord{
			ID:          row.ID,
			Repo:        row.Repo,
			AlertNumber: row.AlertNumber,
			State:       row.State,
			Severity:    row.Severity,
			RecordedAt:  row.RecordedAt,
			RawJSON:     row.RawJSON,
		})
	}
	return items, nil
}

func (r *AlertRepository) UpsertAlert(ctx context.Context, record ports.AlertRecord) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.Alert{
		Repo:            record.Repo,
		AlertNumber:     record.AlertNumber,
		State:           record.State,
		Severity:        record.Severity,
		PackageName:     record.PackageName,
		ManifestPath:    record.ManifestPath,
		Ecosystem:       record.Ecosystem,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
		DismissedAt:     record.DismissedAt,
		FixedAt:         record.FixedAt,
		HTMLURL:         record.HTMLURL,
		AdvisoryID:      record.AdvisoryID,
		CVEID:           record.CVEID,
		AdvisorySummary: record.AdvisorySummary,
		CVSSScore:       record.CVSSScore,
		PatchedVersion:  record.PatchedVersion,
		RawJSON:         record.RawJSON,
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "repo"}, {Name: "alert_number"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert alert")
	}
	return nil
}

func (r *AlertRepository) AppendHistory(ctx context.Context, input ports.HistoryAppend) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.AlertHistory{
		Repo:        input.Repo,
		AlertNumber: input.AlertNumber,
		State:       input.State,
		Severity:    input.Severity,
		RecordedAt:  input.RecordedAt,
		RawJSON:     input.RawJSON,
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "append alert history")
	}
	return nil
}

func (r *AlertRepository) UpsertRepoSync(ctx context.Context, repo string, lastSync string) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.RepoSync{Repo: repo, LastSync: lastSync}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "repo"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_sync"}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert repo sync")
	}
	return nil
}

func (r *AlertRepository) DeleteRepoData(ctx context.Context, repo string) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := db.Where("repo = ?", repo).Delete(&model.AlertHistory{}).Error; err != nil {
		return errs.Wrap(err, "delete alert history")
	}
	if err := db.Where("repo = ?", repo).Delete(&model.Alert{}).Error; err != nil {
		return errs.Wrap(err, "delete alerts")
	}
	if err := db.Where("repo = ?", repo).Delete(&model.RepoSync{}).Error; err != nil {
		return errs.Wrap(err, "delete repo sync")
	}
	return nil
}

func (r *AlertRepository) DeleteAllData(ctx context.Context) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := db.Where("1 = 1").Delete(&model.AlertHistory{}).Error; err != nil {
		return errs.Wrap(err, "clear alert history")
	}
	if err := db.Where("1 = 1").Delete(&model.Alert{}).Error; err != nil {
		return errs.Wrap(err, "clear alerts")
	}
	if err := db.Where("1 = 1").Delete(&model.RepoSync{}).Error; err != nil {
		return errs.Wrap(err, "clear repo sync")
	}
	return nil
}

func mapAlert(row model.Alert) ports.AlertRecord {
	return ports.AlertRecord{
		Repo:            row.Repo,
		AlertNumber:     row.AlertNumber,
		State:           row.State,
		Severity:        row.Severity,
		PackageName:     row.PackageName,
		ManifestPath:    row.ManifestPath,
		Ecosystem:       row.Ecosystem,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		DismissedAt:     row.DismissedAt,
		FixedAt:         row.FixedAt,
		HTMLURL:         row.HTMLURL,
		AdvisoryID:      row.AdvisoryID,
		CVEID:           row.CVEID,
		AdvisorySummary: row.AdvisorySummary,
		CVSSScore:       row.CVSSScore,
		PatchedVersion:  row.PatchedVersion,
		RawJSON:         row.RawJSON,
	}
}
