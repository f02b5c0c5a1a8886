package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"record-sync/constant"
	"record-sync/entities"
)

type RecordingRepository interface {
	Transaction(ctx context.Context, callback func(repo RecordingRepository) error) error
	GetDB() *gorm.DB
	Migrate(ctx context.Context) error

	ExistsByFilename(ctx context.Context, filename string) (bool, error)
	InsertRecording(ctx context.Context, recording *entities.Recording) (bool, error)
	FindUnmatched(ctx context.Context, cutoff *time.Time) ([]*entities.Recording, error)
	FindPendingUpload(ctx context.Context) ([]*entities.Recording, error)
	UpdateRecordingField(ctx context.Context, id int64, field string, value any) error
	AssignCase(ctx context.Context, id int64, caseId, productName string) error
	MarkUploaded(ctx context.Context, ids []int64, uploadedAt time.Time, mark *string) error
	CountByCallTime(ctx context.Context, start, end time.Time) (total int64, uploaded int64, err error)

	CreateBatch(ctx context.Context, batch *entities.UploadBatch) error
	UpdateBatchStatus(ctx context.Context, id uuid.UUID, status constant.BatchStatus, remotePath, lastError *string) error
}

// updatableFields lists the lifecycle columns UpdateRecordingField may touch.
var updatableFields = map[string]struct{}{
	"case_id":      {},
	"product_name": {},
	"upload_time":  {},
	"mark":         {},
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) RecordingRepository {
	return &repo{
		db: db,
	}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) Transaction(ctx context.Context, callback func(repo RecordingRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(&repo{db: tx})
	})
}

func (r *repo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&entities.Recording{}, &entities.UploadBatch{})
}

func (r *repo) ExistsByFilename(ctx context.Context, filename string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Recording{}).Where("filename = ?", filename).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertRecording reports false when the unique filename index rejected the row.
func (r *repo) InsertRecording(ctx context.Context, recording *entities.Recording) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "filename"}}, DoNothing: true}).
		Create(recording)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindUnmatched returns recordings without a case and without a mark. A nil
// cutoff selects regardless of call time.
func (r *repo) FindUnmatched(ctx context.Context, cutoff *time.Time) ([]*entities.Recording, error) {
	var recordings []*entities.Recording
	query := r.db.WithContext(ctx).Where("case_id IS NULL AND mark IS NULL")
	if cutoff != nil {
		query = query.Where("call_time <= ?", *cutoff)
	}
	err := query.Order("id ASC").Find(&recordings).Error
	if err != nil {
		return nil, err
	}
	return recordings, nil
}

func (r *repo) FindPendingUpload(ctx context.Context) ([]*entities.Recording, error) {
	var recordings []*entities.Recording
	err := r.db.WithContext(ctx).
		Where("case_id IS NOT NULL AND upload_time IS NULL").
		Order("id ASC").
		Find(&recordings).Error
	if err != nil {
		return nil, err
	}
	return recordings, nil
}

func (r *repo) UpdateRecordingField(ctx context.Context, id int64, field string, value any) error {
	if _, ok := updatableFields[field]; !ok {
		return fmt.Errorf("field %q is not updatable", field)
	}
	return r.db.WithContext(ctx).Model(&entities.Recording{}).Where("id = ?", id).Update(field, value).Error
}

func (r *repo) AssignCase(ctx context.Context, id int64, caseId, productName string) error {
	return r.Transaction(ctx, func(tx RecordingRepository) error {
		if err := tx.UpdateRecordingField(ctx, id, "case_id", caseId); err != nil {
			return err
		}
		return tx.UpdateRecordingField(ctx, id, "product_name", productName)
	})
}

// MarkUploaded stamps every id in one transaction; either the whole batch is
// marked or none of it.
func (r *repo) MarkUploaded(ctx context.Context, ids []int64, uploadedAt time.Time, mark *string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.Transaction(ctx, func(tx RecordingRepository) error {
		for _, id := range ids {
			if err := tx.UpdateRecordingField(ctx, id, "upload_time", uploadedAt); err != nil {
				return err
			}
			if mark == nil {
				continue
			}
			if err := tx.UpdateRecordingField(ctx, id, "mark", *mark); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repo) CountByCallTime(ctx context.Context, start, end time.Time) (int64, int64, error) {
	var total, uploaded int64
	base := r.db.WithContext(ctx).Model(&entities.Recording{}).Where("call_time >= ? AND call_time < ?", start, end)
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := base.Session(&gorm.Session{}).Where("upload_time IS NOT NULL").Count(&uploaded).Error; err != nil {
		return 0, 0, err
	}
	return total, uploaded, nil
}

func (r *repo) CreateBatch(ctx context.Context, batch *entities.UploadBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *repo) UpdateBatchStatus(ctx context.Context, id uuid.UUID, status constant.BatchStatus, remotePath, lastError *string) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if remotePath != nil {
		updates["remote_path"] = *remotePath
	}
	if lastError != nil {
		updates["last_error"] = *lastError
	}
	return r.db.WithContext(ctx).Model(&entities.UploadBatch{}).Where("id = ?", id).Updates(updates).Error
}
