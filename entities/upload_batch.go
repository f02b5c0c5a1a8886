package entities

import (
	"time"

	"github.com/google/uuid"
	"record-sync/constant"
)

type UploadBatch struct {
	ID          uuid.UUID            `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name        string               `json:"name" gorm:"type:varchar(32);not null"`
	Mode        constant.UploadMode  `json:"mode" gorm:"type:varchar(20);not null"`
	Status      constant.BatchStatus `json:"status" gorm:"type:varchar(20);not null;index:idx_upload_batches_status"`
	RecordCount int                  `json:"record_count"`
	RemotePath  *string              `json:"remote_path" gorm:"type:varchar(500)"`
	LastError   *string              `json:"last_error" gorm:"type:text"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

func (UploadBatch) TableName() string {
	return "upload_batches"
}
