package entities

import (
	"time"

	"record-sync/constant"
)

type Recording struct {
	ID            int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	Filename      string          `json:"filename" gorm:"type:varchar(255);not null;uniqueIndex:uniq_records_filename"`
	SourcePath    string          `json:"source_path" gorm:"type:varchar(500);not null"`
	CallTime      time.Time       `json:"call_time" gorm:"not null;index:idx_records_call_time"`
	ContactNumber string          `json:"contact_number" gorm:"type:varchar(64);index:idx_records_contact_number"`
	Origin        constant.Origin `json:"origin_tag" gorm:"column:origin_tag;type:varchar(32)"`
	CaseId        *string         `json:"case_id" gorm:"type:varchar(128)"`
	ProductName   *string         `json:"product_name" gorm:"type:varchar(255)"`
	UploadTime    *time.Time      `json:"upload_time"`
	Mark          *string         `json:"mark" gorm:"type:varchar(64)"`
}

func (Recording) TableName() string {
	return "records"
}
