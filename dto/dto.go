package dto

import (
	"time"

	"github.com/google/uuid"
	"record-sync/constant"
)

// RawRecording is what every source adapter produces before ingestion.
type RawRecording struct {
	Filename      string          `json:"filename"`
	SourcePath    string          `json:"sourcePath"`
	CallTime      time.Time       `json:"callTime"`
	ContactNumber string          `json:"contactNumber"`
	Origin        constant.Origin `json:"origin"`
}

type RunMessage struct {
	RequestId uuid.UUID        `json:"requestId"`
	Mode      constant.RunMode `json:"mode"`
	SentAt    time.Time        `json:"sentAt"`
}

type SuccessRate struct {
	Total    int64  `json:"total"`
	Uploaded int64  `json:"uploaded"`
	Rate     string `json:"rate"`
}
