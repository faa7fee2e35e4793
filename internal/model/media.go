package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// Media descriptor upload outcomes.
const (
	MediaUploadSuccess = "success"
	MediaUploadFailed  = "failed"
)

// MediaDescriptor records where a message's media ended up and whether the
// upload worked. One row per media-carrying message, written by the media
// worker pool after the message upsert.
type MediaDescriptor struct {
	ID           string    `json:"id" gorm:"primaryKey;type:text"`
	MessageID    string    `json:"message_id" gorm:"column:message_id;uniqueIndex;type:text" validate:"required"`
	SessionID    string    `json:"session_id,omitempty" gorm:"column:session_id;index;type:text"`
	StoragePath  string    `json:"storage_path,omitempty" gorm:"column:storage_path;type:text"`
	UploadStatus string    `json:"upload_status,omitempty" gorm:"column:upload_status" validate:"omitempty,oneof=success failed"`
	FailReason   string    `json:"fail_reason,omitempty" gorm:"column:fail_reason;type:text"`
	OrgID        string    `json:"org_id,omitempty" gorm:"column:org_id"`
	CreatedAt    time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM, respecting the Namer.
func (MediaDescriptor) TableName(namer schema.Namer) string {
	return namer.TableName("media_descriptors")
}

// MediaDescriptorUpdateColumns returns the columns an upsert may overwrite.
func MediaDescriptorUpdateColumns() []string {
	return []string{
		"storage_path",
		"upload_status",
		"fail_reason",
		"updated_at",
	}
}
