package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Session connectivity statuses, driven by gateway connection-update events.
const (
	SessionStatusDisconnected = "disconnected"
	SessionStatusConnecting   = "connecting"
	SessionStatusConnected    = "connected"
	SessionStatusFailed       = "failed"
)

// Session is one externally connected WhatsApp line whose messages the system
// archives. LastMessageTS is the sync watermark; only the ingestion pipeline
// advances it.
type Session struct {
	ID            string         `json:"id" gorm:"primaryKey;type:text"`
	ExternalID    string         `json:"external_id" gorm:"column:external_id;uniqueIndex;type:text" validate:"required"`
	Status        string         `json:"status,omitempty" gorm:"column:status" validate:"omitempty,oneof=disconnected connecting connected failed"`
	AdminID       string         `json:"admin_id" gorm:"column:admin_id;index;type:text" validate:"required"`
	PhoneNumber   string         `json:"phone_number,omitempty" gorm:"column:phone_number"`
	Label         string         `json:"label,omitempty" gorm:"type:text"`
	OrgID         string         `json:"org_id,omitempty" gorm:"column:org_id"`
	LastMessageTS int64          `json:"last_message_ts,omitempty" gorm:"column:last_message_ts"`
	LastMetadata  datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
	CreatedAt     time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM, respecting the Namer.
func (Session) TableName(namer schema.Namer) string {
	return namer.TableName("sessions")
}

// SessionUpdateColumns returns the columns an upsert may overwrite.
// Excludes primary key, external_id, admin_id, org_id and created_at.
func SessionUpdateColumns() []string {
	return []string{
		"status",
		"phone_number",
		"label",
		"last_metadata",
		"updated_at",
	}
}

// ValidSessionStatus reports whether s is a known connectivity status.
func ValidSessionStatus(s string) bool {
	switch s {
	case SessionStatusDisconnected, SessionStatusConnecting, SessionStatusConnected, SessionStatusFailed:
		return true
	}
	return false
}
