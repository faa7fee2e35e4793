package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// Contact is one conversation partner (person or group) on a session. Created
// lazily on the first inbound or outbound message, updated on contact events,
// never deleted.
type Contact struct {
	ID           string         `json:"id" gorm:"primaryKey;type:text"`
	SessionID    string         `json:"session_id" gorm:"column:session_id;uniqueIndex:idx_contacts_session_jid;type:text" validate:"required"`
	Jid          string         `json:"jid" gorm:"column:jid;uniqueIndex:idx_contacts_session_jid;type:text" validate:"required"`
	DisplayName  string         `json:"display_name,omitempty" gorm:"column:display_name;type:text"`
	Avatar       string         `json:"avatar,omitempty" gorm:"type:text"`
	IsGroup      bool           `json:"is_group,omitempty" gorm:"column:is_group"`
	OrgID        string         `json:"org_id,omitempty" gorm:"column:org_id"`
	LastMetadata datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
	CreatedAt    time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM, respecting the Namer.
func (Contact) TableName(namer schema.Namer) string {
	return namer.TableName("contacts")
}

// ContactUpdateColumns returns the columns an upsert may overwrite on conflict.
func ContactUpdateColumns() []string {
	return []string{
		"display_name",
		"avatar",
		"is_group",
		"last_metadata",
		"updated_at",
	}
}
