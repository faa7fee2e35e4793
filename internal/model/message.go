package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

const (
	MessageFlowIncoming = "IN"
	MessageFlowOutgoing = "OUT"
)

// Acknowledgement states in their fixed total order. A stored message's ack only
// ever moves forward through this order; late or duplicated gateway updates that
// would move it backward are discarded.
const (
	AckPending   = "pending"
	AckSent      = "sent"
	AckDelivered = "delivered"
	AckRead      = "read"
	AckPlayed    = "played"
)

// AckRank maps an ack state to its position in the total order. Unknown states
// rank below pending so they can never overwrite real progress.
func AckRank(ack string) int {
	switch ack {
	case AckPending:
		return 0
	case AckSent:
		return 1
	case AckDelivered:
		return 2
	case AckRead:
		return 3
	case AckPlayed:
		return 4
	default:
		return -1
	}
}

// Message is one archived message. Unique per (session_id, message_id); the
// MessageObj column keeps the gateway's native payload verbatim for audit.
type Message struct {
	ID               int64          `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	MessageID        string         `json:"id" gorm:"column:message_id;index"`
	SessionID        string         `json:"session_id,omitempty" gorm:"column:session_id;index"`
	ContactID        string         `json:"contact_id,omitempty" gorm:"column:contact_id;index"`
	Jid              string         `json:"jid,omitempty" gorm:"column:jid;index"`
	Flow             string         `json:"flow,omitempty" gorm:"column:flow"`
	MessageType      string         `json:"message_type,omitempty" gorm:"column:message_type"`
	MessageText      string         `json:"message_text,omitempty" gorm:"column:message_text"`
	Ack              string         `json:"ack,omitempty" gorm:"column:ack"`
	HasMedia         bool           `json:"has_media,omitempty" gorm:"column:has_media;default:false"`
	MediaURL         string         `json:"media_url,omitempty" gorm:"column:media_url"`
	ReplyToID        string         `json:"reply_to_id,omitempty" gorm:"column:reply_to_id"`
	OrgID            string         `json:"org_id,omitempty" gorm:"column:org_id"`
	MessageObj       datatypes.JSON `json:"message_obj,omitempty" gorm:"type:jsonb;column:message_obj"`
	MessageTimestamp int64          `json:"message_timestamp,omitempty" gorm:"column:message_timestamp"`
	MessageDate      time.Time      `gorm:"column:message_date;type:date;not null"`
	CreatedAt        time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
	LastMetadata     datatypes.JSON `json:"last_metadata,omitempty" gorm:"type:jsonb;column:last_metadata"`
}

// TableName specifies the base table name for GORM, respecting the Namer.
func (Message) TableName(namer schema.Namer) string {
	return namer.TableName("messages")
}

// CreateTimeFromTimestamp creates a time.Time from a Unix timestamp
func CreateTimeFromTimestamp(timestamp int64) time.Time {
	if timestamp > 0 {
		return time.Unix(timestamp, 0).UTC()
	}
	return time.Time{}
}

// MessageUpdateColumns returns the columns a duplicate delivery may refresh on
// conflict. The ack column is deliberately absent: ack advancement goes through
// the monotonic update path, never a blind overwrite.
func MessageUpdateColumns() []string {
	return []string{
		"message_text", "message_type", "media_url", "last_metadata", "updated_at",
	}
}
