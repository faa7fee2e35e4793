package model

// LastMetadata is the audit trail stored alongside each upserted row: where in
// the stream the write came from.
type LastMetadata struct {
	ConsumerSequence int64  `json:"consumer_sequence"`
	StreamSequence   int64  `json:"stream_sequence"`
	Stream           string `json:"stream"`
	Consumer         string `json:"consumer"`
	Domain           string `json:"domain"`
	MessageID        string `json:"message_id"`
	MessageSubject   string `json:"message_subject"`
	OrgID            string `json:"org_id"`
}

// MessageReceivedPayload is the gateway's message-received event body. Fields
// beyond the named ones survive verbatim in Raw and are stored for audit.
type MessageReceivedPayload struct {
	SessionID        string                 `json:"session_id" validate:"required"`
	MessageID        string                 `json:"message_id" validate:"required"`
	Jid              string                 `json:"jid" validate:"required"`
	DisplayName      string                 `json:"display_name,omitempty"`
	IsGroup          bool                   `json:"is_group,omitempty"`
	Flow             string                 `json:"flow,omitempty" validate:"omitempty,oneof=IN OUT"`
	MessageType      string                 `json:"message_type,omitempty"`
	MessageText      string                 `json:"message_text,omitempty"`
	Ack              string                 `json:"ack,omitempty" validate:"omitempty,oneof=pending sent delivered read played"`
	HasMedia         bool                   `json:"has_media,omitempty"`
	MediaURL         string                 `json:"media_url,omitempty"`
	ReplyToID        string                 `json:"reply_to_id,omitempty"`
	MessageTimestamp int64                  `json:"message_timestamp,omitempty"`
	OrgID            string                 `json:"org_id,omitempty"`
	Raw              map[string]interface{} `json:"raw,omitempty"`
}

// AckUpdatePayload is the gateway's delivery/read progress event body.
type AckUpdatePayload struct {
	SessionID string `json:"session_id" validate:"required"`
	MessageID string `json:"message_id" validate:"required"`
	Ack       string `json:"ack" validate:"required,oneof=pending sent delivered read played"`
	OrgID     string `json:"org_id,omitempty"`
}

// ContactUpdatePayload is the gateway's contact metadata event body.
type ContactUpdatePayload struct {
	SessionID   string `json:"session_id" validate:"required"`
	Jid         string `json:"jid" validate:"required"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	IsGroup     bool   `json:"is_group,omitempty"`
	OrgID       string `json:"org_id,omitempty"`
}

// ConnectionUpdatePayload is the gateway's session connectivity event body.
type ConnectionUpdatePayload struct {
	SessionID string `json:"session_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=disconnected connecting connected failed"`
	OrgID     string `json:"org_id,omitempty"`
}

// HistoryPage is one page of a paged history fetch from the gateway.
type HistoryPage struct {
	Messages   []MessageReceivedPayload `json:"messages"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}
