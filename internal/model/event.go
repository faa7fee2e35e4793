package model

import (
	"strings"
	"time"
)

// EventType represents different types of gateway events
type EventType string

// Gateway event subjects. The org ID is appended as the final token on the
// wire (e.g. "v1.messages.received.org-a"); routing strips it back off.
const (
	V1MessagesReceived EventType = "v1.messages.received"
	V1MessagesAck      EventType = "v1.messages.ack"
	V1ContactsUpdate   EventType = "v1.contacts.update"
	V1ConnectionUpdate EventType = "v1.connection.update"
)

// MapToBaseEventType attempts to map an input subject (potentially carrying a
// trailing org token) back to a known base EventType constant. It returns the
// mapped EventType and true, or an empty EventType and false when no mapping
// is found.
func MapToBaseEventType(input string) (EventType, bool) {
	// Direct match first, in case the input is already the base subject.
	switch EventType(input) {
	case V1MessagesReceived, V1MessagesAck, V1ContactsUpdate, V1ConnectionUpdate:
		return EventType(input), true
	}

	// Otherwise strip the last dot-separated token and retry.
	lastDotIndex := strings.LastIndex(input, ".")
	if lastDotIndex <= 0 {
		return "", false
	}

	base := input[:lastDotIndex]
	switch EventType(base) {
	case V1MessagesReceived:
		return V1MessagesReceived, true
	case V1MessagesAck:
		return V1MessagesAck, true
	case V1ContactsUpdate:
		return V1ContactsUpdate, true
	case V1ConnectionUpdate:
		return V1ConnectionUpdate, true
	default:
		return "", false
	}
}

// MessageMetadata carries delivery bookkeeping for one consumed NATS message.
type MessageMetadata struct {
	ConsumerSequence uint64
	StreamSequence   uint64
	NumDelivered     uint64
	NumPending       uint64
	Timestamp        time.Time
	Stream           string
	Consumer         string
	Domain           string
	MessageID        string
	MessageSubject   string
	OrgID            string
}

// ToLastMetadata converts MessageMetadata to LastMetadata
func (e MessageMetadata) ToLastMetadata() *LastMetadata {
	return &LastMetadata{
		ConsumerSequence: int64(e.ConsumerSequence),
		StreamSequence:   int64(e.StreamSequence),
		Stream:           e.Stream,
		Consumer:         e.Consumer,
		Domain:           e.Domain,
		MessageID:        e.MessageID,
		MessageSubject:   e.MessageSubject,
		OrgID:            e.OrgID,
	}
}

// GetVersion extracts the version from an event type.
// Returns the version string (e.g., "v1") or an empty string if no version specified
func (e EventType) GetVersion() string {
	parts := strings.SplitN(string(e), ".", 2)
	if len(parts) < 2 {
		return ""
	}
	if len(parts[0]) >= 2 && parts[0][0] == 'v' {
		return parts[0]
	}
	return ""
}

// GetBaseType strips the version prefix from an event type.
func (e EventType) GetBaseType() EventType {
	version := e.GetVersion()
	if version == "" {
		return e
	}
	return EventType(strings.TrimPrefix(string(e), version+"."))
}
