package model

import (
	"encoding/json"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/utils"
)

// RandomJSONB generates random JSON data for testing.
func RandomJSONB() datatypes.JSON {
	jsonData := map[string]interface{}{
		"fake_key": gofakeit.Word(),
		"fake_num": gofakeit.Number(1, 100),
	}
	bytes, _ := json.Marshal(jsonData)
	return datatypes.JSON(bytes)
}

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewSession creates a Session with default fake data, applying any overrides.
func NewSession(override func(*Session)) *Session {
	s := &Session{
		ID:         uuid.NewString(),
		ExternalID: "line-" + gofakeit.LetterN(8),
		Status:     SessionStatusConnected,
		AdminID:    uuid.NewString(),
		OrgID:      "org_" + gofakeit.LetterN(10),
		Label:      gofakeit.Company(),
		CreatedAt:  utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:  utils.Now(),
	}
	if override != nil {
		override(s)
	}
	return s
}

// NewContact creates a Contact with default fake data, applying any overrides.
func NewContact(override func(*Contact)) *Contact {
	c := &Contact{
		ID:          uuid.NewString(),
		SessionID:   uuid.NewString(),
		Jid:         gofakeit.Phone() + "@s.whatsapp.net",
		DisplayName: gofakeit.Name(),
		OrgID:       "org_" + gofakeit.LetterN(10),
		CreatedAt:   utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:   utils.Now(),
	}
	if override != nil {
		override(c)
	}
	return c
}

// NewMessage creates a Message with default fake data, applying any overrides.
func NewMessage(override func(*Message)) *Message {
	ts := utils.Now().Add(-time.Duration(gofakeit.Number(1, 10000)) * time.Minute)
	m := &Message{
		MessageID:        "wamid." + gofakeit.LetterN(22),
		SessionID:        uuid.NewString(),
		ContactID:        uuid.NewString(),
		Jid:              gofakeit.Phone() + "@s.whatsapp.net",
		Flow:             gofakeit.RandomString([]string{MessageFlowIncoming, MessageFlowOutgoing}),
		MessageType:      "text",
		MessageText:      gofakeit.Sentence(6),
		Ack:              AckPending,
		OrgID:            "org_" + gofakeit.LetterN(10),
		MessageObj:       RandomJSONB(),
		MessageTimestamp: ts.Unix(),
		MessageDate:      ts.Truncate(24 * time.Hour),
		CreatedAt:        ts,
		UpdatedAt:        utils.Now(),
	}
	if override != nil {
		override(m)
	}
	return m
}

// NewAckUpdatePayload creates a gateway ack event payload with fake data.
func NewAckUpdatePayload(override func(*AckUpdatePayload)) *AckUpdatePayload {
	p := &AckUpdatePayload{
		SessionID: uuid.NewString(),
		MessageID: "wamid." + gofakeit.LetterN(22),
		Ack:       gofakeit.RandomString([]string{AckSent, AckDelivered, AckRead}),
	}
	if override != nil {
		override(p)
	}
	return p
}

// NewContactUpdatePayload creates a gateway contact event payload with fake data.
func NewContactUpdatePayload(override func(*ContactUpdatePayload)) *ContactUpdatePayload {
	p := &ContactUpdatePayload{
		SessionID:   uuid.NewString(),
		Jid:         gofakeit.Phone() + "@s.whatsapp.net",
		DisplayName: gofakeit.Name(),
		Avatar:      gofakeit.URL(),
	}
	if override != nil {
		override(p)
	}
	return p
}

// NewConnectionUpdatePayload creates a gateway connectivity event payload with fake data.
func NewConnectionUpdatePayload(override func(*ConnectionUpdatePayload)) *ConnectionUpdatePayload {
	p := &ConnectionUpdatePayload{
		SessionID: uuid.NewString(),
		Status:    gofakeit.RandomString([]string{SessionStatusConnected, SessionStatusDisconnected, SessionStatusConnecting}),
	}
	if override != nil {
		override(p)
	}
	return p
}

// NewMessageReceivedPayload creates a gateway message event payload with fake data.
func NewMessageReceivedPayload(override func(*MessageReceivedPayload)) *MessageReceivedPayload {
	p := &MessageReceivedPayload{
		SessionID:        uuid.NewString(),
		MessageID:        "wamid." + gofakeit.LetterN(22),
		Jid:              gofakeit.Phone() + "@s.whatsapp.net",
		DisplayName:      gofakeit.Name(),
		Flow:             MessageFlowIncoming,
		MessageType:      "text",
		MessageText:      gofakeit.Sentence(6),
		Ack:              AckPending,
		MessageTimestamp: utils.Now().Unix(),
		Raw:              map[string]interface{}{"device": gofakeit.AppName()},
	}
	if override != nil {
		override(p)
	}
	return p
}
