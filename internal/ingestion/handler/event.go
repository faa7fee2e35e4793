package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
)

// ArchiveService defines the slice of the service layer the handler drives.
type ArchiveService interface {
	UpsertMessage(ctx context.Context, payload model.MessageReceivedPayload, metadata *model.LastMetadata) error
	ApplyAck(ctx context.Context, payload model.AckUpdatePayload, metadata *model.LastMetadata) error
	UpsertContact(ctx context.Context, payload model.ContactUpdatePayload, metadata *model.LastMetadata) error
	UpdateConnectionStatus(ctx context.Context, payload model.ConnectionUpdatePayload, metadata *model.LastMetadata) error
}

// EventHandler decodes gateway events and dispatches them to the service.
type EventHandler struct {
	service ArchiveService
}

// NewEventHandler creates a new gateway event handler
func NewEventHandler(service ArchiveService) *EventHandler {
	return &EventHandler{service: service}
}

// HandleEvent processes one gateway event
func (h *EventHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	requestID := uuid.NewString()
	ctx = tenant.WithRequestID(ctx, requestID)

	log := logger.FromContext(ctx)
	log.Info("Processing gateway event", zap.String("type", string(eventType)))

	lastMetadata := metadata.ToLastMetadata()
	var err error
	switch eventType {
	case model.V1MessagesReceived:
		err = h.handleMessageReceived(ctx, lastMetadata, rawEvent)
	case model.V1MessagesAck:
		err = h.handleAckUpdate(ctx, lastMetadata, rawEvent)
	case model.V1ContactsUpdate:
		err = h.handleContactUpdate(ctx, lastMetadata, rawEvent)
	case model.V1ConnectionUpdate:
		err = h.handleConnectionUpdate(ctx, lastMetadata, rawEvent)
	default:
		unsupportedErr := fmt.Errorf("unsupported event type: %s", eventType)
		log.Error("Unsupported event type", zap.String("eventType", string(eventType)))
		err = apperrors.NewFatal(unsupportedErr, "unsupported event type")
	}
	return err
}

func (h *EventHandler) handleMessageReceived(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	var payload model.MessageReceivedPayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal message received payload", zap.Error(err))
		return apperrors.NewFatal(err, "failed to unmarshal message received payload")
	}

	if payload.OrgID == "" {
		payload.OrgID = metadata.OrgID
	}

	// Unknown fields ride along for audit storage.
	if payload.Raw == nil {
		var raw map[string]interface{}
		if err := json.Unmarshal(rawEvent, &raw); err == nil {
			payload.Raw = raw
		}
	}

	log.Info("Processing message received",
		zap.String("message_id", payload.MessageID),
		zap.String("nats_message_id", metadata.MessageID))
	return h.service.UpsertMessage(ctx, payload, metadata)
}

func (h *EventHandler) handleAckUpdate(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	var payload model.AckUpdatePayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal ack update payload", zap.Error(err))
		return apperrors.NewFatal(err, "failed to unmarshal ack update payload")
	}

	if payload.OrgID == "" {
		payload.OrgID = metadata.OrgID
	}

	log.Info("Processing ack update",
		zap.String("message_id", payload.MessageID),
		zap.String("ack", payload.Ack))
	return h.service.ApplyAck(ctx, payload, metadata)
}

func (h *EventHandler) handleContactUpdate(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	var payload model.ContactUpdatePayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal contact update payload", zap.Error(err))
		return apperrors.NewFatal(err, "failed to unmarshal contact update payload")
	}

	if payload.OrgID == "" {
		payload.OrgID = metadata.OrgID
	}

	log.Info("Processing contact update",
		zap.String("session_id", payload.SessionID),
		zap.String("jid", payload.Jid))
	return h.service.UpsertContact(ctx, payload, metadata)
}

func (h *EventHandler) handleConnectionUpdate(ctx context.Context, metadata *model.LastMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	var payload model.ConnectionUpdatePayload
	if err := json.Unmarshal(rawEvent, &payload); err != nil {
		log.Error("Failed to unmarshal connection update payload", zap.Error(err))
		return apperrors.NewFatal(err, "failed to unmarshal connection update payload")
	}

	if payload.OrgID == "" {
		payload.OrgID = metadata.OrgID
	}

	log.Info("Processing connection update",
		zap.String("session_id", payload.SessionID),
		zap.String("status", payload.Status))
	return h.service.UpdateConnectionStatus(ctx, payload, metadata)
}
