package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/observer"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/validator"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/utils"
)

// handleRepositoryError maps standard apperrors from the repository layer to
// FatalError or RetryableError for the ingestion layer.
func handleRepositoryError(ctx context.Context, err error, operation string, messageID string) error {
	if err == nil {
		return nil
	}

	log := logger.FromContext(ctx)

	logFields := []zap.Field{
		zap.String("operation", operation),
		zap.Error(err),
	}
	if messageID != "" {
		logFields = append(logFields, zap.String("message_id", messageID))
	}

	// Fatal errors cannot be resolved by redelivery.
	if errors.Is(err, apperrors.ErrNotFound) {
		log.Warn("Repository operation failed: Not found", logFields...)
		return apperrors.NewFatal(err, "%s failed: resource not found", operation)
	}
	if errors.Is(err, apperrors.ErrDuplicate) {
		log.Warn("Repository operation failed: Duplicate resource", logFields...)
		return apperrors.NewFatal(err, "%s failed: duplicate resource", operation)
	}
	if errors.Is(err, apperrors.ErrBadRequest) {
		log.Warn("Repository operation failed: Bad request", logFields...)
		return apperrors.NewFatal(err, "%s failed: bad request data", operation)
	}
	if errors.Is(err, apperrors.ErrUnauthorized) {
		log.Error("Repository operation failed: Unauthorized", logFields...)
		return apperrors.NewFatal(err, "%s failed: unauthorized", operation)
	}
	if errors.Is(err, apperrors.ErrIntegrity) {
		log.Error("Repository operation failed: Data integrity violation", logFields...)
		return apperrors.NewFatal(err, "%s failed: data integrity violation", operation)
	}
	if errors.Is(err, apperrors.ErrConflict) {
		log.Warn("Repository operation failed: Conflict", logFields...)
		return apperrors.NewFatal(err, "%s failed: resource conflict", operation)
	}

	if errors.Is(err, apperrors.ErrDatabase) {
		log.Error("Repository operation failed: Database error", logFields...)
		return apperrors.NewRetryable(err, "%s failed: database error", operation)
	}
	if errors.Is(err, apperrors.ErrTimeout) {
		log.Warn("Repository operation failed: Timeout", logFields...)
		return apperrors.NewRetryable(err, "%s failed: operation timeout", operation)
	}
	if errors.Is(err, apperrors.ErrNATS) {
		log.Error("Repository operation failed: NATS error", logFields...)
		return apperrors.NewRetryable(err, "%s failed: NATS communication error", operation)
	}

	log.Error("Repository operation failed: Unexpected error", logFields...)
	return apperrors.NewFatal(err, "%s failed: unexpected repository error", operation)
}

// metadataJSONFrom serializes stream position metadata for the audit column.
func metadataJSONFrom(metadata *model.LastMetadata) datatypes.JSON {
	if metadata == nil {
		return nil
	}
	return utils.MustMarshalJSON(map[string]interface{}{
		"consumer_sequence": metadata.ConsumerSequence,
		"stream_sequence":   metadata.StreamSequence,
		"stream":            metadata.Stream,
		"consumer":          metadata.Consumer,
		"domain":            metadata.Domain,
		"message_id":        metadata.MessageID,
		"message_subject":   metadata.MessageSubject,
		"processed_at":      utils.Now(),
	})
}

// messageFromPayload builds the storage model from a gateway payload and the
// already-resolved contact.
func messageFromPayload(payload model.MessageReceivedPayload, contactID string, metadataJSON datatypes.JSON) model.Message {
	message := model.Message{
		MessageID:        payload.MessageID,
		SessionID:        payload.SessionID,
		ContactID:        contactID,
		Jid:              payload.Jid,
		Flow:             payload.Flow,
		MessageType:      payload.MessageType,
		MessageText:      payload.MessageText,
		Ack:              payload.Ack,
		HasMedia:         payload.HasMedia,
		MediaURL:         payload.MediaURL,
		ReplyToID:        payload.ReplyToID,
		OrgID:            payload.OrgID,
		MessageTimestamp: payload.MessageTimestamp,
		LastMetadata:     metadataJSON,
	}
	if message.Flow == "" {
		message.Flow = model.MessageFlowIncoming
	}
	if message.Ack == "" {
		message.Ack = model.AckPending
	}
	// Unknown payload fields survive verbatim for audit.
	if payload.Raw != nil {
		message.MessageObj = utils.MustMarshalJSON(payload.Raw)
	}
	return message
}

// UpsertMessage processes one message-received event. Duplicate delivery is a
// no-op apart from possible ack advancement; after a successful upsert the
// session watermark advances and, for media messages, a descriptor task is
// queued.
func (s *ArchiveService) UpsertMessage(ctx context.Context, payload model.MessageReceivedPayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)
	start := utils.Now()

	if err := validator.Validate(payload); err != nil {
		log.Error("Message validation failed",
			zap.String("message_id", payload.MessageID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "message validation failed")
	}

	orgID, err := tenant.FromContext(ctx)
	if err != nil || orgID == "" {
		log.Error("Failed to get tenant ID from context", zap.Error(err))
		return apperrors.NewFatal(err, "failed to get tenant ID from context")
	}
	if err := validateOrgTenant(ctx, payload.OrgID); err != nil {
		log.Error("Org validation failed for message",
			zap.String("message_id", payload.MessageID),
			zap.String("org_id", payload.OrgID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "org validation error")
	}
	payload.OrgID = orgID

	// Serialize against other events for the same conversation thread.
	key := ingestKey(payload.SessionID, payload.Jid)
	s.ingestLocks.Lock(key)
	defer s.ingestLocks.Unlock(key)

	contact, err := s.resolveContact(ctx, payload.SessionID, payload.Jid, payload.DisplayName, payload.IsGroup, orgID)
	if err != nil {
		return handleRepositoryError(ctx, err, "ResolveContact", payload.MessageID)
	}

	metadataJSON := metadataJSONFrom(metadata)
	message := messageFromPayload(payload, contact.ID, metadataJSON)

	existing, err := s.messageRepo.FindByExternalID(ctx, payload.SessionID, payload.MessageID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return handleRepositoryError(ctx, err, "FindMessage", payload.MessageID)
	}

	if existing == nil {
		if err := s.messageRepo.Save(ctx, message); err != nil {
			return handleRepositoryError(ctx, err, "SaveMessage", payload.MessageID)
		}
		observer.IncEventProcessingAction(string(model.V1MessagesReceived), orgID, "insert", "")
	} else {
		// Duplicate delivery: stored row already reflects this message; only
		// a strictly-later ack may still advance.
		observer.IncEventProcessingAction(string(model.V1MessagesReceived), orgID, "duplicate", "")
		log.Debug("Duplicate message delivery",
			zap.String("message_id", payload.MessageID),
			zap.String("session_id", payload.SessionID),
		)
	}

	if message.Ack != model.AckPending {
		if _, err := s.messageRepo.AdvanceAck(ctx, payload.SessionID, payload.MessageID, message.Ack); err != nil {
			return handleRepositoryError(ctx, err, "AdvanceAck", payload.MessageID)
		}
	}

	s.runPostUpsertHooks(ctx, message)

	log.Debug("Message upserted",
		zap.String("message_id", payload.MessageID),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// runPostUpsertHooks performs the synchronous effects that follow a message
// write: watermark advance, then media descriptor bookkeeping.
func (s *ArchiveService) runPostUpsertHooks(ctx context.Context, message model.Message) {
	log := logger.FromContext(ctx)

	if message.MessageTimestamp > 0 {
		if err := s.sessionRepo.AdvanceWatermark(ctx, message.SessionID, message.MessageTimestamp); err != nil {
			// The watermark only affects where gap-fill resumes; ingestion
			// already succeeded, so log and move on.
			log.Warn("Failed to advance session watermark",
				zap.String("session_id", message.SessionID),
				zap.Int64("ts", message.MessageTimestamp),
				zap.Error(err),
			)
		}
	}

	if message.HasMedia && s.mediaWorker != nil {
		task := MediaTaskData{
			Ctx:      context.WithoutCancel(ctx),
			Message:  message,
			MediaURL: message.MediaURL,
		}
		if err := s.mediaWorker.SubmitTask(task); err != nil {
			log.Warn("Failed to submit media task",
				zap.String("message_id", message.MessageID),
				zap.Error(err),
			)
		}
	}
}

// ApplyAck processes one message-ack-updated event. Only a strictly-later ack
// in the fixed total order is applied; regressions are logged and discarded.
func (s *ArchiveService) ApplyAck(ctx context.Context, payload model.AckUpdatePayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)

	if err := validator.Validate(payload); err != nil {
		log.Error("Ack validation failed",
			zap.String("message_id", payload.MessageID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "ack validation failed")
	}

	orgID, err := tenant.FromContext(ctx)
	if err != nil || orgID == "" {
		log.Error("Failed to get tenant ID from context", zap.Error(err))
		return apperrors.NewFatal(err, "failed to get tenant ID from context")
	}
	if err := validateOrgTenant(ctx, payload.OrgID); err != nil {
		return apperrors.NewFatal(err, "org validation error")
	}

	rows, err := s.messageRepo.AdvanceAck(ctx, payload.SessionID, payload.MessageID, payload.Ack)
	if err != nil {
		return handleRepositoryError(ctx, err, "AdvanceAck", payload.MessageID)
	}

	if rows == 0 {
		_, findErr := s.messageRepo.FindByExternalID(ctx, payload.SessionID, payload.MessageID)
		if errors.Is(findErr, apperrors.ErrNotFound) {
			// Ack raced ahead of its message under at-least-once delivery;
			// redelivery will land after the message arrives.
			log.Warn("Ack for unknown message, requesting redelivery",
				zap.String("message_id", payload.MessageID),
				zap.String("session_id", payload.SessionID),
			)
			return apperrors.NewRetryable(apperrors.ErrNotFound, "ack arrived before message %s", payload.MessageID)
		}
		if findErr != nil {
			return handleRepositoryError(ctx, findErr, "FindMessage", payload.MessageID)
		}

		// Message exists at an equal or later ack: expected reordering noise.
		observer.IncAckRegression(orgID)
		log.Debug("Discarding stale ack update",
			zap.String("message_id", payload.MessageID),
			zap.String("ack", payload.Ack),
		)
	}

	return nil
}

// BulkIngestMessages feeds one history page through the ingestion upsert path.
// Returns how many messages were ingested. Used by the sync orchestrator.
func (s *ArchiveService) BulkIngestMessages(ctx context.Context, sessionID string, messages []model.MessageReceivedPayload, metadata *model.LastMetadata) (int64, error) {
	log := logger.FromContext(ctx)

	if len(messages) == 0 {
		return 0, nil
	}

	orgID, err := tenant.FromContext(ctx)
	if err != nil || orgID == "" {
		return 0, apperrors.NewFatal(err, "failed to get tenant ID from context")
	}

	metadataJSON := metadataJSONFrom(metadata)

	// Resolve each distinct jid once per page.
	contactIDs := make(map[string]string)
	dbMessages := make([]model.Message, 0, len(messages))
	var maxTS int64

	for _, payload := range messages {
		if payload.MessageID == "" || payload.Jid == "" {
			log.Warn("Skipping history message with missing identifiers",
				zap.String("message_id", payload.MessageID),
				zap.String("jid", payload.Jid),
			)
			continue
		}
		payload.SessionID = sessionID
		payload.OrgID = orgID

		contactID, ok := contactIDs[payload.Jid]
		if !ok {
			contact, err := s.resolveContact(ctx, sessionID, payload.Jid, payload.DisplayName, payload.IsGroup, orgID)
			if err != nil {
				return 0, handleRepositoryError(ctx, err, "ResolveContact", payload.MessageID)
			}
			contactID = contact.ID
			contactIDs[payload.Jid] = contactID
		}

		dbMessage := messageFromPayload(payload, contactID, metadataJSON)
		if dbMessage.MessageTimestamp > maxTS {
			maxTS = dbMessage.MessageTimestamp
		}
		dbMessages = append(dbMessages, dbMessage)
	}

	if len(dbMessages) == 0 {
		return 0, nil
	}

	if err := s.messageRepo.BulkUpsert(ctx, dbMessages); err != nil {
		return 0, handleRepositoryError(ctx, err, "BulkUpsertMessages", "")
	}

	if maxTS > 0 {
		if err := s.sessionRepo.AdvanceWatermark(ctx, sessionID, maxTS); err != nil {
			log.Warn("Failed to advance session watermark after bulk ingest",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}

	for i := range dbMessages {
		if dbMessages[i].HasMedia && s.mediaWorker != nil {
			task := MediaTaskData{
				Ctx:      context.WithoutCancel(ctx),
				Message:  dbMessages[i],
				MediaURL: dbMessages[i].MediaURL,
			}
			if err := s.mediaWorker.SubmitTask(task); err != nil {
				log.Warn("Failed to submit media task for history message",
					zap.String("message_id", dbMessages[i].MessageID),
					zap.Error(err),
				)
			}
		}
	}

	return int64(len(dbMessages)), nil
}
