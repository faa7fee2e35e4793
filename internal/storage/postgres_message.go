package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/observer"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/utils"
)

// SaveMessage upserts a message keyed by (session_id, message_id). A conflicting
// insert refreshes only the columns in MessageUpdateColumns; ack is never touched
// here, so a duplicate delivery cannot move delivery progress backward.
func (r *PostgresRepo) SaveMessage(ctx context.Context, message model.Message) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if orgID != message.OrgID {
		return fmt.Errorf("%w: message OrgID %s does not match tenant ID %s", apperrors.ErrBadRequest, message.OrgID, orgID)
	}

	message.MessageDate = model.CreateTimeFromTimestamp(message.MessageTimestamp)
	message.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns(model.MessageUpdateColumns()),
		}).Create(&message)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveMessage Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "message", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save message after retries", zap.String("message_id", message.MessageID), zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindMessageByExternalID finds a message by its gateway ID within a session.
func (r *PostgresRepo) FindMessageByExternalID(ctx context.Context, sessionID, messageID string) (*model.Message, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var message model.Message
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("session_id = ? AND message_id = ? AND org_id = ?", sessionID, messageID, orgID).
			First(&message)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMessageByExternalID", operation)
	observer.ObserveDbOperationDuration("find", "message", orgID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find message by external id after retries",
			zap.String("session_id", sessionID),
			zap.String("message_id", messageID),
			zap.Error(findErr))
		return nil, findErr
	}

	return &message, nil
}

// AdvanceMessageAck moves a message's ack forward, guarded in SQL so a stale
// update can never win a race: only rows whose current ack ranks strictly below
// the new one are touched. Returns the number of rows changed (0 or 1).
func (r *PostgresRepo) AdvanceMessageAck(ctx context.Context, sessionID, messageID, newAck string) (int64, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	rank := model.AckRank(newAck)
	if rank < 0 {
		return 0, fmt.Errorf("%w: unknown ack state %q", apperrors.ErrValidation, newAck)
	}

	// States strictly below the incoming one in the fixed total order.
	lower := []string{model.AckPending, model.AckSent, model.AckDelivered, model.AckRead, model.AckPlayed}[:rank]
	if len(lower) == 0 {
		return 0, nil // pending can never advance anything
	}

	var rowsAffected int64
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("session_id = ? AND message_id = ? AND org_id = ? AND ack IN ?", sessionID, messageID, orgID, lower).
			Updates(map[string]interface{}{"ack": newAck, "updated_at": utils.Now()})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		rowsAffected = result.RowsAffected
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "AdvanceMessageAck Commit", operation)
	observer.ObserveDbOperationDuration("ack_advance", "message", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to advance message ack after retries",
			zap.String("message_id", messageID),
			zap.String("new_ack", newAck),
			zap.Error(commitErr))
		return 0, commitErr
	}

	return rowsAffected, nil
}

// BulkUpsertMessages performs a bulk upsert of messages, used by the sync path.
func (r *PostgresRepo) BulkUpsertMessages(ctx context.Context, messages []model.Message) error {
	if len(messages) == 0 {
		return nil
	}

	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	validMessages := make([]model.Message, 0, len(messages))
	for i := range messages {
		if orgID != messages[i].OrgID {
			loggerCtx.Warn("Org ID mismatch for message, skipping",
				zap.String("message_id", messages[i].MessageID),
				zap.String("context_org_id", orgID),
				zap.String("message_org_id", messages[i].OrgID))
			continue
		}
		messages[i].MessageDate = model.CreateTimeFromTimestamp(messages[i].MessageTimestamp)
		messages[i].UpdatedAt = utils.Now()
		validMessages = append(validMessages, messages[i])
	}

	if len(validMessages) == 0 {
		loggerCtx.Info("No valid messages found for bulk upsert after tenant ID filtering")
		return nil
	}

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				panic(r)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					loggerCtx.Error("Failed to rollback transaction after error", zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns(model.MessageUpdateColumns()),
		}).Create(&validMessages)

		if result.Error != nil {
			txErr = fmt.Errorf("%w: bulk upsert messages failed: %w", apperrors.ErrDatabase, result.Error)
			return txErr
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = checkConstraintViolation(commitErr)
			return txErr
		}
		loggerCtx.Info("Bulk upsert messages successful", zap.Int("messages_processed", len(validMessages)), zap.Int64("rows_affected", result.RowsAffected))
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, bulkCommitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "BulkUpsertMessages Commit", operation)
	observer.ObserveDbOperationDuration("bulk_upsert", "message", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		loggerCtx.Error("Failed to bulk upsert messages after retries", zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindMessagesByContact finds a contact's thread, newest first.
func (r *PostgresRepo) FindMessagesByContact(ctx context.Context, sessionID, contactID string, limit, offset int) ([]model.Message, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var messages []model.Message
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("session_id = ? AND contact_id = ? AND org_id = ?", sessionID, contactID, orgID).
			Order("message_timestamp DESC").
			Limit(limit).
			Offset(offset).
			Find(&messages)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindMessagesByContact", operation)
	observer.ObserveDbOperationDuration("find_by_contact", "message", orgID, time.Since(startTime), err)

	if err != nil {
		loggerCtx.Error("Failed to find messages by contact after retries",
			zap.String("session_id", sessionID),
			zap.String("contact_id", contactID),
			zap.Error(err))
		return nil, err
	}
	return messages, nil
}

// FindLastMessagesBySession returns, per contact, the newest message on the
// session. Uses DISTINCT ON, so the map is keyed by contact_id.
func (r *PostgresRepo) FindLastMessagesBySession(ctx context.Context, sessionID string) (map[string]model.Message, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var rows []model.Message
	operation := func() error {
		query := r.db.WithContext(ctx).Raw(`
			SELECT DISTINCT ON (contact_id) *
			FROM `+r.qualifiedTable("messages")+`
			WHERE session_id = ? AND org_id = ?
			ORDER BY contact_id, message_timestamp DESC, id DESC`, sessionID, orgID).
			Scan(&rows)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindLastMessagesBySession", operation)
	observer.ObserveDbOperationDuration("last_by_session", "message", orgID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to find last messages by session after retries",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	result := make(map[string]model.Message, len(rows))
	for _, m := range rows {
		result[m.ContactID] = m
	}
	return result, nil
}

// CountUnreadBySession returns, per contact, how many inbound messages still
// rank below read.
func (r *PostgresRepo) CountUnreadBySession(ctx context.Context, sessionID string) (map[string]int64, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	type unreadRow struct {
		ContactID string `gorm:"column:contact_id"`
		Unread    int64  `gorm:"column:unread"`
	}

	var rows []unreadRow
	subRead := []string{model.AckPending, model.AckSent, model.AckDelivered}
	operation := func() error {
		query := r.db.WithContext(ctx).Model(&model.Message{}).
			Select("contact_id, COUNT(*) AS unread").
			Where("session_id = ? AND org_id = ? AND flow = ? AND ack IN ?", sessionID, orgID, model.MessageFlowIncoming, subRead).
			Group("contact_id").
			Scan(&rows)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "CountUnreadBySession", operation)
	observer.ObserveDbOperationDuration("unread_by_session", "message", orgID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to count unread by session after retries",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	result := make(map[string]int64, len(rows))
	for _, row := range rows {
		result[row.ContactID] = row.Unread
	}
	return result, nil
}

// MarkContactRead flips every inbound sub-read message in the contact's thread
// to read and returns the number of rows changed.
func (r *PostgresRepo) MarkContactRead(ctx context.Context, sessionID, contactID string) (int64, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var rowsAffected int64
	subRead := []string{model.AckPending, model.AckSent, model.AckDelivered}
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("session_id = ? AND contact_id = ? AND org_id = ? AND flow = ? AND ack IN ?",
				sessionID, contactID, orgID, model.MessageFlowIncoming, subRead).
			Updates(map[string]interface{}{"ack": model.AckRead, "updated_at": utils.Now()})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		rowsAffected = result.RowsAffected
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkContactRead Commit", operation)
	observer.ObserveDbOperationDuration("mark_read", "message", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark contact read after retries",
			zap.String("session_id", sessionID),
			zap.String("contact_id", contactID),
			zap.Error(commitErr))
		return 0, commitErr
	}

	return rowsAffected, nil
}

// qualifiedTable resolves a base table name through the connection's Namer so
// raw SQL hits the same tenant schema GORM writes to.
func (r *PostgresRepo) qualifiedTable(table string) string {
	if namer, ok := r.db.Config.NamingStrategy.(tenantNamer); ok {
		return namer.TableName(table)
	}
	return fmt.Sprintf("%q", table)
}
