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

// SaveSession upserts a session keyed by its external gateway ID.
func (r *PostgresRepo) SaveSession(ctx context.Context, session model.Session) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if orgID != session.OrgID {
		return fmt.Errorf("%w: session OrgID %s does not match tenant ID %s", apperrors.ErrBadRequest, session.OrgID, orgID)
	}

	session.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns(model.SessionUpdateColumns()),
		}).Create(&session)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveSession Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "session", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save session after retries",
			zap.String("external_id", session.ExternalID), zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindSessionByID finds a session by primary key.
func (r *PostgresRepo) FindSessionByID(ctx context.Context, id string) (*model.Session, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var session model.Session
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("id = ? AND org_id = ?", id, orgID).
			First(&session)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindSessionByID", operation)
	observer.ObserveDbOperationDuration("find", "session", orgID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find session by id after retries",
			zap.String("session_id", id), zap.Error(findErr))
		return nil, findErr
	}

	return &session, nil
}

// FindSessionByExternalID finds a session by the gateway's identifier.
func (r *PostgresRepo) FindSessionByExternalID(ctx context.Context, externalID string) (*model.Session, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var session model.Session
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("external_id = ? AND org_id = ?", externalID, orgID).
			First(&session)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindSessionByExternalID", operation)
	observer.ObserveDbOperationDuration("find", "session", orgID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find session by external id after retries",
			zap.String("external_id", externalID), zap.Error(findErr))
		return nil, findErr
	}

	return &session, nil
}

// FindSessionsByAdmin returns every session owned by the given admin.
func (r *PostgresRepo) FindSessionsByAdmin(ctx context.Context, adminID string) ([]model.Session, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var sessions []model.Session
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("admin_id = ? AND org_id = ?", adminID, orgID).
			Find(&sessions)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindSessionsByAdmin", operation)
	observer.ObserveDbOperationDuration("find_by_admin", "session", orgID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to find sessions by admin after retries",
			zap.String("admin_id", adminID), zap.Error(err))
		return nil, err
	}
	return sessions, nil
}

// ListSessions returns every session in the org.
func (r *PostgresRepo) ListSessions(ctx context.Context) ([]model.Session, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var sessions []model.Session
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("org_id = ?", orgID).
			Find(&sessions)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "ListSessions", operation)
	observer.ObserveDbOperationDuration("list", "session", orgID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to list sessions after retries", zap.Error(err))
		return nil, err
	}
	return sessions, nil
}

// UpdateSessionStatus sets the connection lifecycle status.
func (r *PostgresRepo) UpdateSessionStatus(ctx context.Context, sessionID, status string) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if !model.ValidSessionStatus(status) {
		return fmt.Errorf("%w: invalid session status %q", apperrors.ErrValidation, status)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Session{}).
			Where("id = ? AND org_id = ?", sessionID, orgID).
			Updates(map[string]interface{}{"status": status, "updated_at": utils.Now()})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: session %s", apperrors.ErrNotFound, sessionID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateSessionStatus Commit", operation)
	observer.ObserveDbOperationDuration("update_status", "session", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update session status after retries",
			zap.String("session_id", sessionID),
			zap.String("status", status),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// AdvanceSessionWatermark moves the session's last-message watermark forward.
// The guard lives in the WHERE clause, so out-of-order ingestion can never
// rewind it; 0 rows affected simply means the watermark was already ahead.
func (r *PostgresRepo) AdvanceSessionWatermark(ctx context.Context, sessionID string, ts int64) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Session{}).
			Where("id = ? AND org_id = ? AND last_message_ts < ?", sessionID, orgID, ts).
			Updates(map[string]interface{}{"last_message_ts": ts, "updated_at": utils.Now()})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "AdvanceSessionWatermark Commit", operation)
	observer.ObserveDbOperationDuration("advance_watermark", "session", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to advance session watermark after retries",
			zap.String("session_id", sessionID),
			zap.Int64("ts", ts),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}
