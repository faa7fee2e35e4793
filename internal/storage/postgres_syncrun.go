package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/observer"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/utils"
)

// CreateSyncRun inserts a new sync run row in the started state.
func (r *PostgresRepo) CreateSyncRun(ctx context.Context, run model.SyncRun) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if orgID != run.OrgID {
		return fmt.Errorf("%w: sync run OrgID %s does not match tenant ID %s", apperrors.ErrBadRequest, run.OrgID, orgID)
	}
	if !model.ValidSyncKind(run.Kind) {
		return fmt.Errorf("%w: invalid sync kind %q", apperrors.ErrValidation, run.Kind)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Create(&run)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "CreateSyncRun Commit", operation)
	observer.ObserveDbOperationDuration("insert", "sync_run", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to create sync run after retries",
			zap.String("sync_run_id", run.ID),
			zap.String("session_id", run.SessionID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FinishSyncRun records the terminal state of a sync run.
func (r *PostgresRepo) FinishSyncRun(ctx context.Context, runID, status string, syncedCount int64, errorDetail string) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if status != model.SyncStatusCompleted && status != model.SyncStatusFailed {
		return fmt.Errorf("%w: %q is not a terminal sync status", apperrors.ErrValidation, status)
	}

	now := utils.Now()
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.SyncRun{}).
			Where("id = ? AND org_id = ? AND status = ?", runID, orgID, model.SyncStatusStarted).
			Updates(map[string]interface{}{
				"status":       status,
				"synced_count": syncedCount,
				"error_detail": errorDetail,
				"finished_at":  now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: active sync run %s", apperrors.ErrNotFound, runID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "FinishSyncRun Commit", operation)
	observer.ObserveDbOperationDuration("finish", "sync_run", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to finish sync run after retries",
			zap.String("sync_run_id", runID),
			zap.String("status", status),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindActiveSyncRunBySession returns the non-terminal sync run for a session,
// or ErrNotFound when none is running.
func (r *PostgresRepo) FindActiveSyncRunBySession(ctx context.Context, sessionID string) (*model.SyncRun, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var run model.SyncRun
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("session_id = ? AND org_id = ? AND status = ?", sessionID, orgID, model.SyncStatusStarted).
			Order("started_at DESC").
			First(&run)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindActiveSyncRunBySession", operation)
	observer.ObserveDbOperationDuration("find_active", "sync_run", orgID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find active sync run after retries",
			zap.String("session_id", sessionID), zap.Error(findErr))
		return nil, findErr
	}
	return &run, nil
}

// FindLatestSyncRunBySession returns the most recent sync run for a session
// regardless of state.
func (r *PostgresRepo) FindLatestSyncRunBySession(ctx context.Context, sessionID string) (*model.SyncRun, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var run model.SyncRun
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("session_id = ? AND org_id = ?", sessionID, orgID).
			Order("started_at DESC").
			First(&run)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindLatestSyncRunBySession", operation)
	observer.ObserveDbOperationDuration("find_latest", "sync_run", orgID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find latest sync run after retries",
			zap.String("session_id", sessionID), zap.Error(findErr))
		return nil, findErr
	}
	return &run, nil
}
