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

// SaveMediaDescriptor upserts a media descriptor keyed by its message.
func (r *PostgresRepo) SaveMediaDescriptor(ctx context.Context, descriptor model.MediaDescriptor) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if orgID != descriptor.OrgID {
		return fmt.Errorf("%w: descriptor OrgID %s does not match tenant ID %s", apperrors.ErrBadRequest, descriptor.OrgID, orgID)
	}

	descriptor.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns(model.MediaDescriptorUpdateColumns()),
		}).Create(&descriptor)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveMediaDescriptor Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "media_descriptor", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save media descriptor after retries",
			zap.String("message_id", descriptor.MessageID), zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindMediaDescriptorByMessage finds a media descriptor by its message ID.
func (r *PostgresRepo) FindMediaDescriptorByMessage(ctx context.Context, messageID string) (*model.MediaDescriptor, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var descriptor model.MediaDescriptor
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("message_id = ? AND org_id = ?", messageID, orgID).
			First(&descriptor)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMediaDescriptorByMessage", operation)
	observer.ObserveDbOperationDuration("find", "media_descriptor", orgID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find media descriptor after retries",
			zap.String("message_id", messageID), zap.Error(findErr))
		return nil, findErr
	}
	return &descriptor, nil
}
