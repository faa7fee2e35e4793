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

// SaveContact upserts a contact keyed by (session_id, jid).
func (r *PostgresRepo) SaveContact(ctx context.Context, contact model.Contact) error {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if orgID != contact.OrgID {
		return fmt.Errorf("%w: contact OrgID %s does not match tenant ID %s", apperrors.ErrBadRequest, contact.OrgID, orgID)
	}

	contact.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "jid"}},
			DoUpdates: clause.AssignmentColumns(model.ContactUpdateColumns()),
		}).Create(&contact)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveContact Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "contact", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save contact after retries",
			zap.String("session_id", contact.SessionID),
			zap.String("jid", contact.Jid),
			zap.Error(commitErr))
		return commitErr
	}

	return nil
}

// FindOrCreateContactByJid returns the existing contact for (session, jid) or
// creates a shell one from the given template. The insert carries ON CONFLICT
// DO NOTHING, so concurrent ingestors converge on a single row.
func (r *PostgresRepo) FindOrCreateContactByJid(ctx context.Context, template model.Contact) (*model.Contact, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if orgID != template.OrgID {
		return nil, fmt.Errorf("%w: contact OrgID %s does not match tenant ID %s", apperrors.ErrBadRequest, template.OrgID, orgID)
	}

	var contact model.Contact
	operation := func() error {
		insert := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "jid"}},
			DoNothing: true,
		}).Create(&template)
		if insert.Error != nil {
			return checkConstraintViolation(insert.Error)
		}

		result := r.db.WithContext(ctx).
			Where("session_id = ? AND jid = ? AND org_id = ?", template.SessionID, template.Jid, orgID).
			First(&contact)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "FindOrCreateContactByJid", operation)
	observer.ObserveDbOperationDuration("find_or_create", "contact", orgID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to find or create contact after retries",
			zap.String("session_id", template.SessionID),
			zap.String("jid", template.Jid),
			zap.Error(commitErr))
		return nil, commitErr
	}

	return &contact, nil
}

// FindContactByJid finds a contact by its WhatsApp JID within a session.
func (r *PostgresRepo) FindContactByJid(ctx context.Context, sessionID, jid string) (*model.Contact, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var contact model.Contact
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("session_id = ? AND jid = ? AND org_id = ?", sessionID, jid, orgID).
			First(&contact)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindContactByJid", operation)
	observer.ObserveDbOperationDuration("find", "contact", orgID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find contact by jid after retries",
			zap.String("session_id", sessionID),
			zap.String("jid", jid),
			zap.Error(findErr))
		return nil, findErr
	}

	return &contact, nil
}

// FindContactsBySession returns every contact on a session.
func (r *PostgresRepo) FindContactsBySession(ctx context.Context, sessionID string) ([]model.Contact, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var contacts []model.Contact
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("session_id = ? AND org_id = ?", sessionID, orgID).
			Find(&contacts)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindContactsBySession", operation)
	observer.ObserveDbOperationDuration("find_by_session", "contact", orgID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to find contacts by session after retries",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return contacts, nil
}

// FindContactByID finds a contact by primary key.
func (r *PostgresRepo) FindContactByID(ctx context.Context, id string) (*model.Contact, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var contact model.Contact
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("id = ? AND org_id = ?", id, orgID).
			First(&contact)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindContactByID", operation)
	observer.ObserveDbOperationDuration("find", "contact", orgID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find contact by id after retries",
			zap.String("contact_id", id), zap.Error(findErr))
		return nil, findErr
	}

	return &contact, nil
}
