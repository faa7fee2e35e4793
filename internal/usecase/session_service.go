package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/validator"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
)

// RegisterSession provisions (or re-provisions) a session for an owning admin.
// The owner must exist, be active and hold an admin role.
func (s *ArchiveService) RegisterSession(ctx context.Context, session model.Session) (*model.Session, error) {
	log := logger.FromContext(ctx)

	orgID, err := tenant.FromContext(ctx)
	if err != nil || orgID == "" {
		return nil, apperrors.NewFatal(err, "failed to get tenant ID from context")
	}
	session.OrgID = orgID

	if err := validator.Validate(session); err != nil {
		return nil, apperrors.NewFatal(err, "session validation failed")
	}

	owner, err := s.directoryRepo.FindPrincipalByID(ctx, session.AdminID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: owning admin %s does not exist", apperrors.ErrBadRequest, session.AdminID)
		}
		return nil, handleRepositoryError(ctx, err, "FindPrincipal", session.AdminID)
	}
	if !owner.Active {
		return nil, fmt.Errorf("%w: owning admin %s is inactive", apperrors.ErrBadRequest, session.AdminID)
	}
	if !model.IsAdminRole(owner.Role) {
		return nil, fmt.Errorf("%w: principal %s cannot own sessions (role %s)", apperrors.ErrBadRequest, session.AdminID, owner.Role)
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = model.SessionStatusDisconnected
	}

	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return nil, handleRepositoryError(ctx, err, "SaveSession", session.ExternalID)
	}

	log.Info("Session registered",
		zap.String("session_id", session.ID),
		zap.String("external_id", session.ExternalID),
		zap.String("admin_id", session.AdminID),
	)
	return &session, nil
}

// ValidateSessionOwnership checks that a session's owning admin still exists
// and is active. Consumer bootstrap runs this before event flow begins.
func (s *ArchiveService) ValidateSessionOwnership(ctx context.Context, sessionID string) error {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return handleRepositoryError(ctx, err, "FindSession", sessionID)
	}

	owner, err := s.directoryRepo.FindPrincipalByID(ctx, session.AdminID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NewFatal(err, "session %s owner %s no longer exists", sessionID, session.AdminID)
		}
		return handleRepositoryError(ctx, err, "FindPrincipal", session.AdminID)
	}
	if !owner.Active {
		return apperrors.NewFatal(apperrors.ErrUnauthorized, "session %s owner %s is inactive", sessionID, session.AdminID)
	}
	return nil
}

// UpdateConnectionStatus processes one connection-update event.
func (s *ArchiveService) UpdateConnectionStatus(ctx context.Context, payload model.ConnectionUpdatePayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)

	if err := validator.Validate(payload); err != nil {
		log.Error("Connection update validation failed",
			zap.String("session_id", payload.SessionID),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "connection update validation failed")
	}

	orgID, err := tenant.FromContext(ctx)
	if err != nil || orgID == "" {
		log.Error("Failed to get tenant ID from context", zap.Error(err))
		return apperrors.NewFatal(err, "failed to get tenant ID from context")
	}
	if err := validateOrgTenant(ctx, payload.OrgID); err != nil {
		return apperrors.NewFatal(err, "org validation error")
	}

	if err := s.sessionRepo.UpdateStatus(ctx, payload.SessionID, payload.Status); err != nil {
		return handleRepositoryError(ctx, err, "UpdateSessionStatus", payload.SessionID)
	}

	log.Info("Session status updated",
		zap.String("session_id", payload.SessionID),
		zap.String("status", payload.Status),
	)
	return nil
}
