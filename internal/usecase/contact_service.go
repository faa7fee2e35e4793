package usecase

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/validator"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
)

// resolveContact returns the contact row for (session, jid), lazily creating a
// shell contact when none exists yet. Concurrent callers converge on one row.
func (s *ArchiveService) resolveContact(ctx context.Context, sessionID, jid, displayName string, isGroup bool, orgID string) (*model.Contact, error) {
	template := model.Contact{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Jid:         jid,
		DisplayName: displayName,
		IsGroup:     isGroup,
		OrgID:       orgID,
	}
	return s.contactRepo.FindOrCreate(ctx, template)
}

// UpsertContact processes one contact-update event. Contacts are only ever
// created or updated; there is no delete path.
func (s *ArchiveService) UpsertContact(ctx context.Context, payload model.ContactUpdatePayload, metadata *model.LastMetadata) error {
	log := logger.FromContext(ctx)

	if err := validator.Validate(payload); err != nil {
		log.Error("Contact validation failed",
			zap.String("jid", payload.Jid),
			zap.Error(err),
		)
		return apperrors.NewFatal(err, "contact validation failed")
	}

	orgID, err := tenant.FromContext(ctx)
	if err != nil || orgID == "" {
		log.Error("Failed to get tenant ID from context", zap.Error(err))
		return apperrors.NewFatal(err, "failed to get tenant ID from context")
	}
	if err := validateOrgTenant(ctx, payload.OrgID); err != nil {
		return apperrors.NewFatal(err, "org validation error")
	}

	key := ingestKey(payload.SessionID, payload.Jid)
	s.ingestLocks.Lock(key)
	defer s.ingestLocks.Unlock(key)

	// Keep a stable contact ID across repeated updates.
	contactID := uuid.NewString()
	if existing, findErr := s.contactRepo.FindByJid(ctx, payload.SessionID, payload.Jid); findErr == nil {
		contactID = existing.ID
	}

	contact := model.Contact{
		ID:           contactID,
		SessionID:    payload.SessionID,
		Jid:          payload.Jid,
		DisplayName:  payload.DisplayName,
		Avatar:       payload.Avatar,
		IsGroup:      payload.IsGroup,
		OrgID:        orgID,
		LastMetadata: metadataJSONFrom(metadata),
	}

	if err := s.contactRepo.Save(ctx, contact); err != nil {
		return handleRepositoryError(ctx, err, "SaveContact", payload.Jid)
	}

	log.Debug("Contact upserted",
		zap.String("session_id", payload.SessionID),
		zap.String("jid", payload.Jid),
	)
	return nil
}
