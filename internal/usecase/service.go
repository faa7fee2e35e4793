package usecase

import (
	"context"
	"fmt"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/access"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/config"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/gateway"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/storage"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/utils"
)

// Authorizer is the slice of the access resolver the service layer needs.
type Authorizer interface {
	CanAccess(ctx context.Context, principalID, sessionID string, action access.Action) (bool, error)
	Require(ctx context.Context, principalID, sessionID string, action access.Action) error
}

// ArchiveService implements ingestion, the query API, and sync orchestration
// over the storage, access, and gateway layers.
type ArchiveService struct {
	messageRepo   storage.MessageRepo
	contactRepo   storage.ContactRepo
	sessionRepo   storage.SessionRepo
	directoryRepo storage.DirectoryRepo
	mediaRepo     storage.MediaRepo
	syncRunRepo   storage.SyncRunRepo
	authorizer    Authorizer
	gateway       gateway.Client
	gatewayCfg    config.GatewayConfig
	mediaWorker   IMediaWorker

	// ingestLocks serializes event handling per (session, contact) so the
	// upsert-then-maybe-advance-ack sequence is atomic without a global lock.
	ingestLocks *utils.KeyLock

	syncRuns *syncRegistry
}

// NewArchiveService creates a new archive service.
func NewArchiveService(
	messageRepo storage.MessageRepo,
	contactRepo storage.ContactRepo,
	sessionRepo storage.SessionRepo,
	directoryRepo storage.DirectoryRepo,
	mediaRepo storage.MediaRepo,
	syncRunRepo storage.SyncRunRepo,
	authorizer Authorizer,
	gatewayClient gateway.Client,
	gatewayCfg config.GatewayConfig,
	mediaWorker IMediaWorker,
) *ArchiveService {
	return &ArchiveService{
		messageRepo:   messageRepo,
		contactRepo:   contactRepo,
		sessionRepo:   sessionRepo,
		directoryRepo: directoryRepo,
		mediaRepo:     mediaRepo,
		syncRunRepo:   syncRunRepo,
		authorizer:    authorizer,
		gateway:       gatewayClient,
		gatewayCfg:    gatewayCfg,
		mediaWorker:   mediaWorker,
		ingestLocks:   utils.NewKeyLock(),
		syncRuns:      newSyncRegistry(),
	}
}

// CanAccess reports whether a principal may perform an action against a
// session. Exposed for callers that need the decision without a data read.
func (s *ArchiveService) CanAccess(ctx context.Context, principalID, sessionID string, action access.Action) (bool, error) {
	return s.authorizer.CanAccess(ctx, principalID, sessionID, action)
}

// validateOrgTenant validates that the payload's org field matches the tenant
// ID carried in the context. An empty payload org skips the check.
func validateOrgTenant(ctx context.Context, org string) error {
	if org == "" {
		return nil
	}

	orgID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get tenant ID: %w", err)
	}

	if org != orgID {
		return fmt.Errorf("org (%s) does not match tenant ID (%s)", org, orgID)
	}

	return nil
}

// ingestKey is the serialization key for per-(session, contact) ordering.
func ingestKey(sessionID, jid string) string {
	return sessionID + ":" + jid
}
