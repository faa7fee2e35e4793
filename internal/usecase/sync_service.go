package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/access"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/observer"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
)

// syncRegistry tracks in-flight sync runs per session. Claiming is
// non-blocking: a second caller gets an immediate conflict instead of queueing
// behind the running sync.
type syncRegistry struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func newSyncRegistry() *syncRegistry {
	return &syncRegistry{active: make(map[string]context.CancelFunc)}
}

// claim reserves the session slot. Returns false when a run is already active.
func (r *syncRegistry) claim(sessionID string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, running := r.active[sessionID]; running {
		return false
	}
	r.active[sessionID] = cancel
	return true
}

func (r *syncRegistry) release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, sessionID)
}

// cancelAll signals every in-flight run to stop. Used at shutdown; each run
// settles itself as failed with partial progress intact.
func (r *syncRegistry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.active {
		cancel()
	}
}

// StartSync launches a history sync for a session. At most one run per session
// is in flight; a concurrent attempt gets ErrConflict immediately. The run
// itself proceeds on a background goroutine and the created SyncRun record is
// returned right away.
func (s *ArchiveService) StartSync(ctx context.Context, principalID, sessionID, kind string) (*model.SyncRun, error) {
	if err := s.authorizer.Require(ctx, principalID, sessionID, access.ActionSync); err != nil {
		return nil, err
	}
	return s.startSync(ctx, sessionID, kind)
}

// StartSystemSync launches a sync on behalf of the system itself (scheduler,
// operational tooling). No principal is involved so no authorization runs.
func (s *ArchiveService) StartSystemSync(ctx context.Context, sessionID, kind string) (*model.SyncRun, error) {
	return s.startSync(ctx, sessionID, kind)
}

func (s *ArchiveService) startSync(ctx context.Context, sessionID, kind string) (*model.SyncRun, error) {
	log := logger.FromContext(ctx)

	if !model.ValidSyncKind(kind) {
		return nil, fmt.Errorf("%w: unknown sync kind %q", apperrors.ErrValidation, kind)
	}

	orgID, err := tenant.FromContext(ctx)
	if err != nil || orgID == "" {
		return nil, apperrors.NewFatal(err, "failed to get tenant ID from context")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "FindSession", sessionID)
	}

	runCtx, cancel := context.WithCancel(tenant.WithOrgID(context.Background(), orgID))
	if !s.syncRuns.claim(sessionID, cancel) {
		cancel()
		return nil, fmt.Errorf("%w: sync already running for session %s", apperrors.ErrConflict, sessionID)
	}

	// Until the worker takes over, any exit (including a panic) must free the
	// registry slot or the session could never sync again.
	handedOff := false
	defer func() {
		if !handedOff {
			s.syncRuns.release(sessionID)
			cancel()
		}
	}()

	// The registry is the fast path; the database catches runs left behind by
	// a crashed instance.
	if active, err := s.syncRunRepo.FindActiveBySession(ctx, sessionID); err == nil && active != nil {
		return nil, fmt.Errorf("%w: sync run %s is still active for session %s", apperrors.ErrConflict, active.ID, sessionID)
	} else if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, handleRepositoryError(ctx, err, "FindActiveSyncRun", sessionID)
	}

	// Initial imports cover everything; gap-fill resumes after the watermark.
	// Bounds are unix seconds, the unit message timestamps and the session
	// watermark are stored in.
	var fromTS int64
	if kind == model.SyncKindGapFill {
		fromTS = session.LastMessageTS
	}
	toTS := time.Now().Unix()

	run := model.SyncRun{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      kind,
		FromTS:    fromTS,
		ToTS:      toTS,
		Status:    model.SyncStatusStarted,
		OrgID:     orgID,
	}
	if err := s.syncRunRepo.Create(ctx, run); err != nil {
		return nil, handleRepositoryError(ctx, err, "CreateSyncRun", sessionID)
	}

	observer.IncSyncRunStarted(orgID, kind)
	log.Info("Sync run started",
		zap.String("run_id", run.ID),
		zap.String("session_id", sessionID),
		zap.String("kind", kind),
		zap.Int64("from_ts", fromTS),
		zap.Int64("to_ts", toTS),
	)

	handedOff = true
	go s.runSync(runCtx, run, session.ExternalID)

	return &run, nil
}

// GetSyncStatus returns the latest sync run for a session, terminal or not.
func (s *ArchiveService) GetSyncStatus(ctx context.Context, principalID, sessionID string) (*model.SyncRun, error) {
	if err := s.authorizer.Require(ctx, principalID, sessionID, access.ActionRead); err != nil {
		return nil, err
	}

	run, err := s.syncRunRepo.FindLatestBySession(ctx, sessionID)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "FindLatestSyncRun", sessionID)
	}
	return run, nil
}

// StopSyncs cancels every in-flight sync run. Each run records itself as
// failed with its partial count; a later run over the same window is safe
// because ingestion is idempotent.
func (s *ArchiveService) StopSyncs() {
	s.syncRuns.cancelAll()
}

// runSync is the worker loop for one sync run: page through the gateway's
// history for the window, feed each page to the bulk ingestion path, and
// settle the run record.
func (s *ArchiveService) runSync(ctx context.Context, run model.SyncRun, externalID string) {
	defer s.syncRuns.release(run.SessionID)

	log := logger.FromContextOr(ctx, logger.Log).With(
		zap.String("run_id", run.ID),
		zap.String("session_id", run.SessionID),
		zap.String("kind", run.Kind),
	)

	var (
		total  int64
		cursor string
	)

	for {
		if err := ctx.Err(); err != nil {
			s.settleSyncRun(ctx, run, model.SyncStatusFailed, total, fmt.Sprintf("sync cancelled: %v", err), log)
			return
		}

		page, err := s.fetchPage(ctx, externalID, run.FromTS, run.ToTS, cursor)
		if err != nil {
			log.Error("Sync page fetch failed", zap.String("cursor", cursor), zap.Error(err))
			s.settleSyncRun(ctx, run, model.SyncStatusFailed, total, err.Error(), log)
			return
		}

		count, err := s.BulkIngestMessages(ctx, run.SessionID, page.Messages, nil)
		if err != nil {
			log.Error("Sync page ingest failed", zap.String("cursor", cursor), zap.Error(err))
			s.settleSyncRun(ctx, run, model.SyncStatusFailed, total, err.Error(), log)
			return
		}
		total += count
		observer.AddSyncedMessages(run.OrgID, run.Kind, int(count))

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	s.settleSyncRun(ctx, run, model.SyncStatusCompleted, total, "", log)
	log.Info("Sync run completed", zap.Int64("synced_count", total))
}

// fetchPage retrieves one history page, retrying transient gateway failures
// with exponential backoff up to the configured attempt ceiling.
func (s *ArchiveService) fetchPage(ctx context.Context, externalID string, fromTS, toTS int64, cursor string) (*model.HistoryPage, error) {
	policy := backoff.NewExponentialBackOff()
	if s.gatewayCfg.RetryInitialInterval > 0 {
		policy.InitialInterval = s.gatewayCfg.RetryInitialInterval
	}
	if s.gatewayCfg.RetryMaxInterval > 0 {
		policy.MaxInterval = s.gatewayCfg.RetryMaxInterval
	}
	policy.MaxElapsedTime = 0

	attempts := s.gatewayCfg.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var page *model.HistoryPage
	operation := func() error {
		var err error
		page, err = s.gateway.FetchHistory(ctx, externalID, fromTS, toTS, cursor)
		if err == nil {
			return nil
		}
		if apperrors.IsGatewayTransientError(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	wrapped := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)
	if err := backoff.Retry(operation, wrapped); err != nil {
		return nil, err
	}
	return page, nil
}

// settleSyncRun records the terminal state of a run. Partial progress is kept
// regardless of outcome.
func (s *ArchiveService) settleSyncRun(ctx context.Context, run model.SyncRun, status string, count int64, errorDetail string, log *zap.Logger) {
	// Settle even when the run context was cancelled.
	settleCtx, cancel := context.WithTimeout(tenant.WithOrgID(context.Background(), run.OrgID), 10*time.Second)
	defer cancel()

	if err := s.syncRunRepo.Finish(settleCtx, run.ID, status, count, errorDetail); err != nil {
		log.Error("Failed to settle sync run",
			zap.String("status", status),
			zap.Int64("synced_count", count),
			zap.Error(err),
		)
	}
	observer.IncSyncRunFinished(run.OrgID, run.Kind, status)
}
