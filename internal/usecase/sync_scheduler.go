package usecase

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/config"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/utils"
)

// SyncScheduler triggers periodic gap-fill syncs for every connected session.
// An empty schedule disables it entirely.
type SyncScheduler struct {
	service  *ArchiveService
	schedule string
	orgID    string
	cron     *cron.Cron
}

// NewSyncScheduler creates a scheduler from the sync config. Call Start to
// begin firing.
func NewSyncScheduler(service *ArchiveService, cfg config.SyncConfig, orgID string) *SyncScheduler {
	return &SyncScheduler{
		service:  service,
		schedule: cfg.GapFillSchedule,
		orgID:    orgID,
	}
}

// Start registers the gap-fill job and starts the cron loop. Returns nil
// without starting anything when no schedule is configured.
func (sc *SyncScheduler) Start() error {
	if sc.schedule == "" {
		logger.Log.Info("Gap-fill scheduler disabled: no schedule configured")
		return nil
	}

	sc.cron = cron.New()
	if _, err := sc.cron.AddFunc(sc.schedule, sc.runGapFillPass); err != nil {
		return err
	}
	sc.cron.Start()

	logger.Log.Info("Gap-fill scheduler started", zap.String("schedule", sc.schedule))
	return nil
}

// Stop halts the cron loop. Runs already launched keep going until they settle.
func (sc *SyncScheduler) Stop() {
	if sc.cron != nil {
		ctx := sc.cron.Stop()
		<-ctx.Done()
	}
}

// runGapFillPass starts a gap-fill sync for every connected session. Sessions
// with a run already in flight are skipped, not errors.
func (sc *SyncScheduler) runGapFillPass() {
	ctx := tenant.WithOrgID(context.Background(), sc.orgID)
	defer utils.RecoverWithLog(ctx, "gap-fill pass")
	log := logger.Log

	sessions, err := sc.service.sessionRepo.List(ctx)
	if err != nil {
		log.Error("Gap-fill pass failed to list sessions", zap.Error(err))
		return
	}

	var started, skipped int
	for _, session := range sessions {
		if session.Status != model.SessionStatusConnected {
			continue
		}
		if _, err := sc.service.StartSystemSync(ctx, session.ID, model.SyncKindGapFill); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				skipped++
				continue
			}
			log.Error("Gap-fill start failed",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
			continue
		}
		started++
	}

	log.Info("Gap-fill pass complete",
		zap.Int("started", started),
		zap.Int("skipped_active", skipped),
	)
}
