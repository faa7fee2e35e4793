package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/config"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/observer"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/storage"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
)

// MediaTaskData holds what a media bookkeeping task needs.
type MediaTaskData struct {
	Ctx      context.Context // Context derived for the task, NOT the original request context
	Message  model.Message
	MediaURL string
}

// IMediaWorker defines the interface for the media descriptor worker pool.
type IMediaWorker interface {
	SubmitTask(taskData MediaTaskData) error
	Stop()
}

// MediaWorker records a MediaDescriptor for every ingested message that
// carries media, off the hot ingestion path.
type MediaWorker struct {
	pool       *ants.PoolWithFunc
	mediaRepo  storage.MediaRepo
	cfg        config.MediaWorkerPoolConfig
	baseLogger *zap.Logger
}

var _ IMediaWorker = (*MediaWorker)(nil)

// NewMediaWorker creates and initializes the media worker pool.
func NewMediaWorker(cfg config.MediaWorkerPoolConfig, mediaRepo storage.MediaRepo, baseLogger *zap.Logger) (*MediaWorker, error) {
	worker := &MediaWorker{
		mediaRepo:  mediaRepo,
		cfg:        cfg,
		baseLogger: baseLogger.Named("media_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		taskData, ok := i.(MediaTaskData)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.processMediaTask(taskData)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			worker.baseLogger.Error("Panic recovered in media worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create media worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("Media worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
	)
	return worker, nil
}

// SubmitTask submits a media bookkeeping task to the pool.
func (w *MediaWorker) SubmitTask(taskData MediaTaskData) error {
	observer.IncMediaTasksSubmitted(taskData.Message.OrgID)
	observer.SetMediaQueueLength(w.pool.Waiting())

	if err := w.pool.Invoke(taskData); err != nil {
		observer.IncMediaTasksProcessed(taskData.Message.OrgID, "submit_error")
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("media pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke media task: %w", err)
	}
	return nil
}

// Stop releases the pool.
func (w *MediaWorker) Stop() {
	w.baseLogger.Info("Stopping media worker pool")
	w.pool.Release()
}

func (w *MediaWorker) processMediaTask(taskData MediaTaskData) {
	log := logger.FromContextOr(taskData.Ctx, w.baseLogger).With(
		zap.String("task_message_id", taskData.Message.MessageID),
		zap.String("task_session_id", taskData.Message.SessionID),
	)

	taskCtx := tenant.WithOrgID(taskData.Ctx, taskData.Message.OrgID)

	descriptor := model.MediaDescriptor{
		ID:           uuid.New().String(),
		MessageID:    taskData.Message.MessageID,
		SessionID:    taskData.Message.SessionID,
		StoragePath:  taskData.MediaURL,
		UploadStatus: model.MediaUploadSuccess,
		OrgID:        taskData.Message.OrgID,
	}
	if taskData.MediaURL == "" {
		descriptor.UploadStatus = model.MediaUploadFailed
		descriptor.FailReason = "gateway event had has_media set but no media url"
	}

	if err := w.mediaRepo.Save(taskCtx, descriptor); err != nil {
		log.Error("Failed to save media descriptor", zap.Error(err))
		observer.IncMediaTasksProcessed(taskData.Message.OrgID, "failure_save")
		return
	}

	log.Debug("Media descriptor recorded", zap.String("upload_status", descriptor.UploadStatus))
	observer.IncMediaTasksProcessed(taskData.Message.OrgID, "success")
}
