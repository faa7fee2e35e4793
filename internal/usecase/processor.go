package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/config"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/ingestion"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/ingestion/handler"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/jetstream"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
)

// Processor wires the event router, handler, and NATS consumer together.
type Processor struct {
	service      *ArchiveService
	jsClient     jetstream.ClientInterface
	consumer     ingestion.ConsumerInterface
	eventRouter  ingestion.RouterInterface
	eventHandler handler.EventHandlerInterface
	orgID        string
}

// NewProcessor creates a new processor with all components wired up
func NewProcessor(service *ArchiveService, jsClient jetstream.ClientInterface, cfg *config.Config, orgID string) *Processor {
	router := ingestion.NewRouter()
	eventHandler := handler.NewEventHandler(service)

	// Consumer and queue group names are org-scoped for uniqueness
	eventsCfg := cfg.NATS.Events
	eventsCfg.Consumer = eventsCfg.Consumer + orgID
	eventsCfg.QueueGroup = eventsCfg.QueueGroup + orgID
	consumer := ingestion.NewEventConsumer(jsClient, router, eventsCfg, orgID)

	return &Processor{
		service:      service,
		jsClient:     jsClient,
		consumer:     consumer,
		eventRouter:  router,
		eventHandler: eventHandler,
		orgID:        orgID,
	}
}

// GetRouter returns the processor's event router.
func (p *Processor) GetRouter() ingestion.RouterInterface {
	return p.eventRouter
}

// Setup registers handlers, validates session ownership, and sets up the consumer
func (p *Processor) Setup() error {
	p.eventRouter.Register(model.V1MessagesReceived, p.eventHandler.HandleEvent)
	p.eventRouter.Register(model.V1MessagesAck, p.eventHandler.HandleEvent)
	p.eventRouter.Register(model.V1ContactsUpdate, p.eventHandler.HandleEvent)
	p.eventRouter.Register(model.V1ConnectionUpdate, p.eventHandler.HandleEvent)

	p.eventRouter.RegisterDefault(func(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
		logger.FromContext(ctx).Warn("Unhandled event type",
			zap.String("type", string(eventType)),
			zap.String("version", eventType.GetVersion()),
			zap.String("base_type", string(eventType.GetBaseType())),
		)
		return nil
	})

	p.validateSessionOwnership()

	if err := p.consumer.Setup(); err != nil {
		return fmt.Errorf("failed to setup event consumer: %w", err)
	}

	logger.Log.Info("Processor setup complete")
	return nil
}

// validateSessionOwnership checks every known session's owning admin before
// event flow begins. Orphaned sessions are logged loudly, not fatal: their
// archive stays readable and ownership is usually fixed administratively.
func (p *Processor) validateSessionOwnership() {
	ctx := tenant.WithOrgID(context.Background(), p.orgID)

	sessions, err := p.service.sessionRepo.List(ctx)
	if err != nil {
		logger.Log.Warn("Could not list sessions for ownership validation", zap.Error(err))
		return
	}

	for _, session := range sessions {
		if err := p.service.ValidateSessionOwnership(ctx, session.ID); err != nil {
			logger.Log.Warn("Session failed ownership validation",
				zap.String("session_id", session.ID),
				zap.String("admin_id", session.AdminID),
				zap.Error(err),
			)
		}
	}
}

// Start starts the consumer subscription
func (p *Processor) Start() error {
	logger.Log.Info("Starting event processor...")

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("[panic] Recovered from panic in processor",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	if err := p.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start event consumer: %w", err)
	}

	logger.Log.Info("Event processor started")
	return nil
}

// Stop stops the consumer and any in-flight syncs
func (p *Processor) Stop() {
	logger.Log.Info("Stopping event processor...")
	p.service.StopSyncs()
	p.consumer.Stop()
	logger.Log.Info("Event processor stopped")
}
