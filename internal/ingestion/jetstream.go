package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/config"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/jetstream"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/observer"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/tenant"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/utils"
)

// AckNakAction represents the decision made after processing a message
type AckNakAction int

const (
	ActionAck      AckNakAction = iota // Message processed successfully, ACK it
	ActionTerm                         // Fatal error or retries exhausted, TERM so it never redelivers
	ActionNakDelay                     // Retryable error, NAK with calculated delay
)

// determineAckNakAction decides the fate of a message based on processing
// result and delivery metadata. Fatal errors and exhausted retries terminate
// the message; retryable errors NAK with exponential delay.
func determineAckNakAction(
	processingErr error,
	metadata *nats.MsgMetadata,
	maxDeliver int,
	nakBaseDelay time.Duration,
	nakMaxDelay time.Duration,
) (action AckNakAction, delay time.Duration) {

	if processingErr == nil {
		return ActionAck, 0
	}

	isRetryable := apperrors.IsRetryable(processingErr)
	numDelivered := metadata.NumDelivered

	if numDelivered >= uint64(maxDeliver) || !isRetryable {
		return ActionTerm, 0
	}

	// Retryable with attempts remaining: NAK with delay
	attempt := numDelivered // Current attempt number (starts at 1)
	delay = nakBaseDelay
	if attempt > 1 {
		delay = nakBaseDelay * (1 << (attempt - 1)) // base * 2^(attempt-1)
	}
	if delay > nakMaxDelay {
		delay = nakMaxDelay
	}
	return ActionNakDelay, delay
}

// EventConsumer subscribes to the gateway event stream for one org and feeds
// every message through the router.
type EventConsumer struct {
	client        jetstream.ClientInterface
	router        RouterInterface
	cfg           config.ConsumerNatsConfig
	orgID         string
	ctx           context.Context
	cancel        context.CancelFunc
	sub           *nats.Subscription
	filterSubject string
}

// NewEventConsumer creates a consumer for the gateway event stream
func NewEventConsumer(client jetstream.ClientInterface, router RouterInterface, cfg config.ConsumerNatsConfig, orgID string) *EventConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	loggerWithTenant := logger.Log.With(zap.String("org_id", orgID))
	ctx = logger.WithLogger(ctx, loggerWithTenant)
	ctx = tenant.WithOrgID(ctx, orgID)

	return &EventConsumer{
		client: client,
		router: router,
		cfg:    cfg,
		orgID:  orgID,
		ctx:    ctx,
		cancel: cancel,
	}
}

// modifySubjects widens each base subject with a wildcard for the stream and
// pins it to one org for the consumer.
func modifySubjects(subjects []string, orgID string) (streamSubjects, consumerSubjects []string) {
	for _, subject := range subjects {
		streamSubjects = append(streamSubjects, fmt.Sprintf("%s.*", subject))
		consumerSubjects = append(consumerSubjects, fmt.Sprintf("%s.%s", subject, orgID))
	}
	return streamSubjects, consumerSubjects
}

// Setup configures the NATS stream and durable consumer
func (c *EventConsumer) Setup() error {
	log := logger.FromContext(c.ctx)
	log.Info("Setting up EventConsumer...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))

	maxAgeRetention := time.Duration(c.cfg.MaxAge*24) * time.Hour
	streamSubjects, consumerSubjects := modifySubjects(c.cfg.SubjectList, c.orgID)

	streamCfg := &nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  streamSubjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    maxAgeRetention,
	}

	if err := c.client.SetupStream(c.ctx, streamCfg); err != nil {
		log.Error("Failed to setup event stream", zap.Error(err), zap.String("stream", c.cfg.Stream))
		return fmt.Errorf("failed to setup event stream '%s': %w", c.cfg.Stream, err)
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:        c.cfg.Consumer,
		DeliverGroup:   c.cfg.QueueGroup,
		FilterSubjects: consumerSubjects,
		AckPolicy:      nats.AckExplicitPolicy,
		DeliverSubject: nats.NewInbox(),
		MaxDeliver:     c.cfg.MaxDeliver,
		AckWait:        30 * time.Second,
		MaxAckPending:  1000,
		ReplayPolicy:   nats.ReplayInstantPolicy,
		DeliverPolicy:  nats.DeliverLastPolicy,
	}
	c.filterSubject = "v1.>"

	if err := c.client.SetupConsumer(c.ctx, c.cfg.Stream, consumerCfg); err != nil {
		log.Error("Failed to setup event consumer", zap.Error(err), zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))
		return fmt.Errorf("failed to setup event consumer '%s' for stream '%s': %w", c.cfg.Consumer, c.cfg.Stream, err)
	}

	log.Info("EventConsumer setup complete")
	return nil
}

// Start subscribes to the NATS stream
func (c *EventConsumer) Start() error {
	log := logger.FromContext(c.ctx)
	log.Info("Starting EventConsumer subscription...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))

	sub, err := c.client.SubscribePush(c.filterSubject, c.cfg.Consumer, c.cfg.QueueGroup, c.cfg.Stream, c.handleMessage)
	if err != nil {
		log.Error("Failed to subscribe event consumer", zap.Error(err),
			zap.String("stream", c.cfg.Stream),
			zap.String("consumer", c.cfg.Consumer),
			zap.String("group", c.cfg.QueueGroup),
		)
		return fmt.Errorf("failed to subscribe event consumer '%s': %w", c.cfg.Consumer, err)
	}
	c.sub = sub
	log.Info("EventConsumer subscribed successfully")
	return nil
}

// Stop drains the subscription and cancels the consumer context
func (c *EventConsumer) Stop() {
	log := logger.FromContext(c.ctx)
	log.Info("Stopping EventConsumer...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			log.Error("Error draining event subscription", zap.Error(err))
		}
		log.Info("Event subscription drained")
	}
	if c.cancel != nil {
		c.cancel()
	}
	log.Info("EventConsumer stopped")
}

// handleMessage is the core message processing logic
func (c *EventConsumer) handleMessage(msg *nats.Msg) {
	startTime := utils.Now()

	defer func() {
		finalEventType, _ := model.MapToBaseEventType(msg.Subject)
		observer.ObserveEventProcessingDuration(string(finalEventType), c.orgID, time.Since(startTime))

		if r := recover(); r != nil {
			logFromCtx := logger.FromContext(c.ctx)
			logFromCtx.Error("[panic] Recovered from panic in message handler",
				zap.Any("panic", r),
				zap.String("subject", msg.Subject),
				zap.Duration("duration", time.Since(startTime)),
				zap.Stack("stack"),
			)
			observer.IncEventsFailed(string(finalEventType), c.orgID)
			observer.IncEventProcessingAction(string(finalEventType), c.orgID, "panic_nak", "panic")
			if nakErr := msg.Nak(); nakErr != nil {
				logFromCtx.Error("Failed to NAK message after panic", zap.Error(nakErr))
			}
		}
	}()

	msgCtx := c.ctx
	logFromCtx := logger.FromContext(msgCtx)

	var msgID string
	if msg.Header != nil {
		msgID = msg.Header.Get("Nats-Msg-Id")
	}

	eventType, found := model.MapToBaseEventType(msg.Subject)
	if !found {
		logFromCtx.Warn("Unknown event type", zap.String("subject", msg.Subject))
		// Redelivery cannot fix an unknown subject
		if termErr := msg.Term(); termErr != nil {
			logFromCtx.Error("Failed to TERM message for unknown event type", zap.Error(termErr))
		}
		observer.IncEventProcessingAction(string(eventType), c.orgID, "term_unknown_type", "unknown_event_type")
		return
	}

	metadata, err := msg.Metadata()
	if err != nil {
		logFromCtx.Error("Failed to read message metadata", zap.Error(err), zap.Duration("duration", time.Since(startTime)))
		if nakErr := msg.Nak(); nakErr != nil {
			logFromCtx.Error("Failed to NAK message", zap.Error(nakErr))
		}
		observer.IncEventProcessingAction(string(eventType), c.orgID, "nak_metadata_error", "metadata")
		return
	}
	if msgID == "" {
		msgID = fmt.Sprintf("msg-%d", metadata.Sequence.Stream)
	}

	internalMetadata := &model.MessageMetadata{
		StreamSequence:   metadata.Sequence.Stream,
		ConsumerSequence: metadata.Sequence.Consumer,
		NumDelivered:     metadata.NumDelivered,
		NumPending:       metadata.NumPending,
		Timestamp:        metadata.Timestamp,
		Stream:           metadata.Stream,
		Consumer:         metadata.Consumer,
		Domain:           metadata.Domain,
		MessageID:        msgID,
		MessageSubject:   msg.Subject,
		OrgID:            c.orgID,
	}

	observer.IncEventsReceived(string(eventType), c.orgID)

	msgCtx = logger.WithLogger(msgCtx, logFromCtx.With(
		zap.String("nats_message_id", msgID),
		zap.Uint64("stream_sequence", internalMetadata.StreamSequence),
		zap.Uint64("consumer_sequence", internalMetadata.ConsumerSequence),
		zap.String("subject", msg.Subject),
		zap.String("stream", internalMetadata.Stream),
		zap.String("consumer", internalMetadata.Consumer),
	))

	processingErr := c.router.Route(msgCtx, internalMetadata, msg.Data)

	enhancedLog := logger.FromContext(msgCtx)
	action, nakDelay := determineAckNakAction(processingErr, metadata, c.cfg.MaxDeliver, c.cfg.NakBaseDelay, c.cfg.NakMaxDelay)

	errorType := "none"
	if processingErr != nil {
		errorType = observer.SanitizeErrorType(processingErr.Error())
	}

	switch action {
	case ActionAck:
		enhancedLog.Info("Successfully processed message", zap.Duration("duration", time.Since(startTime)))
		observer.IncEventsProcessed(string(eventType), c.orgID)
		observer.IncEventProcessingAction(string(eventType), c.orgID, "ack_success", errorType)
		if ackErr := msg.Ack(); ackErr != nil {
			enhancedLog.Error("Failed to ACK message after successful processing", zap.Error(ackErr))
		}

	case ActionNakDelay:
		enhancedLog.Info("NAKing message with delay for redelivery (retryable error)",
			zap.Error(processingErr),
			zap.Uint64("num_delivered", metadata.NumDelivered),
			zap.Int("max_deliver", c.cfg.MaxDeliver),
			zap.Duration("nak_delay", nakDelay),
			zap.Duration("duration", time.Since(startTime)),
		)
		observer.IncEventsFailed(string(eventType), c.orgID)
		observer.IncEventProcessingAction(string(eventType), c.orgID, "nak_retry", errorType)
		if nakErr := msg.NakWithDelay(nakDelay); nakErr != nil {
			enhancedLog.Error("Failed to NAK message with delay", zap.Error(nakErr))
		}

	case ActionTerm:
		logReason := "max delivery attempts reached"
		if !apperrors.IsRetryable(processingErr) {
			logReason = "fatal error encountered"
		}
		enhancedLog.Warn(fmt.Sprintf("Terminating message: %s", logReason),
			zap.Error(processingErr),
			zap.Uint64("num_delivered", metadata.NumDelivered),
			zap.Int("max_deliver", c.cfg.MaxDeliver),
			zap.Duration("duration", time.Since(startTime)),
		)
		observer.IncEventsFailed(string(eventType), c.orgID)
		observer.IncEventProcessingAction(string(eventType), c.orgID, "term_dropped", errorType)
		if termErr := msg.Term(); termErr != nil {
			enhancedLog.Error("Failed to TERM message", zap.Error(termErr))
		}
	}
}
