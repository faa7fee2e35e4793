package handler

import (
	"context"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
)

// EventHandlerInterface defines the common interface for event handlers
type EventHandlerInterface interface {
	// HandleEvent processes an event
	HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error
}

// Ensure the handler implements the interface
var _ EventHandlerInterface = (*EventHandler)(nil)
