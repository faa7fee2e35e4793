// Package gateway talks to the external WhatsApp bridge. The sync path asks it
// for history pages over NATS request/reply; live traffic arrives separately
// through JetStream and never goes through this client.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/apperrors"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/config"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
	"gitlab.com/chatdeck/api/wa-archive-engine/pkg/logger"
)

// Client fetches archived history from the gateway, one page at a time.
type Client interface {
	// FetchHistory returns one page of messages for the session line in the
	// window (fromTS, toTS]. An empty cursor starts from the window's oldest
	// message; the returned NextCursor is empty on the last page.
	FetchHistory(ctx context.Context, externalID string, fromTS, toTS int64, cursor string) (*model.HistoryPage, error)
}

// historyRequest is the wire shape of a history page request.
type historyRequest struct {
	ExternalID string `json:"external_id"`
	FromTS     int64  `json:"from_ts"`
	ToTS       int64  `json:"to_ts"`
	Cursor     string `json:"cursor,omitempty"`
	PageSize   int    `json:"page_size"`
}

// natsClient implements Client over NATS request/reply.
type natsClient struct {
	conn *nats.Conn
	cfg  config.GatewayConfig
}

// NewNATSClient creates a gateway client using the given NATS connection.
func NewNATSClient(conn *nats.Conn, cfg config.GatewayConfig) Client {
	return &natsClient{conn: conn, cfg: cfg}
}

func (c *natsClient) FetchHistory(ctx context.Context, externalID string, fromTS, toTS int64, cursor string) (*model.HistoryPage, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: external ID is required", apperrors.ErrValidation)
	}

	payload, err := json.Marshal(historyRequest{
		ExternalID: externalID,
		FromTS:     fromTS,
		ToTS:       toTS,
		Cursor:     cursor,
		PageSize:   c.cfg.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling history request: %w", apperrors.ErrBadRequest, err)
	}

	subject := fmt.Sprintf("%s.%s", c.cfg.RequestSubjectPrefix, externalID)

	reqCtx := ctx
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	msg, err := c.conn.RequestWithContext(reqCtx, subject, payload)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, nats.ErrNoResponders) || errors.Is(err, nats.ErrConnectionClosed) {
			return nil, fmt.Errorf("%w: history request on %s: %w", apperrors.ErrGatewayTransient, subject, err)
		}
		return nil, fmt.Errorf("%w: history request on %s: %w", apperrors.ErrNATS, subject, err)
	}

	var page model.HistoryPage
	if err := json.Unmarshal(msg.Data, &page); err != nil {
		logger.FromContext(ctx).Error("Malformed history page from gateway",
			zap.String("subject", subject),
			zap.Int("bytes", len(msg.Data)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: unmarshaling history page: %w", apperrors.ErrBadRequest, err)
	}

	return &page, nil
}
