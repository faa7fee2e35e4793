package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/ingestion"
	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
)

// RouterMock mocks the ingestion RouterInterface
type RouterMock struct {
	mock.Mock
}

func (m *RouterMock) Register(eventType model.EventType, handler ingestion.EventHandler) {
	m.Called(eventType, handler)
}

func (m *RouterMock) RegisterDefault(handler ingestion.EventHandler) {
	m.Called(handler)
}

func (m *RouterMock) Route(ctx context.Context, metadata *model.MessageMetadata, rawEvent []byte) error {
	args := m.Called(ctx, metadata, rawEvent)
	return args.Error(0)
}

var _ ingestion.RouterInterface = (*RouterMock)(nil)
