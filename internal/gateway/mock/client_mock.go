package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/model"
)

// ClientMock mocks the gateway Client interface
type ClientMock struct {
	mock.Mock
}

func (m *ClientMock) FetchHistory(ctx context.Context, externalID string, fromTS, toTS int64, cursor string) (*model.HistoryPage, error) {
	args := m.Called(ctx, externalID, fromTS, toTS, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.HistoryPage), args.Error(1)
}
