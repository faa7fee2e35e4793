package mock

import (
	"github.com/stretchr/testify/mock"

	"gitlab.com/chatdeck/api/wa-archive-engine/internal/ingestion"
)

// ConsumerMock mocks the ingestion ConsumerInterface
type ConsumerMock struct {
	mock.Mock
}

func (m *ConsumerMock) Setup() error {
	args := m.Called()
	return args.Error(0)
}

func (m *ConsumerMock) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *ConsumerMock) Stop() {
	m.Called()
}

var _ ingestion.ConsumerInterface = (*ConsumerMock)(nil)
