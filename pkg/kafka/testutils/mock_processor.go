package testutils

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ava-labs/chainstate-indexer/pkg/kafka/message"
)

// MockProcessor is a mock implementation of processor.Processor for testing
type MockProcessor struct {
	mock.Mock
}

// Process mocks the Process method
func (m *MockProcessor) Process(ctx context.Context, batch []*message.BlockMessage) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}
