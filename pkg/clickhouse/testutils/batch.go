package testutils

import (
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// MockBatch mocks the driver.Batch methods used by batch inserts. Calling any
// other method panics on the nil embedded interface.
type MockBatch struct {
	driver.Batch
	mock.Mock
}

func (b *MockBatch) Append(v ...any) error {
	return b.Called(v...).Error(0)
}

func (b *MockBatch) Send() error {
	return b.Called().Error(0)
}

func (b *MockBatch) Abort() error {
	return b.Called().Error(0)
}
