package processor

import (
	"context"

	"github.com/ava-labs/chainstate-indexer/pkg/kafka/message"
)

// Processor handles one flushed batch of decoded block messages. A nil error
// lets the consumer commit the batch offsets.
type Processor interface {
	Process(ctx context.Context, batch []*message.BlockMessage) error
}

// Func adapts a function to Processor.
type Func func(ctx context.Context, batch []*message.BlockMessage) error

func (f Func) Process(ctx context.Context, batch []*message.BlockMessage) error {
	return f(ctx, batch)
}
