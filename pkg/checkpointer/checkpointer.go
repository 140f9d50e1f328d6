package checkpointer

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-retry"

	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
)

// Checkpointer abstracts checkpoint persistence across data stores. A
// checkpoint is the next block a backfill of a network has not yet imported,
// so a restarted backfill resumes where the last one stopped.
type Checkpointer interface {
	// Initialize ensures the underlying storage is ready. It is idempotent.
	Initialize(ctx context.Context) error

	// Write persists next as the checkpoint of n.
	Write(ctx context.Context, n chainstate.Network, next uint64) error

	// Read returns the checkpoint of n and whether one exists.
	Read(ctx context.Context, n chainstate.Network) (next uint64, exists bool, err error)
}

// Save writes a checkpoint, retrying failed writes. Each attempt is bounded by
// cfg.WriteTimeout.
//
// Returns nil if ctx is canceled (the checkpoint is simply not advanced), or an
// error once every retry has failed.
func Save(ctx context.Context, cp Checkpointer, cfg Config, n chainstate.Network, next uint64) error {
	b := retry.WithMaxRetries(uint64(max(cfg.MaxRetries, 0)), retry.NewConstant(cfg.RetryBackoff))

	attempts := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		writeCtx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
		defer cancel()
		if err := cp.Write(writeCtx, n, next); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil || ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("failed to write checkpoint (%s next: %d) after %d attempts: %w", n, next, attempts, err)
}
