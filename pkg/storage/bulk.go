package storage

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// BulkImport writes ops to coll in order, in chunks of at most partitionSize.
//
// A producer hands chunks to a consumer through a channel holding one chunk;
// the consumer issues one BulkWrite at a time and asks for the next chunk only
// after the previous write returned. The first failed write cancels the
// producer and is returned as a *WriteError; later chunks are never submitted
// and earlier ones are not rolled back. Zero ops succeed without a write.
func BulkImport[T any](ctx context.Context, coll Collection[T], ops []T, partitionSize int, opts ...Option) error {
	return bulkImport(ctx, coll, ops, partitionSize, newOptions(opts))
}

func bulkImport[T any](ctx context.Context, coll Collection[T], ops []T, partitionSize int, o options) (err error) {
	if partitionSize <= 0 {
		return ErrInvalidPartitionSize
	}
	chunks := Partition(ops, partitionSize)
	if len(chunks) == 0 {
		return nil
	}

	name := coll.Name()
	start := time.Now()
	defer func() {
		o.metrics.RecordBulkImport(name, err)
		if err != nil {
			o.log.Debugw("bulk import aborted", "collection", name, "error", err)
			return
		}
		o.log.Debugw("bulk import complete",
			"collection", name,
			"operations", len(ops),
			"chunks", len(chunks),
			"duration", time.Since(start),
		)
	}()

	g, gctx := errgroup.WithContext(ctx)
	pending := make(chan []T, 1)

	g.Go(func() error {
		defer close(pending)
		for _, chunk := range chunks {
			select {
			case pending <- chunk:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		index := 0
		for chunk := range pending {
			// The producer may have buffered a chunk before seeing cancellation.
			if err := gctx.Err(); err != nil {
				return err
			}
			writeStart := time.Now()
			err := coll.BulkWrite(gctx, chunk)
			o.metrics.RecordBulkChunk(name, len(chunk), err, time.Since(writeStart).Seconds())
			if err != nil {
				return &WriteError{Collection: name, Chunk: index, Size: len(chunk), Err: err}
			}
			index++
		}
		return nil
	})

	return g.Wait()
}
