package storage

import "context"

// Collection is a named target accepting bulk writes.
type Collection[T any] interface {
	Name() string
	// BulkWrite commits ops in one backend request.
	BulkWrite(ctx context.Context, ops []T) error
}

// Partition splits ops into consecutive chunks of at most size elements. The
// last chunk may be shorter. Chunks share ops' backing array but are capped so
// appending to one never overwrites the next.
func Partition[T any](ops []T, size int) [][]T {
	if size <= 0 || len(ops) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(ops)+size-1)/size)
	for start := 0; start < len(ops); start += size {
		end := min(start+size, len(ops))
		chunks = append(chunks, ops[start:end:end])
	}
	return chunks
}
