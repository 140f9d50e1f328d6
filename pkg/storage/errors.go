package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a model's collection is accessed before
	// its storage service is ready.
	ErrNotConnected = errors.New("not connected to the database yet")

	// ErrInvalidPartitionSize is returned by BulkImport for a partition size below one.
	ErrInvalidPartitionSize = errors.New("partition size must be greater than 0")

	// ErrWrite matches every *WriteError via errors.Is.
	ErrWrite = errors.New("bulk write failed")
)

// WriteError reports the chunk rejected by the backing collection.
type WriteError struct {
	Collection string
	Chunk      int // zero-based index of the failed chunk
	Size       int // number of operations in the failed chunk
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("bulk write to %s failed at chunk %d (%d ops): %v", e.Collection, e.Chunk, e.Size, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func (e *WriteError) Is(target error) bool {
	return target == ErrWrite
}
