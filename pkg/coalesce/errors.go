package coalesce

import (
	"errors"
	"fmt"
)

// ErrSerialization is returned when the arguments of a coalesced call cannot be
// canonically serialized for key derivation.
var ErrSerialization = errors.New("coalesce: arguments cannot be serialized")

// SerializationError carries the encoder failure for a coalesced call.
type SerializationError struct {
	Identifier string
	Err        error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("coalesce: serialize arguments of %s: %v", e.Identifier, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// Is reports ErrSerialization as a match so callers can test with errors.Is.
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}
