package notes

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfRange    = errors.New("requested index was out of range")
	ErrNoSuchElement = errors.New("iterator has no more elements")
	ErrNilValue      = errors.New("nil values cannot be stored")
	ErrInternal      = errors.New("internal buffer fault")

	// ErrUnsupported is returned by [Iterator.Remove]. Values can only leave a buffer through
	// eviction or [Notes.Pop].
	ErrUnsupported = fmt.Errorf("remove through iterator: %w", errors.ErrUnsupported)
)

func outOfRange(index, size int) error {
	return fmt.Errorf("%w: index %d, size %d", ErrOutOfRange, index, size)
}
