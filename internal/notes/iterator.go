package notes

import (
	"context"
	"iter"

	"golang.org/x/sync/semaphore"
)

// Iterator walks a buffer from its oldest to its newest value.
//
// An Iterator is single-pass and forward-only. It does not hold the buffer lock between steps,
// so it is weakly consistent: every step re-resolves its position against the buffer as it is
// at that moment. Values evicted from the head before the iterator reaches them are skipped.
// Values added behind the cursor are visited. Once a step finds no next value the iterator is
// exhausted for good: it does not follow the tail, so values added after that are not seen even
// though they land past the cursor. Start a new Iterator to see them.
//
// The iterator has its own lock, so one Iterator may be shared between goroutines. Each value
// is then handed to exactly one caller.
type Iterator[T comparable] struct {
	sem    *semaphore.Weighted
	notes  *Notes[T]
	cursor int
	done   bool
}

// Iterator returns an iterator positioned at the current oldest value.
func (n *Notes[T]) Iterator() *Iterator[T] {
	it := &Iterator[T]{
		sem:   semaphore.NewWeighted(1),
		notes: n,
	}
	if err := n.lock(context.Background()); err == nil {
		it.cursor = n.start
		n.unlock()
	}
	return it
}

// All returns the buffer's values as a sequence backed by a fresh [Iterator]. The buffer is not
// locked while the loop body runs, so the body may call back into the buffer.
func (n *Notes[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		it := n.Iterator()
		for {
			v, err := it.Next()
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// HasNext reports whether [Iterator.Next] would return a value right now.
func (it *Iterator[T]) HasNext() bool {
	_, ok := it.step(false)
	return ok
}

// Next returns the next live value and advances past it. It fails with [ErrNoSuchElement] once
// the iterator is exhausted.
func (it *Iterator[T]) Next() (T, error) {
	v, ok := it.step(true)
	if !ok {
		return v, ErrNoSuchElement
	}
	return v, nil
}

// Remove always fails with [ErrUnsupported].
func (it *Iterator[T]) Remove() error {
	return ErrUnsupported
}

func (it *Iterator[T]) step(advance bool) (T, bool) {
	var zero T
	ctx := context.Background()

	if err := it.sem.Acquire(ctx, 1); err != nil {
		return zero, false
	}
	defer it.sem.Release(1)

	if it.done {
		return zero, false
	}

	n := it.notes
	if err := n.lock(ctx); err != nil {
		return zero, false
	}
	defer n.unlock()

	// Anything below start has been evicted. Anything at or past next is the placeholder or a
	// slot that was popped.
	number := max(it.cursor, n.start)
	for ; number < n.next; number++ {
		if e, ok := n.live(number); ok {
			if advance {
				it.cursor = number + 1
			} else {
				it.cursor = number
			}
			return e.value, true
		}
	}

	it.done = true
	return zero, false
}
