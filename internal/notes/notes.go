// Package notes implements a bounded, insertion-ordered buffer that is safe for concurrent use.
//
// A [Notes] buffer holds at most a fixed number of values. Adding to a full buffer evicts the
// oldest value. Values are addressed by index relative to the oldest live value, so Get(0) is
// always the oldest value still held. Values can be peeked or popped from the tail.
//
// Every entry has a sequence number. Live entries occupy the contiguous range [start, next),
// where next is the placeholder slot the following Add will fill. Eviction advances start and
// Pop moves next back, so both ends stay O(1) and indexed access is a single map lookup.
//
// All operations that read or mutate entries hold one FIFO-fair lock. The Context variants give
// up waiting for that lock when the context is done and leave the buffer untouched.
//
// Iterators do not hold the lock for a whole traversal. See [Iterator] for the consistency
// guarantees.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/sync/semaphore"
)

// MinCapacity is the smallest capacity a buffer is created with.
const MinCapacity = 10

type entry[T comparable] struct {
	value  T
	number int
	exists bool
}

// Notes is a bounded, insertion-ordered buffer. The zero value is not usable; create buffers
// with [New].
type Notes[T comparable] struct {
	sem      *semaphore.Weighted
	capacity int
	size     atomic.Int64

	// Guarded by sem.
	count    int
	start    int
	next     int
	byNumber map[int]*entry[T]
	byValue  map[T]int

	logger  *slog.Logger
	onEvict func(T)
	metrics *notesMetrics
}

// New creates an empty buffer. Capacities below [MinCapacity] are raised to MinCapacity.
func New[T comparable](capacity int, opts ...Option[T]) *Notes[T] {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	o := applyOptions(opts...)

	n := &Notes[T]{
		sem:      semaphore.NewWeighted(1),
		capacity: capacity,
		byNumber: make(map[int]*entry[T], capacity),
		byValue:  make(map[T]int, capacity),
		logger:   o.logger,
		onEvict:  o.onEvict,
	}

	if o.registerer != nil {
		m, err := newNotesMetrics(o.registerer, o.metricsPrefix)
		if err != nil {
			n.logger.Warn("notes: metrics disabled", "component", o.metricsPrefix, "error", err)
		} else {
			n.metrics = m
			m.updateSize(0, capacity)
		}
	}

	return n
}

func (n *Notes[T]) lock(ctx context.Context) error {
	// Acquire may succeed on a free semaphore even when ctx is already done.
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.sem.Acquire(ctx, 1)
}

func (n *Notes[T]) unlock() {
	n.sem.Release(1)
}

// Capacity returns the maximum number of values the buffer holds.
func (n *Notes[T]) Capacity() int {
	return n.capacity
}

// Len returns the number of live values.
func (n *Notes[T]) Len() int {
	return int(n.size.Load())
}

// IsEmpty reports whether the buffer holds no values.
func (n *Notes[T]) IsEmpty() bool {
	return n.Len() == 0
}

// Add appends value, evicting the oldest value if the buffer is full. It reports whether the
// value was stored. Callers that need the reason should use [Notes.AddContext].
func (n *Notes[T]) Add(value T) bool {
	if err := n.AddContext(context.Background(), value); err != nil {
		n.logger.Debug("notes: add rejected", "error", err)
		return false
	}
	return true
}

// AddContext appends value, evicting the oldest value if the buffer is full. It fails with
// [ErrNilValue] for nil values and with [ErrInternal] if the value cannot be stored, for example
// because its dynamic type is not hashable or it is not equal to itself.
func (n *Notes[T]) AddContext(ctx context.Context, value T) error {
	if isNil(value) {
		return ErrNilValue
	}
	if err := n.lock(ctx); err != nil {
		return err
	}
	evicted, didEvict, err := func() (T, bool, error) {
		defer n.unlock()
		return n.add(value)
	}()
	if err != nil {
		n.logger.Error("notes: add failed", "error", err)
		return err
	}
	if didEvict && n.onEvict != nil {
		n.onEvict(evicted)
	}
	return nil
}

func (n *Notes[T]) add(value T) (evicted T, didEvict bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	// Hash the value before touching any state so an unhashable value leaves the buffer as it was.
	held := n.byValue[value]

	// A value that is not equal to itself, such as NaN, could never be found again to retire.
	if value != value {
		return evicted, false, fmt.Errorf("%w: value %v is not equal to itself", ErrInternal, value)
	}

	if n.count == n.capacity {
		oldest := n.byNumber[n.start]
		if oldest.value == value {
			held--
		}
		evicted, didEvict = n.retire(oldest), true
		n.start = oldest.number + 1
		if n.metrics != nil {
			n.metrics.recordEviction()
		}
	}

	e := &entry[T]{value: value, number: n.next, exists: true}
	n.byNumber[e.number] = e
	n.byValue[value] = held + 1
	n.next++
	n.count++
	n.size.Store(int64(n.count))

	if n.metrics != nil {
		n.metrics.recordAdd(n.count, n.capacity)
	}
	return evicted, didEvict, nil
}

// retire removes e from both indexes and marks it dead.
func (n *Notes[T]) retire(e *entry[T]) T {
	delete(n.byNumber, e.number)
	if held := n.byValue[e.value]; held > 1 {
		n.byValue[e.value] = held - 1
	} else {
		delete(n.byValue, e.value)
	}
	e.exists = false
	n.count--
	n.size.Store(int64(n.count))
	return e.value
}

// live returns the live entry with the given sequence number.
func (n *Notes[T]) live(number int) (*entry[T], bool) {
	e, ok := n.byNumber[number]
	if !ok || !e.exists {
		return nil, false
	}
	return e, true
}

// Get returns the value at index, where index 0 is the oldest live value.
func (n *Notes[T]) Get(index int) (T, error) {
	return n.GetContext(context.Background(), index)
}

// GetContext is [Notes.Get] but gives up waiting for the lock when ctx is done.
func (n *Notes[T]) GetContext(ctx context.Context, index int) (T, error) {
	var zero T
	if err := n.lock(ctx); err != nil {
		return zero, err
	}
	defer n.unlock()
	return n.get(index)
}

func (n *Notes[T]) get(index int) (T, error) {
	var zero T
	if index < 0 {
		return zero, outOfRange(index, n.count)
	}
	e, ok := n.live(n.start + index)
	if !ok {
		return zero, outOfRange(index, n.count)
	}
	return e.value, nil
}

// Segment returns the values at indexes begin through end inclusive, oldest first. It returns
// an empty slice when begin > end.
func (n *Notes[T]) Segment(begin, end int) ([]T, error) {
	return n.SegmentContext(context.Background(), begin, end)
}

// SegmentContext is [Notes.Segment] but gives up waiting for the lock when ctx is done.
func (n *Notes[T]) SegmentContext(ctx context.Context, begin, end int) ([]T, error) {
	if err := n.lock(ctx); err != nil {
		return nil, err
	}
	defer n.unlock()

	if begin < 0 {
		return nil, outOfRange(begin, n.count)
	}
	if end > n.count-1 {
		return nil, outOfRange(end, n.count)
	}

	segment := make([]T, 0, max(end-begin+1, 0))
	for i := begin; i <= end; i++ {
		v, err := n.get(i)
		if err != nil {
			return nil, err
		}
		segment = append(segment, v)
	}
	return segment, nil
}

// Snapshot copies the live values, oldest first, under a single hold of the lock.
func (n *Notes[T]) Snapshot() []T {
	values, _ := n.SnapshotContext(context.Background())
	return values
}

// SnapshotContext is [Notes.Snapshot] but gives up waiting for the lock when ctx is done.
func (n *Notes[T]) SnapshotContext(ctx context.Context) ([]T, error) {
	if err := n.lock(ctx); err != nil {
		return nil, err
	}
	defer n.unlock()

	values := make([]T, 0, n.count)
	for number := n.start; number < n.next; number++ {
		if e, ok := n.live(number); ok {
			values = append(values, e.value)
		}
	}
	return values, nil
}

// Peek returns the newest value without removing it. The second result is false when the
// buffer is empty.
func (n *Notes[T]) Peek() (T, bool) {
	v, err := n.PeekContext(context.Background())
	return v, err == nil
}

// PeekContext returns the newest value. It fails with [ErrOutOfRange] when the buffer is empty.
func (n *Notes[T]) PeekContext(ctx context.Context) (T, error) {
	var zero T
	if err := n.lock(ctx); err != nil {
		return zero, err
	}
	defer n.unlock()

	if n.count == 0 {
		return zero, outOfRange(0, 0)
	}
	if n.metrics != nil {
		n.metrics.recordPeek()
	}
	return n.byNumber[n.next-1].value, nil
}

// Pop removes and returns the newest value. The second result is false when the buffer is
// empty.
func (n *Notes[T]) Pop() (T, bool) {
	v, err := n.PopContext(context.Background())
	return v, err == nil
}

// PopContext removes and returns the newest value. It fails with [ErrOutOfRange] when the buffer
// is empty.
func (n *Notes[T]) PopContext(ctx context.Context) (T, error) {
	var zero T
	if err := n.lock(ctx); err != nil {
		return zero, err
	}
	defer n.unlock()

	if n.count == 0 {
		return zero, outOfRange(0, 0)
	}

	// The placeholder moves back onto the popped slot. Popping the last value therefore leaves
	// start == next, which is the empty state.
	last := n.byNumber[n.next-1]
	value := n.retire(last)
	n.next = last.number

	if n.metrics != nil {
		n.metrics.recordPop(n.count, n.capacity)
	}
	return value, nil
}

// Contains reports whether value is held by a live entry. Nil values are never contained.
func (n *Notes[T]) Contains(value T) bool {
	ok, _ := n.ContainsContext(context.Background(), value)
	return ok
}

// ContainsContext is [Notes.Contains] but gives up waiting for the lock when ctx is done.
func (n *Notes[T]) ContainsContext(ctx context.Context, value T) (ok bool, err error) {
	if isNil(value) {
		return false, nil
	}
	if err := n.lock(ctx); err != nil {
		return false, err
	}
	defer n.unlock()

	// Unhashable dynamic values cannot have been stored.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_, ok = n.byValue[value]
	return ok, nil
}

// String renders the live values oldest first, e.g. "[1, 2, 3]".
func (n *Notes[T]) String() string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.WriteString("[")
	for i, v := range n.Snapshot() {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprint(buf, v)
	}
	buf.WriteString("]")
	return buf.String()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}
