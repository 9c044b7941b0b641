package notes

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T comparable](it *Iterator[T]) []T {
	values := []T{}
	for it.HasNext() {
		v, err := it.Next()
		if err != nil {
			break
		}
		values = append(values, v)
	}
	return values
}

func TestIterator(t *testing.T) {

	t.Run("yields every value once then is exhausted", func(t *testing.T) {
		testCases := []struct {
			name     string
			adds     int
			expected []int
		}{
			{name: "empty", adds: 0, expected: []int{}},
			{name: "partially filled", adds: 4, expected: sequence(1, 4)},
			{name: "full", adds: 10, expected: sequence(1, 10)},
			{name: "wrapped", adds: 23, expected: sequence(14, 23)},
		}

		for _, tt := range testCases {
			t.Run(tt.name, func(t *testing.T) {
				it := filled(10, tt.adds).Iterator()
				assert.Equal(t, tt.expected, drain(it))
				assert.False(t, it.HasNext())
				_, err := it.Next()
				assert.ErrorIs(t, err, ErrNoSuchElement)
			})
		}
	})

	t.Run("matches indexed access", func(t *testing.T) {
		n := filled(10, 16)
		i := 0
		for v := range n.All() {
			expected, err := n.Get(i)
			require.NoError(t, err)
			assert.Equal(t, expected, v)
			i++
		}
		assert.Equal(t, n.Len(), i)
	})

	t.Run("HasNext does not advance", func(t *testing.T) {
		it := filled(10, 2).Iterator()
		assert.True(t, it.HasNext())
		assert.True(t, it.HasNext())
		v, err := it.Next()
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})

	t.Run("Next works without HasNext", func(t *testing.T) {
		it := filled(10, 3).Iterator()
		for _, expected := range []int{1, 2, 3} {
			v, err := it.Next()
			require.NoError(t, err)
			assert.Equal(t, expected, v)
		}
		_, err := it.Next()
		assert.ErrorIs(t, err, ErrNoSuchElement)
	})

	t.Run("Remove is unsupported", func(t *testing.T) {
		n := filled(10, 3)
		it := n.Iterator()
		it.Next()
		assert.ErrorIs(t, it.Remove(), ErrUnsupported)
		assert.ErrorIs(t, it.Remove(), ErrUnsupported)
		assert.Equal(t, 3, n.Len())
	})

	t.Run("skips values evicted mid traversal", func(t *testing.T) {
		n := filled(10, 10)
		it := n.Iterator()
		v, _ := it.Next()
		assert.Equal(t, 1, v)

		for i := 11; i <= 15; i++ {
			n.Add(i)
		}

		assert.Equal(t, sequence(6, 15), drain(it))
	})

	t.Run("tolerates popping its current position", func(t *testing.T) {
		n := filled(10, 5)
		it := n.Iterator()
		for i := 0; i < 4; i++ {
			it.Next()
		}
		n.Pop()
		n.Pop()

		assert.False(t, it.HasNext())
		n.Add(99)
		assert.False(t, it.HasNext(), "an exhausted iterator stays exhausted")
	})

	t.Run("sees values added behind the cursor", func(t *testing.T) {
		n := New[int](10)
		it := n.Iterator()
		n.Add(1)
		n.Add(2)

		assert.Equal(t, []int{1, 2}, drain(it))
	})

	t.Run("sees a value added into a popped slot in order", func(t *testing.T) {
		n := filled(10, 5)
		it := n.Iterator()
		it.Next()
		it.Next()
		n.Pop()
		n.Add(50)

		assert.Equal(t, []int{3, 4, 50}, drain(it))
	})

	t.Run("loop body may use the buffer", func(t *testing.T) {
		n := filled(10, 6)
		seen := []int{}
		for v := range n.All() {
			seen = append(seen, v)
			if v == 3 {
				n.Pop()
			}
			assert.True(t, n.Contains(v) || v == 6)
		}
		assert.Equal(t, sequence(1, 5), seen)
	})

	t.Run("break stops the sequence", func(t *testing.T) {
		n := filled(10, 8)
		seen := []int{}
		for v := range n.All() {
			if v > 2 {
				break
			}
			seen = append(seen, v)
		}
		assert.Equal(t, []int{1, 2}, seen)
	})

	t.Run("shared iterator hands out each value once", func(t *testing.T) {
		n := New[int](1000)
		for i := 0; i < 1000; i++ {
			n.Add(i)
		}
		it := n.Iterator()

		mu := sync.Mutex{}
		seen := map[int]int{}
		wg := sync.WaitGroup{}
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					v, err := it.Next()
					if err != nil {
						return
					}
					mu.Lock()
					seen[v]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, 1000)
		for v, count := range seen {
			assert.Equal(t, 1, count, "value %d", v)
		}
	})

	t.Run("traversal alongside writers stays ordered", func(t *testing.T) {
		n := New[int](64)
		for i := 0; i < 64; i++ {
			n.Add(i)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 64; i < 5000; i++ {
				n.Add(i)
			}
		}()

		last := -1
		for v := range n.All() {
			assert.Greater(t, v, last)
			last = v
		}
		<-done
	})
}
