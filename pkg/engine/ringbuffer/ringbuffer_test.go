package ringbuffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingBufferCapacityRounding(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		want      int
	}{
		{"below minimum", 0, 2},
		{"exact power of two", 8, 8},
		{"rounds up", 5, 8},
		{"rounds up large", 100, 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New[int](tt.requested)
			require.Equal(t, tt.want, r.Cap())
		})
	}
}

func TestRingBufferPushPop(t *testing.T) {
	r := New[int](4)

	_, ok := r.Pop()
	require.False(t, ok, "pop on empty must fail")

	for i := 0; i < 4; i++ {
		require.True(t, r.Push(i))
	}
	require.False(t, r.Push(4), "push on full must fail")
	require.Equal(t, 4, r.Len())

	for i := 0; i < 4; i++ {
		v, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok = r.Pop()
	require.False(t, ok)
}

func TestRingBufferWrapAround(t *testing.T) {
	r := New[int](4)

	// cycle through many times the capacity to exercise index wrapping
	for i := 0; i < 100; i++ {
		require.True(t, r.Push(i))
		v, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	require.Equal(t, 0, r.Len())
}

func TestRingBufferPeek(t *testing.T) {
	r := New[string](2)

	_, ok := r.Peek()
	require.False(t, ok)

	r.Push("a")
	v, ok := r.Peek()
	require.True(t, ok)
	require.Equal(t, "a", v)
	require.Equal(t, 1, r.Len(), "peek must not consume")
}

func TestRingBufferClear(t *testing.T) {
	r := New[int](4)
	r.Push(1)
	r.Push(2)
	r.Clear()
	require.Equal(t, 0, r.Len())
	require.True(t, r.Push(3))
	v, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestRingBufferSingleProducerSingleConsumer(t *testing.T) {
	r := New[int](64)
	const count = 10000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < count; {
			if r.Push(i) {
				i++
			}
		}
	}()

	got := make([]int, 0, count)
	go func() {
		defer wg.Done()
		for len(got) < count {
			if v, ok := r.Pop(); ok {
				got = append(got, v)
			}
		}
	}()

	wg.Wait()
	for i, v := range got {
		require.Equal(t, i, v)
	}
}
