package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	assert.IsType(t, &Buffered[int]{}, New[int](4))
	assert.IsType(t, &Unbuffered[int]{}, New[int](0))
}

func TestBuffered_TrySendRespectsCapacity(t *testing.T) {
	ch := NewBuffered[string](2)

	assert.True(t, ch.TrySend("a"))
	assert.True(t, ch.TrySend("b"))
	assert.False(t, ch.TrySend("c"), "full buffer rejects")
	assert.Equal(t, 2, ch.Len())

	assert.Equal(t, "a", <-ch.Receive())
	assert.True(t, ch.TrySend("c"))
	assert.Equal(t, 2, ch.Len())
}

func TestUnbuffered_TrySendNeedsReceiver(t *testing.T) {
	ch := NewUnbuffered[int]()
	assert.False(t, ch.TrySend(1))
	assert.Equal(t, 0, ch.Len())

	got := make(chan int)
	go func() { got <- <-ch.Receive() }()
	ch.Send(7)
	assert.Equal(t, 7, <-got)
}

func TestClose(t *testing.T) {
	ch := New[int](1)
	ch.Send(1)
	ch.Close()

	v, ok := <-ch.Receive()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = <-ch.Receive()
	assert.False(t, ok)
}
