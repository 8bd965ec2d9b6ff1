package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesEverySubscriberInOrder(t *testing.T) {
	h := New[string, int](8)
	a, cancelA := h.Subscribe("u1")
	b, cancelB := h.Subscribe("u1")
	defer cancelA()
	defer cancelB()

	for i := 1; i <= 3; i++ {
		assert.Equal(t, 2, h.Publish("u1", i))
	}

	for _, ch := range []<-chan int{a, b} {
		assert.Equal(t, 1, <-ch)
		assert.Equal(t, 2, <-ch)
		assert.Equal(t, 3, <-ch)
	}
}

func TestPublishIsScopedByKey(t *testing.T) {
	h := New[string, int](1)
	a, cancel := h.Subscribe("u1")
	defer cancel()

	assert.Equal(t, 0, h.Publish("u2", 7))
	assert.Len(t, a, 0)
}

func TestCleanupIsIdempotent(t *testing.T) {
	h := New[string, int](1)
	ch, cancel := h.Subscribe("u1")
	require.Equal(t, 1, h.SubscriberCount("u1"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.TotalSubscribers())
}

func TestFullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := New[string, int](1)
	slow, cancelSlow := h.Subscribe("k")
	defer cancelSlow()

	h.Publish("k", 1)
	h.Publish("k", 2)

	assert.Equal(t, int64(1), h.Dropped())
	assert.Equal(t, 1, <-slow)
}

func TestCloseAllThenCleanup(t *testing.T) {
	h := New[string, int](1)
	ch, cancel := h.Subscribe("k")
	h.CloseAll()

	_, open := <-ch
	assert.False(t, open)
	assert.NotPanics(t, cancel)
}
