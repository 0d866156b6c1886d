package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastReachesAllSubscribers(t *testing.T) {
	h := newHub[int]()
	a := h.Subscribe(4)
	b := h.Subscribe(4)

	h.Broadcast(7)

	assert.Equal(t, 7, <-a.ch)
	assert.Equal(t, 7, <-b.ch)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := newHub[int]()
	sub := h.Subscribe(4)

	h.Unsubscribe(sub)

	_, open := <-sub.ch
	assert.False(t, open)

	// Broadcast after unsubscribe must not panic on the closed channel.
	h.Broadcast(1)
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	h := newHub[int]()
	sub := h.Subscribe(1)

	h.Broadcast(1)
	h.Broadcast(2) // buffer full, dropped

	require.Equal(t, 1, <-sub.ch)
	assert.Empty(t, sub.ch)
}
