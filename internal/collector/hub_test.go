package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHubDropsSlowSubscribers(t *testing.T) {
	h := newHub()
	fast := h.subscribe()
	slow := h.subscribe()

	for i := range subscriberBuffer {
		assert.Zero(t, h.broadcast([]byte{byte(i)}))
		<-fast.ch
	}
	// slow never read and is now full
	assert.Equal(t, 1, h.broadcast([]byte("overflow")))
	assert.Equal(t, 1, h.len())

	assert.Equal(t, []byte("overflow"), <-fast.ch)

	drained := 0
	for range slow.ch {
		drained++
	}
	assert.Equal(t, subscriberBuffer, drained)
}

func TestHubCloseAll(t *testing.T) {
	h := newHub()
	s := h.subscribe()
	h.closeAll()

	_, ok := <-s.ch
	assert.False(t, ok)
	assert.Zero(t, h.len())

	// Unsubscribing after close is safe
	h.unsubscribe(s)
}
