package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_PublishDeliversInOrder(t *testing.T) {
	b := NewMemoryBus(nil)
	defer b.Close()

	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		b.Publish(&Event{Type: TypeStateChanged, Payload: i, SentAt: time.Now().UTC()})
	}

	for i := 0; i < 5; i++ {
		select {
		case evt := <-sub.Events():
			require.NotNil(t, evt)
			assert.Equal(t, i, evt.Payload)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestMemoryBus_DropsOldestOnOverflow(t *testing.T) {
	b := NewMemoryBus(nil)
	defer b.Close()

	sub := b.Subscribe()
	defer sub.Close()

	total := QueueCapacity + 10
	for i := 0; i < total; i++ {
		b.Publish(&Event{Type: TypeStateChanged, Payload: i, SentAt: time.Now().UTC()})
	}

	// The freshest events must survive; the oldest ones were dropped.
	first := <-sub.Events()
	assert.Equal(t, 10, first.Payload)
}

func TestMemoryBus_CloseSendsNilSentinel(t *testing.T) {
	b := NewMemoryBus(nil)
	sub := b.Subscribe()

	b.Close()

	select {
	case evt, ok := <-sub.Events():
		assert.False(t, ok)
		assert.Nil(t, evt)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close")
	}
}

func TestMemoryBus_SlowSubscriberDoesNotBlockFast(t *testing.T) {
	b := NewMemoryBus(nil)
	defer b.Close()

	slow := b.Subscribe()
	fast := b.Subscribe()
	defer fast.Close()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < QueueCapacity*2; i++ {
			b.Publish(&Event{Type: TypeStateChanged, Payload: i, SentAt: time.Now().UTC()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish loop blocked on slow subscriber")
	}

	select {
	case evt := <-fast.Events():
		require.NotNil(t, evt)
	case <-time.After(time.Second):
		t.Fatal("fast subscriber received nothing")
	}
}
