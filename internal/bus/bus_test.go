package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSyncWaitsForHandlers(t *testing.T) {
	b := NewEventBus()
	var got atomic.Int32
	b.Subscribe(EventTypeMessageAppended, func(e Event) {
		time.Sleep(5 * time.Millisecond)
		got.Add(1)
	})
	b.Subscribe(EventTypeMessageAppended, func(e Event) { got.Add(1) })
	b.Subscribe(EventTypeChatFailed, func(e Event) { got.Add(100) })

	b.PublishSync(Event{Type: EventTypeMessageAppended, Data: map[string]any{"text": "hi"}})
	assert.Equal(t, int32(2), got.Load())
}

func TestPublishStampsSequence(t *testing.T) {
	b := NewEventBus()
	var mu sync.Mutex
	var seqs []uint64
	b.Subscribe(EventTypeRevealTransition, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		assert.False(t, e.Time.IsZero())
		seqs = append(seqs, e.Seq)
	})

	for i := 0; i < 3; i++ {
		b.PublishSync(Event{Type: EventTypeRevealTransition})
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestPublishAsync(t *testing.T) {
	b := NewEventBus()
	done := make(chan Event, 1)
	b.Subscribe(EventTypeConfigReloaded, func(e Event) { done <- e })

	b.Publish(Event{Type: EventTypeConfigReloaded})
	select {
	case e := <-done:
		assert.Equal(t, EventTypeConfigReloaded, e.Type)
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewEventBus()
	var calls atomic.Int32
	cancel := b.SubscribeMultiple([]EventType{EventTypeChatFailed, EventTypeSpeechFailed}, func(Event) { calls.Add(1) })
	other := b.Subscribe(EventTypeChatFailed, func(Event) {})
	require.Equal(t, 2, b.HandlerCount(EventTypeChatFailed))

	cancel()
	assert.Equal(t, 1, b.HandlerCount(EventTypeChatFailed))
	assert.Zero(t, b.HandlerCount(EventTypeSpeechFailed))

	b.PublishSync(Event{Type: EventTypeChatFailed})
	assert.Zero(t, calls.Load())

	other()
	other()
	b.Clear()
	assert.Zero(t, b.HandlerCount(EventTypeChatFailed))
}
