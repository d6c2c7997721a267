package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(10, EventTransition)

	hub.EmitTransition(TransitionData{OpID: "op-1", Op: "apply", Outcome: "applied"})

	select {
	case e := <-ch:
		assert.Equal(t, EventTransition, e.Type)
		assert.False(t, e.Timestamp.IsZero())
		data, ok := e.Data.(TransitionData)
		require.True(t, ok, "expected TransitionData")
		assert.Equal(t, "applied", data.Outcome)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestHub_GlobalSubscription(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(10)

	hub.EmitBadge("ON")
	hub.EmitSweep("idle", 0)
	hub.EmitTransition(TransitionData{Op: "revert"})

	assert.Len(t, ch, 3)
}

func TestHub_TypeFiltering(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(10, EventBadge)

	hub.EmitTransition(TransitionData{Op: "apply"})
	hub.EmitBadge("ON")
	hub.EmitSweep("idle", 0)
	hub.EmitBadge("")

	assert.Len(t, ch, 2)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(10, EventBadge)
	hub.Unsubscribe(ch)

	hub.EmitBadge("ON")
	assert.Len(t, ch, 0)
}

func TestHub_NonBlocking(t *testing.T) {
	hub := NewHub()
	_ = hub.Subscribe(1, EventSweep)

	for i := 0; i < 10; i++ {
		hub.EmitSweep("idle", 0)
	}

	published, dropped := hub.Stats()
	assert.Equal(t, uint64(10), published)
	assert.Equal(t, uint64(9), dropped)
}

func TestHub_NilIsNoop(t *testing.T) {
	var hub *Hub
	assert.NotPanics(t, func() { hub.EmitBadge("ON") })
}

func TestHub_Concurrent(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(1000, EventSweep)

	var wg sync.WaitGroup
	const numPublishers = 10
	const eventsPerPublisher = 100

	for i := 0; i < numPublishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerPublisher; j++ {
				hub.EmitSweep("idle", 0)
			}
		}()
	}
	wg.Wait()

	published, dropped := hub.Stats()
	assert.Equal(t, uint64(numPublishers*eventsPerPublisher), published)
	assert.Equal(t, uint64(0), dropped)
	assert.Len(t, ch, numPublishers*eventsPerPublisher)
}

func TestWSBridge(t *testing.T) {
	hub := NewHub()

	var mu sync.Mutex
	topics := make(map[string]int)
	bridge := NewWSBridge(hub, func(topic string, data any) {
		mu.Lock()
		defer mu.Unlock()
		topics[topic]++
	})
	bridge.Start()

	hub.EmitBadge("ON")
	hub.EmitTransition(TransitionData{Op: "apply"})
	hub.Publish(Event{Type: EventConfigReload})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return topics["badge"] == 1 && topics["transitions"] == 1
	}, time.Second, 10*time.Millisecond)

	bridge.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, topics, 2, "config reloads are not forwarded")
}

func TestJournal(t *testing.T) {
	hub := NewHub()
	j := NewJournal(hub, 3)
	j.Start()
	defer j.Stop()

	for _, outcome := range []string{"applied", "busy", "reverted", "already_reverted"} {
		hub.EmitTransition(TransitionData{Outcome: outcome})
	}
	hub.EmitBadge("ON")

	require.Eventually(t, func() bool {
		last := j.Recent(1)
		return len(last) == 1 && last[0].Data.(TransitionData).Outcome == "already_reverted"
	}, time.Second, 10*time.Millisecond)

	recent := j.Recent(0)
	var got []string
	for _, e := range recent {
		got = append(got, e.Data.(TransitionData).Outcome)
	}
	assert.Equal(t, []string{"busy", "reverted", "already_reverted"}, got)

	last := j.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, "already_reverted", last[0].Data.(TransitionData).Outcome)
}
