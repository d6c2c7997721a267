package events

import "sync"

// Journal keeps the most recent transition events in memory so the status
// surfaces can show what the controller did lately.
type Journal struct {
	mu      sync.RWMutex
	entries []Event
	size    int
	head    int
	count   int

	hub  *Hub
	sub  <-chan Event
	stop chan struct{}
	done chan struct{}
}

// NewJournal creates a journal retaining up to size events.
func NewJournal(hub *Hub, size int) *Journal {
	if size <= 0 {
		size = 100
	}
	return &Journal{
		entries: make([]Event, size),
		size:    size,
		hub:     hub,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start subscribes to transition and config reload events.
func (j *Journal) Start() {
	j.sub = j.hub.Subscribe(64, EventTransition, EventConfigReload)
	go func() {
		defer close(j.done)
		defer j.hub.Unsubscribe(j.sub)
		for {
			select {
			case <-j.stop:
				return
			case e := <-j.sub:
				j.add(e)
			}
		}
	}()
}

// Stop ends the subscription.
func (j *Journal) Stop() {
	close(j.stop)
	<-j.done
}

func (j *Journal) add(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[j.head] = e
	j.head = (j.head + 1) % j.size
	if j.count < j.size {
		j.count++
	}
}

// Recent returns up to n events, newest last. n <= 0 returns everything held.
func (j *Journal) Recent(n int) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n <= 0 || n > j.count {
		n = j.count
	}
	out := make([]Event, n)
	start := (j.head - n + j.size) % j.size
	for i := 0; i < n; i++ {
		out[i] = j.entries[(start+i)%j.size]
	}
	return out
}
