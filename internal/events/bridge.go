package events

// wsTopics maps the event types shown live in the UI to their WebSocket
// topics. Types not listed are never forwarded.
var wsTopics = map[EventType]string{
	EventBadge:      "badge",
	EventTransition: "transitions",
	EventSweep:      "sweeps",
}

// WSBridge relays hub events to WebSocket clients.
type WSBridge struct {
	hub     *Hub
	publish func(topic string, data any)
	stop    chan struct{}
	done    chan struct{}
}

// NewWSBridge creates a bridge that hands each relayed event to publish,
// normally WSManager.Publish.
func NewWSBridge(hub *Hub, publish func(topic string, data any)) *WSBridge {
	return &WSBridge{
		hub:     hub,
		publish: publish,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start subscribes and relays in the background until Stop.
func (b *WSBridge) Start() {
	types := make([]EventType, 0, len(wsTopics))
	for t := range wsTopics {
		types = append(types, t)
	}
	in := b.hub.Subscribe(defaultSubscriberBuffer, types...)

	go func() {
		defer close(b.done)
		defer b.hub.Unsubscribe(in)
		for {
			select {
			case <-b.stop:
				return
			case e := <-in:
				b.publish(wsTopics[e.Type], e)
			}
		}
	}()
}

// Stop ends the relay and waits for it to exit.
func (b *WSBridge) Stop() {
	close(b.stop)
	<-b.done
}
