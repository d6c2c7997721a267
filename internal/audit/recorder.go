package audit

import (
	"context"

	"grimm.is/holdover/internal/events"
	"grimm.is/holdover/internal/logging"
)

// Recorder copies transition events from the hub into a Store.
type Recorder struct {
	store    *Store
	hub      *events.Hub
	resource string
	logger   *logging.Logger

	sub  <-chan events.Event
	stop chan struct{}
	done chan struct{}
}

// NewRecorder creates a recorder. resource is stored with every event so the
// trail stays readable after the configured resource changes.
func NewRecorder(store *Store, hub *events.Hub, resource string, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.WithComponent("audit")
	}
	return &Recorder{
		store:    store,
		hub:      hub,
		resource: resource,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start subscribes to transitions and writes them in the background.
func (r *Recorder) Start() {
	r.sub = r.hub.Subscribe(64, events.EventTransition)
	go func() {
		defer close(r.done)
		defer r.hub.Unsubscribe(r.sub)
		for {
			select {
			case <-r.stop:
				r.drain()
				return
			case e := <-r.sub:
				r.record(e)
			}
		}
	}()
}

// drain writes whatever is already buffered so the last transitions before
// shutdown (typically the shutdown revert) are not lost.
func (r *Recorder) drain() {
	for {
		select {
		case e := <-r.sub:
			r.record(e)
		default:
			return
		}
	}
}

func (r *Recorder) record(e events.Event) {
	data, ok := e.Data.(events.TransitionData)
	if !ok {
		return
	}
	err := r.store.Write(context.Background(), Event{
		Timestamp: e.Timestamp,
		OpID:      data.OpID,
		Op:        data.Op,
		Trigger:   data.Trigger,
		Outcome:   data.Outcome,
		Error:     data.Error,
		Resource:  r.resource,
	})
	if err != nil {
		r.logger.Warn("audit write failed", "op_id", data.OpID, "error", err)
	}
}

// Stop flushes buffered events and ends the subscription.
func (r *Recorder) Stop() {
	close(r.stop)
	<-r.done
}
