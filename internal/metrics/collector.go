package metrics

import (
	"errors"
	"time"

	"grimm.is/holdover/internal/clock"
	"grimm.is/holdover/internal/events"
	"grimm.is/holdover/internal/logging"
)

// Collector feeds the registry from the event bus and keeps the uptime gauge
// current.
type Collector struct {
	registry *Registry
	hub      *events.Hub
	logger   *logging.Logger
	interval time.Duration
	clock    clock.Clock
	started  time.Time

	sub    <-chan events.Event
	stopCh chan struct{}
	done   chan struct{}
}

// NewCollector creates a collector. interval controls how often uptime is refreshed.
func NewCollector(registry *Registry, hub *events.Hub, logger *logging.Logger, interval time.Duration, clk clock.Clock) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	clk = clock.OrReal(clk)
	return &Collector{
		registry: registry,
		hub:      hub,
		logger:   logger,
		interval: interval,
		clock:    clk,
		started:  clk.Now(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start subscribes to the hub and runs the collection loop in the background.
func (c *Collector) Start() {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())
	c.sub = c.hub.Subscribe(256, events.EventTransition, events.EventSweep, events.EventConfigReload)
	c.registry.RegisterEventStats(c.hub.Stats)

	go c.run()
}

func (c *Collector) run() {
	defer close(c.done)
	defer c.hub.Unsubscribe(c.sub)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.updateUptime()
	for {
		select {
		case e := <-c.sub:
			c.Observe(e)
		case <-ticker.C:
			c.updateUptime()
		case <-c.stopCh:
			c.logger.Info("Stopping metrics collector")
			return
		}
	}
}

// Stop stops the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.done
}

// Observe applies a single event to the registry.
func (c *Collector) Observe(e events.Event) {
	switch data := e.Data.(type) {
	case events.TransitionData:
		c.registry.RecordTransition(data.Op, data.Outcome)
		if data.Active != nil {
			c.registry.SetOverrideActive(*data.Active, data.ExpiresAt)
		}
	case events.SweepData:
		c.registry.RecordSweep(data.Result)
	case events.ConfigReloadData:
		var err error
		if data.Error != "" {
			err = errors.New(data.Error)
		}
		c.registry.RecordConfigReload(err)
	}
}

func (c *Collector) updateUptime() {
	c.registry.Uptime.Set(c.clock.Since(c.started).Seconds())
}
