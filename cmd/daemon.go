package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"grimm.is/holdover/internal/api"
	"grimm.is/holdover/internal/audit"
	"grimm.is/holdover/internal/badge"
	"grimm.is/holdover/internal/clock"
	"grimm.is/holdover/internal/config"
	"grimm.is/holdover/internal/ctlplane"
	"grimm.is/holdover/internal/events"
	"grimm.is/holdover/internal/health"
	"grimm.is/holdover/internal/logging"
	"grimm.is/holdover/internal/metrics"
	"grimm.is/holdover/internal/override"
	"grimm.is/holdover/internal/policy"
	"grimm.is/holdover/internal/ratelimit"
	"grimm.is/holdover/internal/scheduler"
	"grimm.is/holdover/internal/state"
)

const (
	shutdownTimeout   = 10 * time.Second
	journalSize       = 200
	limiterSweepEvery = time.Minute
	limiterMaxIdle    = 10 * time.Minute
)

// DaemonOptions controls how the daemon is assembled. The zero value runs
// with real time and the config's own listen addresses.
type DaemonOptions struct {
	ConfigPath string
	Clock      clock.Clock
	Logger     *logging.Logger

	// APIListener replaces the configured API listen address when set.
	APIListener net.Listener
}

// daemon holds every long-lived component of a running holdover process.
type daemon struct {
	cfg    *config.Config
	opts   DaemonOptions
	logger *logging.Logger

	store      state.Store
	hub        *events.Hub
	controller *override.Controller
	activator  *override.Activator
	journal    *events.Journal
	trail      *audit.Store
	recorder   *audit.Recorder
	registry   *metrics.Registry
	collector  *metrics.Collector
	health     *health.Checker
	limiter    *ratelimit.Limiter
	ws         *api.WSManager
	bridge     *events.WSBridge
	sched      *scheduler.Scheduler
	apiServer  *api.Server
	ctlServer  *ctlplane.Server
	watcher    *config.Watcher

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newDaemon builds every component without starting any of them, except the
// state store which has to be open to build the record store.
func newDaemon(cfg *config.Config, opts DaemonOptions) (*daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if level, err := logging.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	clk := clock.OrReal(opts.Clock)

	d := &daemon{cfg: cfg, opts: opts, logger: logger.WithComponent("daemon")}

	store, err := state.Open(cfg.Store.Backend, cfg.Store.Path, logger.WithComponent("state").Logger, clk)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	d.store = store

	ctx := context.Background()
	records, err := override.NewPolicyStore(ctx, store, clk)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init policy store: %w", err)
	}

	resource, err := policy.New(cfg.PolicySpec(), logger.WithComponent("policy").Logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build policy resource: %w", err)
	}

	d.hub = events.NewHub()
	d.controller, err = override.NewController(override.Options{
		Resource: resource,
		Store:    records,
		Badge:    badge.New(d.hub),
		Hub:      d.hub,
		Clock:    clk,
		Logger:   logger,
		Mode:     cfg.OverrideMode,
		TTL:      cfg.TTLDuration(),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	d.activator, err = override.NewActivator(d.controller, cfg.API.AllowPattern)
	if err != nil {
		store.Close()
		return nil, err
	}

	d.journal = events.NewJournal(d.hub, journalSize)
	if cfg.AuditEnabled() {
		path := cfg.Audit.Path
		if cfg.Store.Backend == state.BackendMemory {
			path = ":memory:"
		}
		d.trail, err = audit.NewStore(path, cfg.AuditRetention(), clk)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("open audit trail: %w", err)
		}
		d.recorder = audit.NewRecorder(d.trail, d.hub, resource.Describe(), logger.WithComponent("audit"))
	}
	d.registry = metrics.NewRegistry()
	d.collector = metrics.NewCollector(d.registry, d.hub, logger.WithComponent("metrics"), 0, clk)

	d.health = health.NewChecker(2*time.Second, clk)
	d.health.Add("store", health.StatusUnhealthy, func(ctx context.Context) error {
		_, err := store.ListBuckets(ctx)
		return err
	})
	d.health.Add("policy", health.StatusDegraded, func(ctx context.Context) error {
		_, err := resource.Get(ctx)
		return err
	})
	if d.trail != nil {
		d.health.Add("audit", health.StatusDegraded, func(ctx context.Context) error {
			_, err := d.trail.Count(ctx)
			return err
		})
	}
	if cfg.Store.Backend != state.BackendMemory {
		d.health.Add("state_dir", health.StatusDegraded, health.DirWritable(stateDir(cfg.Store)))
	}

	d.limiter = ratelimit.NewLimiter(cfg.API.RateLimit, cfg.API.RateBurst, clk)
	d.ws = api.NewWSManager(func() any { return d.controller.Status(context.Background()) })
	d.bridge = events.NewWSBridge(d.hub, d.ws.Publish)

	d.sched = scheduler.New(scheduler.Options{Logger: logger.WithComponent("scheduler"), Clock: clk})
	sweep := scheduler.NewTTLSweepTask(func(ctx context.Context) error {
		_, err := d.controller.CheckTTL(ctx)
		return err
	}, cfg.SweepDuration())
	if err := d.sched.AddTask(sweep); err != nil {
		d.closeStores()
		return nil, err
	}
	d.health.Add("ttl_sweep", health.StatusDegraded, func(context.Context) error {
		if st, ok := d.sched.GetTaskStatus(scheduler.TaskTTLSweep); ok && st.LastError != "" {
			return errors.New(st.LastError)
		}
		return nil
	})
	if m, ok := store.(state.Maintainer); ok {
		if err := d.sched.AddTask(scheduler.NewStoreMaintenanceTask(m.Maintain, cfg.MaintenanceDuration())); err != nil {
			d.closeStores()
			return nil, err
		}
	}
	if d.trail != nil {
		prune := scheduler.NewAuditPruneTask(func(ctx context.Context) error {
			n, err := d.trail.Prune(ctx)
			if n > 0 {
				d.logger.Info("pruned audit events", "count", n)
			}
			return err
		})
		if err := d.sched.AddTask(prune); err != nil {
			d.closeStores()
			return nil, err
		}
	}

	if cfg.APIEnabled() {
		apiOpts := api.Options{
			Commands:  d.controller,
			Activator: d.activator,
			Journal:   d.journal,
			Metrics:   d.registry,
			Health:    d.health,
			Limiter:   d.limiter,
			WS:        d.ws,
			Logger:    logger.WithComponent("api"),
			Clock:     clk,
		}
		if d.trail != nil {
			apiOpts.Audit = d.trail
		}
		d.apiServer, err = api.NewServer(apiOpts)
		if err != nil {
			d.closeStores()
			return nil, err
		}
	}

	ctlOpts := ctlplane.Options{
		Controller: d.controller,
		Activator:  d.activator,
		Journal:    d.journal,
		Logger:     logger.WithComponent("ctlplane"),
		Clock:      clk,
	}
	if d.trail != nil {
		ctlOpts.Audit = d.trail
	}
	d.ctlServer, err = ctlplane.NewServer(ctlOpts)
	if err != nil {
		d.closeStores()
		return nil, err
	}

	if opts.ConfigPath != "" {
		if _, statErr := os.Stat(opts.ConfigPath); statErr == nil {
			d.watcher, err = config.NewWatcher(config.WatcherOptions{
				Path:   opts.ConfigPath,
				Hub:    d.hub,
				Logger: logger,
				OnChange: func(next *config.Config) {
					if fields := config.RestartFields(cfg, next); len(fields) > 0 {
						d.logger.Warn("config changes need a restart", "fields", fields)
					}
				},
			})
			if err != nil {
				d.logger.Warn("config watcher disabled", "error", err)
				d.watcher = nil
			}
		}
	}
	return d, nil
}

// closeStores releases the persistent stores when construction fails.
func (d *daemon) closeStores() {
	if d.trail != nil {
		d.trail.Close()
	}
	d.store.Close()
}

// stateDir is the directory that has to stay writable for the store.
func stateDir(sc *config.StoreConfig) string {
	if sc.Backend == state.BackendBadger {
		return sc.Path
	}
	return filepath.Dir(sc.Path)
}

// start brings every component up. The TTL sweep runs once immediately so
// an override left behind by a previous process is handled at startup.
func (d *daemon) start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	d.journal.Start()
	if d.recorder != nil {
		d.recorder.Start()
	}
	d.collector.Start()
	d.bridge.Start()
	d.limiter.StartCleanup(ctx, limiterSweepEvery, limiterMaxIdle)
	d.sched.Start()

	if err := d.ctlServer.Start(d.cfg.Control.Socket); err != nil {
		return fmt.Errorf("start control plane: %w", err)
	}

	if d.apiServer != nil {
		ln := d.opts.APIListener
		if ln == nil {
			var err error
			ln, err = net.Listen("tcp", d.cfg.API.Listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", d.cfg.API.Listen, err)
			}
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.apiServer.Serve(ln); err != nil {
				d.logger.Error("API server stopped", "error", err)
			}
		}()
	}

	if d.watcher != nil {
		d.watcher.Start(ctx)
	}

	d.logger.Info("holdover started",
		"resource", d.cfg.Resource.Kind,
		"mode", d.cfg.OverrideMode,
		"ttl", d.cfg.TTL,
		"sweep_interval", d.cfg.SweepInterval,
		"socket", d.cfg.Control.Socket)
	return nil
}

// shutdown reverts the override when configured, then stops every component
// in reverse start order. It is safe to call after a failed start.
func (d *daemon) shutdown() {
	if d.cfg.ShouldRevertOnShutdown() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		outcome, err := d.controller.Revert(override.WithTrigger(ctx, override.TriggerShutdown))
		cancel()
		if err != nil {
			d.logger.Error("revert on shutdown failed", "outcome", outcome, "error", err)
		} else {
			d.logger.Info("revert on shutdown", "outcome", outcome)
		}
	}

	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.apiServer.Shutdown(ctx); err != nil {
			d.logger.Warn("API shutdown", "error", err)
		}
		cancel()
	}
	d.wg.Wait()

	if err := d.ctlServer.Stop(); err != nil {
		d.logger.Warn("control plane shutdown", "error", err)
	}
	d.sched.Stop()
	if d.cancel != nil {
		d.cancel()
	}
	d.bridge.Stop()
	d.collector.Stop()
	d.journal.Stop()
	if d.recorder != nil {
		d.recorder.Stop()
	}
	if d.trail != nil {
		if err := d.trail.Close(); err != nil {
			d.logger.Warn("close audit trail", "error", err)
		}
	}

	if err := d.store.Close(); err != nil {
		d.logger.Warn("close state store", "error", err)
	}
	d.logger.Info("holdover stopped")
}

// RunDaemon loads the config and runs until ctx is cancelled or the process
// receives SIGINT or SIGTERM.
func RunDaemon(ctx context.Context, cfg *config.Config, opts DaemonOptions) error {
	d, err := newDaemon(cfg, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.start(ctx); err != nil {
		d.shutdown()
		return err
	}

	<-ctx.Done()
	d.logger.Info("shutting down")
	d.shutdown()
	return nil
}
