// Package override implements the temporary policy override: apply it,
// revert it, and sweep for overrides whose TTL has run out.
//
// At most one apply or revert runs at a time per Controller. A call that
// arrives while another is in flight returns OutcomeBusy without touching the
// policy or the saved record. Once a transition starts it runs to completion
// even if the caller's context is cancelled.
package override

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"grimm.is/holdover/internal/badge"
	"grimm.is/holdover/internal/clock"
	"grimm.is/holdover/internal/events"
	"grimm.is/holdover/internal/logging"
	"grimm.is/holdover/internal/policy"
)

// Defaults match the browser extension holdover grew out of.
const (
	DefaultTTL           = 300 * time.Second
	DefaultSweepInterval = 60 * time.Second
)

// Operation names used in logs, events and metrics.
const (
	OpApply  = "apply"
	OpRevert = "revert"
)

// Indicator receives badge text at the terminal success points.
type Indicator interface {
	Set(text string)
}

// Options configures a Controller.
type Options struct {
	Resource policy.Resource
	Store    RecordStore
	Badge    Indicator     // optional
	Hub      *events.Hub   // optional
	Clock    clock.Clock   // optional
	Logger   *logging.Logger
	Mode     string        // value forced while overridden, DefaultMode if empty
	TTL      time.Duration // DefaultTTL if zero
}

// Controller owns the override state machine.
type Controller struct {
	resource policy.Resource
	store    RecordStore
	badge    Indicator
	hub      *events.Hub
	clock    clock.Clock
	logger   *logging.Logger
	mode     string
	ttl      time.Duration

	inFlight atomic.Bool
}

// NewController validates opts and returns a Controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Resource == nil {
		return nil, fmt.Errorf("policy resource is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if opts.Mode == "" {
		opts.Mode = policy.DefaultMode
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.TTL < time.Second {
		return nil, fmt.Errorf("ttl must be at least one second, got %s", opts.TTL)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}

	return &Controller{
		resource: opts.Resource,
		store:    opts.Store,
		badge:    opts.Badge,
		hub:      opts.Hub,
		clock:    clock.OrReal(opts.Clock),
		logger:   opts.Logger.WithComponent("override"),
		mode:     opts.Mode,
		ttl:      opts.TTL,
	}, nil
}

// Mode returns the value the controller forces while overridden.
func (c *Controller) Mode() string { return c.mode }

// TTL returns how long an override lasts.
func (c *Controller) TTL() time.Duration { return c.ttl }

// InFlight reports whether a transition currently holds the guard.
func (c *Controller) InFlight() bool { return c.inFlight.Load() }

// transition carries the per-call context of one apply or revert.
type transition struct {
	id      string
	op      string
	trigger string
	log     *logging.Logger
}

func (c *Controller) begin(ctx context.Context, op string) *transition {
	id := uuid.NewString()
	trigger := TriggerFrom(ctx)
	return &transition{
		id:      id,
		op:      op,
		trigger: trigger,
		log:     c.logger.WithOp(id).WithFields(map[string]any{"action": op, "trigger": trigger}),
	}
}

// Apply forces the policy into override mode and records how to undo it.
//
// The saved record is written before the policy is changed. If the change
// then fails the record is cleared again so it never claims an override that
// is not in effect.
func (c *Controller) Apply(ctx context.Context) (Outcome, error) {
	tr := c.begin(ctx, OpApply)
	if !c.inFlight.CompareAndSwap(false, true) {
		return c.finish(tr, OutcomeBusy, nil, nil)
	}
	defer c.inFlight.Store(false)
	ctx = context.WithoutCancel(ctx)

	current, err := c.resource.Get(ctx)
	if err != nil {
		tr.log.Error("read policy failed", "call", "resource.get", "error", err)
		return c.finish(tr, OutcomeReadFailed, fmt.Errorf("%w: %w", ErrReadFailed, err), nil)
	}

	if current == c.mode {
		c.setBadge(badge.On)
		return c.finish(tr, OutcomeAlreadyApplied, nil, nil)
	}

	rec, err := c.store.Save(ctx, current, c.ttl)
	if err != nil {
		tr.log.Error("save prior policy failed", "call", "store.save", "prior", current, "error", err)
		return c.finish(tr, OutcomeSaveFailed, fmt.Errorf("%w: %w", ErrSaveFailed, err), nil)
	}

	if err := c.resource.Set(ctx, c.mode); err != nil {
		tr.log.Error("set override failed", "call", "resource.set", "value", c.mode, "error", err)
		if cerr := c.store.Clear(ctx); cerr != nil {
			tr.log.Error("rollback of saved record failed", "call", "store.clear", "error", cerr)
		}
		return c.finish(tr, OutcomeApplyFailed, fmt.Errorf("%w: %w", ErrApplyFailed, err), nil)
	}

	tr.log.Info("override applied", "prior", current, "expires_at", rec.Expiry().Format(time.RFC3339))
	c.setBadge(badge.On)
	return c.finish(tr, OutcomeApplied, nil, rec)
}

// Revert restores the policy value saved by Apply.
//
// A failed restore keeps the saved record so a later Revert or sweep can
// retry. A successful restore clears it; a failure to clear is only logged.
func (c *Controller) Revert(ctx context.Context) (Outcome, error) {
	tr := c.begin(ctx, OpRevert)
	if !c.inFlight.CompareAndSwap(false, true) {
		return c.finish(tr, OutcomeBusy, nil, nil)
	}
	defer c.inFlight.Store(false)
	ctx = context.WithoutCancel(ctx)

	current, err := c.resource.Get(ctx)
	if err != nil {
		tr.log.Error("read policy failed", "call", "resource.get", "error", err)
		return c.finish(tr, OutcomeReadFailed, fmt.Errorf("%w: %w", ErrReadFailed, err), nil)
	}

	if current != c.mode {
		c.setBadge(badge.Off)
		return c.finish(tr, OutcomeAlreadyReverted, nil, nil)
	}

	rec, err := c.store.Load(ctx)
	if err != nil {
		tr.log.Error("load saved record failed", "call", "store.load", "error", err)
		return c.finish(tr, OutcomeLoadFailed, fmt.Errorf("%w: %w", ErrLoadFailed, err), nil)
	}
	if rec == nil {
		c.setBadge(badge.Off)
		return c.finish(tr, OutcomeNothingToRevert, nil, nil)
	}

	if err := c.resource.Set(ctx, rec.PriorPolicy); err != nil {
		tr.log.Error("restore prior policy failed", "call", "resource.set", "value", rec.PriorPolicy, "error", err)
		return c.finish(tr, OutcomeRestoreFailed, fmt.Errorf("%w: %w", ErrRestoreFailed, err), nil)
	}

	if err := c.store.Clear(ctx); err != nil {
		tr.log.Error("clear saved record failed", "call", "store.clear", "error", err)
	}

	tr.log.Info("override reverted", "restored", rec.PriorPolicy)
	c.setBadge(badge.Off)
	return c.finish(tr, OutcomeReverted, nil, nil)
}

// CheckTTL reverts the override if its saved record has expired. A busy
// controller is not retried here; the next sweep tick tries again.
//
// The returned error is non-nil when the record could not be loaded or the
// revert it triggered failed.
func (c *Controller) CheckTTL(ctx context.Context) (Sweep, error) {
	log := c.logger.WithFields(map[string]any{"trigger": TriggerSweep})

	rec, err := c.store.Load(ctx)
	if err != nil {
		log.Warn("ttl check: load saved record failed", "call", "store.load", "error", err)
		return c.sweepDone(Sweep{Result: SweepError}), fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if rec == nil {
		log.Debug("ttl check: no active override")
		return c.sweepDone(Sweep{Result: SweepIdle}), nil
	}

	now := clock.EpochSeconds(c.clock)
	if !rec.IsExpired(now) {
		log.Debug("ttl check: override still valid", "remaining", rec.Remaining(now).String())
		return c.sweepDone(Sweep{Result: SweepPending, ExpiresAt: rec.ExpiresAt}), nil
	}

	log.Info("ttl check: override expired, reverting", "expired_at", rec.Expiry().Format(time.RFC3339))
	outcome, err := c.Revert(WithTrigger(ctx, TriggerSweep))
	return c.sweepDone(Sweep{Result: SweepExpired, ExpiresAt: rec.ExpiresAt, Outcome: outcome}), err
}

// finish logs and publishes the outcome of a transition.
func (c *Controller) finish(tr *transition, outcome Outcome, err error, rec *SavedOverride) (Outcome, error) {
	data := events.TransitionData{
		OpID:    tr.id,
		Op:      tr.op,
		Trigger: tr.trigger,
		Outcome: string(outcome),
	}
	if err != nil {
		data.Error = err.Error()
	}

	switch outcome {
	case OutcomeApplied, OutcomeAlreadyApplied:
		active := true
		data.Active = &active
		if rec != nil {
			data.ExpiresAt = rec.ExpiresAt
		}
	case OutcomeReverted, OutcomeAlreadyReverted, OutcomeNothingToRevert:
		active := false
		data.Active = &active
	}

	switch {
	case outcome == OutcomeBusy:
		tr.log.Warn("transition rejected, another is in flight", "outcome", outcome)
	case outcome.Failed():
		tr.log.Warn("transition failed", "outcome", outcome, "error", err)
	default:
		tr.log.Info("transition complete", "outcome", outcome)
	}

	c.hub.EmitTransition(data)
	return outcome, err
}

func (c *Controller) sweepDone(s Sweep) Sweep {
	c.hub.EmitSweep(string(s.Result), s.ExpiresAt)
	return s
}

func (c *Controller) setBadge(text string) {
	if c.badge != nil {
		c.badge.Set(text)
	}
}
