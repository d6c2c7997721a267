package override

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Commands accepted on the message surface.
const (
	CommandChange = "change"
	CommandRevert = "revert"
)

// ErrUnknownCommand is returned by Dispatch for anything but change or revert.
var ErrUnknownCommand = errors.New("unknown command")

// Ack is the fixed reply to every command, whatever its outcome.
type Ack struct {
	Response string `json:"response"`
}

// OK is the only acknowledgement the command surface ever sends.
var OK = Ack{Response: "OK"}

// Dispatch runs the transition named by command. Callers that did not set a
// trigger on ctx are recorded as TriggerCommand.
func (c *Controller) Dispatch(ctx context.Context, command string) (Outcome, error) {
	if TriggerFrom(ctx) == TriggerUnknown {
		ctx = WithTrigger(ctx, TriggerCommand)
	}
	switch command {
	case CommandChange:
		return c.Apply(ctx)
	case CommandRevert:
		return c.Revert(ctx)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}

// Activation is the result of one activation attempt.
type Activation struct {
	URL     string  `json:"url"`
	Matched bool    `json:"matched"`
	Outcome Outcome `json:"outcome,omitempty"`
}

// Activator applies the override only for URLs matching an allow-pattern.
type Activator struct {
	ctrl    *Controller
	pattern *regexp.Regexp
}

// NewActivator compiles pattern. An empty pattern matches nothing.
func NewActivator(ctrl *Controller, pattern string) (*Activator, error) {
	a := &Activator{ctrl: ctrl}
	if pattern == "" {
		return a, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile allow pattern: %w", err)
	}
	a.pattern = re
	return a, nil
}

// Matches reports whether url is allowed to activate the override.
func (a *Activator) Matches(url string) bool {
	return a.pattern != nil && a.pattern.MatchString(url)
}

// Activate applies the override when url matches. A non-matching url is not
// an error and leaves the policy alone.
func (a *Activator) Activate(ctx context.Context, url string) (Activation, error) {
	act := Activation{URL: url, Matched: a.Matches(url)}
	if !act.Matched {
		a.ctrl.logger.Debug("activation ignored, url not allowed", "url", url)
		return act, nil
	}
	outcome, err := a.ctrl.Apply(WithTrigger(ctx, TriggerActivate))
	act.Outcome = outcome
	return act, err
}
