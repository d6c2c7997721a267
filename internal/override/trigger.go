package override

import "context"

// Trigger names recorded with each transition.
const (
	TriggerCommand  = "command"
	TriggerActivate = "activate"
	TriggerSweep    = "sweep"
	TriggerShutdown = "shutdown"
	TriggerUnknown  = "unknown"
)

type triggerKey struct{}

// WithTrigger tags ctx with what caused the transition.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the trigger stored in ctx, or TriggerUnknown.
func TriggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return TriggerUnknown
}
