package override

import "errors"

// Outcome is the terminal signal of one controller operation.
type Outcome string

const (
	OutcomeBusy Outcome = "busy"

	// Apply
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeSaveFailed     Outcome = "save_failed"
	OutcomeApplyFailed    Outcome = "apply_failed"

	// Revert
	OutcomeReverted        Outcome = "reverted"
	OutcomeAlreadyReverted Outcome = "already_reverted"
	OutcomeNothingToRevert Outcome = "nothing_to_revert"
	OutcomeLoadFailed      Outcome = "load_failed"
	OutcomeRestoreFailed   Outcome = "restore_failed"

	// Either, when the policy resource cannot be read
	OutcomeReadFailed Outcome = "read_failed"
)

// Failed reports whether o is one of the failure outcomes.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeSaveFailed, OutcomeApplyFailed, OutcomeLoadFailed, OutcomeRestoreFailed, OutcomeReadFailed:
		return true
	}
	return false
}

// Failure causes. The error returned alongside a failure outcome wraps one of
// these and the underlying error.
var (
	ErrReadFailed    = errors.New("could not read current policy")
	ErrSaveFailed    = errors.New("could not record prior state")
	ErrApplyFailed   = errors.New("could not apply, rollback attempted")
	ErrLoadFailed    = errors.New("could not load prior state")
	ErrRestoreFailed = errors.New("could not restore prior state")
)

// SweepResult describes what one TTL check found.
type SweepResult string

const (
	SweepIdle    SweepResult = "idle"    // no saved record
	SweepPending SweepResult = "pending" // record not yet expired
	SweepExpired SweepResult = "expired" // record expired, revert attempted
	SweepError   SweepResult = "error"   // record could not be loaded
)

// Sweep is the result of CheckTTL.
type Sweep struct {
	Result    SweepResult `json:"result"`
	ExpiresAt int64       `json:"expires_at,omitempty"`
	// Outcome of the revert, set only when Result is SweepExpired.
	Outcome Outcome `json:"outcome,omitempty"`
}
