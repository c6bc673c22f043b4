package pipeline

import "errors"

// Sentinel errors for the design-level taxonomy of spec.md §7. Per-item
// failures (permission, missing file, IO) are handled locally by the stage
// that hits them and never reach the orchestrator; a stage-level failure,
// such as an error from the store, moves the state machine to Faulted.
var (
	ErrConfiguration          = errors.New("pipeline: no project open, no roots, or no destination configured")
	ErrStorageOpen            = errors.New("pipeline: storage could not be opened")
	ErrStorageIntegrity       = errors.New("pipeline: storage is corrupted")
	ErrHashAlgorithmUnavailable = errors.New("pipeline: chosen hash algorithm unavailable on this platform")
	ErrInvariantViolation     = errors.New("pipeline: internal invariant violated")
	ErrCancelled              = errors.New("pipeline: cancelled")
	ErrInvalidTransition      = errors.New("pipeline: transition not permitted from current state")
)
