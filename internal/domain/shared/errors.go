package shared

import "errors"

// Domain-level sentinel errors. Callers match these with errors.Is after
// unwrapping whatever context the layers above added.
var (
	// ErrNotFound indicates the requested entity does not exist
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidPiece indicates a piece violating the exactly-one-of
	// {geometry, program} intake invariant
	ErrInvalidPiece = errors.New("piece must carry exactly one of geometry model or print program")

	// ErrFilamentUnavailable indicates no loaded or stocked filament matches
	// the piece's color/material sets
	ErrFilamentUnavailable = errors.New("no compatible filament available")

	// ErrControllerLocked indicates the device controller refuses scheduling
	ErrControllerLocked = errors.New("device controller is locked")

	// ErrTaskNotRunnable indicates a task whose dependency chain is not finished
	ErrTaskNotRunnable = errors.New("task dependency chain not finished")

	// ErrDependencyCancelled indicates a task whose dependency was cancelled;
	// the task is treated as failed and never promoted
	ErrDependencyCancelled = errors.New("task dependency was cancelled")

	// ErrTrackingLost indicates the remote job name no longer matches the
	// filename assigned at upload time
	ErrTrackingLost = errors.New("job tracking lost")

	// ErrScheduleNotReady indicates the previous schedule run has not finished;
	// the current tick is coalesced away
	ErrScheduleNotReady = errors.New("previous schedule still running")
)
