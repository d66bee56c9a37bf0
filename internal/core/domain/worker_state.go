package domain

// WorkerState is the caller's view of a worker's lifecycle.
type WorkerState string

const (
	// WorkerStateUninitialised indicates the worker has not announced itself yet.
	WorkerStateUninitialised WorkerState = "uninitialised"
	// WorkerStateInitialised indicates the worker sent its ready signal.
	WorkerStateInitialised WorkerState = "initialised"
	// WorkerStateIdle indicates no call is pending.
	WorkerStateIdle WorkerState = "idle"
	// WorkerStateBusy indicates at least one call is pending.
	WorkerStateBusy WorkerState = "busy"
)

// IsReady reports whether the worker has been initialised.
func (s WorkerState) IsReady() bool {
	switch s {
	case WorkerStateInitialised, WorkerStateIdle, WorkerStateBusy:
		return true
	default:
		return false
	}
}
