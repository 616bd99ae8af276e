// Package supervisor manages the lifecycle of the moshi-server worker process.
package supervisor

// State represents the current state of the supervised worker.
type State int

const (
	// StateCreated is the initial state before the worker has started.
	StateCreated State = iota

	// StateStarting indicates the worker process has been spawned but is
	// not yet serving (model weights still loading).
	StateStarting

	// StateReady indicates a readiness probe has succeeded.
	StateReady

	// StateRunning indicates the worker is serving traffic.
	StateRunning

	// StateTimedOut indicates the worker never became ready within the
	// readiness timeout.
	StateTimedOut

	// StateFailed indicates the worker exited before becoming ready.
	StateFailed

	// StateStopping indicates a graceful shutdown is in progress.
	StateStopping

	// StateStopped indicates the worker has been stopped.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive returns true if the state represents a live worker process.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateReady || s == StateRunning || s == StateStopping
}

// IsTerminal returns true if no further transitions are expected.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateTimedOut || s == StateFailed
}
