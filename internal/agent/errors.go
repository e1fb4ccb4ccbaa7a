package agent

import "errors"

// Error taxonomy for the agent core. Wrap these with fmt.Errorf("...:
// %w", Err...) so callers can classify with errors.Is.
var (
	// ErrConfiguration marks missing or invalid configuration at
	// initialize time. Fatal: propagates to the caller.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnsupportedAction marks an action type the agent does not
	// handle. Reported inside the ActionResult, never propagated.
	ErrUnsupportedAction = errors.New("unsupported action type")

	// ErrNotFound marks an unknown incident, runbook or agent
	// reference.
	ErrNotFound = errors.New("not found")

	// ErrExecution marks a step or action failure during execution.
	// Reported in results, not propagated.
	ErrExecution = errors.New("execution error")

	// ErrNotRunning marks an operation that requires a running agent.
	ErrNotRunning = errors.New("agent not running")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
