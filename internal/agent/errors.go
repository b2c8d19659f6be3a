package agent

import "errors"

var (
	// ErrNoOrchestrator is returned when an agent sends before it is registered
	ErrNoOrchestrator = errors.New("agent has no orchestrator")

	// ErrRequestTimeout is returned when an information request gets no reply in time
	ErrRequestTimeout = errors.New("information request timed out")

	// ErrAgentStopped is returned after Stop
	ErrAgentStopped = errors.New("agent stopped")

	// ErrQueryFailed wraps the error text of an information_response
	ErrQueryFailed = errors.New("information request failed")
)
