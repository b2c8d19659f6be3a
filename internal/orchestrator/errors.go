package orchestrator

import "errors"

var (
	// ErrTaskNotFound is returned when a task is not found
	ErrTaskNotFound = errors.New("task not found")

	// ErrAgentNotFound is returned when an agent id is not registered
	ErrAgentNotFound = errors.New("agent not found")

	// ErrNoAgentsForType is returned when no agent of the requested type is registered
	ErrNoAgentsForType = errors.New("no agents registered for type")

	// ErrInvalidTransition is returned when a status change would leave a terminal
	// status or skip a step
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrMissingStatus is returned when a task_update message carries no status
	ErrMissingStatus = errors.New("task update without status")
)
