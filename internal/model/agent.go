package model

// AgentType identifies the class of work an agent performs. It is the only key
// used to match tasks to agents.
type AgentType string

const (
	AgentTypeUserInterface    AgentType = "user_interface"
	AgentTypeFlightBooking    AgentType = "flight_booking"
	AgentTypeAccommodation    AgentType = "accommodation"
	AgentTypeItineraryPlanner AgentType = "itinerary_planner"
	AgentTypeNotification     AgentType = "notification"
	AgentTypeTravelSafety     AgentType = "travel_safety"
)

// AgentStatus is active once the agent is registered with an orchestrator
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
)

// ParameterSpec describes one parameter of a capability
type ParameterSpec struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

// AgentCapability describes an action an agent can perform
type AgentCapability struct {
	Action      string                   `json:"action"`
	Description string                   `json:"description"`
	Parameters  map[string]ParameterSpec `json:"parameters"`
	Examples    []map[string]any         `json:"examples,omitempty"`
}

// AgentInfo is a read-only snapshot of an agent
type AgentInfo struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         AgentType         `json:"type"`
	Capabilities []AgentCapability `json:"capabilities"`
	Status       AgentStatus       `json:"status"`
}
