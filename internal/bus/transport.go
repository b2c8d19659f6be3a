// Package bus carries agent messages from the orchestrator to agents. The
// orchestrator decides who a message is for; a Transport only moves the
// envelope.
package bus

import (
	"context"
	"errors"

	"github.com/t77yq/a2a-travel/internal/model"
)

var (
	// ErrUnknownRecipient is returned when no agent is attached under the target id
	ErrUnknownRecipient = errors.New("unknown recipient")

	// ErrTransportClosed is returned after Close
	ErrTransportClosed = errors.New("transport closed")
)

// DeliverFunc hands a message to an agent
type DeliverFunc func(msg *model.AgentMessage)

// Transport defines how messages reach agents
type Transport interface {
	// Attach starts delivering messages addressed to agentID
	Attach(agentID string, deliver DeliverFunc) error

	// Detach stops delivery for agentID
	Detach(agentID string)

	// Send delivers msg to msg.ToAgentID
	Send(ctx context.Context, msg *model.AgentMessage) error

	// Close releases transport resources
	Close() error
}

// Router accepts messages from agents. The orchestrator is the only Router.
type Router interface {
	RouteMessage(msg *model.AgentMessage)
}
