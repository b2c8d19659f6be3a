package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
)

// DirectTransport delivers messages with a plain function call on the sender's
// goroutine. Delivery is complete when Send returns.
type DirectTransport struct {
	logger    *zap.Logger
	mu        sync.RWMutex
	receivers map[string]DeliverFunc
	closed    bool
}

// NewDirectTransport creates an in-process transport
func NewDirectTransport(logger *zap.Logger) *DirectTransport {
	return &DirectTransport{
		logger:    logger.Named("direct-transport"),
		receivers: make(map[string]DeliverFunc),
	}
}

// Attach implements Transport.Attach
func (t *DirectTransport) Attach(agentID string, deliver DeliverFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	t.receivers[agentID] = deliver
	return nil
}

// Detach implements Transport.Detach
func (t *DirectTransport) Detach(agentID string) {
	t.mu.Lock()
	delete(t.receivers, agentID)
	t.mu.Unlock()
}

// Send implements Transport.Send
func (t *DirectTransport) Send(ctx context.Context, msg *model.AgentMessage) error {
	t.mu.RLock()
	deliver, ok := t.receivers[msg.ToAgentID]
	closed := t.closed
	t.mu.RUnlock()

	if closed {
		return ErrTransportClosed
	}
	if !ok {
		return ErrUnknownRecipient
	}

	t.logger.Debug("Delivering message",
		zap.String("message_id", msg.ID),
		zap.String("type", string(msg.Type)),
		zap.String("to", msg.ToAgentID))

	deliver(msg)
	return nil
}

// Close implements Transport.Close
func (t *DirectTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.receivers = make(map[string]DeliverFunc)
	return nil
}
