package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
)

const (
	messageStreamName    = "A2A"
	messageSubjectPrefix = "a2a.agent."
	messageStreamSubject = messageSubjectPrefix + "*"
	streamMaxAge         = time.Hour
	operationTimeout     = 30 * time.Second
)

// AgentSubject returns the subject messages for agentID are published on
func AgentSubject(agentID string) string {
	return messageSubjectPrefix + agentID
}

// NATSTransport publishes each message as JSON on the recipient's JetStream
// subject. Every attached agent owns one subscription.
type NATSTransport struct {
	js     nats.JetStreamContext
	logger *zap.Logger
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
	closed bool
}

// NewNATSTransport creates the message stream if needed and returns a transport
func NewNATSTransport(js nats.JetStreamContext, logger *zap.Logger) (*NATSTransport, error) {
	t := &NATSTransport{
		js:     js,
		logger: logger.Named("nats-transport"),
		subs:   make(map[string]*nats.Subscription),
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := t.setupStream(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup stream: %w", err)
	}
	return t, nil
}

func (t *NATSTransport) setupStream(ctx context.Context) error {
	_, err := t.js.AddStream(&nats.StreamConfig{
		Name:     messageStreamName,
		Subjects: []string{messageStreamSubject},
		Storage:  nats.MemoryStorage,
		MaxAge:   streamMaxAge,
		MaxMsgs:  -1,
	}, nats.Context(ctx))

	if err != nil {
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			t.logger.Info("Stream already exists", zap.String("stream", messageStreamName))
			return nil
		}
		return err
	}

	t.logger.Info("Stream created successfully", zap.String("stream", messageStreamName))
	return nil
}

// Attach implements Transport.Attach
func (t *NATSTransport) Attach(agentID string, deliver DeliverFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if old, ok := t.subs[agentID]; ok {
		_ = old.Unsubscribe()
	}

	sub, err := t.js.Subscribe(AgentSubject(agentID), func(msg *nats.Msg) {
		var message model.AgentMessage
		if err := json.Unmarshal(msg.Data, &message); err != nil {
			t.logger.Error("Failed to unmarshal message",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			return
		}
		deliver(&message)
	}, nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe for agent %s: %w", agentID, err)
	}

	t.subs[agentID] = sub
	t.logger.Info("Agent attached", zap.String("agent_id", agentID))
	return nil
}

// Detach implements Transport.Detach
func (t *NATSTransport) Detach(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sub, ok := t.subs[agentID]; ok {
		if err := sub.Unsubscribe(); err != nil {
			t.logger.Warn("Failed to unsubscribe",
				zap.String("agent_id", agentID),
				zap.Error(err))
		}
		delete(t.subs, agentID)
	}
}

// Send implements Transport.Send
func (t *NATSTransport) Send(ctx context.Context, msg *model.AgentMessage) error {
	t.mu.Lock()
	_, attached := t.subs[msg.ToAgentID]
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return ErrTransportClosed
	}
	if !attached {
		return ErrUnknownRecipient
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := t.js.Publish(AgentSubject(msg.ToAgentID), data, nats.Context(ctx), nats.MsgId(msg.ID)); err != nil {
		t.logger.Error("Failed to publish message",
			zap.String("message_id", msg.ID),
			zap.String("to", msg.ToAgentID),
			zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close implements Transport.Close
func (t *NATSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for id, sub := range t.subs {
		if err := sub.Unsubscribe(); err != nil {
			t.logger.Warn("Failed to unsubscribe",
				zap.String("agent_id", id),
				zap.Error(err))
		}
	}
	t.subs = make(map[string]*nats.Subscription)
	return nil
}
