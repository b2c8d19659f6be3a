package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// OrchestratorID addresses the orchestrator itself
const OrchestratorID = "orchestrator"

// MessageType tells the receiver how to read the message content
type MessageType string

const (
	MessageTaskAssignment      MessageType = "task_assignment"
	MessageTaskUpdate          MessageType = "task_update"
	MessageTaskCompleted       MessageType = "task_completed"
	MessageInformationRequest  MessageType = "information_request"
	MessageInformationResponse MessageType = "information_response"
)

// Content keys used by the message types above.
const (
	ContentTask          = "task"
	ContentTaskID        = "taskId"
	ContentStatus        = "status"
	ContentResult        = "result"
	ContentQuery         = "query"
	ContentResponse      = "response"
	ContentError         = "error"
	ContentOriginalQuery = "originalQuery"
	ContentInReplyTo     = "inReplyTo"
)

// AgentMessage is the envelope exchanged between agents and the orchestrator
type AgentMessage struct {
	ID          string         `json:"id"`
	FromAgentID string         `json:"fromAgentId"`
	ToAgentID   string         `json:"toAgentId"`
	Type        MessageType    `json:"type"`
	Content     map[string]any `json:"content"`
	Timestamp   time.Time      `json:"timestamp"`
	TaskID      string         `json:"taskId,omitempty"`
}

// String returns the string stored under key in the content, or "".
func (m *AgentMessage) String(key string) string {
	if v, ok := m.Content[key].(string); ok {
		return v
	}
	return ""
}

// Decode reads the content value under key into out. Values keep their Go type
// when delivered in-process; after a JSON hop they are generic maps, so both
// forms are accepted.
func (m *AgentMessage) Decode(key string, out any) error {
	v, ok := m.Content[key]
	if !ok || v == nil {
		return fmt.Errorf("message %s has no %q content", m.ID, key)
	}
	return ConvertValue(v, out)
}

// ConvertValue copies v into out, directly when the types line up and through
// JSON otherwise.
func ConvertValue(v any, out any) error {
	switch dst := out.(type) {
	case *Task:
		switch src := v.(type) {
		case *Task:
			*dst = *src
			return nil
		case Task:
			*dst = src
			return nil
		}
	case *TaskResult:
		switch src := v.(type) {
		case *TaskResult:
			*dst = *src
			return nil
		case TaskResult:
			*dst = src
			return nil
		}
	case *map[string]any:
		if src, ok := v.(map[string]any); ok {
			*dst = src
			return nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal content: %w", err)
	}
	return nil
}
