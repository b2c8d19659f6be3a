package model

import (
	"time"
)

// TaskStatus represents the current status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// transitions lists the statuses reachable from each status. An in_progress task
// may report in_progress again; that only refreshes UpdatedAt.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusInProgress},
	TaskStatusInProgress: {TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed},
}

// CanTransition reports whether a task in status s may move to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskPriority represents the priority level of a task. Advisory only.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityUrgent TaskPriority = "urgent"
)

// TaskContext carries the action name and the action parameters.
type TaskContext map[string]any

// Action returns the "action" entry or an empty string.
func (c TaskContext) Action() string {
	return c.String("action")
}

// String returns the string value stored under key, or "".
func (c TaskContext) String(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// Bool returns the boolean value stored under key, or false.
func (c TaskContext) Bool(key string) bool {
	v, _ := c[key].(bool)
	return v
}

// Int returns the integer value stored under key. JSON decoded numbers arrive as
// float64 and are truncated.
func (c TaskContext) Int(key string) (int, bool) {
	switch v := c[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Float returns the numeric value stored under key.
func (c TaskContext) Float(key string) (float64, bool) {
	switch v := c[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Clone returns a shallow copy.
func (c TaskContext) Clone() TaskContext {
	if c == nil {
		return nil
	}
	out := make(TaskContext, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// NextTask describes a follow-up task requested by a task result. Empty fields
// are inherited from the parent task.
type NextTask struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	AgentType   AgentType    `json:"agentType,omitempty"`
	Context     TaskContext  `json:"context,omitempty"`
	Priority    TaskPriority `json:"priority,omitempty"`
}

// TaskResult represents the outcome reported by an agent
type TaskResult struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	NextTasks []NextTask     `json:"nextTasks,omitempty"`
}

// Failure builds an unsuccessful result carrying msg.
func Failure(msg string) *TaskResult {
	return &TaskResult{Success: false, Error: msg}
}

// Success builds a successful result carrying data.
func Success(data map[string]any) *TaskResult {
	return &TaskResult{Success: true, Data: data}
}

// Task represents a unit of work directed at an agent type
type Task struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	AgentType       AgentType    `json:"agentType"`
	AssignedAgentID string       `json:"assignedAgentId,omitempty"`
	Status          TaskStatus   `json:"status"`
	Priority        TaskPriority `json:"priority"`
	Context         TaskContext  `json:"context,omitempty"`
	ParentTaskID    string       `json:"parentTaskId,omitempty"`
	Result          *TaskResult  `json:"result,omitempty"`

	// Timing fields
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a copy that shares no maps or pointers with t, except for
// values stored inside Context and Result.Data.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Context = t.Context.Clone()
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	if t.Result != nil {
		r := *t.Result
		if t.Result.Data != nil {
			r.Data = make(map[string]any, len(t.Result.Data))
			for k, v := range t.Result.Data {
				r.Data[k] = v
			}
		}
		r.NextTasks = append([]NextTask(nil), t.Result.NextTasks...)
		c.Result = &r
	}
	return &c
}
