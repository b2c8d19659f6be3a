// Package agent implements the worker side of the orchestration: a BaseAgent
// that handles messaging and dispatch, and the travel agents built on it.
package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/bus"
	"github.com/t77yq/a2a-travel/internal/model"
)

const defaultRequestTimeout = 30 * time.Second

// Handler is implemented by concrete agents. BaseAgent provides defaults that
// dispatch through the action and query registries.
type Handler interface {
	HandleTaskAssignment(ctx context.Context, task *model.Task)
	HandleInformationRequest(ctx context.Context, msg *model.AgentMessage)
}

// ActionFunc executes one action for a task
type ActionFunc func(ctx context.Context, task *model.Task) (*model.TaskResult, error)

// Action binds a capability descriptor to its handler
type Action struct {
	Capability model.AgentCapability
	Handler    ActionFunc
}

// QueryFunc answers one type of information request
type QueryFunc func(ctx context.Context, query map[string]any) (any, error)

// BaseAgent carries the identity, registries and messaging shared by all agents
type BaseAgent struct {
	logger    *zap.Logger
	id        string
	name      string
	agentType model.AgentType
	handler   Handler

	mu           sync.RWMutex
	status       model.AgentStatus
	capabilities []model.AgentCapability
	actions      map[string]ActionFunc
	queries      map[string]QueryFunc
	router       bus.Router
	pending      map[string]chan *model.AgentMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBaseAgent creates an inactive agent with a fresh id. handler receives
// assignments and information requests; nil uses the BaseAgent defaults.
func NewBaseAgent(name string, agentType model.AgentType, handler Handler, logger *zap.Logger) *BaseAgent {
	ctx, cancel := context.WithCancel(context.Background())
	b := &BaseAgent{
		id:        uuid.New().String(),
		name:      name,
		agentType: agentType,
		status:    model.AgentStatusInactive,
		actions:   make(map[string]ActionFunc),
		queries:   make(map[string]QueryFunc),
		pending:   make(map[string]chan *model.AgentMessage),
		ctx:       ctx,
		cancel:    cancel,
	}
	b.logger = logger.Named("agent").With(
		zap.String("agent_id", b.id),
		zap.String("agent_type", string(agentType)))
	b.handler = handler
	if b.handler == nil {
		b.handler = b
	}
	return b
}

// ID returns the agent id
func (b *BaseAgent) ID() string { return b.id }

// Name returns the agent name
func (b *BaseAgent) Name() string { return b.name }

// Type returns the agent type
func (b *BaseAgent) Type() model.AgentType { return b.agentType }

// Logger returns the agent's logger
func (b *BaseAgent) Logger() *zap.Logger { return b.logger }

// Info returns a snapshot of the agent
func (b *BaseAgent) Info() model.AgentInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return model.AgentInfo{
		ID:           b.id,
		Name:         b.name,
		Type:         b.agentType,
		Capabilities: append([]model.AgentCapability(nil), b.capabilities...),
		Status:       b.status,
	}
}

// RegisterCapability publishes a capability without a handler
func (b *BaseAgent) RegisterCapability(capability model.AgentCapability) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capabilities = append(b.capabilities, capability)
}

// RegisterAction publishes the capability and makes it dispatchable
func (b *BaseAgent) RegisterAction(action Action) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capabilities = append(b.capabilities, action.Capability)
	b.actions[action.Capability.Action] = action.Handler
}

// RegisterQuery makes a query type answerable by AnswerInformationRequest
func (b *BaseAgent) RegisterQuery(queryType string, fn QueryFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries[queryType] = fn
}

// SetOrchestrator stores the router used for outbound messages and activates
// the agent
func (b *BaseAgent) SetOrchestrator(router bus.Router) {
	b.mu.Lock()
	b.router = router
	b.status = model.AgentStatusActive
	b.mu.Unlock()

	b.logger.Info("Agent activated", zap.String("name", b.name))
}

// SendMessage builds a message from this agent and hands it to the orchestrator.
// It returns the message id.
func (b *BaseAgent) SendMessage(toAgentID string, msgType model.MessageType, content map[string]any, taskID string) (string, error) {
	b.mu.RLock()
	router := b.router
	b.mu.RUnlock()

	if router == nil {
		b.logger.Error("Cannot send message before registration",
			zap.String("to", toAgentID),
			zap.String("type", string(msgType)),
			zap.String("task_id", taskID))
		return "", ErrNoOrchestrator
	}

	msg := &model.AgentMessage{
		ID:          uuid.New().String(),
		FromAgentID: b.id,
		ToAgentID:   toAgentID,
		Type:        msgType,
		Content:     content,
		Timestamp:   time.Now(),
		TaskID:      taskID,
	}
	router.RouteMessage(msg)
	return msg.ID, nil
}

// UpdateTaskStatus reports a status change to the orchestrator
func (b *BaseAgent) UpdateTaskStatus(taskID string, status model.TaskStatus, result *model.TaskResult) error {
	content := map[string]any{
		model.ContentTaskID: taskID,
		model.ContentStatus: string(status),
	}
	if result != nil {
		content[model.ContentResult] = result
	}
	_, err := b.SendMessage(model.OrchestratorID, model.MessageTaskUpdate, content, taskID)
	return err
}

// CompleteTask reports the final result of a task
func (b *BaseAgent) CompleteTask(taskID string, result *model.TaskResult) error {
	content := map[string]any{
		model.ContentTaskID: taskID,
		model.ContentStatus: string(model.TaskStatusCompleted),
		model.ContentResult: result,
	}
	_, err := b.SendMessage(model.OrchestratorID, model.MessageTaskCompleted, content, taskID)
	return err
}

// SendInformationRequest sends a query without waiting for the reply. It
// returns the request message id.
func (b *BaseAgent) SendInformationRequest(toAgentID string, query map[string]any, taskID string) (string, error) {
	return b.SendMessage(toAgentID, model.MessageInformationRequest,
		map[string]any{model.ContentQuery: query}, taskID)
}

// RequestInformation sends a query to another agent and waits for its reply.
// The response is decoded into out when out is not nil. Without a deadline on
// ctx the wait is bounded by a default timeout.
func (b *BaseAgent) RequestInformation(ctx context.Context, toAgentID string, query map[string]any, taskID string, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultRequestTimeout)
		defer cancel()
	}

	msgID := uuid.New().String()
	reply := make(chan *model.AgentMessage, 1)

	b.mu.Lock()
	router := b.router
	if router != nil {
		b.pending[msgID] = reply
	}
	b.mu.Unlock()

	if router == nil {
		return ErrNoOrchestrator
	}
	defer func() {
		b.mu.Lock()
		delete(b.pending, msgID)
		b.mu.Unlock()
	}()

	router.RouteMessage(&model.AgentMessage{
		ID:          msgID,
		FromAgentID: b.id,
		ToAgentID:   toAgentID,
		Type:        model.MessageInformationRequest,
		Content:     map[string]any{model.ContentQuery: query},
		Timestamp:   time.Now(),
		TaskID:      taskID,
	})

	select {
	case msg := <-reply:
		if errText := msg.String(model.ContentError); errText != "" {
			return fmt.Errorf("%w: %s", ErrQueryFailed, errText)
		}
		if out == nil {
			return nil
		}
		return msg.Decode(model.ContentResponse, out)
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s", ErrRequestTimeout, toAgentID)
		}
		return ctx.Err()
	case <-b.ctx.Done():
		return ErrAgentStopped
	}
}

// ReceiveMessage is the single entry point for inbound messages. Assignments
// and information requests run on their own goroutines.
func (b *BaseAgent) ReceiveMessage(msg *model.AgentMessage) {
	if b.ctx.Err() != nil {
		b.logger.Warn("Agent stopped, dropping message",
			zap.String("message_id", msg.ID),
			zap.String("type", string(msg.Type)))
		return
	}

	switch msg.Type {
	case model.MessageTaskAssignment:
		task := &model.Task{}
		if err := msg.Decode(model.ContentTask, task); err != nil {
			b.logger.Error("Invalid task assignment",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			return
		}
		b.spawn(func(ctx context.Context) {
			b.handler.HandleTaskAssignment(ctx, task)
		}, func(p any) {
			b.logger.Error("Task handler panicked",
				zap.String("task_id", task.ID),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			_ = b.UpdateTaskStatus(task.ID, model.TaskStatusFailed,
				model.Failure(fmt.Sprintf("agent panic: %v", p)))
		})

	case model.MessageInformationRequest:
		b.spawn(func(ctx context.Context) {
			b.handler.HandleInformationRequest(ctx, msg)
		}, func(p any) {
			b.logger.Error("Information request handler panicked",
				zap.String("message_id", msg.ID),
				zap.Any("panic", p))
		})

	case model.MessageInformationResponse:
		b.resolve(msg)

	default:
		b.logger.Warn("Unknown message type",
			zap.String("message_id", msg.ID),
			zap.String("type", string(msg.Type)),
			zap.String("from", msg.FromAgentID))
	}
}

func (b *BaseAgent) spawn(fn func(ctx context.Context), onPanic func(p any)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				onPanic(p)
			}
		}()
		fn(b.ctx)
	}()
}

func (b *BaseAgent) resolve(msg *model.AgentMessage) {
	requestID := msg.String(model.ContentInReplyTo)

	b.mu.Lock()
	reply, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Warn("Dropping information response with no pending request",
			zap.String("message_id", msg.ID),
			zap.String("in_reply_to", requestID),
			zap.String("from", msg.FromAgentID))
		return
	}
	reply <- msg
}

// HandleTaskAssignment is the default assignment handler
func (b *BaseAgent) HandleTaskAssignment(ctx context.Context, task *model.Task) {
	b.ExecuteAction(ctx, task)
}

// HandleInformationRequest is the default information request handler
func (b *BaseAgent) HandleInformationRequest(ctx context.Context, msg *model.AgentMessage) {
	b.AnswerInformationRequest(ctx, msg)
}

// ExecuteAction reports the task in progress, runs the action named in its
// context and completes the task with the outcome. Handler errors become
// unsuccessful results; the task still completes.
func (b *BaseAgent) ExecuteAction(ctx context.Context, task *model.Task) {
	logger := b.logger.With(zap.String("task_id", task.ID))

	if err := b.UpdateTaskStatus(task.ID, model.TaskStatusInProgress, nil); err != nil {
		logger.Error("Failed to report task progress", zap.Error(err))
		return
	}

	action := task.Context.Action()
	logger.Info("Executing action", zap.String("action", action))

	start := time.Now()
	result := b.runAction(ctx, task, action)

	if result.Success {
		logger.Info("Action completed",
			zap.String("action", action),
			zap.Duration("duration", time.Since(start)))
	} else {
		logger.Warn("Action failed",
			zap.String("action", action),
			zap.String("error", result.Error),
			zap.Duration("duration", time.Since(start)))
	}

	if err := b.CompleteTask(task.ID, result); err != nil {
		logger.Error("Failed to complete task", zap.Error(err))
	}
}

func (b *BaseAgent) runAction(ctx context.Context, task *model.Task, action string) *model.TaskResult {
	b.mu.RLock()
	fn, ok := b.actions[action]
	var capability model.AgentCapability
	for _, c := range b.capabilities {
		if c.Action == action {
			capability = c
			break
		}
	}
	b.mu.RUnlock()

	if !ok {
		return model.Failure("Unknown action: " + action)
	}
	if missing := missingParameter(capability, task.Context); missing != "" {
		return model.Failure(missing + " is required")
	}

	result, err := fn(ctx, task)
	if err != nil {
		return model.Failure(err.Error())
	}
	if result == nil {
		return model.Success(nil)
	}
	return result
}

// missingParameter returns the first required parameter absent from the context,
// checking in name order so the reported field is stable
func missingParameter(capability model.AgentCapability, tc model.TaskContext) string {
	names := make([]string, 0, len(capability.Parameters))
	for name, spec := range capability.Parameters {
		if spec.Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		v, ok := tc[name]
		if !ok || v == nil {
			return name
		}
		if s, isString := v.(string); isString && s == "" {
			return name
		}
	}
	return ""
}

// AnswerInformationRequest dispatches on query.type and replies to the sender
// with the response or an error
func (b *BaseAgent) AnswerInformationRequest(ctx context.Context, msg *model.AgentMessage) {
	query := map[string]any{}
	content := map[string]any{model.ContentInReplyTo: msg.ID}

	if err := msg.Decode(model.ContentQuery, &query); err != nil {
		content[model.ContentError] = err.Error()
	} else {
		content[model.ContentOriginalQuery] = query
		queryType, _ := query["type"].(string)

		b.mu.RLock()
		fn, ok := b.queries[queryType]
		b.mu.RUnlock()

		if !ok {
			content[model.ContentError] = "Unknown query type: " + queryType
		} else if response, err := fn(ctx, query); err != nil {
			content[model.ContentError] = err.Error()
		} else {
			content[model.ContentResponse] = response
		}
	}

	if errText, ok := content[model.ContentError]; ok {
		b.logger.Warn("Information request failed",
			zap.String("message_id", msg.ID),
			zap.String("from", msg.FromAgentID),
			zap.Any("error", errText))
	}

	if _, err := b.SendMessage(msg.FromAgentID, model.MessageInformationResponse, content, msg.TaskID); err != nil {
		b.logger.Error("Failed to send information response",
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
}

// Stop cancels running handlers and waits for them to return
func (b *BaseAgent) Stop() {
	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	b.status = model.AgentStatusInactive
	b.mu.Unlock()

	b.logger.Info("Agent stopped")
}
