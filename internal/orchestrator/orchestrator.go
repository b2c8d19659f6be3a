// Package orchestrator owns the agent registry, the task table and message
// routing between agents.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/bus"
	"github.com/t77yq/a2a-travel/internal/model"
)

const (
	followUpTitle   = "Follow-up task"
	deliveryTimeout = 10 * time.Second
	defaultPriority = model.TaskPriorityMedium
)

// Agent is what the orchestrator needs from a registered worker
type Agent interface {
	ID() string
	Type() model.AgentType
	Info() model.AgentInfo
	SetOrchestrator(router bus.Router)
	ReceiveMessage(msg *model.AgentMessage)
}

// TaskObserver is called with a copy of a task after every change
type TaskObserver func(task *model.Task)

// TaskRequest describes a task to create
type TaskRequest struct {
	Title        string
	Description  string
	AgentType    model.AgentType
	Context      model.TaskContext
	Priority     model.TaskPriority
	ParentTaskID string
}

// TaskFilters defines the filters for listing tasks
type TaskFilters struct {
	Status       []model.TaskStatus
	AgentType    []model.AgentType
	ParentTaskID string
}

// Stats is a point-in-time summary of the orchestrator
type Stats struct {
	Agents        int                      `json:"agents"`
	AgentsByType  map[model.AgentType]int  `json:"agentsByType"`
	Tasks         int                      `json:"tasks"`
	TasksByStatus map[model.TaskStatus]int `json:"tasksByStatus"`
	InFlight      map[string]int           `json:"inFlight"`
	CollectedAt   time.Time                `json:"collectedAt"`
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTransport replaces the in-process transport
func WithTransport(t bus.Transport) Option {
	return func(o *Orchestrator) { o.transport = t }
}

// WithStrategy replaces random agent selection
func WithStrategy(s SelectionStrategy) Option {
	return func(o *Orchestrator) { o.strategy = s }
}

// WithObserver adds a task observer
func WithObserver(obs TaskObserver) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// Orchestrator registers agents, creates and assigns tasks, and routes messages
type Orchestrator struct {
	logger    *zap.Logger
	transport bus.Transport
	strategy  SelectionStrategy
	observers []TaskObserver

	mu       sync.RWMutex
	agents   map[string]Agent
	byType   map[model.AgentType][]Agent
	tasks    map[string]*model.Task
	order    []string
	done     map[string]chan struct{}
	inFlight map[string]int
}

// New creates an orchestrator. Without options it delivers messages in-process
// and picks agents at random.
func New(logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:   logger.Named("orchestrator"),
		strategy: RandomStrategy{},
		agents:   make(map[string]Agent),
		byType:   make(map[model.AgentType][]Agent),
		tasks:    make(map[string]*model.Task),
		done:     make(map[string]chan struct{}),
		inFlight: make(map[string]int),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.transport == nil {
		o.transport = bus.NewDirectTransport(logger)
	}
	return o
}

// RegisterAgent adds the agent to the registry, attaches it to the transport and
// activates it. Registering the same instance twice is a no-op.
func (o *Orchestrator) RegisterAgent(agent Agent) error {
	id := agent.ID()

	o.mu.Lock()
	if existing, ok := o.agents[id]; ok && existing == agent {
		o.mu.Unlock()
		o.logger.Warn("Agent already registered", zap.String("agent_id", id))
		return nil
	}
	o.mu.Unlock()

	if err := o.transport.Attach(id, agent.ReceiveMessage); err != nil {
		return fmt.Errorf("failed to attach agent %s: %w", id, err)
	}

	o.mu.Lock()
	o.agents[id] = agent
	o.byType[agent.Type()] = append(o.byType[agent.Type()], agent)
	o.mu.Unlock()

	agent.SetOrchestrator(o)

	o.logger.Info("Agent registered",
		zap.String("agent_id", id),
		zap.String("name", agent.Info().Name),
		zap.String("agent_type", string(agent.Type())))
	return nil
}

// UnregisterAgent removes an agent. Tasks already assigned to it keep their
// status.
func (o *Orchestrator) UnregisterAgent(agentID string) error {
	o.mu.Lock()
	agent, ok := o.agents[agentID]
	if !ok {
		o.mu.Unlock()
		return ErrAgentNotFound
	}
	delete(o.agents, agentID)
	peers := o.byType[agent.Type()]
	for i, a := range peers {
		if a.ID() == agentID {
			o.byType[agent.Type()] = append(peers[:i:i], peers[i+1:]...)
			break
		}
	}
	delete(o.inFlight, agentID)
	o.mu.Unlock()

	o.transport.Detach(agentID)
	o.logger.Info("Agent unregistered", zap.String("agent_id", agentID))
	return nil
}

// GetAgents returns snapshots of all registered agents
func (o *Orchestrator) GetAgents() []model.AgentInfo {
	o.mu.RLock()
	agents := make([]Agent, 0, len(o.agents))
	for _, a := range o.agents {
		agents = append(agents, a)
	}
	o.mu.RUnlock()

	infos := make([]model.AgentInfo, 0, len(agents))
	for _, a := range agents {
		infos = append(infos, a.Info())
	}
	return infos
}

// GetAgentsByType returns snapshots of the agents registered under agentType
func (o *Orchestrator) GetAgentsByType(agentType model.AgentType) []model.AgentInfo {
	o.mu.RLock()
	agents := append([]Agent(nil), o.byType[agentType]...)
	o.mu.RUnlock()

	infos := make([]model.AgentInfo, 0, len(agents))
	for _, a := range agents {
		infos = append(infos, a.Info())
	}
	return infos
}

// CreateTask stores a new pending task and tries to assign it right away. The
// returned copy reflects the task after the assignment attempt; execution
// continues asynchronously.
func (o *Orchestrator) CreateTask(req TaskRequest) *model.Task {
	now := time.Now()
	priority := req.Priority
	if priority == "" {
		priority = defaultPriority
	}

	task := &model.Task{
		ID:           uuid.New().String(),
		Title:        req.Title,
		Description:  req.Description,
		AgentType:    req.AgentType,
		Status:       model.TaskStatusPending,
		Priority:     priority,
		Context:      req.Context.Clone(),
		ParentTaskID: req.ParentTaskID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if task.Context == nil {
		task.Context = model.TaskContext{}
	}

	o.mu.Lock()
	o.tasks[task.ID] = task
	o.order = append(o.order, task.ID)
	o.done[task.ID] = make(chan struct{})
	snapshot := task.Clone()
	o.mu.Unlock()

	o.logger.Info("Task created",
		zap.String("task_id", task.ID),
		zap.String("title", task.Title),
		zap.String("agent_type", string(task.AgentType)),
		zap.String("parent_task_id", task.ParentTaskID))
	o.notify(snapshot)

	if assigned := o.assignTask(task.ID); assigned != nil {
		return assigned
	}
	return o.snapshot(task.ID)
}

// assignTask picks an agent for the task, marks it in progress and delivers the
// assignment. It returns nil when no agent was available.
func (o *Orchestrator) assignTask(taskID string) *model.Task {
	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return nil
	}

	peers := o.byType[task.AgentType]
	candidates := make([]Candidate, 0, len(peers))
	for _, a := range peers {
		candidates = append(candidates, Candidate{AgentID: a.ID(), InFlight: o.inFlight[a.ID()]})
	}

	agentID, err := o.strategy.Select(candidates)
	if err != nil {
		o.mu.Unlock()
		o.logger.Warn("No agent available for task",
			zap.String("task_id", taskID),
			zap.String("agent_type", string(task.AgentType)),
			zap.Error(err))
		return nil
	}

	task.AssignedAgentID = agentID
	task.Status = model.TaskStatusInProgress
	task.UpdatedAt = time.Now()
	o.inFlight[agentID]++
	snapshot := task.Clone()
	o.mu.Unlock()

	o.logger.Info("Task assigned",
		zap.String("task_id", taskID),
		zap.String("agent_id", agentID))
	o.notify(snapshot)

	msg := &model.AgentMessage{
		ID:          uuid.New().String(),
		FromAgentID: model.OrchestratorID,
		ToAgentID:   agentID,
		Type:        model.MessageTaskAssignment,
		Content:     map[string]any{model.ContentTask: snapshot.Clone()},
		Timestamp:   time.Now(),
		TaskID:      taskID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := o.transport.Send(ctx, msg); err != nil {
		o.logger.Error("Failed to deliver task assignment",
			zap.String("task_id", taskID),
			zap.String("agent_id", agentID),
			zap.Error(err))
		_ = o.UpdateTaskStatus(taskID, model.TaskStatusFailed,
			model.Failure(fmt.Sprintf("assignment delivery failed: %v", err)))
		return o.snapshot(taskID)
	}

	return snapshot
}

// GetTask returns a copy of the task
func (o *Orchestrator) GetTask(id string) (*model.Task, error) {
	if t := o.snapshot(id); t != nil {
		return t, nil
	}
	return nil, ErrTaskNotFound
}

// GetAllTasks returns copies of every task in creation order
func (o *Orchestrator) GetAllTasks() []*model.Task {
	return o.ListTasks(TaskFilters{})
}

// ListTasks returns copies of the tasks matching filters, in creation order
func (o *Orchestrator) ListTasks(filters TaskFilters) []*model.Task {
	o.mu.RLock()
	defer o.mu.RUnlock()

	tasks := make([]*model.Task, 0, len(o.order))
	for _, id := range o.order {
		task := o.tasks[id]
		if matchesFilters(task, filters) {
			tasks = append(tasks, task.Clone())
		}
	}
	return tasks
}

// Children returns the follow-up tasks spawned by parentID
func (o *Orchestrator) Children(parentID string) []*model.Task {
	return o.ListTasks(TaskFilters{ParentTaskID: parentID})
}

func matchesFilters(task *model.Task, filters TaskFilters) bool {
	if filters.ParentTaskID != "" && task.ParentTaskID != filters.ParentTaskID {
		return false
	}

	if len(filters.Status) > 0 {
		statusMatch := false
		for _, status := range filters.Status {
			if task.Status == status {
				statusMatch = true
				break
			}
		}
		if !statusMatch {
			return false
		}
	}

	if len(filters.AgentType) > 0 {
		typeMatch := false
		for _, t := range filters.AgentType {
			if task.AgentType == t {
				typeMatch = true
				break
			}
		}
		if !typeMatch {
			return false
		}
	}

	return true
}

// UpdateTaskStatus moves a task to status. On completion the result is stored
// and every entry of result.NextTasks becomes a new task linked to this one.
// Unknown tasks and illegal transitions are logged and leave the table as is.
func (o *Orchestrator) UpdateTaskStatus(taskID string, status model.TaskStatus, result *model.TaskResult) error {
	now := time.Now()

	o.mu.Lock()
	task, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		o.logger.Error("Cannot update unknown task",
			zap.String("task_id", taskID),
			zap.String("status", string(status)))
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	if !task.Status.CanTransition(status) {
		from := task.Status
		o.mu.Unlock()
		o.logger.Warn("Ignoring invalid status transition",
			zap.String("task_id", taskID),
			zap.String("from", string(from)),
			zap.String("to", string(status)))
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}

	task.Status = status
	task.UpdatedAt = now
	if status.IsTerminal() {
		task.CompletedAt = &now
		if result != nil {
			task.Result = result
		}
		if task.AssignedAgentID != "" && o.inFlight[task.AssignedAgentID] > 0 {
			o.inFlight[task.AssignedAgentID]--
		}
	}
	parent := task.Clone()
	done := o.done[taskID]
	o.mu.Unlock()

	o.logger.Info("Task status updated",
		zap.String("task_id", taskID),
		zap.String("status", string(status)))
	o.notify(parent)

	if status == model.TaskStatusCompleted && result != nil {
		for _, next := range result.NextTasks {
			o.createFollowUp(parent, next)
		}
	}

	if status.IsTerminal() && done != nil {
		close(done)
	}
	return nil
}

func (o *Orchestrator) createFollowUp(parent *model.Task, next model.NextTask) {
	req := TaskRequest{
		Title:        next.Title,
		Description:  next.Description,
		AgentType:    next.AgentType,
		Context:      next.Context,
		Priority:     next.Priority,
		ParentTaskID: parent.ID,
	}
	if req.Title == "" {
		req.Title = followUpTitle
	}
	if req.AgentType == "" {
		req.AgentType = parent.AgentType
	}
	if req.Priority == "" {
		req.Priority = parent.Priority
	}

	child := o.CreateTask(req)
	o.logger.Info("Follow-up task created",
		zap.String("parent_task_id", parent.ID),
		zap.String("task_id", child.ID))
}

// WaitForTask blocks until the task reaches a terminal status or ctx ends
func (o *Orchestrator) WaitForTask(ctx context.Context, taskID string) (*model.Task, error) {
	o.mu.RLock()
	done, ok := o.done[taskID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	select {
	case <-done:
		return o.GetTask(taskID)
	case <-ctx.Done():
		return o.snapshot(taskID), ctx.Err()
	}
}

// RouteMessage delivers msg to its recipient. Messages for the orchestrator are
// handled here; messages for unknown agents are logged and dropped.
func (o *Orchestrator) RouteMessage(msg *model.AgentMessage) {
	if msg == nil {
		return
	}

	if msg.ToAgentID == model.OrchestratorID {
		o.handleMessage(msg)
		return
	}

	o.mu.RLock()
	_, ok := o.agents[msg.ToAgentID]
	o.mu.RUnlock()
	if !ok {
		o.logger.Warn("Dropping message for unknown agent",
			zap.String("message_id", msg.ID),
			zap.String("type", string(msg.Type)),
			zap.String("from", msg.FromAgentID),
			zap.String("to", msg.ToAgentID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := o.transport.Send(ctx, msg); err != nil {
		o.logger.Error("Failed to route message",
			zap.String("message_id", msg.ID),
			zap.String("to", msg.ToAgentID),
			zap.Error(err))
	}
}

func (o *Orchestrator) handleMessage(msg *model.AgentMessage) {
	switch msg.Type {
	case model.MessageTaskUpdate, model.MessageTaskCompleted:
		taskID := msg.String(model.ContentTaskID)
		if taskID == "" {
			taskID = msg.TaskID
		}

		status := model.TaskStatus(msg.String(model.ContentStatus))
		if status == "" {
			if msg.Type != model.MessageTaskCompleted {
				o.logger.Error("Task update without status",
					zap.String("message_id", msg.ID),
					zap.String("task_id", taskID),
					zap.Error(ErrMissingStatus))
				return
			}
			status = model.TaskStatusCompleted
		}

		var result *model.TaskResult
		if _, ok := msg.Content[model.ContentResult]; ok {
			result = &model.TaskResult{}
			if err := msg.Decode(model.ContentResult, result); err != nil {
				o.logger.Error("Failed to decode task result",
					zap.String("message_id", msg.ID),
					zap.String("task_id", taskID),
					zap.Error(err))
				result = nil
			}
		}

		// errors are already logged by UpdateTaskStatus
		_ = o.UpdateTaskStatus(taskID, status, result)
	default:
		o.logger.Warn("Orchestrator ignoring message",
			zap.String("message_id", msg.ID),
			zap.String("type", string(msg.Type)),
			zap.String("from", msg.FromAgentID))
	}
}

// Stats summarises agents and tasks
func (o *Orchestrator) Stats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	stats := Stats{
		Agents:        len(o.agents),
		AgentsByType:  make(map[model.AgentType]int),
		Tasks:         len(o.tasks),
		TasksByStatus: make(map[model.TaskStatus]int),
		InFlight:      make(map[string]int, len(o.inFlight)),
		CollectedAt:   time.Now(),
	}
	for t, agents := range o.byType {
		if len(agents) > 0 {
			stats.AgentsByType[t] = len(agents)
		}
	}
	for _, task := range o.tasks {
		stats.TasksByStatus[task.Status]++
	}
	for id, n := range o.inFlight {
		stats.InFlight[id] = n
	}
	return stats
}

// Close shuts down the transport
func (o *Orchestrator) Close() error {
	return o.transport.Close()
}

func (o *Orchestrator) snapshot(id string) *model.Task {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if task, ok := o.tasks[id]; ok {
		return task.Clone()
	}
	return nil
}

func (o *Orchestrator) notify(task *model.Task) {
	for _, obs := range o.observers {
		obs(task.Clone())
	}
}
