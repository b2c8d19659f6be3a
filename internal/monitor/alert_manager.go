package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
	"github.com/t77yq/a2a-travel/internal/orchestrator"
)

const alertStream = "ALERTS"

// AlertType is what a rule watches for
type AlertType string

const (
	// AlertTypeTaskFailure fires when a task ends as failed
	AlertTypeTaskFailure AlertType = "task_failure"
	// AlertTypeUnsuccessful fires when a task completes with success false
	AlertTypeUnsuccessful AlertType = "unsuccessful_result"
	// AlertTypeStuckTask fires when a task stays pending or in progress past the threshold
	AlertTypeStuckTask AlertType = "stuck_task"
)

// AlertSeverity grades an alert
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertRule defines when an alert is raised. AgentType limits the rule to one
// agent type; Threshold only applies to stuck task rules.
type AlertRule struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      AlertType       `json:"type"`
	Severity  AlertSeverity   `json:"severity"`
	AgentType model.AgentType `json:"agentType,omitempty"`
	Threshold time.Duration   `json:"threshold,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Alert is a raised alert
type Alert struct {
	ID        string         `json:"id"`
	RuleID    string         `json:"ruleId"`
	Type      AlertType      `json:"type"`
	Severity  AlertSeverity  `json:"severity"`
	TaskID    string         `json:"taskId"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// TaskLister lists orchestrator tasks
type TaskLister interface {
	ListTasks(filters orchestrator.TaskFilters) []*model.Task
}

// TaskListerFunc adapts a function to TaskLister
type TaskListerFunc func(filters orchestrator.TaskFilters) []*model.Task

// ListTasks implements TaskLister
func (f TaskListerFunc) ListTasks(filters orchestrator.TaskFilters) []*model.Task {
	return f(filters)
}

// AlertManager raises alerts from task changes and periodic checks
type AlertManager struct {
	logger   *zap.Logger
	tasks    TaskLister
	js       nats.JetStreamContext
	interval time.Duration

	mu     sync.RWMutex
	rules  map[string]*AlertRule
	alerts []*Alert
	fired  map[string]bool // rule id + task id

	stop     chan struct{}
	stopOnce sync.Once
}

// NewAlertManager creates a new alert manager. js may be nil, in which case
// alerts are only logged and kept in memory.
func NewAlertManager(tasks TaskLister, js nats.JetStreamContext, interval time.Duration, logger *zap.Logger) *AlertManager {
	return &AlertManager{
		logger:   logger.Named("alert-manager"),
		tasks:    tasks,
		js:       js,
		interval: interval,
		rules:    make(map[string]*AlertRule),
		fired:    make(map[string]bool),
		stop:     make(chan struct{}),
	}
}

// Start starts the alert manager
func (m *AlertManager) Start(ctx context.Context) error {
	if m.js != nil {
		if err := ensureStream(m.js, alertStream, []string{"alert.*"}, 24*time.Hour); err != nil {
			return err
		}
	}

	go m.evaluationLoop(ctx)

	m.logger.Info("Alert manager started")
	return nil
}

// Stop stops the alert manager
func (m *AlertManager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// GetRule returns a rule by ID
func (m *AlertManager) GetRule(id string) (*AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, ok := m.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule not found: %s", id)
	}
	r := *rule
	return &r, nil
}

// AddRule adds a new alert rule
func (m *AlertManager) AddRule(rule *AlertRule) error {
	if rule.Type == AlertTypeStuckTask && rule.Threshold <= 0 {
		return fmt.Errorf("stuck task rule %q needs a threshold", rule.Name)
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt

	m.mu.Lock()
	r := *rule
	m.rules[rule.ID] = &r
	m.mu.Unlock()
	return nil
}

// UpdateRule updates an existing alert rule
func (m *AlertManager) UpdateRule(rule *AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[rule.ID]; !ok {
		return fmt.Errorf("rule not found: %s", rule.ID)
	}
	rule.UpdatedAt = time.Now()
	r := *rule
	m.rules[rule.ID] = &r
	return nil
}

// DeleteRule deletes an alert rule
func (m *AlertManager) DeleteRule(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return fmt.Errorf("rule not found: %s", id)
	}
	delete(m.rules, id)
	return nil
}

// Alerts returns the raised alerts, oldest first
func (m *AlertManager) Alerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		alerts = append(alerts, *a)
	}
	return alerts
}

func (m *AlertManager) rulesOf(t AlertType) []AlertRule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rules []AlertRule
	for _, r := range m.rules {
		if r.Type == t {
			rules = append(rules, *r)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].CreatedAt.Before(rules[j].CreatedAt) })
	return rules
}

// Observe checks a task change against failure and unsuccessful result rules
func (m *AlertManager) Observe(task *model.Task) {
	switch {
	case task.Status == model.TaskStatusFailed:
		reason := ""
		if task.Result != nil {
			reason = task.Result.Error
		}
		for _, rule := range m.rulesOf(AlertTypeTaskFailure) {
			m.raise(rule, task, fmt.Sprintf("Task %q failed", task.Title), map[string]any{"error": reason})
		}
	case task.Status == model.TaskStatusCompleted && task.Result != nil && !task.Result.Success:
		for _, rule := range m.rulesOf(AlertTypeUnsuccessful) {
			m.raise(rule, task, fmt.Sprintf("Task %q was unsuccessful", task.Title),
				map[string]any{"error": task.Result.Error})
		}
	}
}

// evaluationLoop periodically evaluates stuck task rules
func (m *AlertManager) evaluationLoop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.EvaluateStuckTasks()
		}
	}
}

// EvaluateStuckTasks raises an alert for each open task older than a stuck
// task rule's threshold. Each task alerts once per rule.
func (m *AlertManager) EvaluateStuckTasks() {
	rules := m.rulesOf(AlertTypeStuckTask)
	if len(rules) == 0 {
		return
	}

	open := m.tasks.ListTasks(orchestrator.TaskFilters{
		Status: []model.TaskStatus{model.TaskStatusPending, model.TaskStatusInProgress},
	})
	now := time.Now()
	for _, rule := range rules {
		for _, task := range open {
			age := now.Sub(task.UpdatedAt)
			if age < rule.Threshold {
				continue
			}
			m.raise(rule, task, fmt.Sprintf("Task %q has been %s for %s", task.Title, task.Status, age.Round(time.Second)),
				map[string]any{"status": task.Status, "elapsed_time": age.String()})
		}
	}
}

func (m *AlertManager) raise(rule AlertRule, task *model.Task, message string, data map[string]any) {
	if rule.AgentType != "" && rule.AgentType != task.AgentType {
		return
	}

	key := rule.ID + "/" + task.ID
	m.mu.Lock()
	if m.fired[key] {
		m.mu.Unlock()
		return
	}
	m.fired[key] = true
	alert := &Alert{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		Type:      rule.Type,
		Severity:  rule.Severity,
		TaskID:    task.ID,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now(),
	}
	m.alerts = append(m.alerts, alert)
	m.mu.Unlock()

	m.logger.Warn("Alert created",
		zap.String("id", alert.ID),
		zap.String("rule_id", alert.RuleID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)),
		zap.String("task_id", task.ID),
		zap.String("message", message))

	if m.js == nil {
		return
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		m.logger.Error("Failed to marshal alert", zap.Error(err))
		return
	}
	if _, err := m.js.Publish("alert."+string(alert.Type), payload); err != nil {
		m.logger.Error("Failed to publish alert", zap.String("id", alert.ID), zap.Error(err))
	}
}
