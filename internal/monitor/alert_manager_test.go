package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
	"github.com/t77yq/a2a-travel/internal/orchestrator"
	"github.com/t77yq/a2a-travel/internal/testutil"
)

type taskList struct {
	mu    sync.Mutex
	tasks []*model.Task
}

func (l *taskList) ListTasks(filters orchestrator.TaskFilters) []*model.Task {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*model.Task
	for _, task := range l.tasks {
		for _, status := range filters.Status {
			if task.Status == status {
				out = append(out, task.Clone())
				break
			}
		}
	}
	return out
}

func failedTask(id string, agentType model.AgentType) *model.Task {
	return &model.Task{
		ID:        id,
		Title:     "Search flights",
		AgentType: agentType,
		Status:    model.TaskStatusFailed,
		Result:    model.Failure("agent panic: boom"),
		UpdatedAt: time.Now(),
	}
}

func TestAlertManagerRules(t *testing.T) {
	manager := NewAlertManager(&taskList{}, nil, time.Hour, zap.NewNop())

	t.Run("Add Rule", func(t *testing.T) {
		rule := &AlertRule{Name: "Task Failure", Type: AlertTypeTaskFailure, Severity: AlertSeverityCritical}
		require.NoError(t, manager.AddRule(rule))
		assert.NotEmpty(t, rule.ID)

		got, err := manager.GetRule(rule.ID)
		require.NoError(t, err)
		assert.Equal(t, "Task Failure", got.Name)
	})

	t.Run("Stuck Rule Needs Threshold", func(t *testing.T) {
		err := manager.AddRule(&AlertRule{Name: "Stuck", Type: AlertTypeStuckTask})
		assert.Error(t, err)
	})

	t.Run("Update Rule", func(t *testing.T) {
		rule := &AlertRule{Name: "Stuck", Type: AlertTypeStuckTask, Threshold: time.Minute, Severity: AlertSeverityWarning}
		require.NoError(t, manager.AddRule(rule))

		time.Sleep(time.Millisecond)
		rule.Threshold = 2 * time.Minute
		rule.Severity = AlertSeverityCritical
		require.NoError(t, manager.UpdateRule(rule))

		updated, err := manager.GetRule(rule.ID)
		require.NoError(t, err)
		assert.Equal(t, 2*time.Minute, updated.Threshold)
		assert.Equal(t, AlertSeverityCritical, updated.Severity)
		assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	})

	t.Run("Delete Rule", func(t *testing.T) {
		rule := &AlertRule{Name: "Unsuccessful", Type: AlertTypeUnsuccessful}
		require.NoError(t, manager.AddRule(rule))
		require.NoError(t, manager.DeleteRule(rule.ID))

		_, err := manager.GetRule(rule.ID)
		assert.Error(t, err)
		assert.Error(t, manager.DeleteRule(rule.ID))
		assert.Error(t, manager.UpdateRule(rule))
	})
}

func TestAlertManagerObserve(t *testing.T) {
	manager := NewAlertManager(&taskList{}, nil, time.Hour, zap.NewNop())
	require.NoError(t, manager.AddRule(&AlertRule{
		Name:      "Flight Failure",
		Type:      AlertTypeTaskFailure,
		Severity:  AlertSeverityCritical,
		AgentType: model.AgentTypeFlightBooking,
	}))
	require.NoError(t, manager.AddRule(&AlertRule{
		Name:     "Unsuccessful",
		Type:     AlertTypeUnsuccessful,
		Severity: AlertSeverityInfo,
	}))

	t.Run("Task Failure", func(t *testing.T) {
		manager.Observe(failedTask("t1", model.AgentTypeFlightBooking))

		alerts := manager.Alerts()
		require.Len(t, alerts, 1)
		assert.Equal(t, AlertTypeTaskFailure, alerts[0].Type)
		assert.Equal(t, "t1", alerts[0].TaskID)
		assert.Equal(t, "agent panic: boom", alerts[0].Data["error"])
	})

	t.Run("Alerts Once Per Task", func(t *testing.T) {
		manager.Observe(failedTask("t1", model.AgentTypeFlightBooking))
		assert.Len(t, manager.Alerts(), 1)
	})

	t.Run("Agent Type Filter", func(t *testing.T) {
		manager.Observe(failedTask("t2", model.AgentTypeAccommodation))
		assert.Len(t, manager.Alerts(), 1)
	})

	t.Run("Unsuccessful Result", func(t *testing.T) {
		manager.Observe(&model.Task{
			ID:        "t3",
			Title:     "Search hotels",
			AgentType: model.AgentTypeAccommodation,
			Status:    model.TaskStatusCompleted,
			Result:    model.Failure("location is required"),
		})

		alerts := manager.Alerts()
		require.Len(t, alerts, 2)
		assert.Equal(t, AlertTypeUnsuccessful, alerts[1].Type)
		assert.Equal(t, AlertSeverityInfo, alerts[1].Severity)
	})

	t.Run("Successful Result", func(t *testing.T) {
		manager.Observe(&model.Task{
			ID:     "t4",
			Status: model.TaskStatusCompleted,
			Result: model.Success(nil),
		})
		assert.Len(t, manager.Alerts(), 2)
	})
}

func TestAlertManagerStuckTasks(t *testing.T) {
	tasks := &taskList{tasks: []*model.Task{
		{ID: "old", Title: "Check safety", Status: model.TaskStatusInProgress, UpdatedAt: time.Now().Add(-time.Hour)},
		{ID: "fresh", Title: "Check safety", Status: model.TaskStatusPending, UpdatedAt: time.Now()},
		{ID: "done", Title: "Check safety", Status: model.TaskStatusCompleted, UpdatedAt: time.Now().Add(-time.Hour)},
	}}
	manager := NewAlertManager(tasks, nil, time.Hour, zap.NewNop())

	manager.EvaluateStuckTasks()
	assert.Empty(t, manager.Alerts())

	require.NoError(t, manager.AddRule(&AlertRule{
		Name:      "Stuck",
		Type:      AlertTypeStuckTask,
		Severity:  AlertSeverityWarning,
		Threshold: 10 * time.Minute,
	}))

	manager.EvaluateStuckTasks()
	manager.EvaluateStuckTasks()

	alerts := manager.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "old", alerts[0].TaskID)
	assert.Equal(t, model.TaskStatusInProgress, alerts[0].Data["status"])
}

func TestAlertManagerPublish(t *testing.T) {
	js := testutil.SetupJetStream(t)

	tasks := &taskList{}
	manager := NewAlertManager(tasks, js, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, manager.Start(ctx))
	defer manager.Stop()
	require.NoError(t, testutil.WaitForStream(t, js, "ALERTS", 5*time.Second))

	require.NoError(t, manager.AddRule(&AlertRule{
		Name:     "Task Failure",
		Type:     AlertTypeTaskFailure,
		Severity: AlertSeverityCritical,
	}))
	manager.Observe(failedTask("t1", model.AgentTypeFlightBooking))

	msgs, err := testutil.ConsumeMessages(js, "alert.task_failure", 1, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var alert Alert
	require.NoError(t, json.Unmarshal(msgs[0], &alert))
	assert.Equal(t, "t1", alert.TaskID)
	assert.Equal(t, AlertSeverityCritical, alert.Severity)
}
