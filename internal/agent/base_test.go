package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/a2a-travel/internal/model"
	"github.com/t77yq/a2a-travel/internal/orchestrator"
	"github.com/t77yq/a2a-travel/internal/travel"
)

const waitTimeout = 5 * time.Second

func waitForTask(t *testing.T, orch *orchestrator.Orchestrator, id string) *model.Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	task, err := orch.WaitForTask(ctx, id)
	require.NoError(t, err)
	return task
}

type panicAgent struct {
	*BaseAgent
}

func (p *panicAgent) HandleTaskAssignment(ctx context.Context, task *model.Task) {
	_ = p.UpdateTaskStatus(task.ID, model.TaskStatusInProgress, nil)
	panic("boom")
}

func newPanicAgent(logger *zap.Logger) *panicAgent {
	a := &panicAgent{}
	a.BaseAgent = NewBaseAgent("Panicking Agent", model.AgentTypeNotification, a, logger)
	return a
}

func TestBaseAgent(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Starts Inactive", func(t *testing.T) {
		a := NewBaseAgent("worker", model.AgentTypeNotification, nil, logger)
		info := a.Info()
		assert.NotEmpty(t, info.ID)
		assert.Equal(t, "worker", info.Name)
		assert.Equal(t, model.AgentTypeNotification, info.Type)
		assert.Equal(t, model.AgentStatusInactive, info.Status)

		other := NewBaseAgent("worker", model.AgentTypeNotification, nil, logger)
		assert.NotEqual(t, info.ID, other.ID())
	})

	t.Run("Capabilities In Registration Order", func(t *testing.T) {
		a := NewBaseAgent("worker", model.AgentTypeNotification, nil, logger)
		a.RegisterCapability(model.AgentCapability{Action: "first"})
		a.RegisterAction(Action{
			Capability: model.AgentCapability{Action: "second"},
			Handler: func(context.Context, *model.Task) (*model.TaskResult, error) {
				return model.Success(nil), nil
			},
		})
		a.RegisterCapability(model.AgentCapability{Action: "third"})

		caps := a.Info().Capabilities
		require.Len(t, caps, 3)
		assert.Equal(t, "first", caps[0].Action)
		assert.Equal(t, "second", caps[1].Action)
		assert.Equal(t, "third", caps[2].Action)
	})

	t.Run("Send Without Orchestrator", func(t *testing.T) {
		a := NewBaseAgent("worker", model.AgentTypeNotification, nil, logger)
		_, err := a.SendMessage(model.OrchestratorID, model.MessageTaskUpdate, nil, "t1")
		assert.ErrorIs(t, err, ErrNoOrchestrator)
		assert.ErrorIs(t, a.CompleteTask("t1", model.Success(nil)), ErrNoOrchestrator)

		err = a.RequestInformation(context.Background(), "someone", map[string]any{"type": "x"}, "", nil)
		assert.ErrorIs(t, err, ErrNoOrchestrator)
	})

	t.Run("Activated On Registration", func(t *testing.T) {
		orch := orchestrator.New(logger)
		a := NewBaseAgent("worker", model.AgentTypeNotification, nil, logger)
		require.NoError(t, orch.RegisterAgent(a))
		assert.Equal(t, model.AgentStatusActive, a.Info().Status)
	})

	t.Run("Unknown Message Type Is Dropped", func(t *testing.T) {
		a := NewBaseAgent("worker", model.AgentTypeNotification, nil, logger)
		a.ReceiveMessage(&model.AgentMessage{ID: "m1", Type: model.MessageTaskCompleted})
		a.ReceiveMessage(&model.AgentMessage{
			ID:      "m2",
			Type:    model.MessageInformationResponse,
			Content: map[string]any{model.ContentInReplyTo: "nobody"},
		})
	})
}

func TestBaseAgent_ExecuteAction(t *testing.T) {
	logger := zaptest.NewLogger(t)
	orch := orchestrator.New(logger)

	a := NewBaseAgent("worker", model.AgentTypeNotification, nil, logger)
	a.RegisterAction(Action{
		Capability: model.AgentCapability{
			Action: "notify",
			Parameters: map[string]model.ParameterSpec{
				"recipient": param("string", "Who to notify", true),
				"channel":   param("string", "Delivery channel", false),
			},
		},
		Handler: func(_ context.Context, task *model.Task) (*model.TaskResult, error) {
			if task.Context.String("channel") == "pigeon" {
				return nil, assert.AnError
			}
			return model.Success(map[string]any{"sent": task.Context.String("recipient")}), nil
		},
	})
	require.NoError(t, orch.RegisterAgent(a))

	tests := []struct {
		name    string
		context model.TaskContext
		success bool
		errText string
	}{
		{
			name:    "Success",
			context: model.TaskContext{"action": "notify", "recipient": "ops"},
			success: true,
		},
		{
			name:    "Unknown Action",
			context: model.TaskContext{"action": "fly"},
			errText: "Unknown action: fly",
		},
		{
			name:    "Missing Parameter",
			context: model.TaskContext{"action": "notify", "recipient": ""},
			errText: "recipient is required",
		},
		{
			name:    "Handler Error",
			context: model.TaskContext{"action": "notify", "recipient": "ops", "channel": "pigeon"},
			errText: assert.AnError.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created := orch.CreateTask(orchestrator.TaskRequest{
				Title:     tt.name,
				AgentType: model.AgentTypeNotification,
				Context:   tt.context,
			})

			task := waitForTask(t, orch, created.ID)
			assert.Equal(t, model.TaskStatusCompleted, task.Status)
			require.NotNil(t, task.Result)
			assert.Equal(t, tt.success, task.Result.Success)
			assert.Equal(t, tt.errText, task.Result.Error)
			assert.NotNil(t, task.CompletedAt)
		})
	}
}

func TestBaseAgent_PanicFailsTask(t *testing.T) {
	logger := zaptest.NewLogger(t)
	orch := orchestrator.New(logger)

	a := newPanicAgent(logger)
	require.NoError(t, orch.RegisterAgent(a))

	created := orch.CreateTask(orchestrator.TaskRequest{
		Title:     "explode",
		AgentType: model.AgentTypeNotification,
		Context:   model.TaskContext{"action": "anything"},
	})

	task := waitForTask(t, orch, created.ID)
	assert.Equal(t, model.TaskStatusFailed, task.Status)
	require.NotNil(t, task.Result)
	assert.False(t, task.Result.Success)
	assert.Contains(t, task.Result.Error, "boom")
}

func TestBaseAgent_RequestInformation(t *testing.T) {
	logger := zap.NewNop()
	orch := orchestrator.New(logger)
	table := travel.NewAdvisoryTable()

	safety := NewTravelSafetyAgent(table, logger)
	requester := NewBaseAgent("requester", model.AgentTypeItineraryPlanner, nil, logger)
	require.NoError(t, orch.RegisterAgent(safety))
	require.NoError(t, orch.RegisterAgent(requester))

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	t.Run("Response", func(t *testing.T) {
		var check travel.SanctionsCheck
		err := requester.RequestInformation(ctx, safety.ID(),
			map[string]any{"type": querySanctions, "country": "Iran"}, "", &check)
		require.NoError(t, err)
		assert.True(t, check.Sanctioned)
		assert.Equal(t, "Iran", check.Country)
	})

	t.Run("Unknown Query", func(t *testing.T) {
		err := requester.RequestInformation(ctx, safety.ID(), map[string]any{"type": "weather"}, "", nil)
		assert.ErrorIs(t, err, ErrQueryFailed)
		assert.Contains(t, err.Error(), "Unknown query type: weather")
	})

	t.Run("Query Error", func(t *testing.T) {
		err := requester.RequestInformation(ctx, safety.ID(), map[string]any{"type": queryDestinationSafety}, "", nil)
		assert.ErrorIs(t, err, ErrQueryFailed)
		assert.Contains(t, err.Error(), "destination is required")
	})

	t.Run("Unknown Recipient Times Out", func(t *testing.T) {
		short, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := requester.RequestInformation(short, "missing-agent", map[string]any{"type": querySanctions}, "", nil)
		assert.ErrorIs(t, err, ErrRequestTimeout)
	})

	t.Run("Fire And Forget", func(t *testing.T) {
		id, err := requester.SendInformationRequest(safety.ID(),
			map[string]any{"type": queryDestinationSafety, "destination": "Paris"}, "")
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	})
}

func TestBaseAgent_Stop(t *testing.T) {
	logger := zap.NewNop()
	orch := orchestrator.New(logger)

	a := NewTravelSafetyAgent(travel.NewAdvisoryTable(), logger)
	require.NoError(t, orch.RegisterAgent(a))
	a.Stop()
	assert.Equal(t, model.AgentStatusInactive, a.Info().Status)

	// assignments after Stop are dropped, the task stays in progress
	created := orch.CreateTask(orchestrator.TaskRequest{
		Title:     "late",
		AgentType: model.AgentTypeTravelSafety,
		Context:   model.TaskContext{"action": actionCheckSanctions, "country": "Iran"},
	})
	task, err := orch.GetTask(created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusInProgress, task.Status)
}

func testContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), waitTimeout)
}
