package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/config"
	"github.com/t77yq/a2a-travel/internal/model"
	"github.com/t77yq/a2a-travel/internal/monitor"
	"github.com/t77yq/a2a-travel/internal/storage"
	"github.com/t77yq/a2a-travel/internal/workflow"
)

func loadConfig(t *testing.T, content string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = newLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestApp(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	cfg := loadConfig(t, "history:\n  enabled: true\n  path: "+dbPath+"\nworkflow:\n  stage_timeout: 5s\n")

	a, err := newApp(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.Run("Agents Registered", func(t *testing.T) {
		agents := a.orch.GetAgents()
		require.Len(t, agents, 3)
		for _, agentType := range []model.AgentType{
			model.AgentTypeTravelSafety,
			model.AgentTypeFlightBooking,
			model.AgentTypeAccommodation,
		} {
			assert.Len(t, a.orch.GetAgentsByType(agentType), 1)
		}
	})

	t.Run("Plan Is Recorded", func(t *testing.T) {
		plan, err := a.planner.Plan(ctx, workflow.PlanRequest{
			Origin:        "London",
			Destination:   "Paris",
			DepartureDate: "2026-11-02",
			Guests:        2,
		})
		require.NoError(t, err)
		require.Len(t, plan.Tasks, 3)
		assert.Equal(t, true, plan.Safety["safe"])
		assert.NotNil(t, plan.Flights)
		assert.NotNil(t, plan.Hotels)

		assert.Eventually(t, func() bool {
			n, err := a.history.Count(ctx, storage.HistoryFilters{Status: model.TaskStatusCompleted})
			return err == nil && n == 3
		}, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("Alert Rules Installed", func(t *testing.T) {
		require.NotNil(t, a.alerts)
		a.alerts.EvaluateStuckTasks()
		assert.Empty(t, a.alerts.Alerts())
	})

	require.NoError(t, a.Close())
}

func TestAddAlertRules(t *testing.T) {
	alerts := monitor.NewAlertManager(monitor.TaskListerFunc(nil), nil, time.Hour, zap.NewNop())
	assert.Error(t, addAlertRules(alerts, config.AlertsConfig{}))
	assert.NoError(t, addAlertRules(alerts, config.AlertsConfig{StuckAfter: time.Minute}))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	plan := &workflow.Plan{WorkflowID: "wf-1", Warnings: []string{"no hotels"}}
	require.NoError(t, writeJSON(&buf, plan))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "wf-1", decoded["workflowId"])
	assert.Contains(t, buf.String(), "\n  \"workflowId\"")
}
