package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
	"github.com/t77yq/a2a-travel/internal/orchestrator"
)

func newHistory(t *testing.T) *SQLiteTaskHistory {
	t.Helper()
	history, err := NewSQLiteTaskHistory(zap.NewNop(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })
	return history
}

func testTask(id string, status model.TaskStatus, updated time.Time) *model.Task {
	return &model.Task{
		ID:        id,
		Title:     "Check " + id,
		AgentType: model.AgentTypeTravelSafety,
		Status:    status,
		Priority:  model.TaskPriorityMedium,
		Context:   model.TaskContext{"action": "check_destination_safety", "destination": "Ukraine"},
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

func TestSQLiteTaskHistory_Save(t *testing.T) {
	history := newHistory(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	pending := testTask("t1", model.TaskStatusPending, base)
	require.NoError(t, history.Save(ctx, pending))

	done := testTask("t1", model.TaskStatusCompleted, base.Add(2*time.Second))
	done.AssignedAgentID = "agent-1"
	completedAt := done.UpdatedAt
	done.CompletedAt = &completedAt
	done.Result = model.Success(map[string]any{"safe": false})
	require.NoError(t, history.Save(ctx, done))

	// a late in_progress snapshot must not win over the completed one
	late := testTask("t1", model.TaskStatusInProgress, base.Add(time.Second))
	require.NoError(t, history.Save(ctx, late))

	record, err := history.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, record.Status)
	assert.Equal(t, "agent-1", record.AssignedAgentID)
	require.NotNil(t, record.Success)
	assert.True(t, *record.Success)
	require.NotNil(t, record.CompletedAt)

	var result model.TaskResult
	require.NoError(t, json.Unmarshal(record.Result, &result))
	assert.Equal(t, false, result.Data["safe"])

	var tc map[string]any
	require.NoError(t, json.Unmarshal(record.Context, &tc))
	assert.Equal(t, "Ukraine", tc["destination"])

	_, err = history.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSQLiteTaskHistory_Query(t *testing.T) {
	history := newHistory(t)
	ctx := context.Background()
	now := time.Now()

	old := testTask("old", model.TaskStatusCompleted, now.Add(-48*time.Hour))
	recent := testTask("recent", model.TaskStatusCompleted, now.Add(-time.Hour))
	child := testTask("child", model.TaskStatusPending, now)
	child.ParentTaskID = "recent"
	flight := testTask("flight", model.TaskStatusInProgress, now.Add(-time.Minute))
	flight.AgentType = model.AgentTypeFlightBooking

	for _, task := range []*model.Task{old, recent, child, flight} {
		require.NoError(t, history.Save(ctx, task))
	}

	t.Run("List All Newest First", func(t *testing.T) {
		records, err := history.List(ctx, HistoryFilters{}, 0, 0)
		require.NoError(t, err)
		require.Len(t, records, 4)
		assert.Equal(t, "child", records[0].TaskID)
		assert.Equal(t, "old", records[3].TaskID)
	})

	t.Run("Pagination", func(t *testing.T) {
		records, err := history.List(ctx, HistoryFilters{}, 1, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "flight", records[0].TaskID)
	})

	t.Run("Filters", func(t *testing.T) {
		count, err := history.Count(ctx, HistoryFilters{Status: model.TaskStatusCompleted})
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		count, err = history.Count(ctx, HistoryFilters{AgentType: model.AgentTypeFlightBooking})
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		records, err := history.List(ctx, HistoryFilters{ParentTaskID: "recent"}, 0, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "child", records[0].TaskID)

		count, err = history.Count(ctx, HistoryFilters{Since: now.Add(-2 * time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("Delete Before", func(t *testing.T) {
		deleted, err := history.DeleteBefore(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		count, err := history.Count(ctx, HistoryFilters{})
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}

func TestSQLiteTaskHistory_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	first, err := NewSQLiteTaskHistory(zap.NewNop(), path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, testTask("kept", model.TaskStatusPending, time.Now())))
	require.NoError(t, first.Close())

	second, err := NewSQLiteTaskHistory(zap.NewNop(), path)
	require.NoError(t, err)
	defer second.Close()

	record, err := second.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPending, record.Status)
}

func TestSQLiteTaskHistory_Observe(t *testing.T) {
	history := newHistory(t)
	orch := orchestrator.New(zap.NewNop(), orchestrator.WithObserver(history.Observe))

	task := orch.CreateTask(orchestrator.TaskRequest{Title: "Notify", AgentType: model.AgentTypeNotification})

	record, err := history.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPending, record.Status)
	assert.Equal(t, "Notify", record.Title)
}
