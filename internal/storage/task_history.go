// Package storage keeps a durable history of task snapshots.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/model"
)

const observeTimeout = 5 * time.Second

// ErrRecordNotFound is returned when no history exists for a task id
var ErrRecordNotFound = errors.New("task history record not found")

// TaskRecord is the latest stored snapshot of a task
type TaskRecord struct {
	TaskID          string             `json:"taskId"`
	Title           string             `json:"title"`
	AgentType       model.AgentType    `json:"agentType"`
	AssignedAgentID string             `json:"assignedAgentId,omitempty"`
	Status          model.TaskStatus   `json:"status"`
	Priority        model.TaskPriority `json:"priority"`
	ParentTaskID    string             `json:"parentTaskId,omitempty"`
	Context         json.RawMessage    `json:"context,omitempty"`
	Result          json.RawMessage    `json:"result,omitempty"`
	Success         *bool              `json:"success,omitempty"`
	Error           string             `json:"error,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
}

// HistoryFilters narrows List and Count. Zero values match everything.
type HistoryFilters struct {
	Status       model.TaskStatus
	AgentType    model.AgentType
	ParentTaskID string
	Since        time.Time
}

// TaskHistoryStorage defines the interface for task history storage
type TaskHistoryStorage interface {
	// Save stores a task snapshot unless a newer one is already stored
	Save(ctx context.Context, task *model.Task) error

	// Get retrieves the record of a task
	Get(ctx context.Context, taskID string) (*TaskRecord, error)

	// List retrieves records with pagination and filters, newest first
	List(ctx context.Context, filters HistoryFilters, offset, limit int) ([]*TaskRecord, error)

	// Count returns the number of records matching the filters
	Count(ctx context.Context, filters HistoryFilters) (int, error)

	// DeleteBefore deletes records last updated before the given time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteTaskHistory implements TaskHistoryStorage using SQLite
type SQLiteTaskHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteTaskHistory opens or creates the history database at dbPath
func NewSQLiteTaskHistory(logger *zap.Logger, dbPath string) (*SQLiteTaskHistory, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	storage := &SQLiteTaskHistory{
		logger: logger.Named("task-history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteTaskHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS task_history (
			task_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			agent_type TEXT NOT NULL,
			assigned_agent_id TEXT,
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			parent_task_id TEXT,
			context TEXT,
			result TEXT,
			success INTEGER,
			error TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			completed_at DATETIME,
			revision INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_task_history_status ON task_history(status);
		CREATE INDEX IF NOT EXISTS idx_task_history_agent_type ON task_history(agent_type);
		CREATE INDEX IF NOT EXISTS idx_task_history_parent ON task_history(parent_task_id);
		CREATE INDEX IF NOT EXISTS idx_task_history_revision ON task_history(revision);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Save implements TaskHistoryStorage.Save. Snapshots can arrive out of order
// from concurrent agents, so an older revision never overwrites a newer one.
func (s *SQLiteTaskHistory) Save(ctx context.Context, task *model.Task) error {
	contextJSON, err := marshalNullable(task.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal task context: %w", err)
	}

	var resultJSON sql.NullString
	var success sql.NullBool
	var errorStr sql.NullString
	if task.Result != nil {
		if resultJSON, err = marshalNullable(task.Result); err != nil {
			return fmt.Errorf("failed to marshal task result: %w", err)
		}
		success = sql.NullBool{Bool: task.Result.Success, Valid: true}
		errorStr = sql.NullString{String: task.Result.Error, Valid: task.Result.Error != ""}
	}

	var completedAt sql.NullTime
	if task.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *task.CompletedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_history (
			task_id, title, agent_type, assigned_agent_id, status, priority, parent_task_id,
			context, result, success, error, created_at, updated_at, completed_at, revision
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			assigned_agent_id = excluded.assigned_agent_id,
			status = excluded.status,
			result = excluded.result,
			success = excluded.success,
			error = excluded.error,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at,
			revision = excluded.revision
		WHERE excluded.revision >= task_history.revision`,
		task.ID,
		task.Title,
		task.AgentType,
		sql.NullString{String: task.AssignedAgentID, Valid: task.AssignedAgentID != ""},
		task.Status,
		task.Priority,
		sql.NullString{String: task.ParentTaskID, Valid: task.ParentTaskID != ""},
		contextJSON,
		resultJSON,
		success,
		errorStr,
		task.CreatedAt,
		task.UpdatedAt,
		completedAt,
		task.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store task history: %w", err)
	}
	return nil
}

func marshalNullable(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// Observe stores task snapshots handed out by the orchestrator. Failures are
// logged; history never blocks task processing.
func (s *SQLiteTaskHistory) Observe(task *model.Task) {
	ctx, cancel := context.WithTimeout(context.Background(), observeTimeout)
	defer cancel()

	if err := s.Save(ctx, task); err != nil {
		s.logger.Error("Failed to record task",
			zap.String("task_id", task.ID),
			zap.String("status", string(task.Status)),
			zap.Error(err))
	}
}

const selectColumns = `task_id, title, agent_type, assigned_agent_id, status, priority, parent_task_id,
	context, result, success, error, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*TaskRecord, error) {
	record := &TaskRecord{}
	var assigned, parent, contextStr, result, errorStr sql.NullString
	var success sql.NullBool
	var completedAt sql.NullTime

	err := row.Scan(
		&record.TaskID,
		&record.Title,
		&record.AgentType,
		&assigned,
		&record.Status,
		&record.Priority,
		&parent,
		&contextStr,
		&result,
		&success,
		&errorStr,
		&record.CreatedAt,
		&record.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	record.AssignedAgentID = assigned.String
	record.ParentTaskID = parent.String
	record.Error = errorStr.String
	if contextStr.Valid && contextStr.String != "" {
		record.Context = json.RawMessage(contextStr.String)
	}
	if result.Valid && result.String != "" {
		record.Result = json.RawMessage(result.String)
	}
	if success.Valid {
		record.Success = &success.Bool
	}
	if completedAt.Valid {
		record.CompletedAt = &completedAt.Time
	}
	return record, nil
}

// Get implements TaskHistoryStorage.Get
func (s *SQLiteTaskHistory) Get(ctx context.Context, taskID string) (*TaskRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM task_history WHERE task_id = ?", taskID)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to scan task history: %w", err)
	}
	return record, nil
}

func whereClause(filters HistoryFilters) (string, []any) {
	var conds []string
	var args []any

	if filters.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filters.Status)
	}
	if filters.AgentType != "" {
		conds = append(conds, "agent_type = ?")
		args = append(args, filters.AgentType)
	}
	if filters.ParentTaskID != "" {
		conds = append(conds, "parent_task_id = ?")
		args = append(args, filters.ParentTaskID)
	}
	if !filters.Since.IsZero() {
		conds = append(conds, "revision >= ?")
		args = append(args, filters.Since.UnixNano())
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List implements TaskHistoryStorage.List
func (s *SQLiteTaskHistory) List(ctx context.Context, filters HistoryFilters, offset, limit int) ([]*TaskRecord, error) {
	where, args := whereClause(filters)
	if limit <= 0 {
		limit = -1
	}
	query := "SELECT " + selectColumns + " FROM task_history" + where + " ORDER BY revision DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list task history: %w", err)
	}
	defer rows.Close()

	records := make([]*TaskRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task history: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Count implements TaskHistoryStorage.Count
func (s *SQLiteTaskHistory) Count(ctx context.Context, filters HistoryFilters) (int, error) {
	where, args := whereClause(filters)

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM task_history"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count task history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements TaskHistoryStorage.DeleteBefore
func (s *SQLiteTaskHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM task_history WHERE revision < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete task history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old task history records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Close closes the database connection
func (s *SQLiteTaskHistory) Close() error {
	return s.db.Close()
}
