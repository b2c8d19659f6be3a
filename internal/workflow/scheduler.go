package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Schedule runs a travel plan on a cron expression
type Schedule struct {
	ID             string      `json:"id"`
	Name           string      `json:"name" mapstructure:"name"`
	Expression     string      `json:"expression" mapstructure:"expression"`
	Request        PlanRequest `json:"request" mapstructure:"request"`
	CreatedAt      time.Time   `json:"createdAt"`
	LastRunTime    *time.Time  `json:"lastRunTime,omitempty"`
	NextRunTime    *time.Time  `json:"nextRunTime,omitempty"`
	LastWorkflowID string      `json:"lastWorkflowId,omitempty"`
	LastWarnings   []string    `json:"lastWarnings,omitempty"`
}

// PlanFunc receives every plan produced by a schedule
type PlanFunc func(schedule Schedule, plan *Plan)

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// parser accepts five field expressions, an optional leading seconds field and
// descriptors such as @hourly or @every 1h
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs plans on cron schedules
type Scheduler struct {
	logger  *zap.Logger
	planner *Planner
	cron    *cron.Cron
	onPlan  PlanFunc
	timeout time.Duration

	mu        sync.RWMutex
	schedules map[string]*Schedule
	entryIDs  map[string]cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. onPlan may be nil.
func NewScheduler(planner *Planner, onPlan PlanFunc, logger *zap.Logger) *Scheduler {
	cl := &cronLogger{logger: logger.Named("cron")}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		logger:  logger.Named("plan-scheduler"),
		planner: planner,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		onPlan:    onPlan,
		timeout:   4 * planner.stageTimeout,
		schedules: make(map[string]*Schedule),
		entryIDs:  make(map[string]cron.EntryID),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts running schedules
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop stops the scheduler and waits for running plans
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// AddSchedule validates and registers a schedule
func (s *Scheduler) AddSchedule(schedule *Schedule) error {
	if err := schedule.Request.Validate(); err != nil {
		return fmt.Errorf("invalid schedule request: %w", err)
	}
	spec, err := parser.Parse(schedule.Expression)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now()
	}
	next := spec.Next(time.Now())
	schedule.NextRunTime = &next

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[schedule.ID]; exists {
		return fmt.Errorf("schedule already exists: %s", schedule.ID)
	}

	entryID, err := s.cron.AddJob(schedule.Expression, &planJob{scheduler: s, scheduleID: schedule.ID})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.schedules[schedule.ID] = schedule
	s.entryIDs[schedule.ID] = entryID

	s.logger.Info("Added schedule",
		zap.String("id", schedule.ID),
		zap.String("name", schedule.Name),
		zap.String("expression", schedule.Expression),
		zap.Time("next_run", next))
	return nil
}

// RemoveSchedule removes a schedule
func (s *Scheduler) RemoveSchedule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entryIDs[id]
	if !ok {
		return fmt.Errorf("schedule not found: %s", id)
	}
	s.cron.Remove(entryID)
	delete(s.entryIDs, id)
	delete(s.schedules, id)

	s.logger.Info("Removed schedule", zap.String("id", id))
	return nil
}

// GetSchedule returns a copy of a schedule
func (s *Scheduler) GetSchedule(id string) (Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.schedules[id]
	if !ok {
		return Schedule{}, fmt.Errorf("schedule not found: %s", id)
	}
	return *schedule, nil
}

// ListSchedules returns copies of all schedules ordered by name
func (s *Scheduler) ListSchedules() []Schedule {
	s.mu.RLock()
	schedules := make([]Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		schedules = append(schedules, *schedule)
	}
	s.mu.RUnlock()

	sort.Slice(schedules, func(i, j int) bool { return schedules[i].Name < schedules[j].Name })
	return schedules
}

// RunNow executes a schedule immediately, outside its cron timing
func (s *Scheduler) RunNow(id string) (*Plan, error) {
	s.mu.RLock()
	schedule, ok := s.schedules[id]
	var req PlanRequest
	if ok {
		req = schedule.Request
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("schedule not found: %s", id)
	}
	return s.run(id, req)
}

func (s *Scheduler) run(id string, req PlanRequest) (*Plan, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	now := time.Now()
	plan, err := s.planner.Plan(ctx, req)

	s.mu.Lock()
	schedule, ok := s.schedules[id]
	if ok {
		schedule.LastRunTime = &now
		if spec, perr := parser.Parse(schedule.Expression); perr == nil {
			next := spec.Next(now)
			schedule.NextRunTime = &next
		}
		if plan != nil {
			schedule.LastWorkflowID = plan.WorkflowID
			schedule.LastWarnings = plan.Warnings
		}
	}
	var snapshot Schedule
	if ok {
		snapshot = *schedule
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled plan failed",
			zap.String("id", id),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Executed schedule",
		zap.String("id", id),
		zap.String("name", snapshot.Name),
		zap.String("workflow_id", plan.WorkflowID),
		zap.Time("executed_at", now))

	if s.onPlan != nil && ok {
		s.onPlan(snapshot, plan)
	}
	return plan, nil
}

// planJob implements cron.Job
type planJob struct {
	scheduler  *Scheduler
	scheduleID string
}

// Run implements cron.Job
func (j *planJob) Run() {
	// failures are logged by run
	_, _ = j.scheduler.RunNow(j.scheduleID)
}
