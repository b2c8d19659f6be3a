// Package workflow sequences agent tasks into a travel plan: a safety check,
// then flight and hotel searches, each stage waiting for the previous one to
// finish.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/t77yq/a2a-travel/internal/model"
	"github.com/t77yq/a2a-travel/internal/orchestrator"
)

const defaultStageTimeout = 30 * time.Second

// TaskRunner is the part of the orchestrator a workflow needs
type TaskRunner interface {
	CreateTask(req orchestrator.TaskRequest) *model.Task
	WaitForTask(ctx context.Context, taskID string) (*model.Task, error)
	GetTask(id string) (*model.Task, error)
	Children(parentID string) []*model.Task
}

// PlanRequest describes a trip to plan
type PlanRequest struct {
	Origin          string  `json:"origin" mapstructure:"origin"`
	Destination     string  `json:"destination" mapstructure:"destination"`
	DepartureDate   string  `json:"departureDate" mapstructure:"departure_date"`
	ReturnDate      string  `json:"returnDate,omitempty" mapstructure:"return_date"`
	Guests          int     `json:"guests" mapstructure:"guests"`
	MaxPrice        float64 `json:"maxPrice,omitempty" mapstructure:"max_price"`
	SkipSafetyCheck bool    `json:"skipSafetyCheck,omitempty" mapstructure:"skip_safety_check"`
}

// Validate checks the fields every plan needs
func (r PlanRequest) Validate() error {
	switch {
	case r.Origin == "":
		return errors.New("origin is required")
	case r.Destination == "":
		return errors.New("destination is required")
	case r.DepartureDate == "":
		return errors.New("departure date is required")
	}
	return nil
}

// Plan is the outcome of a workflow. Stage fields hold the data of the stage's
// task result and are nil when the stage did not run or did not finish.
type Plan struct {
	WorkflowID   string         `json:"workflowId"`
	Request      PlanRequest    `json:"request"`
	Tasks        []*model.Task  `json:"tasks"`
	Safety       map[string]any `json:"safety"`
	Flights      map[string]any `json:"flights"`
	Hotels       map[string]any `json:"hotels"`
	Alternatives map[string]any `json:"alternatives,omitempty"`
	Warnings     []string       `json:"warnings"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
}

// Planner runs travel plan workflows against an orchestrator
type Planner struct {
	logger       *zap.Logger
	runner       TaskRunner
	stageTimeout time.Duration
}

// NewPlanner creates a planner. stageTimeout bounds the wait for each task.
func NewPlanner(runner TaskRunner, stageTimeout time.Duration, logger *zap.Logger) *Planner {
	if stageTimeout <= 0 {
		stageTimeout = defaultStageTimeout
	}
	return &Planner{
		logger:       logger.Named("planner"),
		runner:       runner,
		stageTimeout: stageTimeout,
	}
}

// planState collects task ids and warnings from concurrent stages
type planState struct {
	mu       sync.Mutex
	taskIDs  []string
	warnings []string
}

func (s *planState) addTask(id string) {
	s.mu.Lock()
	s.taskIDs = append(s.taskIDs, id)
	s.mu.Unlock()
}

func (s *planState) warn(format string, args ...any) {
	s.mu.Lock()
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
	s.mu.Unlock()
}

// Plan checks the destination, then searches flights and hotels in parallel.
// An unsafe destination ends the plan after the alternatives are in. Stage
// failures and timeouts become warnings; only ctx ending returns an error.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Guests <= 0 {
		req.Guests = 1
	}

	plan := &Plan{
		WorkflowID: uuid.New().String(),
		Request:    req,
		StartedAt:  time.Now(),
	}
	state := &planState{}
	logger := p.logger.With(zap.String("workflow_id", plan.WorkflowID))
	logger.Info("Planning trip",
		zap.String("origin", req.Origin),
		zap.String("destination", req.Destination),
		zap.String("departure_date", req.DepartureDate))

	if !req.SkipSafetyCheck {
		safety, err := p.runStage(ctx, state, orchestrator.TaskRequest{
			Title:       "Check safety of " + req.Destination,
			Description: "Travel advisory check before booking",
			AgentType:   model.AgentTypeTravelSafety,
			Priority:    model.TaskPriorityHigh,
			Context: model.TaskContext{
				"action":      "check_destination_safety",
				"destination": req.Destination,
				"workflowId":  plan.WorkflowID,
			},
		})
		if err != nil {
			return nil, err
		}

		if safety != nil && safety.Result != nil {
			plan.Safety = safety.Result.Data
			if safe, _ := plan.Safety["safe"].(bool); !safe && safety.Result.Success {
				if rec, ok := plan.Safety["recommendation"].(string); ok {
					state.warn("%s", rec)
				}
				plan.Alternatives, err = p.collectAlternatives(ctx, state, safety.ID)
				if err != nil {
					return nil, err
				}
				return p.finish(plan, state, logger), nil
			}
		}
	}

	// agents repeat the destination check only when this workflow could not run it
	skipInline := req.SkipSafetyCheck || plan.Safety != nil

	var flights, hotels *model.Task
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		flights, err = p.runStage(gctx, state, orchestrator.TaskRequest{
			Title:       fmt.Sprintf("Flights %s to %s", req.Origin, req.Destination),
			Description: "Search flights for the trip",
			AgentType:   model.AgentTypeFlightBooking,
			Context: model.TaskContext{
				"action":          "search_flights",
				"departureCity":   req.Origin,
				"arrivalCity":     req.Destination,
				"departureDate":   req.DepartureDate,
				"returnDate":      req.ReturnDate,
				"skipSafetyCheck": skipInline,
				"workflowId":      plan.WorkflowID,
			},
		})
		return err
	})
	g.Go(func() error {
		checkOut := req.ReturnDate
		if checkOut == "" {
			checkOut = nextDay(req.DepartureDate)
		}
		tc := model.TaskContext{
			"action":          "search_hotels",
			"location":        req.Destination,
			"checkIn":         req.DepartureDate,
			"checkOut":        checkOut,
			"guests":          req.Guests,
			"skipSafetyCheck": skipInline,
			"workflowId":      plan.WorkflowID,
		}
		if req.MaxPrice > 0 {
			tc["maxPrice"] = req.MaxPrice
		}

		var err error
		hotels, err = p.runStage(gctx, state, orchestrator.TaskRequest{
			Title:       "Hotels in " + req.Destination,
			Description: "Search accommodation for the trip",
			AgentType:   model.AgentTypeAccommodation,
			Context:     tc,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if flights != nil && flights.Result != nil {
		plan.Flights = flights.Result.Data
	}
	if hotels != nil && hotels.Result != nil {
		plan.Hotels = hotels.Result.Data
	}
	return p.finish(plan, state, logger), nil
}

// runStage creates a task and waits for it. It returns nil without error when
// the task was not assigned, did not finish in time, or did not succeed; the
// reason is recorded as a warning.
func (p *Planner) runStage(ctx context.Context, state *planState, req orchestrator.TaskRequest) (*model.Task, error) {
	task := p.runner.CreateTask(req)
	state.addTask(task.ID)

	if task.Status == model.TaskStatusPending {
		state.warn("no %s agent available for %q", req.AgentType, req.Title)
		return nil, nil
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	done, err := p.runner.WaitForTask(stageCtx, task.ID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		state.warn("%q did not finish within %s", req.Title, p.stageTimeout)
		return nil, nil
	}

	switch {
	case done.Status == model.TaskStatusFailed:
		reason := "unknown error"
		if done.Result != nil && done.Result.Error != "" {
			reason = done.Result.Error
		}
		state.warn("%q failed: %s", req.Title, reason)
	case done.Result != nil && !done.Result.Success:
		state.warn("%q was unsuccessful: %s", req.Title, done.Result.Error)
	case done.Result != nil:
		if w, ok := done.Result.Data["safetyWarning"].(string); ok && w != "" {
			state.warn("%s", w)
		}
	}
	return done, nil
}

// collectAlternatives waits for the alternatives task spawned by the safety check
func (p *Planner) collectAlternatives(ctx context.Context, state *planState, safetyTaskID string) (map[string]any, error) {
	for _, child := range p.runner.Children(safetyTaskID) {
		state.addTask(child.ID)
		if child.Context.Action() != "suggest_safe_alternatives" {
			continue
		}
		if child.Status == model.TaskStatusPending {
			state.warn("no %s agent available for %q", child.AgentType, child.Title)
			continue
		}

		stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
		done, err := p.runner.WaitForTask(stageCtx, child.ID)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			state.warn("%q did not finish within %s", child.Title, p.stageTimeout)
			continue
		}
		if done.Result != nil && done.Result.Success {
			return done.Result.Data, nil
		}
	}
	return nil, nil
}

func (p *Planner) finish(plan *Plan, state *planState, logger *zap.Logger) *Plan {
	state.mu.Lock()
	ids := append([]string(nil), state.taskIDs...)
	plan.Warnings = append([]string{}, state.warnings...)
	state.mu.Unlock()

	plan.Tasks = make([]*model.Task, 0, len(ids))
	for _, id := range ids {
		if task, err := p.runner.GetTask(id); err == nil {
			plan.Tasks = append(plan.Tasks, task)
		}
	}
	plan.FinishedAt = time.Now()

	logger.Info("Trip planned",
		zap.Int("tasks", len(plan.Tasks)),
		zap.Int("warnings", len(plan.Warnings)),
		zap.Duration("duration", plan.FinishedAt.Sub(plan.StartedAt)))
	return plan
}

func nextDay(date string) string {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return day.AddDate(0, 0, 1).Format("2006-01-02")
}
