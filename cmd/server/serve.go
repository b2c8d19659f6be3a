package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/config"
	"github.com/t77yq/a2a-travel/internal/monitor"
	"github.com/t77yq/a2a-travel/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator, agents and scheduled travel plans",
	Long: `Start the orchestrator with all travel agents registered, run the travel
plans listed under "schedules" on their cron expressions and report metrics
and alerts until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Shutdown finished with errors", zap.Error(err))
		}
	}()

	if a.alerts != nil {
		if err := a.alerts.Start(ctx); err != nil {
			return err
		}
	}

	collector := monitor.NewMetricsCollector(a.orch, nil, cfg.Monitor.Interval, logger)
	if cfg.Monitor.Publish {
		collector = monitor.NewMetricsCollector(a.orch, a.js, cfg.Monitor.Interval, logger)
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop()

	scheduler := workflow.NewScheduler(a.planner, func(schedule workflow.Schedule, plan *workflow.Plan) {
		logger.Info("Scheduled plan finished",
			zap.String("schedule", schedule.Name),
			zap.String("workflow_id", plan.WorkflowID),
			zap.Int("tasks", len(plan.Tasks)),
			zap.Strings("warnings", plan.Warnings))
	}, logger)
	for i := range cfg.Schedules {
		if err := scheduler.AddSchedule(&cfg.Schedules[i]); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	if a.history != nil {
		go retainHistory(ctx, a, cfg.History.Retention, logger)
	}

	logger.Info("Server started",
		zap.String("transport", cfg.Transport.Kind),
		zap.Int("agents", len(a.orch.GetAgents())),
		zap.Int("schedules", len(cfg.Schedules)))

	<-ctx.Done()
	logger.Info("Server shutting down gracefully")
	return nil
}

// retainHistory deletes task history older than retention once a day
func retainHistory(ctx context.Context, a *app, retention time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := a.history.DeleteBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error("Failed to cleanup old task history", zap.Error(err))
				continue
			}
			logger.Info("Task history cleaned up", zap.Int64("deleted", deleted))
		}
	}
}
