package main

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/t77yq/a2a-travel/internal/agent"
	"github.com/t77yq/a2a-travel/internal/bus"
	"github.com/t77yq/a2a-travel/internal/config"
	"github.com/t77yq/a2a-travel/internal/model"
	"github.com/t77yq/a2a-travel/internal/monitor"
	"github.com/t77yq/a2a-travel/internal/orchestrator"
	"github.com/t77yq/a2a-travel/internal/storage"
	"github.com/t77yq/a2a-travel/internal/travel"
	"github.com/t77yq/a2a-travel/internal/workflow"
)

// app wires the orchestrator, agents and their collaborators from config
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	nc      *nats.Conn
	js      nats.JetStreamContext
	orch    *orchestrator.Orchestrator
	history *storage.SQLiteTaskHistory
	alerts  *monitor.AlertManager
	cache   *travel.Cache
	agents  []interface{ Stop() }
	planner *workflow.Planner
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// newApp builds everything but does not start background work
func newApp(cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	opts := []orchestrator.Option{
		orchestrator.WithStrategy(orchestrator.StrategyByName(cfg.Orchestrator.Selection)),
	}

	if cfg.Transport.Kind == "nats" {
		a.nc, err = bus.Connect(bus.NATSConfig{
			Name:           cfg.App.Name,
			URL:            cfg.NATS.URL,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectTimeout: cfg.NATS.ConnectTimeout,
			ConnectRetries: cfg.NATS.ConnectRetries,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.js, err = a.nc.JetStream()
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		transport, err := bus.NewNATSTransport(a.js, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, orchestrator.WithTransport(transport))
	}

	if cfg.History.Enabled {
		a.history, err = storage.NewSQLiteTaskHistory(logger, cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create task history storage: %w", err)
		}
		opts = append(opts, orchestrator.WithObserver(a.history.Observe))
	}
	if cfg.Alerts.Enabled {
		a.alerts = monitor.NewAlertManager(monitor.TaskListerFunc(func(filters orchestrator.TaskFilters) []*model.Task {
			return a.orch.ListTasks(filters)
		}), a.js, cfg.Alerts.Interval, logger)
		if err = addAlertRules(a.alerts, cfg.Alerts); err != nil {
			return nil, err
		}
		opts = append(opts, orchestrator.WithObserver(a.alerts.Observe))
	}

	a.orch = orchestrator.New(logger, opts...)

	a.cache, err = travel.NewCache(cfg.Travel.Cache.MaxCost, cfg.Travel.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}

	var flightAPI travel.FlightSearcher
	if api := cfg.Travel.FlightAPI; api.URL != "" {
		flightAPI = travel.NewFlightAPI(travel.APIConfig{URL: api.URL, APIKey: api.APIKey, Timeout: api.Timeout}, logger)
	}
	var hotelAPI travel.HotelSearcher
	if api := cfg.Travel.HotelAPI; api.URL != "" {
		hotelAPI = travel.NewHotelAPI(travel.APIConfig{URL: api.URL, APIKey: api.APIKey, Timeout: api.Timeout}, logger)
	}

	table := travel.NewAdvisoryTable()
	flights := travel.NewFlightService(flightAPI, travel.FlightGenerator{}, a.cache, logger)
	hotels := travel.NewHotelService(hotelAPI, travel.NewHotelCatalog(), a.cache, logger)

	safetyAgent := agent.NewTravelSafetyAgent(table, logger)
	flightAgent := agent.NewFlightBookingAgent(flights, table, logger)
	hotelAgent := agent.NewAccommodationAgent(hotels, table, logger)
	for _, ag := range []interface {
		orchestrator.Agent
		Stop()
	}{safetyAgent, flightAgent, hotelAgent} {
		if err = a.orch.RegisterAgent(ag); err != nil {
			return nil, err
		}
		a.agents = append(a.agents, ag)
	}

	a.planner = workflow.NewPlanner(a.orch, cfg.Workflow.StageTimeout, logger)
	return a, nil
}

func addAlertRules(alerts *monitor.AlertManager, cfg config.AlertsConfig) error {
	rules := []*monitor.AlertRule{
		{Name: "Task failed", Type: monitor.AlertTypeTaskFailure, Severity: monitor.AlertSeverityCritical},
		{Name: "Task unsuccessful", Type: monitor.AlertTypeUnsuccessful, Severity: monitor.AlertSeverityInfo},
		{Name: "Task stuck", Type: monitor.AlertTypeStuckTask, Severity: monitor.AlertSeverityWarning, Threshold: cfg.StuckAfter},
	}
	for _, rule := range rules {
		if err := alerts.AddRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// Close stops agents and releases connections
func (a *app) Close() error {
	var errs []error
	if a.alerts != nil {
		a.alerts.Stop()
	}
	for _, ag := range a.agents {
		ag.Stop()
	}
	if a.orch != nil {
		errs = append(errs, a.orch.Close())
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.nc != nil {
		errs = append(errs, a.nc.Drain())
	}
	return errors.Join(errs...)
}
