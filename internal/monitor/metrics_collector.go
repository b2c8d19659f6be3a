// Package monitor reports orchestrator health: periodic stats snapshots and
// alerts on failed, unsuccessful or stuck tasks.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/a2a-travel/internal/orchestrator"
)

const (
	metricsStream  = "METRICS"
	MetricsSubject = "metrics.orchestrator"
)

// StatsSource provides orchestrator statistics
type StatsSource interface {
	Stats() orchestrator.Stats
}

// Snapshot is one collection of orchestrator and host metrics
type Snapshot struct {
	Timestamp    time.Time          `json:"timestamp"`
	CPUUsage     float64            `json:"cpu_usage"`
	MemoryUsage  float64            `json:"memory_usage"`
	Orchestrator orchestrator.Stats `json:"orchestrator"`
}

// MetricsCollector collects orchestrator and system metrics
type MetricsCollector struct {
	logger   *zap.Logger
	source   StatsSource
	js       nats.JetStreamContext
	interval time.Duration

	mu     sync.RWMutex
	latest *Snapshot

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMetricsCollector creates a new metrics collector. js may be nil, in which
// case snapshots are only logged.
func NewMetricsCollector(source StatsSource, js nats.JetStreamContext, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger.Named("metrics-collector"),
		source:   source,
		js:       js,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start starts the metrics collector
func (c *MetricsCollector) Start(ctx context.Context) error {
	c.logger.Info("Starting metrics collector", zap.Duration("interval", c.interval))

	if c.js != nil {
		if err := ensureStream(c.js, metricsStream, []string{"metrics.>"}, time.Hour); err != nil {
			return err
		}
	}

	go c.collectLoop(ctx)
	return nil
}

// Stop stops the metrics collector
func (c *MetricsCollector) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping metrics collector")
		close(c.stop)
	})
}

// collectLoop runs the metrics collection loop
func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if _, err := c.Collect(ctx); err != nil {
				c.logger.Error("Failed to collect metrics", zap.Error(err))
			}
		}
	}
}

// Collect takes a snapshot, keeps it as the latest and publishes it
func (c *MetricsCollector) Collect(ctx context.Context) (*Snapshot, error) {
	snapshot := &Snapshot{
		Timestamp:    time.Now(),
		Orchestrator: c.source.Stats(),
	}

	// Host metrics are best effort; containers may not expose them
	if cpuPercent, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		c.logger.Debug("Failed to get CPU usage", zap.Error(err))
	} else if len(cpuPercent) > 0 {
		snapshot.CPUUsage = cpuPercent[0]
	}
	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		c.logger.Debug("Failed to get memory usage", zap.Error(err))
	} else {
		snapshot.MemoryUsage = memInfo.UsedPercent
	}

	c.mu.Lock()
	c.latest = snapshot
	c.mu.Unlock()

	stats := snapshot.Orchestrator
	c.logger.Info("Metrics collected",
		zap.Int("agents", stats.Agents),
		zap.Int("tasks", stats.Tasks),
		zap.Any("tasks_by_status", stats.TasksByStatus),
		zap.Float64("cpu_usage", snapshot.CPUUsage),
		zap.Float64("memory_usage", snapshot.MemoryUsage))

	if c.js == nil {
		return snapshot, nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return snapshot, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	if _, err := c.js.Publish(MetricsSubject, data, nats.Context(ctx)); err != nil {
		return snapshot, fmt.Errorf("failed to publish metrics: %w", err)
	}
	return snapshot, nil
}

// Latest returns the most recent snapshot, or nil before the first collection
func (c *MetricsCollector) Latest() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

func ensureStream(js nats.JetStreamContext, name string, subjects []string, maxAge time.Duration) error {
	_, err := js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: subjects,
		Storage:  nats.MemoryStorage,
		MaxAge:   maxAge,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	return nil
}
