// Package metrics exposes the farm's Prometheus instrumentation.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/polyforge/printfarm-go/internal/application/fleet"
	"github.com/polyforge/printfarm-go/internal/domain/scheduling"
)

const (
	// Namespace for all metrics
	namespace = "printfarm"
	// Subsystem for daemon metrics
	subsystem = "daemon"
)

// FarmMetricsCollector handles fleet, task and scheduler metrics
type FarmMetricsCollector struct {
	printersReady     prometheus.Gauge
	queueDepth        *prometheus.GaugeVec
	pendingChanges    prometheus.Gauge
	jobsAwaitingConf  prometheus.Gauge
	tasksTotal        *prometheus.CounterVec
	schedulesTotal    *prometheus.CounterVec
	solveDuration     prometheus.Histogram
	scheduleMakespanS prometheus.Gauge
}

// NewFarmMetricsCollector creates the collector with all metric families
func NewFarmMetricsCollector() *FarmMetricsCollector {
	return &FarmMetricsCollector{
		printersReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "printers_ready",
			Help:      "Number of printers currently ready to accept work",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "controller_queue_depth",
			Help:      "Queued device tasks per printer",
		}, []string{"printer"}),
		pendingChanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_filament_changes",
			Help:      "Filament changes waiting for operator confirmation",
		}),
		jobsAwaitingConf: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "print_jobs_awaiting_confirmation",
			Help:      "Finished print jobs waiting for the outcome verdict",
		}),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "device_tasks_total",
			Help:      "Terminal device tasks by kind and outcome",
		}, []string{"kind", "outcome"}),
		schedulesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "schedules_total",
			Help:      "Optimizer runs by solver status",
		}, []string{"status"}),
		solveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "solve_duration_seconds",
			Help:      "Optimizer solve duration distribution",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0},
		}),
		scheduleMakespanS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "schedule_makespan_seconds",
			Help:      "Makespan of the most recent OPTIMAL schedule",
		}),
	}
}

// Register registers all metric families with the given registerer
func (c *FarmMetricsCollector) Register(reg prometheus.Registerer) error {
	for _, m := range []prometheus.Collector{
		c.printersReady,
		c.queueDepth,
		c.pendingChanges,
		c.jobsAwaitingConf,
		c.tasksTotal,
		c.schedulesTotal,
		c.solveDuration,
		c.scheduleMakespanS,
	} {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// ObserveSolve implements the scheduler's solve observer hook
func (c *FarmMetricsCollector) ObserveSolve(status scheduling.SolverStatus, elapsed time.Duration) {
	c.schedulesTotal.WithLabelValues(string(status)).Inc()
	c.solveDuration.Observe(elapsed.Seconds())
}

// SetMakespan records the latest optimal makespan
func (c *FarmMetricsCollector) SetMakespan(seconds int64) {
	c.scheduleMakespanS.Set(float64(seconds))
}

// RecordTaskOutcome counts one terminal device task
func (c *FarmMetricsCollector) RecordTaskOutcome(kind, outcome string) {
	c.tasksTotal.WithLabelValues(kind, outcome).Inc()
}

// UpdateFleetGauges refreshes the point-in-time gauges from the fleet
func (c *FarmMetricsCollector) UpdateFleetGauges(fl *fleet.Fleet) {
	ready := 0
	for _, ctrl := range fl.Controllers() {
		if ctrl.PrinterReady() {
			ready++
		}
		c.queueDepth.WithLabelValues(ctrl.Printer().Name).Set(float64(len(ctrl.QueueSnapshot())))
	}
	c.printersReady.Set(float64(ready))
	c.pendingChanges.Set(float64(len(fl.PendingChanges())))
	c.jobsAwaitingConf.Set(float64(len(fl.JobsAwaitingConfirmation())))
}

// RunGaugeRefresher periodically refreshes the fleet gauges until cancelled
func (c *FarmMetricsCollector) RunGaugeRefresher(ctx context.Context, fl *fleet.Fleet, period time.Duration) {
	if period == 0 {
		period = 5 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.UpdateFleetGauges(fl)
		}
	}
}
