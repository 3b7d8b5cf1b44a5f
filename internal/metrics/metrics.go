// Package metrics holds the Prometheus collectors shared by the validation
// framework and the migration orchestrator.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "graftflow"

// Collector owns its own registry. All methods are safe on a nil Collector.
type Collector struct {
	registry *prometheus.Registry

	MigrationsTotal      *prometheus.CounterVec
	MigrationDuration    prometheus.Histogram
	ActiveMigrations     prometheus.Gauge
	BatchesTotal         *prometheus.CounterVec
	ValidationRulesTotal *prometheus.CounterVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		MigrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Total number of finished migrations by outcome",
		}, []string{"status"}),
		MigrationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_duration_seconds",
			Help:      "Duration of migrations in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ActiveMigrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_migrations",
			Help:      "Number of migrations currently running",
		}),
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of executed batches by outcome",
		}, []string{"status"}),
		ValidationRulesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_rules_total",
			Help:      "Total number of evaluated validation rules by outcome",
		}, []string{"status"}),
	}

	reg.MustRegister(c.MigrationsTotal, c.MigrationDuration, c.ActiveMigrations, c.BatchesTotal, c.ValidationRulesTotal)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) MigrationStarted() {
	if c == nil {
		return
	}
	c.ActiveMigrations.Inc()
}

// MigrationFinished records a terminal migration with status
// completed, failed or cancelled.
func (c *Collector) MigrationFinished(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.ActiveMigrations.Dec()
	c.MigrationsTotal.WithLabelValues(status).Inc()
	c.MigrationDuration.Observe(d.Seconds())
}

func (c *Collector) BatchExecuted(success bool) {
	if c == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	c.BatchesTotal.WithLabelValues(status).Inc()
}

func (c *Collector) RuleEvaluated(status string) {
	if c == nil {
		return
	}
	c.ValidationRulesTotal.WithLabelValues(status).Inc()
}

// WriteTextfile writes the current values in the node exporter textfile
// format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
