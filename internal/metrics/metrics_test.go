package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	c.MigrationStarted()
	c.MigrationStarted()
	c.MigrationFinished("completed", time.Second)
	c.BatchExecuted(true)
	c.BatchExecuted(false)
	c.RuleEvaluated("passed")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ActiveMigrations))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.MigrationsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BatchesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ValidationRulesTotal.WithLabelValues("passed")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.MigrationDuration))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.MigrationStarted()
	c.MigrationFinished("failed", time.Second)
	c.BatchExecuted(true)
	c.RuleEvaluated("failed")
	assert.Nil(t, c.Registry())
	assert.NoError(t, c.WriteTextfile("unused"))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.RuleEvaluated("warning")

	path := filepath.Join(t.TempDir(), "graftflow.prom")
	require.NoError(t, c.WriteTextfile(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), `graftflow_validation_rules_total{status="warning"} 1`)
}
