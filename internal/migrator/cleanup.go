package migrator

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/Rana718/graftflow/internal/database"
	"github.com/Rana718/graftflow/internal/types"
)

type cleanupFunc func(ctx context.Context, r *run, p *plan, result *MigrationResult) (string, error)

// cleanup runs every step even when earlier ones fail. Failures are logged
// and counted in the metadata; they never fail the migration.
func (o *Orchestrator) cleanup(ctx context.Context, r *run, p *plan, result *MigrationResult) {
	steps := []struct {
		name string
		fn   cleanupFunc
	}{
		{"drop_temporary_objects", o.dropTemporaryObjects},
		{"update_metadata", o.updateMetadata},
		{"archive_progress", o.archiveProgress},
		{"release_resources", o.releaseResources},
	}

	summary := &CleanupSummary{}
	for _, step := range steps {
		msg, err := step.fn(ctx, r, p, result)
		if err != nil {
			summary.Failed++
			summary.Steps = append(summary.Steps, CleanupStep{Name: step.name, Message: err.Error()})
			o.logger.Warn("cleanup step failed", "id", r.id, "step", step.name, "error", err)
			continue
		}
		summary.Steps = append(summary.Steps, CleanupStep{Name: step.name, Success: true, Message: msg})
	}
	result.Metadata.Cleanup = summary
	o.logLine(r, result, fmt.Sprintf("Cleanup finished: %d of %d steps succeeded", len(steps)-summary.Failed, len(steps)))
}

// dropTemporaryObjects drops tables on the target whose name carries the
// temporary object prefix.
func (o *Orchestrator) dropTemporaryObjects(ctx context.Context, r *run, p *plan, result *MigrationResult) (string, error) {
	adapter, err := database.NewAdapter(p.target.Provider)
	if err != nil {
		return "", err
	}
	query, args, err := tempTablesQuery(adapter.Builder(), database.NormalizeProvider(p.target.Provider), o.engine.TempObjectPrefix).ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build temporary object query: %w", err)
	}

	res, err := o.exec.ExecuteQuery(ctx, p.target, query, types.QueryOptions{Timeout: probeTimeout}, args...)
	if err != nil {
		return "", fmt.Errorf("failed to list temporary objects: %w", err)
	}

	var drops []string
	for _, row := range res.Rows {
		if len(res.Columns) == 0 {
			break
		}
		name := fmt.Sprint(row[res.Columns[0]])
		// LIKE treats "_" as a wildcard
		if strings.HasPrefix(name, o.engine.TempObjectPrefix) {
			drops = append(drops, adapter.GenerateDropTableSQL(name))
		}
	}
	if len(drops) == 0 {
		return "no temporary objects", nil
	}

	execRes, err := o.exec.ExecuteScript(ctx, p.target, strings.Join(drops, "\n"), types.ExecOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to drop temporary objects: %w", err)
	}
	return fmt.Sprintf("dropped %d temporary objects", execRes.StatementsExecuted), nil
}

func tempTablesQuery(qb squirrel.StatementBuilderType, provider, prefix string) squirrel.SelectBuilder {
	switch provider {
	case "sqlite":
		return qb.Select("name").From("sqlite_master").
			Where(squirrel.Eq{"type": "table"}).Where(squirrel.Like{"name": prefix + "%"})
	case "mysql":
		return qb.Select("table_name").From("information_schema.tables").
			Where(squirrel.Expr("table_schema = DATABASE()")).Where(squirrel.Like{"table_name": prefix + "%"})
	default:
		return qb.Select("table_name").From("information_schema.tables").
			Where(squirrel.Expr("table_schema = current_schema()")).Where(squirrel.Like{"table_name": prefix + "%"})
	}
}

// updateMetadata records timing, efficiency and a quality score derived
// from verification, plus a snapshot of the host.
func (o *Orchestrator) updateMetadata(ctx context.Context, r *run, p *plan, result *MigrationResult) (string, error) {
	elapsed := o.now().Sub(r.startedAt)
	md := &result.Metadata
	if md.Metrics == nil {
		md.Metrics = make(map[string]any)
	}

	md.Metrics["durationMs"] = elapsed.Milliseconds()
	md.Metrics["operationsProcessed"] = result.OperationsProcessed
	if secs := elapsed.Seconds(); secs > 0 {
		md.Metrics["operationsPerSecond"] = float64(result.OperationsProcessed) / secs
	}
	if len(p.operations) > 0 {
		md.Metrics["efficiency"] = float64(result.OperationsProcessed) / float64(len(p.operations))
	}
	md.Metrics["qualityScore"] = qualityScore(md.Verification)

	host, _ := os.Hostname()
	md.Metrics["environment"] = map[string]any{
		"goVersion": runtime.Version(),
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
		"hostname":  host,
	}
	return "metadata updated", nil
}

// qualityScore averages the verification checks: weighted checks contribute
// their score, the others 1 or 0.
func qualityScore(v *VerificationSummary) float64 {
	if v == nil || len(v.Checks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range v.Checks {
		switch {
		case c.Score > 0:
			sum += c.Score
		case c.Passed:
			sum++
		}
	}
	return sum / float64(len(v.Checks))
}

// archiveProgress copies the execution log length into the metadata and
// drops the nested validation and batch records; the migration record
// itself lives on for its grace period. Scripts never touch disk, so there
// are no temporary files to forget here.
func (o *Orchestrator) archiveProgress(ctx context.Context, r *run, p *plan, result *MigrationResult) (string, error) {
	rec, ok := o.tracker.GetProgress(r.id)
	if !ok {
		return "", fmt.Errorf("progress record for %s not found", r.id)
	}
	if rec.Migration != nil {
		if result.Metadata.Metrics == nil {
			result.Metadata.Metrics = make(map[string]any)
		}
		result.Metadata.Metrics["progressLogEntries"] = len(rec.Migration.ExecutionLog)
	}
	o.tracker.Purge(r.id + ":validation")
	o.tracker.Purge(r.id + ":batch")
	return "progress archived", nil
}

func (o *Orchestrator) releaseResources(ctx context.Context, r *run, p *plan, result *MigrationResult) (string, error) {
	var failed []string
	for _, id := range []string{p.source.ID, p.target.ID} {
		if err := o.exec.Release(ctx, id); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", id, err))
		}
	}
	if len(failed) > 0 {
		return "", fmt.Errorf("failed to release connections: %s", strings.Join(failed, "; "))
	}
	return "connections released", nil
}
