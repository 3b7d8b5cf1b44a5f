package migrator

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Rana718/graftflow/internal/database"
	"github.com/Rana718/graftflow/internal/types"
	"golang.org/x/sync/errgroup"
)

const (
	probeTimeout      = 10 * time.Second
	varianceTolerance = 0.1
	maxDeadRatio      = 0.2
)

// probe is one weighted health query. accept judges the first returned
// value; a nil accept passes any query that succeeds.
type probe struct {
	name   string
	weight float64
	query  string
	accept func(v any) bool
}

type checkOutcome struct {
	check    VerificationCheck
	warnings []string
}

// verify runs the four post-migration checks concurrently. Any failing
// check fails the whole verification.
func (o *Orchestrator) verify(ctx context.Context, p *plan, result *MigrationResult) *VerificationSummary {
	checks := []func(context.Context) checkOutcome{
		func(context.Context) checkOutcome { return o.checkOperationCompletion(p, result.OperationsProcessed) },
		func(ctx context.Context) checkOutcome {
			return o.weightedCheck(ctx, "data_integrity", p.target, integrityProbes(p.target.Provider))
		},
		func(ctx context.Context) checkOutcome { return o.checkSchemaConsistency(ctx, p) },
		func(ctx context.Context) checkOutcome {
			return o.weightedCheck(ctx, "corruption", p.target, corruptionProbes(p.target.Provider))
		},
	}

	outcomes := make([]checkOutcome, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		i, check := i, check
		g.Go(func() error {
			outcomes[i] = check(gctx)
			return nil
		})
	}
	_ = g.Wait()

	summary := &VerificationSummary{Passed: true}
	for _, out := range outcomes {
		summary.Checks = append(summary.Checks, out.check)
		result.Warnings = append(result.Warnings, out.warnings...)
		if !out.check.Passed {
			summary.Passed = false
		}
		o.logger.Debug("verification check", "check", out.check.Name, "passed", out.check.Passed, "message", out.check.Message)
	}
	return summary
}

// checkOperationCompletion fails only when nothing ran although there was
// work. The variance against the expected count is advisory.
func (o *Orchestrator) checkOperationCompletion(p *plan, processed int) checkOutcome {
	expected := len(p.operations)
	check := VerificationCheck{
		Name:    "operation_completion",
		Passed:  true,
		Details: map[string]any{"processed": processed, "expected": expected},
	}
	if expected > 0 && processed == 0 {
		check.Passed = false
		check.Message = fmt.Sprintf("no operations were processed out of %d expected", expected)
		return checkOutcome{check: check}
	}

	check.Message = fmt.Sprintf("%d operations processed", processed)
	var warnings []string
	if expected > 0 {
		variance := math.Abs(float64(processed-expected)) / float64(expected)
		check.Details["variance"] = variance
		if variance > varianceTolerance {
			warnings = append(warnings, fmt.Sprintf("Processed %d operations but expected about %d", processed, expected))
		}
	}
	return checkOutcome{check: check, warnings: warnings}
}

func (o *Orchestrator) checkSchemaConsistency(ctx context.Context, p *plan) checkOutcome {
	check := VerificationCheck{Name: "schema_consistency"}
	diff, err := o.comparer.Compare(ctx, p.source, p.target, p.mode)
	if err != nil {
		check.Message = fmt.Sprintf("failed to compare schemas: %v", err)
		return checkOutcome{check: check}
	}

	var missing []string
	for _, t := range diff.NewTables {
		missing = append(missing, t.Name)
	}
	check.Details = map[string]any{
		"missingTables":  missing,
		"modifiedTables": len(diff.ModifiedTables),
		"extraTables":    len(diff.DroppedTables),
	}
	if len(missing) > 0 {
		check.Message = "tables missing from target: " + strings.Join(missing, ", ")
		return checkOutcome{check: check}
	}

	check.Passed = true
	check.Message = "target contains every source table"
	var warnings []string
	if len(diff.ModifiedTables) > 0 || len(diff.DroppedTables) > 0 {
		warnings = append(warnings, fmt.Sprintf("Target still differs from source: %d modified, %d extra tables",
			len(diff.ModifiedTables), len(diff.DroppedTables)))
	}
	return checkOutcome{check: check, warnings: warnings}
}

// weightedCheck runs probes one after another and passes when the weight of
// the healthy ones reaches the integrity threshold.
func (o *Orchestrator) weightedCheck(ctx context.Context, name string, conn types.ConnectionDescriptor, probes []probe) checkOutcome {
	var total, healthy float64
	results := make(map[string]any, len(probes))

	for _, pr := range probes {
		total += pr.weight
		ok, detail := o.runProbe(ctx, conn, pr)
		results[pr.name] = detail
		if ok {
			healthy += pr.weight
		}
	}

	score := 0.0
	if total > 0 {
		score = healthy / total
	}
	check := VerificationCheck{
		Name:    name,
		Score:   score,
		Passed:  score >= o.engine.IntegrityThreshold,
		Message: fmt.Sprintf("score %.2f (threshold %.2f)", score, o.engine.IntegrityThreshold),
		Details: results,
	}
	return checkOutcome{check: check}
}

func (o *Orchestrator) runProbe(ctx context.Context, conn types.ConnectionDescriptor, pr probe) (bool, string) {
	res, err := o.exec.ExecuteQuery(ctx, conn, pr.query, types.QueryOptions{MaxRows: 1, Timeout: probeTimeout})
	if err != nil {
		return false, "error: " + err.Error()
	}
	if pr.accept == nil {
		return true, "ok"
	}
	v, _ := res.FirstValue()
	if pr.accept(v) {
		return true, fmt.Sprintf("ok (%v)", v)
	}
	return false, fmt.Sprintf("unexpected value %v", v)
}

func isZero(v any) bool {
	f, ok := asFloat(v)
	return ok && f == 0
}

func isOK(v any) bool {
	return strings.EqualFold(strings.TrimSpace(fmt.Sprint(v)), "ok")
}

func atMost(limit float64) func(any) bool {
	return func(v any) bool {
		if v == nil {
			return true
		}
		f, ok := asFloat(v)
		return ok && f <= limit
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func integrityProbes(provider string) []probe {
	switch database.NormalizeProvider(provider) {
	case "sqlite":
		return []probe{
			{"connectivity", 0.25, "SELECT 1", nil},
			{"schema_objects", 0.15, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'", nil},
			{"foreign_keys", 0.2, "SELECT COUNT(*) FROM pragma_foreign_key_check", isZero},
			{"constraints", 0.15, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'sqlite_autoindex_%'", nil},
			{"index_consistency", 0.1, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'index'", nil},
			{"data_consistency", 0.15, "SELECT * FROM pragma_quick_check", isOK},
		}
	case "mysql":
		return []probe{
			{"connectivity", 0.25, "SELECT 1", nil},
			{"schema_objects", 0.15, "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE()", nil},
			{"foreign_keys", 0.2, "SELECT COUNT(*) FROM information_schema.referential_constraints WHERE constraint_schema = DATABASE()", nil},
			{"constraints", 0.15, "SELECT COUNT(*) FROM information_schema.table_constraints WHERE table_schema = DATABASE()", nil},
			{"index_consistency", 0.1, "SELECT COUNT(*) FROM information_schema.statistics WHERE table_schema = DATABASE()", nil},
			{"data_consistency", 0.15, "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_rows IS NOT NULL", nil},
		}
	default:
		return []probe{
			{"connectivity", 0.25, "SELECT 1", nil},
			{"schema_objects", 0.15, "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema()", nil},
			{"foreign_keys", 0.2, "SELECT COUNT(*) FROM pg_constraint WHERE contype = 'f' AND NOT convalidated", isZero},
			{"constraints", 0.15, "SELECT COUNT(*) FROM pg_constraint WHERE NOT convalidated", isZero},
			{"index_consistency", 0.1, "SELECT COUNT(*) FROM pg_index WHERE NOT indisvalid OR NOT indisready", isZero},
			{"data_consistency", 0.15, "SELECT COUNT(*) FROM pg_stat_user_tables", nil},
		}
	}
}

func corruptionProbes(provider string) []probe {
	switch database.NormalizeProvider(provider) {
	case "sqlite":
		return []probe{
			{"table_existence", 0.25, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'", nil},
			{"column_existence", 0.2, "SELECT COUNT(*) FROM sqlite_master AS m JOIN pragma_table_info(m.name) AS p WHERE m.type = 'table'", nil},
			{"view_existence", 0.1, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'view'", nil},
			{"dead_space_ratio", 0.15, "SELECT CAST(f.freelist_count AS REAL) / NULLIF(c.page_count, 0) FROM pragma_freelist_count AS f, pragma_page_count AS c", atMost(maxDeadRatio)},
			{"referential_integrity", 0.3, "SELECT COUNT(*) FROM pragma_foreign_key_check", isZero},
		}
	case "mysql":
		return []probe{
			{"table_existence", 0.25, "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE()", nil},
			{"column_existence", 0.2, "SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = DATABASE()", nil},
			{"view_existence", 0.1, "SELECT COUNT(*) FROM information_schema.views WHERE table_schema = DATABASE()", nil},
			{"dead_space_ratio", 0.15, "SELECT COALESCE(SUM(data_free) / NULLIF(SUM(data_length + index_length + data_free), 0), 0) FROM information_schema.tables WHERE table_schema = DATABASE()", atMost(maxDeadRatio)},
			{"referential_integrity", 0.3, "SELECT COUNT(*) FROM information_schema.referential_constraints WHERE constraint_schema = DATABASE()", nil},
		}
	default:
		return []probe{
			{"table_existence", 0.25, "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema()", nil},
			{"column_existence", 0.2, "SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = current_schema()", nil},
			{"view_existence", 0.1, "SELECT COUNT(*) FROM information_schema.views WHERE table_schema = current_schema()", nil},
			{"dead_tuple_ratio", 0.15, "SELECT COALESCE(SUM(n_dead_tup)::float / NULLIF(SUM(n_live_tup + n_dead_tup), 0), 0) FROM pg_stat_user_tables", atMost(maxDeadRatio)},
			{"referential_integrity", 0.3, "SELECT COUNT(*) FROM pg_constraint WHERE contype = 'f' AND NOT convalidated", isZero},
		}
	}
}
