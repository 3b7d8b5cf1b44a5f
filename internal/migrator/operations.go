package migrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/Rana718/graftflow/internal/database/common"
	"github.com/Rana718/graftflow/internal/progress"
	"github.com/Rana718/graftflow/internal/types"
	"golang.org/x/time/rate"
)

// OperationType classifies a parsed statement by its leading keywords.
type OperationType string

const (
	OpCreateTable OperationType = "CREATE_TABLE"
	OpDropTable   OperationType = "DROP_TABLE"
	OpAlterTable  OperationType = "ALTER_TABLE"
	OpCreateIndex OperationType = "CREATE_INDEX"
	OpOther       OperationType = "OTHER"
)

// Operation is one statement of a generated script.
type Operation struct {
	Type      OperationType
	Table     string
	SQL       string
	RiskLevel RiskLevel
}

// connectionMarker is implemented by resolvers that record when a
// connection was last used successfully.
type connectionMarker interface {
	MarkConnected(id string)
}

// plan is everything execution and verification need about one migration.
type plan struct {
	source     types.ConnectionDescriptor
	target     types.ConnectionDescriptor
	mode       types.ComparisonMode
	diff       *types.SchemaDiff
	generated  *GenerateResult
	operations []Operation
}

// GenerateMigration diffs the two connections and renders the script that
// makes the target match the source.
func (o *Orchestrator) GenerateMigration(ctx context.Context, req MigrationRequest) (*GenerateResult, error) {
	p, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.generated, nil
}

func (o *Orchestrator) prepare(ctx context.Context, req MigrationRequest) (*plan, error) {
	source, err := o.descriptor(ctx, req.SourceConnectionID)
	if err != nil {
		return nil, err
	}
	target, err := o.descriptor(ctx, req.TargetConnectionID)
	if err != nil {
		return nil, err
	}

	mode := req.Options.ComparisonMode
	if mode == "" {
		mode = types.CompareStrict
	}
	diff, err := o.comparer.Compare(ctx, source, target, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to compare schemas: %w", err)
	}
	if m, ok := o.resolver.(connectionMarker); ok {
		m.MarkConnected(source.ID)
		m.MarkConnected(target.ID)
	}

	script, err := o.generator.Generate(ctx, diff, target, types.ScriptOptions{
		Type:            "migration",
		IncludeRollback: req.Options.IncludeRollback,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate migration script: %w", err)
	}

	return &plan{
		source: source,
		target: target,
		mode:   mode,
		diff:   diff,
		generated: &GenerateResult{
			SQLScript:      script.SQL,
			RollbackScript: script.RollbackSQL,
			RiskLevel:      assessRisk(script.SQL),
			Warnings:       scriptWarnings(script.SQL),
			OperationCount: countOperations(script.SQL),
		},
		operations: parseOperations(script.SQL),
	}, nil
}

// parseOperations splits a script into classified statements, keeping
// their order.
func parseOperations(script string) []Operation {
	statements := common.ParseSQLStatements(script)
	ops := make([]Operation, 0, len(statements))
	for _, stmt := range statements {
		op := Operation{SQL: stmt, Type: classify(stmt)}
		op.Table = extractTableName(stmt)
		switch op.Type {
		case OpCreateTable, OpCreateIndex:
			op.RiskLevel = RiskLow
		case OpDropTable:
			op.RiskLevel = RiskHigh
		default:
			op.RiskLevel = RiskMedium
		}
		ops = append(ops, op)
	}
	return ops
}

func (o *Orchestrator) execute(ctx context.Context, r *run, p *plan, result *MigrationResult) error {
	if len(p.operations) == 0 {
		o.logLine(r, result, "No schema changes to apply")
		return nil
	}
	if r.request.Options.UseBatching {
		return o.executeBatched(ctx, r, p, result)
	}
	return o.executeDirect(ctx, r, p, result)
}

func (o *Orchestrator) executeDirect(ctx context.Context, r *run, p *plan, result *MigrationResult) error {
	res, err := o.exec.ExecuteScript(ctx, p.target, p.generated.SQLScript, types.ExecOptions{
		Transactional: r.request.Options.UseTransaction,
	})
	if res != nil {
		result.OperationsProcessed = res.StatementsExecuted
	}
	if err != nil {
		return fmt.Errorf("migration execution failed after %d operations: %w", result.OperationsProcessed, err)
	}
	o.logLine(r, result, fmt.Sprintf("Executed %d operations", result.OperationsProcessed))
	return nil
}

// executeBatched runs fixed-size batches strictly in order. A failed batch
// is recorded once; with StopOnFirstError no later batch is attempted.
func (o *Orchestrator) executeBatched(ctx context.Context, r *run, p *plan, result *MigrationResult) error {
	opts := r.request.Options
	size := opts.BatchSize
	if size <= 0 {
		size = o.engine.BatchSize
	}
	batches := partition(p.operations, size)
	total := len(batches)

	batchID := r.id + ":batch"
	o.tracker.StartBatch(batchID, "batched execution", total, len(p.operations))

	limit := rate.Inf
	if o.engine.BatchDelay > 0 {
		limit = rate.Every(o.engine.BatchDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	failed := 0
	for i, batch := range batches {
		n := i + 1
		if err := o.checkpoint(ctx, r); err != nil {
			_ = o.tracker.FailOperation(batchID, err.Error())
			return err
		}
		if err := limiter.Wait(ctx); err != nil {
			_ = o.tracker.FailOperation(batchID, err.Error())
			return err
		}

		_ = o.tracker.UpdateBatch(batchID, progress.BatchUpdate{
			BatchNumber:         n,
			CompletedOperations: result.OperationsProcessed,
			Message:             fmt.Sprintf("Executing batch %d/%d", n, total),
		})

		statements := make([]string, len(batch))
		for j, op := range batch {
			statements[j] = op.SQL
		}
		res, err := o.exec.ExecuteScript(ctx, p.target, strings.Join(statements, ";\n")+";", types.ExecOptions{
			Transactional: opts.UseTransaction,
		})
		if res != nil {
			result.OperationsProcessed += res.StatementsExecuted
		}
		o.metrics.BatchExecuted(err == nil)

		if err != nil {
			failed++
			msg := fmt.Sprintf("Batch %d failed: %v", n, err)
			result.Errors = append(result.Errors, msg)
			o.logLine(r, result, msg)
			_ = o.tracker.UpdateBatch(batchID, progress.BatchUpdate{
				BatchNumber:         n,
				CompletedOperations: result.OperationsProcessed,
				Message:             msg,
				Errors:              []string{msg},
			})
			if opts.StopOnFirstError {
				o.logger.Warn("stopping after failed batch", "id", r.id, "batch", n, "of", total)
				break
			}
			continue
		}

		o.logLine(r, result, fmt.Sprintf("Batch %d/%d completed: %d operations", n, total, len(batch)))
		_ = o.tracker.UpdateBatch(batchID, progress.BatchUpdate{
			BatchNumber:         n,
			CompletedOperations: result.OperationsProcessed,
			Message:             fmt.Sprintf("Batch %d/%d completed", n, total),
		})
	}

	if failed > 0 {
		_ = o.tracker.FailOperation(batchID, fmt.Sprintf("%d of %d batches failed", failed, total))
		return fmt.Errorf("batched execution failed: %d of %d batches failed", failed, total)
	}
	_ = o.tracker.CompleteOperation(batchID, fmt.Sprintf("%d batches completed", total))
	return nil
}

func partition(ops []Operation, size int) [][]Operation {
	var batches [][]Operation
	for start := 0; start < len(ops); start += size {
		end := min(start+size, len(ops))
		batches = append(batches, ops[start:end])
	}
	return batches
}
