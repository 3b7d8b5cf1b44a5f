// Package migrator drives a schema migration between two connections through
// validation, backup, execution, verification and cleanup.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Rana718/graftflow/internal/config"
	"github.com/Rana718/graftflow/internal/metrics"
	"github.com/Rana718/graftflow/internal/progress"
	"github.com/Rana718/graftflow/internal/types"
	"github.com/Rana718/graftflow/internal/validation"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

var (
	ErrMigrationCancelled  = errors.New("migration cancelled by user")
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrValidationFailed    = errors.New("pre-migration validation failed")
	ErrVerificationFailed  = errors.New("post-migration verification failed")
	ErrMissingCollaborator = errors.New("missing collaborator")
)

const (
	DefaultBatchSize          = 10
	DefaultIntegrityThreshold = 0.8
	DefaultActiveRetention    = 5 * time.Minute
	DefaultResultTTL          = 30 * time.Minute
	DefaultTempObjectPrefix   = "tmp_migration_"
	cancelledMessage          = "Migration cancelled by user"
)

// ConnectionResolver looks up connection metadata and secrets. A nil info
// with a nil error means the id is unknown.
type ConnectionResolver interface {
	GetConnection(ctx context.Context, id string) (*types.ConnectionInfo, error)
	GetPassword(ctx context.Context, id string) (string, error)
}

type SchemaComparer interface {
	Compare(ctx context.Context, source, target types.ConnectionDescriptor, mode types.ComparisonMode) (*types.SchemaDiff, error)
}

type ScriptGenerator interface {
	Generate(ctx context.Context, diff *types.SchemaDiff, target types.ConnectionDescriptor, opts types.ScriptOptions) (*types.Script, error)
}

// Executor applies SQL to a connection. ExecuteScript reports how many
// statements ran even when it fails part way.
type Executor interface {
	ExecuteQuery(ctx context.Context, conn types.ConnectionDescriptor, query string, opts types.QueryOptions, args ...interface{}) (*types.QueryResult, error)
	ExecuteScript(ctx context.Context, conn types.ConnectionDescriptor, script string, opts types.ExecOptions) (*types.ExecResult, error)
	Release(ctx context.Context, connID string) error
}

type BackupCreator interface {
	CreateBackup(ctx context.Context, conn types.ConnectionDescriptor, comment string) (string, error)
}

type Validator interface {
	ExecuteValidation(ctx context.Context, req validation.Request) *validation.Report
}

// Dependencies wires an orchestrator. Backup and Metrics are optional.
type Dependencies struct {
	Resolver  ConnectionResolver
	Comparer  SchemaComparer
	Generator ScriptGenerator
	Executor  Executor
	Backup    BackupCreator
	Validator Validator
	Tracker   *progress.Tracker
	Metrics   *metrics.Collector
	Logger    *slog.Logger
	Engine    config.Engine
}

// Orchestrator runs migrations. Each migration runs on the caller's
// goroutine; the orchestrator only guards its shared bookkeeping.
type Orchestrator struct {
	resolver  ConnectionResolver
	comparer  SchemaComparer
	generator ScriptGenerator
	exec      Executor
	backup    BackupCreator
	validator Validator
	tracker   *progress.Tracker
	metrics   *metrics.Collector
	logger    *slog.Logger
	engine    config.Engine

	mu      sync.Mutex
	active  map[string]*run
	results *cache.Cache
	now     func() time.Time
}

// run is the bookkeeping for one in-flight migration.
type run struct {
	id        string
	request   MigrationRequest
	startedAt time.Time
	cancelled atomic.Bool
	done      bool
}

func New(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Resolver == nil:
		return nil, fmt.Errorf("%w: connection resolver", ErrMissingCollaborator)
	case deps.Comparer == nil:
		return nil, fmt.Errorf("%w: schema comparer", ErrMissingCollaborator)
	case deps.Generator == nil:
		return nil, fmt.Errorf("%w: script generator", ErrMissingCollaborator)
	case deps.Executor == nil:
		return nil, fmt.Errorf("%w: executor", ErrMissingCollaborator)
	case deps.Validator == nil:
		return nil, fmt.Errorf("%w: validator", ErrMissingCollaborator)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracker == nil {
		deps.Tracker = progress.New(progress.Options{Logger: deps.Logger})
	}

	e := deps.Engine
	if e.BatchSize <= 0 {
		e.BatchSize = DefaultBatchSize
	}
	if e.IntegrityThreshold <= 0 || e.IntegrityThreshold > 1 {
		e.IntegrityThreshold = DefaultIntegrityThreshold
	}
	if e.ActiveRetention <= 0 {
		e.ActiveRetention = DefaultActiveRetention
	}
	if e.ResultTTL <= 0 {
		e.ResultTTL = DefaultResultTTL
	}
	if e.TempObjectPrefix == "" {
		e.TempObjectPrefix = DefaultTempObjectPrefix
	}

	return &Orchestrator{
		resolver:  deps.Resolver,
		comparer:  deps.Comparer,
		generator: deps.Generator,
		exec:      deps.Executor,
		backup:    deps.Backup,
		validator: deps.Validator,
		tracker:   deps.Tracker,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		engine:    e,
		active:    make(map[string]*run),
		results:   cache.New(e.ResultTTL, 2*e.ResultTTL),
		now:       time.Now,
	}, nil
}

// Tracker exposes the progress tracker so callers can subscribe to a
// migration's events.
func (o *Orchestrator) Tracker() *progress.Tracker {
	return o.tracker
}

// ExecuteMigration runs every phase in order and always returns a result.
// Errors, including panics inside a phase, end up in the result.
func (o *Orchestrator) ExecuteMigration(ctx context.Context, req MigrationRequest) (result *MigrationResult) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	r := o.register(req)
	startedAt := r.startedAt

	result = &MigrationResult{
		MigrationID:  req.ID,
		Errors:       []string{},
		Warnings:     []string{},
		ExecutionLog: []string{},
		Metadata:     req.Metadata,
	}
	result.Metadata.StartedAt = &startedAt

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("migration %s -> %s", req.SourceConnectionID, req.TargetConnectionID)
	}
	o.tracker.StartMigration(req.ID, name, req.SourceConnectionID, req.TargetConnectionID)
	o.metrics.MigrationStarted()
	o.logger.Info("migration started", "id", req.ID, "source", req.SourceConnectionID, "target", req.TargetConnectionID)

	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("migration panicked", "id", req.ID, "panic", p)
			o.recordFailure(result, fmt.Errorf("unexpected error: %v", p))
		}
		result = o.finish(ctx, r, result)
	}()

	if err := o.runPhases(ctx, r, result); err != nil {
		if !errors.Is(err, ErrMigrationCancelled) {
			o.recordFailure(result, err)
		}
		return result
	}
	result.Success = true
	return result
}

func (o *Orchestrator) runPhases(ctx context.Context, r *run, result *MigrationResult) error {
	req := r.request
	opts := req.Options

	if err := o.checkpoint(ctx, r); err != nil {
		return err
	}
	o.advance(r, result, progress.PhaseValidation, "Running pre-migration validation")
	if opts.ValidateBeforeExecution {
		report, err := o.validateRequest(ctx, req)
		if err != nil {
			return err
		}
		result.ValidationReport = report
		if !report.CanProceed {
			return fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(report.Recommendations, "; "))
		}
		o.logLine(r, result, fmt.Sprintf("Validation %s: %d passed, %d failed, %d warnings",
			report.OverallStatus, report.PassedRules, report.FailedRules, report.WarningRules))
	} else {
		o.logLine(r, result, "Validation skipped")
	}

	if opts.CreateBackupBeforeExecution {
		if err := o.checkpoint(ctx, r); err != nil {
			return err
		}
		o.advance(r, result, progress.PhaseBackup, "Creating backup of target database")
		if err := o.createBackup(ctx, req, result); err != nil {
			return err
		}
		if result.Metadata.BackupPath != "" {
			o.logLine(r, result, "Backup created: "+result.Metadata.BackupPath)
		} else {
			o.logLine(r, result, "Backup skipped: target has no tables")
		}
	}

	if err := o.checkpoint(ctx, r); err != nil {
		return err
	}
	o.advance(r, result, progress.PhaseExecution, "Generating migration script")
	p, err := o.prepare(ctx, req)
	if err != nil {
		return err
	}
	result.RollbackAvailable = p.generated.RollbackScript != ""
	result.Metadata.RiskLevel = p.generated.RiskLevel
	result.Warnings = append(result.Warnings, p.generated.Warnings...)
	o.logLine(r, result, fmt.Sprintf("Generated script with %d operations (risk %s)", len(p.operations), p.generated.RiskLevel))

	if err := o.execute(ctx, r, p, result); err != nil {
		return err
	}

	if err := o.checkpoint(ctx, r); err != nil {
		return err
	}
	o.advance(r, result, progress.PhaseVerification, "Verifying migration")
	summary := o.verify(ctx, p, result)
	result.Metadata.Verification = summary
	if !summary.Passed {
		var failed []string
		for _, c := range summary.Checks {
			if !c.Passed {
				failed = append(failed, fmt.Sprintf("%s (%s)", c.Name, c.Message))
			}
		}
		return fmt.Errorf("%w: %s", ErrVerificationFailed, strings.Join(failed, ", "))
	}
	o.logLine(r, result, "Verification passed")

	if err := o.checkpoint(ctx, r); err != nil {
		return err
	}
	o.advance(r, result, progress.PhaseCleanup, "Cleaning up")
	o.cleanup(ctx, r, p, result)
	return o.checkpoint(ctx, r)
}

// checkpoint stops the migration between steps once it was cancelled or its
// context ended.
func (o *Orchestrator) checkpoint(ctx context.Context, r *run) error {
	if r.cancelled.Load() {
		return ErrMigrationCancelled
	}
	return ctx.Err()
}

func (o *Orchestrator) advance(r *run, result *MigrationResult, phase progress.Phase, message string) {
	result.ExecutionLog = append(result.ExecutionLog, message)
	if err := o.tracker.UpdateMigration(r.id, progress.MigrationUpdate{Phase: phase, Message: message}); err != nil {
		o.logger.Debug("progress update dropped", "id", r.id, "error", err)
	}
	o.logger.Info(message, "id", r.id, "phase", phase)
}

func (o *Orchestrator) logLine(r *run, result *MigrationResult, message string) {
	result.ExecutionLog = append(result.ExecutionLog, message)
	if err := o.tracker.UpdateMigration(r.id, progress.MigrationUpdate{Message: message}); err != nil {
		o.logger.Debug("progress update dropped", "id", r.id, "error", err)
	}
}

func (o *Orchestrator) recordFailure(result *MigrationResult, err error) {
	result.Success = false
	result.Errors = append(result.Errors, err.Error())
	result.ExecutionLog = append(result.ExecutionLog, "Migration failed: "+err.Error())
}

// finish stores the terminal result and ends the progress record. A
// migration cancelled while running returns the stored cancellation result.
func (o *Orchestrator) finish(ctx context.Context, r *run, result *MigrationResult) *MigrationResult {
	elapsed := o.now().Sub(r.startedAt)
	result.ExecutionTime = elapsed

	// Stored under the lock so a later cancel overwrites it.
	o.mu.Lock()
	r.done = true
	cancelled := r.cancelled.Load()
	if !cancelled {
		completedAt := o.now()
		result.Metadata.CompletedAt = &completedAt
		o.results.Set(r.id, cloneResult(result), cache.DefaultExpiration)
	}
	o.mu.Unlock()
	time.AfterFunc(o.engine.ActiveRetention, func() { o.forget(r) })

	if cancelled || !result.Success {
		o.releaseConnections(ctx, r.request)
	}
	if cancelled {
		o.logger.Info("migration cancelled", "id", r.id, "duration", elapsed)
		if stored, ok := o.GetMigrationResult(r.id); ok {
			return stored
		}
		return result
	}
	status := "completed"
	if result.Success {
		_ = o.tracker.CompleteOperation(r.id, "Migration completed successfully")
	} else {
		status = "failed"
		_ = o.tracker.FailOperation(r.id, strings.Join(result.Errors, "; "))
	}
	o.metrics.MigrationFinished(status, elapsed)
	o.logger.Info("migration finished", "id", r.id, "success", result.Success,
		"operations", result.OperationsProcessed, "duration", elapsed)
	return result
}

func (o *Orchestrator) register(req MigrationRequest) *run {
	r := &run{id: req.ID, request: req, startedAt: o.now()}
	o.mu.Lock()
	o.active[req.ID] = r
	o.mu.Unlock()
	return r
}

// forget drops r from the active set unless the id was reused since.
func (o *Orchestrator) forget(r *run) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[r.id] == r {
		delete(o.active, r.id)
	}
}

// CancelMigration cancels a migration in the active set. It returns false
// when id is not in the set. The running phase is not interrupted; the
// migration stops at its next checkpoint. A migration that already finished
// but is still retained in the set has its stored result replaced by the
// cancellation result.
func (o *Orchestrator) CancelMigration(id string) bool {
	o.mu.Lock()
	r, ok := o.active[id]
	if !ok {
		o.mu.Unlock()
		return false
	}
	finished := r.done
	r.cancelled.Store(true)
	delete(o.active, id)
	o.mu.Unlock()

	if err := o.tracker.CancelOperation(id); err != nil && !errors.Is(err, progress.ErrOperationFinished) {
		o.logger.Debug("cancel progress update dropped", "id", id, "error", err)
	}

	elapsed := o.now().Sub(r.startedAt)
	o.results.Set(id, &MigrationResult{
		MigrationID:         id,
		Success:             false,
		ExecutionTime:       elapsed,
		OperationsProcessed: 0,
		Errors:              []string{cancelledMessage},
		Warnings:            []string{},
		ExecutionLog:        []string{cancelledMessage},
		Metadata:            r.request.Metadata,
	}, cache.DefaultExpiration)
	if !finished {
		o.metrics.MigrationFinished("cancelled", elapsed)
	}
	o.logger.Info("migration cancel requested", "id", id, "finished", finished)
	return true
}

// GetMigrationResult returns a copy of the stored result for id.
func (o *Orchestrator) GetMigrationResult(id string) (*MigrationResult, bool) {
	v, ok := o.results.Get(id)
	if !ok {
		return nil, false
	}
	return cloneResult(v.(*MigrationResult)), true
}

func (o *Orchestrator) GetActiveMigrations() []ActiveMigration {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ActiveMigration, 0, len(o.active))
	for _, r := range o.active {
		out = append(out, ActiveMigration{ID: r.id, Request: r.request, StartedAt: r.startedAt, Finished: r.done})
	}
	return out
}

func (o *Orchestrator) GetMigrationProgress(id string) (progress.Record, bool) {
	return o.tracker.GetProgress(id)
}

// ValidateMigration runs only the validation gate for req.
func (o *Orchestrator) ValidateMigration(ctx context.Context, req MigrationRequest) (*validation.Report, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return o.validateRequest(ctx, req)
}

func (o *Orchestrator) validateRequest(ctx context.Context, req MigrationRequest) (*validation.Report, error) {
	source, err := o.connectionInfo(ctx, req.SourceConnectionID)
	if err != nil {
		return nil, err
	}
	target, err := o.descriptor(ctx, req.TargetConnectionID)
	if err != nil {
		return nil, err
	}

	report := o.validator.ExecuteValidation(ctx, validation.Request{
		ID:               req.ID + ":validation",
		Connection:       &target,
		Rules:            req.Options.BusinessRules,
		FailOnWarnings:   req.Options.FailOnWarnings,
		StopOnFirstError: req.Options.StopOnFirstError,
		Context: validation.RequestContext{
			Source: source,
			Target: &target.ConnectionInfo,
			Attributes: map[string]any{
				"migrationId": req.ID,
				"options":     optionsProperties(req.Options),
				"metadata":    metadataProperties(req.Metadata),
			},
		},
	})
	return report, nil
}

func (o *Orchestrator) createBackup(ctx context.Context, req MigrationRequest, result *MigrationResult) error {
	if o.backup == nil {
		return fmt.Errorf("backup requested but no backup collaborator is configured")
	}
	target, err := o.descriptor(ctx, req.TargetConnectionID)
	if err != nil {
		return err
	}
	path, err := o.backup.CreateBackup(ctx, target, "pre-migration backup for "+req.ID)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	result.Metadata.BackupPath = path
	return nil
}

func (o *Orchestrator) connectionInfo(ctx context.Context, id string) (*types.ConnectionInfo, error) {
	info, err := o.resolver.GetConnection(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve connection %s: %w", id, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	return info, nil
}

// descriptor resolves id into the shape the database collaborators take.
func (o *Orchestrator) descriptor(ctx context.Context, id string) (types.ConnectionDescriptor, error) {
	info, err := o.connectionInfo(ctx, id)
	if err != nil {
		return types.ConnectionDescriptor{}, err
	}
	password, err := o.resolver.GetPassword(ctx, id)
	if err != nil {
		return types.ConnectionDescriptor{}, fmt.Errorf("failed to get password for %s: %w", id, err)
	}
	return types.NewDescriptor(*info, password), nil
}

func (o *Orchestrator) releaseConnections(ctx context.Context, req MigrationRequest) {
	for _, id := range []string{req.SourceConnectionID, req.TargetConnectionID} {
		if err := o.exec.Release(ctx, id); err != nil {
			o.logger.Warn("failed to release connection", "connection", id, "error", err)
		}
	}
}

func optionsProperties(opts MigrationOptions) map[string]any {
	return map[string]any{
		"includeRollback":             opts.IncludeRollback,
		"validateBeforeExecution":     opts.ValidateBeforeExecution,
		"createBackupBeforeExecution": opts.CreateBackupBeforeExecution,
		"useTransaction":              opts.UseTransaction,
		"stopOnFirstError":            opts.StopOnFirstError,
		"useBatching":                 opts.UseBatching,
		"batchSize":                   opts.BatchSize,
		"failOnWarnings":              opts.FailOnWarnings,
	}
}

func metadataProperties(md MigrationMetadata) map[string]any {
	return map[string]any{
		"author":        md.Author,
		"justification": md.Justification,
		"changeType":    md.ChangeType,
		"environment":   md.Environment,
		"tags":          md.Tags,
	}
}

func cloneResult(r *MigrationResult) *MigrationResult {
	c := *r
	c.Errors = append([]string{}, r.Errors...)
	c.Warnings = append([]string{}, r.Warnings...)
	c.ExecutionLog = append([]string{}, r.ExecutionLog...)
	c.Metadata.Tags = append([]string(nil), r.Metadata.Tags...)
	if r.Metadata.Metrics != nil {
		c.Metadata.Metrics = make(map[string]any, len(r.Metadata.Metrics))
		for k, v := range r.Metadata.Metrics {
			c.Metadata.Metrics[k] = v
		}
	}
	return &c
}
