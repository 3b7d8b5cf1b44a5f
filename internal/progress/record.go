package progress

import (
	"maps"
	"slices"
	"time"
)

// Kind tags the shape of a progress record.
type Kind string

const (
	KindGeneric    Kind = "generic"
	KindBatch      Kind = "batch"
	KindValidation Kind = "validation"
	KindMigration  Kind = "migration"
)

// Phase is a migration phase. The first five are active phases, the rest are
// terminal.
type Phase string

const (
	PhaseValidation   Phase = "validation"
	PhaseBackup       Phase = "backup"
	PhaseExecution    Phase = "execution"
	PhaseVerification Phase = "verification"
	PhaseCleanup      Phase = "cleanup"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhaseCancelled    Phase = "cancelled"
)

const migrationSteps = 5

// FailedPercentage marks a record that ended in failure.
const FailedPercentage = -1

// Step returns the 1-based step of an active phase, or 0 for terminal phases.
func (p Phase) Step() int {
	switch p {
	case PhaseValidation:
		return 1
	case PhaseBackup:
		return 2
	case PhaseExecution:
		return 3
	case PhaseVerification:
		return 4
	case PhaseCleanup:
		return 5
	}
	return 0
}

func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// Record is the latest known state of one tracked operation. Exactly one of
// Batch, Validation and Migration is set for the matching Kind; generic
// records carry only the shared fields.
type Record struct {
	Kind        Kind           `json:"kind"`
	ID          string         `json:"id"`
	Operation   string         `json:"operation"`
	CurrentStep int            `json:"currentStep"`
	TotalSteps  int            `json:"totalSteps"`
	Percentage  int            `json:"percentage"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Finished    bool           `json:"finished"`

	Batch      *BatchProgress      `json:"batch,omitempty"`
	Validation *ValidationProgress `json:"validation,omitempty"`
	Migration  *MigrationProgress  `json:"migration,omitempty"`
}

type BatchProgress struct {
	BatchID             string   `json:"batchId"`
	BatchNumber         int      `json:"batchNumber"`
	TotalBatches        int      `json:"totalBatches"`
	CompletedOperations int      `json:"completedOperations"`
	TotalOperations     int      `json:"totalOperations"`
	Errors              []string `json:"errors,omitempty"`
	Warnings            []string `json:"warnings,omitempty"`
}

type ValidationProgress struct {
	TotalRules     int    `json:"totalRules"`
	CompletedRules int    `json:"completedRules"`
	PassedRules    int    `json:"passedRules"`
	FailedRules    int    `json:"failedRules"`
	WarningRules   int    `json:"warningRules"`
	CurrentRule    string `json:"currentRule,omitempty"`
}

type MigrationProgress struct {
	Phase                  Phase         `json:"phase"`
	SourceConnectionID     string        `json:"sourceConnectionId"`
	TargetConnectionID     string        `json:"targetConnectionId"`
	EstimatedTimeRemaining time.Duration `json:"estimatedTimeRemaining,omitempty"`
	ExecutionLog           []string      `json:"executionLog,omitempty"`
	Errors                 []string      `json:"errors,omitempty"`
	Warnings               []string      `json:"warnings,omitempty"`
}

func (r *Record) clone() Record {
	c := *r
	c.Details = maps.Clone(r.Details)
	if r.Batch != nil {
		b := *r.Batch
		b.Errors = slices.Clone(r.Batch.Errors)
		b.Warnings = slices.Clone(r.Batch.Warnings)
		c.Batch = &b
	}
	if r.Validation != nil {
		v := *r.Validation
		c.Validation = &v
	}
	if r.Migration != nil {
		m := *r.Migration
		m.ExecutionLog = slices.Clone(r.Migration.ExecutionLog)
		m.Errors = slices.Clone(r.Migration.Errors)
		m.Warnings = slices.Clone(r.Migration.Warnings)
		c.Migration = &m
	}
	return c
}

// recompute derives the percentage from the record's own counters. While a
// record is active its percentage never decreases.
func (r *Record) recompute() {
	pct := 0
	switch {
	case r.Batch != nil:
		b := r.Batch
		if b.TotalOperations > 0 {
			pct = b.CompletedOperations * 100 / b.TotalOperations
		} else if b.TotalBatches > 0 {
			pct = b.BatchNumber * 100 / b.TotalBatches
		}
	case r.Validation != nil:
		if r.Validation.TotalRules > 0 {
			pct = r.Validation.CompletedRules * 100 / r.Validation.TotalRules
		}
	case r.Migration != nil:
		r.CurrentStep = r.Migration.Phase.Step()
		pct = r.CurrentStep * 100 / migrationSteps
	default:
		if r.TotalSteps > 0 {
			pct = r.CurrentStep * 100 / r.TotalSteps
		}
	}
	pct = min(pct, 100)
	r.Percentage = max(r.Percentage, pct)
}
