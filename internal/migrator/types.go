package migrator

import (
	"time"

	"github.com/Rana718/graftflow/internal/types"
	"github.com/Rana718/graftflow/internal/validation"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type MigrationOptions struct {
	IncludeRollback             bool                 `json:"includeRollback"`
	ValidateBeforeExecution     bool                 `json:"validateBeforeExecution"`
	CreateBackupBeforeExecution bool                 `json:"createBackupBeforeExecution"`
	UseTransaction              bool                 `json:"useTransaction"`
	StopOnFirstError            bool                 `json:"stopOnFirstError"`
	UseBatching                 bool                 `json:"useBatching"`
	BatchSize                   int                  `json:"batchSize,omitempty"`
	BusinessRules               []string             `json:"businessRules,omitempty"`
	FailOnWarnings              bool                 `json:"failOnWarnings"`
	ComparisonMode              types.ComparisonMode `json:"comparisonMode,omitempty"`
}

// MigrationMetadata is supplied by the caller and enriched by the
// orchestrator as the migration runs.
type MigrationMetadata struct {
	Author        string   `json:"author,omitempty"`
	Justification string   `json:"justification,omitempty"`
	ChangeType    string   `json:"changeType,omitempty"`
	Environment   string   `json:"environment,omitempty"`
	Tags          []string `json:"tags,omitempty"`

	StartedAt    *time.Time           `json:"startedAt,omitempty"`
	CompletedAt  *time.Time           `json:"completedAt,omitempty"`
	BackupPath   string               `json:"backupPath,omitempty"`
	RiskLevel    RiskLevel            `json:"riskLevel,omitempty"`
	Metrics      map[string]any       `json:"metrics,omitempty"`
	Verification *VerificationSummary `json:"verification,omitempty"`
	Cleanup      *CleanupSummary      `json:"cleanup,omitempty"`
}

type MigrationRequest struct {
	ID                 string            `json:"id,omitempty"`
	Name               string            `json:"name,omitempty"`
	SourceConnectionID string            `json:"sourceConnectionId"`
	TargetConnectionID string            `json:"targetConnectionId"`
	Options            MigrationOptions  `json:"options"`
	Metadata           MigrationMetadata `json:"metadata"`
}

type MigrationResult struct {
	MigrationID         string             `json:"migrationId"`
	Success             bool               `json:"success"`
	ExecutionTime       time.Duration      `json:"executionTime"`
	OperationsProcessed int                `json:"operationsProcessed"`
	Errors              []string           `json:"errors"`
	Warnings            []string           `json:"warnings"`
	RollbackAvailable   bool               `json:"rollbackAvailable"`
	ValidationReport    *validation.Report `json:"validationReport,omitempty"`
	ExecutionLog        []string           `json:"executionLog"`
	Metadata            MigrationMetadata  `json:"metadata"`
}

// GenerateResult is a rendered migration script with its lexical risk
// assessment. OperationCount counts non-comment script lines.
type GenerateResult struct {
	SQLScript      string    `json:"sqlScript"`
	RollbackScript string    `json:"rollbackScript,omitempty"`
	RiskLevel      RiskLevel `json:"riskLevel"`
	Warnings       []string  `json:"warnings"`
	OperationCount int       `json:"operationCount"`
}

type VerificationCheck struct {
	Name    string         `json:"name"`
	Passed  bool           `json:"passed"`
	Score   float64        `json:"score,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type VerificationSummary struct {
	Passed bool                `json:"passed"`
	Checks []VerificationCheck `json:"checks"`
}

type CleanupStep struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CleanupSummary struct {
	Steps  []CleanupStep `json:"steps"`
	Failed int           `json:"failed"`
}

// ActiveMigration describes an entry of the active-migration set. Finished
// entries stay visible for a short retention period.
type ActiveMigration struct {
	ID        string           `json:"id"`
	Request   MigrationRequest `json:"request"`
	StartedAt time.Time        `json:"startedAt"`
	Finished  bool             `json:"finished"`
}
