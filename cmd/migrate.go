package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rana718/graftflow/internal/migrator"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <source> <target>",
	Short: "Migrate the target connection's schema to match the source",
	Long: `Compare the schema of <source> with <target>, generate the script that
makes the target match, and run it through validation, backup, execution,
verification and cleanup.

Press Ctrl+C once to cancel: the migration stops at the next phase or
batch boundary.

Examples:
  graftflow migrate staging prod --backup
  graftflow migrate staging prod --batch --batch-size 20 --stop-on-error
  graftflow migrate staging prod --no-validate --json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		for _, id := range args {
			if err := a.requireConnection(id); err != nil {
				return err
			}
		}

		req, err := requestFromFlags(cmd, args[0], args[1])
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		noValidate, _ := flags.GetBool("no-validate")
		withBackup, _ := flags.GetBool("backup")
		useTx, _ := flags.GetBool("transaction")
		batch, _ := flags.GetBool("batch")
		batchSize, _ := flags.GetInt("batch-size")
		asJSON, _ := flags.GetBool("json")
		name, _ := flags.GetString("name")

		req.ID = uuid.NewString()
		req.Name = name
		req.Options.ValidateBeforeExecution = !noValidate
		req.Options.CreateBackupBeforeExecution = withBackup
		req.Options.UseTransaction = useTx
		req.Options.UseBatching = batch
		req.Options.BatchSize = batchSize

		sub := a.tracker.Subscribe(req.ID, 64)
		defer sub.Close()
		rendered := make(chan struct{})
		if asJSON {
			close(rendered)
		} else {
			color.Cyan("🚀 Migrating %s → %s (%s)", req.SourceConnectionID, req.TargetConnectionID, req.ID)
			go renderProgress(sub, "migration", rendered)
		}

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signals)
		finished := make(chan struct{})
		go cancelOnSignal(signals, finished, func() {
			if a.orchestrator.CancelMigration(req.ID) {
				color.Yellow("\n⏹️  Cancelling migration %s...", req.ID)
			}
		})

		result := a.orchestrator.ExecuteMigration(cmd.Context(), req)
		close(finished)
		sub.Close()
		<-rendered

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
		} else {
			verbose, _ := flags.GetBool("verbose")
			printMigrationResult(result, verbose)
		}

		if !result.Success {
			return fmt.Errorf("migration %s failed", result.MigrationID)
		}
		return nil
	},
}

// cancelOnSignal calls cancel for the first signal received before finished
// is closed, and returns once either happens.
func cancelOnSignal(signals <-chan os.Signal, finished <-chan struct{}, cancel func()) {
	select {
	case <-signals:
		select {
		case <-finished:
		default:
			cancel()
		}
	case <-finished:
	}
}

func printMigrationResult(result *migrator.MigrationResult, verbose bool) {
	fmt.Println()
	if result.Success {
		color.Green("✅ Migration %s completed in %v", result.MigrationID, result.ExecutionTime.Round(time.Millisecond))
	} else {
		color.Red("❌ Migration %s failed after %v", result.MigrationID, result.ExecutionTime.Round(time.Millisecond))
	}
	fmt.Printf("   Operations processed: %d\n", result.OperationsProcessed)
	if result.Metadata.RiskLevel != "" {
		fmt.Printf("   Risk level: %s\n", result.Metadata.RiskLevel)
	}
	if result.Metadata.BackupPath != "" {
		fmt.Printf("   Backup: %s\n", result.Metadata.BackupPath)
	}
	if result.RollbackAvailable {
		fmt.Println("   Rollback script available")
	}

	if report := result.ValidationReport; report != nil {
		fmt.Println()
		printValidationSummary(report)
	}

	if v := result.Metadata.Verification; v != nil {
		fmt.Println()
		color.Cyan("🔍 Verification:")
		for _, c := range v.Checks {
			mark := color.GreenString("✓")
			if !c.Passed {
				mark = color.RedString("✗")
			}
			fmt.Printf("   %s %-22s %s\n", mark, c.Name, c.Message)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Println()
		for _, w := range result.Warnings {
			color.Yellow("⚠️  %s", w)
		}
	}
	if len(result.Errors) > 0 {
		fmt.Println()
		for _, e := range result.Errors {
			color.Red("   %s", e)
		}
	}

	if verbose {
		fmt.Println()
		color.Cyan("📋 Execution log:")
		for _, line := range result.ExecutionLog {
			fmt.Printf("   %s\n", line)
		}
	}
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	addRequestFlags(migrateCmd)
	migrateCmd.Flags().String("name", "", "Human readable migration name")
	migrateCmd.Flags().Bool("no-validate", false, "Skip pre-migration validation")
	migrateCmd.Flags().Bool("backup", false, "Back up the target's data before executing")
	migrateCmd.Flags().Bool("transaction", true, "Run the script in a transaction (direct execution only)")
	migrateCmd.Flags().Bool("batch", false, "Execute the script in batches")
	migrateCmd.Flags().Int("batch-size", 0, "Statements per batch (default from engine.batch_size)")
	migrateCmd.Flags().Bool("json", false, "Print the result as JSON")
}
