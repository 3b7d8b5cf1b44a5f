package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Rana718/graftflow/internal/validation"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <connection>",
	Short: "Run validation rules against a connection",
	Long: `Run the registered validation rules against <connection> and print the
report. With --source the source connection is available to custom_logic
rules as "source".

Examples:
  graftflow validate prod
  graftflow validate prod --rules data_integrity_check,security_validation
  graftflow validate prod --source staging --fail-on-warnings`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.requireConnection(args[0]); err != nil {
			return err
		}
		ctx := cmd.Context()

		target, err := a.resolver.Descriptor(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve connection %s: %w", args[0], err)
		}

		flags := cmd.Flags()
		rules, _ := flags.GetStringSlice("rules")
		failOnWarnings, _ := flags.GetBool("fail-on-warnings")
		stopOnError, _ := flags.GetBool("stop-on-error")
		sourceID, _ := flags.GetString("source")
		asJSON, _ := flags.GetBool("json")

		req := validation.Request{
			ID:               uuid.NewString(),
			Connection:       &target,
			Rules:            rules,
			FailOnWarnings:   failOnWarnings,
			StopOnFirstError: stopOnError,
			Context: validation.RequestContext{
				Target:     &target.ConnectionInfo,
				Attributes: map[string]any{},
			},
		}
		if sourceID != "" {
			if err := a.requireConnection(sourceID); err != nil {
				return err
			}
			source, err := a.resolver.GetConnection(ctx, sourceID)
			if err != nil {
				return fmt.Errorf("failed to resolve connection %s: %w", sourceID, err)
			}
			req.Context.Source = source
		}

		sub := a.tracker.Subscribe(req.ID, 64)
		defer sub.Close()
		rendered := make(chan struct{})
		if asJSON {
			close(rendered)
		} else {
			color.Cyan("🔎 Validating %s", args[0])
			go renderProgress(sub, "validation", rendered)
		}

		report := a.validator.ExecuteValidation(ctx, req)
		sub.Close()
		<-rendered

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
		} else {
			fmt.Println()
			printValidationSummary(report)
		}

		if !report.CanProceed {
			return fmt.Errorf("validation %s: migration cannot proceed", report.OverallStatus)
		}
		return nil
	},
}

func printValidationSummary(report *validation.Report) {
	header := color.New(color.FgCyan, color.Bold)
	header.Printf("📋 Validation %s: ", report.ID)
	switch report.OverallStatus {
	case validation.StatusPassed:
		color.Green("passed")
	case validation.StatusWarnings:
		color.Yellow("passed with warnings")
	default:
		color.Red("failed")
	}

	fmt.Printf("   Rules: %d total, %d passed, %d failed, %d warnings (%v)\n",
		report.TotalRules, report.PassedRules, report.FailedRules, report.WarningRules,
		report.ExecutionTime.Round(time.Millisecond))

	for _, r := range report.Results {
		var mark string
		switch {
		case r.Passed:
			mark = color.GreenString("✓")
		case r.Severity == validation.SeverityError:
			mark = color.RedString("✗")
		default:
			mark = color.YellowString("!")
		}
		retries := ""
		if r.RetryCount > 0 {
			retries = fmt.Sprintf(" (%d retries)", r.RetryCount)
		}
		fmt.Printf("   %s %-28s %s%s\n", mark, r.RuleID, r.Message, retries)
	}

	for _, rec := range report.Recommendations {
		fmt.Printf("   💡 %s\n", rec)
	}
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringSlice("rules", nil, "Rule ids to run (default: every enabled rule)")
	validateCmd.Flags().Bool("fail-on-warnings", false, "Treat warnings as blocking")
	validateCmd.Flags().Bool("stop-on-error", false, "Stop at the first failing error-severity rule")
	validateCmd.Flags().String("source", "", "Source connection exposed to custom_logic rules")
	validateCmd.Flags().Bool("json", false, "Print the report as JSON")
}
