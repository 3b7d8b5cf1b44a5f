package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Rana718/graftflow/internal/migrator"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:     "generate <source> <target>",
	Aliases: []string{"plan"},
	Short:   "Preview the migration script without running it",
	Long: `Compare <source> with <target> and print the script that would make the
target match, with its risk level and warnings. Nothing is executed.

Examples:
  graftflow generate staging prod
  graftflow generate staging prod --rollback --out migration.sql
  graftflow generate staging prod --mode structural --json`,
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

		gen, err := a.orchestrator.GenerateMigration(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("failed to generate migration: %w", err)
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		out, _ := cmd.Flags().GetString("out")

		if out != "" {
			if err := writeScripts(out, gen); err != nil {
				return err
			}
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(gen)
		}
		printGenerated(gen, out)
		return nil
	},
}

func writeScripts(path string, gen *migrator.GenerateResult) error {
	if err := os.WriteFile(path, []byte(gen.SQLScript), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if gen.RollbackScript != "" {
		rollbackPath := path + ".rollback"
		if err := os.WriteFile(rollbackPath, []byte(gen.RollbackScript), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", rollbackPath, err)
		}
	}
	return nil
}

func printGenerated(gen *migrator.GenerateResult, out string) {
	if gen.OperationCount == 0 {
		color.Green("✅ Schemas are in sync, nothing to migrate")
		return
	}

	riskColor := color.New(color.FgGreen, color.Bold)
	switch gen.RiskLevel {
	case migrator.RiskMedium:
		riskColor = color.New(color.FgYellow, color.Bold)
	case migrator.RiskHigh:
		riskColor = color.New(color.FgRed, color.Bold)
	}
	fmt.Print("📝 Risk level: ")
	riskColor.Println(gen.RiskLevel)
	fmt.Printf("   Script lines: %d\n", gen.OperationCount)
	for _, w := range gen.Warnings {
		color.Yellow("⚠️  %s", w)
	}

	if out != "" {
		color.Green("✅ Script written to %s", out)
		if gen.RollbackScript != "" {
			color.Green("✅ Rollback written to %s.rollback", out)
		}
		return
	}

	fmt.Println()
	fmt.Println(gen.SQLScript)
	if gen.RollbackScript != "" {
		fmt.Println()
		color.Cyan("-- rollback")
		fmt.Println(gen.RollbackScript)
	}
}

func init() {
	rootCmd.AddCommand(generateCmd)

	addRequestFlags(generateCmd)
	generateCmd.Flags().StringP("out", "o", "", "Write the script to this file instead of stdout")
	generateCmd.Flags().Bool("json", false, "Print the result as JSON")
}
