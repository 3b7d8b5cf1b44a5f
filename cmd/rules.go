package cmd

import (
	"fmt"
	"os"

	"github.com/Rana718/graftflow/internal/validation"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the registered validation rules",
	Long: `List the default validation rules plus the ones loaded from the rules
file named by validation.rules_file in the config.

Examples:
  graftflow rules
  graftflow rules --enabled
  graftflow rules --check custom-rules.yaml
  graftflow rules --yaml > rules.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if check, _ := cmd.Flags().GetString("check"); check != "" {
			rules, err := validation.LoadRulesFile(check)
			if err != nil {
				return err
			}
			color.Green("✅ %s: %d valid rules", check, len(rules))
			printRules(rules)
			return nil
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		rules := a.validator.Rules()
		if enabledOnly, _ := cmd.Flags().GetBool("enabled"); enabledOnly {
			rules = a.validator.GetEnabledRules()
		}

		if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(map[string]any{"rules": rules})
		}

		printRules(rules)
		return nil
	},
}

func printRules(rules []validation.Rule) {
	if len(rules) == 0 {
		fmt.Println("No rules registered")
		return
	}

	header := color.New(color.FgCyan, color.Bold)
	header.Printf("%-30s %-16s %-9s %-16s %s\n", "ID", "CATEGORY", "SEVERITY", "TYPE", "ENABLED")
	for _, r := range rules {
		enabled := color.GreenString("yes")
		if !r.Enabled {
			enabled = color.RedString("no")
		}
		fmt.Printf("%-30s %-16s %-9s %-16s %s\n", r.ID, r.Category, r.Severity, r.Definition.Type, enabled)
	}
}

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().Bool("enabled", false, "Show only enabled rules")
	rulesCmd.Flags().String("check", "", "Validate a YAML rules file and list its rules")
	rulesCmd.Flags().Bool("yaml", false, "Print the rules as YAML")
}
