package cmd

import (
	"fmt"

	"github.com/Rana718/graftflow/internal/migrator"
	"github.com/Rana718/graftflow/internal/types"
	"github.com/spf13/cobra"
)

// addRequestFlags registers the flags that shape a migration request. The
// migrate, generate and validate commands share them.
func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", string(types.CompareStrict), "Schema comparison mode: strict or structural")
	cmd.Flags().Bool("rollback", false, "Generate a rollback script")
	cmd.Flags().StringSlice("rules", nil, "Validation rule ids to run (default: every enabled rule)")
	cmd.Flags().Bool("fail-on-warnings", false, "Treat validation warnings as blocking")
	cmd.Flags().Bool("stop-on-error", false, "Stop at the first failing rule or batch")
	cmd.Flags().String("author", "", "Author recorded in the migration metadata")
	cmd.Flags().String("justification", "", "Reason for the change")
	cmd.Flags().String("change-type", "", "Change type, e.g. schema or hotfix")
	cmd.Flags().String("env", "", "Environment name recorded in the metadata")
	cmd.Flags().StringSlice("tag", nil, "Tags recorded in the metadata")
}

func requestFromFlags(cmd *cobra.Command, source, target string) (migrator.MigrationRequest, error) {
	flags := cmd.Flags()

	mode, _ := flags.GetString("mode")
	switch types.ComparisonMode(mode) {
	case types.CompareStrict, types.CompareStructural:
	default:
		return migrator.MigrationRequest{}, fmt.Errorf("unknown comparison mode %q (use strict or structural)", mode)
	}

	rollback, _ := flags.GetBool("rollback")
	rules, _ := flags.GetStringSlice("rules")
	failOnWarnings, _ := flags.GetBool("fail-on-warnings")
	stopOnError, _ := flags.GetBool("stop-on-error")
	author, _ := flags.GetString("author")
	justification, _ := flags.GetString("justification")
	changeType, _ := flags.GetString("change-type")
	env, _ := flags.GetString("env")
	tags, _ := flags.GetStringSlice("tag")

	return migrator.MigrationRequest{
		SourceConnectionID: source,
		TargetConnectionID: target,
		Options: migrator.MigrationOptions{
			IncludeRollback:  rollback,
			StopOnFirstError: stopOnError,
			BusinessRules:    rules,
			FailOnWarnings:   failOnWarnings,
			ComparisonMode:   types.ComparisonMode(mode),
		},
		Metadata: migrator.MigrationMetadata{
			Author:        author,
			Justification: justification,
			ChangeType:    changeType,
			Environment:   env,
			Tags:          tags,
		},
	}, nil
}
