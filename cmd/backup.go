package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup <connection> [comment]",
	Short: "Back up a connection's table data",
	Long: `Create a manual backup of every table in <connection>.
The backup is written as JSON to the backup directory from your config
with a timestamp-based filename.

Examples:
  graftflow backup prod "before major update"
  graftflow backup prod  # Creates backup with default comment`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.requireConnection(args[0]); err != nil {
			return err
		}

		comment := "Manual backup"
		if len(args) > 1 {
			comment = strings.Join(args[1:], " ")
		}

		ctx := cmd.Context()
		conn, err := a.resolver.Descriptor(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve connection %s: %w", args[0], err)
		}

		path, err := a.backup.CreateBackup(ctx, conn, comment)
		if err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		a.resolver.MarkConnected(args[0])

		if path == "" {
			color.Yellow("⚠️  %s has no tables, nothing to back up", args[0])
			return nil
		}
		color.Green("✅ Backup created: %s", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
