package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup [target]",
	Short: "Copy the database's current durable content to target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := open()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Backup(args[0]); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		fmt.Printf("backed up %s -> %s\n", db.Filename(), args[0])
		return nil
	},
}
