package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Compact the database file in place, reclaiming space from removed records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := open()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.OptimizeStorage(); err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
		fmt.Printf("optimized %s\n", db.Filename())
		return nil
	},
}
