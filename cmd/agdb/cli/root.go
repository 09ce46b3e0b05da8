// Package cli implements the agdb command's cobra command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version is stamped at build time via -ldflags.
	Version = "dev"
	Commit  = "none"
)

var (
	dbPath string
	mapped bool
)

var rootCmd = &cobra.Command{
	Use:     "agdb",
	Short:   "agdb: embedded graph database core",
	Version: fmt.Sprintf("%s (commit %s)", Version, Commit),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "path to the database file (memory: or mapped: prefix selects a backend)")
	rootCmd.PersistentFlags().BoolVar(&mapped, "mapped", false, "use the memory-mapped backend instead of buffered file I/O")
	rootCmd.MarkPersistentFlagRequired("db")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(backupCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
