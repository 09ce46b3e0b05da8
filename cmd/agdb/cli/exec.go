package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/agdb-go/agdb/internal/query"
	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec [batch.json]",
	Short: "Run a batch of queries read from a JSON file and print the results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read batch: %w", err)
		}
		var specs []querySpec
		if err := json.Unmarshal(raw, &specs); err != nil {
			return fmt.Errorf("parse batch: %w", err)
		}

		queries := make([]query.Query, len(specs))
		for i, s := range specs {
			queries[i] = s.toQuery()
		}

		db, err := open()
		if err != nil {
			return err
		}
		defer db.Close()

		results, err := db.Exec(queries...)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}

		out := make([]resultSpec, len(results))
		for i, r := range results {
			out[i] = fromQueryResult(r)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}
