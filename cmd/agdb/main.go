// Command agdb is a thin CLI over the embedded database core: open a file,
// run a batch of queries read from JSON, print the results, optionally
// compact or back up the file. It exists to exercise Db.Exec end to end,
// not as a full query language front end.
package main

import (
	"fmt"
	"os"

	"github.com/agdb-go/agdb/cmd/agdb/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
