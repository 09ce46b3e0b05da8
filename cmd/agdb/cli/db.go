package cli

import "github.com/agdb-go/agdb"

func open() (*agdb.Db, error) {
	return agdb.Open(dbPath, agdb.Options{Mapped: mapped})
}
