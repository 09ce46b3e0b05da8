package value

import "github.com/agdb-go/agdb/internal/storage/container"

func stableHashBytes(b []byte) uint64 { return container.StableHash(b) }
