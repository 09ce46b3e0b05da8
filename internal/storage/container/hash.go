package container

import "hash/fnv"

// StableHash is the deterministic hash consumed by HashMap/MultiMap. FNV-1a
// has no per-process seed (unlike Go's runtime maphash), so two processes
// hashing the same bytes always agree.
func StableHash(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
