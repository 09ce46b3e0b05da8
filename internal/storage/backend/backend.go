// Package backend implements the byte backend described in spec.md §4.1: a
// contiguous, resizeable byte array with read/write/resize/flush/rename/
// backup/copy, in three variants (file, memory-mapped file, in-memory
// buffer). Backend is an interface implemented by three unexported types;
// New is the only constructor, so callers never see the concrete variant.
// Calls go through ordinary interface dispatch.
package backend

import "fmt"

// Kind selects which concrete byte backend a Backend wraps.
type Kind int

const (
	// KindFile is a buffered, regular-file-backed backend.
	KindFile Kind = iota
	// KindMapped is a memory-mapped-file-backed backend.
	KindMapped
	// KindMemory is an in-memory, non-persistent backend for tests and
	// ephemeral databases.
	KindMemory
)

// Prefixes recognised by the embedding server wrapper (spec.md §4.1) when
// choosing a backend kind from a configured name.
const (
	PrefixMapped = "mapped:"
	PrefixMemory = "memory:"
	PrefixFile   = "file:"
)

// ParseName strips a recognised prefix from name and returns the backend
// kind it selects, defaulting to KindFile when no prefix is present.
func ParseName(name string) (Kind, string) {
	switch {
	case hasPrefix(name, PrefixMapped):
		return KindMapped, name[len(PrefixMapped):]
	case hasPrefix(name, PrefixMemory):
		return KindMemory, name[len(PrefixMemory):]
	case hasPrefix(name, PrefixFile):
		return KindFile, name[len(PrefixFile):]
	default:
		return KindFile, name
	}
}

func hasPrefix(s, p string) bool {
	return len(s) >= len(p) && s[:len(p)] == p
}

// Backend is the byte-addressable storage primitive the record store is
// built on. Every method is safe for the record store's own single-writer,
// multi-reader discipline (spec.md §5) but is not itself reentrant: the
// caller serialises writes.
type Backend interface {
	// Read returns a copy of the len bytes starting at pos. Reading past
	// the current length is an error; reading a zero length never errors.
	Read(pos, length int64) ([]byte, error)
	// Write writes b at pos, extending the backend if pos+len(b) exceeds
	// the current length.
	Write(pos int64, b []byte) error
	// Resize grows or shrinks the backend to exactly newLen bytes.
	Resize(newLen int64) error
	// Len returns the current logical length.
	Len() int64
	// Flush durably persists every byte previously written.
	Flush() error
	// IsEmpty reports whether the backend currently holds zero bytes.
	IsEmpty() bool
	// Name returns the backend's identifying name (file path, or an
	// opaque label for in-memory backends).
	Name() string
	// Rename changes the backend's durable identity to newName.
	Rename(newName string) error
	// Backup flushes and copies the backend's current content to target,
	// without altering this backend's identity.
	Backup(target string) error
	// Copy is Backup followed by opening target as a fresh Backend of the
	// same kind for the file-backed variants; the in-memory variant
	// returns an in-memory clone labelled target and touches no file.
	Copy(target string) (Backend, error)
	// Close releases any OS resources (file handles, mappings).
	Close() error
}

// New opens or creates a Backend of the given kind at name. For KindMemory,
// name is just a label; no file is touched.
func New(kind Kind, name string) (Backend, error) {
	switch kind {
	case KindFile:
		return openFile(name)
	case KindMapped:
		return openMapped(name)
	case KindMemory:
		return newMemory(name), nil
	default:
		return nil, fmt.Errorf("backend: unknown kind %d", kind)
	}
}

// ErrOutOfBounds is returned by Read when [pos, pos+length) does not lie
// entirely within [0, Len()).
type ErrOutOfBounds struct {
	Pos, Length, Len int64
}

func (e *ErrOutOfBounds) Error() string {
	return fmt.Sprintf("backend: read [%d, %d) out of bounds (len=%d)", e.Pos, e.Pos+e.Length, e.Len)
}
