// Package agdb implements an embedded graph database core: a directed
// multigraph of typed key-value elements, persisted to a single file with
// WAL-based crash recovery, queried through a closed set of batched
// operations (see internal/query).
package agdb

import (
	"fmt"
	"log"
	"os"

	"github.com/agdb-go/agdb/internal/graph"
	"github.com/agdb-go/agdb/internal/query"
	"github.com/agdb-go/agdb/internal/storage/backend"
	"github.com/agdb-go/agdb/internal/storage/record"
	"github.com/agdb-go/agdb/internal/storage/serialize"
	"github.com/agdb-go/agdb/internal/storage/wal"
	"github.com/agdb-go/agdb/internal/value"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// headerSize is the root record's fixed layout: five logical indices
// (graph, catalogue, aliases, indexes, element store), each an 8-byte
// pointer into the record store.
const headerSize = 8 * 5

// rootIndex is the record store's second bootstrap slot: a fixed,
// well-known location for Db's own header, allocated immediately after the
// store's internal index-table bootstrap record.
const rootIndex = int64(1)

// Options configures how a Db opens its backing file (spec.md §4.1, §6).
type Options struct {
	// Mapped selects a memory-mapped backend over a buffered file one.
	// Ignored for in-memory databases (see OpenMemory).
	Mapped bool
}

// Db is one open embedded database: a record store plus the graph, value
// catalogue, alias table, secondary indices and element attribute store
// layered on top of it, wired by internal/query's Executor into a single
// unit of transactional execution (spec.md §5 "Db owns every component").
type Db struct {
	store *record.Store
	exec  *query.Executor

	g    *graph.Graph
	cat  *value.Catalogue
	als  *value.Aliases
	idx  *value.Indexes
	vals *query.ElementStore
}

// Open opens the database file at name, creating a fresh one if it does not
// exist yet. The backend kind follows the backend.ParseName prefix
// convention; opts.Mapped turns an unprefixed or "file:" name into a
// memory-mapped backend.
func Open(name string, opts Options) (*Db, error) {
	kind, stripped := backend.ParseName(name)
	if opts.Mapped && kind == backend.KindFile {
		kind = backend.KindMapped
	}
	store, err := record.Open(kind, stripped)
	if err != nil {
		return nil, fmt.Errorf("agdb: open %q: %w", name, err)
	}
	return attach(store)
}

// OpenMemory opens a non-persistent, in-memory database, primarily for
// tests and scratch use (spec.md §4.1 "KindMemory").
func OpenMemory(label string) (*Db, error) {
	store, err := record.Open(backend.KindMemory, label)
	if err != nil {
		return nil, fmt.Errorf("agdb: open memory %q: %w", label, err)
	}
	return attach(store)
}

func attach(store *record.Store) (*Db, error) {
	if store.Exists(rootIndex) {
		return openExisting(store)
	}
	return createFresh(store)
}

func createFresh(store *record.Store) (*Db, error) {
	// Reserve rootIndex before any component allocates its own header, so
	// the placeholder lands at the fixed slot attach() checks on the next
	// open. It is filled in below once every header index is known.
	placeholder, err := store.Insert(make([]byte, headerSize))
	if err != nil {
		return nil, err
	}
	if placeholder != rootIndex {
		return nil, fmt.Errorf("agdb: root header landed at index %d, want %d", placeholder, rootIndex)
	}

	g, err := graph.New(store)
	if err != nil {
		return nil, err
	}
	cat, err := value.New(store)
	if err != nil {
		return nil, err
	}
	als, err := value.NewAliases(store)
	if err != nil {
		return nil, err
	}
	idx, err := value.NewIndexes(store)
	if err != nil {
		return nil, err
	}
	vals, err := query.NewElementStore(store)
	if err != nil {
		return nil, err
	}
	db := &Db{store: store, g: g, cat: cat, als: als, idx: idx, vals: vals}
	if err := db.persistHeader(); err != nil {
		return nil, err
	}
	db.exec = query.NewExecutor(store, g, cat, als, idx, vals)
	return db, nil
}

func openExisting(store *record.Store) (*Db, error) {
	raw, err := store.Value(rootIndex)
	if err != nil {
		return nil, err
	}
	if len(raw) != headerSize {
		return nil, fmt.Errorf("agdb: corrupt root header: got %d bytes, want %d", len(raw), headerSize)
	}
	g, err := graph.Open(store, serialize.I64(raw[0:]))
	if err != nil {
		return nil, err
	}
	cat, err := value.Open(store, serialize.I64(raw[8:]))
	if err != nil {
		return nil, err
	}
	als, err := value.OpenAliases(store, serialize.I64(raw[16:]))
	if err != nil {
		return nil, err
	}
	idx, err := value.OpenIndexes(store, serialize.I64(raw[24:]))
	if err != nil {
		return nil, err
	}
	vals, err := query.OpenElementStore(store, serialize.I64(raw[32:]))
	if err != nil {
		return nil, err
	}
	db := &Db{store: store, g: g, cat: cat, als: als, idx: idx, vals: vals}
	db.exec = query.NewExecutor(store, g, cat, als, idx, vals)
	return db, nil
}

func (db *Db) persistHeader() error {
	b := make([]byte, headerSize)
	serialize.PutI64(b[0:], db.g.HeaderIndex())
	serialize.PutI64(b[8:], db.cat.HeaderIndex())
	serialize.PutI64(b[16:], db.als.HeaderIndex())
	serialize.PutI64(b[24:], db.idx.HeaderIndex())
	serialize.PutI64(b[32:], db.vals.HeaderIndex())
	_, err := db.store.Replace(rootIndex, b)
	return err
}

// Exec runs queries as a single batch transaction and returns one
// QueryResult per query (spec.md §4.8 "Each is executed as a single
// transaction"). A failing query rolls back the whole batch.
func (db *Db) Exec(queries ...query.Query) ([]query.QueryResult, error) {
	results, err := db.exec.Exec(queries)
	if err != nil {
		log.Printf("agdb: exec of %d quer(y/ies) failed: %v", len(queries), err)
	}
	return results, err
}

// Filename returns the backing store's identifying name.
func (db *Db) Filename() string { return db.store.Name() }

// OptimizeStorage compacts the record store in place, reclaiming space left
// by removed or resized records (spec.md §4.2 "ShrinkToFit").
func (db *Db) OptimizeStorage() error {
	return db.store.ShrinkToFit()
}

// Backup copies the current durable content of the database, and its WAL
// sidecar, to target (and target's WAL sibling name) without disturbing
// this Db's identity (spec.md §4.1 "Backup"). The main file is staged under
// an unguessable name and renamed into place so a crash mid-backup never
// leaves a half-written target.
func (db *Db) Backup(target string) error {
	staging := fmt.Sprintf("%s.backup-%s", target, uuid.NewString())

	var g errgroup.Group
	g.Go(func() error { return db.store.Backend().Backup(staging) })
	g.Go(func() error {
		w := db.store.WAL()
		if w == nil || w.Backend().IsEmpty() {
			return nil
		}
		return w.Backend().Backup(wal.SiblingName(target))
	})
	if err := g.Wait(); err != nil {
		_ = os.Remove(staging)
		return err
	}
	return os.Rename(staging, target)
}

// Close releases the database's backing OS resources: the main backend and
// its WAL sidecar. It does not commit or flush anything itself.
func (db *Db) Close() error {
	return db.store.Close()
}
