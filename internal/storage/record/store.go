// Package record implements the record store described in spec.md §4.3: it
// maps opaque logical indices to variable-length byte records inside a
// backend.Backend, journalling every mutation to a wal.Wal first so a torn
// transaction can be rolled back on next open.
//
// The index table (logical index → (position, size)) is itself persisted
// inside the backend, at a fixed bootstrap location (spec.md §9,
// "self-referential index table"): byte offset 0 holds a small, never-
// relocated 16-byte pointer (position, size) to the current index-table
// record; that record is an ordinary, relocatable record like any other,
// tagged with the reserved logical index bootstrapIndex so it is never
// confused with user data and never swept by a sequential scan.
package record

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agdb-go/agdb/internal/storage/backend"
	"github.com/agdb-go/agdb/internal/storage/serialize"
	"github.com/agdb-go/agdb/internal/storage/wal"
)

// HeaderSize is the fixed size of a record header: i64 logical index, u64
// size (spec.md §4.3 "Policies").
const HeaderSize = 16

// bootstrapIndex is the reserved logical index tagging the header of the
// index-table record itself. It is never returned by Insert and never
// appears in Store.records.
const bootstrapIndex int64 = -1

// invalidIndex is written into a header's index field on removal. Per
// spec.md §6, any header with logical_index <= 0 is a gap, ignored on scan.
const invalidIndex int64 = 0

const bootstrapPointerSize = 16 // raw (i64 pos, u64 size), not a record header

type entry struct {
	pos  int64
	size int64
}

// Store is the append-only, transactional record store. It owns a single
// backend.Backend and wal.Wal; all mutating operations run inside a
// reference-counted transaction (spec.md §5) so nested callers never commit
// prematurely.
type Store struct {
	be   backend.Backend
	wal  *wal.Wal
	kind backend.Kind

	records   map[int64]entry
	freeList  []int64
	nextIndex int64

	bootstrapPos  int64
	bootstrapSize int64

	txDepth int
	cache   *lru.Cache[int64, []byte]
}

// Open opens (creating if absent) a record store backed by a backend of the
// given kind at name, replaying any pending WAL first (spec.md §4.2/§7).
func Open(kind backend.Kind, name string) (*Store, error) {
	be, err := backend.New(kind, name)
	if err != nil {
		return nil, fmt.Errorf("record: open backend %s: %w", name, err)
	}
	w, err := wal.Open(kind, name)
	if err != nil {
		_ = be.Close()
		return nil, fmt.Errorf("record: open wal for %s: %w", name, err)
	}
	if !w.IsEmpty() {
		if err := w.Replay(be); err != nil {
			_ = be.Close()
			_ = w.Close()
			return nil, fmt.Errorf("record: replay wal for %s: %w", name, err)
		}
	}

	cache, err := lru.New[int64, []byte](1024)
	if err != nil {
		_ = be.Close()
		_ = w.Close()
		return nil, fmt.Errorf("record: create cache: %w", err)
	}

	s := &Store{
		be:       be,
		wal:      w,
		kind:     kind,
		records:  make(map[int64]entry),
		freeList: nil,
		cache:    cache,
	}

	if be.IsEmpty() {
		if err := s.initBootstrap(); err != nil {
			_ = be.Close()
			_ = w.Close()
			return nil, err
		}
		return s, nil
	}

	if err := s.loadBootstrap(); err != nil {
		_ = be.Close()
		_ = w.Close()
		return nil, err
	}
	return s, nil
}

// Name returns the backing file/label name.
func (s *Store) Name() string { return s.be.Name() }

// Backend exposes the underlying byte backend, for callers (e.g. Db.Backup)
// that need Flush/Backup/Copy directly.
func (s *Store) Backend() backend.Backend { return s.be }

// WAL exposes the store's write-ahead log, for callers that need to copy
// its sidecar backend alongside the main one.
func (s *Store) WAL() *wal.Wal { return s.wal }

func (s *Store) initBootstrap() error {
	s.bootstrapPos = 0
	// Reserve the pointer bytes first so the index-table record lands after them.
	if err := s.journalWrite(0, make([]byte, bootstrapPointerSize)); err != nil {
		return fmt.Errorf("record: reserve bootstrap pointer: %w", err)
	}
	payload := s.encodeIndexTable()
	if err := s.writeBootstrapRecord(payload); err != nil {
		return err
	}
	return nil
}

func (s *Store) loadBootstrap() error {
	ptr, err := s.be.Read(0, bootstrapPointerSize)
	if err != nil {
		return fmt.Errorf("record: read bootstrap pointer: %w", err)
	}
	pos := serialize.I64(ptr)
	size := serialize.I64(ptr[8:])

	header, err := s.be.Read(pos, HeaderSize)
	if err != nil {
		return fmt.Errorf("record: read bootstrap header at %d: %w", pos, err)
	}
	idx := serialize.I64(header)
	if idx != bootstrapIndex {
		return fmt.Errorf("record: corrupt bootstrap record at %d: index %d != %d", pos, idx, bootstrapIndex)
	}
	payload, err := s.be.Read(pos+HeaderSize, size)
	if err != nil {
		return fmt.Errorf("record: read bootstrap payload at %d: %w", pos, err)
	}

	s.bootstrapPos = pos
	s.bootstrapSize = size
	return s.decodeIndexTable(payload)
}

// encodeIndexTable serialises the live records map as count + sorted
// triples (logical_index, position, size), per spec.md §6.
func (s *Store) encodeIndexTable() []byte {
	type triple struct {
		index, pos, size int64
	}
	triples := make([]triple, 0, len(s.records))
	for idx, e := range s.records {
		triples = append(triples, triple{idx, e.pos, e.size})
	}
	// Deterministic order (by index) keeps successive bootstrap writes
	// byte-stable for otherwise-unchanged tables.
	for i := 1; i < len(triples); i++ {
		for j := i; j > 0 && triples[j].index < triples[j-1].index; j-- {
			triples[j], triples[j-1] = triples[j-1], triples[j]
		}
	}

	out := make([]byte, 8, 8+len(triples)*24)
	serialize.PutU64(out, uint64(len(triples)))
	for _, t := range triples {
		b := make([]byte, 24)
		serialize.PutI64(b, t.index)
		serialize.PutU64(b[8:], uint64(t.pos))
		serialize.PutU64(b[16:], uint64(t.size))
		out = append(out, b...)
	}
	return out
}

// decodeIndexTable parses the bootstrap payload and reconstructs records,
// freeList and nextIndex. The free list is not itself persisted: it is
// rebuilt from the gaps in 1..maxIndex, which is functionally equivalent
// (any cycle-free source of reusable indices satisfies spec.md invariant 2)
// and matches the reconstruction the original Rust sources perform
// (FileRecords::from / StorageRecords::from in original_source/).
func (s *Store) decodeIndexTable(payload []byte) error {
	if len(payload) < 8 {
		return fmt.Errorf("record: truncated index table")
	}
	count := serialize.U64(payload)
	off := 8
	live := make(map[int64]entry, count)
	var maxIndex int64
	for i := uint64(0); i < count; i++ {
		if off+24 > len(payload) {
			return fmt.Errorf("record: truncated index table triple %d", i)
		}
		idx := serialize.I64(payload[off:])
		pos := int64(serialize.U64(payload[off+8:]))
		size := int64(serialize.U64(payload[off+16:]))
		off += 24
		if idx <= 0 {
			continue
		}
		live[idx] = entry{pos: pos, size: size}
		if idx > maxIndex {
			maxIndex = idx
		}
	}
	var free []int64
	for i := int64(1); i <= maxIndex; i++ {
		if _, ok := live[i]; !ok {
			free = append(free, i)
		}
	}
	s.records = live
	s.freeList = free
	s.nextIndex = maxIndex
	return nil
}

func (s *Store) writeBootstrapPointer(pos, size int64) error {
	b := make([]byte, bootstrapPointerSize)
	serialize.PutI64(b, pos)
	serialize.PutI64(b[8:], size)
	if err := s.journalWrite(0, b); err != nil {
		return fmt.Errorf("record: write bootstrap pointer: %w", err)
	}
	return nil
}

// writeBootstrapRecord writes (or relocates) the index-table record to hold
// payload, then repoints the bootstrap pointer at offset 0.
func (s *Store) writeBootstrapRecord(payload []byte) error {
	if s.bootstrapSize != 0 && int64(len(payload)) <= s.bootstrapSize && s.bootstrapPos != 0 {
		// Fits in place (only true after the very first write, since a
		// fresh store has bootstrapPos==0 and must still write the header).
		if err := s.journalWrite(s.bootstrapPos+HeaderSize, payload); err != nil {
			return err
		}
		return s.writeBootstrapPointer(s.bootstrapPos, int64(len(payload)))
	}

	newPos := s.be.Len()
	header := make([]byte, HeaderSize)
	serialize.PutI64(header, bootstrapIndex)
	serialize.PutU64(header[8:], uint64(len(payload)))
	if err := s.journalWrite(newPos, append(header, payload...)); err != nil {
		return fmt.Errorf("record: append bootstrap record: %w", err)
	}
	if s.bootstrapPos != 0 || s.bootstrapSize != 0 {
		if err := s.invalidateHeader(s.bootstrapPos); err != nil {
			return err
		}
	}
	s.bootstrapPos = newPos
	s.bootstrapSize = int64(len(payload))
	return s.writeBootstrapPointer(newPos, s.bootstrapSize)
}

func (s *Store) persistIndexTable() error {
	return s.writeBootstrapRecord(s.encodeIndexTable())
}

// --- transactions -----------------------------------------------------

// Transaction begins an outer or nested transaction scope. Call Commit to
// end it; nested begin/end pairs are reference-counted so only the
// outermost Commit actually clears the WAL and flushes (spec.md §5).
func (s *Store) Transaction() { s.txDepth++ }

// Commit ends one transaction scope. At depth zero it clears the WAL and
// flushes the backend, per spec.md §4.2.
func (s *Store) Commit() error {
	if s.txDepth == 0 {
		return fmt.Errorf("record: commit without matching transaction")
	}
	s.txDepth--
	if s.txDepth > 0 {
		return nil
	}
	if err := s.be.Flush(); err != nil {
		return fmt.Errorf("record: flush backend on commit: %w", err)
	}
	if err := s.wal.Commit(); err != nil {
		return fmt.Errorf("record: clear wal on commit: %w", err)
	}
	return nil
}

// Rollback discards the in-progress transaction by replaying the WAL back
// onto the backend and resetting in-memory state from the result. Callers
// (the query executor/transaction coordinator) invoke this when a mutating
// operation returns an error mid-transaction.
func (s *Store) Rollback() error {
	s.txDepth = 0
	if err := s.wal.Replay(s.be); err != nil {
		return fmt.Errorf("record: rollback replay: %w", err)
	}
	s.cache.Purge()
	return s.loadBootstrap()
}

func (s *Store) journalWrite(pos int64, data []byte) error {
	if err := s.wal.JournalWrite(s.be, pos, int64(len(data))); err != nil {
		return err
	}
	return s.be.Write(pos, data)
}

func (s *Store) invalidateHeader(pos int64) error {
	b := make([]byte, 8)
	serialize.PutI64(b, invalidIndex)
	return s.journalWrite(pos, b)
}

// --- index allocation --------------------------------------------------

func (s *Store) allocateIndex() int64 {
	if n := len(s.freeList); n > 0 {
		idx := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		return idx
	}
	s.nextIndex++
	return s.nextIndex
}

func (s *Store) releaseIndex(idx int64) {
	s.freeList = append(s.freeList, idx)
}

// --- public record operations -------------------------------------------

// Insert allocates a fresh logical index and appends (header, bytes) at
// end-of-backend, returning the new index.
func (s *Store) Insert(value []byte) (int64, error) {
	s.Transaction()
	defer func() {
		if s.txDepth > 0 {
			s.txDepth--
		}
	}()

	idx := s.allocateIndex()
	pos, err := s.appendRecord(idx, value)
	if err != nil {
		return 0, err
	}
	s.records[idx] = entry{pos: pos, size: int64(len(value))}
	if err := s.persistIndexTable(); err != nil {
		return 0, err
	}
	return idx, s.Commit()
}

func (s *Store) appendRecord(idx int64, payload []byte) (int64, error) {
	pos := s.be.Len()
	header := make([]byte, HeaderSize)
	serialize.PutI64(header, idx)
	serialize.PutU64(header[8:], uint64(len(payload)))
	if err := s.journalWrite(pos, append(header, payload...)); err != nil {
		return 0, fmt.Errorf("record: append record %d: %w", idx, err)
	}
	return pos, nil
}

// InsertAt overwrites bytes at offset inside index's record, relocating and
// growing (zero-padding previously untouched bytes) if offset+len(bytes)
// exceeds the current size. Returns the resulting size.
func (s *Store) InsertAt(idx int64, offset int64, value []byte) (int64, error) {
	e, ok := s.records[idx]
	if !ok {
		return 0, fmt.Errorf("record: insert_at: unknown index %d", idx)
	}
	s.Transaction()
	defer func() {
		if s.txDepth > 0 {
			s.txDepth--
		}
	}()

	required := offset + int64(len(value))
	if required <= e.size {
		if err := s.journalWrite(e.pos+HeaderSize+offset, value); err != nil {
			return 0, fmt.Errorf("record: insert_at %d: %w", idx, err)
		}
		s.cache.Remove(idx)
		return e.size, s.Commit()
	}

	old, err := s.readPayload(e)
	if err != nil {
		return 0, err
	}
	grown := make([]byte, required)
	copy(grown, old)
	copy(grown[offset:], value)

	if err := s.invalidateHeader(e.pos); err != nil {
		return 0, err
	}
	newPos, err := s.appendRecord(idx, grown)
	if err != nil {
		return 0, err
	}
	s.records[idx] = entry{pos: newPos, size: required}
	s.cache.Remove(idx)
	if err := s.persistIndexTable(); err != nil {
		return 0, err
	}
	return required, s.Commit()
}

// Replace overwrites index's whole value with bytes, shrinking or growing
// as needed (spec.md §4.3: insert_at(index, 0, bytes) then resize to
// len(bytes)).
func (s *Store) Replace(idx int64, value []byte) (int64, error) {
	if _, err := s.InsertAt(idx, 0, value); err != nil {
		return 0, err
	}
	return s.ResizeValue(idx, int64(len(value)))
}

// ResizeValue grows or shrinks index's record to newSize, zero-padding on
// grow. Shrinks in place when the record is at end-of-backend, else
// relocates (spec.md §4.3 Policies).
func (s *Store) ResizeValue(idx int64, newSize int64) (int64, error) {
	e, ok := s.records[idx]
	if !ok {
		return 0, fmt.Errorf("record: resize_value: unknown index %d", idx)
	}
	if newSize == e.size {
		return newSize, nil
	}

	s.Transaction()
	defer func() {
		if s.txDepth > 0 {
			s.txDepth--
		}
	}()

	if newSize < e.size && s.isAtEnd(e) {
		newLen := e.pos + HeaderSize + newSize
		if err := s.wal.JournalWrite(s.be, newLen, e.size-newSize); err != nil {
			return 0, fmt.Errorf("record: resize_value %d: %w", idx, err)
		}
		if err := s.be.Resize(newLen); err != nil {
			return 0, fmt.Errorf("record: resize_value %d: %w", idx, err)
		}
		sizeBuf := make([]byte, 8)
		serialize.PutU64(sizeBuf, uint64(newSize))
		if err := s.journalWrite(e.pos+8, sizeBuf); err != nil {
			return 0, err
		}
		s.records[idx] = entry{pos: e.pos, size: newSize}
		s.cache.Remove(idx)
		if err := s.persistIndexTable(); err != nil {
			return 0, err
		}
		return newSize, s.Commit()
	}

	old, err := s.readPayload(e)
	if err != nil {
		return 0, err
	}
	grown := make([]byte, newSize)
	copy(grown, old[:min64(int64(len(old)), newSize)])

	if err := s.invalidateHeader(e.pos); err != nil {
		return 0, err
	}
	newPos, err := s.appendRecord(idx, grown)
	if err != nil {
		return 0, err
	}
	s.records[idx] = entry{pos: newPos, size: newSize}
	s.cache.Remove(idx)
	if err := s.persistIndexTable(); err != nil {
		return 0, err
	}
	return newSize, s.Commit()
}

func (s *Store) isAtEnd(e entry) bool {
	return e.pos+HeaderSize+e.size == s.be.Len()
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Value returns the full byte payload for idx.
func (s *Store) Value(idx int64) ([]byte, error) {
	if cached, ok := s.cache.Get(idx); ok {
		out := make([]byte, len(cached))
		copy(out, cached)
		return out, nil
	}
	e, ok := s.records[idx]
	if !ok {
		return nil, fmt.Errorf("record: value: unknown index %d", idx)
	}
	payload, err := s.readPayload(e)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.cache.Add(idx, cp)
	return payload, nil
}

// ValueAt reads size bytes at offset inside idx's record.
func (s *Store) ValueAt(idx int64, offset, size int64) ([]byte, error) {
	e, ok := s.records[idx]
	if !ok {
		return nil, fmt.Errorf("record: value_at: unknown index %d", idx)
	}
	if offset < 0 || size < 0 || offset+size > e.size {
		return nil, fmt.Errorf("record: value_at %d: [%d,%d) out of bounds (size=%d)", idx, offset, offset+size, e.size)
	}
	return s.be.Read(e.pos+HeaderSize+offset, size)
}

// Size returns the current payload size of idx.
func (s *Store) Size(idx int64) (int64, error) {
	e, ok := s.records[idx]
	if !ok {
		return 0, fmt.Errorf("record: size: unknown index %d", idx)
	}
	return e.size, nil
}

// Exists reports whether idx currently names a live record.
func (s *Store) Exists(idx int64) bool {
	_, ok := s.records[idx]
	return ok
}

func (s *Store) readPayload(e entry) ([]byte, error) {
	return s.be.Read(e.pos+HeaderSize, e.size)
}

// Remove invalidates idx's header and releases the index to the free list.
// Removing an unknown index is a no-op (spec.md §4.5 idempotence applies
// equally here per §7 "idempotent no-ops").
func (s *Store) Remove(idx int64) error {
	e, ok := s.records[idx]
	if !ok {
		return nil
	}
	s.Transaction()
	defer func() {
		if s.txDepth > 0 {
			s.txDepth--
		}
	}()

	if err := s.invalidateHeader(e.pos); err != nil {
		return err
	}
	delete(s.records, idx)
	s.releaseIndex(idx)
	s.cache.Remove(idx)
	if err := s.persistIndexTable(); err != nil {
		return err
	}
	return s.Commit()
}

// ShrinkToFit compacts the backend: records are copied forward in position
// order to eliminate gaps left by invalidated headers, then the backend is
// truncated to the new length (spec.md §4.3, §9 "Free lists vs.
// compaction").
func (s *Store) ShrinkToFit() error {
	s.Transaction()
	defer func() {
		if s.txDepth > 0 {
			s.txDepth--
		}
	}()

	oldLen := s.be.Len()

	type indexed struct {
		idx int64
		e   entry
	}
	ordered := make([]indexed, 0, len(s.records))
	for idx, e := range s.records {
		ordered = append(ordered, indexed{idx, e})
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].e.pos < ordered[j-1].e.pos; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	var cur int64
	for _, it := range ordered {
		if it.e.pos != cur {
			payload, err := s.readPayload(it.e)
			if err != nil {
				return err
			}
			header := make([]byte, HeaderSize)
			serialize.PutI64(header, it.idx)
			serialize.PutU64(header[8:], uint64(it.e.size))
			if err := s.journalWrite(cur, append(header, payload...)); err != nil {
				return fmt.Errorf("record: shrink_to_fit move %d: %w", it.idx, err)
			}
			s.records[it.idx] = entry{pos: cur, size: it.e.size}
		}
		cur += HeaderSize + it.e.size
	}

	// Re-append the index table fresh at the new end, then truncate.
	s.bootstrapPos, s.bootstrapSize = 0, 0
	payload := s.encodeIndexTable()
	header := make([]byte, HeaderSize)
	serialize.PutI64(header, bootstrapIndex)
	serialize.PutU64(header[8:], uint64(len(payload)))
	if err := s.journalWrite(cur, append(header, payload...)); err != nil {
		return fmt.Errorf("record: shrink_to_fit write index table: %w", err)
	}
	s.bootstrapPos = cur
	s.bootstrapSize = int64(len(payload))
	cur += HeaderSize + s.bootstrapSize

	// Journal the tail about to be discarded by Resize, same as
	// ResizeValue's in-place shrink does, so a crash between this point and
	// the truncate below still replays back to the pre-shrink backend.
	if cur < oldLen {
		if err := s.wal.JournalWrite(s.be, cur, oldLen-cur); err != nil {
			return fmt.Errorf("record: shrink_to_fit journal truncate: %w", err)
		}
	}
	if err := s.be.Resize(cur); err != nil {
		return fmt.Errorf("record: shrink_to_fit truncate: %w", err)
	}
	if err := s.writeBootstrapPointer(s.bootstrapPos, s.bootstrapSize); err != nil {
		return err
	}
	s.cache.Purge()
	return s.Commit()
}

// Close releases the store's backend and WAL resources.
func (s *Store) Close() error {
	errBe := s.be.Close()
	errWal := s.wal.Close()
	if errBe != nil {
		return errBe
	}
	return errWal
}
