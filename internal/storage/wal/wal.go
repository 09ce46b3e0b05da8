// Package wal implements the write-ahead log described in spec.md §4.2: for
// every write the record store is about to make, the WAL first journals the
// pre-image (the bytes currently there, or a sentinel "extend from this
// length" record when the write extends the backend). On Commit the log is
// cleared; on open, a non-empty log is replayed in reverse to undo a torn
// transaction.
//
// Record layout on the sibling file: a sequence of
//
//	u64 position, u64 length, u8 isExtend, length bytes (payload)
//
// "isExtend" records carry no payload: their length field holds the old
// backend length instead, decoded into Record.OldLen, which is what Replay
// truncates to.
package wal

import (
	"fmt"

	"github.com/agdb-go/agdb/internal/storage/backend"
	"github.com/agdb-go/agdb/internal/storage/serialize"
)

// Record is one journalled pre-image.
type Record struct {
	Pos      int64
	IsExtend bool
	// Payload holds the pre-image bytes when !IsExtend.
	Payload []byte
	// OldLen is the backend length to truncate back to when IsExtend.
	OldLen int64
}

// Wal owns the sibling log file/backend and its in-memory record buffer.
// Wal is not safe for concurrent use; callers serialise through the record
// store's transaction discipline (spec.md §5).
type Wal struct {
	kind    backend.Kind
	be      backend.Backend
	records []Record
}

// SiblingName derives the WAL's file name from the main backend's name by
// prefixing the base name with a dot (spec.md §4.2/§6).
func SiblingName(mainName string) string {
	dir, base := splitPath(mainName)
	if dir == "" {
		return "." + base
	}
	return dir + "/." + base
}

func splitPath(name string) (dir, base string) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[:i], name[i+1:]
		}
	}
	return "", name
}

// Open opens (creating if absent) the WAL sibling of mainName using the
// given backend kind, and loads any pending records so the caller can
// decide whether to replay them.
func Open(kind backend.Kind, mainName string) (*Wal, error) {
	name := SiblingName(mainName)
	be, err := backend.New(kind, name)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", name, err)
	}
	w := &Wal{kind: kind, be: be}
	if err := w.load(); err != nil {
		return nil, err
	}
	return w, nil
}

// IsEmpty reports whether the log currently holds no pending records,
// i.e. whether the store is in a committed state (spec.md invariant 4).
func (w *Wal) IsEmpty() bool { return len(w.records) == 0 }

// Records returns the currently pending records in append order.
func (w *Wal) Records() []Record { return w.records }

// Backend exposes the WAL's own sidecar backend, for callers (e.g.
// Db.Backup) that need to copy the sidecar alongside the main file.
func (w *Wal) Backend() backend.Backend { return w.be }

func (w *Wal) load() error {
	n := w.be.Len()
	if n == 0 {
		return nil
	}
	buf, err := w.be.Read(0, n)
	if err != nil {
		return fmt.Errorf("wal: read %s: %w", w.be.Name(), err)
	}
	off := 0
	for off < len(buf) {
		if off+17 > len(buf) {
			return fmt.Errorf("wal: truncated record header at offset %d", off)
		}
		pos := serialize.I64(buf[off:])
		length := serialize.U64(buf[off+8:])
		isExtend := buf[off+16] != 0
		off += 17
		if isExtend {
			w.records = append(w.records, Record{Pos: pos, IsExtend: true, OldLen: int64(length)})
			continue
		}
		if off+int(length) > len(buf) {
			return fmt.Errorf("wal: truncated payload at offset %d", off)
		}
		payload := make([]byte, length)
		copy(payload, buf[off:off+int(length)])
		off += int(length)
		w.records = append(w.records, Record{Pos: pos, Payload: payload})
	}
	return nil
}

// JournalWrite records the pre-image for an upcoming write to [pos,
// pos+length) by reading what the backend currently holds there (or
// emitting an IsExtend record if the write would extend the backend).
func (w *Wal) JournalWrite(target backend.Backend, pos, length int64) error {
	curLen := target.Len()
	if pos >= curLen {
		return w.append(Record{Pos: pos, IsExtend: true, OldLen: curLen})
	}
	end := pos + length
	preLen := length
	var extendAfter *Record
	if end > curLen {
		preLen = curLen - pos
		extendAfter = &Record{Pos: curLen, IsExtend: true, OldLen: curLen}
	}
	pre, err := target.Read(pos, preLen)
	if err != nil {
		return fmt.Errorf("wal: read pre-image at %d: %w", pos, err)
	}
	if err := w.append(Record{Pos: pos, Payload: pre}); err != nil {
		return err
	}
	if extendAfter != nil {
		return w.append(*extendAfter)
	}
	return nil
}

func (w *Wal) append(r Record) error {
	var buf []byte
	if r.IsExtend {
		buf = make([]byte, 17)
		serialize.PutI64(buf, r.Pos)
		serialize.PutU64(buf[8:], uint64(r.OldLen))
		buf[16] = 1
	} else {
		buf = make([]byte, 17+len(r.Payload))
		serialize.PutI64(buf, r.Pos)
		serialize.PutU64(buf[8:], uint64(len(r.Payload)))
		buf[16] = 0
		copy(buf[17:], r.Payload)
	}
	if err := w.be.Write(w.be.Len(), buf); err != nil {
		return fmt.Errorf("wal: append record: %w", err)
	}
	w.records = append(w.records, r)
	return nil
}

// Commit clears the log: truncate the physical size to zero and flush.
func (w *Wal) Commit() error {
	if err := w.be.Resize(0); err != nil {
		return fmt.Errorf("wal: clear %s: %w", w.be.Name(), err)
	}
	if err := w.be.Flush(); err != nil {
		return fmt.Errorf("wal: flush %s after clear: %w", w.be.Name(), err)
	}
	w.records = nil
	return nil
}

// Replay applies every pending record to target in reverse order (most
// recent first), restoring the pre-transaction state, then clears the log.
// Called on Open when a non-empty WAL is found (spec.md §4.2/§7).
func (w *Wal) Replay(target backend.Backend) error {
	for i := len(w.records) - 1; i >= 0; i-- {
		r := w.records[i]
		if r.IsExtend {
			if err := target.Resize(r.OldLen); err != nil {
				return fmt.Errorf("wal: replay truncate to %d: %w", r.OldLen, err)
			}
			continue
		}
		if err := target.Write(r.Pos, r.Payload); err != nil {
			return fmt.Errorf("wal: replay write at %d: %w", r.Pos, err)
		}
	}
	if err := target.Flush(); err != nil {
		return fmt.Errorf("wal: flush target after replay: %w", err)
	}
	return w.Commit()
}

// Close releases the WAL's backend resources.
func (w *Wal) Close() error { return w.be.Close() }
