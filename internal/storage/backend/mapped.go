package backend

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mappedBackend is a memory-mapped-file-backed backend: open-or-create the
// file, unix.Mmap it PROT_READ|PROT_WRITE/MAP_SHARED, and let writes go
// straight into the mapping. Flush calls unix.Msync instead of relying on
// process exit, since the record store's crash-recovery contract needs an
// explicit durability point.
//
// Mmap requires a non-zero length, so an empty backend keeps data == nil
// until the first Resize/Write grows it.
type mappedBackend struct {
	name string
	f    *os.File
	data []byte // nil when the backend is empty
}

func openMapped(name string) (*mappedBackend, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("backend: open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("backend: stat %s: %w", name, err)
	}
	m := &mappedBackend{name: name, f: f}
	if info.Size() > 0 {
		if err := m.remap(info.Size()); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return m, nil
}

func (m *mappedBackend) remap(newLen int64) error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return fmt.Errorf("backend: munmap %s: %w", m.name, err)
		}
		m.data = nil
	}
	if newLen == 0 {
		return nil
	}
	data, err := unix.Mmap(int(m.f.Fd()), 0, int(newLen), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("backend: mmap %s (%d bytes): %w", m.name, newLen, err)
	}
	m.data = data
	return nil
}

func (m *mappedBackend) Read(pos, length int64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	if pos < 0 || length < 0 || pos+length > int64(len(m.data)) {
		return nil, &ErrOutOfBounds{Pos: pos, Length: length, Len: int64(len(m.data))}
	}
	out := make([]byte, length)
	copy(out, m.data[pos:pos+length])
	return out, nil
}

func (m *mappedBackend) Write(pos int64, b []byte) error {
	if pos < 0 {
		return fmt.Errorf("backend: negative write position %d", pos)
	}
	end := pos + int64(len(b))
	if end > int64(len(m.data)) {
		if err := m.Resize(end); err != nil {
			return err
		}
	}
	copy(m.data[pos:end], b)
	return nil
}

func (m *mappedBackend) Resize(newLen int64) error {
	if newLen < 0 {
		return fmt.Errorf("backend: negative resize length %d", newLen)
	}
	if newLen == int64(len(m.data)) {
		return nil
	}
	if err := m.f.Truncate(newLen); err != nil {
		return fmt.Errorf("backend: truncate %s to %d: %w", m.name, newLen, err)
	}
	return m.remap(newLen)
}

func (m *mappedBackend) Len() int64    { return int64(len(m.data)) }
func (m *mappedBackend) IsEmpty() bool { return len(m.data) == 0 }
func (m *mappedBackend) Name() string  { return m.name }

func (m *mappedBackend) Flush() error {
	if m.data == nil {
		return nil
	}
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("backend: msync %s: %w", m.name, err)
	}
	return nil
}

func (m *mappedBackend) Close() error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return fmt.Errorf("backend: munmap %s: %w", m.name, err)
		}
		m.data = nil
	}
	return m.f.Close()
}

func (m *mappedBackend) Rename(newName string) error {
	if err := m.Close(); err != nil {
		return fmt.Errorf("backend: close %s before rename: %w", m.name, err)
	}
	if err := os.Rename(m.name, newName); err != nil {
		return fmt.Errorf("backend: rename %s to %s: %w", m.name, newName, err)
	}
	reopened, err := openMapped(newName)
	if err != nil {
		return err
	}
	*m = *reopened
	return nil
}

func (m *mappedBackend) Backup(target string) error {
	if err := m.Flush(); err != nil {
		return err
	}
	return copyFile(m.name, target)
}

func (m *mappedBackend) Copy(target string) (Backend, error) {
	if err := m.Backup(target); err != nil {
		return nil, err
	}
	return openMapped(target)
}
