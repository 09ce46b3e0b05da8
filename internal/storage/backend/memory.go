package backend

import "fmt"

// memoryBackend is an in-memory Backend used for tests and ephemeral
// databases (spec.md §4.1 variant (c)). Flush is a no-op: there is nothing
// to persist.
type memoryBackend struct {
	name string
	data []byte
}

func newMemory(name string) *memoryBackend {
	return &memoryBackend{name: name}
}

func (m *memoryBackend) Read(pos, length int64) ([]byte, error) {
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

func (m *memoryBackend) Write(pos int64, b []byte) error {
	if pos < 0 {
		return fmt.Errorf("backend: negative write position %d", pos)
	}
	end := pos + int64(len(b))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[pos:end], b)
	return nil
}

func (m *memoryBackend) Resize(newLen int64) error {
	if newLen < 0 {
		return fmt.Errorf("backend: negative resize length %d", newLen)
	}
	if newLen == int64(len(m.data)) {
		return nil
	}
	grown := make([]byte, newLen)
	copy(grown, m.data)
	m.data = grown
	return nil
}

func (m *memoryBackend) Len() int64    { return int64(len(m.data)) }
func (m *memoryBackend) IsEmpty() bool { return len(m.data) == 0 }
func (m *memoryBackend) Name() string  { return m.name }
func (m *memoryBackend) Flush() error  { return nil }
func (m *memoryBackend) Close() error  { return nil }

func (m *memoryBackend) Rename(newName string) error {
	m.name = newName
	return nil
}

func (m *memoryBackend) Backup(target string) error {
	return fmt.Errorf("backend: memory backend %q cannot be backed up to a file (use Copy)", m.name)
}

func (m *memoryBackend) Copy(target string) (Backend, error) {
	clone := &memoryBackend{name: target, data: make([]byte, len(m.data))}
	copy(clone.data, m.data)
	return clone, nil
}
