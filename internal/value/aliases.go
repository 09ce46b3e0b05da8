package value

import (
	"fmt"

	"github.com/agdb-go/agdb/internal/storage/container"
	"github.com/agdb-go/agdb/internal/storage/record"
	"github.com/agdb-go/agdb/internal/storage/serialize"
)

const maxAliasLength = 256

const aliasesHeaderSize = 16

func encodeI64Key(v int64) []byte { return serialize.EncodeI64(v) }
func decodeI64Key(b []byte) int64 { return serialize.I64(b) }
func equalI64(a, b int64) bool    { return a == b }
func equalString(a, b string) bool { return a == b }
func hashI64(v int64) uint64      { return container.StableHash(serialize.EncodeI64(v)) }
func hashString(s string) uint64  { return container.StableHash([]byte(s)) }

// Aliases is the bijective string<->node-index map of spec.md §4.7: a
// persisted hash map string -> node_index, plus its inverse so removing a
// node can clean up its alias without a scan (spec.md §3 "removing a node
// cascades").
type Aliases struct {
	store  *record.Store
	header int64

	byName *container.HashMap[string, int64]
	byNode *container.HashMap[int64, string]
}

// NewAliases creates a fresh, empty alias map.
func NewAliases(store *record.Store) (*Aliases, error) {
	byName, err := container.NewHashMap[string, int64](store, maxAliasLength, 8,
		func(s string) []byte { return []byte(s) },
		func(b []byte) string { return string(b) },
		serialize.EncodeI64, serialize.I64, hashString, equalString)
	if err != nil {
		return nil, fmt.Errorf("value: new aliases: %w", err)
	}
	byNode, err := container.NewHashMap[int64, string](store, 8, maxAliasLength,
		encodeI64Key, decodeI64Key,
		func(s string) []byte { return []byte(s) },
		func(b []byte) string { return string(b) },
		hashI64, equalI64)
	if err != nil {
		return nil, fmt.Errorf("value: new aliases: %w", err)
	}
	a := &Aliases{store: store, byName: byName, byNode: byNode}
	header, err := store.Insert(a.encodeHeader())
	if err != nil {
		return nil, fmt.Errorf("value: new aliases: persist header: %w", err)
	}
	a.header = header
	return a, nil
}

// OpenAliases attaches to an existing alias map by its header index.
func OpenAliases(store *record.Store, headerIndex int64) (*Aliases, error) {
	raw, err := store.Value(headerIndex)
	if err != nil {
		return nil, fmt.Errorf("value: open aliases %d: %w", headerIndex, err)
	}
	byNameIdx := serialize.I64(raw)
	byNodeIdx := serialize.I64(raw[8:])

	byName, err := container.OpenHashMap[string, int64](store, byNameIdx, maxAliasLength, 8,
		func(s string) []byte { return []byte(s) },
		func(b []byte) string { return string(b) },
		serialize.EncodeI64, serialize.I64, hashString, equalString)
	if err != nil {
		return nil, fmt.Errorf("value: open aliases %d: %w", headerIndex, err)
	}
	byNode, err := container.OpenHashMap[int64, string](store, byNodeIdx, 8, maxAliasLength,
		encodeI64Key, decodeI64Key,
		func(s string) []byte { return []byte(s) },
		func(b []byte) string { return string(b) },
		hashI64, equalI64)
	if err != nil {
		return nil, fmt.Errorf("value: open aliases %d: %w", headerIndex, err)
	}
	return &Aliases{store: store, header: headerIndex, byName: byName, byNode: byNode}, nil
}

func (a *Aliases) HeaderIndex() int64 { return a.header }

func (a *Aliases) encodeHeader() []byte {
	b := make([]byte, aliasesHeaderSize)
	serialize.PutI64(b, a.byName.Index())
	serialize.PutI64(b[8:], a.byNode.Index())
	return b
}

// Set binds name to node, replacing any prior binding for either side
// atomically (spec.md §4.7 "Inserting an alias that already exists
// replaces its target atomically").
func (a *Aliases) Set(name string, node int64) error {
	if existingNode, ok, err := a.byName.Get(name); err != nil {
		return err
	} else if ok {
		if err := a.byNode.Remove(existingNode); err != nil {
			return err
		}
	}
	if existingName, ok, err := a.byNode.Get(node); err != nil {
		return err
	} else if ok {
		if err := a.byName.Remove(existingName); err != nil {
			return err
		}
	}
	if err := a.byName.Insert(name, node); err != nil {
		return err
	}
	return a.byNode.Insert(node, name)
}

// Node resolves an alias to its node id.
func (a *Aliases) Node(name string) (int64, bool, error) { return a.byName.Get(name) }

// Name resolves a node id back to its alias, if any.
func (a *Aliases) Name(node int64) (string, bool, error) { return a.byNode.Get(node) }

// Remove unbinds name. A missing name is a silent no-op.
func (a *Aliases) Remove(name string) error {
	node, ok, err := a.byName.Get(name)
	if err != nil || !ok {
		return err
	}
	if err := a.byName.Remove(name); err != nil {
		return err
	}
	return a.byNode.Remove(node)
}

// RemoveNode unbinds whatever alias node holds, if any (called on node
// removal to cascade-clean the alias map).
func (a *Aliases) RemoveNode(node int64) error {
	name, ok, err := a.byNode.Get(node)
	if err != nil || !ok {
		return err
	}
	if err := a.byNode.Remove(node); err != nil {
		return err
	}
	return a.byName.Remove(name)
}
