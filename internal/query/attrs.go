package query

import "github.com/agdb-go/agdb/internal/value"

// indexKeyString is the canonical string form of an attribute key used as
// the secondary-index directory key: the key's own wire encoding, so any
// DbValue (not just strings) can name an attribute consistently.
func indexKeyString(key value.DbValue) (string, error) {
	b, err := key.MarshalAgdb()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// setAttr writes or overwrites id's kv.Key attribute, interning handles and
// maintaining any secondary index over kv.Key (spec.md §4.7 "Maintained
// automatically when an element's key of that name is set").
func (ex *Executor) setAttr(id int64, kv KeyValue) error {
	keyStr, err := indexKeyString(kv.Key)
	if err != nil {
		return err
	}
	entries, err := ex.vals.entriesOf(id)
	if err != nil {
		return err
	}
	for _, e := range entries {
		existingKey, err := ex.cat.Value(e.keyHandle)
		if err != nil {
			return err
		}
		if !existingKey.Equal(kv.Key) {
			continue
		}
		existingVal, err := ex.cat.Value(e.valHandle)
		if err != nil {
			return err
		}
		if existingVal.Equal(kv.Value) {
			return nil
		}
		newValHandle, err := ex.cat.Intern(kv.Value)
		if err != nil {
			return err
		}
		if _, err := ex.vals.set(id, e.keyHandle, newValHandle); err != nil {
			return err
		}
		if has, err := ex.idx.HasIndex(keyStr); err != nil {
			return err
		} else if has {
			if err := ex.idx.Remove(keyStr, e.valHandle, id); err != nil {
				return err
			}
			if err := ex.idx.Add(keyStr, newValHandle, id); err != nil {
				return err
			}
		}
		return ex.cat.Release(e.valHandle)
	}

	keyHandle, err := ex.cat.Intern(kv.Key)
	if err != nil {
		return err
	}
	valHandle, err := ex.cat.Intern(kv.Value)
	if err != nil {
		return err
	}
	if _, err := ex.vals.set(id, keyHandle, valHandle); err != nil {
		return err
	}
	if has, err := ex.idx.HasIndex(keyStr); err != nil {
		return err
	} else if has {
		return ex.idx.Add(keyStr, valHandle, id)
	}
	return nil
}

// applyValues writes every kv to id.
func (ex *Executor) applyValues(id int64, kvs []KeyValue) error {
	for _, kv := range kvs {
		if err := ex.setAttr(id, kv); err != nil {
			return err
		}
	}
	return nil
}

// removeAttr deletes id's key attribute, if present, releasing its handles
// and cleaning up any secondary index entry.
func (ex *Executor) removeAttr(id int64, key value.DbValue) error {
	keyStr, err := indexKeyString(key)
	if err != nil {
		return err
	}
	handle, ok, err := ex.cat.Handle(key)
	if err != nil || !ok {
		return err
	}
	valHandle, ok, err := ex.vals.remove(id, handle)
	if err != nil || !ok {
		return err
	}
	if has, err := ex.idx.HasIndex(keyStr); err != nil {
		return err
	} else if has {
		if err := ex.idx.Remove(keyStr, valHandle, id); err != nil {
			return err
		}
	}
	if err := ex.cat.Release(valHandle); err != nil {
		return err
	}
	return ex.cat.Release(handle)
}

// removeAllAttrs deletes every attribute of id (spec.md §3 "removing an
// element drops its key-value pairs").
func (ex *Executor) removeAllAttrs(id int64) error {
	entries, err := ex.vals.entriesOf(id)
	if err != nil {
		return err
	}
	for _, e := range entries {
		k, err := ex.cat.Value(e.keyHandle)
		if err != nil {
			return err
		}
		if err := ex.removeAttr(id, k); err != nil {
			return err
		}
	}
	return nil
}
