package model

import "sync"

// keyKey identifies one (type, keyName, remoteValue) triple in the
// forward direction.
type keyKey struct {
	Type  string
	Name  string
	Value string
}

// KeyMap is the bidirectional mapping between (type, keyName,
// remoteValue) and a local id, populated lazily as records carrying
// "keys" are seen (spec §3).
type KeyMap struct {
	mu      sync.RWMutex
	forward map[keyKey]string            // (type, keyName, value) -> localId
	byID    map[string]map[string]string // "type:id" -> keyName -> value
}

// NewKeyMap builds an empty KeyMap.
func NewKeyMap() *KeyMap {
	return &KeyMap{
		forward: make(map[keyKey]string),
		byID:    make(map[string]map[string]string),
	}
}

// PushRecord registers every key present on the record against its local
// id. A later call supplying a different value for a key that already
// has an entry for this record overwrites it and drops the old value's
// lookup; if the same (type, keyName, value) is registered for a second
// record, the latest registration wins (see DESIGN.md's replaceKey
// decision).
func (k *KeyMap) PushRecord(id Identity, keys map[string]string) {
	if len(keys) == 0 {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.setLocked(id, keys)
}

func (k *KeyMap) setLocked(id Identity, keys map[string]string) {
	idStr := id.String()
	existing, ok := k.byID[idStr]
	if !ok {
		existing = make(map[string]string)
		k.byID[idStr] = existing
	}
	for name, value := range keys {
		if prior, had := existing[name]; had && prior != value {
			delete(k.forward, keyKey{Type: id.Type, Name: name, Value: prior})
		}
		existing[name] = value
		k.forward[keyKey{Type: id.Type, Name: name, Value: value}] = id.ID
	}
}

// ReplaceKey updates a single key on a record, per the replaceKey
// operation (spec §4.D/§9). See DESIGN.md for the open-question decision:
// this both registers a never-before-seen key and overwrites an existing
// one.
func (k *KeyMap) ReplaceKey(id Identity, keyName, value string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.setLocked(id, map[string]string{keyName: value})
}

// IDForKey resolves a (type, keyName, remoteValue) triple to a local id,
// if known.
func (k *KeyMap) IDForKey(modelType, keyName, value string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	id, ok := k.forward[keyKey{Type: modelType, Name: keyName, Value: value}]
	return id, ok
}

// KeyForID resolves the value of keyName on the given identity, if known.
func (k *KeyMap) KeyForID(id Identity, keyName string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	keys, ok := k.byID[id.String()]
	if !ok {
		return "", false
	}
	value, ok := keys[keyName]
	return value, ok
}

// Forget removes every key registered for id, used when a record is
// removed from the cache.
func (k *KeyMap) Forget(id Identity) {
	k.mu.Lock()
	defer k.mu.Unlock()
	idStr := id.String()
	keys, ok := k.byID[idStr]
	if !ok {
		return
	}
	for name, value := range keys {
		delete(k.forward, keyKey{Type: id.Type, Name: name, Value: value})
	}
	delete(k.byID, idStr)
}
