package docstore

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is a mutex-guarded in-process store for dev and testing. It mirrors
// the overwrite semantics of the Postgres backend, including change delivery
// to watchers.
type Memory struct {
	mu       sync.Mutex
	data     map[string]map[string][]byte
	watchers map[string][]chan map[string]json.RawMessage
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string]map[string][]byte),
		watchers: make(map[string][]chan map[string]json.RawMessage),
	}
}

// Get unmarshals the document at (collection, key) into dest.
func (m *Memory) Get(ctx context.Context, collection, key string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.data[collection]
	if !ok {
		return ErrNotFound
	}
	raw, ok := coll[key]
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, dest)
}

// Set writes doc under (collection, key), replacing any prior document.
func (m *Memory) Set(ctx context.Context, collection, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	coll, ok := m.data[collection]
	if !ok {
		coll = make(map[string][]byte)
		m.data[collection] = coll
	}
	coll[key] = raw
	snapshot := m.snapshotLocked(collection)
	watchers := append([]chan map[string]json.RawMessage(nil), m.watchers[collection]...)
	m.mu.Unlock()

	notify(watchers, snapshot)
	return nil
}

// List returns every document in the collection.
func (m *Memory) List(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(collection), nil
}

// Delete removes the document at (collection, key) if present.
func (m *Memory) Delete(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	coll, ok := m.data[collection]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if _, ok := coll[key]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(coll, key)
	snapshot := m.snapshotLocked(collection)
	watchers := append([]chan map[string]json.RawMessage(nil), m.watchers[collection]...)
	m.mu.Unlock()

	notify(watchers, snapshot)
	return nil
}

// Watch delivers the collection's full contents after every change.
func (m *Memory) Watch(ctx context.Context, collection string) (<-chan map[string]json.RawMessage, func(), error) {
	ch := make(chan map[string]json.RawMessage, 1)
	m.mu.Lock()
	m.watchers[collection] = append(m.watchers[collection], ch)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.watchers[collection]
		for i, c := range list {
			if c == ch {
				m.watchers[collection] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	return ch, cancel, nil
}

// snapshotLocked copies the collection; caller holds mu.
func (m *Memory) snapshotLocked(collection string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	for k, v := range m.data[collection] {
		out[k] = json.RawMessage(append([]byte(nil), v...))
	}
	return out
}

// notify replaces any undelivered snapshot with the latest one so a slow
// watcher always observes current state, never a backlog.
func notify(watchers []chan map[string]json.RawMessage, snapshot map[string]json.RawMessage) {
	for _, ch := range watchers {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
