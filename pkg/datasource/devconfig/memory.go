package devconfig

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps settings in memory. Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string]storedDoc // runKey -> alias -> doc
	seq    map[string]int
	closed bool
}

type storedDoc struct {
	data     []byte
	sequence int
	saved    time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]storedDoc),
		seq:  make(map[string]int),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(runKey, alias string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if m.data[runKey] == nil {
		m.data[runKey] = make(map[string]storedDoc)
	}

	m.seq[runKey]++
	stored := make([]byte, len(data))
	copy(stored, data)
	m.data[runKey][alias] = storedDoc{
		data:     stored,
		sequence: m.seq[runKey],
		saved:    time.Now().UTC(),
	}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(runKey, alias string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	doc, ok := m.data[runKey][alias]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(doc.data))
	copy(out, doc.data)
	return out, nil
}

// List implements Store.
func (m *MemoryStore) List(runKey string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	infos := make([]Info, 0, len(m.data[runKey]))
	for alias, doc := range m.data[runKey] {
		infos = append(infos, Info{
			RunKey:   runKey,
			Alias:    alias,
			Sequence: doc.sequence,
			Saved:    doc.saved,
			Size:     int64(len(doc.data)),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Sequence < infos[j].Sequence })
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(runKey, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data[runKey], alias)
	return nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(runKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data, runKey)
	delete(m.seq, runKey)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
