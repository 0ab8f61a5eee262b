package transact

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDField is the record field that carries the store-assigned identifier.
const IDField = "sys_id"

// Record is a single row of a remote table, field name to value.
type Record map[string]any

// SysID returns the record's identifier, or "" if the store has not
// assigned one.
func (r Record) SysID() string {
	id, _ := r[IDField].(string)
	return id
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RecordStore is the remote collaborator a Transaction executes against.
// It offers no atomicity across calls; each call either applies fully and
// returns, or fails with a reportable error.
type RecordStore interface {
	// Create inserts a record and returns it with its assigned identifier.
	Create(ctx context.Context, table string, data Record) (Record, error)

	// Update applies the given fields to an existing record and returns the
	// updated record.
	Update(ctx context.Context, table, id string, data Record) (Record, error)

	// Delete removes a record.
	Delete(ctx context.Context, table, id string) error
}

// MemoryRecordStore provides an in-memory implementation of RecordStore for
// testing or scenarios where no remote API is available.
type MemoryRecordStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]Record
}

// NewMemoryRecordStore creates a new in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		tables: make(map[string]map[string]Record),
	}
}

// Create inserts a copy of data under a freshly assigned identifier.
func (m *MemoryRecordStore) Create(ctx context.Context, table string, data Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tables[table]
	if !ok {
		rows = make(map[string]Record)
		m.tables[table] = rows
	}

	rec := data.Clone()
	if rec == nil {
		rec = Record{}
	}
	rec[IDField] = uuid.New().String()
	rows[rec.SysID()] = rec

	return rec.Clone(), nil
}

// Update merges data into an existing record.
func (m *MemoryRecordStore) Update(ctx context.Context, table, id string, data Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tables[table][id]
	if !ok {
		return nil, fmt.Errorf("record %s/%s not found", table, id)
	}
	for k, v := range data {
		if k == IDField {
			continue
		}
		rec[k] = v
	}

	return rec.Clone(), nil
}

// Delete removes a record.
func (m *MemoryRecordStore) Delete(ctx context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[table][id]; !ok {
		return fmt.Errorf("record %s/%s not found", table, id)
	}
	delete(m.tables[table], id)
	return nil
}

// Get returns a copy of a record, or false if it does not exist.
func (m *MemoryRecordStore) Get(table, id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.tables[table][id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// List returns copies of all records in a table.
func (m *MemoryRecordStore) List(table string) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.tables[table]
	out := make([]Record, 0, len(rows))
	for _, rec := range rows {
		out = append(out, rec.Clone())
	}
	return out
}
