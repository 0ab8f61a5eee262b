package transact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FileRecordStore implements RecordStore on the local filesystem, one JSON
// file per record under <basePath>/<table>/<id>.json. It is meant for
// development and the example CLI, not for shared deployments.
type FileRecordStore struct {
	basePath string
	mu       sync.Mutex // Protects file operations
}

// NewFileRecordStore creates a file-backed record store rooted at basePath.
func NewFileRecordStore(basePath string) (*FileRecordStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FileRecordStore{basePath: basePath}, nil
}

// Create writes a new record under a freshly assigned identifier.
func (f *FileRecordStore) Create(ctx context.Context, table string, data Record) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(f.basePath, table), 0755); err != nil {
		return nil, fmt.Errorf("failed to create table directory: %w", err)
	}

	rec := data.Clone()
	if rec == nil {
		rec = Record{}
	}
	rec[IDField] = uuid.New().String()

	if err := f.write(table, rec.SysID(), rec); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Update merges data into an existing record and rewrites its file.
func (f *FileRecordStore) Update(ctx context.Context, table, id string, data Record) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.read(table, id)
	if err != nil {
		return nil, err
	}
	for k, v := range data {
		if k == IDField {
			continue
		}
		rec[k] = v
	}

	if err := f.write(table, id, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a record's file.
func (f *FileRecordStore) Delete(ctx context.Context, table, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.filename(table, id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("record %s/%s not found", table, id)
		}
		return fmt.Errorf("failed to delete record file: %w", err)
	}
	return nil
}

// Get reads back a single record.
func (f *FileRecordStore) Get(table, id string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(table, id)
}

// List returns all records of a table, ordered by identifier.
func (f *FileRecordStore) List(table string) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(f.basePath, table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read table directory: %w", err)
	}

	var out []Record
	for _, entry := range entries {
		id, ok := strings.CutSuffix(entry.Name(), ".json")
		if !ok {
			continue
		}
		rec, err := f.read(table, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SysID() < out[j].SysID() })
	return out, nil
}

func (f *FileRecordStore) read(table, id string) (Record, error) {
	data, err := os.ReadFile(f.filename(table, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("record %s/%s not found", table, id)
		}
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

func (f *FileRecordStore) write(table, id string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := os.WriteFile(f.filename(table, id), data, 0644); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}
	return nil
}

func (f *FileRecordStore) filename(table, id string) string {
	return filepath.Join(f.basePath, table, id+".json")
}
