// Package store is the cross-run cache of fetched illustrations. For
// each stable identifier it remembers the local file and the remote
// marker last seen, and decides whether a re-fetch is needed.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const recordFileName = ".incremental.json"

// Record maps an illustration identifier to its cached blob.
type Record struct {
	Path   string `json:"path"`
	Marker string `json:"marker"`
}

// Store persists records. The disk implementation is the production
// one; the memory one backs tests.
type Store interface {
	Get(id string) (Record, bool)
	Put(id string, rec Record) error
}

type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Get(id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok
}

func (m *Memory) Put(id string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = rec
	return nil
}

// Disk keeps the record set as a JSON file under the novel's output
// directory, rewritten atomically on every Put.
type Disk struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
}

func OpenDisk(dir string) (*Disk, error) {
	d := &Disk{
		path:    filepath.Join(dir, recordFileName),
		records: make(map[string]Record),
	}
	data, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}
	if err := json.Unmarshal(data, &d.records); err != nil {
		// A corrupt record file means nothing can be verified; start
		// over with an empty set so everything is re-fetched. Cached
		// blobs stay on disk untouched.
		d.records = make(map[string]Record)
	}
	return d, nil
}

func (d *Disk) Get(id string) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[id]
	return rec, ok
}

func (d *Disk) Put(id string, rec Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[id] = rec
	data, err := json.MarshalIndent(d.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace record file: %w", err)
	}
	return nil
}
