package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Tracker applies the incremental contract on top of a Store: fetch an
// illustration iff no record exists, the marker changed, the marker is
// unverifiable, or the cached blob is gone. It never deletes a blob it
// cannot re-verify; staleness is preferred over data loss.
type Tracker struct {
	store Store
	dir   string

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func NewTracker(store Store, dir string) *Tracker {
	return &Tracker{
		store: store,
		dir:   dir,
		keys:  make(map[string]*sync.Mutex),
	}
}

// lock returns the per-identifier mutex so two workers never fetch the
// same illustration redundantly.
func (t *Tracker) lock(id string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lk, ok := t.keys[id]
	if !ok {
		lk = &sync.Mutex{}
		t.keys[id] = lk
	}
	return lk
}

// ShouldFetch reports whether the asset must be re-downloaded for the
// given remote marker. An empty marker means the source offers nothing
// to verify against, and fetching is the safe default.
func (t *Tracker) ShouldFetch(id, remoteMarker string) bool {
	if remoteMarker == "" {
		return true
	}
	rec, ok := t.store.Get(id)
	if !ok {
		return true
	}
	if rec.Marker != remoteMarker {
		return true
	}
	if _, err := os.Stat(rec.Path); err != nil {
		return true
	}
	return false
}

// Commit writes the fetched bytes next to the record file and persists
// the record. The blob lands on disk before the record does, so a crash
// in between leaves a re-fetchable state, never a dangling record.
func (t *Tracker) Commit(id, remoteMarker, fileName string, data []byte) (string, error) {
	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	path := filepath.Join(t.dir, fileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write cached asset: %w", err)
	}
	if err := t.store.Put(id, Record{Path: path, Marker: remoteMarker}); err != nil {
		return "", err
	}
	return path, nil
}

// Ensure serializes the ShouldFetch/Commit pair per identifier and
// returns the asset bytes, fetching through fetchFn only when needed.
func (t *Tracker) Ensure(id, fileName, remoteMarker string, fetchFn func() ([]byte, error)) ([]byte, error) {
	lk := t.lock(id)
	lk.Lock()
	defer lk.Unlock()

	if !t.ShouldFetch(id, remoteMarker) {
		rec, _ := t.store.Get(id)
		data, err := os.ReadFile(rec.Path)
		if err == nil {
			return data, nil
		}
		// Cached blob unreadable after all; fall through to fetch.
	}

	data, err := fetchFn()
	if err != nil {
		return nil, err
	}
	if _, err := t.Commit(id, remoteMarker, fileName, data); err != nil {
		return nil, err
	}
	return data, nil
}
