// Package cas implements the key journal as a flat JSON file.
package cas

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

// Journal implements ports.KeyJournal using a flat JSON file.
// Records are kept in memory and written back on Close.
type Journal struct {
	path    string
	mu      sync.RWMutex
	records map[string]domain.KeyRecord
	dirty   bool
}

// NewJournal creates a KeyJournal backed by the file at the given path.
func NewJournal(path string) (*Journal, error) {
	j := &Journal{
		path:    filepath.Clean(path),
		records: make(map[string]domain.KeyRecord),
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) load() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	//nolint:gosec // Path is cleaned and provided by trusted caller
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return zerr.Wrap(err, "failed to read key journal")
	}

	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &j.records); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to unmarshal key journal"), "path", j.path)
	}

	return nil
}

func (j *Journal) save() error {
	data, err := json.MarshalIndent(j.records, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to marshal key journal")
	}

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return zerr.Wrap(err, "failed to create directory for key journal")
	}

	//nolint:gosec // Path is cleaned and provided by trusted caller
	if err := os.WriteFile(j.path, data, 0o644); err != nil {
		return zerr.Wrap(err, "failed to write key journal")
	}

	return nil
}

// Get retrieves the record for a key.
func (j *Journal) Get(key domain.CacheKey) (*domain.KeyRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rec, ok := j.records[key.String()]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Put stores the record.
func (j *Journal) Put(record domain.KeyRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.records[record.Key.String()] = record
	j.dirty = true
	return nil
}

// Close writes pending records to disk.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.dirty {
		return nil
	}
	if err := j.save(); err != nil {
		return err
	}
	j.dirty = false
	return nil
}

var _ ports.KeyJournal = (*Journal)(nil)
