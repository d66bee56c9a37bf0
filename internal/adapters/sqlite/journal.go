// Package sqlite implements the key journal on top of a SQLite database.
package sqlite

import (
	"database/sql"
	_ "embed"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // database/sql driver
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/zerr"
)

//go:embed schema.sql
var schemaSQL string

// Journal implements ports.KeyJournal using SQLite in WAL mode.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at the given path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, zerr.Wrap(err, "failed to create directory for key journal")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open key journal")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, zerr.With(zerr.Wrap(err, "failed to connect to key journal"), "path", path)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, zerr.Wrap(err, "failed to apply key journal schema")
	}

	return &Journal{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to apply pragma"), "pragma", pragma)
		}
	}
	return nil
}

// Get retrieves the record for a key.
func (j *Journal) Get(key domain.CacheKey) (*domain.KeyRecord, error) {
	var (
		rec       = domain.KeyRecord{Key: key}
		firstSeen string
	)
	err := j.db.QueryRow(
		`SELECT function, canonical, first_seen FROM key_records WHERE key = ?`,
		key.String(),
	).Scan(&rec.Function, &rec.Canonical, &firstSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read key record"), "key", key.String())
	}

	if rec.FirstSeen, err = time.Parse(time.RFC3339Nano, firstSeen); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "malformed key record timestamp"), "key", key.String())
	}
	return &rec, nil
}

// Put stores the record, replacing any previous one.
func (j *Journal) Put(record domain.KeyRecord) error {
	_, err := j.db.Exec(
		`INSERT INTO key_records (key, function, canonical, first_seen) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET function = excluded.function,
		   canonical = excluded.canonical, first_seen = excluded.first_seen`,
		record.Key.String(),
		record.Function,
		record.Canonical,
		record.FirstSeen.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write key record"), "key", record.Key.String())
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

var _ ports.KeyJournal = (*Journal)(nil)
