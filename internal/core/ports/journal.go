package ports

import "go.trai.ch/kbridge/internal/core/domain"

// KeyJournal records the canonical form behind each cache key for diagnostics.
//
//go:generate go run go.uber.org/mock/mockgen -source=journal.go -destination=mocks/mock_journal.go -package=mocks
type KeyJournal interface {
	// Get retrieves the record for a key.
	// Returns nil, nil if not found.
	Get(key domain.CacheKey) (*domain.KeyRecord, error)

	// Put stores the record, replacing any previous one.
	Put(record domain.KeyRecord) error

	// Close flushes and releases the journal.
	Close() error
}
