package domain

import "time"

// KeyRecord is the diagnostic journal entry for one cache key.
type KeyRecord struct {
	Key       CacheKey  `json:"key"`
	Function  string    `json:"function,omitzero"`
	Canonical string    `json:"canonical,omitzero"`
	FirstSeen time.Time `json:"first_seen,omitzero"`
}
