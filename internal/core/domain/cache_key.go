package domain

import (
	"fmt"
	"strconv"

	"go.trai.ch/zerr"
)

// CacheKey is the 64-bit hash of a canonicalized call.
// Keys are rendered as 16 lowercase hex digits so they survive JSON number precision limits.
type CacheKey uint64

// String returns the fixed-width hex rendering of the key.
func (k CacheKey) String() string {
	return fmt.Sprintf("%016x", uint64(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k CacheKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CacheKey) UnmarshalText(text []byte) error {
	parsed, err := ParseCacheKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseCacheKey parses the 16 hex digit rendering produced by CacheKey.String.
func ParseCacheKey(s string) (CacheKey, error) {
	if len(s) != 16 {
		return 0, zerr.With(zerr.New("cache key must be 16 hex digits"), "key", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to parse cache key"), "key", s)
	}
	return CacheKey(v), nil
}

// NativeAddress marks a transient native memory address inside call arguments.
// Fields of this type never take part in cache key computation.
type NativeAddress uintptr
