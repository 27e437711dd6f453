// Package store defines the narrow storage capability consumed by the
// master and clone state machines, plus a pluggable in-memory backend.
package store

import (
	"time"

	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/ec"
)

// Backend is the trait a master or clone consumes to persist its
// key/value state. Implementations are expected to be in-process and
// non-blocking; a genuinely blocking backend must schedule its own
// workers rather than block the calling state machine.
type Backend interface {
	Get(key data.Value) (data.Value, error)
	GetAspect(key, aspect data.Value) (data.Value, error)
	Put(key, val data.Value, expiry *time.Time) error
	// Add initializes a missing key with the additive identity for
	// initType before applying the addition.
	Add(key, val data.Value, initType data.Kind, expiry *time.Time) error
	// Subtract fails with ec.NoSuchKey if the key is absent.
	Subtract(key, val data.Value, expiry *time.Time) error
	Erase(key data.Value) error
	Exists(key data.Value) (bool, error)
	// Keys returns a vector, set, or none value enumerating the store's keys.
	Keys() (data.Value, error)
	Clear() error
	Snapshot() ([]Entry, error)
	// Expire removes key if present and its recorded expiry is <= now,
	// reporting whether it did so.
	Expire(key data.Value, now time.Time) (bool, error)
	Expiries() ([]KeyExpiry, error)
}

// KeyExpiry pairs a key with its absolute expiration time.
type KeyExpiry struct {
	Key    data.Value
	Expiry time.Time
}

// Entry is one key/value pair of a point-in-time Snapshot. Unlike the
// textual keying Get/Put use internally, a snapshot carries the real key
// Value so a clone can install it without any lossy string round trip.
type Entry struct {
	Key   data.Value
	Value data.Value
}

func errBackend(code ec.Code, format string, args ...any) error {
	return ec.Newf(code, format, args...)
}
