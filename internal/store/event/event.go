// Package event defines the local observer stream a master or clone emits
// whenever its backend is mutated.
package event

import (
	"time"

	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/pubid"
)

type Kind uint8

const (
	Insert Kind = iota
	Update
	Erase
	Expire
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Erase:
		return "erase"
	case Expire:
		return "expire"
	default:
		return "unknown"
	}
}

// Event is one observer notification. Only the fields relevant to Kind are
// populated: Update carries Old, Insert/Update carry Expiry when set.
type Event struct {
	Kind      Kind
	Key       data.Value
	Old       data.Value
	New       data.Value
	Expiry    *time.Time
	Publisher pubid.ID
}

func NewInsert(key, val data.Value, expiry *time.Time, pub pubid.ID) Event {
	return Event{Kind: Insert, Key: key, New: val, Expiry: expiry, Publisher: pub}
}

func NewUpdate(key, old, val data.Value, expiry *time.Time, pub pubid.ID) Event {
	return Event{Kind: Update, Key: key, Old: old, New: val, Expiry: expiry, Publisher: pub}
}

func NewErase(key data.Value, pub pubid.ID) Event {
	return Event{Kind: Erase, Key: key, Publisher: pub}
}

func NewExpire(key data.Value, pub pubid.ID) Event {
	return Event{Kind: Expire, Key: key, Publisher: pub}
}

// Sink receives emitted events. A backend-durable write happens before (or
// synchronously with) the broadcast to clones, and emission is idempotent
// with backend success.
type Sink interface {
	Emit(Event)
}

// Func adapts a plain function to a Sink.
type Func func(Event)

func (f Func) Emit(e Event) { f(e) }
