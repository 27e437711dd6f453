// Package clone implements the subordinate side of the master/clone
// replication protocol: a read-mostly mirror of a master's backend kept
// current by consuming an ordered command stream, plus a local write path
// that forwards mutating requests back to the master.
package clone

import (
	"fmt"

	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/ec"
	"github.com/broker/broker/internal/logging"
	"github.com/broker/broker/internal/store"
	"github.com/broker/broker/internal/store/event"
	"github.com/broker/broker/internal/topic"
	"github.com/broker/broker/internal/wire"
)

// Forwarder carries a locally-issued mutating command to the master that
// owns this clone's store. The clone's own view only updates once the
// master rebroadcasts the (possibly rewritten) command back over the
// channel; until then reads see the old value.
type Forwarder interface {
	Forward(cmd wire.Command)
}

// Querier serves read queries against the clone's master, used while the
// clone itself is stale and can't be trusted to answer out of its own
// backend. A clone that has no route to a master when stale (no Querier,
// or the Querier can't reach one) answers ec.StaleData instead.
type Querier interface {
	Get(key data.Value) (data.Value, error)
	GetAspect(key, aspect data.Value) (data.Value, error)
	Exists(key data.Value) (bool, error)
	Keys() (data.Value, error)
}

// Clone mirrors one master's backend. It never applies put/erase/add/
// subtract/clear/expire/snapshot locally on its own authority; those
// reach it only via Deliver, driven by the reliable channel's consumer.
type Clone struct {
	Name string

	backend store.Backend
	events  event.Sink
	fwd     Forwarder
	query   Querier
	log     *logging.Logger

	masterTopic topic.Topic

	// A freshly attached clone (or one that requested a resync) is blind
	// until both the out-of-band Set and the in-band snapshot_sync marker
	// have arrived; commands delivered in between are buffered so they
	// apply, in order, strictly after the snapshot they were produced
	// against. The same resyncing state is what spec.md calls is_stale:
	// queries answer out of the master instead of the local backend for
	// as long as it holds.
	haveSnapshot bool
	haveSync     bool
	buffered     []wire.Command

	fatal error
}

func New(name string, backend store.Backend, events event.Sink, fwd Forwarder, query Querier, log *logging.Logger) *Clone {
	return &Clone{
		Name:        name,
		backend:     backend,
		events:      events,
		fwd:         fwd,
		query:       query,
		log:         log,
		masterTopic: topic.CloneTopic(name),
	}
}

func (c *Clone) Fatal() error { return c.fatal }

func (c *Clone) warnf(format string, args ...any) {
	if c.log != nil {
		c.log.Warningf(format, args...)
	}
}

func (c *Clone) errorf(format string, args ...any) {
	if c.log != nil {
		c.log.Errorf(format, args...)
	}
}

func (c *Clone) resyncing() bool { return !c.haveSnapshot || !c.haveSync }

// IsStale reports whether this clone's own backend is currently trusted
// to answer queries, per spec.md §4.4: a clone bootstrapping, or forced
// back into resync by MarkStale, is stale until a fresh Set and
// snapshot_sync both land.
func (c *Clone) IsStale() bool { return c.resyncing() }

// MarkStale forces the clone back into a resyncing state, discarding
// whatever was buffered against the old sync point: a sequence gap wide
// enough for the channel to give up retransmitting means those buffered
// commands can no longer be trusted to apply cleanly against whatever
// the next snapshot contains. The caller is expected to follow this with
// a fresh Resync.
func (c *Clone) MarkStale() {
	c.haveSnapshot = false
	c.haveSync = false
	c.buffered = nil
}

// Deliver applies one command received, in order, over the reliable
// channel from this clone's master.
func (c *Clone) Deliver(cmd wire.Command) {
	switch cmd.Kind {
	case wire.KindSet:
		c.onSet(cmd)
	case wire.KindSnapshotSync:
		c.onSnapshotSync()
	case wire.KindPut, wire.KindErase, wire.KindClear, wire.KindExpire:
		c.stageOrApply(cmd)
	case wire.KindPutUnique, wire.KindAdd, wire.KindSubtract, wire.KindSnapshot:
		// A master only ever broadcasts plain put/erase/clear/expire and the
		// snapshot control commands; put_unique and add/subtract are
		// always rewritten to a put before broadcast. Seeing one here
		// means the peer on the other end of the channel isn't a master
		// speaking this protocol.
		c.fatal = fmt.Errorf("clone %q: protocol violation: received %v from master", c.Name, cmd.Kind)
	}
}

func (c *Clone) stageOrApply(cmd wire.Command) {
	if c.resyncing() {
		c.buffered = append(c.buffered, cmd)
		return
	}
	c.apply(cmd)
}

func (c *Clone) apply(cmd wire.Command) {
	switch cmd.Kind {
	case wire.KindPut:
		old, hadOld := c.backend.Get(cmd.Key)
		if err := c.backend.Put(cmd.Key, cmd.Val, nil); err != nil {
			c.fatal = fmt.Errorf("clone %q: backend put failed: %w", c.Name, err)
			c.errorf("%v", c.fatal)
			return
		}
		if hadOld == nil {
			c.emit(event.NewUpdate(cmd.Key, old, cmd.Val, nil, cmd.Publisher))
		} else {
			c.emit(event.NewInsert(cmd.Key, cmd.Val, nil, cmd.Publisher))
		}
	case wire.KindErase:
		if err := c.backend.Erase(cmd.Key); err != nil {
			// already gone locally; nothing to mirror
			c.warnf("clone %q: erase %v: %v", c.Name, cmd.Key, err)
			return
		}
		c.emit(event.NewErase(cmd.Key, cmd.Publisher))
	case wire.KindExpire:
		if err := c.backend.Erase(cmd.Key); err != nil {
			// already gone locally; nothing to mirror
			c.warnf("clone %q: expire %v: %v", c.Name, cmd.Key, err)
			return
		}
		c.emit(event.NewExpire(cmd.Key, cmd.Publisher))
	case wire.KindClear:
		keysVal, err := c.backend.Keys()
		if err == nil {
			for _, k := range keyList(keysVal) {
				c.emit(event.NewErase(k, cmd.Publisher))
			}
		}
		if err := c.backend.Clear(); err != nil {
			c.fatal = fmt.Errorf("clone %q: backend clear failed: %w", c.Name, err)
			c.errorf("%v", c.fatal)
		}
	}
}

// onSet installs a fresh snapshot, replacing all prior local state.
func (c *Clone) onSet(cmd wire.Command) {
	if err := c.backend.Clear(); err != nil {
		c.fatal = fmt.Errorf("clone %q: failed to clear before snapshot install: %w", c.Name, err)
		c.errorf("%v", c.fatal)
		return
	}
	for _, e := range cmd.Snapshot {
		if err := c.backend.Put(e.Key, e.Value, nil); err != nil {
			c.fatal = fmt.Errorf("clone %q: failed to install snapshot entry: %w", c.Name, err)
			c.errorf("%v", c.fatal)
			return
		}
	}
	c.haveSnapshot = true
	c.drainIfSynced()
}

// onSnapshotSync marks the master-side cut point the snapshot was taken
// at. Once both it and the snapshot itself have arrived, anything
// buffered in between replays in arrival order.
func (c *Clone) onSnapshotSync() {
	c.haveSync = true
	c.drainIfSynced()
}

func (c *Clone) drainIfSynced() {
	if c.resyncing() {
		return
	}
	pending := c.buffered
	c.buffered = nil
	for _, p := range pending {
		c.apply(p)
	}
}

// Put forwards a local put request to the owning master; the clone's own
// view updates only once the master rebroadcasts it back.
func (c *Clone) Put(cmd wire.Command) { c.fwd.Forward(cmd) }

// Erase forwards a local erase request to the owning master.
func (c *Clone) Erase(cmd wire.Command) { c.fwd.Forward(cmd) }

// Clear forwards a local clear request to the owning master.
func (c *Clone) Clear(cmd wire.Command) { c.fwd.Forward(cmd) }

func (c *Clone) emit(e event.Event) {
	if c.events != nil {
		c.events.Emit(e)
	}
}

func (c *Clone) Get(key data.Value) (data.Value, error) {
	if c.IsStale() {
		if c.query != nil {
			return c.query.Get(key)
		}
		return data.Value{}, ec.New(ec.StaleData)
	}
	return c.backend.Get(key)
}

func (c *Clone) GetAspect(key, aspect data.Value) (data.Value, error) {
	if c.IsStale() {
		if c.query != nil {
			return c.query.GetAspect(key, aspect)
		}
		return data.Value{}, ec.New(ec.StaleData)
	}
	return c.backend.GetAspect(key, aspect)
}

func (c *Clone) Exists(key data.Value) (bool, error) {
	if c.IsStale() {
		if c.query != nil {
			return c.query.Exists(key)
		}
		return false, ec.New(ec.StaleData)
	}
	return c.backend.Exists(key)
}

func (c *Clone) Keys() (data.Value, error) {
	if c.IsStale() {
		if c.query != nil {
			return c.query.Keys()
		}
		return data.Value{}, ec.New(ec.StaleData)
	}
	return c.backend.Keys()
}

func keyList(v data.Value) []data.Value {
	switch v.Kind {
	case data.KindVector:
		return v.Vector
	case data.KindSet:
		return v.Set
	default:
		return nil
	}
}
