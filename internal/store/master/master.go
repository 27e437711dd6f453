// Package master implements the authoritative side of the master/clone
// replication protocol: it owns a Backend, applies a command stream
// against it, emits observer events, schedules key expirations, and
// serves new clones via snapshot + sync-point.
package master

import (
	"fmt"
	"time"

	"github.com/broker/broker/internal/clock"
	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/logging"
	"github.com/broker/broker/internal/pubid"
	"github.com/broker/broker/internal/store"
	"github.com/broker/broker/internal/store/event"
	"github.com/broker/broker/internal/topic"
	"github.com/broker/broker/internal/wire"
)

// Broadcaster fans a command out to every attached clone over the
// reliable channel. It is satisfied by a channel.Producer bound to
// wire.RemoteHandle/wire.Message, kept here as an interface so master
// doesn't need to know about the channel's generic parameters.
type Broadcaster interface {
	Produce(payload wire.Message) uint64
	Add(handle wire.RemoteHandle) error
	Remove(handle wire.RemoteHandle)
	Idle() bool
}

// Replies delivers the two messages the master must send outside the
// ordered channel: a put_unique verdict to the requester, and the bulk
// snapshot to a newly attached clone.
type Replies interface {
	ReplyPutUnique(who wire.RemoteHandle, ok bool, reqID uint64)
	SendSet(clone wire.RemoteHandle, snapshot []store.Entry)
}

// Master owns one backend and drives the command/query/timer logic
// described in spec.md §4.3.
type Master struct {
	Name string

	backend store.Backend
	clk     clock.Clock
	events  event.Sink
	fanout  Broadcaster
	replies Replies
	log     *logging.Logger

	// pub identifies this master itself as a publisher, stamped on events
	// and commands the master generates on its own (expirations), rather
	// than forwarding some other publisher's id.
	pub pubid.ID

	cloneTopic topic.Topic
	clones     map[wire.RemoteHandle]struct{}

	// fatal is set by a caller-visible unrecoverable backend error; the
	// owning endpoint is expected to check it and tear the master down.
	fatal error
}

func New(name string, backend store.Backend, clk clock.Clock, events event.Sink, fanout Broadcaster, replies Replies, pub pubid.ID, log *logging.Logger) *Master {
	return &Master{
		Name:       name,
		backend:    backend,
		clk:        clk,
		events:     events,
		fanout:     fanout,
		replies:    replies,
		pub:        pub,
		log:        log,
		cloneTopic: topic.CloneTopic(name),
		clones:     map[wire.RemoteHandle]struct{}{},
	}
}

func (m *Master) warnf(format string, args ...any) {
	if m.log != nil {
		m.log.Warningf(format, args...)
	}
}

func (m *Master) errorf(format string, args ...any) {
	if m.log != nil {
		m.log.Errorf(format, args...)
	}
}

// Init replays the backend's recorded expiries at startup, scheduling one
// reminder per key so previously-persisted expirations still fire. A
// fatal error here should terminate the owning master actor.
func (m *Master) Init() error {
	expiries, err := m.backend.Expiries()
	if err != nil {
		m.fatal = fmt.Errorf("master %q: failed to load expiries: %w", m.Name, err)
		return m.fatal
	}
	now := m.clk.Now()
	for _, ke := range expiries {
		key := ke.Key
		dur := ke.Expiry.Sub(now)
		m.clk.SendLater(dur, func() { m.ExpireTimer(key) })
	}
	return nil
}

func (m *Master) Fatal() error { return m.fatal }

func (m *Master) broadcast(cmd wire.Command) {
	m.fanout.Produce(wire.Message{Topic: m.cloneTopic, Command: cmd})
}

// Command dispatches one command, whether it originated locally or over
// the channel from a clone — both are treated identically, per spec.md's
// "local (in-process) commands and remote (channel) commands interleave"
// ordering rule.
func (m *Master) Command(cmd wire.Command) {
	switch cmd.Kind {
	case wire.KindPut:
		m.onPut(cmd)
	case wire.KindPutUnique:
		m.onPutUnique(cmd)
	case wire.KindErase:
		m.onErase(cmd)
	case wire.KindAdd:
		m.onAdd(cmd)
	case wire.KindSubtract:
		m.onSubtract(cmd)
	case wire.KindClear:
		m.onClear(cmd)
	case wire.KindSnapshot:
		m.onSnapshot(cmd)
	case wire.KindExpire, wire.KindSnapshotSync, wire.KindSet:
		// These are clone-observable or clone-only; a master never
		// receives them as an inbound command.
	}
}

func (m *Master) onPut(cmd wire.Command) {
	old, oldErr := m.backend.Get(cmd.Key)
	et := absoluteExpiry(m.clk, cmd.Expiry)
	if err := m.backend.Put(cmd.Key, cmd.Val, et); err != nil {
		// write failure after a successful read: log-and-skip, no rollback
		m.errorf("master %q: put %v failed: %v", m.Name, cmd.Key, err)
		return
	}
	if cmd.Expiry != nil {
		key := cmd.Key
		m.clk.SendLater(*cmd.Expiry, func() { m.ExpireTimer(key) })
	}
	if oldErr == nil {
		m.emit(event.NewUpdate(cmd.Key, old, cmd.Val, et, cmd.Publisher))
	} else {
		m.emit(event.NewInsert(cmd.Key, cmd.Val, et, cmd.Publisher))
	}
	m.broadcast(cmd)
}

func (m *Master) onPutUnique(cmd wire.Command) {
	if exists, _ := m.backend.Exists(cmd.Key); exists {
		m.replies.ReplyPutUnique(cmd.Who, false, cmd.ReqID)
		return
	}
	et := absoluteExpiry(m.clk, cmd.Expiry)
	if err := m.backend.Put(cmd.Key, cmd.Val, et); err != nil {
		m.errorf("master %q: put_unique %v failed: %v", m.Name, cmd.Key, err)
		m.replies.ReplyPutUnique(cmd.Who, false, cmd.ReqID)
		return
	}
	m.replies.ReplyPutUnique(cmd.Who, true, cmd.ReqID)
	if cmd.Expiry != nil {
		key := cmd.Key
		m.clk.SendLater(*cmd.Expiry, func() { m.ExpireTimer(key) })
	}
	m.emit(event.NewInsert(cmd.Key, cmd.Val, et, cmd.Publisher))
	// Broadcast a plain put; clones don't repeat the existence check.
	m.broadcast(wire.Put(cmd.Key, cmd.Val, cmd.Expiry, cmd.Publisher))
}

func (m *Master) onErase(cmd wire.Command) {
	if err := m.backend.Erase(cmd.Key); err != nil {
		m.warnf("master %q: erase %v failed: %v", m.Name, cmd.Key, err)
		return
	}
	m.emit(event.NewErase(cmd.Key, cmd.Publisher))
	m.broadcast(cmd)
}

func (m *Master) onAdd(cmd wire.Command) {
	old, hadOld := m.backend.Get(cmd.Key)
	et := absoluteExpiry(m.clk, cmd.Expiry)
	if err := m.backend.Add(cmd.Key, cmd.Val, cmd.InitType, et); err != nil {
		m.errorf("master %q: add %v failed: %v", m.Name, cmd.Key, err)
		return
	}
	newVal, err := m.backend.Get(cmd.Key)
	if err != nil {
		m.errorf("master %q: add %v: re-read after write failed: %v", m.Name, cmd.Key, err)
		return
	}
	if cmd.Expiry != nil {
		key := cmd.Key
		m.clk.SendLater(*cmd.Expiry, func() { m.ExpireTimer(key) })
	}
	if hadOld == nil {
		m.emit(event.NewUpdate(cmd.Key, old, newVal, nil, cmd.Publisher))
	} else {
		m.emit(event.NewInsert(cmd.Key, newVal, nil, cmd.Publisher))
	}
	m.broadcast(wire.Put(cmd.Key, newVal, nil, cmd.Publisher))
}

func (m *Master) onSubtract(cmd wire.Command) {
	old, err := m.backend.Get(cmd.Key)
	if err != nil {
		// subtract requires the key to exist; warn-and-drop
		m.warnf("master %q: subtract %v: key does not exist: %v", m.Name, cmd.Key, err)
		return
	}
	if err := m.backend.Subtract(cmd.Key, cmd.Val, absoluteExpiry(m.clk, cmd.Expiry)); err != nil {
		m.errorf("master %q: subtract %v failed: %v", m.Name, cmd.Key, err)
		return
	}
	newVal, err := m.backend.Get(cmd.Key)
	if err != nil {
		m.errorf("master %q: subtract %v: re-read after write failed: %v", m.Name, cmd.Key, err)
		return
	}
	if cmd.Expiry != nil {
		key := cmd.Key
		m.clk.SendLater(*cmd.Expiry, func() { m.ExpireTimer(key) })
	}
	m.emit(event.NewUpdate(cmd.Key, old, newVal, nil, cmd.Publisher))
	m.broadcast(wire.Put(cmd.Key, newVal, nil, cmd.Publisher))
}

func (m *Master) onClear(cmd wire.Command) {
	keysVal, err := m.backend.Keys()
	if err == nil {
		for _, k := range keyList(keysVal) {
			m.emit(event.NewErase(k, cmd.Publisher))
		}
	}
	if err := m.backend.Clear(); err != nil {
		m.fatal = fmt.Errorf("master %q: failed to clear backend: %w", m.Name, err)
		return
	}
	m.broadcast(cmd)
}

func (m *Master) onSnapshot(cmd wire.Command) {
	if cmd.RemoteCore == "" || cmd.RemoteClone == "" {
		return
	}
	ss, err := m.backend.Snapshot()
	if err != nil {
		m.fatal = fmt.Errorf("master %q: failed to snapshot backend: %w", m.Name, err)
		return
	}
	m.clones[cmd.RemoteClone] = struct{}{}
	_ = m.fanout.Add(cmd.RemoteClone)
	// The snapshot travels outside the channel; broadcast a sync point on
	// the ordered channel so any commands enqueued between snapshot
	// creation and sync point are applied, in order, after the snapshot.
	m.broadcast(wire.SnapshotSync(cmd.RemoteClone))
	m.replies.SendSet(cmd.RemoteClone, ss)
}

// ExpireTimer is invoked by the clock when a previously scheduled
// reminder fires. A false result from backend.Expire means the timer was
// stale (the key was since refreshed or removed) and is silently ignored.
func (m *Master) ExpireTimer(key data.Value) {
	expired, err := m.backend.Expire(key, m.clk.Now())
	if err != nil || !expired {
		return
	}
	m.emit(event.NewExpire(key, m.pub))
	m.broadcast(wire.Expire(key, m.pub))
}

func (m *Master) emit(e event.Event) {
	if m.events != nil {
		m.events.Emit(e)
	}
}

// OnCloneDown removes the clone's path; no state change results, per
// spec.md's "Loss of a clone" failure policy.
func (m *Master) OnCloneDown(handle wire.RemoteHandle) {
	delete(m.clones, handle)
	m.fanout.Remove(handle)
}

// --- Queries ---

func (m *Master) Get(key data.Value) (data.Value, error) {
	return m.backend.Get(key)
}

func (m *Master) GetAspect(key, aspect data.Value) (data.Value, error) {
	return m.backend.GetAspect(key, aspect)
}

func (m *Master) Exists(key data.Value) (bool, error) {
	return m.backend.Exists(key)
}

func (m *Master) Keys() (data.Value, error) {
	return m.backend.Keys()
}

func (m *Master) Idle() bool {
	return m.fanout.Idle()
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

func absoluteExpiry(clk clock.Clock, rel *time.Duration) *time.Time {
	if rel == nil {
		return nil
	}
	t := clk.Now().Add(*rel)
	return &t
}
