// Package wire defines the command variant transported over the reliable
// channel and its (topic, command) envelope, plus the msgpack codec used
// to put both on the wire.
package wire

import (
	"time"

	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/pubid"
	"github.com/broker/broker/internal/store"
	"github.com/broker/broker/internal/topic"
)

// CommandKind discriminates the Command variant.
type CommandKind uint8

const (
	KindPut CommandKind = iota
	KindPutUnique
	KindErase
	KindAdd
	KindSubtract
	KindClear
	KindExpire
	KindSnapshot
	KindSnapshotSync
	KindSet
)

// RemoteHandle identifies a remote actor/endpoint reachable over the
// transport — opaque to the channel and command layers beyond equality.
type RemoteHandle string

// Command is the tagged variant moved over the ordered command channel.
// Only the fields relevant to Kind are populated.
type Command struct {
	Kind CommandKind `msgpack:"kind"`

	Key    data.Value     `msgpack:"key"`
	Val    data.Value     `msgpack:"val"`
	Expiry *time.Duration `msgpack:"expiry,omitempty"` // relative expiry, as supplied by the caller

	Publisher pubid.ID `msgpack:"publisher"`

	// put_unique
	InitType data.Kind    `msgpack:"init_type"` // used by add() to build the zero value when absent
	Who      RemoteHandle `msgpack:"who,omitempty"`
	ReqID    uint64       `msgpack:"req_id,omitempty"`

	// snapshot / snapshot_sync / set
	RemoteCore  RemoteHandle  `msgpack:"remote_core,omitempty"`
	RemoteClone RemoteHandle  `msgpack:"remote_clone,omitempty"`
	Snapshot    []store.Entry `msgpack:"snapshot,omitempty"`
}

func Put(key, val data.Value, expiry *time.Duration, pub pubid.ID) Command {
	return Command{Kind: KindPut, Key: key, Val: val, Expiry: expiry, Publisher: pub}
}

func PutUnique(key, val data.Value, expiry *time.Duration, pub pubid.ID, who RemoteHandle, reqID uint64) Command {
	return Command{Kind: KindPutUnique, Key: key, Val: val, Expiry: expiry, Publisher: pub, Who: who, ReqID: reqID}
}

func Erase(key data.Value, pub pubid.ID) Command {
	return Command{Kind: KindErase, Key: key, Publisher: pub}
}

func Add(key, val data.Value, initType data.Kind, expiry *time.Duration, pub pubid.ID) Command {
	return Command{Kind: KindAdd, Key: key, Val: val, InitType: initType, Expiry: expiry, Publisher: pub}
}

func Subtract(key, val data.Value, expiry *time.Duration, pub pubid.ID) Command {
	return Command{Kind: KindSubtract, Key: key, Val: val, Expiry: expiry, Publisher: pub}
}

func Clear(pub pubid.ID) Command {
	return Command{Kind: KindClear, Publisher: pub}
}

func Expire(key data.Value, pub pubid.ID) Command {
	return Command{Kind: KindExpire, Key: key, Publisher: pub}
}

func Snapshot(remoteCore, remoteClone RemoteHandle) Command {
	return Command{Kind: KindSnapshot, RemoteCore: remoteCore, RemoteClone: remoteClone}
}

func SnapshotSync(remoteClone RemoteHandle) Command {
	return Command{Kind: KindSnapshotSync, RemoteClone: remoteClone}
}

func Set(snapshot []store.Entry) Command {
	return Command{Kind: KindSet, Snapshot: snapshot}
}

// Message is the (topic, command) envelope produced by the fan-out, i.e.
// broker's command_message.
type Message struct {
	Topic   topic.Topic `msgpack:"topic"`
	Command Command     `msgpack:"command"`
}
