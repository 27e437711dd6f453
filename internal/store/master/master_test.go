package master

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/broker/broker/internal/clock"
	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/pubid"
	"github.com/broker/broker/internal/store"
	"github.com/broker/broker/internal/store/event"
	"github.com/broker/broker/internal/wire"
)

// fakeFanout is a Broadcaster that records every message it would have
// sent over the channel, without any actual transport underneath.
type fakeFanout struct {
	sent   []wire.Message
	added  []wire.RemoteHandle
	idle   bool
}

func (f *fakeFanout) Produce(payload wire.Message) uint64 {
	f.sent = append(f.sent, payload)
	return uint64(len(f.sent))
}
func (f *fakeFanout) Add(h wire.RemoteHandle) error { f.added = append(f.added, h); return nil }
func (f *fakeFanout) Remove(wire.RemoteHandle)      {}
func (f *fakeFanout) Idle() bool                    { return f.idle }

type fakeReplies struct {
	putUniqueReplies []bool
	sentSets         []store.Entry
}

func (r *fakeReplies) ReplyPutUnique(who wire.RemoteHandle, ok bool, reqID uint64) {
	r.putUniqueReplies = append(r.putUniqueReplies, ok)
}
func (r *fakeReplies) SendSet(clone wire.RemoteHandle, snapshot []store.Entry) {
	r.sentSets = append(r.sentSets, snapshot...)
}

type recordingSink struct {
	events []event.Event
}

func (s *recordingSink) Emit(e event.Event) { s.events = append(s.events, e) }

func newTestMaster() (*Master, *fakeFanout, *fakeReplies, *recordingSink, *clock.Virtual) {
	backend := store.NewMemory()
	clk := clock.NewVirtual(time.Unix(0, 0))
	fanout := &fakeFanout{}
	replies := &fakeReplies{}
	sink := &recordingSink{}
	m := New("mystore", backend, clk, sink, fanout, replies, pub(), nil)
	return m, fanout, replies, sink, clk
}

func pub() pubid.ID { return pubid.New(uuid.New(), 1) }

func TestMasterPutEmitsInsertThenUpdate(t *testing.T) {
	m, fanout, _, sink, _ := newTestMaster()

	m.Command(wire.Put(data.String("k"), data.Int(1), nil, pub()))
	m.Command(wire.Put(data.String("k"), data.Int(2), nil, pub()))

	require.Len(t, sink.events, 2)
	require.Equal(t, event.Insert, sink.events[0].Kind)
	require.Equal(t, event.Update, sink.events[1].Kind)
	require.True(t, data.Equal(sink.events[1].Old, data.Int(1)))
	require.True(t, data.Equal(sink.events[1].New, data.Int(2)))
	require.Len(t, fanout.sent, 2)

	got, err := m.Get(data.String("k"))
	require.NoError(t, err)
	require.True(t, data.Equal(got, data.Int(2)))
}

func TestMasterPutUniqueRejectsExistingKey(t *testing.T) {
	m, fanout, replies, _, _ := newTestMaster()

	m.Command(wire.PutUnique(data.String("k"), data.Int(1), nil, pub(), "req1", 1))
	require.Equal(t, []bool{true}, replies.putUniqueReplies)
	require.Len(t, fanout.sent, 1)

	m.Command(wire.PutUnique(data.String("k"), data.Int(99), nil, pub(), "req2", 2))
	require.Equal(t, []bool{true, false}, replies.putUniqueReplies)
	// The rejected put_unique never broadcasts.
	require.Len(t, fanout.sent, 1)

	got, err := m.Get(data.String("k"))
	require.NoError(t, err)
	require.True(t, data.Equal(got, data.Int(1)))
}

func TestMasterAddInitializesMissingKey(t *testing.T) {
	m, _, _, sink, _ := newTestMaster()

	m.Command(wire.Add(data.String("counter"), data.Int(5), data.KindInt, nil, pub()))
	got, err := m.Get(data.String("counter"))
	require.NoError(t, err)
	require.True(t, data.Equal(got, data.Int(5)))
	require.Equal(t, event.Insert, sink.events[0].Kind)

	m.Command(wire.Add(data.String("counter"), data.Int(3), data.KindInt, nil, pub()))
	got, err = m.Get(data.String("counter"))
	require.NoError(t, err)
	require.True(t, data.Equal(got, data.Int(8)))
	require.Equal(t, event.Update, sink.events[1].Kind)
}

func TestMasterSubtractDropsWhenKeyMissing(t *testing.T) {
	m, fanout, _, sink, _ := newTestMaster()

	m.Command(wire.Subtract(data.String("missing"), data.Int(1), nil, pub()))
	require.Empty(t, sink.events)
	require.Empty(t, fanout.sent)

	_, err := m.Get(data.String("missing"))
	require.Error(t, err)
}

func TestMasterClearEmitsEraseForEveryKey(t *testing.T) {
	m, fanout, _, sink, _ := newTestMaster()
	m.Command(wire.Put(data.String("a"), data.Int(1), nil, pub()))
	m.Command(wire.Put(data.String("b"), data.Int(2), nil, pub()))

	m.Command(wire.Clear(pub()))
	var erases int
	for _, e := range sink.events {
		if e.Kind == event.Erase {
			erases++
		}
	}
	require.Equal(t, 2, erases)
	require.Equal(t, 3, len(fanout.sent)) // 2 puts + 1 clear

	exists, _ := m.Exists(data.String("a"))
	require.False(t, exists)
}

func TestMasterExpiryFiresAndBroadcasts(t *testing.T) {
	m, fanout, _, sink, clk := newTestMaster()

	expiry := 10 * time.Second
	m.Command(wire.Put(data.String("k"), data.Int(1), &expiry, pub()))
	require.Len(t, fanout.sent, 1)

	clk.Advance(5 * time.Second)
	_, err := m.Get(data.String("k"))
	require.NoError(t, err) // not expired yet

	clk.Advance(6 * time.Second)
	_, err = m.Get(data.String("k"))
	require.Error(t, err) // expired and erased

	require.Len(t, sink.events, 2) // insert, expire
	require.Equal(t, event.Expire, sink.events[1].Kind)
	require.Len(t, fanout.sent, 2) // put, expire
	require.Equal(t, wire.KindExpire, fanout.sent[1].Command.Kind)
}

func TestMasterSnapshotAttachesCloneAndSendsSet(t *testing.T) {
	m, fanout, replies, _, _ := newTestMaster()
	m.Command(wire.Put(data.String("k"), data.Int(7), nil, pub()))

	m.Command(wire.Snapshot("core1", "clone1"))

	require.Equal(t, []wire.RemoteHandle{"clone1"}, fanout.added)
	require.Len(t, replies.sentSets, 1)
	require.True(t, data.Equal(replies.sentSets[0].Key, data.String("k")))

	// The sync marker is broadcast on the ordered channel after attach.
	last := fanout.sent[len(fanout.sent)-1]
	require.Equal(t, wire.KindSnapshotSync, last.Command.Kind)
}

func TestMasterCloneDownRemovesPath(t *testing.T) {
	m, fanout, _, _, _ := newTestMaster()
	m.Command(wire.Snapshot("core1", "clone1"))
	require.Len(t, fanout.added, 1)

	m.OnCloneDown("clone1")
	_, ok := m.clones["clone1"]
	require.False(t, ok)
}
