package clone

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/ec"
	"github.com/broker/broker/internal/pubid"
	"github.com/broker/broker/internal/store"
	"github.com/broker/broker/internal/store/event"
	"github.com/broker/broker/internal/wire"
)

type fakeForwarder struct {
	forwarded []wire.Command
}

func (f *fakeForwarder) Forward(cmd wire.Command) { f.forwarded = append(f.forwarded, cmd) }

type recordingSink struct {
	events []event.Event
}

func (s *recordingSink) Emit(e event.Event) { s.events = append(s.events, e) }

func pub() pubid.ID { return pubid.New(uuid.New(), 1) }

func newTestClone() (*Clone, *fakeForwarder, *recordingSink) {
	backend := store.NewMemory()
	fwd := &fakeForwarder{}
	sink := &recordingSink{}
	return New("mystore", backend, sink, fwd, nil, nil), fwd, sink
}

func TestCloneBuffersUntilSnapshotAndSyncBothArrive(t *testing.T) {
	c, _, sink := newTestClone()

	// A command broadcast between attach and the sync marker must not
	// apply until both halves of the resync have arrived.
	c.Deliver(wire.Put(data.String("k"), data.Int(1), nil, pub()))
	require.Empty(t, sink.events)

	c.Deliver(wire.Command{Kind: wire.KindSet, Snapshot: []store.Entry{
		{Key: data.String("existing"), Value: data.Int(42)},
	}})
	require.Empty(t, sink.events, "still waiting on the sync marker")

	c.Deliver(wire.SnapshotSync("clone1"))
	require.Len(t, sink.events, 1)
	require.Equal(t, event.Insert, sink.events[0].Kind)

	got, err := c.Get(data.String("existing"))
	require.NoError(t, err)
	require.True(t, data.Equal(got, data.Int(42)))
}

func TestCloneSyncBeforeSetAlsoBuffers(t *testing.T) {
	c, _, sink := newTestClone()

	c.Deliver(wire.SnapshotSync("clone1"))
	c.Deliver(wire.Put(data.String("k"), data.Int(1), nil, pub()))
	require.Empty(t, sink.events)

	c.Deliver(wire.Command{Kind: wire.KindSet})
	require.Len(t, sink.events, 1)
	require.Equal(t, event.Insert, sink.events[0].Kind)
}

func TestCloneAppliesPutEraseAfterResync(t *testing.T) {
	c, _, _ := newTestClone()
	c.Deliver(wire.Command{Kind: wire.KindSet})
	c.Deliver(wire.SnapshotSync("clone1"))

	c.Deliver(wire.Put(data.String("k"), data.Int(1), nil, pub()))
	got, err := c.Get(data.String("k"))
	require.NoError(t, err)
	require.True(t, data.Equal(got, data.Int(1)))

	c.Deliver(wire.Erase(data.String("k"), pub()))
	_, err = c.Get(data.String("k"))
	require.Error(t, err)
}

func TestCloneExpireBroadcastEmitsExpireNotErase(t *testing.T) {
	c, _, sink := newTestClone()
	c.Deliver(wire.Command{Kind: wire.KindSet})
	c.Deliver(wire.SnapshotSync("clone1"))

	c.Deliver(wire.Put(data.String("k"), data.Int(1), nil, pub()))
	c.Deliver(wire.Expire(data.String("k"), pub()))

	require.Equal(t, event.Expire, sink.events[len(sink.events)-1].Kind)
}

func TestCloneRejectsPutUniqueFromMaster(t *testing.T) {
	c, _, _ := newTestClone()
	c.Deliver(wire.Command{Kind: wire.KindSet})
	c.Deliver(wire.SnapshotSync("clone1"))

	c.Deliver(wire.PutUnique(data.String("k"), data.Int(1), nil, pub(), "", 0))
	require.Error(t, c.Fatal())
}

func TestClonePutForwardsToMaster(t *testing.T) {
	c, fwd, _ := newTestClone()
	c.Deliver(wire.Command{Kind: wire.KindSet})
	c.Deliver(wire.SnapshotSync("clone1"))

	cmd := wire.Put(data.String("k"), data.Int(1), nil, pub())
	c.Put(cmd)
	require.Len(t, fwd.forwarded, 1)
	require.Equal(t, wire.KindPut, fwd.forwarded[0].Kind)

	// Forwarding alone must not mutate local state; only the rebroadcast
	// the master sends back does that.
	_, err := c.Get(data.String("k"))
	require.Error(t, err)
}

func TestCloneIsStaleUntilResynced(t *testing.T) {
	c, _, _ := newTestClone()
	require.True(t, c.IsStale())

	c.Deliver(wire.Command{Kind: wire.KindSet})
	c.Deliver(wire.SnapshotSync("clone1"))
	require.False(t, c.IsStale())

	c.MarkStale()
	require.True(t, c.IsStale())
}

func TestCloneGetReturnsStaleDataWithNoQuerier(t *testing.T) {
	c, _, _ := newTestClone()

	_, err := c.Get(data.String("k"))
	require.Error(t, err)
	require.Equal(t, ec.StaleData, err.(*ec.Error).Code)
}

type fakeQuerier struct {
	gets []data.Value
	val  data.Value
}

func (q *fakeQuerier) Get(key data.Value) (data.Value, error) {
	q.gets = append(q.gets, key)
	return q.val, nil
}
func (q *fakeQuerier) GetAspect(key, aspect data.Value) (data.Value, error) { return q.val, nil }
func (q *fakeQuerier) Exists(key data.Value) (bool, error)                  { return true, nil }
func (q *fakeQuerier) Keys() (data.Value, error)                            { return data.Value{}, nil }

func TestCloneGetForwardsToQuerierWhileStale(t *testing.T) {
	backend := store.NewMemory()
	fwd := &fakeForwarder{}
	sink := &recordingSink{}
	query := &fakeQuerier{val: data.Int(99)}
	c := New("mystore", backend, sink, fwd, query, nil)

	got, err := c.Get(data.String("k"))
	require.NoError(t, err)
	require.True(t, data.Equal(got, data.Int(99)))
	require.Len(t, query.gets, 1)
}
