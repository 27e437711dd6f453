package endpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/broker/broker/internal/clock"
	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/store"
	"github.com/broker/broker/internal/topic"
	"github.com/broker/broker/internal/wire"
)

func newTestEndpoint(t *testing.T, routerAddr, pubAddr string) *Endpoint {
	t.Helper()
	clk := clock.NewVirtual(time.Unix(0, 0))
	ep, err := New("node://"+routerAddr, routerAddr, pubAddr, nil, clk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ep.Shutdown() })
	return ep
}

func TestAttachMasterThenLocalCloneSeesSnapshot(t *testing.T) {
	ep := newTestEndpoint(t, "tcp://127.0.0.1:27711", "tcp://127.0.0.1:27712")

	masterStore, err := ep.AttachMaster("kv", store.NewMemory())
	require.NoError(t, err)
	masterStore.Put(data.String("k"), data.Int(1), nil)

	cloneStore, err := ep.AttachClone("kv")
	require.NoError(t, err)

	got, err := cloneStore.Get(data.String("k"))
	require.NoError(t, err)
	require.True(t, data.Equal(got, data.Int(1)))
}

func TestLocalClonePutForwardsToMaster(t *testing.T) {
	ep := newTestEndpoint(t, "tcp://127.0.0.1:27713", "tcp://127.0.0.1:27714")

	masterStore, err := ep.AttachMaster("kv", store.NewMemory())
	require.NoError(t, err)
	cloneStore, err := ep.AttachClone("kv")
	require.NoError(t, err)

	cloneStore.Put(data.String("k"), data.Int(42), nil)

	got, err := masterStore.Get(data.String("k"))
	require.NoError(t, err)
	require.True(t, data.Equal(got, data.Int(42)))
}

func TestLocalPutUniqueResolvesExactlyOnce(t *testing.T) {
	ep := newTestEndpoint(t, "tcp://127.0.0.1:27715", "tcp://127.0.0.1:27716")

	masterStore, err := ep.AttachMaster("kv", store.NewMemory())
	require.NoError(t, err)

	ok1, err := masterStore.PutUnique(data.String("k"), data.Int(1), nil, time.Second)
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := masterStore.PutUnique(data.String("k"), data.Int(2), nil, time.Second)
	require.NoError(t, err)
	require.False(t, ok2)
}

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	ep := newTestEndpoint(t, "tcp://127.0.0.1:27717", "tcp://127.0.0.1:27718")

	sub, err := ep.MakeSubscriber([]topic.Topic{topic.Topic("/a")}, 0)
	require.NoError(t, err)

	ep.Publish(topic.Topic("/a/b"), data.Int(7))

	got := sub.Get()
	require.Equal(t, topic.Topic("/a/b"), got.Topic)
	require.True(t, data.Equal(got.Data.Data, data.Int(7)))
}

func TestPublishToSelfDispatchesLocally(t *testing.T) {
	ep := newTestEndpoint(t, "tcp://127.0.0.1:27719", "tcp://127.0.0.1:27720")

	sub, err := ep.MakeSubscriber([]topic.Topic{topic.Topic("/a")}, 0)
	require.NoError(t, err)

	ep.PublishTo(ep.Listen(), topic.Topic("/a"), data.Int(9))

	got := sub.Get()
	require.True(t, data.Equal(got.Data.Data, data.Int(9)))
}

func TestUnpeerRemovesClonePathFromMaster(t *testing.T) {
	ep := newTestEndpoint(t, "tcp://127.0.0.1:27721", "tcp://127.0.0.1:27722")

	masterStore, err := ep.AttachMaster("kv", store.NewMemory())
	require.NoError(t, err)

	mb := ep.masterBindingFor("kv")
	require.NoError(t, mb.prod.Add(wire.RemoteHandle("peer1")))

	masterStore.Put(data.String("k"), data.Int(1), nil)
	require.False(t, masterStore.Idle(), "an unacked clone path must make the master non-idle")

	ep.Unpeer(wire.RemoteHandle("peer1"))
	require.True(t, masterStore.Idle(), "Unpeer must remove the clone's path from every attached master's fanout")
}
