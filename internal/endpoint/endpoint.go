// Package endpoint assembles the transport, channel, and store state
// machines into the public contract spec.md §6 describes: listen/peer,
// publish/subscribe, and attach_master/attach_clone.
package endpoint

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/broker/broker/internal/admin"
	"github.com/broker/broker/internal/channel"
	"github.com/broker/broker/internal/clock"
	"github.com/broker/broker/internal/config"
	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/ec"
	"github.com/broker/broker/internal/logging"
	"github.com/broker/broker/internal/metrics"
	"github.com/broker/broker/internal/pubid"
	"github.com/broker/broker/internal/store"
	"github.com/broker/broker/internal/store/clone"
	"github.com/broker/broker/internal/store/event"
	"github.com/broker/broker/internal/store/master"
	"github.com/broker/broker/internal/topic"
	"github.com/broker/broker/internal/transport"
	"github.com/broker/broker/internal/wire"
)

// localHandle is the reserved remote handle a colocated master/clone
// pair addresses each other with, so a same-process attach still goes
// through the exact same channel protocol and snapshot bootstrapping a
// remote attach does, just with every wire frame short-circuited into a
// direct call instead of a round trip through the transport.
const localHandle = wire.RemoteHandle("local")

// Endpoint is one broker node: a transport, a node identity, and the
// set of stores, publishers, and subscribers attached to it.
type Endpoint struct {
	self wire.RemoteHandle
	node uuid.UUID
	cfg  *config.Config
	log  *logging.Logger
	clk  clock.Clock
	reg  *metrics.Registry

	tr *transport.Transport

	mu          sync.Mutex
	masters     map[string]*masterBinding
	clones      map[string]*cloneBinding
	subscribers []*Subscriber
	publishers  map[*Publisher]struct{}
	statusSubs  []*StatusSubscriber

	pendingPutUnique map[uint64]chan bool
	nextReq          atomic.Uint64
	nextLocal        atomic.Uint64
}

// New creates an endpoint identified by self (its address as peers see
// it, e.g. "host:port"), bound to routerAddr for channel/command
// traffic and pubAddr for topic fan-out.
func New(self string, routerAddr, pubAddr string, cfg *config.Config, clk clock.Clock) (*Endpoint, error) {
	tr, err := transport.New(wire.RemoteHandle(self), routerAddr, pubAddr)
	if err != nil {
		return nil, err
	}
	ep := &Endpoint{
		self:             wire.RemoteHandle(self),
		node:             uuid.New(),
		cfg:              cfg,
		log:              logging.New("endpoint"),
		clk:              clk,
		tr:               tr,
		masters:          map[string]*masterBinding{},
		clones:           map[string]*cloneBinding{},
		publishers:       map[*Publisher]struct{}{},
		pendingPutUnique: map[uint64]chan bool{},
	}
	if cfg != nil {
		ep.reg = metrics.NewRegistry()
		if err := metrics.Serve(cfg.MetricsPort, ep.reg); err != nil {
			return nil, err
		}
		if err := admin.Serve(cfg.AdminPort, ep); err != nil {
			return nil, err
		}
	}
	tr.OnFrame(ep.handleFrame)
	tr.OnMessage(ep.handleMessage)
	tr.Run()
	return ep, nil
}

func (ep *Endpoint) nextPub() pubid.ID {
	return pubid.New(ep.node, ep.nextLocal.Add(1))
}

func (ep *Endpoint) nextReqID() uint64 { return ep.nextReq.Add(1) }

// --- listen / peer ---

// Listen is a no-op beyond construction in this port: New already binds
// the router and pub sockets. It exists to keep the public surface
// matching spec.md §6's listen/peer/publish naming.
func (ep *Endpoint) Listen() wire.RemoteHandle { return ep.self }

// PeerCount reports the number of currently peered remotes, for the
// admin direct-request status query.
func (ep *Endpoint) PeerCount() int { return ep.tr.PeerCount() }

// StoreNames lists every store attached as a master or clone, for the
// admin direct-request status query.
func (ep *Endpoint) StoreNames() []string {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	names := make([]string, 0, len(ep.masters)+len(ep.clones))
	for name := range ep.masters {
		names = append(names, name)
	}
	for name := range ep.clones {
		names = append(names, name)
	}
	return names
}

// Peer connects to a remote endpoint's router and pub addresses,
// retrying up to retry times (0 means exactly one attempt, per
// spec.md §5).
func (ep *Endpoint) Peer(remote wire.RemoteHandle, routerAddr, pubAddr string, retry int) error {
	var lastErr error
	attempts := retry + 1
	for i := 0; i < attempts; i++ {
		if err := ep.tr.Peer(remote, routerAddr, pubAddr); err != nil {
			lastErr = err
			continue
		}
		for t := range ep.subscribedTopics() {
			_ = ep.tr.Subscribe(t)
		}
		if ep.reg != nil {
			ep.reg.PeersConnected.Inc()
		}
		ep.publishStatus(StatusPeerAdded, remote, nil)
		return nil
	}
	ep.publishStatus(StatusPeerUnavailable, remote, lastErr)
	return ec.Newf(ec.PeerUnavailable, "peer %s: %v", remote, lastErr)
}

// PeerNoSync fires off a peering attempt without waiting for the result.
func (ep *Endpoint) PeerNoSync(remote wire.RemoteHandle, routerAddr, pubAddr string) {
	go func() { _ = ep.Peer(remote, routerAddr, pubAddr, 0) }()
}

func (ep *Endpoint) Unpeer(remote wire.RemoteHandle) {
	ep.tr.Unpeer(remote)
	if ep.reg != nil {
		ep.reg.PeersConnected.Dec()
	}
	ep.notifyClonesDown(remote)
	ep.publishStatus(StatusPeerLost, remote, nil)
}

// notifyClonesDown tells every master attached to this endpoint that
// remote is gone, per spec.md's "loss of a clone" failure policy: the
// clone's path is removed from the fanout, no state change results. An
// explicit Unpeer is the only disconnect signal this transport surfaces;
// a clone the local transport never detects losing its connection (e.g.
// one that simply stops acking without its peer ever being unpeered)
// isn't covered.
func (ep *Endpoint) notifyClonesDown(remote wire.RemoteHandle) {
	ep.mu.Lock()
	masters := make([]*masterBinding, 0, len(ep.masters))
	for _, mb := range ep.masters {
		masters = append(masters, mb)
	}
	ep.mu.Unlock()
	for _, mb := range masters {
		mb.m.OnCloneDown(remote)
	}
}

func (ep *Endpoint) UnpeerNoSync(remote wire.RemoteHandle) {
	go ep.Unpeer(remote)
}

func (ep *Endpoint) subscribedTopics() map[topic.Topic]struct{} {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	out := map[topic.Topic]struct{}{}
	for _, s := range ep.subscribers {
		for _, t := range s.topics {
			out[t] = struct{}{}
		}
	}
	for name := range ep.clones {
		out[topic.CloneTopic(name)] = struct{}{}
	}
	return out
}

// --- publish / subscribe ---

// Publish sends value under t to every subscriber matching it, local
// and remote.
func (ep *Endpoint) Publish(t topic.Topic, value data.Value) {
	msg := wire.NewDataMessage(t, value, ep.nextPub())
	ep.dispatchLocal(t, msg)
	_ = ep.tr.Publish(t, msg)
}

// PublishTo sends value only to dst, bypassing topic fan-out entirely,
// the way the original's publish(endpoint_info, topic, data) addresses
// one peer directly over its own dealer connection to dst rather than
// the pub/sub plane.
func (ep *Endpoint) PublishTo(dst wire.RemoteHandle, t topic.Topic, value data.Value) {
	msg := wire.NewDataMessage(t, value, ep.nextPub())
	if dst == ep.self {
		ep.dispatchLocal(t, msg)
		return
	}
	_ = ep.tr.SendFrame(dst, wire.DataFrame(msg))
}

func (ep *Endpoint) dispatchLocal(t topic.Topic, msg wire.DataMessage) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	for _, s := range ep.subscribers {
		if s.Matches(t) {
			s.deliver(Received{Topic: t, Data: msg})
		}
	}
}

// MakeSubscriber attaches a new Subscriber listening on topics.
func (ep *Endpoint) MakeSubscriber(topics []topic.Topic, maxQSize int) (*Subscriber, error) {
	s, err := NewSubscriber(topics, maxQSize)
	if err != nil {
		return nil, err
	}
	ep.mu.Lock()
	ep.subscribers = append(ep.subscribers, s)
	ep.mu.Unlock()
	for _, t := range topics {
		_ = ep.tr.Subscribe(t)
	}
	return s, nil
}

// MakePublisher attaches a new Publisher for topic t.
func (ep *Endpoint) MakePublisher(t topic.Topic) (*Publisher, error) {
	p, err := NewPublisher(t, ep.nextPub(), ep, ep.clk)
	if err != nil {
		return nil, err
	}
	ep.mu.Lock()
	ep.publishers[p] = struct{}{}
	ep.mu.Unlock()
	return p, nil
}

// SendData implements Sender for Publisher's drain loop.
func (ep *Endpoint) SendData(m wire.DataMessage) {
	ep.dispatchLocal(m.Topic, m)
	_ = ep.tr.Publish(m.Topic, m)
}

// MakeStatusSubscriber attaches a new StatusSubscriber. receiveStatuses
// mirrors spec.md §6's make_status_subscriber(receive_statuses=false):
// when false, ordinary peer_added churn is filtered out and only
// unavailable/lost events are delivered.
func (ep *Endpoint) MakeStatusSubscriber(receiveStatuses bool) (*StatusSubscriber, error) {
	s, err := NewStatusSubscriber(receiveStatuses)
	if err != nil {
		return nil, err
	}
	ep.mu.Lock()
	ep.statusSubs = append(ep.statusSubs, s)
	ep.mu.Unlock()
	return s, nil
}

func (ep *Endpoint) publishStatus(code StatusCode, remote wire.RemoteHandle, err error) {
	ep.mu.Lock()
	subs := append([]*StatusSubscriber{}, ep.statusSubs...)
	ep.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	st := Status{Code: code, Peer: remote, Message: msg}
	for _, s := range subs {
		s.deliver(st)
	}
}

// --- attach_master / attach_clone ---

// AttachMaster creates the authoritative side of store name over
// backend, or returns ec.MasterExists if already attached here.
func (ep *Endpoint) AttachMaster(name string, backend store.Backend) (*Store, error) {
	ep.mu.Lock()
	if _, ok := ep.masters[name]; ok {
		ep.mu.Unlock()
		return nil, ec.New(ec.MasterExists)
	}
	ep.mu.Unlock()

	prod := channel.NewProducer[wire.RemoteHandle, wire.Message](&masterProducerBackend{ep: ep, channel: name})
	m := master.New(name, backend, ep.clk, ep.eventSink(name), prod, &masterReplies{ep: ep, channel: name}, ep.nextPub(), ep.log)
	if err := m.Init(); err != nil {
		return nil, err
	}

	ep.mu.Lock()
	ep.masters[name] = &masterBinding{m: m, prod: prod}
	ep.mu.Unlock()

	_ = ep.tr.Subscribe(topic.CloneTopic(name))
	return &Store{name: name, pub: ep.nextPub(), m: m, ep: ep}, nil
}

// AttachClone creates a read-mostly mirror of the named store. If a
// master for the same name is already attached to this endpoint, the
// clone binds to it immediately over localHandle; otherwise it stays
// unresolved until Resync(name, remoteMaster) points it at a peer.
func (ep *Endpoint) AttachClone(name string) (*Store, error) {
	ep.mu.Lock()
	if _, ok := ep.clones[name]; ok {
		ep.mu.Unlock()
		return nil, ec.New(ec.MasterExists)
	}
	_, local := ep.masters[name]
	ep.mu.Unlock()

	masterHandle := wire.RemoteHandle("")
	if local {
		masterHandle = localHandle
	}

	backend := store.NewMemory()
	fwd := &channelForwarder{ep: ep, channel: name}
	query := &cloneQuerier{ep: ep, channel: name}
	c := clone.New(name, backend, ep.eventSink(name), fwd, query, ep.log)
	cons := channel.NewConsumer[wire.Message](&cloneConsumerBackend{ep: ep, channel: name})

	ep.mu.Lock()
	ep.clones[name] = &cloneBinding{c: c, cons: cons, master: masterHandle}
	ep.mu.Unlock()

	if local {
		if err := ep.Resync(name, localHandle); err != nil {
			return nil, err
		}
	}
	return &Store{name: name, pub: ep.nextPub(), c: c, ep: ep}, nil
}

// Resync points a previously attached clone at masterHandle (local or
// remote) and requests a fresh snapshot, used when attach_clone
// preceded peering or after a retransmit_failed forces a resync.
func (ep *Endpoint) Resync(name string, masterHandle wire.RemoteHandle) error {
	ep.mu.Lock()
	cb, ok := ep.clones[name]
	ep.mu.Unlock()
	if !ok {
		return ec.New(ec.NoSuchMaster)
	}
	cb.master = masterHandle

	if masterHandle == localHandle {
		mb := ep.masterBindingFor(name)
		if mb == nil {
			return ec.New(ec.NoSuchMaster)
		}
		mb.m.Command(wire.Snapshot(ep.self, localHandle))
		return nil
	}

	msg := wire.Message{Topic: topic.CloneTopic(name), Command: wire.Snapshot(masterHandle, ep.self)}
	return ep.tr.SendFrame(masterHandle, wire.CommandFrame(msg).OnChannel(name))
}

func (ep *Endpoint) eventSink(name string) event.Sink {
	return event.Func(func(e event.Event) {
		ep.log.Debugf("store %q: %s", name, e.Kind)
		if ep.reg == nil {
			return
		}
		ep.reg.CommandsApplied.WithLabelValues(name, e.Kind.String()).Inc()
		if mb := ep.masterBindingFor(name); mb != nil {
			ep.reg.ChannelBuffered.WithLabelValues(name).Set(float64(mb.prod.Buffered()))
			idle := 0.0
			if mb.prod.Idle() {
				idle = 1.0
			}
			ep.reg.ChannelIdle.WithLabelValues(name).Set(idle)
		}
	})
}

// --- put_unique reply routing ---

func (ep *Endpoint) registerPutUnique(reqID uint64, ch chan bool) {
	ep.mu.Lock()
	ep.pendingPutUnique[reqID] = ch
	ep.mu.Unlock()
}

func (ep *Endpoint) abandonPutUnique(reqID uint64) {
	ep.mu.Lock()
	delete(ep.pendingPutUnique, reqID)
	ep.mu.Unlock()
}

func (ep *Endpoint) resolvePutUnique(reqID uint64, ok bool) {
	ep.mu.Lock()
	ch, found := ep.pendingPutUnique[reqID]
	if found {
		delete(ep.pendingPutUnique, reqID)
	}
	ep.mu.Unlock()
	if found {
		ch <- ok
	}
}

// --- frame / message dispatch ---

func (ep *Endpoint) handleFrame(from wire.RemoteHandle, f wire.Frame) {
	switch f.Kind {
	case wire.FrameHandshake:
		if cb := ep.cloneBindingFor(f.Channel); cb != nil {
			cb.cons.HandleHandshake(f.HandshakeOffset)
		}
	case wire.FrameEvent:
		if cb := ep.cloneBindingFor(f.Channel); cb != nil {
			cb.cons.HandleEvent(f.EventSeq, f.EventPayload)
		}
	case wire.FrameCumulativeAck:
		if mb := ep.masterBindingFor(f.Channel); mb != nil {
			mb.prod.HandleAck(from, f.AckSeq)
		}
	case wire.FrameNack:
		if mb := ep.masterBindingFor(f.Channel); mb != nil {
			mb.prod.HandleNack(from, f.NackSeqs)
		}
	case wire.FrameRetransmitFailed:
		if cb := ep.cloneBindingFor(f.Channel); cb != nil {
			if err := cb.cons.HandleRetransmitFailed(f.RetransmitFailedSeq); err != nil {
				ep.log.Warningf("clone %q: %v, forcing resync", f.Channel, err)
			}
			cb.c.MarkStale()
			if resyncErr := ep.Resync(f.Channel, cb.master); resyncErr != nil {
				ep.log.Warningf("clone %q: resync against %q failed: %v", f.Channel, cb.master, resyncErr)
			}
		}
	case wire.FrameSet:
		if cb := ep.cloneBindingFor(f.Channel); cb != nil {
			cb.c.Deliver(wire.Set(f.SetSnapshot))
		}
	case wire.FramePutUniqueReply:
		ep.resolvePutUnique(f.ReplyReqID, f.ReplyOK)
	case wire.FrameCommand:
		if mb := ep.masterBindingFor(f.Channel); mb != nil {
			mb.m.Command(f.CommandPayload.Command)
		}
	case wire.FrameData:
		ep.dispatchLocal(f.DataPayload.Topic, f.DataPayload)
	}
}

func (ep *Endpoint) handleMessage(t topic.Topic, msg wire.DataMessage) {
	ep.dispatchLocal(t, msg)
}

// Shutdown drains every publisher and subscriber and tears the
// endpoint's transport down. Cooperative per spec.md §5: publishers
// flush before the sockets close.
func (ep *Endpoint) Shutdown() error {
	ep.mu.Lock()
	pubs := make([]*Publisher, 0, len(ep.publishers))
	for p := range ep.publishers {
		pubs = append(pubs, p)
	}
	subs := append([]*Subscriber{}, ep.subscribers...)
	statusSubs := append([]*StatusSubscriber{}, ep.statusSubs...)
	ep.mu.Unlock()
	for _, p := range pubs {
		_ = p.Close()
	}
	for _, s := range subs {
		_ = s.Close()
	}
	for _, s := range statusSubs {
		_ = s.Close()
	}
	return ep.tr.Close()
}
