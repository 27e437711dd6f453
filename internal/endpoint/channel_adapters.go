package endpoint

import (
	"github.com/broker/broker/internal/channel"
	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/ec"
	"github.com/broker/broker/internal/store"
	"github.com/broker/broker/internal/store/clone"
	"github.com/broker/broker/internal/store/master"
	"github.com/broker/broker/internal/topic"
	"github.com/broker/broker/internal/wire"
)

// masterBinding holds everything a master needs to speak the channel
// protocol to its attached clones, local or remote. The generic
// channel.Producer is usable directly as master.Broadcaster: its
// Produce/Add/Remove/Idle methods already match that interface once
// instantiated with wire.RemoteHandle/wire.Message.
type masterBinding struct {
	m    *master.Master
	prod *channel.Producer[wire.RemoteHandle, wire.Message]
}

// cloneBinding holds everything a clone needs to speak the channel
// protocol to its master, local or remote.
type cloneBinding struct {
	c      *clone.Clone
	cons   *channel.Consumer[wire.Message]
	master wire.RemoteHandle
}

func (ep *Endpoint) masterBindingFor(name string) *masterBinding {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.masters[name]
}

func (ep *Endpoint) cloneBindingFor(name string) *cloneBinding {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.clones[name]
}

// masterProducerBackend fans a master's producer traffic out over the
// transport, special-casing localHandle as a direct in-process call into
// the colocated clone's consumer instead of a wire round trip.
type masterProducerBackend struct {
	ep      *Endpoint
	channel string
}

func (b *masterProducerBackend) Send(to []wire.RemoteHandle, ev channel.Event[wire.Message]) {
	for _, h := range to {
		b.SendOne(h, ev)
	}
}

func (b *masterProducerBackend) SendOne(to wire.RemoteHandle, ev channel.Event[wire.Message]) {
	if to == localHandle {
		if cb := b.ep.cloneBindingFor(b.channel); cb != nil {
			cb.cons.HandleEvent(ev.Seq, ev.Payload)
		}
		return
	}
	_ = b.ep.tr.SendViaRouter(to, wire.EventFrame(ev).OnChannel(b.channel))
}

func (b *masterProducerBackend) SendHandshake(to wire.RemoteHandle, hs channel.Handshake) {
	if to == localHandle {
		if cb := b.ep.cloneBindingFor(b.channel); cb != nil {
			cb.cons.HandleHandshake(hs.Offset)
		}
		return
	}
	_ = b.ep.tr.SendViaRouter(to, wire.HandshakeFrame(hs).OnChannel(b.channel))
}

func (b *masterProducerBackend) SendRetransmitFailed(to wire.RemoteHandle, seq channel.SeqNum) {
	if to == localHandle {
		if cb := b.ep.cloneBindingFor(b.channel); cb != nil {
			_ = cb.cons.HandleRetransmitFailed(seq)
		}
		return
	}
	_ = b.ep.tr.SendViaRouter(to, wire.RetransmitFailedFrame(channel.RetransmitFailed{Seq: seq}).OnChannel(b.channel))
}

// cloneConsumerBackend delivers a clone's consumer traffic to the
// application and sends ack/nack control frames back toward its master,
// again special-casing a colocated master as a direct call. The master
// handle is read live off the clone binding rather than captured at
// construction, so a Resync that repoints the binding at a different
// master takes effect immediately.
type cloneConsumerBackend struct {
	ep      *Endpoint
	channel string
}

func (b *cloneConsumerBackend) masterHandle() wire.RemoteHandle {
	if cb := b.ep.cloneBindingFor(b.channel); cb != nil {
		return cb.master
	}
	return ""
}

func (b *cloneConsumerBackend) Consume(payload wire.Message) {
	if cb := b.ep.cloneBindingFor(b.channel); cb != nil {
		cb.c.Deliver(payload.Command)
	}
}

func (b *cloneConsumerBackend) SendAck(seq channel.SeqNum) {
	master := b.masterHandle()
	if master == localHandle {
		if mb := b.ep.masterBindingFor(b.channel); mb != nil {
			mb.prod.HandleAck(localHandle, seq)
		}
		return
	}
	_ = b.ep.tr.SendFrame(master, wire.AckFrame(channel.CumulativeAck{Seq: seq}).OnChannel(b.channel))
}

func (b *cloneConsumerBackend) SendNack(seqs []channel.SeqNum) {
	master := b.masterHandle()
	if master == localHandle {
		if mb := b.ep.masterBindingFor(b.channel); mb != nil {
			mb.prod.HandleNack(localHandle, seqs)
		}
		return
	}
	_ = b.ep.tr.SendFrame(master, wire.NackFrame(channel.Nack{Seqs: seqs}).OnChannel(b.channel))
}

// channelForwarder carries a clone's locally-issued mutating command to
// the master that owns its store, either as a direct call (colocated
// master) or a point-to-point FrameCommand (remote master). Like
// cloneConsumerBackend, it reads the master handle live off the binding.
type channelForwarder struct {
	ep      *Endpoint
	channel string
}

func (f *channelForwarder) masterHandle() wire.RemoteHandle {
	if cb := f.ep.cloneBindingFor(f.channel); cb != nil {
		return cb.master
	}
	return ""
}

func (f *channelForwarder) Forward(cmd wire.Command) {
	master := f.masterHandle()
	if master == localHandle {
		if mb := f.ep.masterBindingFor(f.channel); mb != nil {
			mb.m.Command(cmd)
		}
		return
	}
	msg := wire.Message{Topic: topic.CloneTopic(f.channel), Command: cmd}
	_ = f.ep.tr.SendFrame(master, wire.CommandFrame(msg).OnChannel(f.channel))
}

// cloneQuerier serves a stale clone's reads against a colocated master
// directly. A remote master has no synchronous query round trip defined
// over the wire protocol, so a clone stale against a remote master
// answers ec.StaleData instead until the resync completes.
type cloneQuerier struct {
	ep      *Endpoint
	channel string
}

func (q *cloneQuerier) localMaster() *masterBinding {
	cb := q.ep.cloneBindingFor(q.channel)
	if cb == nil || cb.master != localHandle {
		return nil
	}
	return q.ep.masterBindingFor(q.channel)
}

func (q *cloneQuerier) Get(key data.Value) (data.Value, error) {
	mb := q.localMaster()
	if mb == nil {
		return data.Value{}, ec.New(ec.StaleData)
	}
	return mb.m.Get(key)
}

func (q *cloneQuerier) GetAspect(key, aspect data.Value) (data.Value, error) {
	mb := q.localMaster()
	if mb == nil {
		return data.Value{}, ec.New(ec.StaleData)
	}
	return mb.m.GetAspect(key, aspect)
}

func (q *cloneQuerier) Exists(key data.Value) (bool, error) {
	mb := q.localMaster()
	if mb == nil {
		return false, ec.New(ec.StaleData)
	}
	return mb.m.Exists(key)
}

func (q *cloneQuerier) Keys() (data.Value, error) {
	mb := q.localMaster()
	if mb == nil {
		return data.Value{}, ec.New(ec.StaleData)
	}
	return mb.m.Keys()
}

// masterReplies delivers a master's put_unique verdicts and bulk
// snapshots, both of which travel outside the ordered channel.
type masterReplies struct {
	ep      *Endpoint
	channel string
}

func (r *masterReplies) ReplyPutUnique(who wire.RemoteHandle, ok bool, reqID uint64) {
	if who == r.ep.self {
		r.ep.resolvePutUnique(reqID, ok)
		return
	}
	_ = r.ep.tr.SendViaRouter(who, wire.PutUniqueReplyFrame(reqID, ok))
}

func (r *masterReplies) SendSet(cloneHandle wire.RemoteHandle, snapshot []store.Entry) {
	if cloneHandle == localHandle {
		if cb := r.ep.cloneBindingFor(r.channel); cb != nil {
			cb.c.Deliver(wire.Set(snapshot))
		}
		return
	}
	_ = r.ep.tr.SendViaRouter(cloneHandle, wire.SetFrame(snapshot).OnChannel(r.channel))
}
