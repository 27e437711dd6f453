// Package transport implements the unreliable, unordered substrate the
// reliable channel (internal/channel) and topic fan-out ride on top of,
// using ZeroMQ the way the teacher's broker.go ROUTER/DEALER proxy and
// server-unifiedddd's pub/sub globals do: a ROUTER socket accepts
// peer-to-peer channel frames, one DEALER socket per peer carries them
// out, and a PUB/SUB pair carries topic-keyed application messages.
package transport

import (
	"fmt"
	"sync"

	zmq "github.com/pebbe/zmq4"

	"github.com/broker/broker/internal/logging"
	"github.com/broker/broker/internal/topic"
	"github.com/broker/broker/internal/wire"
)

// FrameHandler receives one decoded channel frame from a peer.
type FrameHandler func(from wire.RemoteHandle, f wire.Frame)

// MessageHandler receives one decoded application data message,
// published by whichever peer's PUB socket we're subscribed to.
type MessageHandler func(t topic.Topic, msg wire.DataMessage)

// Transport owns the sockets for one endpoint. All methods except Run
// are safe to call concurrently; Run must only be called once.
type Transport struct {
	self wire.RemoteHandle
	log  *logging.Logger

	ctx    *zmq.Context
	router *zmq.Socket // bound; accepts frames from peers whose DEALER identity is their handle
	pub    *zmq.Socket // bound; publishes this endpoint's outgoing topic messages
	sub    *zmq.Socket // connects outward to every peered endpoint's PUB socket

	mu      sync.Mutex
	dealers map[wire.RemoteHandle]*zmq.Socket

	onFrame   FrameHandler
	onMessage MessageHandler
}

// New binds the router and pub sockets at the given addresses and
// returns a Transport ready to Peer() with others and Run().
func New(self wire.RemoteHandle, routerAddr, pubAddr string) (*Transport, error) {
	ctx, err := zmq.NewContext()
	if err != nil {
		return nil, err
	}
	router, err := ctx.NewSocket(zmq.ROUTER)
	if err != nil {
		return nil, err
	}
	if err := router.Bind(routerAddr); err != nil {
		return nil, fmt.Errorf("transport: bind router %s: %w", routerAddr, err)
	}
	pub, err := ctx.NewSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	if err := pub.Bind(pubAddr); err != nil {
		return nil, fmt.Errorf("transport: bind pub %s: %w", pubAddr, err)
	}
	sub, err := ctx.NewSocket(zmq.SUB)
	if err != nil {
		return nil, err
	}
	return &Transport{
		self:    self,
		log:     logging.New("transport"),
		ctx:     ctx,
		router:  router,
		pub:     pub,
		sub:     sub,
		dealers: map[wire.RemoteHandle]*zmq.Socket{},
	}, nil
}

// OnFrame registers the callback invoked for every frame the router
// receives. Must be called before Run.
func (t *Transport) OnFrame(h FrameHandler) { t.onFrame = h }

// OnMessage registers the callback invoked for every topic message the
// sub socket receives. Must be called before Run.
func (t *Transport) OnMessage(h MessageHandler) { t.onMessage = h }

// Peer connects a DEALER socket to addr, identifying ourselves by self
// so the remote's ROUTER can address replies back to us, and subscribes
// our SUB socket to the remote's PUB endpoint at pubAddr.
func (t *Transport) Peer(remote wire.RemoteHandle, dealerAddr, pubAddr string) error {
	dealer, err := t.ctx.NewSocket(zmq.DEALER)
	if err != nil {
		return err
	}
	if err := dealer.SetIdentity(string(t.self)); err != nil {
		return err
	}
	if err := dealer.Connect(dealerAddr); err != nil {
		return err
	}
	if err := t.sub.Connect(pubAddr); err != nil {
		return err
	}
	t.mu.Lock()
	t.dealers[remote] = dealer
	t.mu.Unlock()
	return nil
}

// Unpeer closes the DEALER socket for remote; the SUB socket's
// subscription is left in place since disconnecting it would require
// tracking the peer's original pub address, which we don't keep once
// peered (harmless: an unreachable PUB socket simply stops producing).
func (t *Transport) Unpeer(remote wire.RemoteHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.dealers[remote]; ok {
		d.Close()
		delete(t.dealers, remote)
	}
}

// PeerCount reports the number of currently peered remotes.
func (t *Transport) PeerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dealers)
}

// Subscribe adds a topic prefix to our SUB socket's subscription set.
func (t *Transport) Subscribe(tp topic.Topic) error {
	return t.sub.SetSubscribe(string(tp))
}

// SendFrame delivers f to remote over its DEALER socket.
func (t *Transport) SendFrame(remote wire.RemoteHandle, f wire.Frame) error {
	t.mu.Lock()
	d, ok := t.dealers[remote]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: no connection to %s", remote)
	}
	raw, err := wire.MarshalFrame(f)
	if err != nil {
		return err
	}
	_, err = d.SendBytes(raw, 0)
	return err
}

// SendViaRouter replies to remote over the bound router socket, usable
// for any peer that has a DEALER connected to us even if we never
// dialed them back with Peer — the snapshot and put_unique reply paths
// both talk to whichever end originated the request this way.
func (t *Transport) SendViaRouter(remote wire.RemoteHandle, f wire.Frame) error {
	raw, err := wire.MarshalFrame(f)
	if err != nil {
		return err
	}
	_, err = t.router.SendMessage(string(remote), raw)
	return err
}

// Publish fans msg out under tp, the multipart [topic, payload] shape
// server-unifiedddd's sub_loop.go expects on the receiving side.
func (t *Transport) Publish(tp topic.Topic, msg wire.DataMessage) error {
	raw, err := wire.MarshalData(msg)
	if err != nil {
		return err
	}
	_, err = t.pub.SendMessage(string(tp), raw)
	return err
}

// Run starts the router and sub receive loops on their own goroutines
// and returns immediately; the loops exit once Close tears the sockets
// down.
func (t *Transport) Run() {
	go t.routerLoop()
	go t.subLoop()
}

func (t *Transport) routerLoop() {
	for {
		parts, err := t.router.RecvMessageBytes(0)
		if err != nil {
			t.log.Warningf("router recv: %v", err)
			return
		}
		if len(parts) < 2 {
			continue
		}
		from := wire.RemoteHandle(parts[0])
		f, err := wire.UnmarshalFrame(parts[1])
		if err != nil {
			t.log.Warningf("router decode from %s: %v", from, err)
			continue
		}
		if t.onFrame != nil {
			t.onFrame(from, f)
		}
	}
}

func (t *Transport) subLoop() {
	for {
		parts, err := t.sub.RecvMessageBytes(0)
		if err != nil {
			t.log.Warningf("sub recv: %v", err)
			return
		}
		if len(parts) < 2 {
			continue
		}
		tp := topic.Topic(parts[0])
		msg, err := wire.UnmarshalData(parts[1])
		if err != nil {
			t.log.Warningf("sub decode on %s: %v", tp, err)
			continue
		}
		if t.onMessage != nil {
			t.onMessage(tp, msg)
		}
	}
}

// Close tears down every socket and the owning context.
func (t *Transport) Close() error {
	t.mu.Lock()
	for _, d := range t.dealers {
		d.Close()
	}
	t.mu.Unlock()
	t.router.Close()
	t.pub.Close()
	t.sub.Close()
	return t.ctx.Term()
}
