package endpoint

import (
	"sync"
	"time"

	"github.com/broker/broker/internal/clock"
	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/pubid"
	"github.com/broker/broker/internal/topic"
	"github.com/broker/broker/internal/wire"
)

// publisherQueueSize matches the original's queue_size: how many
// pending data_messages a Publisher buffers. A Publish that finds the
// buffer full waits for room by flushing it to the sink first.
const publisherQueueSize = 30

// rateSampleWindow matches the original's sample_size: ticks averaged
// into send_rate.
const rateSampleWindow = 10

// Sender is how a Publisher hands a drained value off to the rest of
// the endpoint for transmission.
type Sender interface {
	SendData(m wire.DataMessage)
}

// Publisher buffers values produced for one topic and drains them to a
// Sender inline on the publishing goroutine, reporting demand/capacity/send_rate the
// way the original publisher/shared_publisher_queue pair does.
type Publisher struct {
	topic topic.Topic
	pub   pubid.ID
	q     *queue[wire.DataMessage]
	sink  Sender
	clk   clock.Clock

	mu       sync.Mutex
	samples  []int64
	counter  int64
	dropAll  bool
	done     chan struct{}
	closed   bool
}

// NewPublisher starts a Publisher that drains onto sink, sampling its
// throughput once per second of clk's time.
func NewPublisher(t topic.Topic, pub pubid.ID, sink Sender, clk clock.Clock) (*Publisher, error) {
	q, err := newQueue[wire.DataMessage](publisherQueueSize)
	if err != nil {
		return nil, err
	}
	p := &Publisher{topic: t, pub: pub, q: q, sink: sink, clk: clk, done: make(chan struct{})}
	p.scheduleTick()
	return p, nil
}

func (p *Publisher) scheduleTick() {
	p.clk.SendLater(time.Second, func() {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		if len(p.samples) >= rateSampleWindow {
			p.samples = p.samples[1:]
		}
		p.samples = append(p.samples, p.counter)
		p.counter = 0
		var sum int64
		for _, s := range p.samples {
			sum += s
		}
		p.q.SetRate(sum / int64(len(p.samples)))
		p.mu.Unlock()
		p.scheduleTick()
	})
}

// Publish hands x to the drain loop for this publisher's topic.
func (p *Publisher) Publish(x data.Value) {
	m := wire.NewDataMessage(p.topic, x, p.pub)
	for !p.q.push(m) {
		p.drain()
	}
	p.drain()
}

// PublishBatch publishes every value in order, preserving the "appears
// to subscribers in the order handed to the publisher" guarantee.
func (p *Publisher) PublishBatch(xs []data.Value) {
	for _, x := range xs {
		p.Publish(x)
	}
}

// drain flushes everything currently buffered straight to the sink;
// there is no separate worker task in this port, so Publish is the
// only producer and this runs inline on its caller.
func (p *Publisher) drain() {
	for {
		m, ok := p.q.pop()
		if !ok {
			return
		}
		p.sink.SendData(m)
		p.mu.Lock()
		p.counter++
		p.mu.Unlock()
	}
}

func (p *Publisher) Demand() int64        { return p.q.Pending() }
func (p *Publisher) Buffered() int        { return p.q.size() }
func (p *Publisher) Capacity() int        { return publisherQueueSize }
func (p *Publisher) FreeCapacity() int    { return p.Capacity() - p.Buffered() }
func (p *Publisher) SendRate() int64      { return p.q.Rate() }
func (p *Publisher) FD() uintptr          { return p.q.FD() }

// DropAllOnDestruction forces Close to discard buffered values instead
// of draining them.
func (p *Publisher) DropAllOnDestruction() {
	p.mu.Lock()
	p.dropAll = true
	p.mu.Unlock()
}

// Reset discards every currently buffered value without sending it.
func (p *Publisher) Reset() {
	p.q.popN(p.q.size())
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	dropAll := p.dropAll
	p.mu.Unlock()
	if dropAll {
		p.Reset()
	} else {
		p.drain()
	}
	close(p.done)
	return p.q.Close()
}
