package channel

import (
	"reflect"
	"testing"
)

// fakeBackend wires a Producer directly to a Consumer in-process, dropping
// events that the test marks for loss, for deterministic unit tests.
type fakeBackend struct {
	consumer *Consumer[string]
	drop     map[SeqNum]bool

	delivered        []string
	acksFromConsumer []SeqNum
	nacksFromConsumer [][]SeqNum
	handshakesFromProducer []Handshake
	retransmitFailed []SeqNum
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{drop: map[SeqNum]bool{}}
}

// -- ProducerBackend --

func (b *fakeBackend) Send(to []string, ev Event[string]) {
	for range to {
		b.deliverToConsumer(ev)
	}
}

func (b *fakeBackend) SendOne(to string, ev Event[string]) {
	b.deliverToConsumer(ev)
}

func (b *fakeBackend) deliverToConsumer(ev Event[string]) {
	if b.drop[ev.Seq] {
		return
	}
	b.consumer.HandleEvent(ev.Seq, ev.Payload)
}

func (b *fakeBackend) SendHandshake(to string, hs Handshake) {
	b.handshakesFromProducer = append(b.handshakesFromProducer, hs)
	b.consumer.HandleHandshake(hs.Offset)
}

func (b *fakeBackend) SendRetransmitFailed(to string, seq SeqNum) {
	b.retransmitFailed = append(b.retransmitFailed, seq)
}

// -- ConsumerBackend --

func (b *fakeBackend) Consume(payload string) {
	b.delivered = append(b.delivered, payload)
}

func (b *fakeBackend) SendAck(seq SeqNum) {
	b.acksFromConsumer = append(b.acksFromConsumer, seq)
}

func (b *fakeBackend) SendNack(seqs []SeqNum) {
	b.nacksFromConsumer = append(b.nacksFromConsumer, seqs)
}

func TestInOrderDelivery(t *testing.T) {
	b := newFakeBackend()
	cons := NewConsumer[string](b)
	b.consumer = cons
	prod := NewProducer[string, string](b)

	if err := prod.Add("c1"); err != nil {
		t.Fatal(err)
	}
	prod.Produce("a")
	prod.Produce("b")
	prod.Produce("c")

	if got, want := b.delivered, []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("delivered = %v, want %v", got, want)
	}
}

func TestFirstAckIsZero(t *testing.T) {
	b := newFakeBackend()
	cons := NewConsumer[string](b)
	b.consumer = cons
	prod := NewProducer[string, string](b)
	prod.Add("c1")

	cons.Tick()
	if len(b.acksFromConsumer) != 1 || b.acksFromConsumer[0] != 0 {
		t.Fatalf("first ack = %v, want [0]", b.acksFromConsumer)
	}
	prod.HandleAck("c1", 0) // producer tolerates ack(0) as "nothing delivered yet"
}

func TestProducerBufferPruning(t *testing.T) {
	b := newFakeBackend()
	cons := NewConsumer[string](b)
	b.consumer = cons
	prod := NewProducer[string, string](b)
	prod.Add("c1")

	prod.Produce("a")
	prod.Produce("b")
	prod.Produce("c")
	if prod.Buffered() != 3 {
		t.Fatalf("buffered = %d, want 3", prod.Buffered())
	}
	prod.HandleAck("c1", 2)
	if prod.Buffered() != 1 {
		t.Fatalf("buffered after ack(2) = %d, want 1 (event with seq > 2)", prod.Buffered())
	}
}

func TestAckToleratesBeyondSeq(t *testing.T) {
	b := newFakeBackend()
	cons := NewConsumer[string](b)
	b.consumer = cons
	prod := NewProducer[string, string](b)
	prod.Add("c1")
	prod.Produce("a")

	prod.HandleAck("c1", 1000) // must be clamped, not rejected
	if !prod.Idle() {
		t.Fatalf("expected idle after over-large ack")
	}
}

// TestNackDrivenRetransmit exercises the scenario from spec.md §8.6:
// inject {1,2,3,4,5}, drop 3; after nack_timeout idle ticks the consumer
// NACKs {3}, the producer retransmits it, and the consumer delivers
// 3,4,5 in order, then acks 5 on the next tick.
func TestNackDrivenRetransmit(t *testing.T) {
	b := newFakeBackend()
	cons := NewConsumer[string](b)
	cons.NackTimeout = 2
	cons.AckInterval = 1
	b.consumer = cons
	prod := NewProducer[string, string](b)
	prod.Add("c1")

	b.drop[3] = true
	prod.Produce("1")
	prod.Produce("2")
	prod.Produce("3")
	prod.Produce("4")
	prod.Produce("5")

	if got, want := b.delivered, []string{"1", "2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("delivered before nack = %v, want %v", got, want)
	}

	cons.Tick() // idle 1
	cons.Tick() // idle 2, reaches NackTimeout
	if len(b.nacksFromConsumer) != 1 || !reflect.DeepEqual(b.nacksFromConsumer[0], []SeqNum{3}) {
		t.Fatalf("nacks = %v, want [[3]]", b.nacksFromConsumer)
	}

	b.drop[3] = false
	prod.HandleNack("c1", b.nacksFromConsumer[0])

	want := []string{"1", "2", "3", "4", "5"}
	if !reflect.DeepEqual(b.delivered, want) {
		t.Fatalf("delivered after retransmit = %v, want %v", b.delivered, want)
	}

	cons.Tick()
	last := b.acksFromConsumer[len(b.acksFromConsumer)-1]
	if last != 5 {
		t.Fatalf("final ack = %d, want 5", last)
	}
}

func TestRetransmitFailedWhenPruned(t *testing.T) {
	b := newFakeBackend()
	cons := NewConsumer[string](b)
	b.consumer = cons
	prod := NewProducer[string, string](b)
	prod.Add("c1")

	prod.Produce("a")
	prod.HandleAck("c1", 1) // prunes seq 1 from the buffer
	prod.HandleNack("c1", []SeqNum{1})

	if len(b.retransmitFailed) != 1 || b.retransmitFailed[0] != 1 {
		t.Fatalf("retransmitFailed = %v, want [1]", b.retransmitFailed)
	}
}

func TestNackZeroResendsHandshake(t *testing.T) {
	b := newFakeBackend()
	cons := NewConsumer[string](b)
	b.consumer = cons
	prod := NewProducer[string, string](b)
	prod.Add("c1")
	initialHandshakes := len(b.handshakesFromProducer)

	prod.HandleNack("c1", []SeqNum{0})
	if len(b.handshakesFromProducer) != initialHandshakes+1 {
		t.Fatalf("expected a resent handshake")
	}
}

func TestDuplicateConsumerRejected(t *testing.T) {
	b := newFakeBackend()
	cons := NewConsumer[string](b)
	b.consumer = cons
	prod := NewProducer[string, string](b)
	if err := prod.Add("c1"); err != nil {
		t.Fatal(err)
	}
	if err := prod.Add("c1"); err != ErrConsumerExists {
		t.Fatalf("err = %v, want ErrConsumerExists", err)
	}
}

func TestOutOfOrderBufferingAndDedup(t *testing.T) {
	b := newFakeBackend()
	cons := NewConsumer[string](b)
	b.consumer = cons

	cons.HandleHandshake(1)
	cons.HandleEvent(3, "c")
	cons.HandleEvent(2, "b")
	cons.HandleEvent(3, "c-dup") // duplicate seq, must be ignored
	if cons.Buffered() != 2 {
		t.Fatalf("buffered = %d, want 2", cons.Buffered())
	}
	cons.HandleEvent(1, "a")
	if got, want := b.delivered, []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("delivered = %v, want %v", got, want)
	}
}
