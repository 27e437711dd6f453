package channel

// ConsumerBackend is how a Consumer delivers payloads to the application
// and sends control messages back to its producer.
type ConsumerBackend[Payload any] interface {
	Consume(payload Payload)
	SendAck(seq SeqNum)
	SendNack(seqs []SeqNum)
}

// Consumer receives events from a single producer, reorders them, and
// delivers them to the application in strictly monotone sequence order.
type Consumer[Payload any] struct {
	backend ConsumerBackend[Payload]

	nextSeq     SeqNum
	buf         []Event[Payload]
	tick        uint64
	lastTickSeq SeqNum
	idleTicks   uint8

	// AckInterval is the tick frequency of unconditional cumulative acks.
	// Must be >= 1.
	AckInterval uint8
	// NackTimeout is the number of idle ticks (no progress) with a
	// non-empty reorder buffer before a NACK is sent.
	NackTimeout uint8
}

func NewConsumer[Payload any](backend ConsumerBackend[Payload]) *Consumer[Payload] {
	return &Consumer[Payload]{backend: backend, AckInterval: 1, NackTimeout: 1}
}

// HandleHandshake fast-forwards the consumer to offset if it represents
// progress; handshakes older than the current position (retries) are
// ignored.
func (c *Consumer[Payload]) HandleHandshake(offset SeqNum) {
	if offset >= c.nextSeq {
		c.nextSeq = offset
		c.drain()
	}
}

// HandleEvent delivers payload immediately if it is the next expected
// sequence number, buffers it (deduplicating) if it arrived early, or
// silently discards it as a stale duplicate if it arrived late.
func (c *Consumer[Payload]) HandleEvent(seq SeqNum, payload Payload) {
	switch {
	case seq == c.nextSeq:
		c.backend.Consume(payload)
		c.nextSeq++
		c.drain()
	case seq > c.nextSeq:
		c.insertSorted(Event[Payload]{Seq: seq, Payload: payload})
	default:
		// seq < nextSeq: duplicate produced by a NACK resend, discard.
	}
}

// HandleRetransmitFailed reports that the producer can no longer supply
// seq. Callers should treat the returned state as fatal and resync.
func (c *Consumer[Payload]) HandleRetransmitFailed(seq SeqNum) error {
	return ErrRetransmitFailed
}

func (c *Consumer[Payload]) insertSorted(ev Event[Payload]) {
	i := 0
	for i < len(c.buf) && c.buf[i].Seq < ev.Seq {
		i++
	}
	if i < len(c.buf) && c.buf[i].Seq == ev.Seq {
		return // duplicate, already buffered
	}
	c.buf = append(c.buf, Event[Payload]{})
	copy(c.buf[i+1:], c.buf[i:])
	c.buf[i] = ev
}

func (c *Consumer[Payload]) drain() {
	i := 0
	for i < len(c.buf) && c.buf[i].Seq == c.nextSeq {
		c.backend.Consume(c.buf[i].Payload)
		c.nextSeq++
		i++
	}
	c.buf = c.buf[i:]
}

// Tick advances the consumer's tick counter and drives the ack/nack
// schedule described in spec.md §4.1.
func (c *Consumer[Payload]) Tick() {
	progressed := c.nextSeq > c.lastTickSeq
	c.lastTickSeq = c.nextSeq
	c.tick++
	interval := c.AckInterval
	if interval == 0 {
		interval = 1
	}
	if progressed {
		c.idleTicks = 0
		if c.tick%uint64(interval) == 0 {
			c.sendAck()
		}
		return
	}
	c.idleTicks++
	if len(c.buf) > 0 && c.idleTicks >= c.NackTimeout {
		c.idleTicks = 0
		c.backend.SendNack(c.missingSeqs())
		return
	}
	if c.tick%uint64(interval) == 0 {
		c.sendAck()
	}
}

// missingSeqs computes the gaps between nextSeq and the last buffered
// sequence number.
func (c *Consumer[Payload]) missingSeqs() []SeqNum {
	if len(c.buf) == 0 {
		return nil
	}
	last := c.buf[len(c.buf)-1].Seq
	seqs := make([]SeqNum, 0, last-c.nextSeq)
	i := c.nextSeq
	for _, ev := range c.buf {
		for ; i < ev.Seq; i++ {
			seqs = append(seqs, i)
		}
		i = ev.Seq + 1
	}
	return seqs
}

func (c *Consumer[Payload]) sendAck() {
	if c.nextSeq == 0 {
		c.backend.SendAck(0)
		return
	}
	c.backend.SendAck(c.nextSeq - 1)
}

// NextSeq returns the next sequence number the consumer expects to deliver.
func (c *Consumer[Payload]) NextSeq() SeqNum { return c.nextSeq }

// Buffered returns the number of out-of-order events currently held.
func (c *Consumer[Payload]) Buffered() int { return len(c.buf) }

// IdleTicks returns the number of consecutive ticks without progress.
func (c *Consumer[Payload]) IdleTicks() uint8 { return c.idleTicks }
