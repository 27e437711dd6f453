package channel

// ProducerBackend is how a Producer transmits control and data messages.
// produce() fans Send out to every current path in one call and never
// blocks; there is no backpressure at this layer.
type ProducerBackend[Handle comparable, Payload any] interface {
	Send(to []Handle, ev Event[Payload])
	SendOne(to Handle, ev Event[Payload])
	SendHandshake(to Handle, hs Handshake)
	SendRetransmitFailed(to Handle, seq SeqNum)
}

type path[Handle comparable] struct {
	handle Handle
	offset SeqNum
	acked  SeqNum
}

// Producer assigns sequence numbers to payloads and fans them out to every
// attached consumer, buffering events until all paths have acknowledged
// them so a NACK can trigger a retransmit.
type Producer[Handle comparable, Payload any] struct {
	backend ProducerBackend[Handle, Payload]
	seq     SeqNum
	buf     []Event[Payload]
	paths   []path[Handle]
}

func NewProducer[Handle comparable, Payload any](backend ProducerBackend[Handle, Payload]) *Producer[Handle, Payload] {
	return &Producer[Handle, Payload]{backend: backend}
}

// Produce assigns the next sequence number to payload, buffers it, and
// transmits it to every current path in one fan-out call.
func (p *Producer[Handle, Payload]) Produce(payload Payload) SeqNum {
	p.seq++
	ev := Event[Payload]{Seq: p.seq, Payload: payload}
	p.buf = append(p.buf, ev)
	if len(p.paths) > 0 {
		handles := make([]Handle, len(p.paths))
		for i, pth := range p.paths {
			handles[i] = pth.handle
		}
		p.backend.Send(handles, ev)
	}
	return p.seq
}

// Add attaches a new consumer, starting it at the sequence number right
// after the producer's current head, and sends it a handshake.
func (p *Producer[Handle, Payload]) Add(hdl Handle) error {
	if p.findPath(hdl) >= 0 {
		return ErrConsumerExists
	}
	offset := p.seq + 1
	p.paths = append(p.paths, path[Handle]{handle: hdl, offset: offset, acked: p.seq})
	p.backend.SendHandshake(hdl, Handshake{Offset: offset})
	return nil
}

// Remove detaches a consumer, e.g. because the peer was reported down. No
// further retransmission is attempted for it.
func (p *Producer[Handle, Payload]) Remove(hdl Handle) {
	if idx := p.findPath(hdl); idx >= 0 {
		p.paths = append(p.paths[:idx], p.paths[idx+1:]...)
	}
}

// Idle reports whether every attached consumer has acknowledged up to the
// producer's current sequence number.
func (p *Producer[Handle, Payload]) Idle() bool {
	for _, pth := range p.paths {
		if pth.acked != p.seq {
			return false
		}
	}
	return true
}

// HandleAck records hdl's progress and prunes the buffer down to the
// minimum acknowledged sequence number across all paths. Acks beyond the
// producer's current sequence are clamped rather than rejected.
func (p *Producer[Handle, Payload]) HandleAck(hdl Handle, seq SeqNum) {
	if seq > p.seq {
		seq = p.seq
	}
	minAcked := seq
	found := false
	for i := range p.paths {
		if p.paths[i].handle == hdl {
			p.paths[i].acked = seq
			found = true
		}
	}
	if !found {
		return
	}
	for _, pth := range p.paths {
		if pth.acked < minAcked {
			minAcked = pth.acked
		}
	}
	cut := 0
	for cut < len(p.buf) && p.buf[cut].Seq <= minAcked {
		cut++
	}
	p.buf = p.buf[cut:]
}

// HandleNack answers a consumer's request for retransmission. seqs must be
// sorted ascending. A leading 0 re-sends the handshake; otherwise
// everything before the first requested seq is treated as an implicit ack,
// and each requested event is resent or answered with RetransmitFailed if
// it was already pruned.
func (p *Producer[Handle, Payload]) HandleNack(hdl Handle, seqs []SeqNum) {
	if len(seqs) == 0 {
		return
	}
	idx := p.findPath(hdl)
	if idx < 0 {
		return
	}
	first := seqs[0]
	if first == 0 {
		p.backend.SendHandshake(hdl, Handshake{Offset: p.paths[idx].offset})
		return
	}
	p.HandleAck(hdl, first-1)
	for _, seq := range seqs {
		if ev, ok := p.findEvent(seq); ok {
			p.backend.SendOne(hdl, ev)
		} else {
			p.backend.SendRetransmitFailed(hdl, seq)
		}
	}
}

func (p *Producer[Handle, Payload]) findPath(hdl Handle) int {
	for i, pth := range p.paths {
		if pth.handle == hdl {
			return i
		}
	}
	return -1
}

func (p *Producer[Handle, Payload]) findEvent(seq SeqNum) (Event[Payload], bool) {
	for _, ev := range p.buf {
		if ev.Seq == seq {
			return ev, true
		}
	}
	return Event[Payload]{}, false
}

// Seq returns the producer's current (last assigned) sequence number.
func (p *Producer[Handle, Payload]) Seq() SeqNum { return p.seq }

// Buffered returns the number of events still retained for retransmission.
func (p *Producer[Handle, Payload]) Buffered() int { return len(p.buf) }

// PathCount returns the number of attached consumers.
func (p *Producer[Handle, Payload]) PathCount() int { return len(p.paths) }
