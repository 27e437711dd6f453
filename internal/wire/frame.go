package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/broker/broker/internal/channel"
	"github.com/broker/broker/internal/store"
)

// FrameKind discriminates the channel control/data frames carried over the
// transport between a producer and a consumer.
type FrameKind uint8

const (
	FrameHandshake FrameKind = iota
	FrameEvent
	FrameCumulativeAck
	FrameNack
	FrameRetransmitFailed
	// FrameSet carries a master's snapshot reply to a newly attached
	// clone. It travels point-to-point outside the ordered channel, the
	// same way the original's snapshot delivery bypasses the stream.
	FrameSet
	// FramePutUniqueReply carries a master's put_unique verdict back to
	// the requester, also point-to-point outside the ordered channel.
	FramePutUniqueReply
	// FrameCommand carries a locally-issued mutating command from a
	// clone to the master that owns its store, bypassing the ordered
	// channel entirely: these aren't sequenced, only the master's
	// rebroadcast of the (possibly rewritten) result is.
	FrameCommand
	// FrameData carries one publish(dst_endpoint, topic, value) sent
	// directly to a single peer instead of the topic fan-out.
	FrameData
)

// Frame is the on-wire envelope for one channel message. Exactly one of
// the typed fields is meaningful, selected by Kind. Channel identifies
// which store's producer/consumer pair the frame belongs to, since one
// transport multiplexes every attached store between two peers.
type Frame struct {
	Kind    FrameKind `msgpack:"kind"`
	Channel string    `msgpack:"channel,omitempty"`

	HandshakeOffset uint64 `msgpack:"handshake_offset,omitempty"`

	EventSeq     uint64  `msgpack:"event_seq,omitempty"`
	EventPayload Message `msgpack:"event_payload,omitempty"`

	AckSeq uint64 `msgpack:"ack_seq,omitempty"`

	NackSeqs []uint64 `msgpack:"nack_seqs,omitempty"`

	RetransmitFailedSeq uint64 `msgpack:"retransmit_failed_seq,omitempty"`

	SetSnapshot []store.Entry `msgpack:"set_snapshot,omitempty"`

	ReplyReqID uint64 `msgpack:"reply_req_id,omitempty"`
	ReplyOK    bool   `msgpack:"reply_ok,omitempty"`

	CommandPayload Message `msgpack:"command_payload,omitempty"`

	DataPayload DataMessage `msgpack:"data_payload,omitempty"`
}

// OnChannel returns a copy of f addressed to the named store's
// producer/consumer pair.
func (f Frame) OnChannel(name string) Frame {
	f.Channel = name
	return f
}

func SetFrame(snapshot []store.Entry) Frame {
	return Frame{Kind: FrameSet, SetSnapshot: snapshot}
}

func PutUniqueReplyFrame(reqID uint64, ok bool) Frame {
	return Frame{Kind: FramePutUniqueReply, ReplyReqID: reqID, ReplyOK: ok}
}

// CommandFrame wraps a clone-issued command bound for the master that
// owns the named channel's store.
func CommandFrame(msg Message) Frame {
	return Frame{Kind: FrameCommand, CommandPayload: msg}
}

// DataFrame wraps one publish(dst_endpoint, ...) delivery aimed at a
// single peer rather than its subscribers.
func DataFrame(m DataMessage) Frame {
	return Frame{Kind: FrameData, DataPayload: m}
}

func HandshakeFrame(hs channel.Handshake) Frame {
	return Frame{Kind: FrameHandshake, HandshakeOffset: hs.Offset}
}

func EventFrame(ev channel.Event[Message]) Frame {
	return Frame{Kind: FrameEvent, EventSeq: ev.Seq, EventPayload: ev.Payload}
}

func AckFrame(ack channel.CumulativeAck) Frame {
	return Frame{Kind: FrameCumulativeAck, AckSeq: ack.Seq}
}

func NackFrame(n channel.Nack) Frame {
	return Frame{Kind: FrameNack, NackSeqs: n.Seqs}
}

func RetransmitFailedFrame(r channel.RetransmitFailed) Frame {
	return Frame{Kind: FrameRetransmitFailed, RetransmitFailedSeq: r.Seq}
}

func MarshalFrame(f Frame) ([]byte, error) {
	return msgpack.Marshal(f)
}

func UnmarshalFrame(raw []byte) (Frame, error) {
	var f Frame
	err := msgpack.Unmarshal(raw, &f)
	return f, err
}

func (f Frame) String() string {
	switch f.Kind {
	case FrameHandshake:
		return fmt.Sprintf("handshake{%d}", f.HandshakeOffset)
	case FrameEvent:
		return fmt.Sprintf("event{%d}", f.EventSeq)
	case FrameCumulativeAck:
		return fmt.Sprintf("cumulative_ack{%d}", f.AckSeq)
	case FrameNack:
		return fmt.Sprintf("nack%v", f.NackSeqs)
	case FrameRetransmitFailed:
		return fmt.Sprintf("retransmit_failed{%d}", f.RetransmitFailedSeq)
	case FrameSet:
		return fmt.Sprintf("set{%d entries}", len(f.SetSnapshot))
	case FramePutUniqueReply:
		return fmt.Sprintf("put_unique_reply{%d,%v}", f.ReplyReqID, f.ReplyOK)
	case FrameCommand:
		return fmt.Sprintf("command{kind=%d}", f.CommandPayload.Command.Kind)
	case FrameData:
		return fmt.Sprintf("data{%s}", f.DataPayload.Topic)
	default:
		return "unknown_frame"
	}
}
