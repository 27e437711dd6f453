package wire

import (
	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/pubid"
	"github.com/broker/broker/internal/topic"
)

// DataMessage is the envelope a Publisher hands to the transport and a
// Subscriber receives back out: a topic plus one application-level
// value, broker's data_message. It travels over the PUB/SUB pair for
// topic fan-out, or wrapped in a FrameData for point-to-point delivery.
type DataMessage struct {
	Topic     topic.Topic `msgpack:"topic"`
	Data      data.Value  `msgpack:"data"`
	Publisher pubid.ID    `msgpack:"publisher"`
}

func NewDataMessage(t topic.Topic, v data.Value, pub pubid.ID) DataMessage {
	return DataMessage{Topic: t, Data: v, Publisher: pub}
}
