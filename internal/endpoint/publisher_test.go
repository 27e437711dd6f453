package endpoint

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/broker/broker/internal/clock"
	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/pubid"
	"github.com/broker/broker/internal/topic"
	"github.com/broker/broker/internal/wire"
)

type recordingSender struct {
	sent []wire.DataMessage
}

func (s *recordingSender) SendData(m wire.DataMessage) { s.sent = append(s.sent, m) }

func TestPublisherPublishDrainsInline(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(0, 0))
	sink := &recordingSender{}
	pub := pubid.New(uuid.New(), 1)
	p, err := NewPublisher(topic.Topic("/test"), pub, sink, clk)
	require.NoError(t, err)
	defer p.Close()

	p.Publish(data.Int(1))
	p.Publish(data.Int(2))

	require.Len(t, sink.sent, 2)
	require.Equal(t, 0, p.Buffered())
	require.Equal(t, publisherQueueSize, p.FreeCapacity())
}

func TestPublisherSendRateSamplesOverTicks(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(0, 0))
	sink := &recordingSender{}
	pub := pubid.New(uuid.New(), 1)
	p, err := NewPublisher(topic.Topic("/test"), pub, sink, clk)
	require.NoError(t, err)
	defer p.Close()

	p.Publish(data.Int(1))
	p.Publish(data.Int(2))
	clk.Advance(time.Second)

	require.Equal(t, int64(2), p.SendRate())
}

func TestPublisherCloseDropsWhenRequested(t *testing.T) {
	clk := clock.NewVirtual(time.Unix(0, 0))
	sink := &recordingSender{}
	pub := pubid.New(uuid.New(), 1)
	p, err := NewPublisher(topic.Topic("/test"), pub, sink, clk)
	require.NoError(t, err)

	p.q.push(wire.NewDataMessage(topic.Topic("/test"), data.Int(3), pub))
	p.DropAllOnDestruction()
	require.NoError(t, p.Close())
	require.Empty(t, sink.sent)
}
