package endpoint

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/pubid"
	"github.com/broker/broker/internal/topic"
	"github.com/broker/broker/internal/wire"
)

func TestSubscriberMatchesPrefix(t *testing.T) {
	s, err := NewSubscriber([]topic.Topic{topic.Topic("/a/b")}, 0)
	require.NoError(t, err)
	defer s.Close()

	require.True(t, s.Matches(topic.Topic("/a/b/c")))
	require.False(t, s.Matches(topic.Topic("/a/x")))
}

func TestSubscriberGetBlocksUntilDeliver(t *testing.T) {
	s, err := NewSubscriber([]topic.Topic{topic.Topic("/a")}, 0)
	require.NoError(t, err)
	defer s.Close()

	pub := pubid.New(uuid.New(), 1)
	want := Received{Topic: topic.Topic("/a"), Data: wire.NewDataMessage(topic.Topic("/a"), data.Int(1), pub)}

	done := make(chan Received)
	go func() { done <- s.Get() }()
	s.deliver(want)

	got := <-done
	require.Equal(t, want, got)
}

func TestSubscriberGetTimeoutExpires(t *testing.T) {
	s, err := NewSubscriber([]topic.Topic{topic.Topic("/a")}, 0)
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.GetTimeout(10 * time.Millisecond)
	require.False(t, ok)
}

func TestSubscriberGetNReturnsAvailableValues(t *testing.T) {
	s, err := NewSubscriber([]topic.Topic{topic.Topic("/a")}, 0)
	require.NoError(t, err)
	defer s.Close()

	pub := pubid.New(uuid.New(), 1)
	r1 := Received{Topic: topic.Topic("/a"), Data: wire.NewDataMessage(topic.Topic("/a"), data.Int(1), pub)}
	r2 := Received{Topic: topic.Topic("/a"), Data: wire.NewDataMessage(topic.Topic("/a"), data.Int(2), pub)}
	s.deliver(r1)
	s.deliver(r2)

	out := s.GetN(2)
	require.Equal(t, []Received{r1, r2}, out)
}

func TestSubscriberPollDoesNotBlock(t *testing.T) {
	s, err := NewSubscriber([]topic.Topic{topic.Topic("/a")}, 0)
	require.NoError(t, err)
	defer s.Close()

	require.Empty(t, s.Poll())
}
