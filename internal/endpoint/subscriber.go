package endpoint

import (
	"time"

	"github.com/broker/broker/internal/topic"
	"github.com/broker/broker/internal/wire"
)

// defaultSubscriberQSize is make_subscriber's documented max_qsize=20
// default.
const defaultSubscriberQSize = 20

// Received is one (topic, value) pair delivered to a Subscriber.
type Received struct {
	Topic topic.Topic
	Data  wire.DataMessage
}

// Subscriber receives data_messages published on any topic matching one
// of its subscriptions, fed by the endpoint's dispatch loop via deliver.
type Subscriber struct {
	topics []topic.Topic
	q      *queue[Received]
}

func NewSubscriber(topics []topic.Topic, maxQSize int) (*Subscriber, error) {
	if maxQSize <= 0 {
		maxQSize = defaultSubscriberQSize
	}
	q, err := newQueue[Received](maxQSize)
	if err != nil {
		return nil, err
	}
	return &Subscriber{topics: append([]topic.Topic{}, topics...), q: q}, nil
}

// Matches reports whether t satisfies one of this subscriber's topics.
func (s *Subscriber) Matches(t topic.Topic) bool {
	for _, sub := range s.topics {
		if topic.Matches(sub, t) {
			return true
		}
	}
	return false
}

// deliver enqueues r, dropping it if the queue is already full: a slow
// subscriber loses the newest message rather than blocking the
// dispatch loop, the same trade PUB/SUB sockets make upstream of it.
func (s *Subscriber) deliver(r Received) {
	s.q.push(r)
}

// Get blocks until a value is available.
func (s *Subscriber) Get() Received {
	for {
		if r, ok := s.q.pop(); ok {
			return r
		}
		<-s.q.Wait()
	}
}

// GetTimeout blocks until a value is available or timeout elapses.
func (s *Subscriber) GetTimeout(timeout time.Duration) (Received, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if r, ok := s.q.pop(); ok {
			return r, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Received{}, false
		}
		select {
		case <-s.q.Wait():
		case <-time.After(remaining):
			return Received{}, false
		}
	}
}

// GetN returns up to n currently available values without blocking
// past the first one; it blocks only until at least one is available.
func (s *Subscriber) GetN(n int) []Received {
	first := s.Get() // blocks until at least one is available, per spec.md's get(n) semantics
	out := []Received{first}
	for len(out) < n {
		r, ok := s.q.pop()
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out
}

// GetNTimeout is GetN bounded by timeout; it may return an empty slice.
func (s *Subscriber) GetNTimeout(n int, timeout time.Duration) []Received {
	first, ok := s.GetTimeout(timeout)
	if !ok {
		return nil
	}
	out := []Received{first}
	for len(out) < n {
		r, ok := s.q.pop()
		if !ok {
			break
		}
		out = append(out, r)
	}
	return out
}

// Poll returns whatever is immediately available without blocking.
func (s *Subscriber) Poll() []Received {
	return s.q.popN(s.q.size())
}

// Available reports how many values are currently buffered.
func (s *Subscriber) Available() int { return s.q.size() }

func (s *Subscriber) FD() uintptr { return s.q.FD() }

func (s *Subscriber) Close() error { return s.q.Close() }
