package endpoint

import (
	"time"

	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/ec"
	"github.com/broker/broker/internal/pubid"
	"github.com/broker/broker/internal/store/clone"
	"github.com/broker/broker/internal/store/master"
	"github.com/broker/broker/internal/wire"
)

// Store is the handle an application gets back from attach_master or
// attach_clone: a uniform read/write surface over either a Master or a
// Clone, per spec.md §4.2's "small capability interface" guidance
// extended to the public handle itself.
type Store struct {
	name string
	pub  pubid.ID

	m *master.Master // set iff this is a master handle
	c *clone.Clone   // set iff this is a clone handle

	ep *Endpoint
}

// Name returns the store's name, as passed to attach_master/attach_clone.
func (s *Store) Name() string { return s.name }

// IsMaster reports whether this handle owns the authoritative copy.
func (s *Store) IsMaster() bool { return s.m != nil }

func (s *Store) Get(key data.Value) (data.Value, error) {
	if s.m != nil {
		return s.m.Get(key)
	}
	return s.c.Get(key)
}

func (s *Store) GetAspect(key, aspect data.Value) (data.Value, error) {
	if s.m != nil {
		return s.m.GetAspect(key, aspect)
	}
	return s.c.GetAspect(key, aspect)
}

func (s *Store) Exists(key data.Value) (bool, error) {
	if s.m != nil {
		return s.m.Exists(key)
	}
	return s.c.Exists(key)
}

func (s *Store) Keys() (data.Value, error) {
	if s.m != nil {
		return s.m.Keys()
	}
	return s.c.Keys()
}

// Idle reports whether every attached clone has acknowledged the
// master's current sequence number. Always true on a clone handle.
func (s *Store) Idle() bool {
	if s.m != nil {
		return s.m.Idle()
	}
	return true
}

func (s *Store) Put(key, val data.Value, expiry *time.Duration) {
	cmd := wire.Put(key, val, expiry, s.pub)
	if s.m != nil {
		s.m.Command(cmd)
		return
	}
	s.c.Put(cmd)
}

func (s *Store) Erase(key data.Value) {
	cmd := wire.Erase(key, s.pub)
	if s.m != nil {
		s.m.Command(cmd)
		return
	}
	s.c.Erase(cmd)
}

func (s *Store) Add(key, val data.Value, initType data.Kind, expiry *time.Duration) {
	cmd := wire.Add(key, val, initType, expiry, s.pub)
	if s.m != nil {
		s.m.Command(cmd)
		return
	}
	s.c.Put(cmd) // clones have no separate add forwarding path; same Forward() carries any command kind
}

func (s *Store) Subtract(key, val data.Value, expiry *time.Duration) {
	cmd := wire.Subtract(key, val, expiry, s.pub)
	if s.m != nil {
		s.m.Command(cmd)
		return
	}
	s.c.Put(cmd)
}

func (s *Store) Clear() {
	cmd := wire.Clear(s.pub)
	if s.m != nil {
		s.m.Command(cmd)
		return
	}
	s.c.Clear(cmd)
}

// PutUnique blocks until the owning master (local or remote) has
// resolved the race: exactly one of possibly several concurrent
// put_unique calls for the same key gets ok=true. request_timeout
// bounds the wait, matching spec.md §5's request_timeout contract.
func (s *Store) PutUnique(key, val data.Value, expiry *time.Duration, timeout time.Duration) (bool, error) {
	reqID := s.ep.nextReqID()
	ch := make(chan bool, 1)
	s.ep.registerPutUnique(reqID, ch)
	cmd := wire.PutUnique(key, val, expiry, s.pub, s.ep.self, reqID)
	if s.m != nil {
		s.m.Command(cmd)
	} else {
		s.c.Put(cmd)
	}
	select {
	case ok := <-ch:
		return ok, nil
	case <-time.After(timeout):
		s.ep.abandonPutUnique(reqID)
		return false, ec.New(ec.RequestTimeout)
	}
}
