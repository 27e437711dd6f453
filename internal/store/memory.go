package store

import (
	"sort"
	"time"

	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/ec"
)

type entry struct {
	key    data.Value
	val    data.Value
	expiry *time.Time
}

// Memory is an in-process, mutex-free Backend (it is only ever touched by
// the single-threaded master/clone task that owns it). It is the default
// backend, grounded on the teacher's in-memory maps
// (users/channels/subscriptions in server-unifiedddd/globals.go) turned
// into a principled key/value store.
type Memory struct {
	entries map[string]*entry
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]*entry{}}
}

func (m *Memory) Get(key data.Value) (data.Value, error) {
	e, ok := m.entries[key.String()]
	if !ok {
		return data.Value{}, ec.New(ec.NoSuchKey)
	}
	return e.val, nil
}

func (m *Memory) GetAspect(key, aspect data.Value) (data.Value, error) {
	e, ok := m.entries[key.String()]
	if !ok {
		return data.Value{}, ec.New(ec.NoSuchKey)
	}
	switch e.val.Kind {
	case data.KindTable:
		for _, te := range e.val.Table {
			if data.Equal(te.Key, aspect) {
				return te.Value, nil
			}
		}
		return data.Value{}, ec.New(ec.NoSuchKey)
	default:
		return data.Value{}, ec.New(ec.TypeClash)
	}
}

func (m *Memory) Put(key, val data.Value, expiry *time.Time) error {
	m.entries[key.String()] = &entry{key: key, val: val, expiry: expiry}
	return nil
}

func (m *Memory) Add(key, val data.Value, initType data.Kind, expiry *time.Time) error {
	e, ok := m.entries[key.String()]
	if !ok {
		zero, err := data.ZeroValue(initType)
		if err != nil {
			return ec.Newf(ec.InvalidData, "%v", err)
		}
		e = &entry{key: key, val: zero}
		m.entries[key.String()] = e
	}
	sum, err := addValues(e.val, val)
	if err != nil {
		return err
	}
	e.val = sum
	if expiry != nil {
		e.expiry = expiry
	}
	return nil
}

func (m *Memory) Subtract(key, val data.Value, expiry *time.Time) error {
	e, ok := m.entries[key.String()]
	if !ok {
		return ec.New(ec.NoSuchKey)
	}
	diff, err := subtractValues(e.val, val)
	if err != nil {
		return err
	}
	e.val = diff
	if expiry != nil {
		e.expiry = expiry
	}
	return nil
}

func (m *Memory) Erase(key data.Value) error {
	k := key.String()
	if _, ok := m.entries[k]; !ok {
		return ec.New(ec.NoSuchKey)
	}
	delete(m.entries, k)
	return nil
}

func (m *Memory) Exists(key data.Value) (bool, error) {
	_, ok := m.entries[key.String()]
	return ok, nil
}

func (m *Memory) Keys() (data.Value, error) {
	if len(m.entries) == 0 {
		return data.None(), nil
	}
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]data.Value, len(keys))
	for i, k := range keys {
		vals[i] = m.entries[k].key
	}
	return data.VectorOf(vals...), nil
}

func (m *Memory) Clear() error {
	m.entries = map[string]*entry{}
	return nil
}

func (m *Memory) Snapshot() ([]Entry, error) {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, Entry{Key: e.key, Value: e.val})
	}
	sort.Slice(out, func(i, j int) bool { return data.Compare(out[i].Key, out[j].Key) < 0 })
	return out, nil
}

func (m *Memory) Expire(key data.Value, now time.Time) (bool, error) {
	k := key.String()
	e, ok := m.entries[k]
	if !ok {
		return false, nil
	}
	if e.expiry == nil || e.expiry.After(now) {
		return false, nil
	}
	delete(m.entries, k)
	return true, nil
}

func (m *Memory) Expiries() ([]KeyExpiry, error) {
	var out []KeyExpiry
	for _, e := range m.entries {
		if e.expiry != nil {
			out = append(out, KeyExpiry{Key: e.key, Expiry: *e.expiry})
		}
	}
	return out, nil
}

func addValues(a, b data.Value) (data.Value, error) {
	if a.Kind != b.Kind {
		return data.Value{}, ec.New(ec.TypeClash)
	}
	switch a.Kind {
	case data.KindInt:
		return data.Int(a.Int + b.Int), nil
	case data.KindUint:
		return data.Uint(a.Uint + b.Uint), nil
	case data.KindReal:
		return data.Real(a.Real + b.Real), nil
	case data.KindSet:
		return data.SetOf(append(append([]data.Value{}, a.Set...), b.Set...)...), nil
	case data.KindVector:
		return data.VectorOf(append(append([]data.Value{}, a.Vector...), b.Vector...)...), nil
	default:
		return data.Value{}, ec.New(ec.TypeClash)
	}
}

func subtractValues(a, b data.Value) (data.Value, error) {
	if a.Kind != b.Kind {
		return data.Value{}, ec.New(ec.TypeClash)
	}
	switch a.Kind {
	case data.KindInt:
		return data.Int(a.Int - b.Int), nil
	case data.KindUint:
		return data.Uint(a.Uint - b.Uint), nil
	case data.KindReal:
		return data.Real(a.Real - b.Real), nil
	case data.KindSet:
		out := make([]data.Value, 0, len(a.Set))
		for _, v := range a.Set {
			found := false
			for _, r := range b.Set {
				if data.Equal(v, r) {
					found = true
					break
				}
			}
			if !found {
				out = append(out, v)
			}
		}
		return data.SetOf(out...), nil
	default:
		return data.Value{}, ec.New(ec.TypeClash)
	}
}
