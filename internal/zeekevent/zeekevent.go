// Package zeekevent implements the application-layer envelope carried
// inside a data.Value at the wire protocol boundary described in
// spec.md §6: [ProtocolVersion=1, type, content].
package zeekevent

import (
	"encoding/json"
	"fmt"

	"github.com/broker/broker/internal/data"
)

const ProtocolVersion = 1

// Type discriminates the envelope's content.
type Type uint8

const (
	Event            Type = 1
	LogCreate        Type = 2
	LogWrite         Type = 3
	IdentifierUpdate Type = 4
	Batch            Type = 5
	RelayEvent       Type = 6
)

func (t Type) String() string {
	switch t {
	case Event:
		return "event"
	case LogCreate:
		return "log_create"
	case LogWrite:
		return "log_write"
	case IdentifierUpdate:
		return "identifier_update"
	case Batch:
		return "batch"
	case RelayEvent:
		return "relay_event"
	default:
		return "unknown"
	}
}

// Envelope is the [version, type, content] triple, represented as a
// vector data.Value so it travels over the wire the same way any other
// published value does.
type Envelope struct {
	Type    Type
	Content data.Value
}

func New(t Type, content data.Value) Envelope {
	return Envelope{Type: t, Content: content}
}

// ToValue renders the envelope as the documented three-element vector.
func ToValue(e Envelope) data.Value {
	return data.VectorOf(
		data.Uint(ProtocolVersion),
		data.Uint(uint64(e.Type)),
		e.Content,
	)
}

// FromValue parses a vector produced by ToValue, rejecting any protocol
// version other than the one this package implements.
func FromValue(v data.Value) (Envelope, error) {
	if v.Kind != data.KindVector || len(v.Vector) != 3 {
		return Envelope{}, fmt.Errorf("zeekevent: malformed envelope: %v", v)
	}
	version, content := v.Vector[0], v.Vector[2]
	if version.Kind != data.KindUint || version.Uint != ProtocolVersion {
		return Envelope{}, fmt.Errorf("zeekevent: unsupported protocol version %v", version)
	}
	typeVal := v.Vector[1]
	if typeVal.Kind != data.KindUint {
		return Envelope{}, fmt.Errorf("zeekevent: malformed type field: %v", typeVal)
	}
	return Envelope{Type: Type(typeVal.Uint), Content: content}, nil
}

// jsonEnvelope is the wire form ToJSON/FromJSON use for the debug/
// administrative request path, as opposed to the [version, type,
// content] vector ToValue/FromValue produce for ordinary peer traffic.
type jsonEnvelope struct {
	Version int        `json:"version"`
	Type    string     `json:"type"`
	Content data.Value `json:"content"`
}

// ToJSON renders the envelope the way the direct-request debug interface
// expects it, alongside the vector form ordinary traffic uses.
func ToJSON(e Envelope) ([]byte, error) {
	return json.Marshal(jsonEnvelope{Version: ProtocolVersion, Type: e.Type.String(), Content: e.Content})
}

// FromJSON parses an envelope produced by ToJSON.
func FromJSON(b []byte) (Envelope, error) {
	var je jsonEnvelope
	if err := json.Unmarshal(b, &je); err != nil {
		return Envelope{}, fmt.Errorf("zeekevent: malformed JSON envelope: %w", err)
	}
	if je.Version != ProtocolVersion {
		return Envelope{}, fmt.Errorf("zeekevent: unsupported protocol version %d", je.Version)
	}
	t, ok := typeFromString(je.Type)
	if !ok {
		return Envelope{}, fmt.Errorf("zeekevent: unknown envelope type %q", je.Type)
	}
	return Envelope{Type: t, Content: je.Content}, nil
}

func typeFromString(s string) (Type, bool) {
	for _, t := range []Type{Event, LogCreate, LogWrite, IdentifierUpdate, Batch, RelayEvent} {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

func (e Envelope) Batch() ([]Envelope, error) {
	if e.Type != Batch {
		return nil, fmt.Errorf("zeekevent: Batch called on a %s envelope", e.Type)
	}
	if e.Content.Kind != data.KindVector {
		return nil, fmt.Errorf("zeekevent: batch content is not a vector")
	}
	out := make([]Envelope, 0, len(e.Content.Vector))
	for _, v := range e.Content.Vector {
		sub, err := FromValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}
