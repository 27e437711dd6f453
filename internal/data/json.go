package data

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/broker/broker/internal/address"
)

// jsonValue is the self-describing {"type": ..., "data": ...} form used
// for the JSON encoding path, alongside the msgpack form codec.go
// implements for ordinary peer-to-peer traffic. It exists for
// human-facing and debug/administrative callers (the direct request
// interface), not the hot wire path.
type jsonValue struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type jsonSubnet struct {
	Address string `json:"address"`
	Length  uint8  `json:"length"`
}

type jsonPort struct {
	Number   uint16 `json:"number"`
	Protocol string `json:"protocol"`
}

type jsonTableEntry struct {
	Key   Value `json:"key"`
	Value Value `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	jv := jsonValue{Type: v.Kind.String()}
	var data any
	switch v.Kind {
	case KindNone:
		// no data field
	case KindBool:
		data = v.Bool
	case KindInt:
		data = v.Int
	case KindUint:
		data = v.Uint
	case KindReal:
		data = v.Real
	case KindString:
		data = v.Str
	case KindEnum:
		data = v.Enum
	case KindAddress:
		b := v.Addr.Bytes()
		data = base64.StdEncoding.EncodeToString(b[:])
	case KindSubnet:
		b := v.Subnet.Network.Bytes()
		data = jsonSubnet{
			Address: base64.StdEncoding.EncodeToString(b[:]),
			Length:  v.Subnet.Length,
		}
	case KindPort:
		data = jsonPort{Number: v.Port.Number, Protocol: v.Port.Protocol.String()}
	case KindTimestamp:
		data = v.Timestamp
	case KindTimespan:
		data = v.Timespan.String()
	case KindSet:
		data = v.Set
	case KindVector:
		data = v.Vector
	case KindTable:
		entries := make([]jsonTableEntry, len(v.Table))
		for i, e := range v.Table {
			entries[i] = jsonTableEntry{Key: e.Key, Value: e.Value}
		}
		data = entries
	default:
		return nil, fmt.Errorf("data: cannot JSON-encode kind %s", v.Kind)
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		jv.Data = raw
	}
	return json.Marshal(jv)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(b, &jv); err != nil {
		return err
	}
	kind, ok := kindFromString(jv.Type)
	if !ok {
		return fmt.Errorf("data: unknown JSON type %q", jv.Type)
	}
	v.Kind = kind
	switch kind {
	case KindNone:
		return nil
	case KindBool:
		return json.Unmarshal(jv.Data, &v.Bool)
	case KindInt:
		return json.Unmarshal(jv.Data, &v.Int)
	case KindUint:
		return json.Unmarshal(jv.Data, &v.Uint)
	case KindReal:
		return json.Unmarshal(jv.Data, &v.Real)
	case KindString:
		return json.Unmarshal(jv.Data, &v.Str)
	case KindEnum:
		return json.Unmarshal(jv.Data, &v.Enum)
	case KindAddress:
		var enc string
		if err := json.Unmarshal(jv.Data, &enc); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return fmt.Errorf("data: malformed address: %w", err)
		}
		addr, err := address.FromNetworkBytes(raw)
		if err != nil {
			return err
		}
		v.Addr = addr
		return nil
	case KindSubnet:
		var js jsonSubnet
		if err := json.Unmarshal(jv.Data, &js); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(js.Address)
		if err != nil {
			return fmt.Errorf("data: malformed subnet: %w", err)
		}
		addr, err := address.FromNetworkBytes(raw)
		if err != nil {
			return err
		}
		v.Subnet = address.Subnet{Network: addr, Length: js.Length}
		return nil
	case KindPort:
		var jp jsonPort
		if err := json.Unmarshal(jv.Data, &jp); err != nil {
			return err
		}
		v.Port = Port{Number: jp.Number, Protocol: portProtocolFromString(jp.Protocol)}
		return nil
	case KindTimestamp:
		return json.Unmarshal(jv.Data, &v.Timestamp)
	case KindTimespan:
		var s string
		if err := json.Unmarshal(jv.Data, &s); err != nil {
			return err
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("data: malformed timespan: %w", err)
		}
		v.Timespan = d
		return nil
	case KindSet:
		return json.Unmarshal(jv.Data, &v.Set)
	case KindVector:
		return json.Unmarshal(jv.Data, &v.Vector)
	case KindTable:
		var entries []jsonTableEntry
		if err := json.Unmarshal(jv.Data, &entries); err != nil {
			return err
		}
		v.Table = make([]TableEntry, len(entries))
		for i, e := range entries {
			v.Table[i] = TableEntry{Key: e.Key, Value: e.Value}
		}
		return nil
	default:
		return fmt.Errorf("data: cannot JSON-decode kind %s", kind)
	}
}

func kindFromString(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

func portProtocolFromString(s string) PortProtocol {
	switch s {
	case "tcp":
		return ProtoTCP
	case "udp":
		return ProtoUDP
	case "icmp":
		return ProtoICMP
	default:
		return ProtoUnknown
	}
}
