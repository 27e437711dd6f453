package data

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/broker/broker/internal/address"
)

// wireEntry is one key/value pair of a Table value on the wire; the Value
// itself is encoded as a [kind, payload] pair so that the wire form stays
// compact and self-describing across language boundaries.
type wireEntry struct {
	K Value
	V Value
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeUint8(uint8(v.Kind)); err != nil {
		return err
	}
	switch v.Kind {
	case KindNone:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.Bool)
	case KindInt:
		return enc.EncodeInt64(v.Int)
	case KindUint:
		return enc.EncodeUint64(v.Uint)
	case KindReal:
		return enc.EncodeFloat64(v.Real)
	case KindString, KindEnum:
		s := v.Str
		if v.Kind == KindEnum {
			s = v.Enum
		}
		return enc.EncodeString(s)
	case KindAddress:
		b := v.Addr.Bytes()
		return enc.EncodeBytes(b[:])
	case KindSubnet:
		b := v.Subnet.Network.Bytes()
		if err := enc.EncodeArrayLen(2); err != nil {
			return err
		}
		if err := enc.EncodeBytes(b[:]); err != nil {
			return err
		}
		return enc.EncodeUint8(v.Subnet.Length)
	case KindPort:
		if err := enc.EncodeArrayLen(2); err != nil {
			return err
		}
		if err := enc.EncodeUint16(v.Port.Number); err != nil {
			return err
		}
		return enc.EncodeUint8(uint8(v.Port.Protocol))
	case KindTimestamp:
		return enc.EncodeTime(v.Timestamp)
	case KindTimespan:
		return enc.EncodeInt64(int64(v.Timespan))
	case KindSet:
		return enc.Encode(v.Set)
	case KindVector:
		return enc.Encode(v.Vector)
	case KindTable:
		entries := make([]wireEntry, len(v.Table))
		for i, e := range v.Table {
			entries[i] = wireEntry{K: e.Key, V: e.Value}
		}
		return enc.Encode(entries)
	default:
		return fmt.Errorf("data: cannot encode kind %s", v.Kind)
	}
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("data: malformed value, array length %d", n)
	}
	k, err := dec.DecodeUint8()
	if err != nil {
		return err
	}
	v.Kind = Kind(k)
	switch v.Kind {
	case KindNone:
		return dec.DecodeNil()
	case KindBool:
		v.Bool, err = dec.DecodeBool()
		return err
	case KindInt:
		v.Int, err = dec.DecodeInt64()
		return err
	case KindUint:
		v.Uint, err = dec.DecodeUint64()
		return err
	case KindReal:
		v.Real, err = dec.DecodeFloat64()
		return err
	case KindString:
		v.Str, err = dec.DecodeString()
		return err
	case KindEnum:
		v.Enum, err = dec.DecodeString()
		return err
	case KindAddress:
		b, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		v.Addr, err = address.FromNetworkBytes(b)
		return err
	case KindSubnet:
		if _, err := dec.DecodeArrayLen(); err != nil {
			return err
		}
		b, err := dec.DecodeBytes()
		if err != nil {
			return err
		}
		addr, err := address.FromNetworkBytes(b)
		if err != nil {
			return err
		}
		length, err := dec.DecodeUint8()
		if err != nil {
			return err
		}
		v.Subnet = address.Subnet{Network: addr, Length: length}
		return nil
	case KindPort:
		if _, err := dec.DecodeArrayLen(); err != nil {
			return err
		}
		num, err := dec.DecodeUint16()
		if err != nil {
			return err
		}
		proto, err := dec.DecodeUint8()
		if err != nil {
			return err
		}
		v.Port = Port{Number: num, Protocol: PortProtocol(proto)}
		return nil
	case KindTimestamp:
		v.Timestamp, err = dec.DecodeTime()
		return err
	case KindTimespan:
		d, err := dec.DecodeInt64()
		if err != nil {
			return err
		}
		v.Timespan = time.Duration(d)
		return nil
	case KindSet:
		return dec.Decode(&v.Set)
	case KindVector:
		return dec.Decode(&v.Vector)
	case KindTable:
		var entries []wireEntry
		if err := dec.Decode(&entries); err != nil {
			return err
		}
		v.Table = make([]TableEntry, len(entries))
		for i, e := range entries {
			v.Table[i] = TableEntry{Key: e.K, Value: e.V}
		}
		return nil
	default:
		return fmt.Errorf("data: cannot decode kind %d", v.Kind)
	}
}
