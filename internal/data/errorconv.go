package data

import (
	"github.com/broker/broker/internal/ec"
)

const errorTag = "error"

// FromError encodes an *ec.Error as ["error", code, context], where context
// is [endpoint_info, message] if e carries an EndpointInfo, otherwise
// [message] if e has a message, otherwise nil.
func FromError(e *ec.Error) Value {
	entries := []Value{String(errorTag), Uint(uint64(e.Code))}
	switch {
	case e.Info != nil:
		info := TableOf(
			TableEntry{Key: String("node"), Value: String(e.Info.Node)},
			TableEntry{Key: String("network"), Value: String(e.Info.Network)},
		)
		entries = append(entries, VectorOf(info, String(e.Message)))
	case e.Message != "":
		entries = append(entries, VectorOf(String(e.Message)))
	default:
		entries = append(entries, None())
	}
	return VectorOf(entries...)
}

// ToError decodes a Value produced by FromError back into an *ec.Error.
func ToError(v Value) (*ec.Error, bool) {
	if v.Kind != KindVector || len(v.Vector) != 3 {
		return nil, false
	}
	if v.Vector[0].Kind != KindString || v.Vector[0].Str != errorTag {
		return nil, false
	}
	if v.Vector[1].Kind != KindUint {
		return nil, false
	}
	code := ec.Code(v.Vector[1].Uint)
	ctx := v.Vector[2]
	switch ctx.Kind {
	case KindNone:
		return ec.New(code), true
	case KindVector:
		switch len(ctx.Vector) {
		case 1:
			if ctx.Vector[0].Kind != KindString {
				return nil, false
			}
			return ec.Newf(code, "%s", ctx.Vector[0].Str), true
		case 2:
			infoVal, msgVal := ctx.Vector[0], ctx.Vector[1]
			if infoVal.Kind != KindTable || msgVal.Kind != KindString {
				return nil, false
			}
			info := ec.EndpointInfo{}
			for _, e := range infoVal.Table {
				if e.Key.Kind != KindString {
					continue
				}
				switch e.Key.Str {
				case "node":
					info.Node = e.Value.Str
				case "network":
					info.Network = e.Value.Str
				}
			}
			return ec.WithInfo(code, info, msgVal.Str), true
		}
	}
	return nil, false
}
