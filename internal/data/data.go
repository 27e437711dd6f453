// Package data implements Broker's polymorphic value type: a tagged sum
// over the scalar and container kinds listed in spec.md's DATA MODEL.
package data

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/broker/broker/internal/address"
)

// Kind discriminates the variant stored in a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindUint
	KindReal
	KindString
	KindAddress
	KindSubnet
	KindPort
	KindTimestamp
	KindTimespan
	KindEnum
	KindSet
	KindTable
	KindVector
)

var kindNames = map[Kind]string{
	KindNone:      "none",
	KindBool:      "bool",
	KindInt:       "int",
	KindUint:      "uint",
	KindReal:      "real",
	KindString:    "string",
	KindAddress:   "address",
	KindSubnet:    "subnet",
	KindPort:      "port",
	KindTimestamp: "timestamp",
	KindTimespan:  "timespan",
	KindEnum:      "enum",
	KindSet:       "set",
	KindTable:     "table",
	KindVector:    "vector",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// PortProtocol distinguishes the transport protocol carried by a Port value.
type PortProtocol uint8

const (
	ProtoUnknown PortProtocol = iota
	ProtoTCP
	ProtoUDP
	ProtoICMP
)

func (p PortProtocol) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoICMP:
		return "icmp"
	default:
		return "?"
	}
}

// Port is a 16-bit port number tagged with its transport protocol.
type Port struct {
	Number   uint16
	Protocol PortProtocol
}

func (p Port) String() string {
	return fmt.Sprintf("%d/%s", p.Number, p.Protocol)
}

// TableEntry is one key/value pair of a Table value, kept sorted by key.
type TableEntry struct {
	Key   Value
	Value Value
}

// Value is Broker's tagged sum type. Exactly the fields relevant to Kind
// are meaningful; the rest are zero. Container kinds keep their elements
// sorted so that equality and serialization are deterministic.
type Value struct {
	Kind Kind

	Bool      bool
	Int       int64
	Uint      uint64
	Real      float64
	Str       string
	Addr      address.Address
	Subnet    address.Subnet
	Port      Port
	Timestamp time.Time
	Timespan  time.Duration
	Enum      string

	Set    []Value
	Table  []TableEntry
	Vector []Value
}

func None() Value                    { return Value{Kind: KindNone} }
func Bool(b bool) Value              { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value              { return Value{Kind: KindInt, Int: i} }
func Uint(u uint64) Value            { return Value{Kind: KindUint, Uint: u} }
func Real(r float64) Value           { return Value{Kind: KindReal, Real: r} }
func String(s string) Value          { return Value{Kind: KindString, Str: s} }
func AddressOf(a address.Address) Value { return Value{Kind: KindAddress, Addr: a} }
func SubnetOf(s address.Subnet) Value   { return Value{Kind: KindSubnet, Subnet: s} }
func PortOf(p Port) Value            { return Value{Kind: KindPort, Port: p} }
func TimestampOf(t time.Time) Value  { return Value{Kind: KindTimestamp, Timestamp: t} }
func TimespanOf(d time.Duration) Value { return Value{Kind: KindTimespan, Timespan: d} }
func EnumOf(e string) Value          { return Value{Kind: KindEnum, Enum: e} }

func SetOf(vals ...Value) Value {
	v := Value{Kind: KindSet, Set: append([]Value{}, vals...)}
	sort.Slice(v.Set, func(i, j int) bool { return Compare(v.Set[i], v.Set[j]) < 0 })
	return v
}

func VectorOf(vals ...Value) Value {
	return Value{Kind: KindVector, Vector: append([]Value{}, vals...)}
}

func TableOf(entries ...TableEntry) Value {
	v := Value{Kind: KindTable, Table: append([]TableEntry{}, entries...)}
	sort.Slice(v.Table, func(i, j int) bool { return Compare(v.Table[i].Key, v.Table[j].Key) < 0 })
	return v
}

// ZeroValue returns the additive identity for kind, used by the "add"
// command to initialize a missing key.
func ZeroValue(kind Kind) (Value, error) {
	switch kind {
	case KindInt:
		return Int(0), nil
	case KindUint:
		return Uint(0), nil
	case KindReal:
		return Real(0), nil
	case KindSet:
		return Value{Kind: KindSet}, nil
	case KindVector:
		return Value{Kind: KindVector}, nil
	case KindTable:
		return Value{Kind: KindTable}, nil
	default:
		return Value{}, fmt.Errorf("data: no zero value for kind %s", kind)
	}
}

// Equal reports deep equality between two values.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// Compare gives a deterministic total order over Values, used to keep Set
// and Table entries sorted. Values of different Kind order by Kind.
func Compare(a, b Value) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KindNone:
		return 0
	case KindBool:
		return boolCompare(a.Bool, b.Bool)
	case KindInt:
		return int64Compare(a.Int, b.Int)
	case KindUint:
		return uint64Compare(a.Uint, b.Uint)
	case KindReal:
		return float64Compare(a.Real, b.Real)
	case KindString:
		return strings.Compare(a.Str, b.Str)
	case KindAddress:
		return a.Addr.Compare(b.Addr)
	case KindSubnet:
		if c := a.Subnet.Network.Compare(b.Subnet.Network); c != 0 {
			return c
		}
		return int(a.Subnet.Length) - int(b.Subnet.Length)
	case KindPort:
		if a.Port.Number != b.Port.Number {
			return int(a.Port.Number) - int(b.Port.Number)
		}
		return int(a.Port.Protocol) - int(b.Port.Protocol)
	case KindTimestamp:
		return int(a.Timestamp.Compare(b.Timestamp))
	case KindTimespan:
		return int64Compare(int64(a.Timespan), int64(b.Timespan))
	case KindEnum:
		return strings.Compare(a.Enum, b.Enum)
	case KindSet:
		return compareSlices(a.Set, b.Set)
	case KindVector:
		return compareSlices(a.Vector, b.Vector)
	case KindTable:
		n := len(a.Table)
		if len(b.Table) < n {
			n = len(b.Table)
		}
		for i := 0; i < n; i++ {
			if c := Compare(a.Table[i].Key, b.Table[i].Key); c != 0 {
				return c
			}
			if c := Compare(a.Table[i].Value, b.Table[i].Value); c != 0 {
				return c
			}
		}
		return len(a.Table) - len(b.Table)
	default:
		return 0
	}
}

func compareSlices(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func boolCompare(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func int64Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func uint64Compare(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func float64Compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String renders the documented textual form used for round-tripping
// non-floating scalars and containers thereof.
func (v Value) String() string {
	switch v.Kind {
	case KindNone:
		return "nil"
	case KindBool:
		if v.Bool {
			return "T"
		}
		return "F"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindUint:
		return strconv.FormatUint(v.Uint, 10) + "u"
	case KindReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.Str)
	case KindAddress:
		return v.Addr.String()
	case KindSubnet:
		return v.Subnet.String()
	case KindPort:
		return v.Port.String()
	case KindTimestamp:
		return v.Timestamp.UTC().Format(time.RFC3339Nano)
	case KindTimespan:
		return v.Timespan.String()
	case KindEnum:
		return v.Enum
	case KindSet:
		return "{" + joinValues(v.Set) + "}"
	case KindVector:
		return "[" + joinValues(v.Vector) + "]"
	case KindTable:
		parts := make([]string, len(v.Table))
		for i, e := range v.Table {
			parts[i] = e.Key.String() + " -> " + e.Value.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return "?"
	}
}

func joinValues(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// ParseScalar parses the textual form of a non-floating scalar kind back
// into a Value, the inverse of String() for those kinds.
func ParseScalar(kind Kind, s string) (Value, error) {
	switch kind {
	case KindNone:
		return None(), nil
	case KindBool:
		switch s {
		case "T":
			return Bool(true), nil
		case "F":
			return Bool(false), nil
		}
		return Value{}, fmt.Errorf("data: invalid bool literal %q", s)
	case KindInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return Int(i), nil
	case KindUint:
		s = strings.TrimSuffix(s, "u")
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return Uint(u), nil
	case KindString:
		unq, err := strconv.Unquote(s)
		if err != nil {
			return Value{}, err
		}
		return String(unq), nil
	case KindAddress:
		a, err := address.Parse(s)
		if err != nil {
			return Value{}, err
		}
		return AddressOf(a), nil
	case KindEnum:
		return EnumOf(s), nil
	default:
		return Value{}, fmt.Errorf("data: ParseScalar unsupported for kind %s", kind)
	}
}
