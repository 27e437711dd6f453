// Package address implements Broker's 16-byte, network-byte-order address
// representation shared by both IPv4 and IPv6 values.
package address

import (
	"bytes"
	"fmt"
	"net"
)

const NumBytes = 16

// v4MappedPrefix is the fixed ::ffff:0:0/96 prefix used to store IPv4
// addresses inside the 16-byte representation.
var v4MappedPrefix = [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

// Address stores an IPv4 or IPv6 address as 16 bytes in network byte order.
// IPv4 addresses are kept in the ::ffff:a.b.c.d v4-mapped form.
type Address struct {
	bytes [NumBytes]byte
}

// FromNetworkBytes builds an Address from raw bytes already in network byte
// order. For a 4-byte slice, the v4-mapped prefix is prepended.
func FromNetworkBytes(b []byte) (Address, error) {
	var a Address
	switch len(b) {
	case 4:
		copy(a.bytes[:12], v4MappedPrefix[:])
		copy(a.bytes[12:], b)
	case 16:
		copy(a.bytes[:], b)
	default:
		return Address{}, fmt.Errorf("address: invalid byte length %d", len(b))
	}
	return a, nil
}

// FromIP converts a net.IP into an Address, mapping v4 addresses into the
// v4-mapped v6 form.
func FromIP(ip net.IP) (Address, error) {
	if v4 := ip.To4(); v4 != nil {
		return FromNetworkBytes(v4)
	}
	if v6 := ip.To16(); v6 != nil {
		return FromNetworkBytes(v6)
	}
	return Address{}, fmt.Errorf("address: invalid IP %v", ip)
}

// Parse parses the textual presentation of an IPv4 or IPv6 address.
func Parse(s string) (Address, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return Address{}, fmt.Errorf("address: cannot parse %q", s)
	}
	return FromIP(ip)
}

// IsV4 reports whether the address carries the v4-mapped prefix.
func (a Address) IsV4() bool {
	return bytes.Equal(a.bytes[:12], v4MappedPrefix[:])
}

// IsV6 reports whether the address is a native IPv6 address.
func (a Address) IsV6() bool {
	return !a.IsV4()
}

// Bytes returns the raw 16 bytes in network byte order.
func (a Address) Bytes() [NumBytes]byte {
	return a.bytes
}

// Mask clears the low (128-topBitsToKeep) bits of the address, always
// counted against the full 128-bit width (so an IPv4 /24 is expressed as
// topBitsToKeep == 96+24 == 120). topBitsToKeep must be in [0, 128].
func (a Address) Mask(topBitsToKeep uint8) (Address, error) {
	if topBitsToKeep > 128 {
		return Address{}, fmt.Errorf("address: invalid mask width %d", topBitsToKeep)
	}
	out := a
	bitsToKeep := int(topBitsToKeep)
	for i := 0; i < NumBytes; i++ {
		byteStart := i * 8
		switch {
		case bitsToKeep >= byteStart+8:
			// keep entire byte
		case bitsToKeep <= byteStart:
			out.bytes[i] = 0
		default:
			keepInByte := bitsToKeep - byteStart
			mask := byte(0xff << (8 - keepInByte))
			out.bytes[i] &= mask
		}
	}
	return out, nil
}

func (a Address) netIP() net.IP {
	b := make(net.IP, 16)
	copy(b, a.bytes[:])
	if a.IsV4() {
		return b.To4()
	}
	return b
}

// String renders the address in its standard v4 or v6 textual presentation.
func (a Address) String() string {
	return a.netIP().String()
}

func (a Address) Compare(other Address) int {
	return bytes.Compare(a.bytes[:], other.bytes[:])
}

func (a Address) Equal(other Address) bool {
	return a.bytes == other.bytes
}
