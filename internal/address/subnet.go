package address

import "fmt"

// Subnet pairs a network address with a prefix length, always measured
// against the full 128-bit representation.
type Subnet struct {
	Network Address
	Length  uint8 // top bits to keep, 0..128
}

// NewSubnet masks addr down to length bits and returns the resulting subnet.
func NewSubnet(addr Address, length uint8) (Subnet, error) {
	masked, err := addr.Mask(length)
	if err != nil {
		return Subnet{}, err
	}
	return Subnet{Network: masked, Length: length}, nil
}

// Contains reports whether addr falls within the subnet.
func (s Subnet) Contains(addr Address) bool {
	masked, err := addr.Mask(s.Length)
	if err != nil {
		return false
	}
	return masked.Equal(s.Network)
}

func (s Subnet) String() string {
	bits := s.Length
	if s.Network.IsV4() {
		bits -= 96
	}
	return fmt.Sprintf("%s/%d", s.Network.String(), bits)
}

func (s Subnet) Equal(other Subnet) bool {
	return s.Length == other.Length && s.Network.Equal(other.Network)
}
