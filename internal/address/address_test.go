package address

import "testing"

func TestMaskIdempotent(t *testing.T) {
	a, err := Parse("192.168.1.2")
	if err != nil {
		t.Fatal(err)
	}
	m1, err := a.Mask(120) // 96 + 24
	if err != nil {
		t.Fatal(err)
	}
	m2, err := m1.Mask(120)
	if err != nil {
		t.Fatal(err)
	}
	if !m1.Equal(m2) {
		t.Fatalf("mask not idempotent: %v vs %v", m1, m2)
	}
}

func TestMaskFull(t *testing.T) {
	a, err := Parse("2001:db8::1")
	if err != nil {
		t.Fatal(err)
	}
	m, err := a.Mask(128)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Equal(a) {
		t.Fatalf("mask(128) changed address: %v != %v", m, a)
	}
}

func TestMaskZero(t *testing.T) {
	a, err := Parse("2001:db8::1")
	if err != nil {
		t.Fatal(err)
	}
	m, err := a.Mask(0)
	if err != nil {
		t.Fatal(err)
	}
	var zero Address
	if !m.Equal(zero) {
		t.Fatalf("mask(0) did not zero the address: %v", m)
	}
}

func TestV4RoundTrip(t *testing.T) {
	a, err := Parse("10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.IsV4() {
		t.Fatal("expected v4")
	}
	b, err := Parse(a.String())
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Fatalf("round trip mismatch: %v != %v", a, b)
	}
}

func TestV6RoundTrip(t *testing.T) {
	a, err := Parse("fe80::1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.IsV6() {
		t.Fatal("expected v6")
	}
	b, err := Parse(a.String())
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Fatalf("round trip mismatch: %v != %v", a, b)
	}
}
