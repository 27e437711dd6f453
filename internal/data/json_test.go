package data

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/broker/broker/internal/address"
)

func TestScalarJSONRoundTrip(t *testing.T) {
	cases := []Value{
		None(),
		Bool(true),
		Int(-42),
		Uint(42),
		Real(3.5),
		String("hello"),
		EnumOf("RUNNING"),
		TimespanOf(5 * time.Second),
		TimestampOf(time.Unix(1700000000, 0).UTC()),
	}
	for _, v := range cases {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", v, err)
		}
		var got Value
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", raw, err)
		}
		if !Equal(got, v) {
			t.Errorf("JSON round trip mismatch for %v: got %v", v, got)
		}
	}
}

func TestAddressAndPortJSONRoundTrip(t *testing.T) {
	a, err := address.Parse("192.168.1.1")
	if err != nil {
		t.Fatal(err)
	}
	cases := []Value{
		AddressOf(a),
		PortOf(Port{Number: 443, Protocol: ProtoTCP}),
	}
	for _, v := range cases {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", v, err)
		}
		var got Value
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", raw, err)
		}
		if !Equal(got, v) {
			t.Errorf("JSON round trip mismatch for %v: got %v", v, got)
		}
	}
}

func TestContainerJSONRoundTrip(t *testing.T) {
	v := TableOf(
		TableEntry{Key: String("a"), Value: Int(1)},
		TableEntry{Key: String("b"), Value: VectorOf(Int(2), Int(3))},
	)
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var got Value
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if !Equal(got, v) {
		t.Errorf("JSON round trip mismatch: got %v want %v", got, v)
	}
}
