package zeekevent

import (
	"testing"

	"github.com/broker/broker/internal/data"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	e := New(Event, data.VectorOf(data.String("ping"), data.Int(1)))
	v := ToValue(e)

	got, err := FromValue(v)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != Event || !data.Equal(got.Content, e.Content) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestFromValueRejectsWrongVersion(t *testing.T) {
	v := data.VectorOf(data.Uint(99), data.Uint(uint64(Event)), data.None())
	if _, err := FromValue(v); err == nil {
		t.Fatal("expected an error for an unsupported protocol version")
	}
}

func TestEnvelopeJSONRoundTrip(t *testing.T) {
	e := New(LogWrite, data.VectorOf(data.String("conn"), data.Int(7)))

	b, err := ToJSON(e)
	if err != nil {
		t.Fatal(err)
	}

	got, err := FromJSON(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != LogWrite || !data.Equal(got.Content, e.Content) {
		t.Fatalf("JSON round trip mismatch: got %+v", got)
	}
}

func TestFromJSONRejectsWrongVersion(t *testing.T) {
	b := []byte(`{"version":99,"type":"event","content":{"type":"none"}}`)
	if _, err := FromJSON(b); err == nil {
		t.Fatal("expected an error for an unsupported protocol version")
	}
}

func TestBatchUnpacksSubEnvelopes(t *testing.T) {
	a := New(Event, data.String("a"))
	b := New(Event, data.String("b"))
	batch := New(Batch, data.VectorOf(ToValue(a), ToValue(b)))

	subs, err := batch.Batch()
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || !data.Equal(subs[0].Content, a.Content) || !data.Equal(subs[1].Content, b.Content) {
		t.Fatalf("batch unpack mismatch: %+v", subs)
	}
}
