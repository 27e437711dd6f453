// Package admin serves the JSON debug/administrative request interface:
// a single endpoint that accepts a zeekevent.Envelope request and
// replies with one, the same request/reply shape the teacher's
// directReqZMQJSON speaks over a ZMQ REQ socket, adapted onto the HTTP
// mux the metrics endpoint already serves from since this is a
// debug/admin surface rather than the hot wire path.
package admin

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/broker/broker/internal/data"
	"github.com/broker/broker/internal/ec"
	"github.com/broker/broker/internal/wire"
	"github.com/broker/broker/internal/zeekevent"
)

// Status answers the handful of introspection queries the direct
// request interface exposes. Endpoint satisfies this structurally.
type Status interface {
	Listen() wire.RemoteHandle
	PeerCount() int
	StoreNames() []string
}

// Serve starts the direct request HTTP listener on port, or does
// nothing if port is 0.
func Serve(port int, status Status) error {
	if port == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/direct_req", handler(status))
	go func() { _ = http.ListenAndServe(fmt.Sprintf(":%d", port), mux) }()
	return nil
}

func handler(status Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, err)
			return
		}
		req, err := zeekevent.FromJSON(body)
		if err != nil {
			writeError(w, err)
			return
		}
		reply, err := dispatch(status, req)
		if err != nil {
			writeEnvelope(w, errorEnvelope(err))
			return
		}
		writeEnvelope(w, reply)
	}
}

// dispatch answers the small set of status queries the direct request
// interface supports. req.Content names the query as a string; anything
// else is a protocol error back to the caller.
func dispatch(status Status, req zeekevent.Envelope) (zeekevent.Envelope, error) {
	if req.Content.Kind != data.KindString {
		return zeekevent.Envelope{}, fmt.Errorf("admin: request content must be a query name, got %s", req.Content.Kind)
	}
	switch req.Content.Str {
	case "status":
		return zeekevent.New(zeekevent.Event, data.TableOf(
			data.TableEntry{Key: data.String("self"), Value: data.String(string(status.Listen()))},
			data.TableEntry{Key: data.String("peers"), Value: data.Uint(uint64(status.PeerCount()))},
			data.TableEntry{Key: data.String("stores"), Value: storeVector(status.StoreNames())},
		)), nil
	default:
		return zeekevent.Envelope{}, fmt.Errorf("admin: unknown query %q", req.Content.Str)
	}
}

func storeVector(names []string) data.Value {
	vals := make([]data.Value, len(names))
	for i, n := range names {
		vals[i] = data.String(n)
	}
	return data.VectorOf(vals...)
}

func errorEnvelope(err error) zeekevent.Envelope {
	return zeekevent.New(zeekevent.Event, data.FromError(ec.Newf(ec.Unspecified, "%v", err)))
}

func writeEnvelope(w http.ResponseWriter, e zeekevent.Envelope) {
	b, err := zeekevent.ToJSON(e)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
