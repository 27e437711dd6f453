package endpoint

import (
	"os"
	"sync/atomic"
)

// Flare is a pipe-backed readiness signal, the same mechanism
// detail/flare.hh uses to let a native select()/poll() loop watch a
// Go-internal queue for new data without polling it directly.
type Flare struct {
	r, w *os.File
	armed int32
}

func NewFlare() (*Flare, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &Flare{r: r, w: w}, nil
}

// FD returns the read end's file descriptor, ready for select()/poll()
// once Fire has been called.
func (f *Flare) FD() uintptr { return f.r.Fd() }

// Fire puts the flare in the ready state. Redundant calls before the
// next Extinguish are coalesced into a single byte on the pipe.
func (f *Flare) Fire() {
	if atomic.CompareAndSwapInt32(&f.armed, 0, 1) {
		_, _ = f.w.Write([]byte{1})
	}
}

// Extinguish takes the flare out of the ready state, draining the pipe.
func (f *Flare) Extinguish() {
	if atomic.CompareAndSwapInt32(&f.armed, 1, 0) {
		var buf [1]byte
		_, _ = f.r.Read(buf[:])
	}
}

func (f *Flare) Close() error {
	werr := f.w.Close()
	rerr := f.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
