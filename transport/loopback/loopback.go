// Package loopback is a hosted transport.Stream backed by in-memory pipes,
// used by the bootloader and client tests. It plays the same role for the
// transport contract that internal/pichw/netbridge plays for a real
// WiFi-carried stream, minus the network stack.
package loopback

import (
	"errors"
	"io"
)

// Pair is two connected Streams: Host is driven by the host programmer
// side, Device is driven by the bootloader driver. Bytes written to one
// side's outbound pipe are what the other side's ReadExact consumes.
type Pair struct {
	Host   *Stream
	Device *Stream
}

// New creates a connected pair of loopback streams.
func New() *Pair {
	hostToDevice := newPipe()
	deviceToHost := newPipe()
	return &Pair{
		Host:   &Stream{in: deviceToHost, out: hostToDevice},
		Device: &Stream{in: hostToDevice, out: deviceToHost},
	}
}

// Stream implements transport.Stream over a pair of byte channels.
type Stream struct {
	in  *pipe
	out *pipe

	initCalls int
}

// Init is a no-op handshake — loopback has nothing to autobaud against —
// but counts calls so tests can assert the driver re-initializes per frame
// the way spec.md §4.7 requires.
func (s *Stream) Init() error {
	s.initCalls++
	return nil
}

// InitCalls reports how many times Init has run.
func (s *Stream) InitCalls() int { return s.initCalls }

func (s *Stream) ReadExact(buf []byte) error {
	return s.in.readExact(buf)
}

func (s *Stream) WriteAll(buf []byte) error {
	return s.out.writeAll(buf)
}

// TxDone is immediate: an in-memory pipe has no physical shift register to
// drain.
func (s *Stream) TxDone() {}

// Close unblocks any pending reads on this stream with a non-nil error, and
// makes the peer's later writes to this stream fail with io.ErrClosedPipe.
func (s *Stream) Close() {
	s.in.close()
}

type pipe struct {
	ch     chan byte
	closed chan struct{}
}

func newPipe() *pipe {
	return &pipe{ch: make(chan byte, 4096), closed: make(chan struct{})}
}

func (p *pipe) writeAll(buf []byte) error {
	for _, b := range buf {
		select {
		case p.ch <- b:
		case <-p.closed:
			return io.ErrClosedPipe
		}
	}
	return nil
}

func (p *pipe) readExact(buf []byte) error {
	for i := range buf {
		select {
		case b := <-p.ch:
			buf[i] = b
		case <-p.closed:
			return errors.New("loopback: closed while reading")
		}
	}
	return nil
}

func (p *pipe) close() {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
}
