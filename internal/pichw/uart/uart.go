//go:build tinygo

// Package uart is the real-hardware transport.Stream: a framed byte stream
// carried over machine.UART0, autobaud-detected against the host's first
// byte the way main.go's telemetry setup treats machine.Serial as the
// console's wire, generalized here to carry bootloader frames instead of
// log text.
package uart

import (
	"errors"
	"machine"
	"time"
)

// candidateBauds are tried in order during autobaud; the PIC18 reference
// bootloader walks the same small table looking for a byte that decodes
// cleanly.
var candidateBauds = []uint32{115200, 57600, 38400, 19200, 9600}

// Stream drives machine.UART0 as a transport.Stream. Init blocks until a
// byte arrives at one of candidateBauds; it has no deadline of its own.
type Stream struct {
	uart     *machine.UART
	baud     uint32
	locked   bool
	pollTick time.Duration
}

// New wraps uart (normally machine.UART0) with a default 2ms poll interval.
func New(u *machine.UART) *Stream {
	return &Stream{uart: u, pollTick: 2 * time.Millisecond}
}

// Init performs autobaud: it reconfigures the UART at each candidate rate in
// turn and waits briefly for a byte, locking onto the first rate that
// produces one. It blocks indefinitely if the host never transmits, the same
// open-ended wait spec.md assigns to a partial frame. Once a rate has locked,
// later calls return at once and do not re-run autobaud for the next frame.
func (s *Stream) Init() error {
	if s.locked {
		return nil
	}
	for {
		for _, baud := range candidateBauds {
			s.uart.Configure(machine.UARTConfig{BaudRate: baud})
			deadline := time.Now().Add(200 * time.Millisecond)
			for time.Now().Before(deadline) {
				if s.uart.Buffered() > 0 {
					s.baud = baud
					s.locked = true
					return nil
				}
				time.Sleep(s.pollTick)
			}
		}
	}
}

// ReadExact blocks until len(buf) bytes have been read or the link is torn
// down, matching transport.Stream's no-self-initiated-timeout contract.
func (s *Stream) ReadExact(buf []byte) error {
	read := 0
	for read < len(buf) {
		if s.uart.Buffered() == 0 {
			time.Sleep(s.pollTick)
			continue
		}
		n, err := s.uart.Read(buf[read:])
		if err != nil {
			return err
		}
		read += n
	}
	return nil
}

func (s *Stream) WriteAll(buf []byte) error {
	n, err := s.uart.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return errors.New("uart: short write")
	}
	return nil
}

// TxDone blocks until the UART's shift register has emptied, the load
// bearing drain spec.md §4.6 requires before the next Init.
func (s *Stream) TxDone() {
	for s.uart.Buffered() > 0 {
		time.Sleep(s.pollTick)
	}
}
