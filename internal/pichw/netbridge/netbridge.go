//go:build tinygo

// Package netbridge carries bootloader frames over a WiFi-attached TCP
// socket instead of a wired UART, for field units with no exposed serial
// header. New brings up WiFi and DHCP once per process the way main.go's
// cywnet.NewConfiguredPicoWithStack/SetupWithDHCP sequence does; Init then
// listens for exactly one programmer connection — the single-host-session contract
// transport.Stream shares with the UART transport.
package netbridge

import (
	"errors"
	"net/netip"
	"time"

	"github.com/soypat/cyw43439"
	"github.com/soypat/cyw43439/examples/cywnet"
	"github.com/soypat/lneto/tcp"
)

const listenPort = 6900

// Stream is a transport.Stream backed by one accepted tcp.Conn on a
// WiFi-attached lneto stack.
type Stream struct {
	stack *cywnet.Stack
	conn  tcp.Conn
	rxBuf [512]byte
	txBuf [512]byte
}

// New brings up WiFi with the given SSID/password and DHCP, the exact
// sequence main.go runs before opening its console/OTA listeners, and
// returns a Stream ready to accept one connection from Init.
func New(ssid, password string) (*Stream, error) {
	devcfg := cyw43439.DefaultWifiConfig()
	stack, err := cywnet.NewConfiguredPicoWithStack(ssid, password, devcfg, cywnet.StackConfig{
		Hostname:    "pic18boot",
		MaxTCPPorts: 1,
	})
	if err != nil {
		return nil, err
	}
	go func() {
		for {
			stack.LnetoStack().HandlePoll()
		}
	}()
	if _, err := stack.SetupWithDHCP(cywnet.DHCPConfig{
		RequestedAddr: netip.AddrFrom4([4]byte{192, 168, 1, 100}),
	}); err != nil {
		return nil, err
	}
	s := &Stream{stack: stack}
	if err := s.conn.Configure(tcp.ConnConfig{RxBuf: s.rxBuf[:], TxBuf: s.txBuf[:]}); err != nil {
		return nil, err
	}
	return s, nil
}

// Init does no DHCP (New already did); while a connection is synchronized it
// returns at once, otherwise it aborts the old connection and listens for
// the next programmer session, the netbridge analogue of UART autobaud.
func (s *Stream) Init() error {
	if s.conn.State().IsSynchronized() {
		return nil
	}
	s.conn.Abort()
	if err := s.stack.LnetoStack().ListenTCP(&s.conn, listenPort); err != nil {
		return err
	}
	for !s.conn.State().IsSynchronized() {
		if s.conn.State().IsClosed() {
			return errors.New("netbridge: listen aborted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (s *Stream) ReadExact(buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := s.conn.Read(buf[read:])
		if err != nil {
			return err
		}
		if n == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		read += n
	}
	return nil
}

func (s *Stream) WriteAll(buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := s.conn.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

// TxDone waits on TCP flush instead of UART shift-out: the socket's own
// send buffer draining is this transport's load-bearing drain.
func (s *Stream) TxDone() {
	s.conn.Flush()
	for i := 0; i < 50 && s.conn.BufferedSend() > 0; i++ {
		time.Sleep(10 * time.Millisecond)
	}
}
