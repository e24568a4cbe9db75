package bootloader

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"boardworks/pic18boot/command"
	"boardworks/pic18boot/frame"
	"boardworks/pic18boot/nvm"
	"boardworks/pic18boot/nvm/simnvm"
	"boardworks/pic18boot/platform/simplatform"
	"boardworks/pic18boot/transport/loopback"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShouldEnterOnForcedPin(t *testing.T) {
	m := nvm.DefaultMemoryMap
	p := simnvm.New(m)
	plat := simplatform.New()
	plat.ForceEntry = true

	pair := loopback.New()
	d := New(p, plat, pair.Device, m, 0xAA55, discardLogger())

	if !d.ShouldEnter() {
		t.Fatal("ShouldEnter() = false, want true when entry pin forced")
	}
	if plat.SettleDelays != 1 {
		t.Fatalf("SettleDelays = %d, want 1", plat.SettleDelays)
	}
}

func TestShouldEnterOnVerifyFailure(t *testing.T) {
	m := nvm.DefaultMemoryMap
	p := simnvm.New(m) // flash is all 0xFF, checksum at CheckAddress is 0xFFFF -> mismatch
	plat := simplatform.New()

	pair := loopback.New()
	d := New(p, plat, pair.Device, m, 0xAA55, discardLogger())

	if !d.ShouldEnter() {
		t.Fatal("ShouldEnter() = false, want true on verify mismatch")
	}
}

func TestShouldEnterSkipsWhenAppValid(t *testing.T) {
	m := nvm.DefaultMemoryMap
	p := simnvm.New(m)
	plat := simplatform.New()

	sum := sumRange(p, m.StartOfApp, m.CheckLength)
	flash := p.FlashBytes()
	flash[m.CheckAddress] = byte(sum)
	flash[m.CheckAddress+1] = byte(sum >> 8)

	pair := loopback.New()
	d := New(p, plat, pair.Device, m, 0xAA55, discardLogger())

	if d.ShouldEnter() {
		t.Fatal("ShouldEnter() = true, want false when checksum matches")
	}
}

func sumRange(p nvm.Provider, addr, length uint32) uint16 {
	buf := make([]byte, length)
	p.ReadFlash(addr, buf)
	var sum uint16
	for i := 0; i+1 < len(buf); i += 2 {
		sum += uint16(buf[i]) | uint16(buf[i+1])<<8
	}
	return sum
}

func TestRunVersionQueryEndToEnd(t *testing.T) {
	m := nvm.DefaultMemoryMap
	p := simnvm.New(m)
	plat := simplatform.New()
	plat.ForceEntry = true

	pair := loopback.New()
	d := New(p, plat, pair.Device, m, 0xAA55, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	req := frame.New(m.FrameDataCap)
	req.SetCommand(command.ReadVersion)
	if err := pair.Host.WriteAll(req.Raw()[:frame.HeaderBytes]); err != nil {
		t.Fatalf("write request: %v", err)
	}

	sentinel := make([]byte, 1)
	if err := pair.Host.ReadExact(sentinel); err != nil {
		t.Fatalf("read sentinel: %v", err)
	}
	if sentinel[0] != 0x55 {
		t.Fatalf("sentinel = %#x, want 0x55", sentinel[0])
	}

	resp := make([]byte, frame.HeaderBytes+16)
	if err := pair.Host.ReadExact(resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp[frame.OffsetCommand] != command.ReadVersion {
		t.Fatalf("echoed opcode = %#x, want %#x", resp[0], command.ReadVersion)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}

func TestRunResetPendingStopsLoop(t *testing.T) {
	m := nvm.DefaultMemoryMap
	p := simnvm.New(m)
	plat := simplatform.New()
	plat.ForceEntry = true

	pair := loopback.New()
	d := New(p, plat, pair.Device, m, 0xAA55, discardLogger())

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	req := frame.New(m.FrameDataCap)
	req.SetCommand(command.ResetDevice)
	pair.Host.WriteAll(req.Raw()[:frame.HeaderBytes])

	sentinel := make([]byte, 1)
	pair.Host.ReadExact(sentinel)
	resp := make([]byte, frame.HeaderBytes+1)
	pair.Host.ReadExact(resp)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after RESET_DEVICE")
	}
	if !plat.ResetCalled {
		t.Fatal("platform Reset() was not invoked")
	}
}
