// Package bootloader ties the frame codec, command dispatcher, NVM
// provider, platform facade, and transport into the entry decision and main
// command loop spec.md §4.1 and §4.7 specify. It is the top-level driver,
// grounded on the teacher's main.go device loop (watchdog-fed cycle,
// colon-namespaced slog events) generalized from network/telemetry
// concerns to the command-loop concerns this domain actually has.
package bootloader

import (
	"context"
	"log/slog"

	"boardworks/pic18boot/command"
	"boardworks/pic18boot/frame"
	"boardworks/pic18boot/nvm"
	"boardworks/pic18boot/platform"
	"boardworks/pic18boot/transport"
	"boardworks/pic18boot/verify"
)

// Driver owns every shared resource the command loop touches: the frame
// buffer, reset_pending, and the collaborators it dispatches through.
type Driver struct {
	NVM       nvm.Provider
	Platform  platform.Facade
	Transport transport.Stream
	Map       nvm.MemoryMap
	UnlockKey uint16
	Log       *slog.Logger

	resetPending bool
	frame        *frame.Frame
}

// New builds a Driver with a frame buffer sized to m.FrameDataCap.
func New(nvmP nvm.Provider, plat platform.Facade, stream transport.Stream, m nvm.MemoryMap, unlockKey uint16, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{
		NVM:       nvmP,
		Platform:  plat,
		Transport: stream,
		Map:       m,
		UnlockKey: unlockKey,
		Log:       log,
		frame:     frame.New(m.FrameDataCap),
	}
}

// ShouldEnter implements the entry decision (spec.md §4.1, steps 1..4) and
// reports whether the command loop should run. It always clears the
// indicator and runs the settle delay first, matching the reference
// sequence exactly so entry-pin sampling happens after pullups stabilize.
func (d *Driver) ShouldEnter() bool {
	d.Platform.IndicatorOff()
	d.Platform.SettleDelay()

	if d.Platform.EntryActive() {
		d.Log.Info("entry:forced", "reason", "pin")
		return true
	}

	result := verify.Verify(d.NVM, d.Map.ProgmemSize, d.Map.StartOfApp, d.Map.CheckLength, d.Map.CheckAddress)
	if result != verify.OK {
		d.Log.Info("entry:forced", "reason", "verify", "result", result.String())
		return true
	}

	d.Log.Info("entry:skipped", "reason", "app_valid")
	return false
}

// Run executes the entry decision and, if triggered, the command loop
// (spec.md §4.7), then jumps to the application. It returns only in a
// hosted build where Platform.Reset/JumpToApp return instead of halting, or
// when ctx is done. ctx is checked once at the top of each loop iteration; a
// transport read that is already blocked is not interrupted by it.
func (d *Driver) Run(ctx context.Context) {
	if !d.ShouldEnter() {
		d.jumpToApp()
		return
	}

	d.Platform.IndicatorOn()
	d.Log.Info("loop:start")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if d.resetPending {
			d.Platform.IndicatorOff()
			d.Log.Info("reset:pending")
			d.Platform.Reset()
			return
		}

		if err := d.Transport.Init(); err != nil {
			d.Log.Warn("transport:init_error", "err", err)
			continue
		}

		if err := d.readFrame(); err != nil {
			d.Log.Warn("frame:read_error", "err", err)
			continue
		}

		n := d.dispatch()

		if n > 0 {
			if err := transport.WriteResponse(d.Transport, d.frame.Raw()[:n]); err != nil {
				d.Log.Warn("frame:write_error", "err", err)
				continue
			}
			d.Transport.TxDone()
		}
	}
}

// readFrame implements spec.md §4.5: read the 9-byte header, then extend
// the read by data_length more bytes for the three write-class opcodes.
func (d *Driver) readFrame() error {
	buf := d.frame.Raw()
	if err := d.Transport.ReadExact(buf[:frame.HeaderBytes]); err != nil {
		return err
	}

	switch d.frame.Command() {
	case command.WriteFlash, command.WriteEEData, command.WriteConfig:
		n := int(d.frame.DataLength())
		fit := n
		if fit > d.frame.DataCap() {
			fit = d.frame.DataCap()
		}
		if err := d.Transport.ReadExact(buf[frame.HeaderBytes : frame.HeaderBytes+fit]); err != nil {
			return err
		}
		if n > fit {
			// Drain the oversized remainder so the transport stays
			// byte-synchronized; the overload is reported by the
			// handler once dispatch runs.
			overflow := make([]byte, n-fit)
			return d.Transport.ReadExact(overflow)
		}
		return nil
	default:
		return nil
	}
}

func (d *Driver) dispatch() int {
	env := &command.Env{
		NVM:          d.NVM,
		Map:          d.Map,
		UnlockKey:    d.UnlockKey,
		ResetPending: &d.resetPending,
	}
	return command.Dispatch(env, d.frame)
}

func (d *Driver) jumpToApp() {
	d.Platform.IndicatorOff()
	d.Log.Info("app:jump", "vector", d.Map.NewResetVector)
	d.Platform.JumpToApp()
}
