// Package simnvm is a hosted, in-memory implementation of nvm.Provider used
// by tests and by cmd/pic18boot-sim. It has no hardware dependency, the same
// role bindicator_stub.go plays for BinJob storage in the teacher repo: a
// plain-Go stand-in that exercises the same contract the real device would.
package simnvm

import (
	"errors"

	"boardworks/pic18boot/nvm"
)

// ErrSimulated is returned by a primitive when its corresponding
// FailNext* flag was set, standing in for a real device reporting a
// non-OK status on its last operation.
var ErrSimulated = errors.New("simnvm: simulated device failure")

// Provider backs flash, EEPROM, and config memory with plain byte slices.
// It is not safe for concurrent use — the bootloader core never calls it
// from more than one goroutine.
type Provider struct {
	memMap nvm.MemoryMap

	flash  []byte
	eeprom []byte
	config []byte

	keySet bool
	status nvm.Status

	// FailNextErase/FailNextWrite/FailNextEEPROM/FailNextConfig let tests
	// simulate a device error on the next destructive call.
	FailNextErase  bool
	FailNextWrite  bool
	FailNextEEPROM bool
	FailNextConfig bool

	// BusyCycles makes Busy report true this many times before reporting
	// false, standing in for a real NVM controller's write-cycle latency.
	// Tests use it to exercise the caller's busy-spin; it is not touched by
	// any primitive itself.
	BusyCycles int
}

// New returns a Provider with flash pre-filled to 0xFF (erased state) and
// EEPROM/config zeroed, sized per m.
//
// The backing flash slice is sized past m.DeviceIDStart rather than just
// m.ProgmemSize: on the real part, user-ID and device-ID flash sit at fixed
// offsets reached through the same table-read mechanism as program memory,
// just via extended addressing (TBLPTRU) beyond the program memory's own
// span. Modeling them as one flat address space lets ReadFlash serve both
// without a separate primitive.
func New(m nvm.MemoryMap) *Provider {
	flashSpan := m.ProgmemSize
	for _, addr := range []uint32{m.DeviceIDStart + 2, m.UserIDStart + 4} {
		if addr > flashSpan {
			flashSpan = addr
		}
	}

	p := &Provider{
		memMap: m,
		flash:  make([]byte, flashSpan),
		eeprom: make([]byte, m.EEPROMSize),
		// Config memory is sparsely addressed on real parts; back it with a
		// map-free flat buffer of 0x1000 bytes, generous enough for every
		// test fixture; see configIndex for how addresses map onto it.
		config: make([]byte, 0x1000),
	}
	for i := range p.flash {
		p.flash[i] = 0xFF
	}
	return p
}

// FlashBytes exposes the backing flash array for assertions in tests.
func (p *Provider) FlashBytes() []byte { return p.flash }

func (p *Provider) ReadFlash(addr uint32, dst []byte) error {
	copy(dst, p.flash[addr:addr+uint32(len(dst))])
	return nil
}

func (p *Provider) ErasePage(addr uint32) error {
	if !p.keySet {
		return nvm.ErrUnlockedNot
	}
	if p.FailNextErase {
		p.FailNextErase = false
		p.status = nvm.StatusError
		return ErrSimulated
	}
	base := addr &^ (p.memMap.PageSize - 1)
	for i := uint32(0); i < p.memMap.PageSize; i++ {
		p.flash[base+i] = 0xFF
	}
	p.status = nvm.StatusOK
	return nil
}

func (p *Provider) WriteRow(addr uint32, row []byte) error {
	if !p.keySet {
		return nvm.ErrUnlockedNot
	}
	if p.FailNextWrite {
		p.FailNextWrite = false
		p.status = nvm.StatusError
		return ErrSimulated
	}
	copy(p.flash[addr:addr+uint32(len(row))], row)
	p.status = nvm.StatusOK
	return nil
}

func (p *Provider) ReadEEPROM(addr uint32) (byte, error) {
	return p.eeprom[addr-p.memMap.EEPROMStart], nil
}

func (p *Provider) WriteEEPROM(addr uint32, b byte) error {
	if p.FailNextEEPROM {
		p.FailNextEEPROM = false
		p.status = nvm.StatusError
		return ErrSimulated
	}
	p.eeprom[addr-p.memMap.EEPROMStart] = b
	p.status = nvm.StatusOK
	return nil
}

// configIndex maps an absolute config-memory address onto the flat backing
// array. Addresses below ConfigStart (tests exercising the permissive
// >= NewResetVector precondition with small fixture addresses) are kept
// in range by indexing from NewResetVector instead; real config addresses
// index from ConfigStart.
func (p *Provider) configIndex(addr uint32) uint32 {
	if addr >= p.memMap.ConfigStart {
		return addr - p.memMap.ConfigStart
	}
	return addr - p.memMap.NewResetVector
}

func (p *Provider) ReadConfig(addr uint32) (byte, error) {
	idx := p.configIndex(addr)
	if idx >= uint32(len(p.config)) {
		return 0, nil
	}
	return p.config[idx], nil
}

func (p *Provider) WriteConfig(addr uint32, b byte) error {
	if p.FailNextConfig {
		p.FailNextConfig = false
		p.status = nvm.StatusError
		return ErrSimulated
	}
	idx := p.configIndex(addr)
	if idx >= uint32(len(p.config)) {
		p.status = nvm.StatusOK
		return nil
	}
	p.config[idx] = b
	p.status = nvm.StatusOK
	return nil
}

func (p *Provider) SetKey()   { p.keySet = true }
func (p *Provider) ClearKey() { p.keySet = false }

// KeySet reports whether the unlock key is currently held — used only by
// tests to assert the bracket is cleared on every handler exit.
func (p *Provider) KeySet() bool { return p.keySet }

// Busy reports true BusyCycles times, decrementing it each call, then
// settles to false — the same one-shot-countdown shape FailNextEEPROM uses
// for errors, applied to latency instead.
func (p *Provider) Busy() bool {
	if p.BusyCycles > 0 {
		p.BusyCycles--
		return true
	}
	return false
}

func (p *Provider) LastStatus() nvm.Status { return p.status }
