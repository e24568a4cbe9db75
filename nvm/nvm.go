// Package nvm defines the contract the bootloader core uses to read and
// modify flash, EEPROM, and configuration memory. The core never pokes
// hardware registers directly; it calls a Provider, the same separation the
// teacher repo draws between ota.go's ROM-level flash primitives and the
// code that calls them.
package nvm

import "errors"

// Status mirrors the single last-operation status register a real NVM
// controller exposes. The core only ever needs to know OK or not-OK.
type Status uint8

const (
	StatusOK Status = iota
	StatusError
)

// MemoryMap names the addresses spec.md fixes as design constants. A
// different part swaps this struct; command and bootloader never hardcode
// an address.
type MemoryMap struct {
	StartOfApp      uint32
	NewResetVector  uint32
	UserIDStart     uint32
	ConfigStart     uint32
	EEPROMStart     uint32
	EEPROMSize      uint32
	DeviceIDStart   uint32
	ProgmemSize     uint32
	PageSize        uint32
	FrameDataCap    int
	CheckAddress    uint32
	CheckLength     uint32
}

// StatusAddress is the flash byte that records firmware-upgrade status.
func (m MemoryMap) StatusAddress() uint32 {
	return m.ProgmemSize - 2
}

// DefaultMemoryMap matches spec.md §6 for the PIC18F57Q43-class part with a
// 128-byte page.
var DefaultMemoryMap = MemoryMap{
	StartOfApp:     0x3000,
	NewResetVector: 0x3000,
	UserIDStart:    0x200000,
	ConfigStart:    0x300000,
	EEPROMStart:    0x380000,
	EEPROMSize:     0x400,
	DeviceIDStart:  0x3FFFFE,
	ProgmemSize:    0x10000,
	PageSize:       128,
	FrameDataCap:   128,
	CheckAddress:   0x6FB0,
	CheckLength:    0x3FB0,
}

var (
	ErrBusy        = errors.New("nvm: operation in progress")
	ErrUnlockedNot = errors.New("nvm: destructive call made without unlock key set")
)

// Provider is the non-volatile memory surface the bootloader core consumes.
// Implementations live outside the core: simnvm.Provider for hosted tests
// and the simulator, and a tinygo-gated register-level driver for real
// silicon (out of scope per spec.md §1 — the core only needs this contract).
type Provider interface {
	// ReadFlash copies len(dst) bytes starting at addr into dst.
	ReadFlash(addr uint32, dst []byte) error
	// ErasePage erases the PageSize-aligned page containing addr. Must be
	// called with the unlock key set.
	ErasePage(addr uint32) error
	// WriteRow writes exactly PageSize bytes starting at the page-aligned
	// addr. Must be called with the unlock key set.
	WriteRow(addr uint32, row []byte) error

	ReadEEPROM(addr uint32) (byte, error)
	WriteEEPROM(addr uint32, b byte) error

	ReadConfig(addr uint32) (byte, error)
	WriteConfig(addr uint32, b byte) error

	// SetKey and ClearKey bracket a single destructive primitive call. They
	// must nest exactly one deep; SetKey twice without an intervening
	// ClearKey is a programming error in the caller.
	SetKey()
	ClearKey()

	// Busy reports whether the last primitive is still in flight.
	Busy() bool
	// LastStatus reports the outcome of the last primitive call.
	LastStatus() Status
}

// WithUnlock runs fn with the unlock key held, guaranteeing ClearKey runs on
// every exit path including a panic — the scoped-acquisition pattern
// spec.md §9 asks for, modeled on the teacher's defer-based cleanup in
// ota_server.go's handleOTASession (pause/resume via defer).
func WithUnlock(p Provider, fn func() error) error {
	p.SetKey()
	defer p.ClearKey()
	return fn()
}
