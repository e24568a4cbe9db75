// Package command implements the opcode handlers spec.md §4.4 specifies,
// dispatched through a fixed table keyed by opcode (spec.md §9,
// "polymorphism over opcodes"). Each handler receives the shared
// frame.Frame in place: it reads the request fields, overwrites the buffer
// with response fields, and returns the total response length.
package command

import (
	"boardworks/pic18boot/frame"
	"boardworks/pic18boot/nvm"
	"boardworks/pic18boot/verify"
)

// Opcodes (spec.md §6 opcode table).
const (
	ReadVersion  = 0x00
	ReadFlash    = 0x01
	WriteFlash   = 0x02
	EraseFlash   = 0x03
	ReadEEData   = 0x04
	WriteEEData  = 0x05
	ReadConfig   = 0x06
	WriteConfig  = 0x07
	CalcChecksum = 0x08
	ResetDevice  = 0x09
)

// Status bytes (spec.md §6).
const (
	StatusSuccess          byte = 0x01
	StatusOverload         byte = 0xFC
	StatusProcessingError  byte = 0xFD
	StatusAddressOutOfRange byte = 0xFE
	StatusInvalidCommand   byte = 0xFF
)

// Env is the fixed set of collaborators every handler closes over: the NVM
// provider, the memory map constants, the configured unlock key, and a
// pointer to the process-wide reset_pending flag (spec.md §3's "process-wide
// static, cleared at entry, set by the reset opcode handler").
type Env struct {
	NVM          nvm.Provider
	Map          nvm.MemoryMap
	UnlockKey    uint16
	ResetPending *bool
}

// Handler processes one request already loaded into f and returns the
// total response length including the 9-byte header.
type Handler func(env *Env, f *frame.Frame) int

// Table is the opcode-to-handler dispatch map (spec.md §9).
var Table = map[byte]Handler{
	ReadVersion:  handleReadVersion,
	ReadFlash:    handleReadFlash,
	WriteFlash:   handleWriteFlash,
	EraseFlash:   handleEraseFlash,
	ReadEEData:   handleReadEEData,
	WriteEEData:  handleWriteEEData,
	ReadConfig:   handleReadConfig,
	WriteConfig:  handleWriteConfig,
	CalcChecksum: handleCalcChecksum,
	ResetDevice:  handleResetDevice,
}

// Dispatch routes f by its opcode byte (spec.md §4.3). Unknown opcodes get
// the invalid-command status and a length-10 response; the dispatcher
// itself never touches NVM.
func Dispatch(env *Env, f *frame.Frame) int {
	h, ok := Table[f.Command()]
	if !ok {
		f.Data(1)[0] = StatusInvalidCommand
		return frame.HeaderBytes + 1
	}
	return h(env, f)
}

func fail(f *frame.Frame, status byte) int {
	f.Data(1)[0] = status
	return frame.HeaderBytes + 1
}

func largeFlash(m nvm.MemoryMap) bool { return m.ProgmemSize > 0x10000 }

func handleReadVersion(env *Env, f *frame.Frame) int {
	const minorVersion = 0
	const majorVersion = 1
	maxPacketSize := uint16(env.Map.ProgmemSize / env.Map.PageSize)

	var userID [4]byte
	env.NVM.ReadFlash(env.Map.UserIDStart, userID[:])

	var devID [2]byte
	env.NVM.ReadFlash(env.Map.DeviceIDStart, devID[:])

	out := f.Data(16)
	out[0] = minorVersion
	out[1] = majorVersion
	out[2] = byte(maxPacketSize)
	out[3] = byte(maxPacketSize >> 8)
	out[4] = 0
	out[5] = 0
	out[6] = devID[0]
	out[7] = devID[1]
	out[8] = 0
	out[9] = 0
	out[10] = byte(env.Map.PageSize)
	out[11] = byte(env.Map.PageSize >> 8)
	copy(out[12:16], userID[:])

	return frame.HeaderBytes + 16
}

func handleReadFlash(env *Env, f *frame.Frame) int {
	addr := f.Addr24()
	length := f.DataLength()

	if addr < env.Map.StartOfApp || addr >= env.Map.ProgmemSize {
		return fail(f, StatusAddressOutOfRange)
	}
	if int(length) > env.Map.FrameDataCap {
		return fail(f, StatusOverload)
	}

	out := f.Data(1 + int(length))
	out[0] = StatusSuccess
	if err := env.NVM.ReadFlash(addr, out[1:]); err != nil {
		out[0] = StatusProcessingError
	}
	return frame.HeaderBytes + 1 + int(length)
}

func handleWriteFlash(env *Env, f *frame.Frame) int {
	addr := f.Addr24()
	length := f.DataLength()

	if f.UnlockKey() != env.UnlockKey {
		return fail(f, StatusProcessingError)
	}
	if int(length) > env.Map.FrameDataCap {
		return fail(f, StatusOverload)
	}
	if addr < env.Map.NewResetVector {
		return fail(f, StatusAddressOutOfRange)
	}

	pageSize := env.Map.PageSize
	pageBase := addr &^ (pageSize - 1)
	offset := addr - pageBase

	payload := append([]byte(nil), f.Data(int(length))...)

	scratch := make([]byte, pageSize)
	if err := env.NVM.ReadFlash(pageBase, scratch); err != nil {
		return fail(f, StatusProcessingError)
	}
	copy(scratch[offset:offset+uint32(length)], payload)

	status := StatusSuccess
	eraseErr := nvm.WithUnlock(env.NVM, func() error {
		return env.NVM.ErasePage(pageBase)
	})
	if eraseErr != nil {
		status = StatusProcessingError
	} else if writeErr := nvm.WithUnlock(env.NVM, func() error {
		return env.NVM.WriteRow(pageBase, scratch)
	}); writeErr != nil {
		status = StatusProcessingError
	}

	return fail(f, status)
}

func handleEraseFlash(env *Env, f *frame.Frame) int {
	addr := f.Addr24()
	pageCount := f.DataLength()

	if f.UnlockKey() != env.UnlockKey {
		return fail(f, StatusProcessingError)
	}
	if addr%env.Map.PageSize != 0 {
		return fail(f, StatusAddressOutOfRange)
	}
	if addr < env.Map.NewResetVector {
		return fail(f, StatusAddressOutOfRange)
	}

	status := StatusSuccess
	for i := uint16(0); i < pageCount; i++ {
		err := nvm.WithUnlock(env.NVM, func() error {
			return env.NVM.ErasePage(addr)
		})
		if err != nil {
			status = StatusProcessingError
			break
		}
		addr += env.Map.PageSize
	}

	return fail(f, status)
}

func handleReadEEData(env *Env, f *frame.Frame) int {
	addr := f.Addr24()
	length := f.DataLength()

	if addr < env.Map.EEPROMStart || addr >= env.Map.EEPROMStart+env.Map.EEPROMSize {
		return fail(f, StatusAddressOutOfRange)
	}
	if int(length) > env.Map.FrameDataCap {
		return fail(f, StatusOverload)
	}

	out := f.Data(1 + int(length))
	out[0] = StatusSuccess
	for i := uint16(0); i < length; i++ {
		b, err := env.NVM.ReadEEPROM(addr + uint32(i))
		if err != nil {
			out[0] = StatusProcessingError
		}
		out[1+i] = b
	}
	return frame.HeaderBytes + 1 + int(length)
}

func handleWriteEEData(env *Env, f *frame.Frame) int {
	addr := f.Addr24()
	length := f.DataLength()

	if int(length) > env.Map.FrameDataCap {
		return fail(f, StatusOverload)
	}
	if addr < env.Map.EEPROMStart || addr >= env.Map.EEPROMStart+env.Map.EEPROMSize {
		return fail(f, StatusAddressOutOfRange)
	}

	payload := append([]byte(nil), f.Data(int(length))...)

	for i, b := range payload {
		err := nvm.WithUnlock(env.NVM, func() error {
			werr := env.NVM.WriteEEPROM(addr+uint32(i), b)
			for env.NVM.Busy() {
			}
			return werr
		})
		if err != nil {
			// Preserved asymmetry: an NVM failure here is reported as
			// address-out-of-range rather than processing-error.
			return fail(f, StatusAddressOutOfRange)
		}
	}

	return fail(f, StatusSuccess)
}

func handleReadConfig(env *Env, f *frame.Frame) int {
	addr := f.Addr24()
	length := f.DataLength()

	if addr < env.Map.NewResetVector {
		return fail(f, StatusAddressOutOfRange)
	}

	out := f.Data(1 + int(length))
	out[0] = StatusSuccess
	for i := uint16(0); i < length; i++ {
		b, err := env.NVM.ReadConfig(addr + uint32(i))
		if err != nil {
			out[0] = StatusProcessingError
		}
		out[1+i] = b
	}
	return frame.HeaderBytes + 1 + int(length)
}

func handleWriteConfig(env *Env, f *frame.Frame) int {
	addr := f.Addr24()
	length := f.DataLength()

	if addr < env.Map.NewResetVector {
		return fail(f, StatusAddressOutOfRange)
	}

	payload := append([]byte(nil), f.Data(int(length))...)

	status := byte(StatusSuccess)
	err := nvm.WithUnlock(env.NVM, func() error {
		for i, b := range payload {
			// The read-back result is discarded (spec.md §9): kept for
			// bit-exact parity with the reference handler, which reads
			// the existing byte before every write without using it.
			_, _ = env.NVM.ReadConfig(addr + uint32(i))
			if werr := env.NVM.WriteConfig(addr+uint32(i), b); werr != nil {
				return werr
			}
		}
		return nil
	})
	if err != nil {
		status = StatusProcessingError
	}

	return fail(f, status)
}

func handleCalcChecksum(env *Env, f *frame.Frame) int {
	addr := f.Addr24()
	length := f.ChecksumLength24(largeFlash(env.Map))

	if addr < env.Map.StartOfApp {
		return fail(f, StatusAddressOutOfRange)
	}

	sum := verify.Sum(env.NVM, addr, length)

	out := f.Data(2)
	out[0] = byte(sum)
	out[1] = byte(sum >> 8)
	return frame.HeaderBytes + 2
}

func handleResetDevice(env *Env, f *frame.Frame) int {
	*env.ResetPending = true
	return fail(f, StatusSuccess)
}
