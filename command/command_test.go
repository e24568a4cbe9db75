package command

import (
	"testing"

	"boardworks/pic18boot/frame"
	"boardworks/pic18boot/nvm"
	"boardworks/pic18boot/nvm/simnvm"
)

func newEnv() (*Env, *simnvm.Provider) {
	m := nvm.DefaultMemoryMap
	p := simnvm.New(m)
	var resetPending bool
	return &Env{
		NVM:          p,
		Map:          m,
		UnlockKey:    0xAA55,
		ResetPending: &resetPending,
	}, p
}

func TestReadVersion(t *testing.T) {
	env, p := newEnv()
	copy(p.FlashBytes()[env.Map.UserIDStart:], []byte{0x11, 0x22, 0x33, 0x44})

	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(ReadVersion)

	n := Dispatch(env, f)
	if n != frame.HeaderBytes+16 {
		t.Fatalf("length = %d, want 25", n)
	}
	out := f.Data(16)
	wantPktSz := uint16(env.Map.ProgmemSize / env.Map.PageSize)
	if uint16(out[2])|uint16(out[3])<<8 != wantPktSz {
		t.Fatalf("max packet size wrong")
	}
	if out[10] != byte(env.Map.PageSize) || out[11] != byte(env.Map.PageSize>>8) {
		t.Fatalf("page size wrong")
	}
	if out[12] != 0x11 || out[13] != 0x22 || out[14] != 0x33 || out[15] != 0x44 {
		t.Fatalf("user ID bytes wrong: %v", out[12:16])
	}
}

func TestReadFlashRejectsBootBlock(t *testing.T) {
	env, _ := newEnv()
	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(ReadFlash)
	f.SetDataLength(16)
	f.SetAddr24(0x000000)

	n := Dispatch(env, f)
	if n != 10 {
		t.Fatalf("length = %d, want 10", n)
	}
	if f.Data(1)[0] != StatusAddressOutOfRange {
		t.Fatalf("status = %#x, want 0xFE", f.Data(1)[0])
	}
}

func TestReadFlashOverload(t *testing.T) {
	env, _ := newEnv()
	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(ReadFlash)
	f.SetDataLength(uint16(env.Map.FrameDataCap + 1))
	f.SetAddr24(env.Map.StartOfApp)

	n := Dispatch(env, f)
	if n != 10 || f.Data(1)[0] != StatusOverload {
		t.Fatalf("got n=%d status=%#x, want 10/0xFC", n, f.Data(1)[0])
	}
}

func TestEraseFlashSuccessAndReadsAllFF(t *testing.T) {
	env, p := newEnv()

	// Dirty the page first so the erase is observable.
	p.FlashBytes()[env.Map.StartOfApp] = 0x42

	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(EraseFlash)
	f.SetDataLength(1) // one page
	f.Raw()[frame.OffsetUnlockKeyLo] = 0x55
	f.Raw()[frame.OffsetUnlockKeyHi] = 0xAA
	f.SetAddr24(env.Map.StartOfApp)

	n := Dispatch(env, f)
	if n != 10 || f.Data(1)[0] != StatusSuccess {
		t.Fatalf("got n=%d status=%#x, want 10/0x01", n, f.Data(1)[0])
	}
	for i := uint32(0); i < env.Map.PageSize; i++ {
		if p.FlashBytes()[env.Map.StartOfApp+i] != 0xFF {
			t.Fatalf("byte %d not erased", i)
		}
	}
	if p.KeySet() {
		t.Fatal("unlock key left set after handler returned")
	}
}

func TestWriteFlashWrongKey(t *testing.T) {
	env, p := newEnv()
	before := append([]byte(nil), p.FlashBytes()[env.Map.StartOfApp:env.Map.StartOfApp+env.Map.PageSize]...)

	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(WriteFlash)
	f.SetDataLength(4)
	f.Raw()[frame.OffsetUnlockKeyLo] = 0x34
	f.Raw()[frame.OffsetUnlockKeyHi] = 0x12
	f.SetAddr24(env.Map.StartOfApp)
	copy(f.Data(4), []byte{0xDE, 0xAD, 0xBE, 0xEF})

	n := Dispatch(env, f)
	if n != 10 || f.Data(1)[0] != StatusProcessingError {
		t.Fatalf("got n=%d status=%#x, want 10/0xFD", n, f.Data(1)[0])
	}
	after := p.FlashBytes()[env.Map.StartOfApp : env.Map.StartOfApp+env.Map.PageSize]
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("flash modified at offset %d despite wrong key", i)
		}
	}
}

func TestWriteFlashPageAtomic(t *testing.T) {
	env, p := newEnv()
	pageStart := env.Map.StartOfApp
	for i := uint32(0); i < env.Map.PageSize; i++ {
		p.FlashBytes()[pageStart+i] = byte(i)
	}

	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(WriteFlash)
	f.SetDataLength(4)
	f.Raw()[frame.OffsetUnlockKeyLo] = 0x55
	f.Raw()[frame.OffsetUnlockKeyHi] = 0xAA
	f.SetAddr24(pageStart + 10)
	copy(f.Data(4), []byte{0xA, 0xB, 0xC, 0xD})

	n := Dispatch(env, f)
	if n != 10 || f.Data(1)[0] != StatusSuccess {
		t.Fatalf("write failed: n=%d status=%#x", n, f.Data(1)[0])
	}

	flash := p.FlashBytes()
	for i := uint32(0); i < 10; i++ {
		if flash[pageStart+i] != byte(i) {
			t.Fatalf("byte %d outside write window changed: got %#x", i, flash[pageStart+i])
		}
	}
	if flash[pageStart+10] != 0xA || flash[pageStart+13] != 0xD {
		t.Fatalf("written bytes wrong: %v", flash[pageStart+10:pageStart+14])
	}
	for i := uint32(14); i < env.Map.PageSize; i++ {
		if flash[pageStart+i] != byte(i) {
			t.Fatalf("byte %d outside write window changed: got %#x", i, flash[pageStart+i])
		}
	}
}

func TestChecksumKnownRange(t *testing.T) {
	env, p := newEnv()
	flash := p.FlashBytes()
	for i := env.Map.StartOfApp; i < env.Map.StartOfApp+env.Map.PageSize; i++ {
		flash[i] = 0xFF
	}
	copy(flash[env.Map.StartOfApp:], []byte{0x01, 0x02, 0x03, 0x04})

	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(CalcChecksum)
	f.SetDataLength(4)
	f.SetAddr24(env.Map.StartOfApp)

	n := Dispatch(env, f)
	if n != 11 {
		t.Fatalf("length = %d, want 11", n)
	}
	out := f.Data(2)
	if out[0] != 0x04 || out[1] != 0x06 {
		t.Fatalf("checksum = %02x%02x, want 0604", out[1], out[0])
	}
}

func TestResetDevice(t *testing.T) {
	env, _ := newEnv()
	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(ResetDevice)

	n := Dispatch(env, f)
	if n != 10 || f.Data(1)[0] != StatusSuccess {
		t.Fatalf("got n=%d status=%#x", n, f.Data(1)[0])
	}
	if !*env.ResetPending {
		t.Fatal("reset_pending not set")
	}
}

func TestUnknownOpcode(t *testing.T) {
	env, _ := newEnv()
	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(0x7F)

	n := Dispatch(env, f)
	if n != 10 || f.Data(1)[0] != StatusInvalidCommand {
		t.Fatalf("got n=%d status=%#x, want 10/0xFF", n, f.Data(1)[0])
	}
}

func TestWriteEEDataNVMErrorReturnsOutOfRange(t *testing.T) {
	env, p := newEnv()
	p.FailNextEEPROM = true

	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(WriteEEData)
	f.SetDataLength(2)
	f.SetAddr24(env.Map.EEPROMStart)
	copy(f.Data(2), []byte{0x01, 0x02})

	n := Dispatch(env, f)
	if n != 10 {
		t.Fatalf("length = %d, want 10", n)
	}
	if f.Data(1)[0] != StatusAddressOutOfRange {
		t.Fatalf("status = %#x, want 0xFE (preserved asymmetry)", f.Data(1)[0])
	}
}

func TestEraseFlashRequiresPageAlignment(t *testing.T) {
	env, _ := newEnv()
	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(EraseFlash)
	f.SetDataLength(1)
	f.Raw()[frame.OffsetUnlockKeyLo] = 0x55
	f.Raw()[frame.OffsetUnlockKeyHi] = 0xAA
	f.SetAddr24(env.Map.StartOfApp + 1)

	n := Dispatch(env, f)
	if n != 10 || f.Data(1)[0] != StatusAddressOutOfRange {
		t.Fatalf("got n=%d status=%#x, want 10/0xFE", n, f.Data(1)[0])
	}
}

func TestReadEEDataRangeCheckedBeforeOverload(t *testing.T) {
	// Both conditions hold at once: data_length exceeds FRAME_DATA_CAPACITY
	// and the address falls outside EEPROM. spec.md §8 requires out-of-range
	// (0xFE) to win, since opcode 0x04 checks range before overload.
	env, _ := newEnv()
	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(ReadEEData)
	f.SetDataLength(uint16(env.Map.FrameDataCap + 1))
	f.SetAddr24(env.Map.StartOfApp)

	n := Dispatch(env, f)
	if n != 10 || f.Data(1)[0] != StatusAddressOutOfRange {
		t.Fatalf("got n=%d status=%#x, want 10/0xFE", n, f.Data(1)[0])
	}
}

func TestReadEEDataOverloadWithinRange(t *testing.T) {
	env, _ := newEnv()
	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(ReadEEData)
	f.SetDataLength(uint16(env.Map.FrameDataCap + 1))
	f.SetAddr24(env.Map.EEPROMStart)

	n := Dispatch(env, f)
	if n != 10 || f.Data(1)[0] != StatusOverload {
		t.Fatalf("got n=%d status=%#x, want 10/0xFC", n, f.Data(1)[0])
	}
}

func TestWriteEEDataSpinsOnBusyPerByte(t *testing.T) {
	env, p := newEnv()
	p.BusyCycles = 3

	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(WriteEEData)
	f.SetDataLength(2)
	f.SetAddr24(env.Map.EEPROMStart)
	copy(f.Data(2), []byte{0xAA, 0xBB})

	n := Dispatch(env, f)
	if n != 10 || f.Data(1)[0] != StatusSuccess {
		t.Fatalf("got n=%d status=%#x, want 10/0x01", n, f.Data(1)[0])
	}
	if p.BusyCycles != 0 {
		t.Fatalf("BusyCycles = %d, want 0 after spin drained it", p.BusyCycles)
	}
	if p.KeySet() {
		t.Fatalf("unlock key still set after write completed")
	}
	got, _ := p.ReadEEPROM(env.Map.EEPROMStart)
	if got != 0xAA {
		t.Fatalf("eeprom[0] = %#x, want 0xAA", got)
	}
}

func TestReadVersionReportsDeviceID(t *testing.T) {
	env, p := newEnv()
	copy(p.FlashBytes()[env.Map.DeviceIDStart:], []byte{0x01, 0x20})

	f := frame.New(env.Map.FrameDataCap)
	f.SetCommand(ReadVersion)

	Dispatch(env, f)
	out := f.Data(16)
	if out[6] != 0x01 || out[7] != 0x20 {
		t.Fatalf("device ID = %#x %#x, want 0x01 0x20", out[6], out[7])
	}
}
