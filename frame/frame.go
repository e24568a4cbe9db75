// Package frame implements the binary request/response layout spec.md §3
// defines: a 9-byte header followed by up to FRAME_DATA_CAPACITY bytes of
// payload, all packed into one reusable buffer. Field accessors here are
// grounded the way the cyacd bootloader protocol package (other_examples)
// separates wire-layout constants from the code that interprets them.
package frame

// Header field offsets (spec.md §3).
const (
	OffsetCommand      = 0
	OffsetDataLengthLo = 1
	OffsetDataLengthHi = 2
	OffsetUnlockKeyLo  = 3
	OffsetUnlockKeyHi  = 4
	OffsetAddressLo    = 5
	OffsetAddressHi    = 6
	OffsetAddressUp    = 7
	OffsetAddressExt   = 8

	HeaderBytes = 9
)

// Frame is the single statically-sized buffer shared between a request and
// its response. Capacity is HeaderBytes + dataCap + 1, matching spec.md's
// "+1" pad for the Infineon-style framing headroom seen across the pack's
// bootloader protocols.
type Frame struct {
	buf     []byte
	dataCap int
}

// New allocates a Frame with the given payload capacity (FRAME_DATA_CAPACITY,
// normally the device's page size).
func New(dataCap int) *Frame {
	return &Frame{
		buf:     make([]byte, HeaderBytes+dataCap+1),
		dataCap: dataCap,
	}
}

// DataCap returns FRAME_DATA_CAPACITY for this frame.
func (f *Frame) DataCap() int { return f.dataCap }

// Raw exposes the backing buffer. Handlers use it directly — the frame is a
// "moved through read → parse → dispatch → emit" value per spec.md §9, not
// a copied one.
func (f *Frame) Raw() []byte { return f.buf }

// Command returns the opcode byte.
func (f *Frame) Command() byte { return f.buf[OffsetCommand] }

// SetCommand sets the opcode byte.
func (f *Frame) SetCommand(cmd byte) { f.buf[OffsetCommand] = cmd }

// DataLength returns the little-endian payload length field.
func (f *Frame) DataLength() uint16 {
	return uint16(f.buf[OffsetDataLengthLo]) | uint16(f.buf[OffsetDataLengthHi])<<8
}

// SetDataLength writes the little-endian payload length field.
func (f *Frame) SetDataLength(n uint16) {
	f.buf[OffsetDataLengthLo] = byte(n)
	f.buf[OffsetDataLengthHi] = byte(n >> 8)
}

// UnlockKey returns the 16-bit key formed from unlock_key_hi:unlock_key_lo.
func (f *Frame) UnlockKey() uint16 {
	return uint16(f.buf[OffsetUnlockKeyLo]) | uint16(f.buf[OffsetUnlockKeyHi])<<8
}

// Addr24 returns the 24-bit effective address packed from address_up,
// address_hi, address_lo (spec.md §3).
func (f *Frame) Addr24() uint32 {
	return uint32(f.buf[OffsetAddressUp])<<16 |
		uint32(f.buf[OffsetAddressHi])<<8 |
		uint32(f.buf[OffsetAddressLo])
}

// SetAddr24 packs a 24-bit address into address_up/address_hi/address_lo.
func (f *Frame) SetAddr24(addr uint32) {
	f.buf[OffsetAddressLo] = byte(addr)
	f.buf[OffsetAddressHi] = byte(addr >> 8)
	f.buf[OffsetAddressUp] = byte(addr >> 16)
}

// AddressExt returns the raw address_ext byte. On large-flash parts this
// doubles as bits 16..23 of a checksum length (spec.md §3, §4.4 CALC_CHECKSUM).
func (f *Frame) AddressExt() byte { return f.buf[OffsetAddressExt] }

// SetAddressExt sets the raw address_ext byte.
func (f *Frame) SetAddressExt(b byte) { f.buf[OffsetAddressExt] = b }

// Data returns the payload slice of length n starting at data[0], backed by
// the shared buffer.
func (f *Frame) Data(n int) []byte {
	return f.buf[HeaderBytes : HeaderBytes+n]
}

// CopyHeaderFrom overwrites this frame's header with src's — "the response
// reuses the request header verbatim unless a handler overwrites it"
// (spec.md §4.4).
func (f *Frame) CopyHeaderFrom(src *Frame) {
	copy(f.buf[:HeaderBytes], src.buf[:HeaderBytes])
}

// ChecksumLength24 reconstructs the 24-bit checksum length CALC_CHECKSUM
// uses on large-flash parts: data_length plus address_ext as bits 16..23,
// only when largeFlash is true (PROGMEM_SIZE > 0x10000 per spec.md §4.4).
func (f *Frame) ChecksumLength24(largeFlash bool) uint32 {
	length := uint32(f.DataLength())
	if largeFlash {
		length |= uint32(f.AddressExt()) << 16
	}
	return length
}
