// Package client is the host side of the wire protocol: one generic framed
// transfer call plus typed wrapper methods per opcode, the same split
// FoenixMgrGo's protocol.DebugPort draws between its private transfer()
// and its ReadBlock/WriteBlock/EraseFlash/ProgramFlash methods.
package client

import (
	"fmt"

	"boardworks/pic18boot/command"
	"boardworks/pic18boot/frame"
	"boardworks/pic18boot/nvm"
	"boardworks/pic18boot/transport"
)

// Client drives one bootloader session over a transport.Stream.
type Client struct {
	stream    transport.Stream
	unlockKey uint16
	dataCap   int
}

// New wraps stream with the given unlock key and frame payload capacity.
func New(stream transport.Stream, unlockKey uint16, dataCap int) *Client {
	return &Client{stream: stream, unlockKey: unlockKey, dataCap: dataCap}
}

// transfer sends one request frame and reads back the matching response,
// stripping the 0x55 sentinel. dataLength is the header field value (a byte
// count for most opcodes, a page count for ERASE_FLASH, a 24-bit checksum
// length split across dataLength/addressExt for CALC_CHECKSUM); payload is
// the actual bytes transmitted after the header, which is empty for every
// opcode except the three write-class ones. respLen is the exact response
// length the caller expects for this opcode (the wire never re-announces
// it).
func (c *Client) transfer(opcode byte, addr uint32, unlockKey uint16, dataLength uint16, addressExt byte, payload []byte, respLen int) ([]byte, error) {
	if err := c.stream.Init(); err != nil {
		return nil, fmt.Errorf("client: transport init: %w", err)
	}

	req := frame.New(c.dataCap)
	req.SetCommand(opcode)
	req.SetDataLength(dataLength)
	req.Raw()[frame.OffsetUnlockKeyLo] = byte(unlockKey)
	req.Raw()[frame.OffsetUnlockKeyHi] = byte(unlockKey >> 8)
	req.SetAddr24(addr)
	req.SetAddressExt(addressExt)
	copy(req.Data(len(payload)), payload)

	reqLen := frame.HeaderBytes + len(payload)
	if err := c.stream.WriteAll(req.Raw()[:reqLen]); err != nil {
		return nil, fmt.Errorf("client: write request: %w", err)
	}
	c.stream.TxDone()

	sentinel := make([]byte, 1)
	if err := c.stream.ReadExact(sentinel); err != nil {
		return nil, fmt.Errorf("client: read sentinel: %w", err)
	}
	if sentinel[0] != transport.StartOfText {
		return nil, fmt.Errorf("client: bad sentinel %#x, want %#x", sentinel[0], transport.StartOfText)
	}

	resp := make([]byte, respLen)
	if err := c.stream.ReadExact(resp); err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	return resp, nil
}

func statusError(status byte) error {
	switch status {
	case command.StatusSuccess:
		return nil
	case command.StatusOverload:
		return fmt.Errorf("client: command overload (payload too large)")
	case command.StatusProcessingError:
		return fmt.Errorf("client: processing error (wrong unlock key or NVM failure)")
	case command.StatusAddressOutOfRange:
		return fmt.Errorf("client: address out of range")
	case command.StatusInvalidCommand:
		return fmt.Errorf("client: invalid command")
	default:
		return fmt.Errorf("client: unknown status %#x", status)
	}
}

// Version holds the fields READ_VERSION returns (spec.md §4.4).
type Version struct {
	Minor, Major  byte
	MaxPacketSize uint16
	DeviceID      uint16
	PageSize      uint16
	UserID        [4]byte
}

// ReadVersion queries firmware/device identification.
func (c *Client) ReadVersion() (Version, error) {
	resp, err := c.transfer(command.ReadVersion, 0, 0, 0, 0, nil, frame.HeaderBytes+16)
	if err != nil {
		return Version{}, err
	}
	d := resp[frame.HeaderBytes:]
	v := Version{
		Minor:         d[0],
		Major:         d[1],
		MaxPacketSize: uint16(d[2]) | uint16(d[3])<<8,
		DeviceID:      uint16(d[6]) | uint16(d[7])<<8,
		PageSize:      uint16(d[10]) | uint16(d[11])<<8,
	}
	copy(v.UserID[:], d[12:16])
	return v, nil
}

// ReadFlash reads n bytes starting at addr.
func (c *Client) ReadFlash(addr uint32, n int) ([]byte, error) {
	resp, err := c.transfer(command.ReadFlash, addr, 0, uint16(n), 0, nil, frame.HeaderBytes+1+n)
	if err != nil {
		return nil, err
	}
	status := resp[frame.HeaderBytes]
	if status != command.StatusSuccess {
		return nil, statusError(status)
	}
	return resp[frame.HeaderBytes+1:], nil
}

// WriteFlash writes data at addr under the configured unlock key.
func (c *Client) WriteFlash(addr uint32, data []byte) error {
	resp, err := c.transfer(command.WriteFlash, addr, c.unlockKey, uint16(len(data)), 0, data, frame.HeaderBytes+1)
	if err != nil {
		return err
	}
	return statusError(resp[frame.HeaderBytes])
}

// EraseFlash erases pageCount pages starting at addr. Unlike every other
// opcode, data_length here counts pages, not bytes (spec.md §9).
func (c *Client) EraseFlash(addr uint32, pageCount uint16) error {
	resp, err := c.transfer(command.EraseFlash, addr, c.unlockKey, pageCount, 0, nil, frame.HeaderBytes+1)
	if err != nil {
		return err
	}
	return statusError(resp[frame.HeaderBytes])
}

// ReadEEPROM reads n bytes of EEPROM starting at addr.
func (c *Client) ReadEEPROM(addr uint32, n int) ([]byte, error) {
	resp, err := c.transfer(command.ReadEEData, addr, 0, uint16(n), 0, nil, frame.HeaderBytes+1+n)
	if err != nil {
		return nil, err
	}
	status := resp[frame.HeaderBytes]
	if status != command.StatusSuccess {
		return nil, statusError(status)
	}
	return resp[frame.HeaderBytes+1:], nil
}

// WriteEEPROM writes data to EEPROM starting at addr.
func (c *Client) WriteEEPROM(addr uint32, data []byte) error {
	resp, err := c.transfer(command.WriteEEData, addr, 0, uint16(len(data)), 0, data, frame.HeaderBytes+1)
	if err != nil {
		return err
	}
	return statusError(resp[frame.HeaderBytes])
}

// ReadConfig reads n config bytes starting at addr.
func (c *Client) ReadConfig(addr uint32, n int) ([]byte, error) {
	resp, err := c.transfer(command.ReadConfig, addr, 0, uint16(n), 0, nil, frame.HeaderBytes+1+n)
	if err != nil {
		return nil, err
	}
	status := resp[frame.HeaderBytes]
	if status != command.StatusSuccess {
		return nil, statusError(status)
	}
	return resp[frame.HeaderBytes+1:], nil
}

// WriteConfig writes config bytes starting at addr.
func (c *Client) WriteConfig(addr uint32, data []byte) error {
	resp, err := c.transfer(command.WriteConfig, addr, c.unlockKey, uint16(len(data)), 0, data, frame.HeaderBytes+1)
	if err != nil {
		return err
	}
	return statusError(resp[frame.HeaderBytes])
}

// Checksum computes the 16-bit running sum over length bytes starting at
// addr (spec.md §4.4 CALC_CHECKSUM). largeFlash must match the device's
// PROGMEM_SIZE > 0x10000 condition so the length's high byte is carried in
// address_ext the way the device expects.
func (c *Client) Checksum(addr, length uint32, largeFlash bool) (uint16, error) {
	var ext byte
	if largeFlash {
		ext = byte(length >> 16)
	}
	resp, err := c.transfer(command.CalcChecksum, addr, 0, uint16(length), ext, nil, frame.HeaderBytes+2)
	if err != nil {
		return 0, err
	}
	d := resp[frame.HeaderBytes:]
	return uint16(d[0]) | uint16(d[1])<<8, nil
}

// Reset requests a device reset; the session ends after this call.
func (c *Client) Reset() error {
	resp, err := c.transfer(command.ResetDevice, 0, 0, 0, 0, nil, frame.HeaderBytes+1)
	if err != nil {
		return err
	}
	return statusError(resp[frame.HeaderBytes])
}

// MemoryMap re-exports nvm.MemoryMap so callers needn't import nvm directly
// just to construct a Client around spec-accurate constants.
type MemoryMap = nvm.MemoryMap
