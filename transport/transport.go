// Package transport defines the byte-stream contract the bootloader core
// reads requests from and writes responses to. spec.md §1 treats the
// physical link driver as an external collaborator; this package is the
// seam, the same role the teacher repo's tcp.Conn plays behind
// console.go/ota_server.go's read/write helpers.
package transport

// StartOfText is the sentinel byte prefixed to every response frame on the
// wire (spec.md §4.6).
const StartOfText = 0x55

// Stream is the minimal byte-stream surface the bootloader driver needs.
// Init performs whatever handshake the concrete transport requires
// (autobaud on UART, listen on a network bridge) and blocks until it
// either locks on or exhausts its own retry budget. ReadExact and WriteAll
// block until they have moved exactly len(buf) bytes or return an error;
// partial frames are expected to block indefinitely per spec.md §4.5, so
// Stream implementations must not time out mid-frame on their own
// initiative. TxDone blocks until the last written byte has physically left
// the wire — required before the driver re-arms the next Init, per
// spec.md §4.6's "load-bearing" drain.
type Stream interface {
	Init() error
	ReadExact(buf []byte) error
	WriteAll(buf []byte) error
	TxDone()
}

// WriteResponse prefixes data with the start-of-text sentinel and writes it
// in one call, matching spec.md §4.6 exactly: "every response transmission
// is prefixed on the wire by 0x55, emitted unconditionally by the
// transport's write."
func WriteResponse(s Stream, data []byte) error {
	framed := make([]byte, 0, len(data)+1)
	framed = append(framed, StartOfText)
	framed = append(framed, data...)
	return s.WriteAll(framed)
}
