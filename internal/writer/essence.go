package writer

import (
	"encoding/binary"
	"fmt"
	"io"
)

// klvKeyLen mirrors the 16-byte SMPTE UL key length; full OP-Atom
// conformance is out of scope (see DESIGN.md), but every essence unit is
// still wrapped in a self-describing key+BER-length+value packet so
// FrameInfo offsets always point at parseable boundaries, not raw
// codestream bytes.
const klvKeyLen = 16

var pictureEssenceKey = [klvKeyLen]byte{0x06, 0x0e, 0x2b, 0x34, 0x01, 0x02, 0x01, 0x01, 0x0d, 0x01, 0x03, 0x01, 0x15, 0x01, 0x05, 0x00}
var audioEssenceKey = [klvKeyLen]byte{0x06, 0x0e, 0x2b, 0x34, 0x01, 0x02, 0x01, 0x01, 0x0d, 0x01, 0x03, 0x01, 0x16, 0x01, 0x01, 0x00}

// writeKLVPacket writes key + BER long-form length + value and returns the
// offset of the value's first byte (what FrameInfo.Offset records) and the
// total bytes written.
func writeKLVPacket(w io.Writer, key [klvKeyLen]byte, value []byte, baseOffset uint64) (valueOffset uint64, total int64, err error) {
	n1, err := w.Write(key[:])
	if err != nil {
		return 0, 0, fmt.Errorf("write klv key: %w", err)
	}
	lenBuf := berLongForm(uint64(len(value)))
	n2, err := w.Write(lenBuf)
	if err != nil {
		return 0, 0, fmt.Errorf("write klv length: %w", err)
	}
	n3, err := w.Write(value)
	if err != nil {
		return 0, 0, fmt.Errorf("write klv value: %w", err)
	}
	valueOffset = baseOffset + uint64(n1+n2)
	total = int64(n1 + n2 + n3)
	return valueOffset, total, nil
}

// berLongForm renders a length as BER long-form: 0x88 followed by 8
// big-endian bytes, which keeps every packet's header size constant
// regardless of payload length.
func berLongForm(n uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = 0x88
	binary.BigEndian.PutUint64(buf[1:], n)
	return buf
}
