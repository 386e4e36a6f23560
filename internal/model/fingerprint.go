package model

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// fingerprintSalt distinguishes the second xxhash pass used to widen a
// single 64-bit sum into the 128-bit content hash the frame index needs.
const fingerprintSalt = 0xa5

// Fingerprint computes a 128-bit content fingerprint over a PixelPlanes'
// plane bytes, in plane order. It is used both to detect frames that can be
// fake-written from a prior run's FrameInfo cache and to fill
// EncodedFrame.Fingerprint / FrameInfo.Hash.
func Fingerprint(p PixelPlanes) [16]byte {
	var out [16]byte

	h1 := xxhash.New()
	h2 := xxhash.New()
	h2.Write([]byte{fingerprintSalt})

	for _, pl := range p.Planes {
		h1.Write(pl.Data)
		h2.Write(pl.Data)
	}

	putUint64(out[0:8], h1.Sum64())
	putUint64(out[8:16], h2.Sum64())
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v)
		v >>= 8
	}
}

// HashHex returns the 32-ASCII-byte hex encoding of a 128-bit hash, the
// on-disk representation used by FrameInfo records.
func HashHex(h [16]byte) [32]byte {
	var out [32]byte
	hex.Encode(out[:], h[:])
	return out
}

// HashFromHex parses the 32-ASCII-byte hex encoding back into a 128-bit
// hash.
func HashFromHex(b [32]byte) ([16]byte, error) {
	var out [16]byte
	_, err := hex.Decode(out[:], b[:])
	return out, err
}
