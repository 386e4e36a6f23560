// Package framecache implements the Frame Cache (§4.8): an append-only file
// of fixed-size FrameInfo records supporting O(1) lookup by (index, eye),
// adapted from the resume/done-file idempotence idiom in internal/chunk.
package framecache

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/five82/dcpflow/internal/model"
)

// recordSize is the FrameInfoRecordSize alias kept local for readability.
const recordSize = model.FrameInfoRecordSize

// Cache wraps a FrameInfo file and answers lookups by fixed record
// position: 48×index for MONO, 96×index + (RIGHT?48:0) for 3D (§6).
type Cache struct {
	f    *os.File
	size int64
}

// Open opens (creating if absent) the FrameInfo file at path for appending
// new records while still allowing random-access reads for lookups.
func Open(path string) (*Cache, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("framecache: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("framecache: stat %s: %w", path, err)
	}
	return &Cache{f: f, size: info.Size()}, nil
}

// Close releases the underlying file handle.
func (c *Cache) Close() error {
	return c.f.Close()
}

func recordPosition(index int, eye model.Eye) int64 {
	if eye == model.MONO {
		return int64(index) * recordSize
	}
	pos := int64(index) * 2 * recordSize
	if eye == model.RIGHT {
		pos += recordSize
	}
	return pos
}

// Lookup returns the FrameInfo at (index, eye) if the record's position
// lies within the file and decodes cleanly.
func (c *Cache) Lookup(index int, eye model.Eye) (*model.FrameInfo, bool) {
	pos := recordPosition(index, eye)
	if pos+recordSize > c.size {
		return nil, false
	}
	buf := make([]byte, recordSize)
	if _, err := c.f.ReadAt(buf, pos); err != nil {
		return nil, false
	}
	info := model.FrameInfo{
		Offset: binary.LittleEndian.Uint64(buf[0:8]),
		Size:   binary.LittleEndian.Uint64(buf[8:16]),
	}
	var hexHash [32]byte
	copy(hexHash[:], buf[16:48])
	hash, err := model.HashFromHex(hexHash)
	if err != nil {
		return nil, false
	}
	info.Hash = hash
	return &info, true
}

// Append writes one FrameInfo record for (index, eye) at its fixed
// position, extending the file with zeroed padding if index/eye combinations
// were skipped (should not happen in normal operation, but keeps lookup
// arithmetic valid even if it does).
func (c *Cache) Append(index int, eye model.Eye, info model.FrameInfo) error {
	pos := recordPosition(index, eye)
	buf := make([]byte, recordSize)
	binary.LittleEndian.PutUint64(buf[0:8], info.Offset)
	binary.LittleEndian.PutUint64(buf[8:16], info.Size)
	hexHash := model.HashHex(info.Hash)
	copy(buf[16:48], hexHash[:])

	if _, err := c.f.WriteAt(buf, pos); err != nil {
		return fmt.Errorf("framecache: write record at %d: %w", pos, err)
	}
	if pos+recordSize > c.size {
		c.size = pos + recordSize
	}
	return nil
}

// FirstMissing returns the smallest frame index in [0, limit) for which no
// MONO (or, for 3D, no LEFT) record exists — the consistency boundary of
// the cached prefix. The coordinator does not call it: it looks up each
// (index, eye) record individually, so a cached frame beyond this boundary
// can still be fake-written.
func (c *Cache) FirstMissing(stereo bool, limit int) int {
	eye := model.MONO
	if stereo {
		eye = model.LEFT
	}
	for i := 0; i < limit; i++ {
		if _, ok := c.Lookup(i, eye); !ok {
			return i
		}
	}
	return limit
}
