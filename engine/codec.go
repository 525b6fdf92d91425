package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// keyLen and lenLen are the fixed widths of a frame's header fields.
const (
	keyLen = 8 // big-endian u64
	lenLen = 4 // big-endian u32
	hdrLen = keyLen + lenLen
)

// maxValueLen is the largest value a 4-byte big-endian length prefix can describe.
const maxValueLen = math.MaxUint32

// Record is the smallest unit written to or read from a segment.
type Record struct {
	Key   uint64
	Value []byte
}

// Encode frames (key, value) per the on-disk layout:
//
//	key(8B BE) | value_len(4B BE) | value(value_len bytes)
//
// Encode is total: it never fails. Callers reject oversized values before
// calling it (see Engine.Insert).
func Encode(key uint64, value []byte) []byte {
	buf := make([]byte, hdrLen+len(value))
	binary.BigEndian.PutUint64(buf[0:keyLen], key)
	binary.BigEndian.PutUint32(buf[keyLen:hdrLen], uint32(len(value)))
	copy(buf[hdrLen:], value)
	return buf
}

// DecodeOne reads one framed record from r. It returns (nil, nil) at a clean
// end of segment, i.e. EOF occurs exactly at a record boundary with zero key
// bytes consumed. Any EOF once the header has started, or a value_len that
// claims more bytes than the reader can supply, is reported as
// ErrCorruptSegment wrapped with context.
func DecodeOne(r io.Reader) (*Record, error) {
	var hdr [hdrLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			// clean boundary: no partial record started
			return nil, nil
		}
		return nil, fmt.Errorf("%w: truncated frame header: %v", ErrCorruptSegment, err)
	}

	key := binary.BigEndian.Uint64(hdr[0:keyLen])
	valLen := binary.BigEndian.Uint32(hdr[keyLen:hdrLen])

	value := make([]byte, valLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, fmt.Errorf("%w: key %d declares value_len=%d but body is truncated: %v",
			ErrCorruptSegment, key, valLen, err)
	}

	return &Record{Key: key, Value: value}, nil
}

// encodeKey renders a key as the same 8-byte big-endian form used in frames,
// for callers (the Bloom filters in flush and segment) that need a byte-stable key
// representation without pulling in a full Record.
func encodeKey(key uint64) []byte {
	var b [keyLen]byte
	binary.BigEndian.PutUint64(b[:], key)
	return b[:]
}
