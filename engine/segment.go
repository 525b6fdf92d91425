package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
)

// bloomFalsePositiveRate bounds how often Seek opens a file for a key that
// turns out to be absent. It is a fixed tuning constant rather than a
// caller-facing knob because the filter is a performance detail, not part of
// the engine's observable contract.
const bloomFalsePositiveRate = 0.01

// Segment is an immutable on-disk file holding a contiguous, strictly
// ascending, duplicate-free run of framed records. Once written and
// fsynced, its bytes never change; it is only superseded by compaction.
//
// MinKey/MaxKey/Seq are recovered in memory (at flush time, or by scanning
// on Open) and are never persisted — there is no segment header.
type Segment struct {
	Path   string
	MinKey uint64
	MaxKey uint64
	// Seq is the registration sequence number, handed out by the engine's
	// counter when the segment is sealed or reloaded on Open.
	// Among segments whose key range covers a lookup key, the one with the
	// greatest Seq is the most recently written and wins (see
	// SegmentDirectory.Locate).
	Seq uint64

	filter *bloom.BloomFilter
}

// openSegmentFile opens path for reading. Descriptors are never held longer
// than a single Scan/Seek call, per the engine's short-lived-fd discipline.
func openSegmentFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open segment %q: %v", ErrIoError, path, err)
	}
	return f, nil
}

// Scanner is a lazy, forward-only iterator over a segment's records. Modeled
// on the teacher's bufio-backed record scanner: the reader is buffered but
// the underlying file handle is opened fresh for each scan and released on
// Close.
type Scanner struct {
	file *os.File
	r    *bufio.Reader
	err  error
}

// Scan opens the segment and returns a Scanner positioned at its first
// record.
func (s *Segment) Scan() (*Scanner, error) {
	f, err := openSegmentFile(s.Path)
	if err != nil {
		return nil, err
	}
	return &Scanner{file: f, r: bufio.NewReader(f)}, nil
}

// Next returns the next record, or (nil, nil) once the segment is exhausted.
// A non-nil error means the segment is corrupt; the caller must stop
// iterating (the engine never masks corruption by skipping ahead).
func (sc *Scanner) Next() (*Record, error) {
	if sc.err != nil {
		return nil, sc.err
	}
	rec, err := DecodeOne(sc.r)
	if err != nil {
		sc.err = err
		return nil, err
	}
	return rec, nil
}

// Close releases the scanner's file handle.
func (sc *Scanner) Close() error {
	return sc.file.Close()
}

// Seek locates the record with key exactly equal to k. The baseline
// implementation is a sequential scan that terminates early once a key
// greater than k is seen, because segments are sorted. A Bloom filter
// negative short-circuits the scan entirely without opening the file.
func (s *Segment) Seek(k uint64) ([]byte, bool, error) {
	if s.filter != nil && !s.filter.Test(encodeKey(k)) {
		return nil, false, nil
	}

	sc, err := s.Scan()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorruptOrUnreadable, err)
	}
	defer sc.Close()

	for {
		rec, err := sc.Next()
		if err != nil {
			if errors.Is(err, ErrCorruptSegment) {
				return nil, false, err
			}
			return nil, false, fmt.Errorf("%w: %v", ErrCorruptOrUnreadable, err)
		}
		if rec == nil {
			return nil, false, nil
		}
		if rec.Key == k {
			return rec.Value, true, nil
		}
		if rec.Key > k {
			// sorted ascending: k cannot appear further on
			return nil, false, nil
		}
	}
}

// loadSegment reconstructs a Segment's in-memory metadata (min/max key, a
// fresh Bloom filter) by scanning it once. Used when rebuilding the
// SegmentDirectory in Open. recordCountHint seeds the Bloom filter's sizing;
// Open passes the file size divided by recordOverhead+8 (a record with an
// 8-byte value) as an estimate, since the exact record count isn't known yet.
func loadSegment(path string, seq uint64, recordCountHint uint) (*Segment, error) {
	f, err := openSegmentFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seg := &Segment{Path: path, Seq: seq}
	if recordCountHint == 0 {
		recordCountHint = 1
	}
	filter := bloom.NewWithEstimates(recordCountHint, bloomFalsePositiveRate)

	r := bufio.NewReader(f)
	first := true
	var count uint
	for {
		rec, err := DecodeOne(r)
		if err != nil {
			return nil, fmt.Errorf("load segment %q: %w", path, err)
		}
		if rec == nil {
			break
		}
		if first {
			seg.MinKey = rec.Key
			first = false
		}
		seg.MaxKey = rec.Key
		filter.Add(encodeKey(rec.Key))
		count++
	}

	if first {
		return nil, fmt.Errorf("%w: segment %q has no records", ErrCorruptSegment, path)
	}

	// A hint that was far too small produces a high real false-positive
	// rate; rebuild once with the true count if it diverged a lot.
	if count > recordCountHint*2 {
		filter = bloom.NewWithEstimates(count, bloomFalsePositiveRate)
		f2, err := openSegmentFile(path)
		if err != nil {
			return nil, err
		}
		defer f2.Close()
		r2 := bufio.NewReader(f2)
		for {
			rec, err := DecodeOne(r2)
			if err != nil || rec == nil {
				break
			}
			filter.Add(encodeKey(rec.Key))
		}
	}

	seg.filter = filter
	return seg, nil
}

var _ io.Closer = (*Scanner)(nil)
