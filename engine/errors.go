package engine

import "errors"

var (
	// ErrKeyNotFound is returned by Get when no live segment or the memtable
	// holds the requested key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrIoError wraps an underlying filesystem failure (open/read/write/sync).
	ErrIoError = errors.New("io error")

	// ErrCorruptSegment signals a framing inconsistency: a value_len claiming
	// more bytes than remain in the file, or a record that started but never
	// finished mid-segment.
	ErrCorruptSegment = errors.New("corrupt segment")

	// ErrCorruptOrUnreadable is surfaced to Lookup callers when a segment
	// file could not be opened; it never gets silently treated as a miss.
	// Decode failures surface as ErrCorruptSegment instead.
	ErrCorruptOrUnreadable = errors.New("corrupt or unreadable segment")

	// ErrValueTooLarge is returned by Insert when a value exceeds the 4-byte
	// length-prefix's range (2^32-1 bytes).
	ErrValueTooLarge = errors.New("value too large")
)
