// Package engine implements an embedded, append-only key-value store
// patterned after a log-structured merge tree. Hot writes accumulate in an
// in-memory ordered memtable; once it grows past a byte-size threshold it is
// flushed to an immutable, key-sorted segment file. Lookups consult the
// memtable first, then the most recently registered segment whose key range
// covers the lookup key.
package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// defaultFlushThreshold is T from spec.md: the memtable is flushed once its
// size estimate would exceed this many bytes.
const defaultFlushThreshold = 80_000

// defaultMergeThreshold is how many registered segments accumulate before a
// compaction pass is triggered — the segment-count policy chosen to resolve
// spec.md's open question about compaction triggers.
const defaultMergeThreshold = 10

// Engine ties the Memtable, SegmentDirectory, FlushController, and Compactor
// together into the read/write surface spec.md calls "Lookup" plus the
// engine-level API from §6.
type Engine struct {
	dir    string
	prefix string
	log    zerolog.Logger

	mt        *Memtable
	sd        *SegmentDirectory
	fc        *FlushController
	compactor *Compactor

	flushThreshold int64
	mergeThreshold int
	mergeEnabled   bool

	seqCtr atomic.Uint64

	// writeMu serializes Insert and every compaction run (on-demand or
	// background), matching spec.md §5's single-writer-thread model: only one
	// mutation (insert-triggered flush, or a compaction) is ever in flight at
	// a time.
	writeMu  sync.Mutex
	mergeSem chan struct{}
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithDir overrides the directory segment files are written under. Defaults
// to the current working directory, per spec.md §6.
func WithDir(dir string) Option {
	return func(e *Engine) { e.dir = dir }
}

// WithFlushThreshold overrides T, the memtable flush threshold in bytes.
func WithFlushThreshold(n int64) Option {
	return func(e *Engine) { e.flushThreshold = n }
}

// WithMergeEnabled toggles automatic compaction triggering after a flush.
func WithMergeEnabled(b bool) Option {
	return func(e *Engine) { e.mergeEnabled = b }
}

// WithMergeThreshold sets how many registered segments trigger a compaction
// pass.
func WithMergeThreshold(n int) Option {
	return func(e *Engine) { e.mergeThreshold = n }
}

// WithLogger overrides the engine's zerolog logger. Defaults to a logger
// writing to os.Stderr.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Open constructs an Engine bound to prefix, rebuilding its SegmentDirectory
// by scanning the configured directory for files matching
// "<prefix>_<timestamp>[_<counter>].data" and recovering each one's key
// range (and Bloom filter) with a single scan. The Engine starts with an
// empty Memtable; there is no write-ahead log to replay.
func Open(prefix string, opts ...Option) (*Engine, error) {
	e := &Engine{
		dir:            ".",
		prefix:         prefix,
		log:            zerolog.New(os.Stderr).With().Timestamp().Str("component", "engine").Logger(),
		flushThreshold: defaultFlushThreshold,
		mergeThreshold: defaultMergeThreshold,
		mergeEnabled:   true,
		mergeSem:       make(chan struct{}, 1),
		mt:             NewMemtable(),
		sd:             NewSegmentDirectory(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir %q: %v", ErrIoError, e.dir, err)
	}

	e.fc = NewFlushController(e.dir, e.prefix, e.log)
	e.compactor = NewCompactor(e.fc, e.sd, e.flushThreshold, e.log)

	if err := e.rebuildDirectory(); err != nil {
		return nil, err
	}

	return e, nil
}

// rebuildDirectory scans e.dir for segment files matching e.prefix, loads
// each one's metadata, and registers it. Files that fail to parse (a
// partial write left by a crash mid-flush) are skipped and logged rather
// than surfaced as a fatal error — a partial file must never be observable
// as a registered segment.
func (e *Engine) rebuildDirectory() error {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return fmt.Errorf("%w: read dir %q: %v", ErrIoError, e.dir, err)
	}

	type found struct {
		path string
		info os.FileInfo
	}
	var candidates []found
	for _, ent := range entries {
		if ent.IsDir() || !matchesSegmentName(ent.Name(), e.prefix) {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, found{path: segmentPathIn(e.dir, ent.Name()), info: info})
	}

	// Segments are registered in file modification order so their
	// registration sequence numbers reflect write recency even across a
	// process restart — required for SegmentDirectory.Locate's recency rule
	// to keep working after a reopen.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].info.ModTime().Before(candidates[j].info.ModTime())
	})

	var seq uint64
	for _, c := range candidates {
		hint := uint(c.info.Size() / (recordOverhead + 8))
		seg, err := loadSegment(c.path, seq, hint)
		if err != nil {
			e.log.Warn().Str("path", c.path).Err(err).Msg("skipping unreadable/partial segment on open")
			continue
		}
		seq++
		e.sd.Register(seg)
	}
	e.seqCtr.Store(seq)

	if orphans, err := e.sd.OrphanPaths(e.dir, e.prefix); err == nil {
		for _, o := range orphans {
			e.log.Warn().Str("path", o).Msg("orphaned segment file not claimed by any registered segment")
		}
	}

	return nil
}

func (e *Engine) nextSeq() uint64 {
	return e.seqCtr.Add(1)
}

// Insert stores (key, value). If allowFlush is true and the memtable's
// projected size after this write would exceed the flush threshold, the
// current memtable is flushed to a new segment first, and the record begins
// a fresh memtable — spec.md §4.4. With allowFlush false the record is always
// added to the current memtable. The compactor does not go through Insert: it
// fills its merge memtable with Memtable.Insert, which never flushes.
func (e *Engine) Insert(key uint64, value []byte, allowFlush bool) (uint64, []byte, error) {
	if len(value) > maxValueLen {
		return 0, nil, fmt.Errorf("%w: value is %d bytes", ErrValueTooLarge, len(value))
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if allowFlush && !e.mt.IsEmpty() && e.mt.ProjectedSize(value) > e.flushThreshold {
		if _, err := e.fc.Flush(e.mt, e.sd, e.nextSeq()); err != nil {
			return 0, nil, fmt.Errorf("insert: flush before write: %w", err)
		}
		e.maybeTriggerCompaction()
	}

	k, v := e.mt.Insert(key, value)
	return k, v, nil
}

// Get implements the Lookup read path from spec.md §4.6: the memtable
// first, then the segment directory (lock released before any file I/O),
// then a single segment seek.
func (e *Engine) Get(key uint64) ([]byte, error) {
	if v, ok := e.mt.Get(key); ok {
		return v, nil
	}

	seg, ok := e.sd.Locate(key)
	if !ok {
		return nil, fmt.Errorf("%w: key %d", ErrKeyNotFound, key)
	}

	val, found, err := seg.Seek(key)
	if err != nil {
		return nil, fmt.Errorf("get key %d from %q: %w", key, seg.Path, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: key %d", ErrKeyNotFound, key)
	}
	return val, nil
}

// Close releases engine resources. Segment and memtable state need no
// closing step of their own: file descriptors are opened per read/write and
// released immediately (spec.md §5), and the memtable is pure in-memory
// state that a crash is allowed to lose.
func (e *Engine) Close() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.log.Info().Msg("engine closed")
	return nil
}

// Compact runs compaction over every currently registered segment, when
// there are at least two. At most one compaction runs at a time; a call
// that arrives while one is already running is a no-op rather than a queued
// retry, matching the teacher's non-blocking merge semaphore.
func (e *Engine) Compact(ctx context.Context) error {
	select {
	case e.mergeSem <- struct{}{}:
		defer func() { <-e.mergeSem }()
	default:
		return nil
	}
	return e.runCompaction(ctx)
}

func (e *Engine) maybeTriggerCompaction() {
	if !e.mergeEnabled {
		return
	}
	if len(e.sd.Snapshot()) < e.mergeThreshold {
		return
	}

	select {
	case e.mergeSem <- struct{}{}:
		go func() {
			defer func() { <-e.mergeSem }()
			if err := e.runCompaction(context.Background()); err != nil {
				e.log.Error().Err(err).Msg("background compaction failed")
			}
		}()
	default:
		// a compaction is already running
	}
}

func (e *Engine) runCompaction(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	inputs := e.sd.Snapshot()
	if len(inputs) < 2 {
		return nil
	}
	return e.compactor.Run(ctx, inputs, e.nextSeq)
}
