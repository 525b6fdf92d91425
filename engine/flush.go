package engine

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/rs/zerolog"
)

// FlushController converts records into a new immutable segment file. The
// write path is shared by regular memtable flushes (Flush) and compaction
// (Seal, used per output batch) — the procedure in spec.md §4.5.
type FlushController struct {
	dir    string
	prefix string
	log    zerolog.Logger

	mu      sync.Mutex // guards lastTs/counter for path disambiguation
	lastTs  int64
	counter int
}

// NewFlushController returns a controller that writes segment files under
// dir using the given filename prefix.
func NewFlushController(dir, prefix string, log zerolog.Logger) *FlushController {
	return &FlushController{dir: dir, prefix: prefix, log: log}
}

// nextSegmentPath returns a fresh, collision-free path for a new segment
// file, disambiguating same-millisecond flushes with a trailing counter.
func (fc *FlushController) nextSegmentPath() string {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	ts := time.Now().UnixMilli()
	if ts == fc.lastTs {
		fc.counter++
	} else {
		fc.lastTs = ts
		fc.counter = 0
	}

	return segmentPathIn(fc.dir, segmentFileName(fc.prefix, ts, fc.counter))
}

// Seal writes recs (which must already be sorted ascending by key, with no
// duplicates) to a brand-new segment file, fsyncs it and the containing
// directory, and returns a Segment describing it. It does not touch any
// SegmentDirectory or Memtable — callers decide when the segment becomes
// visible (Flush registers it immediately; the compactor commits several
// sealed segments at once via SegmentDirectory.Replace). On any failure the
// partially written file is removed before the error is returned, so no
// partial segment is ever left for a directory to pick up.
func (fc *FlushController) Seal(recs []Record, seq uint64) (seg *Segment, rerr error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("seal: no records")
	}

	path := fc.nextSegmentPath()
	f, err := createSegmentFileDurable(path)
	if err != nil {
		return nil, err
	}

	defer func() {
		if rerr != nil {
			_ = f.Close()
			_ = os.Remove(path)
		}
	}()

	filter := bloom.NewWithEstimates(uint(len(recs)), bloomFalsePositiveRate)
	w := bufio.NewWriter(f)
	for _, rec := range recs {
		if _, err := w.Write(Encode(rec.Key, rec.Value)); err != nil {
			return nil, fmt.Errorf("%w: write record key=%d to %q: %v", ErrIoError, rec.Key, path, err)
		}
		filter.Add(encodeKey(rec.Key))
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("%w: flush writer for %q: %v", ErrIoError, path, err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("%w: fsync %q: %v", ErrIoError, path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: close %q: %v", ErrIoError, path, err)
	}
	if err := fsyncDir(fc.dir); err != nil {
		return nil, err
	}

	seg = &Segment{
		Path:   path,
		MinKey: recs[0].Key,
		MaxKey: recs[len(recs)-1].Key,
		Seq:    seq,
		filter: filter,
	}

	fc.log.Info().
		Str("path", path).
		Uint64("min_key", seg.MinKey).
		Uint64("max_key", seg.MaxKey).
		Int("records", len(recs)).
		Msg("sealed segment")

	return seg, nil
}

// Flush seals mt's contents into a new segment, registers it with dir under
// the given registration sequence number, and — only on success — empties
// mt. On failure dir and mt are left exactly as they were, per spec.md's "no
// partially written segment is ever registered."
func (fc *FlushController) Flush(mt *Memtable, dir *SegmentDirectory, seq uint64) (*Segment, error) {
	recs := mt.Snapshot()
	if len(recs) == 0 {
		return nil, fmt.Errorf("flush: memtable is empty")
	}

	seg, err := fc.Seal(recs, seq)
	if err != nil {
		return nil, err
	}

	dir.Register(seg)
	mt.Clear()

	fc.log.Info().Str("path", seg.Path).Msg("flushed memtable to segment")

	return seg, nil
}
