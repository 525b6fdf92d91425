package engine

import (
	"fmt"
	"os"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// SegmentDirectory is the engine's only mutable shared state: an in-memory
// index from each Segment's key range to its path, guarded by one mutex held
// only during map inspection and updates, never across file I/O.
type SegmentDirectory struct {
	mu       sync.Mutex
	segments []*Segment // unordered; Locate scans, which is fine at the segment counts this engine targets
}

// NewSegmentDirectory returns an empty directory.
func NewSegmentDirectory() *SegmentDirectory {
	return &SegmentDirectory{}
}

// Register adds seg to the directory. Callers must only call this after seg's
// file has been fully written and fsynced.
func (d *SegmentDirectory) Register(seg *Segment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.segments = append(d.segments, seg)
}

// Locate returns the segment whose key range covers k, preferring the most
// recently registered one when more than one range covers k. This is the
// corrected rule from the design notes: recency, not min-key proximity, is
// the tiebreak, so a key that was written, flushed, rewritten, and flushed
// again is always served from the newer segment rather than whichever one
// happens to have the numerically closer minimum key.
func (d *SegmentDirectory) Locate(k uint64) (*Segment, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var best *Segment
	for _, seg := range d.segments {
		if k < seg.MinKey || k > seg.MaxKey {
			continue
		}
		if best == nil || seg.Seq > best.Seq {
			best = seg
		}
	}

	if best == nil {
		return nil, false
	}
	// return a copy of the pointer, not the slice backing array, so a
	// concurrent Replace can't hand the caller a segment that's being torn
	// down mid-read; worst case on a genuine race is an IoError for this
	// one lookup.
	return best, true
}

// Replace atomically removes oldSegs and installs newSegs, for compaction.
// newSegs must already be fsynced and ready; Replace does not write files,
// only updates bookkeeping and deletes the retired ones.
func (d *SegmentDirectory) Replace(oldSegs, newSegs []*Segment) error {
	oldPaths := mapset.NewSet[string]()
	for _, s := range oldSegs {
		oldPaths.Add(s.Path)
	}

	d.mu.Lock()
	kept := d.segments[:0:0]
	for _, seg := range d.segments {
		if !oldPaths.Contains(seg.Path) {
			kept = append(kept, seg)
		}
	}
	d.segments = append(kept, newSegs...)
	d.mu.Unlock()

	var errs error
	for _, seg := range oldSegs {
		if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
			errs = joinErr(errs, fmt.Errorf("remove retired segment %q: %w", seg.Path, err))
		}
	}
	return errs
}

// Snapshot returns the segments currently registered, ordered by ascending
// Seq (oldest first). Used by the engine to pick compaction inputs and to
// count segments for the compaction trigger.
func (d *SegmentDirectory) Snapshot() []*Segment {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*Segment, len(d.segments))
	copy(out, d.segments)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Seq > out[j].Seq; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// OrphanPaths compares the set of segment files physically present in dir
// against the set this directory ended up claiming after a rebuild, and
// returns paths on disk that no parsed segment owns — files left behind by a
// crash mid-flush or mid-compaction. It never deletes them; it only reports,
// mirroring the teacher's checkOrphanedSegments warning.
func (d *SegmentDirectory) OrphanPaths(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir %q: %v", ErrIoError, dir, err)
	}

	claimed := mapset.NewSet[string]()
	d.mu.Lock()
	for _, seg := range d.segments {
		claimed.Add(seg.Path)
	}
	d.mu.Unlock()

	onDisk := mapset.NewSet[string]()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if matchesSegmentName(e.Name(), prefix) {
			onDisk.Add(segmentPathIn(dir, e.Name()))
		}
	}

	return onDisk.Difference(claimed).ToSlice(), nil
}
