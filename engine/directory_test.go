package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func fakeSegment(t *testing.T, dir string, name string, minKey, maxKey, seq uint64) *Segment {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return &Segment{Path: path, MinKey: minKey, MaxKey: maxKey, Seq: seq}
}

func TestDirectoryLocateDisjointRanges(t *testing.T) {
	dir := t.TempDir()
	sd := NewSegmentDirectory()
	a := fakeSegment(t, dir, "a", 1, 50, 1)
	b := fakeSegment(t, dir, "b", 51, 100, 2)
	sd.Register(a)
	sd.Register(b)

	if seg, ok := sd.Locate(25); !ok || seg != a {
		t.Errorf("Locate(25) should resolve to segment a")
	}
	if seg, ok := sd.Locate(75); !ok || seg != b {
		t.Errorf("Locate(75) should resolve to segment b")
	}
	if _, ok := sd.Locate(200); ok {
		t.Errorf("Locate(200) should miss")
	}
}

func TestDirectoryLocatePrefersRecencyOverOverlap(t *testing.T) {
	dir := t.TempDir()
	sd := NewSegmentDirectory()
	// Overlapping ranges: older segment has a numerically smaller min-key,
	// but the newer one (higher Seq) must win for a key both cover.
	older := fakeSegment(t, dir, "older", 1, 100, 1)
	newer := fakeSegment(t, dir, "newer", 50, 150, 2)
	sd.Register(older)
	sd.Register(newer)

	seg, ok := sd.Locate(75)
	if !ok || seg != newer {
		t.Errorf("Locate(75) should prefer the more recently registered segment")
	}
}

func TestDirectoryReplaceSwapsAndDeletes(t *testing.T) {
	dir := t.TempDir()
	sd := NewSegmentDirectory()
	a := fakeSegment(t, dir, "a", 1, 10, 1)
	b := fakeSegment(t, dir, "b", 11, 20, 2)
	sd.Register(a)
	sd.Register(b)

	merged := fakeSegment(t, dir, "merged", 1, 20, 3)
	if err := sd.Replace([]*Segment{a, b}, []*Segment{merged}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	segs := sd.Snapshot()
	if len(segs) != 1 || segs[0] != merged {
		t.Fatalf("expected only the merged segment to remain, got %+v", segs)
	}

	for _, p := range []string{a.Path, b.Path} {
		if _, err := os.Stat(p); err == nil {
			t.Errorf("expected %q to be deleted after Replace", p)
		}
	}
}

func TestDirectoryOrphanPaths(t *testing.T) {
	dir := t.TempDir()
	sd := NewSegmentDirectory()
	claimed := fakeSegment(t, dir, "prefix_1.data", 1, 10, 1)
	sd.Register(claimed)

	// an unclaimed file matching the naming pattern
	orphanPath := filepath.Join(dir, "prefix_2.data")
	if err := os.WriteFile(orphanPath, []byte("y"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	orphans, err := sd.OrphanPaths(dir, "prefix")
	if err != nil {
		t.Fatalf("OrphanPaths: %v", err)
	}
	if len(orphans) != 1 || orphans[0] != orphanPath {
		t.Fatalf("orphans = %v, want [%s]", orphans, orphanPath)
	}
}
