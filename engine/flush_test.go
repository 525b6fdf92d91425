package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newTestFlushController(t *testing.T, prefix string) (*FlushController, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFlushController(dir, prefix, zerolog.Nop()), dir
}

func TestFlushMonotonicity(t *testing.T) {
	fc, _ := newTestFlushController(t, "seg")
	d := NewSegmentDirectory()

	mt := NewMemtable()
	mt.Insert(2, []byte("b"))
	mt.Insert(1, []byte("a"))

	seg, err := fc.Flush(mt, d, 1)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if !mt.IsEmpty() || mt.Size() != 0 {
		t.Fatalf("memtable not emptied after flush")
	}

	if _, ok := os.Stat(seg.Path); ok != nil {
		t.Fatalf("segment file missing: %v", ok)
	}

	sc, err := seg.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer sc.Close()

	var got []Record
	for {
		rec, err := sc.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if rec == nil {
			break
		}
		got = append(got, *rec)
	}

	if len(got) != 2 || got[0].Key != 1 || got[1].Key != 2 {
		t.Fatalf("decoded records not ascending: %+v", got)
	}
}

func TestFlushEmptyMemtableFails(t *testing.T) {
	fc, _ := newTestFlushController(t, "seg")
	d := NewSegmentDirectory()
	mt := NewMemtable()

	if _, err := fc.Flush(mt, d, 1); err == nil {
		t.Fatalf("expected error flushing an empty memtable")
	}
}

func TestFlushDisambiguatesPathCollisions(t *testing.T) {
	fc, dir := newTestFlushController(t, "seg")
	d := NewSegmentDirectory()

	mt1 := NewMemtable()
	mt1.Insert(1, []byte("a"))
	seg1, err := fc.Flush(mt1, d, 1)
	if err != nil {
		t.Fatalf("flush 1: %v", err)
	}

	mt2 := NewMemtable()
	mt2.Insert(2, []byte("b"))
	seg2, err := fc.Flush(mt2, d, 2)
	if err != nil {
		t.Fatalf("flush 2: %v", err)
	}

	if seg1.Path == seg2.Path {
		t.Fatalf("expected distinct paths, got the same: %s", seg1.Path)
	}
	if filepath.Dir(seg1.Path) != dir {
		t.Errorf("segment not written under expected dir")
	}
}
