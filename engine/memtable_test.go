package engine

import "testing"

func TestMemtableInsertAndGet(t *testing.T) {
	m := NewMemtable()
	m.Insert(1, []byte("a"))
	m.Insert(2, []byte("bb"))

	if v, ok := m.Get(1); !ok || string(v) != "a" {
		t.Errorf("Get(1) = %q, %v", v, ok)
	}
	if v, ok := m.Get(2); !ok || string(v) != "bb" {
		t.Errorf("Get(2) = %q, %v", v, ok)
	}
	if _, ok := m.Get(3); ok {
		t.Errorf("Get(3) should miss")
	}
}

func TestMemtableSizeAccounting(t *testing.T) {
	m := NewMemtable()
	m.Insert(1, []byte("abc"))
	m.Insert(2, []byte("de"))

	want := int64(recordOverhead+3) + int64(recordOverhead+2)
	if got := m.Size(); got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}

func TestMemtableUpdateInPlace(t *testing.T) {
	m := NewMemtable()
	m.Insert(5, []byte("old"))
	m.Insert(5, []byte("newvalue"))

	if v, ok := m.Get(5); !ok || string(v) != "newvalue" {
		t.Errorf("Get(5) = %q, %v", v, ok)
	}

	want := int64(recordOverhead + len("newvalue"))
	if got := m.Size(); got != want {
		t.Errorf("Size() = %d, want %d (single entry)", got, want)
	}
}

func TestMemtableSnapshotIsAscendingAndNonDestructive(t *testing.T) {
	m := NewMemtable()
	m.Insert(30, []byte("c"))
	m.Insert(10, []byte("a"))
	m.Insert(20, []byte("b"))

	snap := m.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len(snap) = %d, want 3", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1].Key >= snap[i].Key {
			t.Fatalf("snapshot not strictly ascending: %+v", snap)
		}
	}

	if m.IsEmpty() {
		t.Fatalf("Snapshot must not drain the memtable")
	}
}

func TestMemtableDrainSortedEmpties(t *testing.T) {
	m := NewMemtable()
	m.Insert(1, []byte("a"))
	m.Insert(2, []byte("b"))

	recs := m.DrainSorted()
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	if !m.IsEmpty() || m.Size() != 0 {
		t.Errorf("memtable should be empty after drain, got size=%d", m.Size())
	}
}

func TestMemtableProjectedSizeDoesNotMutate(t *testing.T) {
	m := NewMemtable()
	m.Insert(1, []byte("a"))

	before := m.Size()
	_ = m.ProjectedSize([]byte("would-be-big-value"))
	if m.Size() != before {
		t.Errorf("ProjectedSize must not mutate Size(), got %d want %d", m.Size(), before)
	}
}
