package storage

import (
	"fmt"
	"path/filepath"
	"testing"
)

func newTestHeapPool(t *testing.T, poolSize int) *BufferPoolManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heap.db")
	dm, err := OpenDiskManager(DiskManagerConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenDiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Shutdown() })
	return NewBufferPoolManager(dm, NewLRUReplacer(), BufferPoolConfig{PoolSize: poolSize})
}

func TestTableHeapInsertGetDelete(t *testing.T) {
	pool := newTestHeapPool(t, 8)
	heap := NewTableHeap(pool, nil)

	rid, ok := heap.InsertRecord([]byte("row-1"))
	if !ok {
		t.Fatalf("InsertRecord failed")
	}
	if !rid.IsValid() {
		t.Fatalf("InsertRecord returned an invalid RID")
	}

	got, ok := heap.GetRecord(rid)
	if !ok {
		t.Fatalf("GetRecord(%v) failed", rid)
	}
	if string(got) != "row-1" {
		t.Fatalf("GetRecord(%v) = %q, want %q", rid, got, "row-1")
	}

	if !heap.DeleteRecord(rid) {
		t.Fatalf("DeleteRecord(%v) failed", rid)
	}
	if _, ok := heap.GetRecord(rid); ok {
		t.Fatalf("GetRecord after delete succeeded; want failure")
	}
}

func TestTableHeapGetRecordInvalidRID(t *testing.T) {
	pool := newTestHeapPool(t, 4)
	heap := NewTableHeap(pool, nil)
	if _, ok := heap.GetRecord(InvalidRID); ok {
		t.Fatalf("GetRecord(InvalidRID) succeeded; want failure")
	}
}

func TestTableHeapEmptyIteratorYieldsNone(t *testing.T) {
	pool := newTestHeapPool(t, 4)
	heap := NewTableHeap(pool, nil)
	it := heap.Iterator()
	defer it.Close()
	if _, _, ok := it.Next(); ok {
		t.Fatalf("Next() on an empty heap's iterator: want false")
	}
}

func TestTableHeapGrowsAcrossPagesAndScansAll(t *testing.T) {
	pool := newTestHeapPool(t, 4)
	heap := NewTableHeap(pool, nil)

	// A record large enough that only a few fit per page, forcing the
	// heap to allocate multiple pages.
	const recordSize = 1024
	const numRecords = 12
	record := make([]byte, recordSize)

	inserted := map[RID]bool{}
	for i := 0; i < numRecords; i++ {
		copy(record, []byte(fmt.Sprintf("rec-%03d", i)))
		rid, ok := heap.InsertRecord(append([]byte{}, record...))
		if !ok {
			t.Fatalf("InsertRecord %d failed", i)
		}
		inserted[rid] = true
	}

	if len(heap.PageIDs()) < 2 {
		t.Fatalf("heap has %d pages, want at least 2 for %d records of size %d", len(heap.PageIDs()), numRecords, recordSize)
	}

	it := heap.Iterator()
	defer it.Close()
	seen := 0
	for {
		rid, data, ok := it.Next()
		if !ok {
			break
		}
		if !inserted[rid] {
			t.Fatalf("scan yielded unknown rid %v", rid)
		}
		if len(data) != recordSize {
			t.Fatalf("scanned record length = %d, want %d", len(data), recordSize)
		}
		seen++
	}
	if seen != numRecords {
		t.Fatalf("scan yielded %d records, want %d", seen, numRecords)
	}
}

func TestTableHeapIteratorPinsAtMostOnePage(t *testing.T) {
	// Pool size 2: one frame for the page the iterator is scanning,
	// one spare. If the iterator held more than one page pinned, a
	// heap spanning 3+ pages would exhaust the pool mid-scan.
	pool := newTestHeapPool(t, 2)
	heap := NewTableHeap(pool, nil)

	const recordSize = 1024
	for i := 0; i < 10; i++ {
		data := make([]byte, recordSize)
		copy(data, []byte(fmt.Sprintf("rec-%03d", i)))
		if _, ok := heap.InsertRecord(data); !ok {
			t.Fatalf("InsertRecord %d failed", i)
		}
	}
	if len(heap.PageIDs()) < 3 {
		t.Fatalf("expected at least 3 pages for this pool-size-2 test, got %d", len(heap.PageIDs()))
	}

	it := heap.Iterator()
	defer it.Close()
	count := 0
	for {
		_, _, ok := it.Next()
		if !ok {
			break
		}
		count++
	}
	if count != 10 {
		t.Fatalf("scan yielded %d records, want 10", count)
	}
}

func TestTableHeapIteratorSnapshotIsolation(t *testing.T) {
	pool := newTestHeapPool(t, 8)
	heap := NewTableHeap(pool, nil)

	if _, ok := heap.InsertRecord([]byte("before-1")); !ok {
		t.Fatalf("InsertRecord failed")
	}

	it := heap.Iterator()
	defer it.Close()

	// Grow the heap after the iterator snapshot was taken.
	const recordSize = 2048
	for i := 0; i < 4; i++ {
		data := make([]byte, recordSize)
		if _, ok := heap.InsertRecord(data); !ok {
			t.Fatalf("InsertRecord (post-snapshot) %d failed", i)
		}
	}

	count := 0
	for {
		_, _, ok := it.Next()
		if !ok {
			break
		}
		count++
	}
	if count != 1 {
		t.Fatalf("iterator observed %d records, want exactly 1 (the pre-snapshot record)", count)
	}
}
