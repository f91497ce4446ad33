package storage

import (
	"path/filepath"
	"testing"
)

func openTestDisk(t *testing.T) *DiskManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := OpenDiskManager(DiskManagerConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenDiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Shutdown() })
	return dm
}

func TestDiskManagerReadUncommittedExtentZeroFills(t *testing.T) {
	dm := openTestDisk(t)
	id := dm.AllocatePage()

	buf := make([]byte, PageSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	if err := dm.ReadPage(id, buf); err != nil {
		t.Fatalf("ReadPage on uncommitted extent: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("buf[%d] = %d, want 0 (zero-filled)", i, b)
		}
	}
}

func TestDiskManagerWriteThenReadRoundTrip(t *testing.T) {
	dm := openTestDisk(t)
	id := dm.AllocatePage()

	want := make([]byte, PageSize)
	for i := range want {
		want[i] = byte(i % 251)
	}
	if err := dm.WritePage(id, want); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got := make([]byte, PageSize)
	if err := dm.ReadPage(id, got); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDiskManagerAllocatePageDoesNotGrowFile(t *testing.T) {
	dm := openTestDisk(t)
	before := dm.NumPages()
	dm.AllocatePage()
	if dm.NumPages() != before {
		t.Fatalf("AllocatePage grew numPages from %d to %d; should only grow on write", before, dm.NumPages())
	}
}

func TestDiskManagerWriteGrowsNumPages(t *testing.T) {
	dm := openTestDisk(t)
	id := dm.AllocatePage()
	before := dm.NumPages()
	if err := dm.WritePage(id, make([]byte, PageSize)); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if dm.NumPages() <= before {
		t.Fatalf("NumPages did not grow after writing a new page: before=%d after=%d", before, dm.NumPages())
	}
}

func TestDiskManagerInvalidPageID(t *testing.T) {
	dm := openTestDisk(t)
	buf := make([]byte, PageSize)
	if err := dm.ReadPage(-2, buf); err == nil {
		t.Fatalf("ReadPage(-2, ...): want error, got nil")
	}
	if err := dm.WritePage(-2, buf); err == nil {
		t.Fatalf("WritePage(-2, ...): want error, got nil")
	}
}

func TestDiskManagerBadBufferSize(t *testing.T) {
	dm := openTestDisk(t)
	id := dm.AllocatePage()
	if err := dm.ReadPage(id, make([]byte, PageSize-1)); err == nil {
		t.Fatalf("ReadPage with undersized buffer: want error, got nil")
	}
	if err := dm.WritePage(id, make([]byte, PageSize+1)); err == nil {
		t.Fatalf("WritePage with oversized buffer: want error, got nil")
	}
}

func TestDiskManagerShutdownIdempotent(t *testing.T) {
	dm := openTestDisk(t)
	if err := dm.Shutdown(); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := dm.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestDiskManagerDurabilityAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "durable.db")

	dm1, err := OpenDiskManager(DiskManagerConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenDiskManager: %v", err)
	}
	id := dm1.AllocatePage()
	payload := make([]byte, PageSize)
	copy(payload, []byte("durable-payload"))
	if err := dm1.WritePage(id, payload); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if err := dm1.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	dm2, err := OpenDiskManager(DiskManagerConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen OpenDiskManager: %v", err)
	}
	defer dm2.Shutdown()

	got := make([]byte, PageSize)
	if err := dm2.ReadPage(id, got); err != nil {
		t.Fatalf("ReadPage after reopen: %v", err)
	}
	if string(got[:len("durable-payload")]) != "durable-payload" {
		t.Fatalf("payload did not survive reopen: got %q", got[:len("durable-payload")])
	}
}
