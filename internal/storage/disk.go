package storage

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// DiskManagerConfig configures a DiskManager.
type DiskManagerConfig struct {
	Path string
}

// DiskManager owns a single database file and serializes every read,
// write, and counter update behind one mutex.
type DiskManager struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	numPages   int64
	nextPageID int64
	closed     bool
	log        *slog.Logger
}

// OpenDiskManager opens an existing database file or creates a new one.
// The initial page count is derived from the file size; the allocator
// counter starts at that count.
func OpenDiskManager(cfg DiskManagerConfig) (*DiskManager, error) {
	f, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open database file %q: %w: %v", cfg.Path, ErrIoError, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat database file %q: %w: %v", cfg.Path, ErrIoError, err)
	}
	numPages := info.Size() / PageSize
	dm := &DiskManager{
		file:       f,
		path:       cfg.Path,
		numPages:   numPages,
		nextPageID: numPages,
		log:        slog.Default().With("component", "disk_manager", "path", cfg.Path),
	}
	dm.log.Debug("opened database file", "num_pages", numPages)
	return dm, nil
}

// ReadPage fills dest (which must be exactly PageSize bytes) with the
// contents of page id. Reading an id beyond the committed extent
// zero-fills dest rather than erroring; a short read is zero-padded.
func (d *DiskManager) ReadPage(id PageID, dest []byte) error {
	if id < 0 {
		return fmt.Errorf("read page %d: %w", id, ErrInvalidPageID)
	}
	if len(dest) != PageSize {
		return fmt.Errorf("read page %d: dest has %d bytes: %w", id, len(dest), ErrBadBufferSize)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("read page %d: disk manager closed: %w", id, ErrIoError)
	}

	if int64(id) >= d.numPages {
		d.log.Debug("reading uncommitted extent, zero-filling", "page_id", id)
		for i := range dest {
			dest[i] = 0
		}
		return nil
	}

	off := int64(id) * PageSize
	n, err := d.file.ReadAt(dest, off)
	if err != nil && n == 0 {
		return fmt.Errorf("read page %d: %w: %v", id, ErrIoError, err)
	}
	for i := n; i < len(dest); i++ {
		dest[i] = 0
	}
	return nil
}

// WritePage writes src (which must be exactly PageSize bytes) to page
// id and flushes it to the OS. Writing past the committed extent grows
// the page count (and bumps the allocator counter so it never regresses
// below the committed extent).
func (d *DiskManager) WritePage(id PageID, src []byte) error {
	if id < 0 {
		return fmt.Errorf("write page %d: %w", id, ErrInvalidPageID)
	}
	if len(src) != PageSize {
		return fmt.Errorf("write page %d: src has %d bytes: %w", id, len(src), ErrBadBufferSize)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("write page %d: disk manager closed: %w", id, ErrIoError)
	}

	off := int64(id) * PageSize
	if _, err := d.file.WriteAt(src, off); err != nil {
		return fmt.Errorf("write page %d: %w: %v", id, ErrIoError, err)
	}
	if err := d.file.Sync(); err != nil {
		return fmt.Errorf("write page %d: flush: %w: %v", id, ErrIoError, err)
	}

	if int64(id) >= d.numPages {
		d.numPages = int64(id) + 1
		if d.nextPageID < d.numPages {
			d.nextPageID = d.numPages
		}
	}
	return nil
}

// AllocatePage reserves a new page id without extending the file. The
// file only grows on the subsequent WritePage.
func (d *DiskManager) AllocatePage() PageID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := PageID(d.nextPageID)
	d.nextPageID++
	return id
}

// DeallocatePage is a documented no-op: page ids are never reused in
// this core, so there is no free list to return id to.
func (d *DiskManager) DeallocatePage(id PageID) {
	d.log.Debug("deallocate_page is a no-op in this core", "page_id", id)
}

// NumPages returns the number of pages currently committed to the file.
func (d *DiskManager) NumPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(d.numPages)
}

// Shutdown flushes and closes the underlying file. It is idempotent.
func (d *DiskManager) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.file.Sync(); err != nil {
		d.file.Close()
		return fmt.Errorf("shutdown: flush: %w: %v", ErrIoError, err)
	}
	if err := d.file.Close(); err != nil {
		return fmt.Errorf("shutdown: close: %w: %v", ErrIoError, err)
	}
	return nil
}

// Path returns the database file path.
func (d *DiskManager) Path() string { return d.path }
