package storage

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// BufferPoolConfig configures a BufferPoolManager.
type BufferPoolConfig struct {
	PoolSize int // number of frames; must be > 0
}

// BufferPoolManager maps page ids to frames, enforces pinning, chooses
// eviction victims through a pluggable Replacer, and writes dirty
// frames back through the Disk Manager on eviction.
//
// One pool-wide mutex is held across every public method. The
// granularity is deliberately coarse: write-back during eviction
// happens inside the mutex. Callers that hold a fetched page do not
// hold this mutex.
type BufferPoolManager struct {
	mu        sync.Mutex
	disk      *DiskManager
	replacer  Replacer
	frames    []*Page
	pageTable map[PageID]FrameID
	freeList  []FrameID
	log       *slog.Logger

	checkpoint *cron.Cron
}

// NewBufferPoolManager preallocates cfg.PoolSize frames over disk.
func NewBufferPoolManager(disk *DiskManager, replacer Replacer, cfg BufferPoolConfig) *BufferPoolManager {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	bp := &BufferPoolManager{
		disk:      disk,
		replacer:  replacer,
		frames:    make([]*Page, cfg.PoolSize),
		pageTable: make(map[PageID]FrameID, cfg.PoolSize),
		freeList:  make([]FrameID, cfg.PoolSize),
		log:       slog.Default().With("component", "buffer_pool"),
	}
	for i := range bp.frames {
		bp.frames[i] = NewPage()
		bp.freeList[i] = FrameID(i)
	}
	return bp
}

// obtainFrame pops a frame from the free list or asks the replacer for
// a victim, writing it back through the Disk Manager if it was dirty.
// Must be called with bp.mu held. Returns false if no frame is
// available.
func (bp *BufferPoolManager) obtainFrame() (FrameID, bool) {
	if len(bp.freeList) > 0 {
		fid := bp.freeList[0]
		bp.freeList = bp.freeList[1:]
		return fid, true
	}

	fid, ok := bp.replacer.Victim()
	if !ok {
		return 0, false
	}
	frame := bp.frames[fid]
	if frame.ID() != InvalidPageID {
		if frame.IsDirty() {
			if err := bp.disk.WritePage(frame.ID(), frame.Data()); err != nil {
				bp.log.Error("write-back on eviction failed", "page_id", frame.ID(), "err", err)
				bp.replacer.Unpin(fid)
				return 0, false
			}
			frame.MarkClean()
		}
		delete(bp.pageTable, frame.ID())
	}
	return fid, true
}

// FetchPage returns the page identified by id, pinning it. Call
// UnpinPage when done with it.
func (bp *BufferPoolManager) FetchPage(id PageID) (*Page, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if fid, ok := bp.pageTable[id]; ok {
		frame := bp.frames[fid]
		frame.IncrementPin()
		bp.replacer.Pin(fid)
		return frame, true
	}

	fid, ok := bp.obtainFrame()
	if !ok {
		return nil, false
	}
	frame := bp.frames[fid]
	frame.ResetMemory()
	frame.SetID(id)
	if err := bp.disk.ReadPage(id, frame.Data()); err != nil {
		bp.log.Error("read page failed", "page_id", id, "err", err)
		bp.freeList = append(bp.freeList, fid)
		return nil, false
	}
	frame.IncrementPin()
	frame.MarkClean()
	bp.pageTable[id] = fid
	bp.replacer.Pin(fid)
	return frame, true
}

// NewPage allocates a new page id, installs it pinned in a frame, and
// writes the zeroed frame to disk immediately to commit the extent.
func (bp *BufferPoolManager) NewPage() (*Page, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.obtainFrame()
	if !ok {
		return nil, false
	}

	id := bp.disk.AllocatePage()
	frame := bp.frames[fid]
	frame.ResetMemory()
	frame.SetID(id)
	frame.IncrementPin()
	if err := bp.disk.WritePage(id, frame.Data()); err != nil {
		bp.log.Error("commit new page failed", "page_id", id, "err", err)
		frame.ResetMemory()
		frame.SetID(InvalidPageID)
		bp.freeList = append(bp.freeList, fid)
		return nil, false
	}
	frame.MarkClean()
	bp.pageTable[id] = fid
	bp.replacer.Pin(fid)
	return frame, true
}

// UnpinPage decrements the pin count of id. If isDirty, the page is
// marked dirty (the dirty latch is never cleared here). Once the pin
// count reaches zero the frame becomes an eviction candidate.
func (bp *BufferPoolManager) UnpinPage(id PageID, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.pageTable[id]
	if !ok {
		return fmt.Errorf("unpin page %d: %w", id, ErrNotResident)
	}
	frame := bp.frames[fid]
	if err := frame.DecrementPin(); err != nil {
		return err
	}
	if isDirty {
		frame.MarkDirty()
	}
	if frame.PinCount() == 0 {
		bp.replacer.Unpin(fid)
	}
	return nil
}

// FlushPage writes the page's bytes to disk unconditionally and marks
// it clean.
func (bp *BufferPoolManager) FlushPage(id PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushPageLocked(id)
}

func (bp *BufferPoolManager) flushPageLocked(id PageID) error {
	fid, ok := bp.pageTable[id]
	if !ok {
		return fmt.Errorf("flush page %d: %w", id, ErrNotResident)
	}
	frame := bp.frames[fid]
	if err := bp.disk.WritePage(id, frame.Data()); err != nil {
		return fmt.Errorf("flush page %d: %w", id, err)
	}
	frame.MarkClean()
	return nil
}

// FlushAllPages writes every dirty page in the pool to disk and marks
// each one clean.
func (bp *BufferPoolManager) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	ids := make([]PageID, 0, len(bp.pageTable))
	for id := range bp.pageTable {
		ids = append(ids, id)
	}
	for _, id := range ids {
		fid := bp.pageTable[id]
		frame := bp.frames[fid]
		if !frame.IsDirty() {
			continue
		}
		if err := bp.disk.WritePage(id, frame.Data()); err != nil {
			return fmt.Errorf("flush all pages: page %d: %w", id, err)
		}
		frame.MarkClean()
	}
	return nil
}

// DeletePage removes a page from the pool and asks the Disk Manager to
// deallocate it (a no-op in this core). Deleting an id not currently
// resident still succeeds. Deleting a pinned page fails.
func (bp *BufferPoolManager) DeletePage(id PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.pageTable[id]
	if !ok {
		bp.disk.DeallocatePage(id)
		return nil
	}
	frame := bp.frames[fid]
	if frame.PinCount() > 0 {
		return fmt.Errorf("delete page %d: %w", id, ErrPinnedDelete)
	}

	delete(bp.pageTable, id)
	bp.replacer.Pin(fid) // removes it from the candidate set, if present
	frame.ResetMemory()
	frame.SetID(InvalidPageID)
	bp.freeList = append(bp.freeList, fid)
	bp.disk.DeallocatePage(id)
	return nil
}

// PoolSize returns the number of frames in the pool.
func (bp *BufferPoolManager) PoolSize() int {
	return len(bp.frames)
}

// StartCheckpointScheduler starts a background goroutine that calls
// FlushAllPages on the given cron schedule (e.g. "@every 1m"). Calling
// it twice replaces the previous schedule. The scheduler is not part
// of the buffer pool's core contract — there is no recovery log, so a
// checkpoint here is just an eager write-back, not a durability
// boundary.
func (bp *BufferPoolManager) StartCheckpointScheduler(schedule string) error {
	bp.mu.Lock()
	if bp.checkpoint != nil {
		bp.checkpoint.Stop()
	}
	c := cron.New()
	bp.checkpoint = c
	bp.mu.Unlock()

	_, err := c.AddFunc(schedule, func() {
		if err := bp.FlushAllPages(); err != nil {
			bp.log.Error("scheduled checkpoint failed", "err", err)
		} else {
			bp.log.Debug("scheduled checkpoint complete")
		}
	})
	if err != nil {
		return fmt.Errorf("buffer pool: invalid checkpoint schedule %q: %w", schedule, err)
	}
	c.Start()
	return nil
}

// StopCheckpointScheduler stops the background checkpoint scheduler,
// if one was started. Safe to call if none was ever started.
func (bp *BufferPoolManager) StopCheckpointScheduler() {
	bp.mu.Lock()
	c := bp.checkpoint
	bp.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}
