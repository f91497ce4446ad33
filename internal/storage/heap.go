package storage

import "sync"

// RID is a record identifier: the page holding the record and its slot
// within that page's slot directory. A RID is stable for the record's
// lifetime within its heap — a slot is never reused by another record.
type RID struct {
	PageID  PageID
	SlotNum int
}

// InvalidRID is the sentinel for "no record": page id InvalidPageID and
// slot -1. The zero RID (page 0, slot 0) is a valid RID.
var InvalidRID = RID{PageID: InvalidPageID, SlotNum: -1}

// IsValid reports whether r denotes a real slot.
func (r RID) IsValid() bool {
	return r.PageID != InvalidPageID && r.SlotNum != -1
}

// TableHeap is a logical table: an ordered, append-only list of data
// page ids backed by a buffer pool. A per-heap mutex serializes
// insertions so the page list and free-space probing stay consistent;
// it is released before an iterator begins yielding.
type TableHeap struct {
	mu      sync.Mutex
	pool    *BufferPoolManager
	pageIDs []PageID
}

// NewTableHeap wraps an existing, possibly non-empty, ordered page id
// list.
func NewTableHeap(pool *BufferPoolManager, pageIDs []PageID) *TableHeap {
	return &TableHeap{pool: pool, pageIDs: append([]PageID{}, pageIDs...)}
}

// PageIDs returns a copy of the heap's current page id list.
func (h *TableHeap) PageIDs() []PageID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]PageID{}, h.pageIDs...)
}

// InsertRecord tries each existing page, most-recently-added first, for
// room before allocating a new page. Returns the new record's RID, or
// false if the heap could not grow (pool exhausted).
func (h *TableHeap) InsertRecord(data []byte) (RID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.pageIDs) - 1; i >= 0; i-- {
		pid := h.pageIDs[i]
		page, ok := h.pool.FetchPage(pid)
		if !ok {
			continue
		}
		sp := WrapSlottedPage(page.Data())
		slot, inserted := sp.InsertRecord(data)
		if inserted {
			h.pool.UnpinPage(pid, true)
			return RID{PageID: pid, SlotNum: slot}, true
		}
		h.pool.UnpinPage(pid, page.IsDirty())
	}

	newPage, ok := h.pool.NewPage()
	if !ok {
		return InvalidRID, false
	}
	newID := newPage.ID()
	sp := WrapSlottedPage(newPage.Data())
	sp.Initialize()

	slot, inserted := sp.InsertRecord(data)
	if !inserted {
		h.pool.UnpinPage(newID, newPage.IsDirty())
		h.pool.DeletePage(newID)
		return InvalidRID, false
	}

	h.pageIDs = append(h.pageIDs, newID)
	h.pool.UnpinPage(newID, true)
	return RID{PageID: newID, SlotNum: slot}, true
}

// GetRecord returns the record at rid, or false if rid is invalid, its
// page cannot be fetched, or the slot is tombstoned.
func (h *TableHeap) GetRecord(rid RID) ([]byte, bool) {
	if !rid.IsValid() {
		return nil, false
	}
	page, ok := h.pool.FetchPage(rid.PageID)
	if !ok {
		return nil, false
	}
	defer h.pool.UnpinPage(rid.PageID, false)

	sp := WrapSlottedPage(page.Data())
	rec, ok := sp.GetRecord(rid.SlotNum)
	if !ok {
		return nil, false
	}
	// Return a copy: the page may be reused by the pool once unpinned.
	out := make([]byte, len(rec))
	copy(out, rec)
	return out, true
}

// DeleteRecord tombstones the record at rid. Returns false if rid is
// invalid or its page cannot be fetched.
func (h *TableHeap) DeleteRecord(rid RID) bool {
	if !rid.IsValid() {
		return false
	}
	page, ok := h.pool.FetchPage(rid.PageID)
	if !ok {
		return false
	}
	sp := WrapSlottedPage(page.Data())
	err := sp.DeleteRecord(rid.SlotNum)
	if err == nil {
		page.MarkDirty()
	}
	h.pool.UnpinPage(rid.PageID, page.IsDirty())
	return err == nil
}

// Iterator returns a TableIterator over a snapshot of the heap's
// current page id list, so concurrent inserts that grow the heap are
// not observed by an in-flight scan.
func (h *TableHeap) Iterator() *TableIterator {
	h.mu.Lock()
	snapshot := append([]PageID{}, h.pageIDs...)
	h.mu.Unlock()
	it := &TableIterator{pool: h.pool, pageIDs: snapshot, pageIdx: -1}
	it.loadNextPage()
	return it
}

// TableIterator performs a full scan of a table heap, pinning at most
// one page at a time: precisely the one whose records it is currently
// yielding.
type TableIterator struct {
	pool       *BufferPoolManager
	pageIDs    []PageID
	pageIdx    int
	currentID  PageID
	hasCurrent bool
	records    []ScanEntry
	recordIdx  int
}

// loadNextPage unpins the current page (if any), advances to the next
// page id, fetches it, and caches its valid-record list. If a page
// cannot be fetched it is skipped. Returns false once the id list is
// exhausted.
func (it *TableIterator) loadNextPage() bool {
	if it.hasCurrent {
		it.pool.UnpinPage(it.currentID, false)
		it.hasCurrent = false
	}
	it.pageIdx++

	for it.pageIdx < len(it.pageIDs) {
		pid := it.pageIDs[it.pageIdx]
		page, ok := it.pool.FetchPage(pid)
		if !ok {
			it.pageIdx++
			continue
		}
		sp := WrapSlottedPage(page.Data())
		it.currentID = pid
		it.hasCurrent = true
		it.records = sp.ScanValid()
		it.recordIdx = 0
		return true
	}
	return false
}

// Next returns the next (RID, data) pair, or false when the scan is
// complete.
func (it *TableIterator) Next() (RID, []byte, bool) {
	for {
		if !it.hasCurrent {
			return InvalidRID, nil, false
		}
		if it.recordIdx >= len(it.records) {
			if !it.loadNextPage() {
				return InvalidRID, nil, false
			}
			continue
		}
		entry := it.records[it.recordIdx]
		it.recordIdx++
		rid := RID{PageID: it.currentID, SlotNum: entry.Slot}
		out := make([]byte, len(entry.Data))
		copy(out, entry.Data)
		return rid, out, true
	}
}

// Close unpins the current page, if any. Idempotent.
func (it *TableIterator) Close() {
	if it.hasCurrent {
		it.pool.UnpinPage(it.currentID, false)
		it.hasCurrent = false
	}
}
