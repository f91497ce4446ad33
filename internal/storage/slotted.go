package storage

import (
	"encoding/binary"
	"fmt"
)

// Slotted page layout (all multi-byte fields big-endian):
//
//	[0:2]  num_slots        (u16)
//	[2:4]  free_data_start  (u16)
//	[4:...] slot directory, growing forward, 4 bytes per slot:
//	          [0:2] record_offset (u16)
//	          [2:4] record_length (u16)
//	...free space...
//	[free_data_start:PageSize] record payloads, packed downward from the
//	                           high end of the page.
//
// A slot with record_length == 0 is a tombstone: the record was
// deleted but its slot (and RID) is never reused. The slot directory
// only ever grows; inserts always append a new slot.
const (
	slottedHeaderSize = 4
	slotEntrySize     = 4
)

// SlottedPage wraps a page buffer with record-level operations.
type SlottedPage struct {
	buf []byte
}

// WrapSlottedPage wraps an existing, already-initialized page buffer.
// buf must be exactly PageSize bytes.
func WrapSlottedPage(buf []byte) *SlottedPage {
	return &SlottedPage{buf: buf}
}

// Initialize zeroes the page and sets num_slots = 0,
// free_data_start = PageSize.
func (sp *SlottedPage) Initialize() {
	for i := range sp.buf {
		sp.buf[i] = 0
	}
	sp.setNumSlots(0)
	sp.setFreeDataStart(PageSize)
}

func (sp *SlottedPage) NumSlots() int {
	return int(binary.BigEndian.Uint16(sp.buf[0:2]))
}

func (sp *SlottedPage) setNumSlots(n int) {
	binary.BigEndian.PutUint16(sp.buf[0:2], uint16(n))
}

func (sp *SlottedPage) FreeDataStart() int {
	return int(binary.BigEndian.Uint16(sp.buf[2:4]))
}

func (sp *SlottedPage) setFreeDataStart(off int) {
	binary.BigEndian.PutUint16(sp.buf[2:4], uint16(off))
}

func (sp *SlottedPage) slotOffset(slot int) int {
	return slottedHeaderSize + slot*slotEntrySize
}

func (sp *SlottedPage) recordOffset(slot int) int {
	o := sp.slotOffset(slot)
	return int(binary.BigEndian.Uint16(sp.buf[o : o+2]))
}

func (sp *SlottedPage) recordLength(slot int) int {
	o := sp.slotOffset(slot)
	return int(binary.BigEndian.Uint16(sp.buf[o+2 : o+4]))
}

func (sp *SlottedPage) setSlot(slot, offset, length int) {
	o := sp.slotOffset(slot)
	binary.BigEndian.PutUint16(sp.buf[o:o+2], uint16(offset))
	binary.BigEndian.PutUint16(sp.buf[o+2:o+4], uint16(length))
}

// FreeSpace returns the number of contiguous bytes available for a new
// record, accounting for the slot entry the insert would also need.
func (sp *SlottedPage) FreeSpace() int {
	used := slottedHeaderSize + sp.NumSlots()*slotEntrySize + slotEntrySize
	return sp.FreeDataStart() - used
}

// InsertRecord appends data as a new record. Returns the new slot
// number, or false if data is empty or the page lacks space.
func (sp *SlottedPage) InsertRecord(data []byte) (int, bool) {
	l := len(data)
	if l == 0 {
		return 0, false
	}
	numSlots := sp.NumSlots()
	needed := slottedHeaderSize + (numSlots+1)*slotEntrySize
	if needed > sp.FreeDataStart()-l {
		return 0, false
	}

	newOffset := sp.FreeDataStart() - l
	copy(sp.buf[newOffset:newOffset+l], data)
	sp.setSlot(numSlots, newOffset, l)
	sp.setNumSlots(numSlots + 1)
	sp.setFreeDataStart(newOffset)
	return numSlots, true
}

// GetRecord returns the bytes stored at slot, or false if the slot is
// out of range, tombstoned, or its range is corrupt.
func (sp *SlottedPage) GetRecord(slot int) ([]byte, bool) {
	if slot < 0 || slot >= sp.NumSlots() {
		return nil, false
	}
	length := sp.recordLength(slot)
	if length == 0 {
		return nil, false
	}
	offset := sp.recordOffset(slot)
	if offset < slottedHeaderSize || offset+length > PageSize {
		return nil, false
	}
	return sp.buf[offset : offset+length], true
}

// DeleteRecord tombstones slot by setting its record length to 0.
// Deleting an already-tombstoned slot succeeds (idempotent). Payload
// bytes are not reclaimed.
func (sp *SlottedPage) DeleteRecord(slot int) error {
	if slot < 0 || slot >= sp.NumSlots() {
		return fmt.Errorf("delete slot %d: %w", slot, ErrInvalidSlot)
	}
	offset := sp.recordOffset(slot)
	sp.setSlot(slot, offset, 0)
	return nil
}

// ScanEntry is one live record returned by ScanValid.
type ScanEntry struct {
	Slot int
	Data []byte
}

// ScanValid returns every non-tombstoned record in slot order.
func (sp *SlottedPage) ScanValid() []ScanEntry {
	n := sp.NumSlots()
	out := make([]ScanEntry, 0, n)
	for i := 0; i < n; i++ {
		if rec, ok := sp.GetRecord(i); ok {
			out = append(out, ScanEntry{Slot: i, Data: rec})
		}
	}
	return out
}

// Bytes returns the underlying page buffer.
func (sp *SlottedPage) Bytes() []byte { return sp.buf }
