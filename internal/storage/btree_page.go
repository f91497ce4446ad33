package storage

import (
	"encoding/binary"
	"fmt"
)

// B+tree node types.
const (
	NodeTypeLeaf     uint8 = 0
	NodeTypeInternal uint8 = 1
)

// Common header offsets (big-endian fields).
const (
	offsetNodeType     = 0 // 1 byte
	offsetKeyCount     = 1 // 2 bytes
	offsetParentPageID = 3 // 4 bytes

	offsetLeafPrevPageID = 7  // 4 bytes, leaf-only
	offsetLeafNextPageID = 11 // 4 bytes, leaf-only

	HeaderSizeInternal = 7
	HeaderSizeLeaf     = 15
)

// TypeInfo describes a fixed-width value's on-page encoding: its size
// and a pair of pure (de)serialize functions. It is a tagged value
// rather than a dynamically dispatched object because the set of
// supported column/key types is closed.
type TypeInfo struct {
	Size        int
	Serialize   func(v any, buf []byte, offset int)
	Deserialize func(buf []byte, offset int) any
}

// Int32TypeInfo is the big-endian signed 32-bit TypeInfo, used for
// page-id-valued keys and pointers.
var Int32TypeInfo = TypeInfo{
	Size: 4,
	Serialize: func(v any, buf []byte, offset int) {
		binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(v.(int32)))
	},
	Deserialize: func(buf []byte, offset int) any {
		return int32(binary.BigEndian.Uint32(buf[offset : offset+4]))
	},
}

// RIDTypeInfo is the fixed-width (page_id int32, slot_num int32)
// encoding of a RID, used as the leaf value type.
var RIDTypeInfo = TypeInfo{
	Size: 8,
	Serialize: func(v any, buf []byte, offset int) {
		rid := v.(RID)
		binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(rid.PageID))
		binary.BigEndian.PutUint32(buf[offset+4:offset+8], uint32(int32(rid.SlotNum)))
	},
	Deserialize: func(buf []byte, offset int) any {
		pid := PageID(int32(binary.BigEndian.Uint32(buf[offset : offset+4])))
		slot := int(int32(binary.BigEndian.Uint32(buf[offset+4 : offset+8])))
		return RID{PageID: pid, SlotNum: slot}
	},
}

// btreeCommon holds the shared header accessors for leaf and internal
// pages.
type btreeCommon struct {
	buf []byte
}

func (p *btreeCommon) NodeType() uint8 { return p.buf[offsetNodeType] }

func (p *btreeCommon) setNodeType(t uint8) { p.buf[offsetNodeType] = t }

func (p *btreeCommon) IsLeaf() bool     { return p.NodeType() == NodeTypeLeaf }
func (p *btreeCommon) IsInternal() bool { return p.NodeType() == NodeTypeInternal }

func (p *btreeCommon) KeyCount() int {
	return int(binary.BigEndian.Uint16(p.buf[offsetKeyCount : offsetKeyCount+2]))
}

func (p *btreeCommon) setKeyCount(n int) {
	binary.BigEndian.PutUint16(p.buf[offsetKeyCount:offsetKeyCount+2], uint16(n))
}

func (p *btreeCommon) ParentPageID() PageID {
	return PageID(int32(binary.BigEndian.Uint32(p.buf[offsetParentPageID : offsetParentPageID+4])))
}

func (p *btreeCommon) SetParentPageID(id PageID) {
	binary.BigEndian.PutUint32(p.buf[offsetParentPageID:offsetParentPageID+4], uint32(int32(id)))
}

// maxKeys computes the fixed-width capacity for a page given the key
// and value/pointer sizes and the header size in effect.
func maxKeys(isLeaf bool, keySize, valueOrPointerSize, headerSize int) int {
	spaceForData := PageSize - headerSize
	if keySize+valueOrPointerSize == 0 {
		return 0
	}
	if isLeaf {
		return spaceForData / (keySize + valueOrPointerSize)
	}
	return (spaceForData - valueOrPointerSize) / (keySize + valueOrPointerSize)
}

// BTreeLeafPage wraps a page buffer formatted as a B+tree leaf: sorted
// (key, RID) pairs with no duplicate keys.
type BTreeLeafPage struct {
	btreeCommon
	keyType TypeInfo
	valType TypeInfo
}

// WrapBTreeLeafPage wraps an already-initialized leaf page buffer.
func WrapBTreeLeafPage(buf []byte, keyType, valType TypeInfo) *BTreeLeafPage {
	return &BTreeLeafPage{btreeCommon: btreeCommon{buf: buf}, keyType: keyType, valType: valType}
}

// InitLeafPage formats buf as an empty leaf page.
func InitLeafPage(buf []byte, keyType, valType TypeInfo, parent, prev, next PageID) *BTreeLeafPage {
	lp := WrapBTreeLeafPage(buf, keyType, valType)
	lp.setNodeType(NodeTypeLeaf)
	lp.setKeyCount(0)
	lp.SetParentPageID(parent)
	lp.SetPrevLeafPageID(prev)
	lp.SetNextLeafPageID(next)
	return lp
}

func (lp *BTreeLeafPage) PrevLeafPageID() PageID {
	return PageID(int32(binary.BigEndian.Uint32(lp.buf[offsetLeafPrevPageID : offsetLeafPrevPageID+4])))
}

func (lp *BTreeLeafPage) SetPrevLeafPageID(id PageID) {
	binary.BigEndian.PutUint32(lp.buf[offsetLeafPrevPageID:offsetLeafPrevPageID+4], uint32(int32(id)))
}

func (lp *BTreeLeafPage) NextLeafPageID() PageID {
	return PageID(int32(binary.BigEndian.Uint32(lp.buf[offsetLeafNextPageID : offsetLeafNextPageID+4])))
}

func (lp *BTreeLeafPage) SetNextLeafPageID(id PageID) {
	binary.BigEndian.PutUint32(lp.buf[offsetLeafNextPageID:offsetLeafNextPageID+4], uint32(int32(id)))
}

func (lp *BTreeLeafPage) entryOffset(index int) int {
	return HeaderSizeLeaf + index*(lp.keyType.Size+lp.valType.Size)
}

func (lp *BTreeLeafPage) KeyAt(index int) any {
	return lp.keyType.Deserialize(lp.buf, lp.entryOffset(index))
}

func (lp *BTreeLeafPage) setKeyAt(index int, key any) {
	lp.keyType.Serialize(key, lp.buf, lp.entryOffset(index))
}

func (lp *BTreeLeafPage) RIDAt(index int) RID {
	v := lp.valType.Deserialize(lp.buf, lp.entryOffset(index)+lp.keyType.Size)
	return v.(RID)
}

func (lp *BTreeLeafPage) setRIDAt(index int, rid RID) {
	lp.valType.Serialize(rid, lp.buf, lp.entryOffset(index)+lp.keyType.Size)
}

// MaxKeys returns the fixed-width entry capacity of this leaf.
func (lp *BTreeLeafPage) MaxKeys() int {
	return maxKeys(true, lp.keyType.Size, lp.valType.Size, HeaderSizeLeaf)
}

// cmpKeys orders two keys of the same underlying Go type.
func cmpKeys(a, b any) int {
	switch av := a.(type) {
	case int32:
		bv := b.(int32)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	default:
		panic(fmt.Sprintf("cmpKeys: unsupported key type %T", a))
	}
}

// FindKeyIndex binary-searches for key among the sorted keys. It
// returns the position and whether key was found exactly; if not
// found, the position is where key would be inserted to keep order.
func (lp *BTreeLeafPage) FindKeyIndex(key any) (int, bool) {
	left, right := 0, lp.KeyCount()-1
	for left <= right {
		mid := (left + right) / 2
		midKey := lp.KeyAt(mid)
		switch cmpKeys(midKey, key) {
		case 0:
			return mid, true
		case -1:
			left = mid + 1
		default:
			right = mid - 1
		}
	}
	return left, false
}

// InsertKeyRIDPair inserts (key, rid) in sorted order. Returns
// ErrLeafFull on saturation; duplicate keys are rejected.
func (lp *BTreeLeafPage) InsertKeyRIDPair(key any, rid RID) error {
	count := lp.KeyCount()
	if count >= lp.MaxKeys() {
		return ErrLeafFull
	}
	idx, found := lp.FindKeyIndex(key)
	if found {
		return fmt.Errorf("insert key: duplicate key")
	}
	for i := count; i > idx; i-- {
		lp.setKeyAt(i, lp.KeyAt(i-1))
		lp.setRIDAt(i, lp.RIDAt(i-1))
	}
	lp.setKeyAt(idx, key)
	lp.setRIDAt(idx, rid)
	lp.setKeyCount(count + 1)
	return nil
}

// RemoveKey removes key if present. Returns false if key was not found.
func (lp *BTreeLeafPage) RemoveKey(key any) bool {
	count := lp.KeyCount()
	idx, found := lp.FindKeyIndex(key)
	if !found {
		return false
	}
	for i := idx; i < count-1; i++ {
		lp.setKeyAt(i, lp.KeyAt(i+1))
		lp.setRIDAt(i, lp.RIDAt(i+1))
	}
	lp.setKeyCount(count - 1)
	return true
}

// BTreeInternalPage wraps a page buffer formatted as a B+tree internal
// node: pointers interleaved with keys as P0 K1 P1 K2 P2 … Kn Pn.
type BTreeInternalPage struct {
	btreeCommon
	keyType     TypeInfo
	pointerType TypeInfo
}

// WrapBTreeInternalPage wraps an already-initialized internal page
// buffer.
func WrapBTreeInternalPage(buf []byte, keyType, pointerType TypeInfo) *BTreeInternalPage {
	return &BTreeInternalPage{btreeCommon: btreeCommon{buf: buf}, keyType: keyType, pointerType: pointerType}
}

// InitInternalPage formats buf as an empty internal page.
func InitInternalPage(buf []byte, keyType, pointerType TypeInfo, parent PageID) *BTreeInternalPage {
	ip := WrapBTreeInternalPage(buf, keyType, pointerType)
	ip.setNodeType(NodeTypeInternal)
	ip.setKeyCount(0)
	ip.SetParentPageID(parent)
	return ip
}

func (ip *BTreeInternalPage) keyOffset(index int) int {
	return HeaderSizeInternal + ip.pointerType.Size + index*(ip.keyType.Size+ip.pointerType.Size)
}

func (ip *BTreeInternalPage) pointerOffset(index int) int {
	return HeaderSizeInternal + index*(ip.keyType.Size+ip.pointerType.Size)
}

func (ip *BTreeInternalPage) KeyAt(index int) any {
	return ip.keyType.Deserialize(ip.buf, ip.keyOffset(index))
}

func (ip *BTreeInternalPage) setKeyAt(index int, key any) {
	ip.keyType.Serialize(key, ip.buf, ip.keyOffset(index))
}

func (ip *BTreeInternalPage) PointerAt(index int) PageID {
	v := ip.pointerType.Deserialize(ip.buf, ip.pointerOffset(index))
	return PageID(v.(int32))
}

func (ip *BTreeInternalPage) setPointerAt(index int, id PageID) {
	ip.pointerType.Serialize(int32(id), ip.buf, ip.pointerOffset(index))
}

// MaxKeys returns the fixed-width key capacity of this internal page.
func (ip *BTreeInternalPage) MaxKeys() int {
	return maxKeys(false, ip.keyType.Size, ip.pointerType.Size, HeaderSizeInternal)
}

// LookupChildPageID descends to the child subtree that would contain
// key, using right-biased binary search: for key Ki at index i-1, all
// keys in subtree Pi-1 are < Ki <= all keys in subtree Pi.
func (ip *BTreeInternalPage) LookupChildPageID(key any) PageID {
	count := ip.KeyCount()
	if count == 0 {
		return ip.PointerAt(0)
	}
	left, right := 0, count-1
	for left <= right {
		mid := (left + right) / 2
		midKey := ip.KeyAt(mid)
		if cmpKeys(key, midKey) < 0 {
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	return ip.PointerAt(left)
}

// InsertKeyPointerPair inserts (key, rightChild) so that rightChild
// becomes the pointer just after key; the pointer to its left is
// unchanged. Returns ErrInternalFull on saturation.
func (ip *BTreeInternalPage) InsertKeyPointerPair(key any, rightChild PageID) error {
	count := ip.KeyCount()
	if count >= ip.MaxKeys() {
		return ErrInternalFull
	}
	left, right := 0, count-1
	for left <= right {
		mid := (left + right) / 2
		midKey := ip.KeyAt(mid)
		if cmpKeys(key, midKey) < 0 {
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	insertIdx := left
	for i := count; i > insertIdx; i-- {
		ip.setKeyAt(i, ip.KeyAt(i-1))
	}
	for i := count + 1; i > insertIdx+1; i-- {
		ip.setPointerAt(i, ip.PointerAt(i-1))
	}
	ip.setKeyAt(insertIdx, key)
	ip.setPointerAt(insertIdx+1, rightChild)
	ip.setKeyCount(count + 1)
	return nil
}
