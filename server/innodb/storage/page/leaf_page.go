package page

import "encoding/binary"

// LeafPage is a B+Tree leaf node: n (key, value) pairs plus a forward link
// to the next leaf in key order.
type LeafPage struct {
	TreePage
}

// NewLeafPage initialises raw as a fresh, empty leaf node page.
func NewLeafPage(raw *[Size]byte, pageID, parentPageID, maxSize int32) LeafPage {
	lp := LeafPage{TreePage{Raw: raw}}
	lp.SetNodeType(LeafNode)
	lp.SetPageID(pageID)
	lp.SetParentPageID(parentPageID)
	lp.SetMaxSize(maxSize)
	lp.SetSize(0)
	lp.SetNextPageID(InvalidPageID)
	return lp
}

func (lp LeafPage) NextPageID() int32 {
	return int32(binary.LittleEndian.Uint32(lp.Raw[offNextPageID:]))
}

func (lp LeafPage) SetNextPageID(id int32) {
	binary.LittleEndian.PutUint32(lp.Raw[offNextPageID:], uint32(id))
}

func (lp LeafPage) keyOffset(i int32) int {
	return LeafHeaderSize + int(i)*16
}

func (lp LeafPage) valueOffset(i int32) int {
	return LeafHeaderSize + int(i)*16 + 8
}

func (lp LeafPage) KeyAt(i int32) int64 {
	return int64(binary.LittleEndian.Uint64(lp.Raw[lp.keyOffset(i):]))
}

func (lp LeafPage) SetKeyAt(i int32, key int64) {
	binary.LittleEndian.PutUint64(lp.Raw[lp.keyOffset(i):], uint64(key))
}

func (lp LeafPage) ValueAt(i int32) int64 {
	return int64(binary.LittleEndian.Uint64(lp.Raw[lp.valueOffset(i):]))
}

func (lp LeafPage) SetValueAt(i int32, value int64) {
	binary.LittleEndian.PutUint64(lp.Raw[lp.valueOffset(i):], uint64(value))
}

// LowerBound returns the smallest index i in [0, size) with KeyAt(i) >=
// target, or size if no such index exists.
func (lp LeafPage) LowerBound(target int64, cmp func(a, b int64) int) int32 {
	size := lp.Size()
	lo, hi := int32(0), size
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(lp.KeyAt(mid), target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup reports the value for target, if present.
func (lp LeafPage) Lookup(target int64, cmp func(a, b int64) int) (int64, bool) {
	idx := lp.LowerBound(target, cmp)
	if idx < lp.Size() && cmp(lp.KeyAt(idx), target) == 0 {
		return lp.ValueAt(idx), true
	}
	return 0, false
}

// InsertAt inserts (key, value) at slot idx, shifting subsequent entries
// right.
func (lp LeafPage) InsertAt(idx int32, key, value int64) {
	size := lp.Size()
	for i := size; i > idx; i-- {
		lp.SetKeyAt(i, lp.KeyAt(i-1))
		lp.SetValueAt(i, lp.ValueAt(i-1))
	}
	lp.SetKeyAt(idx, key)
	lp.SetValueAt(idx, value)
	lp.SetSize(size + 1)
}

// RemoveAt deletes slot idx, shifting subsequent entries left.
func (lp LeafPage) RemoveAt(idx int32) {
	size := lp.Size()
	for i := idx; i < size-1; i++ {
		lp.SetKeyAt(i, lp.KeyAt(i+1))
		lp.SetValueAt(i, lp.ValueAt(i+1))
	}
	lp.SetSize(size - 1)
}

// MoveHalfTo copies this leaf's entries from splitAt to size into dst
// (which must be empty) and shrinks this leaf to splitAt entries.
func (lp LeafPage) MoveHalfTo(dst LeafPage, splitAt int32) {
	size := lp.Size()
	for i := splitAt; i < size; i++ {
		dst.SetKeyAt(i-splitAt, lp.KeyAt(i))
		dst.SetValueAt(i-splitAt, lp.ValueAt(i))
	}
	dst.SetSize(size - splitAt)
	lp.SetSize(splitAt)
}

// MoveAllTo appends every entry of this leaf onto the end of dst, then
// empties this leaf. Used for leaf merges; the caller is responsible for
// unlinking this leaf's page id from the forward list.
func (lp LeafPage) MoveAllTo(dst LeafPage) {
	dstSize := dst.Size()
	size := lp.Size()
	for i := int32(0); i < size; i++ {
		dst.SetKeyAt(dstSize+i, lp.KeyAt(i))
		dst.SetValueAt(dstSize+i, lp.ValueAt(i))
	}
	dst.SetSize(dstSize + size)
	lp.SetSize(0)
}

// MoveFirstToEndOf moves this leaf's first entry onto the end of dst. Used
// when borrowing from the right sibling.
func (lp LeafPage) MoveFirstToEndOf(dst LeafPage) {
	dstSize := dst.Size()
	dst.SetKeyAt(dstSize, lp.KeyAt(0))
	dst.SetValueAt(dstSize, lp.ValueAt(0))
	dst.SetSize(dstSize + 1)
	lp.RemoveAt(0)
}

// MoveLastToFrontOf moves this leaf's last entry onto the front of dst.
// Used when borrowing from the left sibling.
func (lp LeafPage) MoveLastToFrontOf(dst LeafPage) {
	size := lp.Size()
	lastKey, lastVal := lp.KeyAt(size-1), lp.ValueAt(size-1)
	dst.InsertAt(0, lastKey, lastVal)
	lp.SetSize(size - 1)
}
