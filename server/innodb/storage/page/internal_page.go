package page

import "encoding/binary"

// internalEntrySize is the width of one (key, child_page_id) slot. Slot 0
// stores only a child id at index 0 of the children array; keys[i] is the
// separator key guarding children[i] for i in [1, size).
const internalEntrySize = 8 + 4

// InternalPage is a B+Tree internal node: n separator keys and n children,
// where children[0] has no guarding key.
type InternalPage struct {
	TreePage
}

// NewInternalPage initialises raw as a fresh internal node page.
func NewInternalPage(raw *[Size]byte, pageID, parentPageID, maxSize int32) InternalPage {
	ip := InternalPage{TreePage{Raw: raw}}
	ip.SetNodeType(InternalNode)
	ip.SetPageID(pageID)
	ip.SetParentPageID(parentPageID)
	ip.SetMaxSize(maxSize)
	ip.SetSize(0)
	return ip
}

func (ip InternalPage) childOffset(i int32) int {
	return HeaderSize + int(i)*4
}

func (ip InternalPage) keyOffset(i int32) int {
	// Keys occupy the region after all maxSize+1 child slots. The key
	// array itself is also sized maxSize+1 so a node can transiently hold
	// one extra entry between an overflowing insert and its split.
	maxChildren := ip.MaxSize() + 1
	return HeaderSize + int(maxChildren)*4 + int(i)*8
}

func (ip InternalPage) KeyAt(i int32) int64 {
	return int64(binary.LittleEndian.Uint64(ip.Raw[ip.keyOffset(i):]))
}

func (ip InternalPage) SetKeyAt(i int32, key int64) {
	binary.LittleEndian.PutUint64(ip.Raw[ip.keyOffset(i):], uint64(key))
}

func (ip InternalPage) ChildAt(i int32) int32 {
	return int32(binary.LittleEndian.Uint32(ip.Raw[ip.childOffset(i):]))
}

func (ip InternalPage) SetChildAt(i int32, pageID int32) {
	binary.LittleEndian.PutUint32(ip.Raw[ip.childOffset(i):], uint32(pageID))
}

// ValueIndex returns the slot i such that ChildAt(i) == childPageID, or -1.
func (ip InternalPage) ValueIndex(childPageID int32) int32 {
	for i := int32(0); i < ip.Size(); i++ {
		if ip.ChildAt(i) == childPageID {
			return i
		}
	}
	return -1
}

// LookupChild implements the search rule of spec section 4.4: find the
// largest i with key[i] <= target among slots [1, size), and descend to
// child[i] (or child[0] if target is smaller than every separator).
func (ip InternalPage) LookupChild(target int64, cmp func(a, b int64) int) int32 {
	size := ip.Size()
	idx := int32(0)
	for i := int32(1); i < size; i++ {
		if cmp(ip.KeyAt(i), target) <= 0 {
			idx = i
		} else {
			break
		}
	}
	return ip.ChildAt(idx)
}

// InsertAfter inserts (key, childPageID) immediately after the slot holding
// leftChildPageID, shifting subsequent slots right.
func (ip InternalPage) InsertAfter(leftChildPageID int32, key int64, childPageID int32) {
	idx := ip.ValueIndex(leftChildPageID)
	size := ip.Size()
	for i := size; i > idx+1; i-- {
		ip.SetKeyAt(i, ip.KeyAt(i-1))
		ip.SetChildAt(i, ip.ChildAt(i-1))
	}
	ip.SetKeyAt(idx+1, key)
	ip.SetChildAt(idx+1, childPageID)
	ip.SetSize(size + 1)
}

// PopulateNewRoot sets this (freshly allocated) page up as a new root with
// two children and one separator key, per spec section 4.4 insertion.
func (ip InternalPage) PopulateNewRoot(leftChild int32, key int64, rightChild int32) {
	ip.SetChildAt(0, leftChild)
	ip.SetKeyAt(1, key)
	ip.SetChildAt(1, rightChild)
	ip.SetSize(2)
}

// RemoveAt deletes slot i, shifting subsequent slots left.
func (ip InternalPage) RemoveAt(i int32) {
	size := ip.Size()
	for j := i; j < size-1; j++ {
		ip.SetKeyAt(j, ip.KeyAt(j+1))
		ip.SetChildAt(j, ip.ChildAt(j+1))
	}
	ip.SetSize(size - 1)
}

// MoveHalfTo copies the right half of this node (from splitAt to size)
// into dst, which must be empty, and shrinks this node to splitAt entries.
func (ip InternalPage) MoveHalfTo(dst InternalPage, splitAt int32) {
	size := ip.Size()
	for i := splitAt; i < size; i++ {
		dst.SetChildAt(i-splitAt, ip.ChildAt(i))
		if i > splitAt {
			dst.SetKeyAt(i-splitAt, ip.KeyAt(i))
		}
	}
	dst.SetSize(size - splitAt)
	ip.SetSize(splitAt)
}

// MoveAllTo appends every entry of this node onto dst, prefixing the first
// moved child with middleKey (the separator pulled down from the parent),
// then empties this node. Used for internal-node merges.
func (ip InternalPage) MoveAllTo(dst InternalPage, middleKey int64) {
	dstSize := dst.Size()
	size := ip.Size()
	for i := int32(0); i < size; i++ {
		dst.SetChildAt(dstSize+i, ip.ChildAt(i))
	}
	dst.SetKeyAt(dstSize, middleKey)
	for i := int32(1); i < size; i++ {
		dst.SetKeyAt(dstSize+i, ip.KeyAt(i))
	}
	dst.SetSize(dstSize + size)
	ip.SetSize(0)
}

// MoveFirstToEndOf moves this node's first child/key onto the end of dst,
// pulling downMiddleKey in as dst's new trailing separator. Used when
// borrowing from the right sibling.
func (ip InternalPage) MoveFirstToEndOf(dst InternalPage, downMiddleKey int64) {
	dstSize := dst.Size()
	dst.SetKeyAt(dstSize, downMiddleKey)
	dst.SetChildAt(dstSize, ip.ChildAt(0))
	dst.SetSize(dstSize + 1)
	ip.RemoveAt(0)
}

// MoveLastToFrontOf moves this node's last child/key onto the front of
// dst, pulling downMiddleKey in as dst's new leading separator. Used when
// borrowing from the left sibling.
func (ip InternalPage) MoveLastToFrontOf(dst InternalPage, downMiddleKey int64) {
	size := ip.Size()
	lastChild := ip.ChildAt(size - 1)
	dstSize := dst.Size()
	for i := dstSize; i > 0; i-- {
		dst.SetChildAt(i, dst.ChildAt(i-1))
		dst.SetKeyAt(i, dst.KeyAt(i-1))
	}
	dst.SetChildAt(0, lastChild)
	dst.SetKeyAt(1, downMiddleKey)
	dst.SetSize(dstSize + 1)
	ip.SetSize(size - 1)
}
