// Package index implements a persistent, disk-backed B+Tree ordered index
// layered over the buffer pool.
package index

import (
	"gobustub/server/innodb/buffer"
	"gobustub/server/innodb/latch"
	"gobustub/server/innodb/storage/page"
)

// BPlusTree is an ordered key/value index whose nodes live in pages
// fetched from a buffer pool. Every path from root to leaf has the same
// length; leaf capacity and internal fan-out are bounded by leafMaxSize
// and internalMaxSize. A single tree-wide reader/writer latch serializes
// structural change against concurrent readers, per spec section 4.4.
type BPlusTree struct {
	latch *latch.Latch

	pool            *buffer.Pool
	cmp             Comparator
	leafMaxSize     int32
	internalMaxSize int32

	rootPageID int32
}

// NewBPlusTree builds an empty tree over pool with the given node
// capacities and key comparator.
func NewBPlusTree(pool *buffer.Pool, leafMaxSize, internalMaxSize int32, cmp Comparator) *BPlusTree {
	if cmp == nil {
		cmp = DefaultComparator
	}
	return &BPlusTree{
		latch:           latch.NewLatch(),
		pool:            pool,
		cmp:             cmp,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		rootPageID:      page.InvalidPageID,
	}
}

// IsEmpty reports whether the tree has no entries.
func (t *BPlusTree) IsEmpty() bool {
	return t.rootPageID == page.InvalidPageID
}

func (t *BPlusTree) leafMinSize() int32 {
	return t.leafMaxSize / 2
}

func (t *BPlusTree) internalMinSize() int32 {
	return (t.internalMaxSize + 2) / 2
}

func (t *BPlusTree) fetchLeaf(pageID int32) (*page.Page, page.LeafPage) {
	frame, ok := t.pool.FetchPage(pageID)
	if !ok {
		panic("index: buffer pool exhausted while fetching a leaf page")
	}
	tp := page.TreePage{Raw: &frame.Data}
	if tp.NodeType() != page.LeafNode {
		t.pool.UnpinPage(pageID, false)
		panic(page.ErrCorruptHeader)
	}
	return frame, page.LeafPage{TreePage: tp}
}

func (t *BPlusTree) fetchInternal(pageID int32) (*page.Page, page.InternalPage) {
	frame, ok := t.pool.FetchPage(pageID)
	if !ok {
		panic("index: buffer pool exhausted while fetching an internal page")
	}
	tp := page.TreePage{Raw: &frame.Data}
	if tp.NodeType() != page.InternalNode {
		t.pool.UnpinPage(pageID, false)
		panic(page.ErrCorruptHeader)
	}
	return frame, page.InternalPage{TreePage: tp}
}

func (t *BPlusTree) newLeaf(parentPageID int32) (int32, page.LeafPage) {
	pageID, ok := t.pool.NewPage()
	if !ok {
		panic("index: buffer pool exhausted while allocating a leaf page")
	}
	frame, _ := t.pool.FetchPage(pageID)
	t.pool.UnpinPage(pageID, false) // drop the pin NewPage already holds; FetchPage re-pinned it
	lp := page.NewLeafPage(&frame.Data, pageID, parentPageID, t.leafMaxSize)
	return pageID, lp
}

func (t *BPlusTree) newInternal(parentPageID int32) (int32, page.InternalPage) {
	pageID, ok := t.pool.NewPage()
	if !ok {
		panic("index: buffer pool exhausted while allocating an internal page")
	}
	frame, _ := t.pool.FetchPage(pageID)
	t.pool.UnpinPage(pageID, false)
	ip := page.NewInternalPage(&frame.Data, pageID, parentPageID, t.internalMaxSize)
	return pageID, ip
}

// findLeafPath descends from root to the leaf that would hold key,
// returning every internal page id visited (root first) and the leaf's
// page id. Every page visited, the leaf included, has already been
// unpinned; a caller that reads the leaf fetches (and unpins) it again.
func (t *BPlusTree) findLeafPath(key int64) ([]int32, int32) {
	var path []int32
	pageID := t.rootPageID
	for {
		frame, ok := t.pool.FetchPage(pageID)
		if !ok {
			panic("index: buffer pool exhausted while descending")
		}
		tp := page.TreePage{Raw: &frame.Data}
		if tp.IsLeaf() {
			t.pool.UnpinPage(pageID, false)
			return path, pageID
		}
		ip := page.InternalPage{TreePage: tp}
		child := ip.LookupChild(key, t.cmp)
		t.pool.UnpinPage(pageID, false)
		path = append(path, pageID)
		pageID = child
	}
}

// GetValue looks up key, returning its value if present.
func (t *BPlusTree) GetValue(key int64) (int64, bool) {
	t.latch.RLock()
	defer t.latch.RUnlock()

	if t.IsEmpty() {
		return 0, false
	}
	_, leafID := t.findLeafPath(key)
	frame, lp := t.fetchLeaf(leafID)
	v, ok := lp.Lookup(key, t.cmp)
	t.pool.UnpinPage(leafID, false)
	_ = frame
	return v, ok
}

// Insert adds (key, value). It fails (returns false) without modifying
// the tree if key is already present.
func (t *BPlusTree) Insert(key int64, value int64) bool {
	t.latch.Lock()
	defer t.latch.Unlock()

	if t.IsEmpty() {
		leafID, lp := t.newLeaf(page.InvalidPageID)
		lp.InsertAt(0, key, value)
		t.pool.UnpinPage(leafID, true)
		t.rootPageID = leafID
		return true
	}

	path, leafID := t.findLeafPath(key)
	frame, lp := t.fetchLeaf(leafID)
	_ = frame

	idx := lp.LowerBound(key, t.cmp)
	if idx < lp.Size() && t.cmp(lp.KeyAt(idx), key) == 0 {
		t.pool.UnpinPage(leafID, false)
		return false
	}
	lp.InsertAt(idx, key, value)

	if lp.Size() < t.leafMaxSize {
		t.pool.UnpinPage(leafID, true)
		return true
	}

	// Leaf overflowed: split it and propagate a new separator upward.
	siblingID, sibling := t.newLeaf(lp.ParentPageID())
	lp.MoveHalfTo(sibling, t.leafMinSize())
	sibling.SetNextPageID(lp.NextPageID())
	lp.SetNextPageID(siblingID)
	separator := sibling.KeyAt(0)

	t.pool.UnpinPage(leafID, true)
	t.pool.UnpinPage(siblingID, true)

	t.insertIntoParent(path, leafID, separator, siblingID)
	return true
}

// insertIntoParent installs (separator, rightPageID) as a new routing
// entry in the parent of leftPageID, creating a new root if leftPageID
// had none, and recursively splitting ancestors that overflow.
func (t *BPlusTree) insertIntoParent(path []int32, leftPageID int32, separator int64, rightPageID int32) {
	if len(path) == 0 {
		rootID, root := t.newInternal(page.InvalidPageID)
		root.PopulateNewRoot(leftPageID, separator, rightPageID)
		t.pool.UnpinPage(rootID, true)
		t.setParent(leftPageID, rootID)
		t.setParent(rightPageID, rootID)
		t.rootPageID = rootID
		return
	}

	parentID := path[len(path)-1]
	ancestors := path[:len(path)-1]

	frame, parent := t.fetchInternal(parentID)
	_ = frame
	parent.InsertAfter(leftPageID, separator, rightPageID)
	t.setParentPinned(rightPageID, parentID)

	if parent.Size() <= t.internalMaxSize {
		t.pool.UnpinPage(parentID, true)
		return
	}

	splitAt := t.internalMinSize()
	siblingID, sibling := t.newInternal(parent.ParentPageID())
	pivot := parent.KeyAt(splitAt)
	parent.MoveHalfTo(sibling, splitAt)
	t.reparentChildren(sibling)

	t.pool.UnpinPage(parentID, true)
	t.pool.UnpinPage(siblingID, true)

	t.insertIntoParent(ancestors, parentID, pivot, siblingID)
}

func (t *BPlusTree) setParent(childPageID, parentPageID int32) {
	frame, ok := t.pool.FetchPage(childPageID)
	if !ok {
		panic("index: buffer pool exhausted while re-parenting")
	}
	page.TreePage{Raw: &frame.Data}.SetParentPageID(parentPageID)
	t.pool.UnpinPage(childPageID, true)
}

// setParentPinned is identical to setParent; kept as a distinct name at
// call sites that re-parent a node immediately after installing it as a
// new sibling in its parent, as opposed to initial tree construction.
func (t *BPlusTree) setParentPinned(childPageID, parentPageID int32) {
	t.setParent(childPageID, parentPageID)
}

func (t *BPlusTree) reparentChildren(ip page.InternalPage) {
	for i := int32(0); i < ip.Size(); i++ {
		t.setParent(ip.ChildAt(i), ip.PageID())
	}
}
