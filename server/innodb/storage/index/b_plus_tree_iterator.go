package index

import "gobustub/server/innodb/storage/page"

// Iterator is a forward cursor over a tree's leaves, identified at any
// point by a (leaf_page_id, slot) pair per spec section 4.4. Per
// original_source/src/include/storage/index/index_iterator.h
// ("在iterator的生存周期中，完全pin住这个leaf_page" — pin the leaf page
// for the iterator's whole lifetime), the cursor keeps its current leaf pinned in
// the buffer pool from the moment it lands on it until it advances past it
// or is closed, rather than fetching and unpinning on every call. Go has
// no destructor to mirror the C++ original's unpin-on-destruction, so a
// cursor that is abandoned before running off the end of the tree must
// have Close called on it explicitly.
//
// Every access to the pinned leaf's contents (Key, Value, Next) takes the
// tree's latch for reading, since a pin only keeps the page resident — it
// does not block a concurrent Insert/Remove, which holds the tree's
// exclusive latch while restructuring and writing the same pages a live
// cursor may be pinning.
type Iterator struct {
	tree   *BPlusTree
	pageID int32
	slot   int32

	frame *page.Page
	leaf  page.LeafPage
}

// Begin returns a cursor positioned at the smallest key in the tree.
func (t *BPlusTree) Begin() *Iterator {
	t.latch.RLock()
	defer t.latch.RUnlock()

	if t.IsEmpty() {
		return &Iterator{tree: t, pageID: page.InvalidPageID}
	}
	leafID := t.leftmostLeaf()
	frame, lp := t.fetchLeaf(leafID)
	return &Iterator{tree: t, pageID: leafID, slot: 0, frame: frame, leaf: lp}
}

// BeginAt returns a cursor positioned at the smallest key >= key.
func (t *BPlusTree) BeginAt(key int64) *Iterator {
	t.latch.RLock()
	defer t.latch.RUnlock()

	if t.IsEmpty() {
		return &Iterator{tree: t, pageID: page.InvalidPageID}
	}

	_, leafID := t.findLeafPath(key)
	frame, lp := t.fetchLeaf(leafID)
	slot := lp.LowerBound(key, t.cmp)
	size := lp.Size()

	if slot < size {
		return &Iterator{tree: t, pageID: leafID, slot: slot, frame: frame, leaf: lp}
	}

	next := lp.NextPageID()
	t.pool.UnpinPage(leafID, false)
	if next == page.InvalidPageID {
		return &Iterator{tree: t, pageID: page.InvalidPageID}
	}
	nframe, nlp := t.fetchLeaf(next)
	return &Iterator{tree: t, pageID: next, slot: 0, frame: nframe, leaf: nlp}
}

func (t *BPlusTree) leftmostLeaf() int32 {
	pageID := t.rootPageID
	for {
		frame, ok := t.pool.FetchPage(pageID)
		if !ok {
			panic("index: buffer pool exhausted while finding the leftmost leaf")
		}
		tp := page.TreePage{Raw: &frame.Data}
		if tp.IsLeaf() {
			t.pool.UnpinPage(pageID, false)
			return pageID
		}
		ip := page.InternalPage{TreePage: tp}
		child := ip.ChildAt(0)
		t.pool.UnpinPage(pageID, false)
		pageID = child
	}
}

// Valid reports whether the cursor still refers to an entry.
func (it *Iterator) Valid() bool {
	return it.pageID != page.InvalidPageID
}

// Key returns the entry the cursor currently refers to. Valid must be
// true.
func (it *Iterator) Key() int64 {
	it.tree.latch.RLock()
	defer it.tree.latch.RUnlock()
	return it.leaf.KeyAt(it.slot)
}

// Value returns the entry the cursor currently refers to. Valid must be
// true.
func (it *Iterator) Value() int64 {
	it.tree.latch.RLock()
	defer it.tree.latch.RUnlock()
	return it.leaf.ValueAt(it.slot)
}

// Next advances the cursor to the following entry, crossing into the
// next leaf via its forward link when the current one is exhausted. The
// leaf being left behind is unpinned only once the cursor has actually
// moved off it.
func (it *Iterator) Next() {
	if !it.Valid() {
		return
	}
	it.tree.latch.RLock()
	defer it.tree.latch.RUnlock()

	size := it.leaf.Size()
	it.slot++
	if it.slot < size {
		return
	}

	next := it.leaf.NextPageID()
	it.tree.pool.UnpinPage(it.pageID, false)
	it.frame, it.leaf = nil, page.LeafPage{}
	it.pageID = next
	it.slot = 0

	if it.pageID != page.InvalidPageID {
		it.frame, it.leaf = it.tree.fetchLeaf(it.pageID)
	}
}

// Close releases the cursor's pin on whatever leaf it currently holds. It
// must be called on any cursor abandoned before Valid reports false;
// calling it on an already-exhausted or already-closed cursor is a no-op.
func (it *Iterator) Close() {
	if it.pageID == page.InvalidPageID {
		return
	}
	it.tree.pool.UnpinPage(it.pageID, false)
	it.pageID = page.InvalidPageID
	it.frame, it.leaf = nil, page.LeafPage{}
}
