package index

import "gobustub/server/innodb/storage/page"

// Remove deletes key if present, reporting whether it was found. A leaf
// that drops below leafMinSize borrows a entry from a sibling if one can
// spare it, otherwise merges with a sibling, cascading the same
// redistribute-or-merge decision up through ancestors per spec section
// 4.4. The root is exempt from the minimum size invariant.
func (t *BPlusTree) Remove(key int64) bool {
	t.latch.Lock()
	defer t.latch.Unlock()

	if t.IsEmpty() {
		return false
	}

	path, leafID := t.findLeafPath(key)
	_, lp := t.fetchLeaf(leafID)

	idx := lp.LowerBound(key, t.cmp)
	if idx >= lp.Size() || t.cmp(lp.KeyAt(idx), key) != 0 {
		t.pool.UnpinPage(leafID, false)
		return false
	}
	lp.RemoveAt(idx)

	if lp.IsRootInvariantExempt() {
		if lp.Size() == 0 {
			t.pool.UnpinPage(leafID, true)
			t.pool.DeletePage(leafID)
			t.rootPageID = page.InvalidPageID
			return true
		}
		t.pool.UnpinPage(leafID, true)
		return true
	}

	if lp.Size() >= t.leafMinSize() {
		t.pool.UnpinPage(leafID, true)
		return true
	}

	t.fixLeafUnderflow(path, leafID, lp)
	return true
}

// fixLeafUnderflow resolves a leaf that has fewer than leafMinSize
// entries by redistributing from a sibling with room to spare, or
// merging with one otherwise. path's last entry is the leaf's parent;
// the rest are that parent's ancestors, root first.
func (t *BPlusTree) fixLeafUnderflow(path []int32, leafID int32, lp page.LeafPage) {
	parentID := path[len(path)-1]
	ancestors := path[:len(path)-1]
	_, parent := t.fetchInternal(parentID)
	idx := parent.ValueIndex(leafID)

	if idx > 0 {
		leftID := parent.ChildAt(idx - 1)
		_, left := t.fetchLeaf(leftID)

		if left.Size() > t.leafMinSize() {
			left.MoveLastToFrontOf(lp)
			parent.SetKeyAt(idx, lp.KeyAt(0))
			t.pool.UnpinPage(leftID, true)
			t.pool.UnpinPage(leafID, true)
			t.pool.UnpinPage(parentID, true)
			return
		}

		if idx+1 < parent.Size() {
			rightID := parent.ChildAt(idx + 1)
			_, right := t.fetchLeaf(rightID)
			if right.Size() > t.leafMinSize() {
				right.MoveFirstToEndOf(lp)
				parent.SetKeyAt(idx+1, right.KeyAt(0))
				t.pool.UnpinPage(rightID, true)
				t.pool.UnpinPage(leftID, false)
				t.pool.UnpinPage(leafID, true)
				t.pool.UnpinPage(parentID, true)
				return
			}
			t.pool.UnpinPage(rightID, false)
		}

		lp.MoveAllTo(left)
		left.SetNextPageID(lp.NextPageID())
		parent.RemoveAt(idx)
		t.pool.UnpinPage(leftID, true)
		t.pool.UnpinPage(leafID, true)
		t.pool.DeletePage(leafID)
		t.fixInternalUnderflow(ancestors, parentID, parent)
		return
	}

	rightID := parent.ChildAt(idx + 1)
	_, right := t.fetchLeaf(rightID)

	if right.Size() > t.leafMinSize() {
		right.MoveFirstToEndOf(lp)
		parent.SetKeyAt(idx+1, right.KeyAt(0))
		t.pool.UnpinPage(rightID, true)
		t.pool.UnpinPage(leafID, true)
		t.pool.UnpinPage(parentID, true)
		return
	}

	right.MoveAllTo(lp)
	lp.SetNextPageID(right.NextPageID())
	parent.RemoveAt(idx + 1)
	t.pool.UnpinPage(leafID, true)
	t.pool.UnpinPage(rightID, true)
	t.pool.DeletePage(rightID)
	t.fixInternalUnderflow(ancestors, parentID, parent)
}

// fixInternalUnderflow is the internal-node counterpart of
// fixLeafUnderflow. When an internal node's merge shrinks the root to a
// single child, that child is promoted to be the tree's new root,
// shortening the tree by one level.
func (t *BPlusTree) fixInternalUnderflow(ancestors []int32, nodeID int32, node page.InternalPage) {
	if len(ancestors) == 0 {
		if node.Size() == 1 {
			childID := node.ChildAt(0)
			t.pool.UnpinPage(nodeID, true)
			t.pool.DeletePage(nodeID)
			t.setParent(childID, page.InvalidPageID)
			t.rootPageID = childID
			return
		}
		t.pool.UnpinPage(nodeID, true)
		return
	}

	if node.Size() >= t.internalMinSize() {
		t.pool.UnpinPage(nodeID, true)
		return
	}

	grandParentID := ancestors[len(ancestors)-1]
	higher := ancestors[:len(ancestors)-1]
	_, gp := t.fetchInternal(grandParentID)
	idx := gp.ValueIndex(nodeID)

	if idx > 0 {
		leftID := gp.ChildAt(idx - 1)
		_, left := t.fetchInternal(leftID)

		if left.Size() > t.internalMinSize() {
			downKey := gp.KeyAt(idx)
			leftLastKey := left.KeyAt(left.Size() - 1)
			left.MoveLastToFrontOf(node, downKey)
			t.setParent(node.ChildAt(0), nodeID)
			gp.SetKeyAt(idx, leftLastKey)
			t.pool.UnpinPage(leftID, true)
			t.pool.UnpinPage(nodeID, true)
			t.pool.UnpinPage(grandParentID, true)
			return
		}

		if idx+1 < gp.Size() {
			rightID := gp.ChildAt(idx + 1)
			_, right := t.fetchInternal(rightID)
			if right.Size() > t.internalMinSize() {
				downKey := gp.KeyAt(idx + 1)
				gp.SetKeyAt(idx+1, right.KeyAt(1))
				right.MoveFirstToEndOf(node, downKey)
				t.setParent(node.ChildAt(node.Size()-1), nodeID)
				t.pool.UnpinPage(rightID, true)
				t.pool.UnpinPage(leftID, false)
				t.pool.UnpinPage(nodeID, true)
				t.pool.UnpinPage(grandParentID, true)
				return
			}
			t.pool.UnpinPage(rightID, false)
		}

		downKey := gp.KeyAt(idx)
		node.MoveAllTo(left, downKey)
		t.reparentChildren(left)
		gp.RemoveAt(idx)
		t.pool.UnpinPage(leftID, true)
		t.pool.UnpinPage(nodeID, true)
		t.pool.DeletePage(nodeID)
		t.fixInternalUnderflow(higher, grandParentID, gp)
		return
	}

	rightID := gp.ChildAt(idx + 1)
	_, right := t.fetchInternal(rightID)

	if right.Size() > t.internalMinSize() {
		downKey := gp.KeyAt(idx + 1)
		newSeparator := right.KeyAt(1)
		right.MoveFirstToEndOf(node, downKey)
		t.setParent(node.ChildAt(node.Size()-1), nodeID)
		gp.SetKeyAt(idx+1, newSeparator)
		t.pool.UnpinPage(rightID, true)
		t.pool.UnpinPage(nodeID, true)
		t.pool.UnpinPage(grandParentID, true)
		return
	}

	downKey := gp.KeyAt(idx + 1)
	right.MoveAllTo(node, downKey)
	t.reparentChildren(node)
	gp.RemoveAt(idx + 1)
	t.pool.UnpinPage(nodeID, true)
	t.pool.UnpinPage(rightID, true)
	t.pool.DeletePage(rightID)
	t.fixInternalUnderflow(higher, grandParentID, gp)
}
