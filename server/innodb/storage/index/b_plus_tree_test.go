package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gobustub/server/innodb/buffer"
	"gobustub/server/innodb/storage/disk"
)

func newTestTree(t *testing.T, leafMax, internalMax int32) *BPlusTree {
	t.Helper()
	dm, err := disk.NewFileManager(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	pool := buffer.NewPool(64, 2, dm)
	return NewBPlusTree(pool, leafMax, internalMax, DefaultComparator)
}

func collect(t *BPlusTree) []int64 {
	var keys []int64
	for it := t.Begin(); it.Valid(); it.Next() {
		keys = append(keys, it.Key())
	}
	return keys
}

func TestBPlusTreeInsertAndGetValue(t *testing.T) {
	tree := newTestTree(t, 2, 3)

	for i := int64(1); i <= 6; i++ {
		require.True(t, tree.Insert(i, i*10))
	}

	for i := int64(1); i <= 6; i++ {
		v, ok := tree.GetValue(i)
		require.True(t, ok)
		require.Equal(t, i*10, v)
	}

	_, ok := tree.GetValue(7)
	require.False(t, ok)

	require.Equal(t, []int64{1, 2, 3, 4, 5, 6}, collect(tree))
}

func TestBPlusTreeDuplicateInsertFails(t *testing.T) {
	tree := newTestTree(t, 2, 3)
	require.True(t, tree.Insert(1, 100))
	require.False(t, tree.Insert(1, 200))

	v, ok := tree.GetValue(1)
	require.True(t, ok)
	require.Equal(t, int64(100), v)
}

func TestBPlusTreeBeginAt(t *testing.T) {
	tree := newTestTree(t, 2, 3)
	for i := int64(1); i <= 6; i++ {
		require.True(t, tree.Insert(i, i))
	}

	it := tree.BeginAt(3)
	var keys []int64
	for ; it.Valid(); it.Next() {
		keys = append(keys, it.Key())
	}
	require.Equal(t, []int64{3, 4, 5, 6}, keys)

	it = tree.BeginAt(100)
	require.False(t, it.Valid())
}

func TestBPlusTreeRemoveMissingKeyFails(t *testing.T) {
	tree := newTestTree(t, 2, 3)
	require.True(t, tree.Insert(1, 1))
	require.False(t, tree.Remove(42))
}

func TestBPlusTreeRemoveInPermutationEmptiesTree(t *testing.T) {
	tree := newTestTree(t, 2, 3)
	keys := []int64{1, 2, 3, 4, 5, 6}
	for _, k := range keys {
		require.True(t, tree.Insert(k, k))
	}

	removalOrder := []int64{4, 1, 6, 2, 5, 3}
	for _, k := range removalOrder {
		require.True(t, tree.Remove(k))
		_, ok := tree.GetValue(k)
		require.False(t, ok)

		for _, remaining := range keys {
			alreadyRemoved := false
			for _, removed := range removalOrder[:indexOf(removalOrder, k)+1] {
				if remaining == removed {
					alreadyRemoved = true
				}
			}
			_, ok := tree.GetValue(remaining)
			require.Equal(t, !alreadyRemoved, ok)
		}
	}

	require.True(t, tree.IsEmpty())
	require.Empty(t, collect(tree))
}

func indexOf(s []int64, v int64) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestBPlusTreeLargerFanoutSplitsAndMerges(t *testing.T) {
	tree := newTestTree(t, 4, 4)

	const n = 50
	for i := int64(0); i < n; i++ {
		require.True(t, tree.Insert(i, i*2))
	}
	require.Equal(t, int(n), len(collect(tree)))

	for i := int64(0); i < n; i += 2 {
		require.True(t, tree.Remove(i))
	}

	var want []int64
	for i := int64(1); i < n; i += 2 {
		want = append(want, i)
	}
	require.Equal(t, want, collect(tree))

	for _, k := range want {
		v, ok := tree.GetValue(k)
		require.True(t, ok)
		require.Equal(t, k*2, v)
	}
}
