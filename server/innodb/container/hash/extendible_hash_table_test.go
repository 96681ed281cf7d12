package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityHash(key int) uint64 { return uint64(key) }

func TestExtendibleHashTableBasic(t *testing.T) {
	tbl := NewExtendibleHashTable[int, string](2, identityHash)

	tbl.Insert(1, "a")
	tbl.Insert(2, "b")
	tbl.Insert(3, "c")
	tbl.Insert(4, "d")
	tbl.Insert(5, "e")
	tbl.Insert(6, "f")
	tbl.Insert(7, "g")
	tbl.Insert(8, "h")
	tbl.Insert(9, "i")

	v, ok := tbl.Find(9)
	require.True(t, ok)
	assert.Equal(t, "i", v)

	_, ok = tbl.Find(10)
	assert.False(t, ok)
}

func TestExtendibleHashTableNumBucketsGrowth(t *testing.T) {
	tbl := NewExtendibleHashTable[int, int](2, identityHash)

	for _, k := range []int{4, 12, 16} {
		tbl.Insert(k, k)
	}
	assert.Equal(t, 4, tbl.GetNumBuckets())

	for _, k := range []int{64, 31, 10, 51} {
		tbl.Insert(k, k)
	}
	assert.Equal(t, 4, tbl.GetNumBuckets())

	for _, k := range []int{15, 18, 20} {
		tbl.Insert(k, k)
	}
	assert.Equal(t, 7, tbl.GetNumBuckets())

	for _, k := range []int{7, 23} {
		tbl.Insert(k, k)
	}
	assert.Equal(t, 8, tbl.GetNumBuckets())
}

func TestExtendibleHashTableOverwriteAndRemove(t *testing.T) {
	tbl := NewExtendibleHashTable[int, string](2, identityHash)
	tbl.Insert(1, "a")
	tbl.Insert(1, "a-updated")

	v, ok := tbl.Find(1)
	require.True(t, ok)
	assert.Equal(t, "a-updated", v)

	assert.True(t, tbl.Remove(1))
	assert.False(t, tbl.Remove(1))
	_, ok = tbl.Find(1)
	assert.False(t, ok)
}

func TestExtendibleHashTableDirectoryInvariant(t *testing.T) {
	tbl := NewExtendibleHashTable[int, int](2, identityHash)
	for k := 0; k < 50; k++ {
		tbl.Insert(k, k)
	}

	for i, b := range tbl.directory {
		mask := uint64(1<<uint(b.localDepth)) - 1
		for _, e := range b.entries {
			h := identityHash(e.key)
			assert.Equal(t, uint64(i)&mask, h&mask)
		}
	}
}
