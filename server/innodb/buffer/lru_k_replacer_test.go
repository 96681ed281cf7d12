package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUKReplacerEmpty(t *testing.T) {
	r := NewLRUKReplacer(8, 2)
	_, ok := r.Evict()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Size())
}

func TestLRUKReplacerFewerThanKIsLRU(t *testing.T) {
	r := NewLRUKReplacer(8, 2)

	// frame 1: two accesses (at k-history).
	r.RecordAccess(1)
	r.RecordAccess(1)
	// frame 2: one access only, first-seen earlier than frame 3.
	r.RecordAccess(2)
	// frame 3: one access, first-seen after frame 2.
	r.RecordAccess(3)

	r.SetEvictable(1, true)
	r.SetEvictable(2, true)
	r.SetEvictable(3, true)
	require.Equal(t, 3, r.Size())

	// frames 2 and 3 both have +inf backward k-distance; frame 2 was seen
	// first, so it is evicted before frame 3 and before frame 1.
	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(2), victim)
	assert.Equal(t, 2, r.Size())

	victim, ok = r.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(3), victim)
}

func TestLRUKReplacerBackwardKDistance(t *testing.T) {
	r := NewLRUKReplacer(8, 2)

	r.RecordAccess(1) // t=1
	r.RecordAccess(2) // t=2
	r.RecordAccess(1) // t=3, frame1 history=[1,3]
	r.RecordAccess(2) // t=4, frame2 history=[2,4]

	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	// both have 2 accesses (== k): k-distance(1) = now(4)-1 = 3;
	// k-distance(2) = now(4)-2 = 2. Frame 1 has the larger k-distance.
	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, FrameID(1), victim)
}

func TestLRUKReplacerSetEvictableNoHistory(t *testing.T) {
	r := NewLRUKReplacer(8, 2)
	r.SetEvictable(42, true) // no-op, frame never accessed
	assert.Equal(t, 0, r.Size())
}

func TestLRUKReplacerRemove(t *testing.T) {
	r := NewLRUKReplacer(8, 2)
	r.RecordAccess(5)
	r.SetEvictable(5, true)
	require.Equal(t, 1, r.Size())
	r.Remove(5)
	assert.Equal(t, 0, r.Size())

	_, ok := r.Evict()
	assert.False(t, ok)
}
